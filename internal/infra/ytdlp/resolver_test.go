package ytdlp

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/stagebox/internal/domain/track"
)

func TestParsePrintOutput(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    track.Info
		wantErr error
	}{
		{
			name:   "single video",
			stdout: "Song\thttps://cdn.example.com/a.webm\thttps://www.youtube.com/watch?v=1\tBand\t212\n",
			want: track.Info{
				Title:      "Song",
				StreamURL:  "https://cdn.example.com/a.webm",
				WebpageURL: "https://www.youtube.com/watch?v=1",
				Uploader:   "Band",
				Duration:   212 * time.Second,
			},
		},
		{
			name:   "fractional duration",
			stdout: "Song\thttps://cdn.example.com/a\tNA\tNA\t90.5",
			want: track.Info{
				Title:     "Song",
				StreamURL: "https://cdn.example.com/a",
				Duration:  90*time.Second + 500*time.Millisecond,
			},
		},
		{
			name:   "live stream has no duration",
			stdout: "Radio\thttps://cdn.example.com/live.m3u8\thttps://example.com/live\tStation\tNA\r\n",
			want: track.Info{
				Title:      "Radio",
				StreamURL:  "https://cdn.example.com/live.m3u8",
				WebpageURL: "https://example.com/live",
				Uploader:   "Station",
			},
		},
		{
			name:   "playlist takes first playable entry",
			stdout: "Broken\tNA\tNA\tNA\tNA\nSecond\thttps://cdn.example.com/2\tNA\tNA\t60\nThird\thttps://cdn.example.com/3\tNA\tNA\t60\n",
			want: track.Info{
				Title:     "Second",
				StreamURL: "https://cdn.example.com/2",
				Duration:  time.Minute,
			},
		},
		{
			name:    "empty output",
			stdout:  "",
			wantErr: ErrNoStream,
		},
		{
			name:    "garbage",
			stdout:  "[youtube] abc: Downloading webpage\n",
			wantErr: ErrNoStream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePrintOutput(tt.stdout)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseDuration("3"))
	assert.Equal(t, time.Duration(0), parseDuration("NA"))
	assert.Equal(t, time.Duration(0), parseDuration("-1"))
	assert.Equal(t, time.Duration(0), parseDuration("soon"))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "ERROR: Unsupported URL", lastLine("WARNING: x\nERROR: Unsupported URL\n"))
	assert.Equal(t, "", lastLine(""))
}

func TestResolver_EmptyQuery(t *testing.T) {
	r := New(Config{})
	_, err := r.Resolve(context.Background(), "   ")

	var re *track.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, err.Error(), "empty query")
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, "bestaudio/best", r.cfg.Format)
	assert.Equal(t, "auto", r.cfg.DefaultSearch)
}
