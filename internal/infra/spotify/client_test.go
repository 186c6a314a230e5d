package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Link
		wantErr bool
	}{
		{
			name:  "track URI",
			input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			want:  Link{Kind: KindTrack, ID: "4uLU6hMCjMI75M1A2tKUQC"},
		},
		{
			name:  "playlist URI",
			input: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			want:  Link{Kind: KindPlaylist, ID: "37i9dQZF1DXcBWIGoYBM5M"},
		},
		{
			name:  "track URL with query params",
			input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123",
			want:  Link{Kind: KindTrack, ID: "4uLU6hMCjMI75M1A2tKUQC"},
		},
		{
			name:  "intl playlist URL",
			input: "https://open.spotify.com/intl-ja/playlist/37i9dQZF1DXcBWIGoYBM5M",
			want:  Link{Kind: KindPlaylist, ID: "37i9dQZF1DXcBWIGoYBM5M"},
		},
		{
			name:  "album URL with trailing slash",
			input: " https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3/ ",
			want:  Link{Kind: KindAlbum, ID: "1DFixLWuPkv3KT3TnV35m3"},
		},
		{
			name:  "HTTP URL (not HTTPS)",
			input: "http://open.spotify.com/playlist/testID",
			want:  Link{Kind: KindPlaylist, ID: "testID"},
		},
		{
			name:    "artist URL",
			input:   "https://open.spotify.com/artist/0OdUWJ0sBjDrqHygGUXeCF",
			wantErr: true,
		},
		{
			name:    "youtube URL",
			input:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantErr: true,
		},
		{
			name:    "plain search terms",
			input:   "never gonna give you up",
			wantErr: true,
		},
		{
			name:    "URI without ID",
			input:   "spotify:track:",
			wantErr: true,
		},
		{
			name:    "Empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLink(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotSpotifyLink)
				assert.False(t, IsLink(tt.input))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsLink(tt.input))
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, maxTracks int) *Client {
	t.Helper()
	return newTestClientWithConfig(t, handler, Config{Market: "JP", MaxTracks: maxTracks})
}

func newTestClientWithConfig(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := newWithClient(spotify.New(srv.Client(), spotify.WithBaseURL(srv.URL+"/")), cfg)
	c.retryDelay = time.Millisecond
	return c
}

func trackJSON(i int) string {
	return fmt.Sprintf(`{"type":"track","id":"t%d","name":"Song %d","artists":[{"name":"Artist %d"},{"name":"Feat"}]}`, i, i, i)
}

func TestClient_QueriesTrack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/tracks/abc"), r.URL.Path)
		assert.Equal(t, "JP", r.URL.Query().Get("market"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, trackJSON(1))
	}, 0)

	queries, err := c.Queries(context.Background(), "spotify:track:abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"ytsearch1:Artist 1 - Song 1"}, queries)
}

func TestClient_NoMarketByDefault(t *testing.T) {
	c := newTestClientWithConfig(t, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("market"), r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, trackJSON(1))
	}, Config{})

	queries, err := c.Queries(context.Background(), "spotify:track:abc")
	require.NoError(t, err)
	assert.Len(t, queries, 1)
}

func TestClient_QueriesPlaylistPaginates(t *testing.T) {
	const total = 130
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/playlists/pl/tracks")
		var offset int
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)

		items := make([]string, 0, 100)
		for i := offset; i < total && i < offset+100; i++ {
			items = append(items, `{"track":`+trackJSON(i)+`}`)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items":[%s],"total":%d,"limit":100,"offset":%d}`, strings.Join(items, ","), total, offset)
	}, 500)

	queries, err := c.Queries(context.Background(), "https://open.spotify.com/playlist/pl")
	require.NoError(t, err)
	require.Len(t, queries, total)
	assert.Equal(t, "ytsearch1:Artist 0 - Song 0", queries[0])
	assert.Equal(t, "ytsearch1:Artist 129 - Song 129", queries[129])
}

func TestClient_QueriesAlbumRespectsMaxTracks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/albums/al/tracks")
		items := make([]string, 0, 12)
		for i := 0; i < 12; i++ {
			items = append(items, fmt.Sprintf(`{"id":"t%d","name":"Track %d","artists":[{"name":"Band"}]}`, i, i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items":[%s],"total":12,"limit":50,"offset":0}`, strings.Join(items, ","))
	}, 5)

	queries, err := c.Queries(context.Background(), "spotify:album:al")
	require.NoError(t, err)
	require.Len(t, queries, 5)
	assert.Equal(t, "ytsearch1:Band - Track 4", queries[4])
}

func TestClient_QueriesNotALink(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}, 0)

	_, err := c.Queries(context.Background(), "lofi hip hop")
	assert.ErrorIs(t, err, ErrNotSpotifyLink)
}

func TestClient_RetryGivesUpOnClientErrors(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"status":404,"message":"non existing id"}}`)
	}, 0)

	_, err := c.Queries(context.Background(), "spotify:track:missing")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "ytsearch1:Song", searchQuery(nil, "Song"))
	assert.Equal(t, "ytsearch1:A - Song", searchQuery([]spotify.SimpleArtist{{Name: "A"}, {Name: "B"}}, "Song"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502",
			err:      errors.New("502 Bad Gateway"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
