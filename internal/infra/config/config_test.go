package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	cfg, err := Parse([]byte("discord:\n  token: test-token\n"))
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.Discord.Token)
	assert.Equal(t, "!", cfg.Discord.Prefix)
	assert.Equal(t, 50, cfg.Playback.DefaultVolume)
	assert.Equal(t, 30*time.Second, cfg.Playback.ResolveTimeout)
	assert.Equal(t, 32, cfg.Playback.EventBuffer)
	assert.Equal(t, "bestaudio/best", cfg.YtDlp.Format)
	assert.Equal(t, "auto", cfg.YtDlp.DefaultSearch)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.Binary)
	assert.Equal(t, "-vn", cfg.FFmpeg.Options)
	assert.Contains(t, cfg.FFmpeg.BeforeOptions, "-reconnect 1")
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Spotify.Enabled())
	assert.Empty(t, cfg.Spotify.Market)
	assert.Equal(t, 50, cfg.Spotify.MaxTracks)
	assert.Equal(t, "**Not playing any music.**", cfg.GetMessage("not_playing"))
}

func TestParse_Values(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	data := []byte(`
discord:
  token: abc
  prefix: "?"
  command_rate: 0.5
playback:
  default_volume: 120
  resolve_timeout: 1m
ffmpeg:
  bitrate: 64000
filters:
  user_pending_filter:
    enabled: true
    settings:
      max_pending: 2
  queue_limit_filter:
    enabled: false
messages:
  duplicate_track: "dup!"
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "?", cfg.Discord.Prefix)
	assert.InDelta(t, 0.5, cfg.Discord.CommandRate, 1e-9)
	assert.Equal(t, 120, cfg.Playback.DefaultVolume)
	assert.Equal(t, time.Minute, cfg.Playback.ResolveTimeout)
	assert.Equal(t, 64000, cfg.FFmpeg.Bitrate)

	assert.True(t, cfg.IsFilterEnabled("user_pending_filter"))
	assert.False(t, cfg.IsFilterEnabled("queue_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("unknown_filter"))
	assert.Equal(t, 2, cfg.GetFilterSettings("user_pending_filter")["max_pending"])
	assert.Empty(t, cfg.GetFilterSettings("queue_limit_filter"))

	assert.Equal(t, "dup!", cfg.GetMessage("duplicate_track"))
	assert.Equal(t, cfg.Messages.DefaultError, cfg.GetMessage("no_such_code"))
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")

	cfg, err := Parse([]byte("discord:\n  token: file-token\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.True(t, cfg.Spotify.Enabled())
	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "missing discord token",
			yaml:    "playback:\n  default_volume: 10\n",
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name:    "volume above maximum",
			yaml:    "discord:\n  token: t\nplayback:\n  default_volume: 250\n",
			wantErr: true,
			errMsg:  "DefaultVolume",
		},
		{
			name:    "spotify id without secret",
			yaml:    "discord:\n  token: t\nspotify:\n  client_id: x\n",
			wantErr: true,
			errMsg:  "ClientSecret",
		},
		{
			name:    "invalid log level",
			yaml:    "discord:\n  token: t\nlog:\n  level: loud\n",
			wantErr: true,
			errMsg:  "Level",
		},
		{
			name:    "negative resolve timeout",
			yaml:    "discord:\n  token: t\nplayback:\n  resolve_timeout: -1s\n",
			wantErr: true,
			errMsg:  "resolve_timeout",
		},
		{
			name: "spotify with credentials",
			yaml: "discord:\n  token: t\nspotify:\n  client_id: x\n  client_secret: y\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "")
			t.Setenv("SPOTIFY_CLIENT_ID", "")
			t.Setenv("SPOTIFY_CLIENT_SECRET", "")

			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discord:\n  token: from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Discord.Token)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
