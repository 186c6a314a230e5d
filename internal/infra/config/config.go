// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Discord  DiscordConfig           `yaml:"discord"`
	Playback PlaybackConfig          `yaml:"playback"`
	YtDlp    YtDlpConfig             `yaml:"ytdlp"`
	FFmpeg   FFmpegConfig            `yaml:"ffmpeg"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig represents process-level configuration.
type ServerConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	Hooks           HooksConfig   `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// DiscordConfig represents Discord bot configuration.
type DiscordConfig struct {
	Token  string `yaml:"token" validate:"required"`
	Prefix string `yaml:"prefix" default:"!" validate:"required,max=5"`
	// Per-user command rate limit: CommandRate commands per second, bursting to CommandBurst.
	CommandRate  float64 `yaml:"command_rate" default:"1" validate:"gt=0"`
	CommandBurst int     `yaml:"command_burst" default:"3" validate:"gte=1"`
	// Text channel IDs the bot listens on; empty means all channels.
	Channels []string `yaml:"channels"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	DefaultVolume  int           `yaml:"default_volume" default:"50" validate:"gte=0,lte=200"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout" default:"30s"`
	EventBuffer    int           `yaml:"event_buffer" default:"32" validate:"gte=1"`
}

// YtDlpConfig represents yt-dlp resolver configuration.
type YtDlpConfig struct {
	Binary        string `yaml:"binary"`
	Format        string `yaml:"format" default:"bestaudio/best"`
	DefaultSearch string `yaml:"default_search" default:"auto"`
	SourceAddress string `yaml:"source_address" default:"0.0.0.0"`
}

// FFmpegConfig represents ffmpeg and Opus encoder configuration.
type FFmpegConfig struct {
	Binary        string `yaml:"binary" default:"ffmpeg"`
	BeforeOptions string `yaml:"before_options" default:"-reconnect 1 -reconnect_streamed 1 -reconnect_delay_max 5"`
	Options       string `yaml:"options" default:"-vn"`
	// Opus bitrate in bits per second.
	Bitrate int `yaml:"bitrate" default:"96000" validate:"gte=8000,lte=512000"`
}

// SpotifyConfig represents Spotify API configuration.
// Link expansion is disabled when no credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	// ISO 3166-1 alpha-2 market for track relinking; empty lets Spotify decide.
	Market       string `yaml:"market" validate:"omitempty,len=2"`
	MaxTracks    int    `yaml:"max_tracks" default:"50" validate:"gte=1,lte=500"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"Something went wrong."`
	NotInVoice            string `yaml:"not_in_voice" default:"You are not connected to a voice channel."`
	NotConnected          string `yaml:"not_connected" default:"**Not connected** to a voice channel."`
	NotPlaying            string `yaml:"not_playing" default:"**Not playing any music.**"`
	NothingToPause        string `yaml:"nothing_to_pause" default:"**Nothing to pause.**"`
	NothingToResume       string `yaml:"nothing_to_resume" default:"**Nothing to resume.**"`
	QueueEmpty            string `yaml:"queue_empty" default:"**The queue is empty.** Use !play to add a song."`
	InvalidPosition       string `yaml:"invalid_position" default:"There is no track at that position."`
	CannotRemoveCurrent   string `yaml:"cannot_remove_current" default:"The current song cannot be removed. Use !skip instead."`
	TrackNotFound         string `yaml:"track_not_found" default:"Could not find anything for that query."`
	UserPending           string `yaml:"user_pending" default:"You already have too many tracks in the queue."`
	DuplicateTrack        string `yaml:"duplicate_track" default:"That track is already in the queue."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track is too long or too short."`
	LiveNotAllowed        string `yaml:"live_not_allowed" default:"Live streams are not allowed."`
	QueueFull             string `yaml:"queue_full" default:"The queue is full."`
	RateLimited           string `yaml:"rate_limited" default:"Slow down."`
	EngineError           string `yaml:"engine_error" default:"Could not play this song."`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "not_in_voice":
		return c.Messages.NotInVoice
	case "not_connected":
		return c.Messages.NotConnected
	case "not_playing":
		return c.Messages.NotPlaying
	case "nothing_to_pause":
		return c.Messages.NothingToPause
	case "nothing_to_resume":
		return c.Messages.NothingToResume
	case "queue_empty":
		return c.Messages.QueueEmpty
	case "invalid_position":
		return c.Messages.InvalidPosition
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "user_pending":
		return c.Messages.UserPending
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "live_not_allowed":
		return c.Messages.LiveNotAllowed
	case "queue_full":
		return c.Messages.QueueFull
	case "rate_limited":
		return c.Messages.RateLimited
	case "cannot_remove_current":
		return c.Messages.CannotRemoveCurrent
	case "engine_error":
		return c.Messages.EngineError
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Playback.ResolveTimeout < 0 {
		return errors.Newf("resolve_timeout (%s) must not be negative", c.Playback.ResolveTimeout)
	}

	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok && f.Settings != nil {
		return f.Settings
	}
	return map[string]any{}
}
