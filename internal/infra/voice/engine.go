// Package voice plays tracks into a Discord voice channel.
package voice

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"

	"github.com/osa030/stagebox/internal/app/playback"
	"github.com/osa030/stagebox/internal/domain/track"
)

const (
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // 20ms at 48kHz
	maxPacket  = 4000
)

// ErrNotConnected is returned when starting playback without a voice connection.
var ErrNotConnected = errors.New("not connected to a voice channel")

// Config represents ffmpeg and encoder configuration.
type Config struct {
	FFmpeg        string // ffmpeg binary
	BeforeOptions string // options placed before -i
	Options       string // options placed after -i
	Bitrate       int    // Opus bitrate in bits per second
}

// Joiner is the part of *discordgo.Session the engine needs.
type Joiner interface {
	ChannelVoiceJoin(gID, cID string, mute, deaf bool) (*discordgo.VoiceConnection, error)
}

// Engine streams tracks into one guild's voice channel. It implements
// playback.Engine.
type Engine struct {
	joiner  Joiner
	guildID string
	cfg     Config

	mu        sync.Mutex
	vc        *discordgo.VoiceConnection
	channelID string // discordgo mutates vc.ChannelID under its own lock
}

// NewEngine creates an engine for the given guild.
func NewEngine(joiner Joiner, guildID string, cfg Config) *Engine {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = 96000
	}
	return &Engine{
		joiner:  joiner,
		guildID: guildID,
		cfg:     cfg,
	}
}

// Connect joins the given voice channel, moving if already connected elsewhere.
func (e *Engine) Connect(channelID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.vc != nil {
		if e.channelID == channelID {
			return nil
		}
		if err := e.vc.ChangeChannel(channelID, false, true); err != nil {
			return errors.Wrapf(err, "failed to move to voice channel %s", channelID)
		}
		e.channelID = channelID
		zlog.Info().Str("guild", e.guildID).Msgf("voice: moved to channel %s", channelID)
		return nil
	}

	vc, err := e.joiner.ChannelVoiceJoin(e.guildID, channelID, false, true)
	if err != nil {
		return errors.Wrapf(err, "failed to join voice channel %s", channelID)
	}
	e.vc = vc
	e.channelID = channelID
	zlog.Info().Str("guild", e.guildID).Msgf("voice: joined channel %s", channelID)
	return nil
}

// ChannelID returns the connected voice channel, or "" when disconnected.
func (e *Engine) ChannelID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channelID
}

// Start launches ffmpeg for the track and streams it until the end of input
// or Stop. ctx bounds only the launch.
func (e *Engine) Start(ctx context.Context, t *track.Track, volume float64, onEnd func(playback.Outcome, error)) (playback.Session, error) {
	e.mu.Lock()
	vc := e.vc
	e.mu.Unlock()
	if vc == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := t.Info()
	if info.StreamURL == "" {
		return nil, errors.Newf("track %s has no stream URL", t.ID)
	}

	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create opus encoder")
	}
	enc.SetBitrate(e.cfg.Bitrate)

	cmd := exec.Command(e.cfg.FFmpeg, ffmpegArgs(e.cfg, info.StreamURL)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ffmpeg output pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start ffmpeg")
	}

	s := newSession(stream{
		pcm: stdout,
		encode: func(pcm []int16) ([]byte, error) {
			return enc.Encode(pcm, frameSize, maxPacket)
		},
		out:      vc.OpusSend,
		speaking: vc.Speaking,
		kill: func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		},
		wait: func() error {
			if err := cmd.Wait(); err != nil {
				if msg := strings.TrimSpace(stderr.String()); msg != "" {
					return errors.Wrap(err, msg)
				}
				return err
			}
			return nil
		},
	}, volume, onEnd)

	zlog.Debug().Str("guild", e.guildID).Msgf("voice: streaming %q", info.Title)
	go s.run()
	return s, nil
}

// Release disconnects from the voice channel.
func (e *Engine) Release() error {
	e.mu.Lock()
	vc := e.vc
	e.vc = nil
	e.channelID = ""
	e.mu.Unlock()

	if vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return errors.Wrap(err, "failed to disconnect from voice")
	}
	zlog.Info().Str("guild", e.guildID).Msg("voice: disconnected")
	return nil
}

// ffmpegArgs builds the ffmpeg command line decoding url into raw
// s16le 48kHz stereo PCM on stdout.
func ffmpegArgs(cfg Config, url string) []string {
	args := strings.Fields(cfg.BeforeOptions)
	args = append(args, "-i", url)
	args = append(args, strings.Fields(cfg.Options)...)
	args = append(args,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	return args
}
