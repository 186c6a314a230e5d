// Package ytdlp resolves user queries into playable stream references with yt-dlp.
package ytdlp

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/stagebox/internal/domain/track"
)

// printTemplate is the --print template; fields are tab separated.
const printTemplate = "%(title)s\t%(url)s\t%(webpage_url)s\t%(uploader)s\t%(duration)s"

// ErrNoStream is returned when yt-dlp reports no playable stream.
var ErrNoStream = errors.New("no playable stream found")

// Config represents resolver configuration.
type Config struct {
	Binary        string // Path to yt-dlp; empty uses PATH
	Format        string
	DefaultSearch string
	SourceAddress string
}

// Resolver resolves queries by running yt-dlp.
type Resolver struct {
	cfg Config
}

// New creates a new resolver.
func New(cfg Config) *Resolver {
	if cfg.Format == "" {
		cfg.Format = "bestaudio/best"
	}
	if cfg.DefaultSearch == "" {
		cfg.DefaultSearch = "auto"
	}
	return &Resolver{cfg: cfg}
}

func (r *Resolver) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoPlaylist().
		NoCheckCertificates().
		Format(r.cfg.Format).
		DefaultSearch(r.cfg.DefaultSearch).
		Print(printTemplate)

	if r.cfg.Binary != "" {
		cmd.SetExecutable(r.cfg.Binary)
	}
	if r.cfg.SourceAddress != "" {
		cmd.SourceAddress(r.cfg.SourceAddress)
	}
	return cmd
}

// Resolve turns a URL or search terms into track metadata. Failures are
// returned as *track.ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, query string) (track.Info, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.Info{}, &track.ResolutionError{Query: query, Cause: errors.New("empty query")}
	}

	start := time.Now()
	res, err := r.command().Run(ctx, query)
	if err != nil {
		cause := errors.Wrap(err, "yt-dlp failed")
		if res != nil {
			if msg := lastLine(res.Stderr); msg != "" {
				cause = errors.Wrap(err, msg)
			}
		}
		zlog.Debug().Err(err).Str("query", query).Msg("ytdlp: resolve failed")
		return track.Info{}, &track.ResolutionError{Query: query, Cause: cause}
	}

	info, err := parsePrintOutput(res.Stdout)
	if err != nil {
		return track.Info{}, &track.ResolutionError{Query: query, Cause: err}
	}
	if info.Title == "" {
		info.Title = query
	}

	zlog.Debug().Msgf("ytdlp: resolved %q to %q in %s", query, info.Title, time.Since(start))
	return info, nil
}

// parsePrintOutput parses the first complete line printed with printTemplate.
func parsePrintOutput(stdout string) (track.Info, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < 5 {
			continue
		}

		streamURL := na(fields[1])
		if streamURL == "" {
			continue
		}

		return track.Info{
			Title:      na(fields[0]),
			StreamURL:  streamURL,
			WebpageURL: na(fields[2]),
			Uploader:   na(fields[3]),
			Duration:   parseDuration(fields[4]),
		}, nil
	}
	return track.Info{}, ErrNoStream
}

// na maps yt-dlp's "NA" placeholder to the empty string.
func na(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

// parseDuration parses seconds as printed by yt-dlp ("212", "212.5" or "NA").
func parseDuration(s string) time.Duration {
	secs, err := strconv.ParseFloat(na(s), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
