// Package spotify expands Spotify links into search queries for the resolver.
package spotify

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotSpotifyLink is returned when the input is not a supported Spotify link.
var ErrNotSpotifyLink = errors.New("not a spotify track, playlist or album link")

// Kind is the kind of Spotify object a link points to.
type Kind string

const (
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
	KindAlbum    Kind = "album"
)

// Link is a parsed Spotify link.
type Link struct {
	Kind Kind
	ID   string
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxTracks  int
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
	MaxTracks    int // Upper bound on queries returned for one playlist or album
}

// New creates a new Spotify client using the client credentials flow.
// No user authorization is needed to read public catalog data.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := creds.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to obtain spotify token")
	}

	return newWithClient(spotify.New(creds.Client(ctx)), cfg), nil
}

func newWithClient(client *spotify.Client, cfg Config) *Client {
	maxTracks := cfg.MaxTracks
	if maxTracks <= 0 {
		maxTracks = 50
	}
	return &Client{
		client:     client,
		market:     cfg.Market,
		maxTracks:  maxTracks,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// IsLink reports whether input looks like a Spotify track, playlist or album link.
func IsLink(input string) bool {
	_, err := ParseLink(input)
	return err == nil
}

// ParseLink parses a Spotify URI (spotify:track:ID) or an open.spotify.com URL.
func ParseLink(input string) (Link, error) {
	input = strings.TrimSpace(input)

	// Spotify URI format: spotify:<kind>:<id>
	if strings.HasPrefix(input, "spotify:") {
		parts := strings.Split(input, ":")
		if len(parts) == 3 && parts[2] != "" {
			if kind, ok := parseKind(parts[1]); ok {
				return Link{Kind: kind, ID: parts[2]}, nil
			}
		}
		return Link{}, ErrNotSpotifyLink
	}

	u, err := url.Parse(input)
	if err != nil || u.Host != "open.spotify.com" {
		return Link{}, ErrNotSpotifyLink
	}

	// Path: /<kind>/<id> or /intl-XX/<kind>/<id>
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && strings.HasPrefix(segments[0], "intl-") {
		segments = segments[1:]
	}
	if len(segments) != 2 || segments[1] == "" {
		return Link{}, ErrNotSpotifyLink
	}
	kind, ok := parseKind(segments[0])
	if !ok {
		return Link{}, ErrNotSpotifyLink
	}
	return Link{Kind: kind, ID: segments[1]}, nil
}

func parseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindTrack, KindPlaylist, KindAlbum:
		return Kind(s), true
	default:
		return "", false
	}
}

// Queries expands a Spotify link into yt-dlp search queries, one per track,
// in playlist or album order.
func (c *Client) Queries(ctx context.Context, input string) ([]string, error) {
	link, err := ParseLink(input)
	if err != nil {
		return nil, err
	}

	switch link.Kind {
	case KindTrack:
		q, err := c.trackQuery(ctx, link.ID)
		if err != nil {
			return nil, err
		}
		return []string{q}, nil
	case KindPlaylist:
		return c.playlistQueries(ctx, link.ID)
	case KindAlbum:
		return c.albumQueries(ctx, link.ID)
	default:
		return nil, ErrNotSpotifyLink
	}
}

// marketOptions appends the market to opts when one is configured. Without
// it Spotify returns tracks without market relinking.
func (c *Client) marketOptions(opts ...spotify.RequestOption) []spotify.RequestOption {
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}
	return opts
}

func (c *Client) trackQuery(ctx context.Context, id string) (string, error) {
	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), c.marketOptions()...)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to get track")
	}
	return searchQuery(result.Artists, result.Name), nil
}

func (c *Client) playlistQueries(ctx context.Context, id string) ([]string, error) {
	var queries []string
	offset := 0
	limit := 100

	for len(queries) < c.maxTracks {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				c.marketOptions(spotify.Limit(limit), spotify.Offset(offset))...,
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only process tracks (exclude episodes)
			if item.Track.Track != nil && item.Track.Track.Name != "" {
				queries = append(queries, searchQuery(item.Track.Track.Artists, item.Track.Track.Name))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return truncate(queries, c.maxTracks), nil
}

func (c *Client) albumQueries(ctx context.Context, id string) ([]string, error) {
	var queries []string
	offset := 0
	limit := 50

	for len(queries) < c.maxTracks {
		var page *spotify.SimpleTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				c.marketOptions(spotify.Limit(limit), spotify.Offset(offset))...,
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}

		for _, t := range page.Tracks {
			queries = append(queries, searchQuery(t.Artists, t.Name))
		}

		if len(page.Tracks) < limit {
			break
		}
		offset += limit
	}

	return truncate(queries, c.maxTracks), nil
}

// searchQuery builds "ytsearch1:<artist> - <title>" from the main artist.
func searchQuery(artists []spotify.SimpleArtist, name string) string {
	if len(artists) == 0 || artists[0].Name == "" {
		return "ytsearch1:" + name
	}
	return "ytsearch1:" + artists[0].Name + " - " + name
}

func truncate(queries []string, n int) []string {
	if len(queries) > n {
		return queries[:n]
	}
	return queries
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
