// Package track provides the Track domain entity.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Status represents the resolution state of a track.
type Status int

const (
	StatusPending Status = iota // Waiting for the resolver
	StatusReady                 // Playable stream reference available
	StatusFailed                // Resolution failed or the track was rejected
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrAlreadyResolved is returned when a resolved track is resolved again.
var ErrAlreadyResolved = errors.New("track already resolved")

// Info is the metadata produced by a resolver.
type Info struct {
	Title      string        // Display title
	StreamURL  string        // Direct media URL handed to the audio engine
	WebpageURL string        // Canonical page URL
	Uploader   string        // Uploader or channel name
	Duration   time.Duration // Zero for live streams
}

// ResolutionError reports why a query could not be turned into a playable track.
type ResolutionError struct {
	Query string
	Cause error
}

func (e *ResolutionError) Error() string {
	if e.Cause == nil {
		return "cannot resolve " + e.Query
	}
	return "cannot resolve " + e.Query + ": " + e.Cause.Error()
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// Track is a request for a piece of media. It starts Pending and becomes
// Ready or Failed exactly once; after that it never changes.
type Track struct {
	ID    string // Opaque identifier
	Query string // User input (URL or search terms)

	mu     sync.RWMutex
	status Status
	info   Info
	err    error
	done   chan struct{}
}

// New creates a pending track for the given query.
func New(query string) *Track {
	return &Track{
		ID:     uuid.New().String(),
		Query:  query,
		status: StatusPending,
		done:   make(chan struct{}),
	}
}

// NewReady creates a track that is already resolved.
func NewReady(query string, info Info) *Track {
	t := New(query)
	_ = t.MarkReady(info)
	return t
}

// MarkReady stores the resolved metadata.
func (t *Track) MarkReady(info Info) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return ErrAlreadyResolved
	}
	t.info = info
	t.status = StatusReady
	close(t.done)
	return nil
}

// MarkFailed records the failure. Errors that are not already a
// *ResolutionError are wrapped into one.
func (t *Track) MarkFailed(cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return ErrAlreadyResolved
	}
	var re *ResolutionError
	if !errors.As(cause, &re) {
		re = &ResolutionError{Query: t.Query, Cause: cause}
	}
	t.err = re
	t.status = StatusFailed
	close(t.done)
	return nil
}

// Wait blocks until the track leaves Pending. It returns the resolution
// error for failed tracks, or ctx.Err() if the context ends first.
func (t *Track) Wait(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Status returns the current resolution status.
func (t *Track) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Info returns the resolved metadata (zero value while pending).
func (t *Track) Info() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

// Err returns the resolution error, if any.
func (t *Track) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// DisplayTitle returns the title when known, falling back to the query.
func (t *Track) DisplayTitle() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.info.Title != "" {
		return t.info.Title
	}
	return t.Query
}

// Requester represents the person who requested the track.
type Requester struct {
	ID   string // Discord user ID
	Name string // Display name
}

// Entry represents a track in the playback queue.
type Entry struct {
	Seq       uint64    // Insertion sequence number, unique per queue
	Track     *Track    // Requested track
	Requester Requester // Requester info
	AddedAt   time.Time // Time when added to queue
}
