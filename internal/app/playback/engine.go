package playback

import (
	"context"

	"github.com/osa030/stagebox/internal/domain/track"
)

// Session is one playback act of the engine.
type Session interface {
	// Stop ends the session. The engine still reports the end through the
	// callback given to Start. Calling Stop more than once is allowed.
	Stop()
	// SetPaused pauses or resumes output. Must not block.
	SetPaused(paused bool)
	// SetVolume sets the linear output gain (0.0 - 2.0). Must not block.
	SetVolume(volume float64)
}

// Engine turns a resolved track into audio at the playback destination.
type Engine interface {
	// Start begins playing t at the given volume. ctx bounds the start only,
	// not the session. If Start returns a nil error, onEnd is called exactly
	// once when the session ends, from any goroutine.
	Start(ctx context.Context, t *track.Track, volume float64, onEnd func(Outcome, error)) (Session, error)
	// Release gives up the playback destination.
	Release() error
}
