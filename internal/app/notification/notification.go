package notification

import (
	"time"

	"github.com/osa030/stagebox/internal/domain/track"
)

// Kind identifies what a notification reports.
type Kind int

const (
	KindTrackAdded Kind = iota
	KindNowPlaying
	KindTrackFailed
	KindEngineError
	KindSkipped
	KindQueueComplete
	KindVolumeChanged
	KindLeft
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTrackAdded:
		return "track_added"
	case KindNowPlaying:
		return "now_playing"
	case KindTrackFailed:
		return "track_failed"
	case KindEngineError:
		return "engine_error"
	case KindSkipped:
		return "skipped"
	case KindQueueComplete:
		return "queue_complete"
	case KindVolumeChanged:
		return "volume_changed"
	case KindLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Notification is a guild-scoped message for subscribers.
type Notification struct {
	SequenceNo uint64
	GuildID    string
	Kind       Kind
	Title      string
	Requester  track.Requester
	Position   int   // Queue position for KindTrackAdded
	Volume     int    // Percent for KindVolumeChanged
	Message    string // User-facing reason for failures
	Err        error  // Cause for KindTrackFailed and KindEngineError
	Timestamp  time.Time
}
