package playback

import "github.com/osa030/stagebox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted     EventType = iota // Track started playing
	EventTrackEnded                        // Session ended and the head was removed
	EventTrackSkipped                      // Skip requested for the current track
	EventStateChanged                      // Playback state changed (pause/resume)
	EventResolutionFailed                  // Head could not be resolved and was dropped
	EventEngineError                       // Engine could not start the head
	EventQueueEmpty                        // Queue complete
	EventVolumeChanged                     // Volume changed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventResolutionFailed:
		return "resolution_failed"
	case EventEngineError:
		return "engine_error"
	case EventQueueEmpty:
		return "queue_empty"
	case EventVolumeChanged:
		return "volume_changed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	Entry   *track.Entry // Entry the event refers to (nil for queue events)
	State   State        // Playback state after the event
	Outcome Outcome      // Set for EventTrackEnded
	Volume  int          // Volume percent at the time of the event
	Err     error        // Failure cause for error events
}
