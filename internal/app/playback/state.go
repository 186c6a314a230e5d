// Package playback provides the playback controller that drives a queue
// through a single audio engine session at a time.
package playback

// State represents the playback state.
type State int

const (
	StateIdle     State = iota // No session (queue empty, stopped, or left)
	StateStarting              // Head is being resolved or the engine is starting
	StatePlaying               // Session is playing
	StatePaused                // Session is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Outcome describes how an engine session ended.
type Outcome int

const (
	OutcomeFinished Outcome = iota // Stream reached its end
	OutcomeStopped                 // Stopped by skip or leave
	OutcomeErrored                 // Engine failed mid-stream
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeStopped:
		return "stopped"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}
