// Package playback starts playback and queues tracks on the user's active device.
package playback

// State is what the controller last did on the active device.
type State int

const (
	StateIdle    State = iota // Nothing started from this session
	StatePlaying              // Playback was started
	StateSkipped              // Last request found no active device
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}
