// Package playback provides the playback engine: queue, decoder pool, progress
// reports, event ordering and focus handling behind a single lock.
package playback

// Activity represents the externally observable playback state.
type Activity int

const (
	ActivityIdle           Activity = iota // Nothing has played yet
	ActivityPlaying                        // Head entry is producing audio
	ActivityStopped                        // Playback was stopped or failed
	ActivityPaused                         // Head entry is paused (background focus)
	ActivityBufferUnderrun                 // Head entry is starved of data
	ActivityFinished                       // Head entry played to the end
)

// String returns the string representation of the activity.
func (a Activity) String() string {
	switch a {
	case ActivityIdle:
		return "IDLE"
	case ActivityPlaying:
		return "PLAYING"
	case ActivityStopped:
		return "STOPPED"
	case ActivityPaused:
		return "PAUSED"
	case ActivityBufferUnderrun:
		return "BUFFER_UNDERRUN"
	case ActivityFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// isActive reports whether an entry is currently holding the output.
func (a Activity) isActive() bool {
	return a == ActivityPlaying || a == ActivityPaused || a == ActivityBufferUnderrun
}

// FocusState is the level granted on the content channel.
type FocusState int

const (
	FocusNone       FocusState = iota // Channel not held
	FocusBackground                   // Channel held, another activity in front
	FocusForeground                   // Channel held in front
)

// String returns the string representation of the focus state.
func (f FocusState) String() string {
	switch f {
	case FocusNone:
		return "NONE"
	case FocusBackground:
		return "BACKGROUND"
	case FocusForeground:
		return "FOREGROUND"
	default:
		return "UNKNOWN"
	}
}

// ParseFocusState parses the string form produced by FocusState.String.
func ParseFocusState(s string) (FocusState, bool) {
	switch s {
	case "NONE":
		return FocusNone, true
	case "BACKGROUND":
		return FocusBackground, true
	case "FOREGROUND":
		return FocusForeground, true
	default:
		return FocusNone, false
	}
}
