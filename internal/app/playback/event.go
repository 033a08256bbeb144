package playback

import "encoding/json"

// DefaultNamespace is the header namespace of every outbound event.
const DefaultNamespace = "AudioPlayer"

// Event names.
const (
	EventPlaybackStarted               = "PlaybackStarted"
	EventPlaybackNearlyFinished        = "PlaybackNearlyFinished"
	EventPlaybackFinished              = "PlaybackFinished"
	EventPlaybackStopped               = "PlaybackStopped"
	EventPlaybackPaused                = "PlaybackPaused"
	EventPlaybackResumed               = "PlaybackResumed"
	EventPlaybackFailed                = "PlaybackFailed"
	EventPlaybackStutterStarted        = "PlaybackStutterStarted"
	EventPlaybackStutterFinished       = "PlaybackStutterFinished"
	EventProgressReportDelayElapsed    = "ProgressReportDelayElapsed"
	EventProgressReportIntervalElapsed = "ProgressReportIntervalElapsed"
	EventStreamMetadataExtracted       = "StreamMetadataExtracted"
	EventPlaybackQueueCleared          = "PlaybackQueueCleared"
)

// Payload keys.
const (
	keyToken          = "token"
	keyOffset         = "offsetInMilliseconds"
	keyPlayerActivity = "playerActivity"
)

// Header identifies an outbound message.
type Header struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	MessageID string `json:"messageId"`
}

// Message is one outbound event. Payload values are copies taken at emission time.
type Message struct {
	Header  Header         `json:"header"`
	Payload map[string]any `json:"payload"`
}

// MarshalJSON renders the message envelope; an absent payload encodes as {}.
func (m Message) MarshalJSON() ([]byte, error) {
	type envelope Message
	if m.Payload == nil {
		m.Payload = map[string]any{}
	}
	return json.Marshal(envelope(m))
}

// Token returns the token carried by the message payload, if any.
func (m Message) Token() string {
	s, _ := m.Payload[keyToken].(string)
	return s
}

// isOrderedAfterStart reports whether an event must not precede PlaybackStarted.
func isOrderedAfterStart(name string) bool {
	switch name {
	case EventProgressReportDelayElapsed, EventProgressReportIntervalElapsed, EventStreamMetadataExtracted:
		return true
	default:
		return false
	}
}

func isTerminal(name string) bool {
	switch name {
	case EventPlaybackFinished, EventPlaybackStopped, EventPlaybackFailed:
		return true
	default:
		return false
	}
}
