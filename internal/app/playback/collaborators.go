package playback

import (
	"time"

	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// SourceID identifies one loaded source within a single decoder.
// Zero is never a valid id.
type SourceID uint64

// TagType is the value type of a stream metadata tag.
type TagType int

const (
	TagString TagType = iota
	TagUint
	TagInt
	TagDouble
	TagBool
)

// Tag is one piece of stream metadata reported by a decoder.
type Tag struct {
	Key   string
	Value string
	Type  TagType
}

// Decoder is one member of the decoder pool.
// Every method returns without waiting on I/O; results are reported through the observer.
// Methods are invoked with the controller lock held, so implementations must never call
// the observer synchronously from inside them.
type Decoder interface {
	// SetSource starts loading item and returns the id its callbacks will carry.
	SetSource(item audioitem.AudioItem) (SourceID, error)
	Play(id SourceID) error
	Pause(id SourceID) error
	Resume(id SourceID) error
	// Stop halts id. The decoder reports OnPlaybackStopped for id unless a finished or
	// error callback was already delivered for it.
	Stop(id SourceID) error
	Offset(id SourceID) time.Duration
	SetObserver(o DecoderObserver)
}

// DecoderObserver receives decoder callbacks.
type DecoderObserver interface {
	OnPlaybackStarted(id SourceID)
	OnPlaybackFinished(id SourceID)
	OnPlaybackStopped(id SourceID)
	OnPlaybackError(id SourceID, errType ErrorType, message string)
	OnBufferUnderrun(id SourceID)
	OnBufferRefilled(id SourceID)
	OnTags(id SourceID, tags []Tag)
}

// FocusObserver receives focus changes for a channel.
type FocusObserver interface {
	OnFocusChanged(focus FocusState)
}

// FocusManager arbitrates the shared audio channel.
// Acquire and release complete asynchronously through the observer.
type FocusManager interface {
	AcquireChannel(channel string, observer FocusObserver) bool
	ReleaseChannel(channel string, observer FocusObserver)
}

// MessageSender delivers outbound events. Send must not block.
type MessageSender interface {
	Send(msg Message)
}

// ExceptionReporter is told about directives that could not be processed.
type ExceptionReporter interface {
	ReportException(messageID string, reason string)
}

// PlaybackRouter is notified each time audio playback takes over.
type PlaybackRouter interface {
	SwitchToDefaultHandler()
}

// ActivityListener observes activity transitions. Listeners are invoked in registration
// order with the controller lock held and must not call back into the controller.
type ActivityListener interface {
	OnActivityChanged(activity Activity, snapshot Context)
}
