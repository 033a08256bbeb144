// Package audioitem provides the AudioItem domain entity carried by Play directives.
package audioitem

import (
	"net/url"
	"time"
)

// StreamFormat represents the encoding of a stream.
type StreamFormat string

const (
	StreamFormatAudioMPEG StreamFormat = "AUDIO_MPEG" // mp3, the default
	StreamFormatAudioWAV  StreamFormat = "AUDIO_WAV"
	StreamFormatOther     StreamFormat = "OTHER"
)

// PlayBehavior controls how a Play directive mutates the queue.
type PlayBehavior string

const (
	PlayBehaviorEnqueue         PlayBehavior = "ENQUEUE"
	PlayBehaviorReplaceAll      PlayBehavior = "REPLACE_ALL"
	PlayBehaviorReplaceEnqueued PlayBehavior = "REPLACE_ENQUEUED"
)

// ClearBehavior controls how a ClearQueue directive mutates the queue.
type ClearBehavior string

const (
	ClearBehaviorClearEnqueued ClearBehavior = "CLEAR_ENQUEUED"
	ClearBehaviorClearAll      ClearBehavior = "CLEAR_ALL"
)

// DefaultID is used when a Play directive carries no audio item id.
const DefaultID = "anonymous"

// ProgressReport holds the progress report timing of a stream.
// Zero durations disable the corresponding report.
type ProgressReport struct {
	Delay    time.Duration
	Interval time.Duration
}

// Stream describes the audio source of an item.
type Stream struct {
	URL                   string
	Format                StreamFormat
	Offset                time.Duration // Initial playback offset
	Expiry                time.Time     // Zero if unknown
	ProgressReport        ProgressReport
	Token                 string
	ExpectedPreviousToken string
}

// AudioItem represents one playable unit. It is never mutated after it is enqueued.
type AudioItem struct {
	ID     string
	Stream Stream
}

// IsExpired reports whether the stream expiry has passed at now.
func (i AudioItem) IsExpired(now time.Time) bool {
	return !i.Stream.Expiry.IsZero() && !now.Before(i.Stream.Expiry)
}

// SameSource reports whether two items refer to the same audio.
// Query strings are ignored since they usually carry short lived credentials.
func (i AudioItem) SameSource(other AudioItem) bool {
	if i.ID != other.ID {
		return false
	}
	return stripQuery(i.Stream.URL) == stripQuery(other.Stream.URL)
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
