package playback

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	keyStutterDuration      = "stutterDurationInMilliseconds"
	keyMetadata             = "metadata"
	keyCurrentPlaybackState = "currentPlaybackState"
	keyError                = "error"
	keyErrorType            = "type"
	keyErrorMessage         = "message"
)

func (c *Controller) emitLocked(e *Entry, name string, extra map[string]any) {
	c.emitAtLocked(e, name, c.offsetLocked(e), extra)
}

// emitAtLocked sends an event about e, enforcing per-entry ordering:
// progress and metadata wait for PlaybackStarted, NearlyFinished precedes
// Finished, and only the first terminal event is sent.
func (c *Controller) emitAtLocked(e *Entry, name string, offset time.Duration, extra map[string]any) {
	if isTerminal(name) {
		if e.terminal {
			zlog.Debug().Msgf("playback: suppressing duplicate terminal event: name=%s token=%s", name, e.Token())
			return
		}
		e.terminal = true
		e.held = nil
		if name == EventPlaybackFinished && e.started && !e.nearlyFinished {
			c.emitAtLocked(e, EventPlaybackNearlyFinished, offset, nil)
		}
	}
	if name == EventPlaybackNearlyFinished {
		if e.nearlyFinished {
			return
		}
		e.nearlyFinished = true
	}

	payload := map[string]any{
		keyToken:  e.Token(),
		keyOffset: offset.Milliseconds(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	msg := c.newMessageLocked(name, payload)

	if isOrderedAfterStart(name) && !e.started {
		if e.terminal {
			return
		}
		e.held = append(e.held, msg)
		return
	}

	c.sender.Send(msg)
	if name == EventPlaybackStarted {
		e.started = true
		for _, held := range e.held {
			c.sender.Send(held)
		}
		e.held = nil
	}
}

// emitFailedLocked sends PlaybackFailed with the state at the moment of failure.
func (c *Controller) emitFailedLocked(e *Entry, cause error) {
	errType, message := ErrorTypeUnknown, cause.Error()
	var perr *PlaybackError
	if errors.As(cause, &perr) {
		errType, message = perr.Type, perr.Message
	}
	state := c.snapshotLocked()
	c.emitAtLocked(e, EventPlaybackFailed, e.lastOffset, map[string]any{
		keyCurrentPlaybackState: map[string]any{
			keyToken:          state.Token,
			keyOffset:         state.Offset.Milliseconds(),
			keyPlayerActivity: state.Activity.String(),
		},
		keyError: map[string]any{
			keyErrorType:    string(errType),
			keyErrorMessage: message,
		},
	})
}

// sendLocked sends an event that is not tied to an entry.
func (c *Controller) sendLocked(name string, payload map[string]any) {
	c.sender.Send(c.newMessageLocked(name, payload))
}

func (c *Controller) newMessageLocked(name string, payload map[string]any) Message {
	return Message{
		Header: Header{
			Namespace: c.config.Namespace,
			Name:      name,
			MessageID: c.newMessageID(),
		},
		Payload: payload,
	}
}

// tagMetadata converts decoder tags into typed payload values.
func tagMetadata(tags []Tag) map[string]any {
	out := make(map[string]any, len(tags))
	for _, t := range tags {
		out[t.Key] = tagValue(t)
	}
	return out
}

func tagValue(t Tag) any {
	switch t.Type {
	case TagUint:
		if v, err := strconv.ParseUint(t.Value, 10, 64); err == nil {
			return v
		}
	case TagInt:
		if v, err := strconv.ParseInt(t.Value, 10, 64); err == nil {
			return v
		}
	case TagDouble:
		if v, err := strconv.ParseFloat(t.Value, 64); err == nil {
			return v
		}
	case TagBool:
		if v, err := strconv.ParseBool(t.Value); err == nil {
			return v
		}
	}
	return t.Value
}
