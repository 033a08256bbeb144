package playback

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// DirectiveKind identifies the instruction carried by a Directive.
type DirectiveKind int

const (
	DirectivePlay DirectiveKind = iota
	DirectiveStop
	DirectiveClearQueue
)

// String returns the directive name.
func (k DirectiveKind) String() string {
	switch k {
	case DirectivePlay:
		return "Play"
	case DirectiveStop:
		return "Stop"
	case DirectiveClearQueue:
		return "ClearQueue"
	default:
		return "Unknown"
	}
}

// Directive is a parsed instruction from the controlling service.
type Directive struct {
	MessageID     string
	Kind          DirectiveKind
	PlayBehavior  audioitem.PlayBehavior  // Play only
	Item          audioitem.AudioItem     // Play only
	ClearBehavior audioitem.ClearBehavior // ClearQueue only
}

// PreHandle stages d until Handle or Cancel is called with its message id. A Play
// directive creates its entry and starts buffering here. A ClearQueue directive is
// executed here so a Play staged behind it keeps its buffered decoder.
func (c *Controller) PreHandle(d Directive) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, ok := c.staged[d.MessageID]; ok {
		c.reporter.ReportException(d.MessageID, ErrDuplicateMessageID.Error())
		return errors.Wrapf(ErrDuplicateMessageID, "message_id=%s", d.MessageID)
	}
	c.staged[d.MessageID] = d
	zlog.Debug().Msgf("playback: staged directive: name=%s message_id=%s", d.Kind, d.MessageID)

	switch d.Kind {
	case DirectivePlay:
		c.preparePlayLocked(d)
	case DirectiveClearQueue:
		c.handleClearLocked(d.ClearBehavior)
	}
	return nil
}

// Handle executes a staged directive. It returns false if the directive is unknown,
// was cancelled, or was dropped.
func (c *Controller) Handle(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.staged[messageID]
	if !ok {
		zlog.Debug().Msgf("playback: handle of unknown directive: message_id=%s", messageID)
		return false
	}
	delete(c.staged, messageID)
	if c.closed {
		return false
	}

	switch d.Kind {
	case DirectivePlay:
		return c.handlePlayLocked(c.prepared.Remove(messageID), d.PlayBehavior)
	case DirectiveStop:
		return c.handleStopLocked()
	case DirectiveClearQueue:
		return true
	default:
		c.reporter.ReportException(messageID, ErrUnknownDirective.Error())
		return false
	}
}

// Cancel discards a staged directive together with the entry it created.
func (c *Controller) Cancel(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.staged[messageID]; !ok {
		return
	}
	delete(c.staged, messageID)
	zlog.Debug().Msgf("playback: cancelled directive: message_id=%s", messageID)

	if e := c.prepared.Remove(messageID); e != nil {
		c.pool.stop(e)
		c.preBufferLocked()
	}
}

// HandleImmediately stages and executes d in one step.
func (c *Controller) HandleImmediately(d Directive) bool {
	if err := c.PreHandle(d); err != nil {
		zlog.Warn().Msgf("playback: directive rejected: message_id=%s error=%v", d.MessageID, err)
		return false
	}
	return c.Handle(d.MessageID)
}
