package playback

import (
	"time"

	zlog "github.com/rs/zerolog/log"
)

// slotObserver routes the callbacks of one pool decoder into the controller.
type slotObserver struct {
	c    *Controller
	slot int
}

func (o *slotObserver) OnPlaybackStarted(id SourceID)  { o.c.onStarted(o.slot, id) }
func (o *slotObserver) OnPlaybackFinished(id SourceID) { o.c.onFinished(o.slot, id) }
func (o *slotObserver) OnPlaybackStopped(id SourceID)  { o.c.onStopped(o.slot, id) }
func (o *slotObserver) OnBufferUnderrun(id SourceID)   { o.c.onBufferUnderrun(o.slot, id) }
func (o *slotObserver) OnBufferRefilled(id SourceID)   { o.c.onBufferRefilled(o.slot, id) }
func (o *slotObserver) OnTags(id SourceID, tags []Tag) { o.c.onTags(o.slot, id, tags) }

func (o *slotObserver) OnPlaybackError(id SourceID, errType ErrorType, message string) {
	o.c.onError(o.slot, id, errType, message)
}

func (c *Controller) onStarted(slot int, id SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.pool.lookup(slot, id)
	if e == nil || e.Lifecycle != LifecycleActive || e.started {
		zlog.Debug().Msgf("playback: stale started callback: slot=%d source=%d", slot, id)
		return
	}
	if c.focus == FocusNone {
		zlog.Debug().Msgf("playback: started without focus, stopping: token=%s", e.Token())
		c.stopActiveLocked(e)
		c.evaluateLocked()
		return
	}

	e.progress = newProgressTimer(c.config.Clock, e.Item.Stream.ProgressReport, e.Item.Stream.Offset, c.progressFunc(e))
	c.setActivityLocked(ActivityPlaying)
	c.emitAtLocked(e, EventPlaybackStarted, e.Item.Stream.Offset, nil)
	e.progress.resume()
	c.router.SwitchToDefaultHandler()

	if c.focus == FocusBackground {
		c.pauseLocked(e)
	}
	c.maybeNearlyFinishedLocked(e)
}

func (c *Controller) onFinished(slot int, id SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool.settle(slot, id) {
		c.evaluateLocked()
		return
	}
	e := c.pool.lookup(slot, id)
	if e == nil {
		zlog.Debug().Msgf("playback: stale finished callback: slot=%d source=%d", slot, id)
		return
	}
	if e.Lifecycle != LifecycleActive {
		c.recordLoadFailureLocked(e, &PlaybackError{
			Kind:    ErrDecoderLoad,
			Type:    ErrorTypeUnknown,
			Message: "source ended before playback",
		})
		return
	}

	if e.progress != nil {
		e.progress.cancel()
	}
	e.lastOffset = c.offsetLocked(e)
	c.pool.release(e)
	e.Lifecycle = LifecycleFinished
	// The active entry is always the head.
	c.queue.Advance()
	zlog.Debug().Msgf("playback: finished: token=%s offset=%v remaining=%d", e.Token(), e.lastOffset, c.queue.Len())

	c.emitAtLocked(e, EventPlaybackFinished, e.lastOffset, nil)
	c.setActivityLocked(ActivityFinished)
	c.evaluateLocked()
}

func (c *Controller) onStopped(slot int, id SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool.settle(slot, id) {
		c.evaluateLocked()
		return
	}
	e := c.pool.lookup(slot, id)
	if e == nil {
		zlog.Debug().Msgf("playback: stale stopped callback: slot=%d source=%d", slot, id)
		return
	}

	// Stopped by the decoder itself.
	c.pool.release(e)
	if e.Lifecycle == LifecycleActive {
		c.stopActiveLocked(e)
	} else {
		e.Source = 0
		e.Lifecycle = LifecyclePending
	}
	c.evaluateLocked()
}

func (c *Controller) onError(slot int, id SourceID, errType ErrorType, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool.settle(slot, id) {
		zlog.Debug().Msgf("playback: error after stop ignored: slot=%d source=%d error=%s", slot, id, message)
		c.evaluateLocked()
		return
	}
	e := c.pool.lookup(slot, id)
	if e == nil {
		zlog.Debug().Msgf("playback: stale error callback: slot=%d source=%d", slot, id)
		return
	}

	if e.Lifecycle == LifecycleActive {
		c.failActiveLocked(e, &PlaybackError{Kind: ErrDecoderPlayback, Type: errType, Message: message}, true)
		return
	}
	c.recordLoadFailureLocked(e, &PlaybackError{Kind: ErrDecoderLoad, Type: errType, Message: message})
}

// recordLoadFailureLocked keeps the failure of a buffering entry until it becomes active.
func (c *Controller) recordLoadFailureLocked(e *Entry, err *PlaybackError) {
	zlog.Debug().Msgf("playback: buffering failed: token=%s error=%v", e.Token(), err)
	e.Err = err
	c.pool.release(e)
	e.Source = 0
	e.Lifecycle = LifecyclePending
	c.evaluateLocked()
}

func (c *Controller) onBufferUnderrun(slot int, id SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.pool.lookup(slot, id)
	if e == nil || !e.started || e.Lifecycle != LifecycleActive || c.activity != ActivityPlaying {
		return
	}
	e.stutterSince = c.config.Clock.Now()
	e.progress.suspend()
	c.setActivityLocked(ActivityBufferUnderrun)
	c.emitLocked(e, EventPlaybackStutterStarted, nil)
}

func (c *Controller) onBufferRefilled(slot int, id SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.pool.lookup(slot, id)
	if e == nil || e.stutterSince.IsZero() || e.Lifecycle != LifecycleActive {
		return
	}
	stutter := c.config.Clock.Now().Sub(e.stutterSince)
	e.stutterSince = time.Time{}
	if c.activity == ActivityBufferUnderrun {
		e.progress.resume()
		c.setActivityLocked(ActivityPlaying)
	}
	c.emitLocked(e, EventPlaybackStutterFinished, map[string]any{
		keyStutterDuration: stutter.Milliseconds(),
	})
}

func (c *Controller) onTags(slot int, id SourceID, tags []Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.pool.lookup(slot, id)
	if e == nil || len(tags) == 0 {
		return
	}
	c.emitLocked(e, EventStreamMetadataExtracted, map[string]any{
		keyMetadata: tagMetadata(tags),
	})
}

// progressFunc returns the timer callback for e's progress reports.
func (c *Controller) progressFunc(e *Entry) func(progressKind, uint64) {
	return func(kind progressKind, gen uint64) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if e.progress == nil || e.Lifecycle != LifecycleActive {
			return
		}
		offset, ok := e.progress.fired(kind, gen)
		if !ok {
			return
		}
		name := EventProgressReportIntervalElapsed
		if kind == progressDelay {
			name = EventProgressReportDelayElapsed
		}
		c.emitAtLocked(e, name, offset, nil)
	}
}
