package playback

import (
	zlog "github.com/rs/zerolog/log"
)

// OnFocusChanged implements FocusObserver.
func (c *Controller) OnFocusChanged(focus FocusState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if focus == c.focus {
		return
	}
	if focus != FocusNone && c.focus == FocusNone && !c.focusRequested {
		zlog.Debug().Msgf("playback: ignoring unrequested focus: focus=%s", focus)
		return
	}
	zlog.Debug().Msgf("playback: focus changed: from=%s to=%s activity=%s", c.focus, focus, c.activity)
	c.focusRequested = false
	c.focus = focus

	head := c.queue.Head()
	active := head != nil && head.Lifecycle == LifecycleActive

	switch focus {
	case FocusForeground:
		if active && c.activity == ActivityPaused {
			c.resumeLocked(head)
			return
		}
		c.evaluateLocked()
	case FocusBackground:
		if active && head.started && (c.activity == ActivityPlaying || c.activity == ActivityBufferUnderrun) {
			c.pauseLocked(head)
		}
	case FocusNone:
		if active {
			c.stopActiveLocked(head)
			c.discardLocked(c.queue.Clear(), nil)
		}
		c.evaluateLocked()
	}
}

// acquireChannelLocked asks for the content channel. The grant arrives later through
// OnFocusChanged; until then focusRequested is set.
func (c *Controller) acquireChannelLocked() {
	c.focusRequested = true
	if !c.focusManager.AcquireChannel(c.config.Channel, c) {
		zlog.Warn().Msgf("playback: channel acquire rejected: channel=%s", c.config.Channel)
		c.focusRequested = false
	}
}

// releaseChannelLocked gives up the channel, or withdraws a pending request.
func (c *Controller) releaseChannelLocked() {
	if c.focus == FocusNone && !c.focusRequested {
		return
	}
	c.focusManager.ReleaseChannel(c.config.Channel, c)
	c.focus = FocusNone
	c.focusRequested = false
}
