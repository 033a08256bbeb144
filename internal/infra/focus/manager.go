// Package focus provides an in-process arbitrator for the shared audio channel.
package focus

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audioplayer/internal/app/playback"
)

type notification struct {
	observer playback.FocusObserver
	focus    playback.FocusState
	delay    time.Duration
}

type holder struct {
	observer playback.FocusObserver
	focus    playback.FocusState
}

// Manager grants channels to local observers. A simulated foreign activity can push
// holders to the background or take the channel from them. Changes are delivered in
// order on the goroutine running Run, never from inside the calling method.
type Manager struct {
	mu         sync.Mutex
	holders    map[string]*holder
	ducked     bool // A foreign activity is in the foreground
	pending    []notification
	wake       chan struct{}
	grantDelay time.Duration
	closed     bool
}

// Ensure Manager implements the interface.
var _ playback.FocusManager = (*Manager)(nil)

// NewManager creates a focus manager. grantDelay postpones every grant.
func NewManager(grantDelay time.Duration) *Manager {
	return &Manager{
		holders:    make(map[string]*holder),
		wake:       make(chan struct{}, 1),
		grantDelay: grantDelay,
	}
}

// AcquireChannel implements playback.FocusManager.
func (m *Manager) AcquireChannel(channel string, observer playback.FocusObserver) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || channel == "" || observer == nil {
		return false
	}
	level := playback.FocusForeground
	if m.ducked {
		level = playback.FocusBackground
	}
	m.holders[channel] = &holder{observer: observer, focus: level}
	zlog.Debug().Msgf("focus: acquire: channel=%s focus=%s", channel, level)
	m.pushLocked(notification{observer: observer, focus: level, delay: m.grantDelay})
	return true
}

// ReleaseChannel implements playback.FocusManager.
func (m *Manager) ReleaseChannel(channel string, observer playback.FocusObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holders[channel]
	if !ok || h.observer != observer {
		return
	}
	delete(m.holders, channel)
	zlog.Debug().Msgf("focus: release: channel=%s", channel)
	m.pushLocked(notification{observer: observer, focus: playback.FocusNone})
}

// Duck moves every holder to the background, as if another activity took the front.
func (m *Manager) Duck() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ducked = true
	m.setAllLocked(playback.FocusBackground)
}

// Restore returns every holder to the foreground.
func (m *Manager) Restore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ducked = false
	m.setAllLocked(playback.FocusForeground)
}

// Revoke takes the channel from every holder.
func (m *Manager) Revoke() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for channel, h := range m.holders {
		delete(m.holders, channel)
		m.pushLocked(notification{observer: h.observer, focus: playback.FocusNone})
	}
}

// Apply sets the foreign activity level by name: FOREGROUND restores, BACKGROUND
// ducks and NONE revokes.
func (m *Manager) Apply(level playback.FocusState) {
	switch level {
	case playback.FocusForeground:
		m.Restore()
	case playback.FocusBackground:
		m.Duck()
	case playback.FocusNone:
		m.Revoke()
	}
}

// State returns the focus currently granted on channel.
func (m *Manager) State(channel string) playback.FocusState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.holders[channel]; ok {
		return h.focus
	}
	return playback.FocusNone
}

// Run delivers focus changes until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		for {
			n, ok := m.pop()
			if !ok {
				break
			}
			if n.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(n.delay):
				}
			}
			n.observer.OnFocusChanged(n.focus)
		}
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.closed = true
			m.mu.Unlock()
			return
		case <-m.wake:
		}
	}
}

func (m *Manager) setAllLocked(level playback.FocusState) {
	for channel, h := range m.holders {
		if h.focus == level {
			continue
		}
		h.focus = level
		zlog.Debug().Msgf("focus: changed: channel=%s focus=%s", channel, level)
		m.pushLocked(notification{observer: h.observer, focus: level})
	}
}

func (m *Manager) pushLocked(n notification) {
	m.pending = append(m.pending, n)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) pop() (notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return notification{}, false
	}
	n := m.pending[0]
	m.pending = m.pending[1:]
	return n, true
}
