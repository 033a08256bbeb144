package focus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/audioplayer/internal/app/playback"
)

type recordingObserver struct {
	mu      sync.Mutex
	changes []playback.FocusState
}

func (o *recordingObserver) OnFocusChanged(f playback.FocusState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, f)
}

func (o *recordingObserver) list() []playback.FocusState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]playback.FocusState, len(o.changes))
	copy(out, o.changes)
	return out
}

func TestManager_NothingDeliveredWithoutRun(t *testing.T) {
	m := NewManager(0)
	obs := &recordingObserver{}

	require.True(t, m.AcquireChannel("Content", obs))

	assert.Empty(t, obs.list(), "grants are asynchronous")
	assert.Equal(t, playback.FocusForeground, m.State("Content"))
}

func TestManager_DeliversInOrder(t *testing.T) {
	m := NewManager(0)
	obs := &recordingObserver{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.True(t, m.AcquireChannel("Content", obs))
	m.Duck()
	m.Restore()
	m.ReleaseChannel("Content", obs)

	expected := []playback.FocusState{
		playback.FocusForeground,
		playback.FocusBackground,
		playback.FocusForeground,
		playback.FocusNone,
	}
	require.Eventually(t, func() bool { return len(obs.list()) == len(expected) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, expected, obs.list())
	assert.Equal(t, playback.FocusNone, m.State("Content"))
}

func TestManager_AcquireWhileDucked(t *testing.T) {
	m := NewManager(0)
	m.Duck()

	require.True(t, m.AcquireChannel("Content", &recordingObserver{}))

	assert.Equal(t, playback.FocusBackground, m.State("Content"))
}

func TestManager_Apply(t *testing.T) {
	m := NewManager(0)
	obs := &recordingObserver{}
	require.True(t, m.AcquireChannel("Content", obs))

	m.Apply(playback.FocusBackground)
	assert.Equal(t, playback.FocusBackground, m.State("Content"))

	m.Apply(playback.FocusForeground)
	assert.Equal(t, playback.FocusForeground, m.State("Content"))

	m.Apply(playback.FocusNone)
	assert.Equal(t, playback.FocusNone, m.State("Content"))
}

func TestManager_ReleaseByOtherObserverIgnored(t *testing.T) {
	m := NewManager(0)
	owner := &recordingObserver{}
	require.True(t, m.AcquireChannel("Content", owner))

	m.ReleaseChannel("Content", &recordingObserver{})

	assert.Equal(t, playback.FocusForeground, m.State("Content"))
}

func TestManager_RejectsInvalidAcquire(t *testing.T) {
	m := NewManager(0)
	assert.False(t, m.AcquireChannel("", &recordingObserver{}))
	assert.False(t, m.AcquireChannel("Content", nil))
}
