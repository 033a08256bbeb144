package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/audioplayer/internal/app/playback"
)

type recordingStream struct {
	mu       sync.Mutex
	received []*Notification
	err      error
}

func (s *recordingStream) Send(n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, n)
	return nil
}

func (s *recordingStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *recordingStream) sequence() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.received))
	for _, n := range s.received {
		out = append(out, n.SequenceNo)
	}
	return out
}

func TestManager_DeliversInOrder(t *testing.T) {
	m := NewManager(16)
	stream := &recordingStream{}
	m.Subscribe(stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Send(playback.Message{Header: playback.Header{Name: playback.EventPlaybackStarted}})
	m.ReportException("m-1", "bad")
	m.SwitchToDefaultHandler()
	m.Send(playback.Message{Header: playback.Header{Name: playback.EventPlaybackFinished}})

	require.Eventually(t, func() bool { return stream.count() == 4 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{1, 2, 3, 4}, stream.sequence())

	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.Equal(t, KindEvent, stream.received[0].Kind)
	assert.Equal(t, playback.EventPlaybackStarted, stream.received[0].Event.Header.Name)
	assert.Equal(t, KindException, stream.received[1].Kind)
	assert.Equal(t, "m-1", stream.received[1].Exception.MessageID)
	assert.Equal(t, KindRouter, stream.received[2].Kind)
}

func TestManager_FlushWaitsForDelivery(t *testing.T) {
	m := NewManager(16)
	stream := &recordingStream{}
	m.Subscribe(stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	for i := 0; i < 5; i++ {
		m.Send(playback.Message{Header: playback.Header{Name: playback.EventPlaybackStopped}})
	}

	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 5, stream.count())
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, stream.sequence())
}

func TestManager_FlushWithoutRunTimesOut(t *testing.T) {
	m := NewManager(4)
	m.Send(playback.Message{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Flush(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_DropsWhenQueueFull(t *testing.T) {
	m := NewManager(1)

	m.Send(playback.Message{})
	m.Send(playback.Message{})

	assert.Len(t, m.queue, 1)
}

func TestManager_FailingSubscriberIsRemoved(t *testing.T) {
	m := NewManager(4)
	good := &recordingStream{}
	bad := &recordingStream{err: errors.New("closed")}
	m.Subscribe(good)
	m.Subscribe(bad)
	require.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(&Notification{SequenceNo: 1, Kind: KindRouter})

	assert.Equal(t, 1, good.count())
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_UnsubscribeAndClose(t *testing.T) {
	m := NewManager(4)
	id := m.Subscribe(&recordingStream{})
	m.Subscribe(&recordingStream{})

	m.Unsubscribe(id)
	assert.Equal(t, 1, m.SubscriberCount())

	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}
