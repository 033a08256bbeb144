// Package notification provides the notification manager for broadcasting outbound
// player messages to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audioplayer/internal/app/playback"
)

// Kind classifies a notification.
type Kind string

const (
	KindEvent     Kind = "event"     // Outbound playback event
	KindException Kind = "exception" // Directive could not be processed
	KindRouter    Kind = "router"    // Audio took over as the default handler
)

// Exception describes a rejected directive.
type Exception struct {
	MessageID string `json:"messageId"`
	Reason    string `json:"reason"`
}

// Notification is one message delivered to subscribers.
type Notification struct {
	SequenceNo uint64            `json:"sequenceNo"`
	Kind       Kind              `json:"kind"`
	Event      *playback.Message `json:"event,omitempty"`
	Exception  *Exception        `json:"exception,omitempty"`

	flushed chan struct{} // Set on flush markers only
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting. It implements
// playback.MessageSender, playback.ExceptionReporter and playback.PlaybackRouter;
// messages are queued without blocking and delivered in order by Run.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex

	queue       chan *Notification
	sendTimeout time.Duration
}

// Ensure Manager implements the playback collaborator interfaces.
var (
	_ playback.MessageSender     = (*Manager)(nil)
	_ playback.ExceptionReporter = (*Manager)(nil)
	_ playback.PlaybackRouter    = (*Manager)(nil)
)

// NewManager creates a new notification manager with the given queue capacity.
func NewManager(bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		queue:         make(chan *Notification, bufferSize),
		sendTimeout:   500 * time.Millisecond,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Send implements playback.MessageSender.
func (m *Manager) Send(msg playback.Message) {
	m.enqueue(&Notification{Kind: KindEvent, Event: &msg})
}

// ReportException implements playback.ExceptionReporter.
func (m *Manager) ReportException(messageID string, reason string) {
	m.enqueue(&Notification{Kind: KindException, Exception: &Exception{MessageID: messageID, Reason: reason}})
}

// SwitchToDefaultHandler implements playback.PlaybackRouter.
func (m *Manager) SwitchToDefaultHandler() {
	zlog.Debug().Msg("notification: audio player is now the default handler")
	m.enqueue(&Notification{Kind: KindRouter})
}

// enqueue stamps n with the next sequence number and queues it without blocking.
func (m *Manager) enqueue(n *Notification) {
	// Numbering and queueing happen together so queue order matches sequence order.
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo

	select {
	case m.queue <- n:
	default:
		zlog.Warn().Msgf("notification: queue full, dropping: sequence_no=%d kind=%s", n.SequenceNo, n.Kind)
	}
}

// Run delivers queued notifications in order until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-m.queue:
			if n.flushed != nil {
				close(n.flushed)
				continue
			}
			m.Broadcast(n)
		}
	}
}

// Flush waits until every notification queued before the call has been delivered.
// Run must be running.
func (m *Manager) Flush(ctx context.Context) error {
	marker := &Notification{flushed: make(chan struct{})}
	select {
	case m.queue <- marker:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "failed to queue flush")
	}
	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "failed to flush notifications")
	}
}

// Broadcast sends a notification to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (m *Manager) Broadcast(notification *Notification) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	// Send to each subscriber in parallel with timeout
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed, unsubscribing: subscription=%s error=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: subscription=%s sequence_no=%d", s.id, notification.SequenceNo)
			}
		}(sub)
	}

	// Wait for all sends to complete or timeout
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
