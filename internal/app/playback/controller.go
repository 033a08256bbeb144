package playback

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// DefaultChannel is the focus channel requested for content playback.
const DefaultChannel = "Content"

// Config holds controller configuration.
type Config struct {
	Namespace string // Header namespace of outbound events
	Channel   string // Channel requested from the focus manager
	Clock     Clock  // Time source for progress reports
}

// Collaborators are the external components the controller drives.
type Collaborators struct {
	Decoders []Decoder // One per pool slot
	Focus    FocusManager
	Sender   MessageSender
	Reporter ExceptionReporter // Optional
	Router   PlaybackRouter    // Optional
}

// Controller is the playback state machine. Queue, decoder pool, activity,
// progress timers and event ordering are all guarded by one mutex.
type Controller struct {
	mu sync.Mutex

	// Queue management
	queue    *Queue
	prepared *Queue // Play entries created at pre-handle, not yet handled
	pool     *pool
	current *Entry // Last activated entry, reported in snapshots

	// State
	activity       Activity
	focus          FocusState
	focusRequested bool // Acquire issued, grant not yet received
	closed         bool

	staged    map[string]Directive
	listeners []ActivityListener

	focusManager FocusManager
	sender       MessageSender
	reporter     ExceptionReporter
	router       PlaybackRouter

	config Config
}

// NewController creates a new playback controller over the given decoders.
func NewController(config Config, collab Collaborators) (*Controller, error) {
	if len(collab.Decoders) == 0 {
		return nil, ErrNoDecoders
	}
	if collab.Focus == nil {
		return nil, errors.New("focus manager is required")
	}
	if collab.Sender == nil {
		return nil, errors.New("message sender is required")
	}
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}
	if config.Clock == nil {
		config.Clock = SystemClock()
	}
	if collab.Reporter == nil {
		collab.Reporter = nopReporter{}
	}
	if collab.Router == nil {
		collab.Router = nopRouter{}
	}

	c := &Controller{
		queue:        NewQueue(),
		prepared:     NewQueue(),
		pool:         newPool(collab.Decoders),
		activity:     ActivityIdle,
		focus:        FocusNone,
		staged:       make(map[string]Directive),
		focusManager: collab.Focus,
		sender:       collab.Sender,
		reporter:     collab.Reporter,
		router:       collab.Router,
		config:       config,
	}
	for i, d := range collab.Decoders {
		d.SetObserver(&slotObserver{c: c, slot: i})
	}
	return c, nil
}

// AddListener registers an activity listener.
func (c *Controller) AddListener(l ActivityListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Activity returns the current activity.
func (c *Controller) Activity() Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activity
}

// Snapshot returns a freshly built playback context.
func (c *Controller) Snapshot() Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// EntryStatus describes one queued entry.
type EntryStatus struct {
	MessageID string `json:"messageId"`
	Token     string `json:"token"`
	Lifecycle string `json:"lifecycle"`
	Slot      int    `json:"slot"`
	Failed    bool   `json:"failed"`
}

// Status is a detailed view of the controller used by the control API.
type Status struct {
	Context Context       `json:"context"`
	Focus   string        `json:"focus"`
	Queue   []EntryStatus `json:"queue"`
	Idle    int           `json:"idleDecoders"`
}

// Status returns the current status including the queue.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Context: c.snapshotLocked(),
		Focus:   c.focus.String(),
		Queue:   make([]EntryStatus, 0, c.queue.Len()),
		Idle:    c.pool.idleCount(),
	}
	for _, e := range c.queue.Entries() {
		st.Queue = append(st.Queue, EntryStatus{
			MessageID: e.MessageID,
			Token:     e.Token(),
			Lifecycle: e.Lifecycle.String(),
			Slot:      e.Slot,
			Failed:    e.Err != nil,
		})
	}
	return st
}

// Close stops playback, drops the queue and gives up the channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if head := c.queue.Head(); head != nil && head.Lifecycle == LifecycleActive {
		c.stopActiveLocked(head)
	}
	c.discardLocked(c.queue.Clear(), nil)
	c.discardLocked(c.prepared.Clear(), nil)
	c.releaseChannelLocked()
	c.staged = make(map[string]Directive)
	c.closed = true
}

// preparePlayLocked creates the entry of a Play directive and starts buffering it.
// The entry joins the queue when the directive is handled.
func (c *Controller) preparePlayLocked(d Directive) {
	if expected := d.Item.Stream.ExpectedPreviousToken; expected != "" {
		if previous := c.previousTokenLocked(); previous != expected {
			zlog.Info().Msgf("playback: dropping play: reason=unexpectedPreviousToken previous=%s expected=%s",
				previous, expected)
			return
		}
	}
	c.prepared.Enqueue(newEntry(d.MessageID, d.Item))
	c.preBufferLocked()
}

// handlePlayLocked applies a Play directive to the queue. e is nil when the
// directive was dropped at pre-handle.
func (c *Controller) handlePlayLocked(e *Entry, behavior audioitem.PlayBehavior) bool {
	if e == nil {
		return false
	}
	switch behavior {
	case audioitem.PlayBehaviorReplaceAll:
		c.discardLocked(c.queue.ReplaceAll(e), e)
	case audioitem.PlayBehaviorReplaceEnqueued:
		c.discardLocked(c.queue.ReplaceEnqueued(e), e)
	default:
		c.queue.Enqueue(e)
	}
	zlog.Debug().Msgf("playback: queued: token=%s behavior=%s queue_size=%d", e.Token(), behavior, c.queue.Len())

	if c.focus == FocusNone && !c.focusRequested {
		c.acquireChannelLocked()
	}
	c.evaluateLocked()
	return true
}

// handleStopLocked stops the active entry and gives up the channel.
func (c *Controller) handleStopLocked() bool {
	head := c.queue.Head()
	if head == nil || head.Lifecycle != LifecycleActive {
		return true
	}
	c.stopActiveLocked(head)
	c.releaseChannelLocked()
	c.evaluateLocked()
	return true
}

// handleClearLocked applies a ClearQueue directive.
func (c *Controller) handleClearLocked(behavior audioitem.ClearBehavior) {
	if behavior == audioitem.ClearBehaviorClearAll {
		if head := c.queue.Head(); head != nil && head.Lifecycle == LifecycleActive {
			c.stopActiveLocked(head)
		}
		c.discardLocked(c.queue.Clear(), nil)
	} else {
		c.discardLocked(c.queue.ClearEnqueued(), nil)
	}
	c.sendLocked(EventPlaybackQueueCleared, map[string]any{})
	c.evaluateLocked()
}

// previousTokenLocked returns the token an incoming item must follow.
func (c *Controller) previousTokenLocked() string {
	if tail := c.prepared.Tail(); tail != nil {
		return tail.Token()
	}
	if tail := c.queue.Tail(); tail != nil {
		return tail.Token()
	}
	if c.current != nil {
		return c.current.Token()
	}
	return ""
}

// discardLocked disposes of entries removed from the queue. A buffered entry with the
// same source as replacement hands its decoder over instead of being stopped.
func (c *Controller) discardLocked(discarded []*Entry, replacement *Entry) {
	for _, old := range discarded {
		if old.Lifecycle == LifecycleActive {
			c.stopActiveLocked(old)
			continue
		}
		if replacement != nil && replacement.Slot < 0 && old.isBuffered() && old.Item.SameSource(replacement.Item) {
			zlog.Debug().Msgf("playback: reusing buffered source: item=%s slot=%d source=%d", old.Item.ID, old.Slot, old.Source)
			c.pool.transfer(old, replacement)
			continue
		}
		c.pool.stop(old)
	}
}

// evaluateLocked loads what can be loaded and starts the head when focus allows it.
func (c *Controller) evaluateLocked() {
	if c.closed {
		return
	}
	c.preBufferLocked()

	head := c.queue.Head()
	if head == nil {
		if !c.activity.isActive() {
			c.releaseChannelLocked()
		}
		return
	}
	if head.Lifecycle == LifecycleActive {
		c.maybeNearlyFinishedLocked(head)
		return
	}
	if c.focus != FocusForeground {
		return
	}
	c.activateLocked(head)
}

// preBufferLocked assigns idle decoders to pending entries in queue order, then to
// prepared entries in pre-handle order.
func (c *Controller) preBufferLocked() {
	for _, e := range c.queue.Entries() {
		if !c.bufferLocked(e) {
			return
		}
	}
	for _, e := range c.prepared.Entries() {
		// A replace may hand the queued decoder over when handled.
		if c.bufferedInQueueLocked(e.Item) {
			continue
		}
		if !c.bufferLocked(e) {
			return
		}
	}
}

// bufferLocked loads e if it is waiting for a decoder. It returns false once the pool is exhausted.
func (c *Controller) bufferLocked(e *Entry) bool {
	if e.Slot >= 0 || e.Err != nil || e.Lifecycle != LifecyclePending {
		return true
	}
	if _, err := c.pool.acquire(e); err != nil {
		zlog.Debug().Msgf("playback: deferring load: token=%s reason=%v", e.Token(), err)
		return false
	}
	c.loadLocked(e)
	return true
}

func (c *Controller) bufferedInQueueLocked(item audioitem.AudioItem) bool {
	for _, e := range c.queue.Entries() {
		if e.isBuffered() && e.Item.SameSource(item) {
			return true
		}
	}
	return false
}

func (c *Controller) loadLocked(e *Entry) {
	d := c.pool.decoderOf(e)
	id, err := d.SetSource(e.Item)
	if err != nil {
		zlog.Warn().Msgf("playback: load failed: token=%s error=%v", e.Token(), err)
		e.Err = &PlaybackError{Kind: ErrDecoderLoad, Type: ErrorTypeInternalDeviceError, Message: err.Error()}
		c.pool.release(e)
		return
	}
	e.Source = id
	e.Lifecycle = LifecycleLoading
	zlog.Debug().Msgf("playback: loading: token=%s slot=%d source=%d", e.Token(), e.Slot, id)
}

// activateLocked issues play for the head, or surfaces its recorded load failure.
func (c *Controller) activateLocked(head *Entry) {
	if head.Err != nil {
		head.Lifecycle = LifecycleActive
		c.current = head
		c.failActiveLocked(head, head.Err, true)
		return
	}
	if !head.isBuffered() {
		return
	}
	head.Lifecycle = LifecycleActive
	c.current = head
	if err := c.pool.decoderOf(head).Play(head.Source); err != nil {
		c.failActiveLocked(head, &PlaybackError{
			Kind:    ErrDecoderPlayback,
			Type:    ErrorTypeInternalDeviceError,
			Message: err.Error(),
		}, false)
		return
	}
	zlog.Debug().Msgf("playback: play issued: token=%s slot=%d source=%d", head.Token(), head.Slot, head.Source)
}

// stopActiveLocked stops the active entry and removes it from the queue.
func (c *Controller) stopActiveLocked(e *Entry) {
	if e.progress != nil {
		e.progress.cancel()
	}
	e.lastOffset = c.offsetLocked(e)
	c.pool.stop(e)
	e.Lifecycle = LifecycleStopped
	c.queue.Delete(e)
	if e.started {
		c.emitAtLocked(e, EventPlaybackStopped, e.lastOffset, nil)
	}
	if c.activity.isActive() {
		c.setActivityLocked(ActivityStopped)
	}
}

// failActiveLocked ends the active entry with a failure. terminal is true when the
// decoder has already reported the end of the source.
func (c *Controller) failActiveLocked(e *Entry, cause error, terminal bool) {
	if e.progress != nil {
		e.progress.cancel()
	}
	e.lastOffset = c.offsetLocked(e)
	if terminal {
		c.pool.release(e)
	} else {
		c.pool.stop(e)
	}
	e.Lifecycle = LifecycleErrored
	c.queue.Delete(e)
	zlog.Warn().Msgf("playback: failed: token=%s error=%v", e.Token(), cause)
	c.emitFailedLocked(e, cause)
	c.setActivityLocked(ActivityStopped)
	c.releaseChannelLocked()
	c.evaluateLocked()
}

func (c *Controller) pauseLocked(e *Entry) {
	if err := c.pool.decoderOf(e).Pause(e.Source); err != nil {
		zlog.Warn().Msgf("playback: pause failed: token=%s error=%v", e.Token(), err)
	}
	e.progress.suspend()
	c.setActivityLocked(ActivityPaused)
	c.emitLocked(e, EventPlaybackPaused, nil)
}

func (c *Controller) resumeLocked(e *Entry) {
	if err := c.pool.decoderOf(e).Resume(e.Source); err != nil {
		zlog.Warn().Msgf("playback: resume failed: token=%s error=%v", e.Token(), err)
	}
	e.progress.resume()
	c.setActivityLocked(ActivityPlaying)
	c.emitLocked(e, EventPlaybackResumed, nil)
}

// maybeNearlyFinishedLocked reports that the next item may be sent once a decoder is idle.
func (c *Controller) maybeNearlyFinishedLocked(head *Entry) {
	if !head.started || head.nearlyFinished || head.terminal {
		return
	}
	if c.pool.idleCount() == 0 {
		return
	}
	c.emitLocked(head, EventPlaybackNearlyFinished, nil)
}

func (c *Controller) setActivityLocked(a Activity) {
	if c.activity == a {
		return
	}
	zlog.Debug().Msgf("playback: activity changed: from=%s to=%s", c.activity, a)
	c.activity = a
	snapshot := c.snapshotLocked()
	for _, l := range c.listeners {
		l.OnActivityChanged(a, snapshot)
	}
}

func (c *Controller) snapshotLocked() Context {
	ctx := Context{Activity: c.activity}
	if c.current != nil {
		ctx.Token = c.current.Token()
		ctx.Offset = c.offsetLocked(c.current)
	}
	return ctx
}

// offsetLocked returns the live decoder offset of a started entry, else its last known offset.
func (c *Controller) offsetLocked(e *Entry) time.Duration {
	if e.started && e.Lifecycle == LifecycleActive {
		if d := c.pool.decoderOf(e); d != nil {
			e.lastOffset = d.Offset(e.Source)
		}
	}
	return e.lastOffset
}

func (c *Controller) newMessageID() string {
	return uuid.New().String()
}

type nopReporter struct{}

func (nopReporter) ReportException(string, string) {}

type nopRouter struct{}

func (nopRouter) SwitchToDefaultHandler() {}
