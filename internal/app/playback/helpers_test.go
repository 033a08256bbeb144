package playback

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	seq    int
}

type fakeTimer struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
}

// Advance moves time forward, running every timer due on the way in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		due := make([]*fakeTimer, 0)
		for _, t := range c.timers {
			if !t.stopped && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.stopped = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// fakeDecoder records commands; callbacks are driven by the test.
type fakeDecoder struct {
	mu       sync.Mutex
	base     SourceID
	nextID   SourceID
	observer DecoderObserver
	calls    []string
	sources  map[SourceID]audioitem.AudioItem
	offset   time.Duration
	setErr   error
	playErr  error
}

func newFakeDecoder(index int) *fakeDecoder {
	return &fakeDecoder{
		base:    SourceID((index + 1) * 100),
		sources: make(map[SourceID]audioitem.AudioItem),
	}
}

func (d *fakeDecoder) SetSource(item audioitem.AudioItem) (SourceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setErr != nil {
		return 0, d.setErr
	}
	d.nextID++
	id := d.base + d.nextID
	d.sources[id] = item
	d.calls = append(d.calls, "set:"+item.Stream.Token)
	return id, nil
}

func (d *fakeDecoder) record(op string, id SourceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf("%s:%s", op, d.sources[id].Stream.Token))
}

func (d *fakeDecoder) Play(id SourceID) error {
	d.record("play", id)
	return d.playErr
}

func (d *fakeDecoder) Pause(id SourceID) error  { d.record("pause", id); return nil }
func (d *fakeDecoder) Resume(id SourceID) error { d.record("resume", id); return nil }
func (d *fakeDecoder) Stop(id SourceID) error   { d.record("stop", id); return nil }

func (d *fakeDecoder) Offset(SourceID) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset
}

func (d *fakeDecoder) SetObserver(o DecoderObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = o
}

func (d *fakeDecoder) history() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDecoder) count(op string) int {
	n := 0
	for _, c := range d.history() {
		if len(c) > len(op) && c[:len(op)+1] == op+":" {
			n++
		}
	}
	return n
}

// source returns the id of the most recent source set for token.
func (d *fakeDecoder) source(token string) SourceID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found SourceID
	for id, item := range d.sources {
		if item.Stream.Token == token && id > found {
			found = id
		}
	}
	return found
}

type fakeFocus struct {
	mu       sync.Mutex
	acquires int
	releases int
	reject   bool
}

func (f *fakeFocus) AcquireChannel(string, FocusObserver) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	return !f.reject
}

func (f *fakeFocus) ReleaseChannel(string, FocusObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSender) Send(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *recordingSender) names() []string {
	out := make([]string, 0)
	for _, m := range s.messages() {
		out = append(out, m.Header.Name)
	}
	return out
}

func (s *recordingSender) count(name string) int {
	n := 0
	for _, m := range s.messages() {
		if m.Header.Name == name {
			n++
		}
	}
	return n
}

func (s *recordingSender) find(name string) (Message, bool) {
	for _, m := range s.messages() {
		if m.Header.Name == name {
			return m, true
		}
	}
	return Message{}, false
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []string
}

func (r *fakeReporter) ReportException(messageID string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, messageID+": "+reason)
}

type fakeRouter struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeRouter) SwitchToDefaultHandler() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

type activityRecorder struct {
	activities []Activity
}

func (r *activityRecorder) OnActivityChanged(a Activity, _ Context) {
	r.activities = append(r.activities, a)
}

type harness struct {
	c          *Controller
	decoders   []*fakeDecoder
	focus      *fakeFocus
	sender     *recordingSender
	reporter   *fakeReporter
	router     *fakeRouter
	clock      *fakeClock
	activities *activityRecorder
	seq        int
}

func newHarness(t *testing.T, poolSize int) *harness {
	t.Helper()
	h := &harness{
		focus:      &fakeFocus{},
		sender:     &recordingSender{},
		reporter:   &fakeReporter{},
		router:     &fakeRouter{},
		clock:      newFakeClock(),
		activities: &activityRecorder{},
	}
	decoders := make([]Decoder, poolSize)
	for i := range decoders {
		d := newFakeDecoder(i)
		h.decoders = append(h.decoders, d)
		decoders[i] = d
	}
	c, err := NewController(Config{Clock: h.clock}, Collaborators{
		Decoders: decoders,
		Focus:    h.focus,
		Sender:   h.sender,
		Reporter: h.reporter,
		Router:   h.router,
	})
	require.NoError(t, err)
	c.AddListener(h.activities)
	h.c = c
	return h
}

func item(token string) audioitem.AudioItem {
	return audioitem.AudioItem{
		ID: "id-" + token,
		Stream: audioitem.Stream{
			URL:   "https://example.com/" + token + ".mp3",
			Token: token,
		},
	}
}

func (h *harness) play(it audioitem.AudioItem, behavior audioitem.PlayBehavior) bool {
	h.seq++
	return h.c.HandleImmediately(Directive{
		MessageID:    fmt.Sprintf("msg-%d", h.seq),
		Kind:         DirectivePlay,
		PlayBehavior: behavior,
		Item:         it,
	})
}

func (h *harness) grant() {
	h.c.OnFocusChanged(FocusForeground)
}

func (h *harness) started(slot int, token string) {
	d := h.decoders[slot]
	d.observer.OnPlaybackStarted(d.source(token))
}

func (h *harness) finished(slot int, token string) {
	d := h.decoders[slot]
	d.observer.OnPlaybackFinished(d.source(token))
}

func (h *harness) stopped(slot int, token string) {
	d := h.decoders[slot]
	d.observer.OnPlaybackStopped(d.source(token))
}

func (h *harness) failed(slot int, token string) {
	d := h.decoders[slot]
	d.observer.OnPlaybackError(d.source(token), ErrorTypeInternalDeviceError, "boom")
}

// playing brings token to PLAYING on slot 0 of a fresh harness.
func (h *harness) playing(t *testing.T, it audioitem.AudioItem) {
	t.Helper()
	require.True(t, h.play(it, audioitem.PlayBehaviorReplaceAll))
	h.grant()
	h.started(0, it.Stream.Token)
	require.Equal(t, ActivityPlaying, h.c.Activity())
}
