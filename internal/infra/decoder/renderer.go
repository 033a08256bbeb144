// Package decoder renders audio sources headlessly with beep. Each Renderer plays one
// source at a time in real time against a discard buffer, so offsets and completion
// behave like an output device without needing one.
package decoder

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audioplayer/internal/app/playback"
	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// Options configures a Renderer.
type Options struct {
	Tick           time.Duration
	LoadTimeout    time.Duration
	StallThreshold time.Duration
	MaxSourceBytes int64
	Client         *http.Client
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = 20 * time.Millisecond
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = 10 * time.Second
	}
	if o.StallThreshold <= 0 {
		o.StallThreshold = 500 * time.Millisecond
	}
	if o.MaxSourceBytes <= 0 {
		o.MaxSourceBytes = 256 << 20
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Source ids are unique across every renderer in the process.
var sourceIDs atomic.Uint64

type session struct {
	id       playback.SourceID
	item     audioitem.AudioItem
	ctx      context.Context
	cancel   context.CancelFunc
	play     chan struct{}
	playOnce sync.Once
	paused   atomic.Bool
	position atomic.Int64
	exited   atomic.Bool
	stallMu  sync.Mutex
}

// Renderer implements playback.Decoder.
type Renderer struct {
	index int
	opts  Options

	mu       sync.Mutex
	observer playback.DecoderObserver
	sessions map[playback.SourceID]*session
}

// Ensure Renderer implements the interface.
var _ playback.Decoder = (*Renderer)(nil)

// NewRenderer creates a renderer. index only labels log lines.
func NewRenderer(index int, opts Options) *Renderer {
	return &Renderer{
		index:    index,
		opts:     opts.withDefaults(),
		sessions: make(map[playback.SourceID]*session),
	}
}

// NewPool creates size renderers sharing opts.
func NewPool(size int, opts Options) []*Renderer {
	pool := make([]*Renderer, size)
	for i := range pool {
		pool[i] = NewRenderer(i, opts)
	}
	return pool
}

// SetObserver implements playback.Decoder.
func (r *Renderer) SetObserver(o playback.DecoderObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// SetSource implements playback.Decoder.
func (r *Renderer) SetSource(item audioitem.AudioItem) (playback.SourceID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.observer == nil {
		return 0, errors.New("decoder: observer not set")
	}
	for id, s := range r.sessions {
		if s.exited.Load() {
			delete(r.sessions, id)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     playback.SourceID(sourceIDs.Add(1)),
		item:   item,
		ctx:    ctx,
		cancel: cancel,
		play:   make(chan struct{}),
	}
	s.position.Store(int64(item.Stream.Offset))
	r.sessions[s.id] = s

	zlog.Debug().Msgf("decoder: set source: index=%d, id=%d, token=%s", r.index, s.id, item.Stream.Token)
	go r.run(s, r.observer)
	return s.id, nil
}

// Play implements playback.Decoder.
func (r *Renderer) Play(id playback.SourceID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.paused.Store(false)
	s.playOnce.Do(func() { close(s.play) })
	return nil
}

// Pause implements playback.Decoder.
func (r *Renderer) Pause(id playback.SourceID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.paused.Store(true)
	return nil
}

// Resume implements playback.Decoder.
func (r *Renderer) Resume(id playback.SourceID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.paused.Store(false)
	return nil
}

// Stop implements playback.Decoder.
func (r *Renderer) Stop(id playback.SourceID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.cancel()
	return nil
}

// Offset implements playback.Decoder.
func (r *Renderer) Offset(id playback.SourceID) time.Duration {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return time.Duration(s.position.Load())
}

// Close stops every source the renderer still holds.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.cancel()
	}
}

func (r *Renderer) lookup(id playback.SourceID) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSource, "id=%d", id)
	}
	return s, nil
}

func (r *Renderer) run(s *session, obs playback.DecoderObserver) {
	defer s.exited.Store(true)
	defer s.cancel()

	streamer, format, c, err := r.load(s)
	if err != nil {
		if s.ctx.Err() != nil {
			obs.OnPlaybackStopped(s.id)
			return
		}
		zlog.Warn().Msgf("decoder: load failed: index=%d, id=%d, error=%v", r.index, s.id, err)
		obs.OnPlaybackError(s.id, errorType(err), err.Error())
		return
	}
	defer streamer.Close()

	s.position.Store(int64(format.SampleRate.D(streamer.Position())))
	obs.OnTags(s.id, formatTags(c, format, streamer.Len()))

	select {
	case <-s.ctx.Done():
		obs.OnPlaybackStopped(s.id)
		return
	case <-s.play:
	}

	zlog.Debug().Msgf("decoder: started: index=%d, id=%d", r.index, s.id)
	obs.OnPlaybackStarted(s.id)

	samples := make([][2]float64, max(1, format.SampleRate.N(r.opts.Tick)))
	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			obs.OnPlaybackStopped(s.id)
			return
		case <-ticker.C:
		}
		if s.paused.Load() {
			continue
		}

		_, ok := r.render(s, obs, streamer, samples)
		s.position.Store(int64(format.SampleRate.D(streamer.Position())))
		if s.ctx.Err() != nil {
			obs.OnPlaybackStopped(s.id)
			return
		}
		if ok {
			continue
		}
		if err := streamer.Err(); err != nil {
			zlog.Warn().Msgf("decoder: playback failed: index=%d, id=%d, error=%v", r.index, s.id, err)
			obs.OnPlaybackError(s.id, errorType(err), err.Error())
			return
		}
		zlog.Debug().Msgf("decoder: finished: index=%d, id=%d", r.index, s.id)
		obs.OnPlaybackFinished(s.id)
		return
	}
}

// render streams one tick of samples. A read blocked longer than the stall threshold is
// reported as an underrun, followed by a refill once data arrives.
func (r *Renderer) render(s *session, obs playback.DecoderObserver, streamer beep.Streamer, samples [][2]float64) (int, bool) {
	var stalled, done bool
	watchdog := time.AfterFunc(r.opts.StallThreshold, func() {
		s.stallMu.Lock()
		defer s.stallMu.Unlock()
		if done || s.ctx.Err() != nil {
			return
		}
		stalled = true
		obs.OnBufferUnderrun(s.id)
	})

	n, ok := streamer.Stream(samples)
	watchdog.Stop()

	s.stallMu.Lock()
	done = true
	refilled := stalled && ok && s.ctx.Err() == nil
	s.stallMu.Unlock()

	if refilled {
		obs.OnBufferRefilled(s.id)
	}
	return n, ok
}

func (r *Renderer) load(s *session) (beep.StreamSeekCloser, beep.Format, codec, error) {
	c := codecFor(s.item.Stream)
	if s.item.IsExpired(r.opts.Now()) {
		return nil, beep.Format{}, c, classify(playback.ErrorTypeInvalidRequest,
			errors.Newf("stream expired at %s", s.item.Stream.Expiry.Format(time.RFC3339)))
	}

	b := newBuffer()
	context.AfterFunc(s.ctx, func() { b.abort(s.ctx.Err()) })
	go fetch(s.ctx, r.opts.Client, s.item.Stream.URL, r.opts.MaxSourceBytes, b)

	loadCtx, cancel := context.WithTimeout(s.ctx, r.opts.LoadTimeout)
	defer cancel()
	stopTimeout := context.AfterFunc(loadCtx, func() {
		b.abort(classify(playback.ErrorTypeServiceUnavailable, errors.Wrap(loadCtx.Err(), "source load timed out")))
	})

	streamer, format, err := decode(c, b)
	if err != nil {
		stopTimeout()
		return nil, beep.Format{}, c, err
	}

	if off := s.item.Stream.Offset; off > 0 {
		p := min(format.SampleRate.N(off), streamer.Len())
		if err := streamer.Seek(p); err != nil {
			stopTimeout()
			streamer.Close()
			return nil, beep.Format{}, c, classify(playback.ErrorTypeInternalDeviceError, errors.Wrapf(err, "failed to seek to %s", off))
		}
	}

	if !stopTimeout() {
		streamer.Close()
		return nil, beep.Format{}, c, classify(playback.ErrorTypeServiceUnavailable, errors.New("source load timed out"))
	}
	return streamer, format, c, nil
}

func errorType(err error) playback.ErrorType {
	var le *loadError
	if errors.As(err, &le) {
		return le.errType
	}
	return playback.ErrorTypeInternalDeviceError
}
