package playback

import (
	"time"

	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// Clock abstracts wall time and timers.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d and returns a cancel function.
	AfterFunc(d time.Duration, f func()) (cancel func())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

type progressKind int

const (
	progressDelay progressKind = iota
	progressInterval
)

// progressTimer tracks the delay and interval reports of one entry against its
// playback offset. All methods are called with the controller lock held; fire is
// called from timer goroutines and must take that lock itself.
type progressTimer struct {
	clock    Clock
	delay    time.Duration
	interval time.Duration
	start    time.Duration // Offset playback started from

	played  time.Duration // Play time accumulated before the current run
	since   time.Time
	running bool

	delayDone    bool
	nextInterval time.Duration // Next offset boundary for the interval report

	gen            uint64
	cancelDelay    func()
	cancelInterval func()
	fire           func(kind progressKind, gen uint64)
}

func newProgressTimer(clock Clock, report audioitem.ProgressReport, start time.Duration, fire func(progressKind, uint64)) *progressTimer {
	p := &progressTimer{
		clock:    clock,
		delay:    report.Delay,
		interval: report.Interval,
		start:    start,
		fire:     fire,
	}
	// Already past the threshold: the delay report is never sent.
	p.delayDone = p.delay <= 0 || start >= p.delay
	if p.interval > 0 {
		p.nextInterval = (start/p.interval + 1) * p.interval
	}
	return p
}

// offset returns the current playback offset as tracked by the timer.
func (p *progressTimer) offset() time.Duration {
	o := p.start + p.played
	if p.running {
		o += p.clock.Now().Sub(p.since)
	}
	return o
}

// resume starts or continues counting from the last suspended offset.
func (p *progressTimer) resume() {
	if p.running {
		return
	}
	p.running = true
	p.since = p.clock.Now()
	p.arm()
}

// suspend stops counting, keeping the offset reached so far.
func (p *progressTimer) suspend() {
	if !p.running {
		return
	}
	p.played += p.clock.Now().Sub(p.since)
	p.running = false
	p.disarm()
}

// cancel stops all further reports.
func (p *progressTimer) cancel() {
	p.suspend()
	p.delayDone = true
	p.interval = 0
}

func (p *progressTimer) arm() {
	p.disarm()
	p.gen++
	gen := p.gen
	cur := p.offset()
	if !p.delayDone {
		p.cancelDelay = p.clock.AfterFunc(nonNegative(p.delay-cur), func() { p.fire(progressDelay, gen) })
	}
	if p.interval > 0 {
		p.armInterval(gen, cur)
	}
}

func (p *progressTimer) armInterval(gen uint64, cur time.Duration) {
	p.cancelInterval = p.clock.AfterFunc(nonNegative(p.nextInterval-cur), func() { p.fire(progressInterval, gen) })
}

func (p *progressTimer) disarm() {
	p.gen++
	if p.cancelDelay != nil {
		p.cancelDelay()
		p.cancelDelay = nil
	}
	if p.cancelInterval != nil {
		p.cancelInterval()
		p.cancelInterval = nil
	}
}

// fired handles a timer expiry and returns the offset to report.
// It returns false for expiries of a previous arming.
func (p *progressTimer) fired(kind progressKind, gen uint64) (time.Duration, bool) {
	if gen != p.gen || !p.running {
		return 0, false
	}
	switch kind {
	case progressDelay:
		if p.delayDone {
			return 0, false
		}
		p.delayDone = true
		p.cancelDelay = nil
		return p.delay, true
	case progressInterval:
		if p.interval <= 0 {
			return 0, false
		}
		boundary := p.nextInterval
		p.nextInterval += p.interval
		p.armInterval(gen, p.offset())
		return boundary, true
	}
	return 0, false
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
