package playback

import (
	zlog "github.com/rs/zerolog/log"
)

// slot is one decoder of the pool. Entries refer to slots by index only.
type slot struct {
	index    int
	decoder  Decoder
	occupant *Entry
	// draining is the source stopped on this decoder whose terminal callback is
	// still outstanding. The slot is not reassigned until it arrives.
	draining SourceID
}

func (s *slot) idle() bool {
	return s.occupant == nil && s.draining == 0
}

// pool is a fixed size set of decoder slots.
type pool struct {
	slots []*slot
	next  int
}

func newPool(decoders []Decoder) *pool {
	p := &pool{slots: make([]*slot, len(decoders))}
	for i, d := range decoders {
		p.slots[i] = &slot{index: i, decoder: d}
	}
	return p
}

// acquire assigns an idle slot to e, searching round-robin from the last assignment.
func (p *pool) acquire(e *Entry) (int, error) {
	n := len(p.slots)
	for i := 0; i < n; i++ {
		s := p.slots[(p.next+i)%n]
		if !s.idle() {
			continue
		}
		s.occupant = e
		e.Slot = s.index
		p.next = (s.index + 1) % n
		return s.index, nil
	}
	return -1, ErrPoolExhausted
}

// release returns e's slot after the decoder already reported a terminal callback.
// It reports whether the slot was released by this call.
func (p *pool) release(e *Entry) bool {
	s := p.slotOf(e)
	if s == nil {
		return false
	}
	s.occupant = nil
	e.Slot = -1
	return true
}

// stop halts e's source and returns its slot once the decoder confirms.
// Repeated calls are ignored so a decoder is never stopped twice.
func (p *pool) stop(e *Entry) bool {
	s := p.slotOf(e)
	if s == nil {
		return false
	}
	s.occupant = nil
	e.Slot = -1
	if e.Source == 0 {
		return true
	}
	s.draining = e.Source
	if err := s.decoder.Stop(e.Source); err != nil {
		zlog.Warn().Msgf("playback: decoder stop failed: slot=%d source=%d error=%v", s.index, e.Source, err)
		s.draining = 0
	}
	return true
}

// settle clears a draining source once its terminal callback arrives.
func (p *pool) settle(index int, id SourceID) bool {
	s := p.slots[index]
	if s.draining != id || id == 0 {
		return false
	}
	s.draining = 0
	return true
}

// lookup returns the entry currently loaded with id on the given slot.
func (p *pool) lookup(index int, id SourceID) *Entry {
	if index < 0 || index >= len(p.slots) {
		return nil
	}
	s := p.slots[index]
	if s.occupant == nil || s.occupant.Source != id {
		return nil
	}
	return s.occupant
}

// transfer moves from's loaded source to to without touching the decoder.
func (p *pool) transfer(from, to *Entry) {
	s := p.slotOf(from)
	if s == nil {
		return
	}
	s.occupant = to
	to.Slot, to.Source, to.Lifecycle = from.Slot, from.Source, LifecycleLoading
	from.Slot, from.Source = -1, 0
}

func (p *pool) decoderOf(e *Entry) Decoder {
	if s := p.slotOf(e); s != nil {
		return s.decoder
	}
	return nil
}

func (p *pool) slotOf(e *Entry) *slot {
	if e == nil || e.Slot < 0 || e.Slot >= len(p.slots) {
		return nil
	}
	s := p.slots[e.Slot]
	if s.occupant != e {
		return nil
	}
	return s
}

// idleCount returns the number of slots that can be acquired right now.
func (p *pool) idleCount() int {
	n := 0
	for _, s := range p.slots {
		if s.idle() {
			n++
		}
	}
	return n
}
