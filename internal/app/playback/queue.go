package playback

import (
	"time"

	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// Lifecycle is the progress of one queue entry.
type Lifecycle int

const (
	LifecyclePending Lifecycle = iota // Waiting for a decoder
	LifecycleLoading                  // Source set on a decoder
	LifecycleActive                   // Play issued, head of queue
	LifecycleFinished                 // Played to the end
	LifecycleErrored                  // Failed while active
	LifecycleStopped                  // Stopped or superseded while active
)

// String returns the string representation of the lifecycle.
func (l Lifecycle) String() string {
	switch l {
	case LifecyclePending:
		return "pending"
	case LifecycleLoading:
		return "loading"
	case LifecycleActive:
		return "active"
	case LifecycleFinished:
		return "finished"
	case LifecycleErrored:
		return "errored"
	case LifecycleStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Entry is one queued item together with its decoder bookkeeping.
type Entry struct {
	MessageID string
	Item      audioitem.AudioItem
	Slot      int      // Pool slot index, -1 when none
	Source    SourceID // Decoder-local id, zero until loading begins
	Lifecycle Lifecycle
	Err       error // Decoder failure recorded before the entry became active

	// Emitter bookkeeping
	started        bool
	nearlyFinished bool
	terminal       bool
	held           []Message

	progress     *progressTimer
	stutterSince time.Time
	lastOffset   time.Duration
}

func newEntry(messageID string, item audioitem.AudioItem) *Entry {
	return &Entry{
		MessageID:  messageID,
		Item:       item,
		Slot:       -1,
		lastOffset: item.Stream.Offset,
	}
}

// Token returns the stream token of the entry.
func (e *Entry) Token() string {
	return e.Item.Stream.Token
}

// isBuffered reports whether the entry holds a usable decoder source.
func (e *Entry) isBuffered() bool {
	return e.Slot >= 0 && e.Lifecycle == LifecycleLoading && e.Err == nil
}

// Queue is the ordered list of entries. The head is the only entry that may be active.
// Queue is not safe for concurrent use; the controller serializes access.
type Queue struct {
	entries []*Entry
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{entries: make([]*Entry, 0)}
}

// Enqueue appends e without disturbing the head.
func (q *Queue) Enqueue(e *Entry) {
	q.entries = append(q.entries, e)
}

// ReplaceAll makes e the sole entry and returns the discarded entries.
func (q *Queue) ReplaceAll(e *Entry) []*Entry {
	discarded := q.entries
	q.entries = []*Entry{e}
	return discarded
}

// ReplaceEnqueued keeps an active head, drops everything behind it and appends e.
func (q *Queue) ReplaceEnqueued(e *Entry) []*Entry {
	discarded := q.ClearEnqueued()
	q.entries = append(q.entries, e)
	return discarded
}

// Advance removes the head and returns the new head, or nil when the queue is empty.
func (q *Queue) Advance() *Entry {
	if len(q.entries) == 0 {
		return nil
	}
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return q.Head()
}

// Clear removes every entry and returns them.
func (q *Queue) Clear() []*Entry {
	discarded := q.entries
	q.entries = make([]*Entry, 0)
	return discarded
}

// ClearEnqueued removes every entry except an active head and returns the removed ones.
func (q *Queue) ClearEnqueued() []*Entry {
	if head := q.Head(); head != nil && head.Lifecycle == LifecycleActive {
		discarded := q.entries[1:]
		q.entries = []*Entry{head}
		return discarded
	}
	return q.Clear()
}

// Remove deletes the first entry created by messageID and returns it, or nil.
func (q *Queue) Remove(messageID string) *Entry {
	for i, it := range q.entries {
		if it.MessageID == messageID {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return it
		}
	}
	return nil
}

// Delete removes e from the queue. It reports whether e was present.
func (q *Queue) Delete(e *Entry) bool {
	for i, it := range q.entries {
		if it == e {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Head returns the first entry or nil.
func (q *Queue) Head() *Entry {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// Tail returns the last entry or nil.
func (q *Queue) Tail() *Entry {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[len(q.entries)-1]
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the entry list.
func (q *Queue) Entries() []*Entry {
	out := make([]*Entry, len(q.entries))
	copy(out, q.entries)
	return out
}
