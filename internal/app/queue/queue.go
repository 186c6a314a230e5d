// Package queue provides the FIFO playback queue shared by command handlers
// and the playback controller.
package queue

import (
	"sync"
	"time"

	"github.com/osa030/stagebox/internal/domain/track"
)

// Queue is an ordered, thread-safe sequence of entries. The entry at
// position 1 is the head: the one being played or about to be played.
type Queue struct {
	mu      sync.RWMutex
	entries []track.Entry
	nextSeq uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		entries: make([]track.Entry, 0),
	}
}

// Enqueue appends a track and returns the stored entry and its 1-based position.
func (q *Queue) Enqueue(t *track.Track, r track.Requester) (track.Entry, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	e := track.Entry{
		Seq:       q.nextSeq,
		Track:     t,
		Requester: r,
		AddedAt:   time.Now(),
	}
	q.entries = append(q.entries, e)
	return e, len(q.entries)
}

// PeekHead returns the head without removing it.
func (q *Queue) PeekHead() (track.Entry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.entries) == 0 {
		return track.Entry{}, false
	}
	return q.entries[0], true
}

// PopHead removes and returns the head.
func (q *Queue) PopHead() (track.Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return track.Entry{}, false
	}
	e := q.entries[0]
	q.entries[0] = track.Entry{}
	q.entries = q.entries[1:]
	return e, true
}

// Remove deletes the entry with the given sequence number.
// It returns false if the entry is no longer queued.
func (q *Queue) Remove(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.Seq == seq {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAt deletes the entry at a 1-based position in one step. Positions
// below minPosition are refused, so callers can protect the head.
func (q *Queue) RemoveAt(position, minPosition int) (track.Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if position < minPosition || position < 1 || position > len(q.entries) {
		return track.Entry{}, false
	}
	e := q.entries[position-1]
	q.entries = append(q.entries[:position-1], q.entries[position:]...)
	return e, true
}

// At returns the entry at the given 1-based position.
func (q *Queue) At(position int) (track.Entry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if position < 1 || position > len(q.entries) {
		return track.Entry{}, false
	}
	return q.entries[position-1], true
}

// Clear removes all entries and returns them.
func (q *Queue) Clear() []track.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.entries
	q.entries = make([]track.Entry, 0)
	return removed
}

// Entries returns a copy of the queued entries, head first.
func (q *Queue) Entries() []track.Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]track.Entry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// IsEmpty returns true if the queue has no entries.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}
