// Package sched provides the time-ordered priority queue the scheduler loop
// drains. Entries carry a per-device generation tag; rescheduling a device
// pushes a fresh entry and bumps the generation, which lazily invalidates
// anything older still sitting in the heap.
package sched

import (
	"container/heap"
	"sync"
)

// Entry is one pending poll: the epoch second it becomes due, the device it
// belongs to, and the device generation it was pushed under.
type Entry struct {
	DueAt      int64
	DeviceID   int64
	Generation uint64
}

// less orders entries by due time, then device ID, then generation, so pops
// are deterministic under ties.
func (e Entry) less(o Entry) bool {
	if e.DueAt != o.DueAt {
		return e.DueAt < o.DueAt
	}
	if e.DeviceID != o.DeviceID {
		return e.DeviceID < o.DeviceID
	}
	return e.Generation < o.Generation
}

type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(Entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// LiveFunc reports the current generation of a device, or false if the
// device is unknown.
type LiveFunc func(deviceID int64) (uint64, bool)

// Queue is a mutex-guarded min-heap of entries. Entries are values; mutating
// a device's schedule never touches queued entries, staleness is decided at
// pop time via the generation tag.
type Queue struct {
	mu sync.Mutex
	h  entryHeap
}

func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push inserts an entry.
func (q *Queue) Push(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.h, e)
}

// PopDue removes and returns the earliest live entry, discarding stale
// entries (generation mismatch or unknown device) along the way. The
// returned entry may still be due in the future; the caller decides whether
// to sleep. Returns false when nothing live remains.
func (q *Queue) PopDue(live LiveFunc) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.h.Len() > 0 {
		e := heap.Pop(&q.h).(Entry)
		gen, ok := live(e.DeviceID)
		if !ok || gen != e.Generation {
			continue
		}
		return e, true
	}
	return Entry{}, false
}

// Len returns the number of entries currently held, stale ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}
