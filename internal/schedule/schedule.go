// Package schedule tracks per-device polling state: when the device is next
// due, the watermark of the last observed sample, a bounded history of
// successful transmission times used to estimate the device's real cadence,
// and a consecutive-error counter that drives exponential backoff.
package schedule

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/intabcloud/sdg-bridge/internal/timeutil"
)

// Policy constants, in seconds. A healthy device is polled at its observed
// transmission interval plus a short tail window so the upstream has
// received the frame before we ask for it.
const (
	MaxTxInterval = 3600
	MinTxInterval = 900
	Postpone      = 60
	Backoff       = 10
	LoggerTxDelay = 20

	// HistorySize bounds the transmission history ring.
	HistorySize = 5
)

// State is the mutable schedule of one device. The embedded mutex is the
// single-owner gate: a fetch worker holds it for the whole fetch/update
// cycle, so at most one worker operates on a device at any instant.
type State struct {
	mu sync.Mutex

	// DueAt is the epoch second at which the device becomes eligible for
	// its next poll. Advanced only by the owning worker via UpdateDueAt,
	// or set at construction.
	DueAt int64

	// LastSeen is the newest sample timestamp observed from upstream and
	// the from-watermark of the next fetch. Monotonically non-decreasing.
	LastSeen int64

	// Interval is the most recently computed poll interval, kept for
	// introspection and logging.
	Interval int64

	// Errors counts consecutive failed attempts. Reset on success.
	Errors int

	// InFlight is true while a worker holds this device.
	InFlight bool

	// generation invalidates stale heap entries: it is bumped on every
	// re-insertion, and the queue discards entries whose generation no
	// longer matches. Atomic so the queue can read it while holding only
	// the heap lock (heap lock is always innermost; taking the device
	// mutex there would invert the order).
	generation atomic.Uint64

	// txHistory holds the last HistorySize successful transmission
	// timestamps, most recent first.
	txHistory []int64
}

// New returns a schedule primed with the device's recorded watermark and an
// initial due time.
func New(dueAt, lastSeen int64) *State {
	return &State{DueAt: dueAt, LastSeen: lastSeen}
}

// Lock acquires the device's single-owner mutex.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the device's single-owner mutex.
func (s *State) Unlock() { s.mu.Unlock() }

// AddSuccessfulTx records a successful transmission timestamp at the front
// of the history and clears the error counter. Caller must hold the lock.
func (s *State) AddSuccessfulTx(ts int64) {
	s.txHistory = append([]int64{ts}, s.txHistory...)
	if len(s.txHistory) > HistorySize {
		s.txHistory = s.txHistory[:HistorySize]
	}
	s.Errors = 0
}

// IncError bumps the consecutive-failure counter. Caller must hold the lock.
func (s *State) IncError() { s.Errors++ }

// Generation returns the current re-insertion counter.
func (s *State) Generation() uint64 { return s.generation.Load() }

// BumpGeneration invalidates all queued entries for this device and returns
// the generation the next entry must carry.
func (s *State) BumpGeneration() uint64 { return s.generation.Add(1) }

// TxHistory returns a copy of the transmission history, most recent first.
func (s *State) TxHistory() []int64 {
	out := make([]int64, len(s.txHistory))
	copy(out, s.txHistory)
	return out
}

// UpdateDueAt recomputes DueAt from the current state. Caller must hold the
// lock.
//
// Failing devices back off exponentially: postpone × backoff^(errors-1),
// clamped to [Postpone, MaxTxInterval]. With fewer than two successful
// transmissions there is no cadence to estimate, so the minimum interval
// applies. Otherwise the median of adjacent history deltas estimates the
// device's transmission interval, clamped to sane bounds and anchored at
// the newest transmission. LoggerTxDelay is the tail window in all cases.
func (s *State) UpdateDueAt(now int64) {
	if s.Errors > 0 {
		delay := int64(Postpone)
		for i := 1; i < s.Errors; i++ {
			delay *= Backoff
			if delay > MaxTxInterval {
				break
			}
		}
		delay = timeutil.Clamp(delay, Postpone, MaxTxInterval)
		s.DueAt = now + delay + LoggerTxDelay
		return
	}

	if len(s.txHistory) < 2 {
		s.Interval = MinTxInterval
		s.DueAt = now + s.Interval + LoggerTxDelay
		return
	}

	s.Interval = timeutil.Clamp(s.medianDelta(), MinTxInterval, MaxTxInterval)
	s.DueAt = s.txHistory[0] + s.Interval + LoggerTxDelay
}

// medianDelta computes the median of pairwise deltas between adjacent
// history entries. Requires at least two entries.
func (s *State) medianDelta() int64 {
	deltas := make([]int64, 0, len(s.txHistory)-1)
	for i := 0; i < len(s.txHistory)-1; i++ {
		deltas = append(deltas, s.txHistory[i]-s.txHistory[i+1])
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	n := len(deltas)
	if n%2 == 1 {
		return deltas[n/2]
	}
	return (deltas[n/2-1] + deltas[n/2]) / 2
}
