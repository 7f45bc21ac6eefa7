package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func liveGens(gens map[int64]uint64) LiveFunc {
	return func(id int64) (uint64, bool) {
		g, ok := gens[id]
		return g, ok
	}
}

func TestQueue_PopOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Push(Entry{DueAt: 300, DeviceID: 3})
	q.Push(Entry{DueAt: 100, DeviceID: 1})
	q.Push(Entry{DueAt: 200, DeviceID: 2})

	gens := map[int64]uint64{1: 0, 2: 0, 3: 0}

	var order []int64
	for {
		e, ok := q.PopDue(liveGens(gens))
		if !ok {
			break
		}
		order = append(order, e.DeviceID)
	}
	require.Equal(t, []int64{1, 2, 3}, order)
}

func TestQueue_TieBreakByDeviceID(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Push(Entry{DueAt: 100, DeviceID: 9})
	q.Push(Entry{DueAt: 100, DeviceID: 2})
	q.Push(Entry{DueAt: 100, DeviceID: 5})

	gens := map[int64]uint64{2: 0, 5: 0, 9: 0}

	e, ok := q.PopDue(liveGens(gens))
	require.True(t, ok)
	require.Equal(t, int64(2), e.DeviceID)
	e, ok = q.PopDue(liveGens(gens))
	require.True(t, ok)
	require.Equal(t, int64(5), e.DeviceID)
}

func TestQueue_StaleGenerationDiscarded(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	// Device rescheduled: old generation-0 entry still queued, device is
	// now at generation 1 with a later due time.
	q.Push(Entry{DueAt: 100, DeviceID: 7, Generation: 0})
	q.Push(Entry{DueAt: 500, DeviceID: 7, Generation: 1})

	gens := map[int64]uint64{7: 1}

	e, ok := q.PopDue(liveGens(gens))
	require.True(t, ok)
	require.Equal(t, Entry{DueAt: 500, DeviceID: 7, Generation: 1}, e)

	_, ok = q.PopDue(liveGens(gens))
	require.False(t, ok)
	require.Equal(t, 0, q.Len())
}

func TestQueue_UnknownDeviceDiscarded(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Push(Entry{DueAt: 100, DeviceID: 1})
	q.Push(Entry{DueAt: 200, DeviceID: 2})

	// Only device 2 exists.
	e, ok := q.PopDue(liveGens(map[int64]uint64{2: 0}))
	require.True(t, ok)
	require.Equal(t, int64(2), e.DeviceID)
}

func TestQueue_EmptyPop(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	_, ok := q.PopDue(liveGens(nil))
	require.False(t, ok)
}
