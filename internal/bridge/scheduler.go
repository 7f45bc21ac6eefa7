package bridge

import (
	"context"
	"time"

	"github.com/intabcloud/sdg-bridge/internal/metrics"
)

// schedulerLoop is the sole consumer of the heap. It pops the earliest live
// entry, sleeps to its due instant, and hands the device ID to the fetch
// pool. The blocking send on the bounded work channel is the backpressure
// that delays further dispatch when all workers are busy.
func (b *Bridge) schedulerLoop(ctx context.Context) {
	// Reusable timer.
	timer := b.clock.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.Chan()
	}
	defer timer.Stop()

	reset := func(d time.Duration) {
		if !timer.Stop() {
			select {
			case <-timer.Chan():
			default:
			}
		}
		timer.Reset(d)
	}

	for {
		entry, ok := b.queue.PopDue(b.liveGeneration)
		if !ok {
			// Nothing live queued; idle one tick.
			reset(b.cfg.SchedulerTick)
			select {
			case <-ctx.Done():
				return
			case <-timer.Chan():
			}
			continue
		}
		metrics.HeapEntries.Set(float64(b.queue.Len()))

		now := b.clock.Now().Unix()
		if entry.DueAt > now {
			reset(time.Duration(entry.DueAt-now) * time.Second)
			select {
			case <-ctx.Done():
				return
			case <-timer.Chan():
			}
		}

		select {
		case <-ctx.Done():
			return
		case b.workCh <- entry.DeviceID:
			metrics.SchedulerDispatches.Inc()
		}
	}
}
