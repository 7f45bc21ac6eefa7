package bridge

import (
	"context"

	"github.com/intabcloud/sdg-bridge/internal/bus"
	"github.com/intabcloud/sdg-bridge/internal/metrics"
)

// publisherLoop drains the output queue into size/time-bounded flushes. On
// a failed flush the failed batches are dropped: the bus is durable once a
// publish succeeds, but there is no on-disk spool on this side.
func (b *Bridge) publisherLoop(ctx context.Context) {
	buf := make([]*bus.LoggerBatch, 0, b.cfg.FlushSize)
	lastFlush := b.clock.Now()

	// Reusable timer for the quiet ticks.
	timer := b.clock.NewTimer(b.cfg.RecvTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best-effort final flush so a clean shutdown does not leak
			// the tail of the buffer.
			b.flush(buf)
			return
		case batch := <-b.outCh:
			buf = append(buf, batch)
			metrics.OutQueueDepth.Set(float64(len(b.outCh)))
		case <-timer.Chan():
			// Quiet tick; fall through to the flush check.
		}

		if len(buf) >= b.cfg.FlushSize || b.clock.Since(lastFlush) >= b.cfg.FlushInterval {
			buf = b.flush(buf)
			lastFlush = b.clock.Now()
		}

		if !timer.Stop() {
			select {
			case <-timer.Chan():
			default:
			}
		}
		timer.Reset(b.cfg.RecvTimeout)
	}
}

// flush publishes the buffer and returns it emptied. Partial failures drop
// only the failed batches after logging; the loop keeps running.
func (b *Bridge) flush(buf []*bus.LoggerBatch) []*bus.LoggerBatch {
	if len(buf) == 0 {
		return buf
	}
	failed, err := b.cfg.Bus.PublishBatch(buf)
	if err != nil {
		b.log.Error("bus publish failed, dropping failed batches", "failed", failed, "batches", len(buf), "error", err)
		metrics.PublishErrs.Inc()
		metrics.BatchesDropped.Add(float64(failed))
	}
	metrics.BatchesPublished.Add(float64(len(buf) - failed))
	return buf[:0]
}
