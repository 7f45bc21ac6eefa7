package bridge

import (
	"context"

	"github.com/intabcloud/sdg-bridge/internal/device"
	"github.com/intabcloud/sdg-bridge/internal/metrics"
	"github.com/intabcloud/sdg-bridge/internal/sched"
)

// discoveryLoop reconciles the registry against the platform's device list
// every DiscoveryInterval. Startup covers the first listing, so the loop
// waits before its first call.
func (b *Bridge) discoveryLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.clock.After(b.cfg.DiscoveryInterval):
		}

		records, err := b.cfg.Platform.ListDevices(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error("discovery listing failed", "error", err)
			metrics.DiscoveryErrs.Inc()
			continue
		}
		if added := b.merge(records); added > 0 {
			b.log.Info("discovery added devices", "count", added)
		}
	}
}

// merge inserts unseen devices and seeds their heap entries with an
// immediate due time. Devices the platform stopped returning are left
// inert: they keep their state but are never polled again this run.
func (b *Bridge) merge(records []device.Record) int {
	now := b.clock.Now().Unix()
	returned := make(map[int64]struct{}, len(records))
	added := 0

	for _, rec := range records {
		returned[rec.ID] = struct{}{}
		if b.registry.Has(rec.ID) {
			continue
		}

		d, err := device.New(rec, now)
		if err != nil {
			b.log.Error("skipping device", "device_id", rec.ID, "error", err)
			metrics.DeviceConstructErrs.Inc()
			continue
		}
		if !b.registry.InsertIfAbsent(d) {
			continue
		}
		b.queue.Push(sched.Entry{
			DueAt:      d.Schedule.DueAt,
			DeviceID:   d.ID,
			Generation: d.Schedule.Generation(),
		})
		added++
		metrics.DevicesDiscovered.Inc()
	}

	var inert int
	for id := range b.registry.IDs() {
		if _, ok := returned[id]; !ok {
			inert++
		}
	}
	if inert > 0 {
		b.log.Debug("devices no longer returned by platform", "count", inert)
	}

	metrics.DevicesKnown.Set(float64(b.registry.Len()))
	metrics.HeapEntries.Set(float64(b.queue.Len()))
	return added
}
