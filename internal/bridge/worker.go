package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/intabcloud/sdg-bridge/internal/bus"
	"github.com/intabcloud/sdg-bridge/internal/device"
	"github.com/intabcloud/sdg-bridge/internal/metrics"
	"github.com/intabcloud/sdg-bridge/internal/sched"
	"github.com/intabcloud/sdg-bridge/internal/timeutil"
	"github.com/intabcloud/sdg-bridge/internal/upstream"
)

// errNoData marks a fetch that returned an empty sample list. It counts as
// a failure so the device backs off instead of being polled hot.
var errNoData = errors.New("upstream returned no samples")

// fetchWorker drains the work channel until the context is cancelled.
func (b *Bridge) fetchWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-b.workCh:
			b.handleDevice(ctx, id)
		}
	}
}

// handleDevice runs one poll attempt for a device. The device mutex is the
// authoritative single-owner gate: the scheduler cannot fully prevent a
// device from being dispatched twice across a reschedule race, so the lock
// is held from before the fetch until the schedule update is complete.
func (b *Bridge) handleDevice(ctx context.Context, deviceID int64) {
	d, ok := b.registry.Get(deviceID)
	if !ok {
		return
	}

	s := d.Schedule
	s.Lock()
	s.InFlight = true

	err := b.fetchOne(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-fetch: no error accounting, no reschedule.
			// The device sits out until the next startup.
			s.InFlight = false
			s.Unlock()
			return
		}
		b.log.Warn("fetch failed", "device_id", d.ID, "errors", s.Errors+1, "error", err)
		s.IncError()
		metrics.FetchOutcomes.WithLabelValues(fetchResult(err)).Inc()
	} else {
		metrics.FetchOutcomes.WithLabelValues("success").Inc()
	}

	// Reschedule exactly once per attempt, success or failure. The new
	// generation invalidates any entry still queued for this device.
	s.UpdateDueAt(b.clock.Now().Unix())
	s.InFlight = false
	entry := sched.Entry{
		DueAt:      s.DueAt,
		DeviceID:   d.ID,
		Generation: s.BumpGeneration(),
	}
	s.Unlock()

	b.queue.Push(entry)
	metrics.HeapEntries.Set(float64(b.queue.Len()))
}

func fetchResult(err error) string {
	if errors.Is(err, errNoData) {
		return "no_data"
	}
	return "error"
}

// fetchOne pulls samples since the device's watermark, transforms them into
// a batch, enqueues it, and advances the watermark. Caller holds the device
// mutex.
func (b *Bridge) fetchOne(ctx context.Context, d *device.Device) error {
	samples, err := b.cfg.Upstream.FetchSamples(ctx, d.LookupID, d.Schedule.LastSeen)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errNoData
	}

	batch, err := b.buildBatch(ctx, d, samples)
	if err != nil {
		return err
	}

	// Blocking send is the output-queue backpressure; only stop breaks it.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.outCh <- batch:
		metrics.OutQueueDepth.Set(float64(len(b.outCh)))
	}

	d.Schedule.AddSuccessfulTx(batch.LastSeen)
	if batch.LastSeen > d.Schedule.LastSeen {
		d.Schedule.LastSeen = batch.LastSeen
	}
	return nil
}

// buildBatch converts raw samples into a LoggerBatch. Only tags declared by
// the device's model are emitted; extra upstream fields are ignored. A
// missing value for a required tag aborts the whole batch: partial batches
// are never published.
func (b *Bridge) buildBatch(ctx context.Context, d *device.Device, samples []upstream.Sample) (*bus.LoggerBatch, error) {
	batch := &bus.LoggerBatch{
		LoggerID:   d.ID,
		SignalType: bus.SignalTypeNBIoT,
	}
	var voltages []float64

	for _, s := range samples {
		ts, err := timeutil.ParseSampleTime(s.Time)
		if err != nil {
			return nil, err
		}
		// Samples are usually sorted ascending, but the watermark is the
		// max regardless.
		if ts > batch.LastSeen {
			batch.LastSeen = ts
		}

		for _, tag := range d.ChannelTags() {
			channelID, ok := d.ChannelID(tag)
			if !ok {
				channelID, err = b.resolveChannel(ctx, d, tag)
				if err != nil {
					return nil, err
				}
			}

			value, ok := s.Value(tag)
			if !ok {
				return nil, fmt.Errorf("sample at %s missing required tag %q", s.Time, tag)
			}
			batch.Samples = append(batch.Samples, bus.Sample{ChannelID: channelID, Value: value, Ts: ts})
		}

		if s.Battery != nil {
			voltages = append(voltages, *s.Battery)
		}
		if s.SignalStrength != nil {
			batch.Signals = append(batch.Signals, bus.Signal{Ts: ts, Value: *s.SignalStrength})
		}
	}

	if len(voltages) > 0 {
		var sum float64
		for _, v := range voltages {
			sum += v
		}
		mean := sum / float64(len(voltages))
		batch.Battery = &mean
	}
	return batch, nil
}

// resolveChannel finds or creates the platform channel for a tag unknown to
// the device. The device mutex serializes creation per device, and the
// list-before-create makes a channel created by an earlier run converge to
// the same ID instead of a duplicate.
func (b *Bridge) resolveChannel(ctx context.Context, d *device.Device, tag string) (int64, error) {
	channels, err := b.cfg.Platform.ListChannels(ctx, d.ID)
	if err != nil {
		return 0, fmt.Errorf("resolve channel %q: %w", tag, err)
	}
	for _, ch := range channels {
		if ch.Tag == tag {
			d.AddChannel(ch.ID, ch.Tag)
			return ch.ID, nil
		}
	}

	created, err := b.cfg.Platform.CreateChannel(ctx, d.ID, tag)
	if err != nil {
		return 0, fmt.Errorf("resolve channel %q: %w", tag, err)
	}
	d.AddChannel(created.ID, created.Tag)
	metrics.ChannelsCreated.Inc()
	b.log.Info("created missing channel", "device_id", d.ID, "tag", tag, "channel_id", created.ID)
	return created.ID, nil
}
