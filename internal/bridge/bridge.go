// Package bridge is the core of the telemetry bridge: discovery of devices
// from the platform, per-device adaptive polling through a due-time heap,
// a bounded fetch worker pool, and a batching publisher onto the bus.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/intabcloud/sdg-bridge/internal/bus"
	"github.com/intabcloud/sdg-bridge/internal/device"
	"github.com/intabcloud/sdg-bridge/internal/sched"
)

// Bridge supervises the polling pipeline. All loops observe the context
// passed to Run; cancellation is the single stop signal.
type Bridge struct {
	cfg   *Config
	log   *slog.Logger
	clock clockwork.Clock

	registry *device.Registry
	queue    *sched.Queue
	workCh   chan int64
	outCh    chan *bus.LoggerBatch
}

func New(cfg *Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge config: %w", err)
	}
	return &Bridge{
		cfg:      cfg,
		log:      cfg.Logger,
		clock:    cfg.Clock,
		registry: device.NewRegistry(),
		queue:    sched.NewQueue(),
		workCh:   make(chan int64, cfg.WorkQueueSize),
		outCh:    make(chan *bus.LoggerBatch, cfg.OutQueueSize),
	}, nil
}

// Startup performs the initial device listing. A failure here (after the
// transport's own retries) is unrecoverable: the process should exit
// non-zero rather than run with an empty registry.
func (b *Bridge) Startup(ctx context.Context) error {
	records, err := b.cfg.Platform.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("initial device listing: %w", err)
	}
	added := b.merge(records)
	b.log.Info("startup complete", "devices", b.registry.Len(), "added", added)
	return nil
}

// Run starts all loops and blocks until the context is cancelled and every
// loop has stopped. Call Startup first.
func (b *Bridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			b.log.Debug("loop stopped", "loop", name)
		}()
	}

	start("discovery", b.discoveryLoop)
	start("scheduler", b.schedulerLoop)
	for i := 0; i < b.cfg.WorkerCount; i++ {
		start(fmt.Sprintf("fetch-worker-%d", i), b.fetchWorker)
	}
	start("publisher", b.publisherLoop)

	wg.Wait()
	return nil
}

// liveGeneration lets the queue decide entry staleness at pop time.
func (b *Bridge) liveGeneration(deviceID int64) (uint64, bool) {
	d, ok := b.registry.Get(deviceID)
	if !ok {
		return 0, false
	}
	return d.Schedule.Generation(), true
}
