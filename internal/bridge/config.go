package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/intabcloud/sdg-bridge/internal/bus"
	"github.com/intabcloud/sdg-bridge/internal/device"
	"github.com/intabcloud/sdg-bridge/internal/upstream"
)

// Upstream is the device-data API the bridge polls.
type Upstream interface {
	FetchSamples(ctx context.Context, lookupID, since int64) ([]upstream.Sample, error)
}

// Platform owns the device registry and channel metadata.
type Platform interface {
	ListDevices(ctx context.Context) ([]device.Record, error)
	ListChannels(ctx context.Context, deviceID int64) ([]device.Channel, error)
	CreateChannel(ctx context.Context, deviceID int64, tag string) (device.Channel, error)
}

// Bus is the downstream message bus the bridge republishes onto.
// PublishBatch reports how many batches failed; the rest are published.
type Bus interface {
	PublishBatch(batches []*bus.LoggerBatch) (int, error)
}

const (
	defaultWorkerCount       = 10
	defaultOutQueueSize      = 50_000
	defaultDiscoveryInterval = 600 * time.Second
	defaultSchedulerTick     = time.Second
	defaultFlushSize         = 200
	defaultFlushInterval     = 2 * time.Second
	defaultRecvTimeout       = time.Second
)

// Config wires the bridge's collaborators and tuning knobs.
type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Upstream Upstream
	Platform Platform
	Bus      Bus

	// Optional with defaults.
	WorkerCount       int
	WorkQueueSize     int
	OutQueueSize      int
	DiscoveryInterval time.Duration
	SchedulerTick     time.Duration
	FlushSize         int
	FlushInterval     time.Duration
	RecvTimeout       time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Upstream == nil {
		return errors.New("upstream client is required")
	}
	if c.Platform == nil {
		return errors.New("platform client is required")
	}
	if c.Bus == nil {
		return errors.New("bus publisher is required")
	}

	if c.WorkerCount == 0 {
		c.WorkerCount = defaultWorkerCount
	}
	if c.WorkerCount < 0 {
		return errors.New("worker count must be > 0")
	}
	if c.WorkQueueSize == 0 {
		c.WorkQueueSize = 2 * c.WorkerCount
	}
	if c.WorkQueueSize < 0 {
		return errors.New("work queue size must be > 0")
	}
	if c.OutQueueSize == 0 {
		c.OutQueueSize = defaultOutQueueSize
	}
	if c.OutQueueSize < 0 {
		return errors.New("out queue size must be > 0")
	}
	if c.DiscoveryInterval == 0 {
		c.DiscoveryInterval = defaultDiscoveryInterval
	}
	if c.DiscoveryInterval < 0 {
		return errors.New("discovery interval must be > 0")
	}
	if c.SchedulerTick == 0 {
		c.SchedulerTick = defaultSchedulerTick
	}
	if c.SchedulerTick < 0 {
		return errors.New("scheduler tick must be > 0")
	}
	if c.FlushSize == 0 {
		c.FlushSize = defaultFlushSize
	}
	if c.FlushSize < 0 {
		return errors.New("flush size must be > 0")
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.FlushInterval < 0 {
		return errors.New("flush interval must be > 0")
	}
	if c.RecvTimeout == 0 {
		c.RecvTimeout = defaultRecvTimeout
	}
	if c.RecvTimeout < 0 {
		return errors.New("recv timeout must be > 0")
	}
	return nil
}
