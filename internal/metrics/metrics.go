package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdg_bridge_build_info",
		Help: "Build information of the bridge.",
	}, []string{"version", "commit", "date"})

	DevicesKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sdg_bridge_devices_known", Help: "Devices currently tracked in the registry.",
	})
	DevicesDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_devices_discovered_total", Help: "Devices added by the discovery loop.",
	})
	DeviceConstructErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_device_construct_errors_total", Help: "Platform records rejected at device construction.",
	})
	DiscoveryErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_discovery_errors_total", Help: "Failed platform device listings.",
	})

	SchedulerDispatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_scheduler_dispatches_total", Help: "Device IDs handed to the fetch pool.",
	})
	HeapEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sdg_bridge_heap_entries", Help: "Entries in the due-time heap, stale ones included.",
	})

	FetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdg_bridge_fetch_outcomes_total", Help: "Fetch attempts by outcome.",
	}, []string{"result"})
	ChannelsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_channels_created_total", Help: "Channels created lazily on the platform.",
	})
	OutQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sdg_bridge_out_queue_depth", Help: "Batches waiting in the output queue.",
	})

	BatchesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_batches_published_total", Help: "Batches handed to the bus.",
	})
	PublishErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_publish_errors_total", Help: "Failed bus flushes (buffer dropped).",
	})
	BatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdg_bridge_batches_dropped_total", Help: "Batches lost to failed flushes.",
	})
)
