package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// TransportEvents counts raw events received from the boot driver.
	TransportEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootwatch_transport_events_total",
			Help: "Total number of USB-boot lifecycle events received from the transport.",
		},
		[]string{"type", "stage"}, // stage is empty for progress/error
	)

	// SnapshotsEmitted counts devicesChanged emissions per adapter.
	SnapshotsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootwatch_snapshots_emitted_total",
			Help: "Total number of device snapshots emitted to subscribers.",
		},
		[]string{"adapter"},
	)

	// DisconnectsAbsorbed counts handoff disconnects filtered by the progress sentinels.
	DisconnectsAbsorbed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootwatch_disconnects_absorbed_total",
			Help: "Disconnects recognised as an expected stage handoff and ignored.",
		},
		[]string{"stage"},
	)

	// DecodeFailures counts transport payloads that could not be parsed into an event.
	DecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootwatch_transport_decode_failures_total",
			Help: "Transport payloads dropped because they were not a valid boot event.",
		},
		[]string{"source"},
	)

	// PublishFailures counts snapshot publications the broker did not accept.
	PublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootwatch_snapshot_publish_failures_total",
			Help: "Device snapshots that could not be published to MQTT.",
		},
		[]string{"adapter"},
	)

	// VisibleDevices is the size of the last snapshot per adapter (0 or 1 for beagleboot).
	VisibleDevices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bootwatch_visible_devices",
			Help: "Number of devices in the last emitted snapshot.",
		},
		[]string{"adapter"},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	Registry.MustRegister(TransportEvents)
	Registry.MustRegister(SnapshotsEmitted)
	Registry.MustRegister(DisconnectsAbsorbed)
	Registry.MustRegister(DecodeFailures)
	Registry.MustRegister(PublishFailures)
	Registry.MustRegister(VisibleDevices)
}
