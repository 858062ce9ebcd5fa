// Package notifier mirrors adapter snapshots to MQTT as retained messages so
// registries in other processes can follow the device list.
package notifier

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/device"
	"github.com/autopeer-io/bootwatch/internal/pkg/metrics"
	"github.com/autopeer-io/bootwatch/pkg/log"
	pkgmqtt "github.com/autopeer-io/bootwatch/pkg/mqtt"
	"github.com/autopeer-io/bootwatch/pkg/mqtt/topic"
)

const (
	qos    = 1
	retain = true

	// RetryInterval is the pause after a failed publication before it is retried.
	RetryInterval = time.Second
)

// Encode renders a snapshot as published. An empty snapshot encodes as [].
func Encode(snap device.Snapshot) ([]byte, error) {
	return json.Marshal(snap.Clone())
}

// WillMessage returns the retained Last Will that clears adapterID's devices
// when the watcher drops off the broker.
func WillMessage(builder *topic.Builder, adapterID string) (string, []byte) {
	payload, _ := Encode(nil)
	return builder.Devices(adapterID), payload
}

type MQTTNotifier struct {
	client pkgmqtt.Client
	topics *topic.Builder
	retry  time.Duration

	mu      sync.Mutex
	pending map[string]device.Snapshot
	wake    chan struct{}
}

func NewMQTTNotifier(client pkgmqtt.Client, builder *topic.Builder) *MQTTNotifier {
	return &MQTTNotifier{
		client:  client,
		topics:  builder,
		retry:   RetryInterval,
		pending: make(map[string]device.Snapshot),
		wake:    make(chan struct{}, 1),
	}
}

// Notify publishes snap on adapterID's device topic.
func (n *MQTTNotifier) Notify(ctx context.Context, adapterID string, snap device.Snapshot) error {
	payload, err := Encode(snap)
	if err != nil {
		return err
	}

	t := n.topics.Devices(adapterID)
	return n.client.Publish(ctx, t, qos, retain, payload)
}

// Sink returns a non-blocking snapshot callback for adapterID. Snapshots not
// yet published are superseded by newer ones, since only the retained state matters.
func (n *MQTTNotifier) Sink(adapterID string) func(device.Snapshot) {
	return func(snap device.Snapshot) {
		n.enqueue(adapterID, snap.Clone(), true)
	}
}

func (n *MQTTNotifier) enqueue(adapterID string, snap device.Snapshot, replace bool) {
	n.mu.Lock()
	if _, exists := n.pending[adapterID]; replace || !exists {
		n.pending[adapterID] = snap
	}
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *MQTTNotifier) drain() map[string]device.Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()

	batch := n.pending
	n.pending = make(map[string]device.Snapshot)
	return batch
}

// Start publishes queued snapshots until ctx is done.
func (n *MQTTNotifier) Start(ctx context.Context) error {
	log.Info("Publishing device snapshots", "topic", n.topics.DevicesWildcard())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.wake:
		}

		if failed := n.flush(ctx); failed && ctx.Err() == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(n.retry):
			}
			select {
			case n.wake <- struct{}{}:
			default:
			}
		}
	}
}

// flush publishes every pending snapshot. Failed ones are queued again unless
// a newer snapshot arrived meanwhile.
func (n *MQTTNotifier) flush(ctx context.Context) (failed bool) {
	batch := n.drain()
	if len(batch) == 0 {
		return false
	}

	if err := n.client.AwaitConnection(ctx); err != nil {
		for id, snap := range batch {
			n.enqueue(id, snap, false)
		}
		return true
	}

	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		snap := batch[id]
		if err := n.Notify(ctx, id, snap); err != nil {
			metrics.PublishFailures.WithLabelValues(id).Inc()
			log.Error(err, "Failed to publish device snapshot", "adapter", id, "devices", len(snap))
			n.enqueue(id, snap, false)
			failed = true
			continue
		}
		log.Debug("Published device snapshot", "adapter", id, "devices", len(snap))
	}

	return failed
}
