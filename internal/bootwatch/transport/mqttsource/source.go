// Package mqttsource feeds a transport.Source from raw stage events that an
// out-of-process USB-boot driver publishes on MQTT.
package mqttsource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport"
	"github.com/autopeer-io/bootwatch/internal/pkg/metrics"
	"github.com/autopeer-io/bootwatch/pkg/log"
	pkgmqtt "github.com/autopeer-io/bootwatch/pkg/mqtt"
	"github.com/autopeer-io/bootwatch/pkg/mqtt/topic"
)

const (
	qos = 1

	// queueSize bounds the events buffered between the MQTT receive path and delivery.
	queueSize = 256
)

var _ transport.Source = (*Source)(nil)

// Source is a transport.Source backed by an MQTT subscription. Listeners are
// called from a single delivery goroutine in the order the broker delivered the events.
type Source struct {
	*transport.Emitter

	client pkgmqtt.Client
	topic  string
	logger log.Logger

	queue    chan transport.Event
	stopped  chan struct{}
	stopOnce sync.Once
	ready    atomic.Bool
}

// New creates a source for the events of adapterID. The client must be started
// by the caller; Start only waits for its connection.
func New(client pkgmqtt.Client, builder *topic.Builder, adapterID string) *Source {
	t := builder.Events(adapterID)
	return &Source{
		Emitter: transport.NewEmitter(),
		client:  client,
		topic:   t,
		logger:  log.Std().WithName("mqttsource").WithValues("topic", t),
		queue:   make(chan transport.Event, queueSize),
		stopped: make(chan struct{}),
	}
}

// Topic returns the subscribed event topic.
func (s *Source) Topic() string {
	return s.topic
}

// Ready reports whether the subscription is active and the broker is reachable.
func (s *Source) Ready() bool {
	return s.ready.Load() && s.client.IsConnected()
}

// Start subscribes to the event topic and delivers events until ctx is done.
func (s *Source) Start(ctx context.Context) error {
	defer s.stopOnce.Do(func() { close(s.stopped) })

	s.logger.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to await mqtt connection: %w", err)
	}

	if err := s.client.Subscribe(ctx, s.topic, qos, s.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", s.topic, err)
	}
	s.ready.Store(true)
	defer s.ready.Store(false)

	s.logger.Info("Listening for boot driver events")

	for {
		select {
		case ev := <-s.queue:
			s.Emit(ev)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.client.Unsubscribe(shutdownCtx, s.topic); err != nil {
				s.logger.Error(err, "Failed to unsubscribe")
			}
			return nil
		}
	}
}

// handleMessage runs on the client's receive path.
func (s *Source) handleMessage(_ context.Context, t string, payload []byte) {
	ev, err := transport.Decode(payload)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("mqtt").Inc()
		s.logger.Warn("Dropping undecodable boot event", "received", t, "error", err.Error())
		return
	}

	select {
	case s.queue <- ev:
	case <-s.stopped:
	}
}
