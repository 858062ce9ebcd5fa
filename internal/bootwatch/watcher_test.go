package bootwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/adapter"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/notifier"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/registry"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/server"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport"
	"github.com/autopeer-io/bootwatch/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/bootwatch/pkg/mqtt/topic"
	"github.com/autopeer-io/bootwatch/pkg/options"
)

func replayConfig(t *testing.T, script string) *Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		MqttOptions:      options.NewMqttOptions(),
		HttpOptions:      options.NewHttpOptions(),
		TransportOptions: options.NewTransportOptions(),
	}
	cfg.MqttOptions.Publish = false
	cfg.HttpOptions.Addr = "127.0.0.1:0"
	cfg.TransportOptions.Kind = options.TransportReplay
	cfg.TransportOptions.ReplayFile = path
	return cfg
}

func TestWatcherReplaysIntoRegistry(t *testing.T) {
	cfg := replayConfig(t, `{"type":"connect","stage":"ROM"}
{"type":"progress","complete":40}
{"type":"error","message":"stall"}
`)

	w, err := cfg.NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if w.client != nil {
		t.Error("replay without publishing must not create an mqtt client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.Adapter().Phase() != adapter.PhaseError {
		if time.Now().After(deadline) {
			t.Fatalf("replay did not reach the error phase, at %q", w.Adapter().Phase())
		}
		time.Sleep(5 * time.Millisecond)
	}

	devices := w.Registry().List()
	if len(devices) != 1 || devices[0].Progress != 40 {
		t.Errorf("registry = %+v", devices)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcherErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing replay file", func(c *Config) { c.TransportOptions.ReplayFile = "/nonexistent/events.jsonl" }},
		{"unknown transport", func(c *Config) { c.TransportOptions.Kind = "usb" }},
		{"bad broker", func(c *Config) {
			c.TransportOptions.Kind = options.TransportMQTT
			c.MqttOptions.Broker = "not a url"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := replayConfig(t, `{"type":"connect","stage":"ROM"}`)
			tt.mutate(cfg)
			if _, err := cfg.NewWatcher(); err == nil {
				t.Error("NewWatcher() succeeded")
			}
		})
	}
}

func TestNewWatcherMqtt(t *testing.T) {
	cfg := replayConfig(t, `{"type":"connect","stage":"ROM"}`)
	cfg.TransportOptions.Kind = options.TransportMQTT
	cfg.MqttOptions.Publish = true

	w, err := cfg.NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if w.client == nil || w.notifier == nil {
		t.Error("mqtt transport with publishing needs a client and a notifier")
	}
}

func TestWatcherClearsRetainedSnapshotOnShutdown(t *testing.T) {
	source := transport.NewEmitter()
	client := mqtttest.NewClient()
	topics := topic.NewBuilder("bootwatch/v1")

	w := &Watcher{
		adapter:  adapter.New(source),
		registry: registry.New(),
		notifier: notifier.NewMQTTNotifier(client, topics),
		client:   client,
		manager:  server.NewManager(),
	}
	w.adapter.Subscribe(w.notifier.Sink(adapter.ID))
	w.manager.Add("notifier", w.notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Scan attaches the adapter once Run is under way.
	deadline := time.Now().Add(2 * time.Second)
	for source.ListenerCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("adapter never attached to the source")
		}
		time.Sleep(5 * time.Millisecond)
	}
	source.Emit(transport.Connect(transport.StageROM))

	select {
	case m := <-client.Publications():
		if string(m.Payload) == "[]" {
			t.Fatalf("first publication is already empty: %s", m.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("device snapshot never published")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	published := client.Published()
	last := published[len(published)-1]
	if last.Topic != topics.Devices(adapter.ID) || !last.Retain || string(last.Payload) != "[]" {
		t.Errorf("last publication = %s retain=%v %s, want retained [] on %s",
			last.Topic, last.Retain, last.Payload, topics.Devices(adapter.ID))
	}
}
