package bootwatch

import (
	"fmt"
	"os"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/adapter"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/notifier"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/registry"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/server"
	httpserver "github.com/autopeer-io/bootwatch/internal/bootwatch/server/http"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport/mqttsource"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport/replay"
	"github.com/autopeer-io/bootwatch/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/bootwatch/pkg/mqtt/topic"
	"github.com/autopeer-io/bootwatch/pkg/options"
)

type Config struct {
	MqttOptions      *options.MqttOptions
	HttpOptions      *options.HttpOptions
	TransportOptions *options.TransportOptions
}

// eventSource is a transport source that runs for the lifetime of the watcher.
type eventSource interface {
	transport.Source
	server.Server
}

func (cfg *Config) NewWatcher() (*Watcher, error) {
	topicBuilder := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot)

	var mqttClient mqtt.Client
	if cfg.needsMqtt() {
		c, err := cfg.initMqttClient(topicBuilder)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		mqttClient = c
	}

	source, sourceReady, err := cfg.initSource(mqttClient, topicBuilder)
	if err != nil {
		return nil, err
	}

	devices := registry.New()
	watch := adapter.New(source)
	watch.Subscribe(devices.Sink(adapter.ID))

	w := &Watcher{
		adapter:  watch,
		registry: devices,
		client:   mqttClient,
		manager:  server.NewManager(),
	}

	ready := map[string]func() bool{"transport": sourceReady}
	if mqttClient != nil {
		ready["mqtt"] = mqttClient.IsConnected
	}

	if cfg.MqttOptions.Publish {
		w.notifier = notifier.NewMQTTNotifier(mqttClient, topicBuilder)
		watch.Subscribe(w.notifier.Sink(adapter.ID))
		w.manager.Add("notifier", w.notifier)
	}

	w.manager.Add("transport", source)
	w.manager.Add("http", httpserver.NewServer(httpserver.Config{
		Options:  cfg.HttpOptions,
		Devices:  devices,
		Adapters: map[string]httpserver.AdapterStatus{adapter.ID: watch},
		Ready:    ready,
	}))

	return w, nil
}

func (cfg *Config) needsMqtt() bool {
	return cfg.TransportOptions.Kind == options.TransportMQTT || cfg.MqttOptions.Publish
}

func (cfg *Config) initSource(client mqtt.Client, builder *mqtttopic.Builder) (eventSource, func() bool, error) {
	switch cfg.TransportOptions.Kind {
	case options.TransportMQTT:
		src := mqttsource.New(client, builder, adapter.ID)
		return src, src.Ready, nil
	case options.TransportReplay:
		player, err := replay.Load(cfg.TransportOptions.ReplayFile, replay.WithLoop(cfg.TransportOptions.ReplayLoop))
		if err != nil {
			return nil, nil, err
		}
		return player, func() bool { return true }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported transport kind %q", cfg.TransportOptions.Kind)
	}
}

func (cfg *Config) initMqttClient(builder *mqtttopic.Builder) (mqtt.Client, error) {
	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "local"
		}
		mqttConfig.ClientID = fmt.Sprintf("bootwatch-%s", host)
	}

	// Followers drop the device if the watcher vanishes without a clean shutdown.
	if cfg.MqttOptions.Publish {
		mqttConfig.WillTopic, mqttConfig.WillPayload = notifier.WillMessage(builder, adapter.ID)
		mqttConfig.WillQoS = 1
		mqttConfig.WillRetain = true
	}

	return mqtt.NewClient(mqttConfig)
}
