package options

import (
	"strings"
	"testing"

	"github.com/autopeer-io/bootwatch/pkg/options"
)

func TestFlagsRegistersEveryGroup(t *testing.T) {
	fss := NewWatcherOptions().Flags()

	for _, name := range []string{"transport.kind", "mqtt.broker", "http.addr", "log.level"} {
		found := false
		for _, fs := range fss.FlagSets {
			if fs.Lookup(name) != nil {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("flag --%s not registered", name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WatcherOptions)
		wantErr string
	}{
		{"defaults", func(*WatcherOptions) {}, ""},
		{"bad http addr", func(o *WatcherOptions) { o.HttpOptions.Addr = "nowhere" }, "nowhere"},
		{"replay without file", func(o *WatcherOptions) { o.TransportOptions.Kind = options.TransportReplay }, "replay-file"},
		{"bad log level", func(o *WatcherOptions) { o.Log.Level = "chatty" }, "chatty"},
		{"empty broker with mqtt transport", func(o *WatcherOptions) { o.MqttOptions.Broker = "" }, "mqtt.broker"},
		{"empty broker ignored for local replay", func(o *WatcherOptions) {
			o.TransportOptions.Kind = options.TransportReplay
			o.TransportOptions.ReplayFile = "events.jsonl"
			o.MqttOptions.Publish = false
			o.MqttOptions.Broker = ""
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewWatcherOptions()
			tt.mutate(o)

			err := o.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want an error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestCompleteSetsClientID(t *testing.T) {
	o := NewWatcherOptions()
	if err := o.Complete(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(o.MqttOptions.ClientID, "bootwatch-") {
		t.Errorf("ClientID = %q", o.MqttOptions.ClientID)
	}

	o.MqttOptions.ClientID = "fixed"
	_ = o.Complete()
	if o.MqttOptions.ClientID != "fixed" {
		t.Error("Complete overwrote an explicit client id")
	}
}

func TestConfig(t *testing.T) {
	o := NewWatcherOptions()
	cfg, err := o.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MqttOptions != o.MqttOptions || cfg.HttpOptions != o.HttpOptions || cfg.TransportOptions != o.TransportOptions {
		t.Error("Config does not carry the option groups")
	}
}
