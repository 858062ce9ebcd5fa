package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Supported transport source kinds.
const (
	TransportMQTT   = "mqtt"
	TransportReplay = "replay"
)

var _ IOptions = (*TransportOptions)(nil)

// TransportOptions selects where raw USB-boot stage events come from.
type TransportOptions struct {
	// Kind is either "mqtt" (events published by the boot driver) or "replay" (a scripted file).
	Kind string `json:"kind" mapstructure:"kind"`

	// ReplayFile is the JSON-lines script played when Kind is "replay".
	ReplayFile string `json:"replay-file" mapstructure:"replay-file"`

	// ReplayLoop restarts the script from the top when it ends.
	ReplayLoop bool `json:"replay-loop" mapstructure:"replay-loop"`
}

// NewTransportOptions creates a TransportOptions object with default parameters.
func NewTransportOptions() *TransportOptions {
	return &TransportOptions{
		Kind: TransportMQTT,
	}
}

// Validate checks that the selected transport is fully configured.
func (o *TransportOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Kind {
	case TransportMQTT:
	case TransportReplay:
		if o.ReplayFile == "" {
			errors = append(errors, fmt.Errorf("--transport.replay-file is required when --transport.kind=%s", TransportReplay))
		}
	default:
		errors = append(errors, fmt.Errorf("unsupported transport kind %q: must be %q or %q", o.Kind, TransportMQTT, TransportReplay))
	}

	return errors
}

// AddFlags adds flags for TransportOptions to the specified FlagSet.
func (o *TransportOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Kind, "transport.kind", o.Kind, "Source of USB-boot stage events ('mqtt' or 'replay').")
	fs.StringVar(&o.ReplayFile, "transport.replay-file", o.ReplayFile, "JSON-lines event script played by the replay transport.")
	fs.BoolVar(&o.ReplayLoop, "transport.replay-loop", o.ReplayLoop, "Restart the replay script when it ends.")
}
