package options

import (
	"fmt"
	"os"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/bootwatch/internal/bootwatch"
	"github.com/autopeer-io/bootwatch/pkg/app"
	"github.com/autopeer-io/bootwatch/pkg/log"
	"github.com/autopeer-io/bootwatch/pkg/options"
)

type WatcherOptions struct {
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	TransportOptions *options.TransportOptions `json:"transport" mapstructure:"transport"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*WatcherOptions)(nil)

func NewWatcherOptions() *WatcherOptions {
	o := &WatcherOptions{
		MqttOptions:      options.NewMqttOptions(),
		HttpOptions:      options.NewHttpOptions(),
		TransportOptions: options.NewTransportOptions(),
		Log:              log.NewOptions(),
	}

	return o
}

func (o *WatcherOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.TransportOptions.AddFlags(fss.FlagSet("transport"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

// Complete derives a stable MQTT client id from the host name when none is set.
func (o *WatcherOptions) Complete() error {
	if o.MqttOptions.ClientID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			o.MqttOptions.ClientID = fmt.Sprintf("bootwatch-%s", host)
		}
	}
	return nil
}

func (o *WatcherOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.TransportOptions.Validate()...)
	if o.TransportOptions.Kind == options.TransportMQTT || o.MqttOptions.Publish {
		errs = append(errs, o.MqttOptions.Validate()...)
	}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *WatcherOptions) Config() (*bootwatch.Config, error) {
	return &bootwatch.Config{
		MqttOptions:      o.MqttOptions,
		HttpOptions:      o.HttpOptions,
		TransportOptions: o.TransportOptions,
	}, nil
}
