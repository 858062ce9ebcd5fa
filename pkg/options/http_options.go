package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the watcher's local HTTP surface: health and
// readiness probes, /metrics and the read-only device API.
type HttpOptions struct {
	// Network is passed to net.Listen: tcp, tcp4, tcp6 or unix.
	Network string `json:"network" mapstructure:"network"`

	// Addr is host:port for the tcp networks and a socket path for unix.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout bounds reading and writing a single request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewHttpOptions serves on loopback only; the device API has no authentication.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network: "tcp",
		Addr:    "127.0.0.1:8089",
		Timeout: 30 * time.Second,
	}
}

func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Network {
	case "tcp", "tcp4", "tcp6":
		if err := ValidateAddress(o.Addr); err != nil {
			errs = append(errs, fmt.Errorf("http.addr: %w", err))
		}
	case "unix":
		if o.Addr == "" {
			errs = append(errs, fmt.Errorf("http.addr: a socket path is required for the unix network"))
		}
	default:
		errs = append(errs, fmt.Errorf("http.network: unsupported network %q", o.Network))
	}

	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout: must be positive, got %s", o.Timeout))
	}

	return errs
}

// AddFlags binds the http.* flags.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, _ ...string) {
	fs.StringVar(&o.Network, "http.network", o.Network, "Network to listen on: tcp, tcp4, tcp6 or unix.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Listen address (host:port, or a socket path for unix).")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Read and write timeout for HTTP requests.")
}
