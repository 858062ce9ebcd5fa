// Package bootwatch wires the boot-device watch adapter to its transport, the
// device registry, the MQTT notifier and the HTTP surface.
package bootwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/adapter"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/notifier"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/registry"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/server"
	"github.com/autopeer-io/bootwatch/pkg/log"
	"github.com/autopeer-io/bootwatch/pkg/mqtt"
)

type Watcher struct {
	adapter  *adapter.Adapter
	registry *registry.Registry
	notifier *notifier.MQTTNotifier
	client   mqtt.Client
	manager  *server.Manager
}

// Registry returns the merged device list.
func (w *Watcher) Registry() *registry.Registry {
	return w.registry
}

// Adapter returns the boot-device watch adapter.
func (w *Watcher) Adapter() *adapter.Adapter {
	return w.adapter
}

func (w *Watcher) Run(ctx context.Context) error {
	log.Info("Starting bootwatch", "adapter", adapter.ID)

	if w.client != nil {
		// The client outlives ctx so the final retained snapshot can still be
		// published once the servers have stopped.
		clientCtx, stopClient := context.WithCancel(context.WithoutCancel(ctx))
		defer stopClient()

		if err := w.client.Start(clientCtx); err != nil {
			return fmt.Errorf("failed to start mqtt client: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			w.client.Disconnect(shutdownCtx)
		}()
	}

	w.adapter.Scan()
	defer w.adapter.Close()

	err := w.manager.Start(ctx)

	log.Info("Watcher shutting down...")
	if w.notifier != nil {
		w.clearRetained()
	}

	return err
}

// clearRetained replaces the retained snapshot with an empty one, since the
// device is no longer watched.
func (w *Watcher) clearRetained() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := w.notifier.Notify(shutdownCtx, adapter.ID, nil); err != nil {
		log.Warn("Failed to clear retained device snapshot", "error", err.Error())
	}
}
