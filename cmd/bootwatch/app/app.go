package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/bootwatch/cmd/bootwatch/app/options"
	"github.com/autopeer-io/bootwatch/pkg/app"
	"github.com/autopeer-io/bootwatch/pkg/log"
)

const (
	commandName = "bootwatch"
	commandDesc = `bootwatch follows a BeagleBone booting over USB through its ROM,
secondary loader and mass storage stages, and keeps the list of discoverable
boot devices up to date for local and MQTT subscribers.`
)

func NewApp() *app.App {
	opts := options.NewWatcherOptions()
	application := app.NewApp(
		commandName,
		"Launch the boot device watcher",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.WatcherOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		watcher, err := cfg.NewWatcher()
		if err != nil {
			log.Error(err, "failed to create watcher")
			return fmt.Errorf("failed to create watcher: %w", err)
		}

		return watcher.Run(ctx)
	}
}
