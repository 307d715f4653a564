//go:build linux

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/tiagocoutinho/linuxgo/cmd"
	"github.com/tiagocoutinho/linuxgo/hotplug"
	"github.com/tiagocoutinho/linuxgo/internal/config"
	"github.com/tiagocoutinho/linuxgo/internal/events"
	"github.com/tiagocoutinho/linuxgo/internal/logging"
	"github.com/tiagocoutinho/linuxgo/internal/server"
	"github.com/tiagocoutinho/linuxgo/internal/updater"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port   string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	DevDir string `help:"Directory scanned for device nodes" default:"/dev" toml:"server.dev_dir" env:"SERVER_DEV_DIR"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics at /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Hotplug settings
	HotplugEnabled bool `help:"Watch for device node add/remove events" default:"true" toml:"hotplug.enabled" env:"HOTPLUG_ENABLED"`

	// Update settings
	UpdateEnabled    bool   `help:"Enable the self-update API" default:"false" toml:"update.enabled" env:"UPDATE_ENABLED"`
	UpdateRepository string `help:"GitHub repository for updates" default:"tiagocoutinho/linuxgo" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Include prereleases in update checks" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingV4L2    string `help:"Video device logging level" default:"info" toml:"logging.v4l2" env:"LOGGING_V4L2"`
	LoggingGPIO    string `help:"GPIO logging level" default:"info" toml:"logging.gpio" env:"LOGGING_GPIO"`
	LoggingHotplug string `help:"Hotplug watcher logging level" default:"info" toml:"logging.hotplug" env:"LOGGING_HOTPLUG"`
	LoggingServer  string `help:"API server logging level" default:"info" toml:"logging.server" env:"LOGGING_SERVER"`
	LoggingUpdater string `help:"Updater logging level" default:"info" toml:"logging.updater" env:"LOGGING_UPDATER"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"v4l2":    opts.LoggingV4L2,
				"gpio":    opts.LoggingGPIO,
				"hotplug": opts.LoggingHotplug,
				"server":  opts.LoggingServer,
				"updater": opts.LoggingUpdater,
			},
		})
		logger := logging.GetLogger("main")

		// Re-apply logging levels when the config file changes on disk.
		loggingLoader := func(path string) (logging.Config, error) {
			return config.LoadLoggingConfig(path), nil
		}
		configWatcher := config.NewConfigWatcher(opts.Config, loggingLoader,
			logging.GetLogger("config"))
		configWatcher.OnReload(func(cfg logging.Config) {
			logger.Info("Reloading logging configuration")
			logging.Initialize(cfg)
		})

		eventBus := events.New()

		var watcher *hotplug.Watcher
		if opts.HotplugEnabled {
			watcher = hotplug.NewWatcher(eventBus, logging.GetLogger("hotplug"))
			eventBus.Subscribe(func(e events.DeviceAddedEvent) {
				logger.Info("Device added", "path", e.Path, "class", e.Class)
			})
			eventBus.Subscribe(func(e events.DeviceRemovedEvent) {
				logger.Info("Device removed", "path", e.Path, "class", e.Class)
			})
		}

		serverOpts := &server.Options{
			DevDir:   opts.DevDir,
			Metrics:  opts.MetricsEnabled,
			EventBus: eventBus,
		}

		if opts.UpdateEnabled {
			svc, err := updater.NewService(&updater.Options{
				Repository: opts.UpdateRepository,
				Prerelease: opts.UpdatePrerelease,
			})
			if err != nil {
				logger.Warn("Update service unavailable", "error", err)
			} else {
				serverOpts.UpdateService = svc
			}
		}

		srv := server.NewServer(serverOpts)

		hooks.OnStart(func() {
			if err := configWatcher.Start(); err != nil {
				logger.Warn("Config watcher failed to start, hot-reload disabled", "error", err)
			}
			if watcher != nil {
				if err := watcher.Start(); err != nil {
					logger.Warn("Hotplug watcher failed to start", "error", err)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if err := srv.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}
			if watcher != nil {
				if err := watcher.Stop(); err != nil {
					logger.Error("Error stopping hotplug watcher", "error", err)
				}
			}
			_ = configWatcher.Stop()
		})
	})

	root := cli.Root()
	root.AddCommand(cmd.CreateDevicesCmd())
	root.AddCommand(cmd.CreateCaptureCmd())
	root.AddCommand(cmd.CreateGPIOCmd())
	root.AddCommand(cmd.CreateLEDCmd())
	root.AddCommand(cmd.CreateThermalCmd())
	root.AddCommand(cmd.CreateInputCmd())
	root.AddCommand(cmd.CreateMIDICmd())
	root.AddCommand(cmd.CreateUpdateCmd())
	root.AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
