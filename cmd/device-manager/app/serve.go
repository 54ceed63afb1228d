package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/edgekit/device-manager/internal/command"
	"github.com/edgekit/device-manager/internal/config"
	"github.com/edgekit/device-manager/internal/container"
	"github.com/edgekit/device-manager/internal/device"
	"github.com/edgekit/device-manager/internal/logger"
	"github.com/edgekit/device-manager/internal/metrics"
	"github.com/edgekit/device-manager/internal/server"
	"github.com/edgekit/device-manager/internal/upstream"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	*GlobalOptions

	// Host and Port override the HOST and PORT environment variables when
	// set explicitly on the command line.
	Host string
	Port int

	// Workers overrides NUM_WORKERS when set explicitly.
	Workers int

	// OverlayPath is an optional YAML overlay file, hot-reloaded on
	// change.
	OverlayPath string

	// IDFile is where the device ID is persisted.
	IDFile string
}

// NewServeCommand creates the serve command.
//
// Usage:
//
//	device-manager serve [--host HOST] [--port PORT] [--workers N]
//
// With no flags the launch contract defaults apply: bind 0.0.0.0:9101
// with one command worker and request logging enabled.
func NewServeCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ServeOptions{GlobalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the device-manager server",
		Long: `Start the device-manager HTTP server.

The server discovers inference-server containers by label, exposes the
device state over HTTP, executes management commands through a worker
pool, and publishes Prometheus metrics on /metrics.

Command line flags take precedence over environment variables.`,
		Example: `  # Start with launch-contract defaults (0.0.0.0:9101, 1 worker)
  device-manager serve

  # Start with four command workers on a custom port
  device-manager serve --port 9200 --workers 4

  # Start with a hot-reloaded configuration overlay
  device-manager serve --config /etc/device-manager/overlay.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "bind address (overrides HOST)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "bind port (overrides PORT)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "command worker count (overrides NUM_WORKERS)")
	cmd.Flags().StringVar(&opts.OverlayPath, "config", "", "path to YAML configuration overlay")
	cmd.Flags().StringVar(&opts.IDFile, "id-file", device.DefaultIDPath(), "path to the persisted device ID")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.Host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.Port
	}
	if cmd.Flags().Changed("workers") {
		cfg.Commands.NumWorkers = opts.Workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if opts.Verbose {
		logger.SetLevel("debug")
	}

	// Current configuration, swapped atomically by overlay reloads.
	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	// Fail fast if the Docker daemon is unreachable: without it the
	// device manager cannot do anything useful.
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	containers, err := container.NewService(startCtx, cfg.Docker.ManagedLabel, cfg.Docker.StopTimeout)
	startCancel()
	if err != nil {
		return err
	}
	defer containers.Close()

	deviceID, err := device.LoadOrCreateDeviceID(opts.IDFile)
	if err != nil {
		return err
	}
	logger.Info("Device ID: %s", deviceID)

	discoverCtx, discoverCancel := context.WithTimeout(context.Background(), 10*time.Second)
	deviceManager := device.NewManager(discoverCtx, deviceID, containers)
	discoverCancel()

	m := metrics.New()

	store := command.NewStore(cfg.Commands.HistoryLimit)
	dispatcher := command.NewDispatcher(containers)

	clock := clockwork.NewRealClock()

	// The metrics observer is always on; when the fleet API is configured,
	// an acker additionally reports fleet command outcomes upstream.
	var fleet *upstream.Client
	observers := command.Observers{m}
	if cfg.Upstream.BaseURL != "" {
		fleet = upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, deviceID, cfg.Upstream.Timeout)
		observers = append(observers, upstream.NewAcker(fleet, cfg.Upstream.Timeout))
		logger.Info("Fleet API integration enabled: %s", cfg.Upstream.BaseURL)
	}

	// The pool gets its own context so that signal-driven shutdown does
	// not cancel in-flight commands; Stop drains them explicitly.
	pool := command.NewPool(context.Background(), cfg.Commands.NumWorkers, cfg.Commands.QueueSize, dispatcher, store, observers)

	// Background loops stop when this context is cancelled.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if fleet != nil {
		poller := upstream.NewPoller(fleet, pool, clock, cfg.Upstream.PollInterval)
		go poller.Run(bgCtx)
	}

	// The reporter always runs; interval and enabled read the current
	// configuration so overlay reloads take effect without a restart.
	var sink metrics.UpstreamSink
	if fleet != nil {
		sink = fleet
	}
	reporter := metrics.NewReporter(clock,
		func() time.Duration { return current.Load().Metrics.Interval },
		func() bool { return current.Load().Metrics.Enabled },
		deviceManager, containers, sink, m)
	go reporter.Run(bgCtx)

	if opts.OverlayPath != "" {
		applyConfig := func(merged *config.Config) {
			current.Store(merged)
			logger.SetLevel(merged.Log.Level)
			if fleet != nil {
				fleet.SetCredentials(merged.Upstream.BaseURL, merged.Upstream.APIKey)
			}
		}

		watcher, err := config.NewWatcher(opts.OverlayPath, cfg, applyConfig)
		if err != nil {
			return err
		}
		defer watcher.Close()

		// Apply the overlay once at startup if it already exists.
		if overlay, err := config.LoadOverlay(opts.OverlayPath); err == nil {
			if merged, err := overlay.Apply(cfg); err == nil {
				applyConfig(merged)
			} else {
				logger.Warn("Ignoring configuration overlay: %v", err)
			}
		}
	}

	handler := server.NewHandler(deviceManager, containers, pool)
	srv := server.NewServer(cfg, handler, m)

	shutdownError := make(chan error)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		logger.Info("Received %s, shutting down", s)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Stop(ctx)

		bgCancel()
		pool.Stop()

		shutdownError <- err
	}()

	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	if err := <-shutdownError; err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
