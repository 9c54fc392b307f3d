package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
	"maestro/internal/client"
	"maestro/internal/config"
	"maestro/internal/instance"
	"maestro/internal/platform"
	"maestro/internal/platform/container"
	"maestro/internal/platform/pod"
	"maestro/internal/platform/process"
	"maestro/internal/reconciler"
	"maestro/internal/server"
	"maestro/internal/worker"
	"maestro/pkg/logging"
)

// httpShutdownTimeout bounds the HTTP server's graceful drain on stop.
const httpShutdownTimeout = 10 * time.Second

// connectBus builds the configured bus transport. Redis connection
// failures surface here, before any component starts.
func connectBus(ctx context.Context, cfg config.BusConfig) (bus.Transport, error) {
	if cfg.Transport == config.TransportRedis {
		return bus.NewRedisTransport(ctx, cfg.Redis)
	}
	return bus.NewMemoryTransport(), nil
}

// NewAPI assembles the API node: bus, instance service, optional
// definitions autoload, HTTP surface.
func NewAPI(ctx context.Context, cfg config.Config) (*Application, error) {
	transport, err := connectBus(ctx, cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("connecting bus: %w", err)
	}

	a := &Application{name: "api node"}
	a.closers = append(a.closers, func() { _ = transport.Close() })
	a.bus = bus.New(transport)
	a.service = instance.New(a.bus, instance.Config{RequestTimeout: cfg.API.RequestTimeout})
	a.srv = server.New(a.service, server.Config{Addr: cfg.API.Listen})

	a.add("instance service", a.service.Start, a.service.Stop)
	a.addDefinitions(cfg.API.DefinitionsDir)
	a.addHTTPServer()
	return a, nil
}

// NewWorker assembles a platform worker node.
func NewWorker(ctx context.Context, cfg config.Config) (*Application, error) {
	driver, err := newDriver(cfg.Worker)
	if err != nil {
		return nil, err
	}

	transport, err := connectBus(ctx, cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("connecting bus: %w", err)
	}

	a := &Application{name: fmt.Sprintf("%s worker", cfg.Worker.Platform)}
	a.closers = append(a.closers, func() { _ = transport.Close() })
	a.bus = bus.New(transport)

	w := worker.New(a.bus, driver, cfg.Worker.HealthInterval)
	a.add(a.name, w.Start, w.Stop)
	return a, nil
}

// NewReconciler assembles a reconciler node against a remote API. The
// change detector prefers the bus; when the bus is unavailable (or the
// transport is memory, which cannot span processes) it falls back to
// polling the status change ring over HTTP.
func NewReconciler(ctx context.Context, cfg config.Config) (*Application, error) {
	apiClient, err := client.New(client.Config{BaseURL: cfg.Reconciler.APIBaseURL})
	if err != nil {
		return nil, fmt.Errorf("building API client: %w", err)
	}

	a := &Application{name: "reconciler"}

	var detector reconciler.ChangeDetector
	if cfg.Bus.Transport == config.TransportRedis {
		transport, err := bus.NewRedisTransport(ctx, cfg.Bus.Redis)
		if err != nil {
			logging.Warn(appSubsystem, "Redis bus unavailable, falling back to status ring polling: %v", err)
			detector = reconciler.NewPollingDetector(apiClient, 0)
		} else {
			a.closers = append(a.closers, func() { _ = transport.Close() })
			a.bus = bus.New(transport)
			detector = reconciler.NewBusDetector(a.bus)
		}
	} else {
		logging.Info(appSubsystem, "Memory bus cannot span processes, using status ring polling for change detection")
		detector = reconciler.NewPollingDetector(apiClient, 0)
	}

	a.rec = reconciler.New(apiClient, detector, reconcilerConfig(cfg.Reconciler))
	a.add("reconciler", a.rec.Start, a.rec.Stop)
	return a, nil
}

// NewStandalone assembles everything in one process over the in-memory
// bus: the development mode. The worker platform still follows the
// configuration, defaulting to process.
func NewStandalone(ctx context.Context, cfg config.Config) (*Application, error) {
	driver, err := newDriver(cfg.Worker)
	if err != nil {
		return nil, err
	}

	transport := bus.NewMemoryTransport()

	a := &Application{name: "standalone"}
	a.closers = append(a.closers, func() { _ = transport.Close() })
	a.bus = bus.New(transport)
	a.service = instance.New(a.bus, instance.Config{RequestTimeout: cfg.API.RequestTimeout})
	a.srv = server.New(a.service, server.Config{Addr: cfg.API.Listen})

	w := worker.New(a.bus, driver, cfg.Worker.HealthInterval)

	a.add("instance service", a.service.Start, a.service.Stop)
	a.add(fmt.Sprintf("%s worker", cfg.Worker.Platform), w.Start, w.Stop)
	a.addDefinitions(cfg.API.DefinitionsDir)
	a.addHTTPServer()

	// The reconciler dials the in-process HTTP surface, so it starts
	// last, once the listener is bound.
	recCfg := reconcilerConfig(cfg.Reconciler)
	a.add("reconciler", func(ctx context.Context) error {
		apiClient, err := client.New(client.Config{BaseURL: localBaseURL(a.srv.Addr())})
		if err != nil {
			return fmt.Errorf("building API client: %w", err)
		}
		a.rec = reconciler.New(apiClient, reconciler.NewBusDetector(a.bus), recCfg)
		return a.rec.Start(ctx)
	}, func() {
		if a.rec != nil {
			a.rec.Stop()
		}
	})
	return a, nil
}

func (a *Application) addDefinitions(dir string) {
	if dir == "" {
		return
	}
	watcher := instance.NewDefinitionsWatcher(a.service, dir, 0)
	a.add("definitions autoload", func(ctx context.Context) error {
		if err := a.service.LoadDirectory(ctx, dir); err != nil {
			logging.Warn(appSubsystem, "Loading definitions from %s: %v", dir, err)
		}
		return watcher.Start(ctx)
	}, watcher.Stop)
}

func (a *Application) addHTTPServer() {
	a.add("http server", a.srv.Start, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn(appSubsystem, "HTTP server shutdown: %v", err)
		}
	})
}

func newDriver(cfg config.WorkerConfig) (platform.Driver, error) {
	switch cfg.Platform {
	case api.PlatformProcess:
		return process.New(process.Config{
			Executable:      cfg.Executable,
			WorkingDir:      cfg.WorkingDir,
			ConfigDir:       cfg.ConfigDir,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, platform.NewDefaultPortAllocator())
	case api.PlatformContainer:
		return container.New(container.Config{
			Image:           cfg.Image,
			ConfigDir:       cfg.ConfigDir,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, platform.NewDefaultPortAllocator())
	case api.PlatformPod:
		return pod.New(pod.Config{
			Image:           cfg.Image,
			Namespace:       cfg.Namespace,
			ShutdownTimeout: cfg.ShutdownTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown worker platform %q", cfg.Platform)
	}
}

func reconcilerConfig(cfg config.ReconcilerConfig) reconciler.Config {
	return reconciler.Config{
		PollingInterval:           cfg.PollingInterval,
		MaxRetries:                cfg.MaxRetries,
		RetryDelay:                cfg.RetryDelay,
		ReconcileTimeout:          cfg.ReconciliationTimeout,
		Concurrency:               int64(cfg.Concurrency),
		ReconcileStoppedInstances: cfg.ReconcileStopped,
		SkipErrorInstances:        !cfg.ReconcileError,
	}
}

// localBaseURL turns a bound listen address into a dialable URL,
// substituting loopback for unspecified hosts.
func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
