package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"maestro/internal/bus"
	"maestro/internal/config"
	"maestro/internal/instance"
	"maestro/internal/reconciler"
	"maestro/internal/server"
	"maestro/pkg/logging"
)

const appSubsystem = "App"

// Options carries the command-line level settings shared by every run
// mode. The cmd package fills it from flags before calling Setup.
type Options struct {
	// Debug lowers the log filter to debug level.
	Debug bool
	// Silent discards all log output.
	Silent bool
	// LogFormat selects text or json log lines. Empty means text.
	LogFormat string
	// ConfigPath is the configuration directory. Empty selects
	// ~/.config/maestro.
	ConfigPath string
}

// Setup initializes logging from the options and loads the
// configuration. Every mode constructor expects the returned Config.
func Setup(opts Options) (config.Config, error) {
	level := logging.LevelInfo
	if opts.Debug {
		level = logging.LevelDebug
	}
	var out io.Writer = os.Stdout
	if opts.Silent {
		out = io.Discard
	}
	if opts.LogFormat == logging.FormatJSON {
		logging.Init(logging.FormatJSON, level, out)
	} else {
		logging.InitForCLI(level, out)
	}

	path := opts.ConfigPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}
	return config.LoadConfig(path)
}

// component is one startable piece of a run mode. Start must return
// once the component is running; Stop must block until it is down.
type component struct {
	name  string
	start func(ctx context.Context) error
	stop  func()
}

// Application is an assembled run mode: an ordered list of components
// started front to back and stopped back to front, plus closers for
// resources (the bus transport) released after the last stop.
type Application struct {
	name       string
	components []component
	closers    []func()

	started []component

	// Wired pieces, populated per mode. Tests reach through these.
	bus     *bus.Bus
	service *instance.Service
	srv     *server.Server
	rec     *reconciler.Reconciler
}

func (a *Application) add(name string, start func(ctx context.Context) error, stop func()) {
	a.components = append(a.components, component{name: name, start: start, stop: stop})
}

// Start brings up every component in order. The first failure unwinds
// the already started ones in reverse and releases the closers.
func (a *Application) Start(ctx context.Context) error {
	for _, c := range a.components {
		logging.Info(appSubsystem, "Starting %s", c.name)
		if err := c.start(ctx); err != nil {
			logging.Error(appSubsystem, err, "Failed to start %s", c.name)
			a.Stop()
			return fmt.Errorf("starting %s: %w", c.name, err)
		}
		a.started = append(a.started, c)
	}
	return nil
}

// Stop shuts the started components down in reverse order, then runs
// the closers. Safe to call more than once.
func (a *Application) Stop() {
	for i := len(a.started) - 1; i >= 0; i-- {
		logging.Info(appSubsystem, "Stopping %s", a.started[i].name)
		a.started[i].stop()
	}
	a.started = nil

	for _, close := range a.closers {
		close()
	}
	a.closers = nil
}

// Run starts the application and blocks until SIGINT, SIGTERM or
// context cancellation, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	logging.Info(appSubsystem, "%s is up. Press Ctrl+C to stop.", a.name)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logging.Info(appSubsystem, "Received %s, shutting down", sig)
	case <-ctx.Done():
		logging.Info(appSubsystem, "Context cancelled, shutting down")
	}

	a.Stop()
	return nil
}
