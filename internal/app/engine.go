// Package app is the sdk-style process entry point: an Engine built with
// New()/NewWithConfig(), started with Run(), that owns config loading,
// preflight checks, manual-DI wiring of every component SPEC_FULL.md
// names, and graceful shutdown.
//
// Shape grounded on the teacher's cmd/api/bootstrap.Engine: constructors,
// OnStart/OnShutdown LIFO hooks, Run() -> loadConfig -> preflightChecks ->
// initialize -> runWithSignals. This service has no register-your-own-
// injector extensibility surface and no setters; the only override an
// embedder gets is the config file path, via NewWithConfig.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docgen/docgen-sub000/internal/infra/config"
	"github.com/docgen/docgen-sub000/internal/infra/logging"
)

// Engine is the process entry point. Create with New(), then call Run().
type Engine struct {
	configFilePath string
	config         *config.Config

	onStartHooks    []func(ctx context.Context) error
	onShutdownHooks []func(ctx context.Context) error
}

// New creates an Engine that loads configuration from the standard
// locations (see config.Load).
func New() *Engine {
	return &Engine{}
}

// NewWithConfig creates an Engine that loads config from the given file
// path instead of the standard search locations.
func NewWithConfig(configPath string) *Engine {
	return &Engine{configFilePath: configPath}
}

// OnStart registers a hook that runs after config/preflight, before the
// HTTP server starts. Hooks run synchronously in registration order.
func (e *Engine) OnStart(fn func(ctx context.Context) error) *Engine {
	e.onStartHooks = append(e.onStartHooks, fn)
	return e
}

// OnShutdown registers a hook that runs after a shutdown signal, before
// the process exits. Hooks run synchronously in reverse registration
// order (LIFO), mirroring the order OnStart brought things up.
func (e *Engine) OnShutdown(fn func(ctx context.Context) error) *Engine {
	e.onShutdownHooks = append(e.onShutdownHooks, fn)
	return e
}

// Run loads configuration, runs preflight checks, wires every component,
// and blocks serving HTTP until SIGINT/SIGTERM.
func (e *Engine) Run() error {
	ctx := context.Background()

	handler := logging.NewContextHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	slog.SetDefault(slog.New(handler))

	slog.InfoContext(ctx, "starting docgen engine")

	if err := e.loadConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := e.preflightChecks(ctx); err != nil {
		return err
	}

	app, err := e.initialize(ctx)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	e.OnStart(func(ctx context.Context) error {
		app.worker.Start(ctx)
		return nil
	})
	e.OnShutdown(func(ctx context.Context) error {
		app.worker.Stop(ctx)
		return nil
	})
	e.OnShutdown(func(ctx context.Context) error {
		return app.telemetry.Shutdown(ctx)
	})

	return e.runWithSignals(ctx, app)
}

func (e *Engine) loadConfig() error {
	if e.config != nil {
		return nil
	}

	if e.configFilePath != "" {
		cfg, err := config.LoadFromFile(e.configFilePath)
		if err != nil {
			return err
		}
		e.config = cfg
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	e.config = cfg
	return nil
}

// runWithSignals starts the app and blocks until a shutdown signal.
func (e *Engine) runWithSignals(ctx context.Context, app *appComponents) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, hook := range e.onStartHooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("onStart hook %d: %w", i, err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		// HTTPServer.Start manages its own graceful shutdown once ctx is
		// cancelled below, so only a real, non-shutdown error is ever sent.
		if err := app.httpServer.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	port := e.config.Server.Port
	fmt.Println()
	fmt.Println("  docgen is running")
	fmt.Println()
	fmt.Printf("  API:       http://localhost:%s\n", port)
	if e.config.Server.SwaggerUI {
		fmt.Printf("  Swagger:   http://localhost:%s/swagger/index.html\n", port)
	}
	fmt.Printf("  Health:    http://localhost:%s/healthz\n", port)
	fmt.Println()

	select {
	case sig := <-sigChan:
		slog.InfoContext(ctx, "received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		slog.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
		return err
	}

	// ctx is already cancelled here, so shutdown hooks get a fresh context
	// bounded by the configured shutdown timeout as their grace window.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), e.config.Server.ShutdownTimeoutDuration())
	defer cancelShutdown()
	for i := len(e.onShutdownHooks) - 1; i >= 0; i-- {
		if err := e.onShutdownHooks[i](shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "onShutdown hook error", slog.Int("hook", i), slog.Any("error", err))
		}
	}

	slog.InfoContext(ctx, "docgen engine stopped")
	return nil
}
