package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/goforge/internal/bus"
	"github.com/nextlevelbuilder/goforge/internal/config"
	"github.com/nextlevelbuilder/goforge/internal/coordinator"
	"github.com/nextlevelbuilder/goforge/internal/loop"
	"github.com/nextlevelbuilder/goforge/internal/providers"
	"github.com/nextlevelbuilder/goforge/internal/store"
	"github.com/nextlevelbuilder/goforge/internal/store/pg"
	"github.com/nextlevelbuilder/goforge/internal/store/sqlite"
	"github.com/nextlevelbuilder/goforge/internal/telemetry"
	"github.com/nextlevelbuilder/goforge/internal/tools"
)

// app bundles everything a run mode needs: the agent set, loop supervision,
// persistence, and the shutdown hooks collected along the way.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	llm      *providers.Client
	registry *tools.Registry
	coord    *coordinator.Coordinator
	loops    *loop.Manager
	stores   *store.Stores
	recorder *store.Recorder
	watcher  *coordinator.Watcher

	shutdownTelemetry func(context.Context) error
}

func setupLogging() *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(log)
	return log
}

// buildApp assembles the platform from config: provider client, tool
// registry, router, agents, loop manager, and the optional store and file
// watcher. The caller owns ctx; cancelling it stops every component.
func buildApp(ctx context.Context) (*app, error) {
	log := setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	llm, err := providers.NewClient(ctx, cfg.LLM.Provider, cfg.LLM.Model, credentials(cfg), log,
		providers.WithWallClock(cfg.LLM.MaxWallClock()))
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	registry := tools.NewRegistry(log)
	if err := tools.RegisterBuiltins(registry, cfg.Project.Path, cfg.Tools.RestrictToWorkspace); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	projectCtx := coordinator.NewProjectContext(cfg.Project.DefaultName, cfg.Project.Path)
	router := bus.NewRouter(cfg.Bus.RouterCapacity)
	coord := coordinator.New(coordinator.Config{
		Router:     router,
		LLM:        llm,
		Registry:   registry,
		ProjectCtx: projectCtx,
		InboxSize:  cfg.Bus.InboxCapacity,
		Logger:     log,
	})

	loops := loop.NewManager(coord, log,
		loop.WithTimeout(cfg.Loop.Timeout()),
		loop.WithMonitorTick(cfg.Loop.MonitorPeriod()),
		loop.WithIdleWindow(cfg.Loop.IdleThreshold()),
		loop.WithIdleTicksMin(cfg.Loop.IdleTicksRequired),
	)

	a := &app{
		cfg:               cfg,
		log:               log,
		llm:               llm,
		registry:          registry,
		coord:             coord,
		loops:             loops,
		shutdownTelemetry: shutdownTelemetry,
	}

	a.stores, err = openStores(cfg)
	if err != nil {
		return nil, err
	}
	a.recorder = store.NewRecorder(a.stores, cfg.LLM.Provider, llm.Model(), log)

	if cfg.Project.Watch {
		a.watcher, err = coordinator.NewWatcher(projectCtx, log)
		if err != nil {
			return nil, fmt.Errorf("create watcher: %w", err)
		}
	}
	return a, nil
}

// start launches the agent runtime. Split from buildApp so tests can wire
// listeners before any goroutine runs.
func (a *app) start(ctx context.Context) error {
	a.coord.Start(ctx)
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		a.log.Info("app.watching", "path", a.cfg.Project.Path)
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	a.loops.Stop()
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			a.log.Warn("app.store_close_failed", "error", err)
		}
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		a.log.Warn("app.telemetry_shutdown_failed", "error", err)
	}
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	switch cfg.Store.Driver {
	case "postgres":
		s, err := pg.NewStores(cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.NewStores(cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "":
		// No driver configured: conversation history is not persisted.
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func credentials(cfg *config.Config) providers.Credentials {
	return providers.Credentials{
		AnthropicAPIKey:  cfg.Creds.AnthropicAPIKey,
		OpenRouterAPIKey: cfg.Creds.OpenRouterAPIKey,
		GeminiAPIKey:     cfg.Creds.GeminiAPIKey,
		AWSRegion:        cfg.Creds.AWSRegion,
		AWSAccessKeyID:   cfg.Creds.AWSAccessKeyID,
		AWSSecretKey:     cfg.Creds.AWSSecretAccessKey,
		AWSSessionToken:  cfg.Creds.AWSSessionToken,
		LocalEndpoint:    cfg.Creds.LocalEndpoint,
	}
}
