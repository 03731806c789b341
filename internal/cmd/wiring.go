package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Iron-Ham/flixbridge/internal/bridge"
	"github.com/Iron-Ham/flixbridge/internal/config"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/session"
	"github.com/Iron-Ham/flixbridge/internal/transport"
	"github.com/Iron-Ham/flixbridge/internal/watcher"
)

// launcher starts compiler processes. Tests replace it.
var launcher session.Launcher = session.ExecLauncher{}

func bridgeConfig(cfg *config.Config) bridge.Config {
	return bridge.Config{
		Session: session.Config{
			Java:         cfg.Compiler.Java,
			Jar:          cfg.Compiler.Jar,
			Port:         cfg.Compiler.Port,
			ReadyTimeout: cfg.Compiler.ReadyTimeout,
			CrashPattern: cfg.Compiler.CrashPattern,
		},
		RequestTimeout: cfg.Requests.Timeout,
		MaxRestarts:    cfg.Session.MaxRestarts,
		RestartBackoff: cfg.Session.RestartBackoff,
		MaxBackoff:     cfg.Session.MaxBackoff,
		ResetWindow:    cfg.Session.ResetWindow,
	}
}

func transportOptions(cfg *config.Config) []transport.Option {
	return []transport.Option{
		transport.WithMaxRetries(cfg.Transport.MaxRetries),
		transport.WithRetryInterval(cfg.Transport.RetryInterval),
		transport.WithDialTimeout(cfg.Transport.DialTimeout),
	}
}

func watcherOptions(cfg *config.Config, logger *logging.Logger, bus *event.Bus) []watcher.Option {
	return []watcher.Option{
		watcher.WithInclude(cfg.Workspace.Include...),
		watcher.WithIgnore(cfg.Workspace.Ignore...),
		watcher.WithDebounce(cfg.Workspace.Debounce),
		watcher.WithLogger(logger),
		watcher.WithEventBus(bus),
	}
}

// runtime is a started bridge plus the logger and bus behind it.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	bus    *event.Bus
	bridge *bridge.Bridge
}

// startRuntime loads the configuration, discovers the workspace files under
// workspace and starts the compiler. storage overrides compiler.storage_path
// when non-empty.
func startRuntime(ctx context.Context, workspace, storage string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	bus := event.NewBus(logger)

	files, err := watcher.Discover(ctx, []string{workspace}, watcherOptions(cfg, logger, bus)...)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to discover workspace files: %w", err)
	}

	if storage != "" {
		cfg.Compiler.StoragePath = storage
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	storagePath := cfg.Compiler.ResolveStoragePath(cwd)

	b := bridge.New(bridgeConfig(cfg),
		bridge.WithLogger(logger),
		bridge.WithEventBus(bus),
		bridge.WithSessionOptions(
			session.WithLauncher(launcher),
			session.WithTransportOptions(transportOptions(cfg)...),
		),
	)
	logger.Info("starting compiler", "storage", storagePath, "files", len(files))
	if err := b.Start(ctx, session.StartOptions{StoragePath: storagePath, WorkspaceFiles: files}); err != nil {
		b.Stop()
		_ = logger.Close()
		return nil, fmt.Errorf("failed to start compiler: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, bus: bus, bridge: b}, nil
}

// Close stops the compiler and flushes the log.
func (r *runtime) Close() {
	r.bridge.Stop()
	_ = r.logger.Close()
}
