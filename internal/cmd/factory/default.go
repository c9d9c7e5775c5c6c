package factory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/config"
	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
	"github.com/schmitthub/torrentbed/internal/logger"
	"github.com/schmitthub/torrentbed/internal/metrics"
)

// New creates a fully-wired Factory with lazy-initialized dependency closures.
// Called exactly once at the CLI entry point (internal/torrentbed/cmd.go).
// Tests should not import this package; construct &cmdutil.Factory{} directly.
func New(version, commit string) *cmdutil.Factory {
	ios := iostreams.NewIOStreams()
	ios.Logger = &logger.Log

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	f := &cmdutil.Factory{
		WorkDir:   wd,
		Version:   version,
		Commit:    commit,
		RunID:     uuid.NewString(),
		IOStreams: ios,
		Metrics:   metrics.New(),
	}

	// --- Lazy dependency closures ---

	// Config. Flags are parsed after New returns, so the loader reads
	// f.ConfigFile on first use.
	var (
		configOnce sync.Once
		configData *config.Config
		configErr  error
	)
	f.Config = func() (*config.Config, error) {
		configOnce.Do(func() {
			var opts []config.LoaderOption
			if f.ConfigFile != "" {
				opts = append(opts, config.WithConfigFile(f.ConfigFile))
			}
			configData, configErr = config.NewLoader(f.WorkDir, opts...).Load()
		})
		return configData, configErr
	}

	// Engine client
	var (
		clientOnce sync.Once
		client     *engine.Client
		clientErr  error
	)
	f.Client = func(ctx context.Context) (*engine.Client, error) {
		clientOnce.Do(func() {
			cfg, err := f.Config()
			if err != nil {
				clientErr = err
				return
			}
			client, clientErr = engine.Connect(ctx, cfg.EngineOptions(f.RunID),
				engine.WithMetrics(f.Metrics),
				engine.WithPullProgress(ios.ProgressOut()),
			)
		})
		return client, clientErr
	}
	f.CloseClient = func() {
		if client != nil {
			_ = client.Close()
		}
	}

	// Lifecycle manager
	f.Lifecycle = func(ctx context.Context) (cmdutil.Lifecycle, error) {
		cfg, err := f.Config()
		if err != nil {
			return nil, err
		}
		mc, err := cfg.ManagerConfig()
		if err != nil {
			return nil, err
		}
		cli, err := f.Client(ctx)
		if err != nil {
			return nil, err
		}
		logger.SetContext(cfg.Container.Name, f.RunID)
		return lifecycle.NewManager(cli, mc,
			lifecycle.WithMetrics(f.Metrics),
			lifecycle.WithLogger(ios.Logger),
			lifecycle.WithExecOutput(ios.Out),
		)
	}

	// Cross-process lock
	f.Lock = func(ctx context.Context) (*cmdutil.LifecycleLock, error) {
		cfg, err := f.Config()
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, cmdutil.DefaultLockTimeout)
		defer cancel()
		lock, err := cmdutil.AcquireLifecycleLock(ctx, cmdutil.LockPath(cfg.Lifecycle.LockDir, cfg.Container.Name))
		if err != nil {
			return nil, fmt.Errorf("another torrentbed process is working on %s: %w", cfg.Container.Name, err)
		}
		return lock, nil
	}

	return f
}
