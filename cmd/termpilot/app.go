package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/1broseidon/termpilot/internal/config"
	"github.com/1broseidon/termpilot/internal/editorctx"
	"github.com/1broseidon/termpilot/internal/logging"
	"github.com/1broseidon/termpilot/internal/nvimrpc"
	"github.com/1broseidon/termpilot/internal/platform"
	"github.com/1broseidon/termpilot/internal/probe"
	"github.com/1broseidon/termpilot/internal/procfs"
	"github.com/1broseidon/termpilot/internal/registry"
	"github.com/1broseidon/termpilot/internal/sessionenv"
	"github.com/1broseidon/termpilot/internal/spawn"
)

// app is the wired core shared by every command that touches windows or
// editors.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	backend    *platform.LinuxBackend
	registry   *registry.Registry
	client     *nvimrpc.Client
	aggregator *editorctx.Aggregator

	logCloser io.Closer
}

func newApp(cfg *config.Config) (*app, error) {
	logger, logCloser, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(logger)

	env, err := sessionenv.Resolve(os.Environ(), cfg.Display)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	if err := env.Export(); err != nil {
		logCloser.Close()
		return nil, err
	}

	backend, err := platform.NewLinuxBackendFromDisplay(env.Display)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	proc := procfs.New("")
	p := probe.New(backend, proc, cfg.TerminalClassNames(), logger)

	var launcher spawn.Launcher
	if tmpl, class, err := cfg.SpawnTemplate(); err != nil {
		logger.Warn("spawning disabled", "error", err)
		launcher = unavailableLauncher{err: err}
	} else {
		logger.Debug("spawn template resolved", "class", class, "template", tmpl)
		launcher = &spawn.ExecLauncher{
			Template:      tmpl,
			Env:           env.Apply(nil),
			NoClassMarker: !cfg.Terminal.ClassMarker,
			Logger:        logger,
		}
	}

	reg := registry.New(p, launcher, registry.Options{
		SpawnAttempts:     cfg.Spawn.MaxAttempts,
		SpawnInitialDelay: cfg.Spawn.InitialDelay.D(),
		SpawnMaxDelay:     cfg.Spawn.MaxDelay.D(),
		StartSkew:         cfg.Spawn.StartSkew.D(),
		Logger:            logger,
	})

	client := nvimrpc.NewClient(nvimrpc.Options{Logger: logger})
	locator := editorctx.NewLocator(proc, cfg.Editor.Names, cfg.Editor.SocketGlobs)

	return &app{
		cfg:        cfg,
		logger:     logger,
		backend:    backend,
		registry:   reg,
		client:     client,
		aggregator: editorctx.NewAggregator(reg, locator, client, logger),
		logCloser:  logCloser,
	}, nil
}

// contextOptions returns the configured defaults for context extraction.
func (a *app) contextOptions() editorctx.Options {
	opts := editorctx.DefaultOptions()
	opts.ContextLines = a.cfg.Editor.ContextLines
	opts.CallTimeout = a.cfg.Editor.CallTimeout.D()
	opts.Deadline = a.cfg.Editor.Deadline.D()
	return opts
}

func (a *app) Close() {
	a.client.CloseAll()
	a.backend.Disconnect()
	a.logCloser.Close()
}

// unavailableLauncher reports why no terminal can be spawned.
type unavailableLauncher struct{ err error }

func (l unavailableLauncher) Launch(context.Context, spawn.Request) (*spawn.Process, error) {
	return nil, fmt.Errorf("no usable terminal: %w", l.err)
}

func (unavailableLauncher) SupportsClassMarker() bool { return false }
