package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/1broseidon/termpilot/internal/spawn"
)

// markerPrefix namespaces correlation markers so they are recognizable in
// WM_CLASS listings.
const markerPrefix = "termpilot-"

// Spawn launches a terminal and blocks until a reconciliation pass binds it
// to a window or the bounded retry runs out. The instance id is minted up
// front but the record only becomes visible once bound.
func (r *Registry) Spawn(ctx context.Context, req SpawnRequest) (Instance, error) {
	if r.launcher == nil {
		return Instance{}, errors.New("spawning is not configured")
	}

	id := r.opts.NewID()
	marker := markerPrefix + id

	dir := req.WorkingDirectory
	if dir == "" {
		if wd, err := r.opts.Getwd(); err == nil {
			dir = wd
		}
	}
	if dir != "" {
		dir = filepath.Clean(dir)
	}

	proc, err := r.launcher.Launch(ctx, spawn.Request{
		Command:          req.Command,
		Args:             req.Args,
		WorkingDirectory: req.WorkingDirectory,
		Title:            req.Title,
		Marker:           marker,
	})
	if err != nil {
		return Instance{}, fmt.Errorf("launch terminal: %w", err)
	}

	launchedAt := proc.StartedAt
	if launchedAt.IsZero() {
		launchedAt = r.opts.Now()
	}
	pending := &pendingSpawn{
		instance: Instance{
			ID:               id,
			Title:            req.Title,
			LaunchCommand:    joinArgv(proc.Argv),
			WorkingDirectory: dir,
			CreatedAt:        launchedAt,
			State:            StateActive,
			Spawned:          true,
		},
		marker:     marker,
		pid:        proc.PID,
		dir:        dir,
		launchedAt: launchedAt,
	}

	r.mu.Lock()
	r.pending[id] = pending
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	r.opts.Logger.Info("registry: waiting for spawned terminal", "id", id, "pid", proc.PID, "dir", dir)

	delay := r.opts.SpawnInitialDelay
	for attempt := 1; attempt <= r.opts.SpawnAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Instance{}, ctx.Err()
		case <-r.opts.After(delay):
		}

		if _, err := r.Reconcile(ctx); err != nil {
			r.opts.Logger.Warn("registry: reconcile during spawn failed", "id", id, "attempt", attempt, "error", err)
		}

		r.mu.RLock()
		bound := pending.bound
		inst := pending.instance
		r.mu.RUnlock()
		if bound {
			return inst, nil
		}

		// A launcher that forks and exits cleanly (gnome-terminal, kitty
		// --single-instance) may still produce a window, so only a failed
		// exit ends the wait early.
		if exited, waitErr := proc.Exited(); exited && waitErr != nil {
			return Instance{}, fmt.Errorf("terminal exited before its window appeared: %w", waitErr)
		}

		delay *= 2
		if delay > r.opts.SpawnMaxDelay {
			delay = r.opts.SpawnMaxDelay
		}
	}

	return Instance{}, fmt.Errorf("%w after %d attempts (pid %d)", ErrSpawnTimeout, r.opts.SpawnAttempts, proc.PID)
}

// Run reconciles on a fixed interval until ctx is cancelled. A panic in a
// pass is logged and the loop continues.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.opts.Logger.Info("registry: reconciler started", "interval", interval)
	r.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			r.opts.Logger.Info("registry: reconciler stopped")
			return
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

func (r *Registry) runPass(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Error("registry: panic in reconcile pass", "panic", rec)
		}
	}()
	if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
		r.opts.Logger.Warn("registry: reconcile failed", "error", err)
	}
}
