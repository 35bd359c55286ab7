// Package registry owns the mapping from opaque instance ids to running
// terminal instances and keeps it truthful by reconciling against the
// probe. It is the only place instance ids are minted or retired.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/termpilot/internal/platform"
	"github.com/1broseidon/termpilot/internal/probe"
	"github.com/1broseidon/termpilot/internal/spawn"
)

var (
	// ErrNotFound is returned for ids that were never issued, have been
	// reaped, or still belong to an unconfirmed spawn.
	ErrNotFound = errors.New("instance not found")
	// ErrSpawnTimeout is returned when no window matching a launch shows up
	// within the retry bound.
	ErrSpawnTimeout = errors.New("spawned terminal did not appear")
)

// State is the liveness of an instance.
type State string

const (
	StateActive      State = "active"
	StateUnreachable State = "unreachable" // window listed, owner gone from the process table
	StateReaped      State = "reaped"
)

// Instance is one known terminal instance. Values handed out by the
// registry are copies.
type Instance struct {
	ID               string            `json:"id"`
	PID              int               `json:"pid"`
	WindowID         platform.WindowID `json:"window_id"`
	Title            string            `json:"title"`
	Class            string            `json:"class,omitempty"`
	LaunchCommand    string            `json:"launch_command"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	State            State             `json:"state"`
	Spawned          bool              `json:"spawned"`
}

func (i Instance) key() probe.Key {
	return probe.Key{PID: i.PID, WindowID: i.WindowID}
}

// SpawnRequest mirrors spawn.Request minus the correlation marker, which
// the registry owns.
type SpawnRequest struct {
	Command          string
	Args             []string
	WorkingDirectory string
	Title            string
}

// Diff summarizes one reconciliation pass.
type Diff struct {
	Added       []string
	Reaped      []string
	Unreachable []string
	Bound       []string // tentative spawns confirmed by this pass
}

// Empty reports whether the pass changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Reaped) == 0 && len(d.Unreachable) == 0 && len(d.Bound) == 0
}

// Options tune spawn binding and provide test seams.
type Options struct {
	// SpawnAttempts bounds the number of probe polls after a launch.
	SpawnAttempts int
	// SpawnInitialDelay is the wait before the first poll; it doubles per
	// attempt up to SpawnMaxDelay.
	SpawnInitialDelay time.Duration
	SpawnMaxDelay     time.Duration
	// StartSkew is how much earlier than the launch a process may appear
	// to have started and still match by working directory.
	StartSkew time.Duration
	// ProbeTimeout bounds a single probe enumeration.
	ProbeTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
	After  func(time.Duration) <-chan time.Time
	NewID  func() string
	Getwd  func() (string, error)
}

func (o *Options) applyDefaults() {
	if o.SpawnAttempts <= 0 {
		o.SpawnAttempts = 8
	}
	if o.SpawnInitialDelay <= 0 {
		o.SpawnInitialDelay = 100 * time.Millisecond
	}
	if o.SpawnMaxDelay <= 0 {
		o.SpawnMaxDelay = 2 * time.Second
	}
	if o.StartSkew <= 0 {
		o.StartSkew = time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.After == nil {
		o.After = time.After
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Getwd == nil {
		o.Getwd = os.Getwd
	}
}

// pendingSpawn is a tentative record waiting for its window.
type pendingSpawn struct {
	instance   Instance
	marker     string
	pid        int
	dir        string
	launchedAt time.Time
	bound      bool
}

// Registry is safe for concurrent use.
type Registry struct {
	probe    probe.Enumerator
	launcher spawn.Launcher
	opts     Options

	// passMu linearizes reconciliation passes, which include spawn
	// confirmation.
	passMu sync.Mutex

	mu      sync.RWMutex
	records map[string]*Instance
	byKey   map[probe.Key]string
	pending map[string]*pendingSpawn
}

// New creates an empty registry. launcher may be nil when spawning is not
// needed.
func New(p probe.Enumerator, launcher spawn.Launcher, opts Options) *Registry {
	opts.applyDefaults()
	return &Registry{
		probe:    p,
		launcher: launcher,
		opts:     opts,
		records:  make(map[string]*Instance),
		byKey:    make(map[probe.Key]string),
		pending:  make(map[string]*pendingSpawn),
	}
}

// List runs a reconciliation pass and returns the active instances,
// oldest first.
func (r *Registry) List(ctx context.Context) ([]Instance, error) {
	if _, err := r.Reconcile(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instance, 0, len(r.records))
	for _, rec := range r.records {
		if rec.State == StateActive {
			out = append(out, *rec)
		}
	}
	sortInstances(out)
	return out, nil
}

// Get returns the instance for id as of the last reconciliation pass.
func (r *Registry) Get(_ context.Context, id string) (Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *rec, nil
}

// Reconcile runs one pass: reap records whose (pid, window) is gone,
// confirm tentative spawns, and mint records for newly discovered
// windows.
func (r *Registry) Reconcile(ctx context.Context) (Diff, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	facts, err := r.probe.Enumerate(probeCtx)
	cancel()
	if err != nil {
		return Diff{}, fmt.Errorf("probe: %w", err)
	}

	r.mu.Lock()
	diff := r.apply(facts)
	r.mu.Unlock()

	if !diff.Empty() {
		r.opts.Logger.Info("registry: reconciled",
			"added", len(diff.Added),
			"reaped", len(diff.Reaped),
			"unreachable", len(diff.Unreachable),
			"bound", len(diff.Bound),
			"total", r.Len())
	}
	return diff, nil
}

// Len returns the number of tracked records in any state.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// apply mutates the record set to match facts. Caller holds r.mu.
func (r *Registry) apply(facts []probe.Fact) Diff {
	var diff Diff

	present := make(map[probe.Key]probe.Fact, len(facts))
	for _, f := range facts {
		present[f.Key()] = f
	}

	// 1. Reap.
	for id, rec := range r.records {
		if _, ok := present[rec.key()]; ok {
			continue
		}
		rec.State = StateReaped
		delete(r.records, id)
		delete(r.byKey, rec.key())
		diff.Reaped = append(diff.Reaped, id)
		r.opts.Logger.Debug("registry: reaped instance", "id", id, "key", rec.key())
	}

	// Refresh survivors and collect facts nobody owns yet.
	var unclaimed []probe.Fact
	for _, f := range facts {
		id, ok := r.byKey[f.Key()]
		if !ok {
			unclaimed = append(unclaimed, f)
			continue
		}
		rec := r.records[id]
		if f.Title != "" {
			rec.Title = f.Title
		}
		if rec.WorkingDirectory == "" {
			rec.WorkingDirectory = f.WorkingDir
		}
		switch {
		case !f.Alive && rec.State == StateActive:
			rec.State = StateUnreachable
			diff.Unreachable = append(diff.Unreachable, id)
		case f.Alive && rec.State == StateUnreachable:
			rec.State = StateActive
		}
	}

	// 2a. Confirm tentative spawns before discovery can claim their windows.
	unclaimed, diff.Bound = r.bindPending(unclaimed)

	// 2b. Discover.
	for _, f := range unclaimed {
		if !f.Alive {
			continue
		}
		rec := r.instanceFromFact(r.opts.NewID(), f)
		r.insert(rec)
		diff.Added = append(diff.Added, rec.ID)
		r.opts.Logger.Debug("registry: discovered instance", "id", rec.ID, "key", f.Key(), "title", f.Title)
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Reaped)
	sort.Strings(diff.Unreachable)
	sort.Strings(diff.Bound)
	return diff
}

// bindPending matches tentative spawns against unclaimed facts, strongest
// signal first across all pending spawns: correlation marker, then launched
// pid, then working directory plus start time. It returns the facts left
// over and the ids that were bound.
func (r *Registry) bindPending(unclaimed []probe.Fact) ([]probe.Fact, []string) {
	if len(r.pending) == 0 || len(unclaimed) == 0 {
		return unclaimed, nil
	}

	pendings := make([]*pendingSpawn, 0, len(r.pending))
	for _, p := range r.pending {
		if !p.bound {
			pendings = append(pendings, p)
		}
	}
	// Oldest launch first so rapid successive spawns bind in order.
	sort.Slice(pendings, func(i, j int) bool {
		if !pendings[i].launchedAt.Equal(pendings[j].launchedAt) {
			return pendings[i].launchedAt.Before(pendings[j].launchedAt)
		}
		return pendings[i].instance.ID < pendings[j].instance.ID
	})

	claimed := make(map[probe.Key]bool)
	var bound []string
	matchers := []func(p *pendingSpawn, candidates []probe.Fact) int{
		matchMarker,
		matchPID,
		r.matchRecentDir,
	}
	for _, match := range matchers {
		for _, p := range pendings {
			if p.bound {
				continue
			}
			candidates := make([]probe.Fact, 0, len(unclaimed))
			for _, f := range unclaimed {
				if f.Alive && !claimed[f.Key()] {
					candidates = append(candidates, f)
				}
			}
			idx := match(p, candidates)
			if idx < 0 {
				continue
			}
			f := candidates[idx]
			claimed[f.Key()] = true
			r.confirm(p, f)
			bound = append(bound, p.instance.ID)
		}
	}

	rest := unclaimed[:0:0]
	for _, f := range unclaimed {
		if !claimed[f.Key()] {
			rest = append(rest, f)
		}
	}
	return rest, bound
}

func matchMarker(p *pendingSpawn, candidates []probe.Fact) int {
	for i, f := range candidates {
		if f.HasMarker(p.marker) {
			return i
		}
	}
	return -1
}

func matchPID(p *pendingSpawn, candidates []probe.Fact) int {
	for i, f := range candidates {
		if p.pid > 0 && f.PID == p.pid {
			return i
		}
	}
	return -1
}

// matchRecentDir picks the most recently started candidate in the launch
// directory that did not start before the launch (minus skew). Racy when
// several terminals are spawned in the same directory at once; the marker
// and pid matchers exist to avoid relying on it.
func (r *Registry) matchRecentDir(p *pendingSpawn, candidates []probe.Fact) int {
	if p.dir == "" {
		return -1
	}
	earliest := p.launchedAt.Add(-r.opts.StartSkew)
	best := -1
	for i, f := range candidates {
		if f.StartedAt.IsZero() || f.StartedAt.Before(earliest) {
			continue
		}
		if filepath.Clean(f.WorkingDir) != p.dir {
			continue
		}
		if best < 0 || f.StartedAt.After(candidates[best].StartedAt) {
			best = i
		}
	}
	return best
}

// confirm promotes a tentative record to active under the key of f.
// Caller holds r.mu.
func (r *Registry) confirm(p *pendingSpawn, f probe.Fact) {
	rec := p.instance
	rec.PID = f.PID
	rec.WindowID = f.WindowID
	rec.Class = f.Class
	rec.State = StateActive
	if f.Title != "" {
		rec.Title = f.Title
	}
	if f.WorkingDir != "" {
		rec.WorkingDirectory = f.WorkingDir
	}
	if len(f.CommandLine) > 0 {
		rec.LaunchCommand = joinArgv(f.CommandLine)
	}
	if !f.StartedAt.IsZero() {
		rec.CreatedAt = f.StartedAt
	}
	p.bound = true
	p.instance = rec
	r.insert(&rec)
	r.opts.Logger.Info("registry: spawn confirmed", "id", rec.ID, "key", f.Key())
}

func (r *Registry) insert(rec *Instance) {
	r.records[rec.ID] = rec
	r.byKey[rec.key()] = rec.ID
}

func (r *Registry) instanceFromFact(id string, f probe.Fact) *Instance {
	created := f.StartedAt
	if created.IsZero() {
		created = r.opts.Now()
	}
	return &Instance{
		ID:               id,
		PID:              f.PID,
		WindowID:         f.WindowID,
		Title:            f.Title,
		Class:            f.Class,
		LaunchCommand:    joinArgv(f.CommandLine),
		WorkingDirectory: f.WorkingDir,
		CreatedAt:        created,
		State:            StateActive,
	}
}

func sortInstances(in []Instance) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].CreatedAt.Equal(in[j].CreatedAt) {
			return in[i].CreatedAt.Before(in[j].CreatedAt)
		}
		return in[i].ID < in[j].ID
	})
}

// joinArgv renders argv for display, quoting words that need it.
func joinArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\$") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
