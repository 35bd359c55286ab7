package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/termpilot/internal/platform"
	"github.com/1broseidon/termpilot/internal/probe"
	"github.com/1broseidon/termpilot/internal/spawn"
)

type fakeProbe struct {
	mu    sync.Mutex
	facts []probe.Fact
	err   error
	calls int
	// onEnumerate runs before facts are returned; used to make spawned
	// windows appear after a number of polls.
	onEnumerate func(call int)
}

func (f *fakeProbe) Enumerate(context.Context) ([]probe.Fact, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	hook := f.onEnumerate
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]probe.Fact(nil), f.facts...), nil
}

func (f *fakeProbe) set(facts ...probe.Fact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts = facts
}

func (f *fakeProbe) add(fact probe.Fact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts = append(f.facts, fact)
}

type fakeLauncher struct {
	pid      int
	err      error
	requests []spawn.Request
	proc     *spawn.Process
}

func (l *fakeLauncher) Launch(_ context.Context, req spawn.Request) (*spawn.Process, error) {
	l.requests = append(l.requests, req)
	if l.err != nil {
		return nil, l.err
	}
	l.proc = spawn.NewProcess(l.pid, []string{"alacritty", "--class", req.Marker + ",Alacritty"}, baseTime)
	return l.proc, nil
}

func (l *fakeLauncher) SupportsClassMarker() bool { return true }

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fact(pid int, win uint32) probe.Fact {
	return probe.Fact{
		PID:         pid,
		WindowID:    platform.WindowID(win),
		Title:       fmt.Sprintf("term-%d", pid),
		Class:       "Alacritty",
		Marker:      "Alacritty",
		CommandLine: []string{"alacritty"},
		WorkingDir:  "/home/u",
		StartedAt:   baseTime.Add(time.Duration(pid) * time.Second),
		Alive:       true,
	}
}

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- baseTime
	return ch
}

func newTestRegistry(p probe.Enumerator, l spawn.Launcher) *Registry {
	n := 0
	var mu sync.Mutex
	return New(p, l, Options{
		SpawnAttempts:     5,
		SpawnInitialDelay: time.Millisecond,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:               func() time.Time { return baseTime },
		After:             immediate,
		Getwd:             func() (string, error) { return "/work", nil },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%02d", n)
		},
	})
}

func TestReconcile_DiscoversAndIsIdempotent(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100), fact(20, 0x200))
	r := newTestRegistry(p, nil)

	diff, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Len(t, diff.Added, 2)

	first, err := r.List(context.Background())
	require.NoError(t, err)
	second, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, 10, first[0].PID, "oldest first")
	assert.Equal(t, 20, first[1].PID)
	assert.NotEqual(t, first[0].ID, first[1].ID)

	diff, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestReconcile_ReapsMissingKeys(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100), fact(20, 0x200))
	r := newTestRegistry(p, nil)
	list, err := r.List(context.Background())
	require.NoError(t, err)
	gone := list[1].ID

	p.set(fact(10, 0x100))
	diff, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{gone}, diff.Reaped)

	_, err = r.Get(context.Background(), gone)
	assert.ErrorIs(t, err, ErrNotFound)

	// The same key reappearing is a new instance.
	p.set(fact(10, 0x100), fact(20, 0x200))
	diff, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, diff.Added, 1)
	assert.NotEqual(t, gone, diff.Added[0])
}

func TestReconcile_WindowReuseIsNewInstance(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100))
	r := newTestRegistry(p, nil)
	list, err := r.List(context.Background())
	require.NoError(t, err)
	old := list[0].ID

	// Same window id, different owner.
	p.set(fact(11, 0x100))
	diff, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{old}, diff.Reaped)
	assert.Len(t, diff.Added, 1)
}

func TestReconcile_Unreachable(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100))
	r := newTestRegistry(p, nil)
	list, err := r.List(context.Background())
	require.NoError(t, err)
	id := list[0].ID

	dead := fact(10, 0x100)
	dead.Alive = false
	p.set(dead)
	diff, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, diff.Unreachable)

	inst, err := r.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateUnreachable, inst.State)

	active, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	// Dead owners are never discovered as new instances.
	p.set(dead, probe.Fact{PID: 30, WindowID: 0x300})
	diff, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diff.Added)
}

func TestReconcile_ProbeError(t *testing.T) {
	p := &fakeProbe{err: errors.New("x11 gone")}
	r := newTestRegistry(p, nil)
	_, err := r.List(context.Background())
	assert.ErrorContains(t, err, "x11 gone")
}

func TestGet_UnknownID(t *testing.T) {
	r := newTestRegistry(&fakeProbe{}, nil)
	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSpawn_BindsByMarker(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100))
	l := &fakeLauncher{pid: 999}
	r := newTestRegistry(p, l)

	p.onEnumerate = func(call int) {
		if call == 2 {
			f := fact(50, 0x500)
			f.Marker = markerPrefix + "id-01"
			f.WorkingDir = "/elsewhere"
			p.add(f)
		}
	}

	inst, err := r.Spawn(context.Background(), SpawnRequest{Title: "edit"})
	require.NoError(t, err)
	assert.Equal(t, "id-01", inst.ID)
	assert.Equal(t, 50, inst.PID)
	assert.Equal(t, platform.WindowID(0x500), inst.WindowID)
	assert.True(t, inst.Spawned)
	assert.Equal(t, StateActive, inst.State)

	require.Len(t, l.requests, 1)
	assert.Equal(t, markerPrefix+"id-01", l.requests[0].Marker)

	got, err := r.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst, got)

	list, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2, "spawned window is not discovered twice")
}

func TestSpawn_BindsByEnvMarkerAndPID(t *testing.T) {
	p := &fakeProbe{}
	l := &fakeLauncher{pid: 77}
	r := newTestRegistry(p, l)

	p.onEnumerate = func(call int) {
		if call == 1 {
			p.add(fact(77, 0x700))
		}
	}
	inst, err := r.Spawn(context.Background(), SpawnRequest{})
	require.NoError(t, err)
	assert.Equal(t, 77, inst.PID)

	p.onEnumerate = func(call int) {
		if call == 2 {
			f := fact(88, 0x800)
			f.EnvMarker = markerPrefix + "id-02"
			p.add(f)
		}
	}
	inst, err = r.Spawn(context.Background(), SpawnRequest{})
	require.NoError(t, err)
	assert.Equal(t, 88, inst.PID)
}

func TestSpawn_FallsBackToRecentWorkingDir(t *testing.T) {
	p := &fakeProbe{}
	old := fact(5, 0x50)
	old.WorkingDir = "/work"
	old.StartedAt = baseTime.Add(-time.Hour)
	p.set(old)

	l := &fakeLauncher{pid: 1}
	r := newTestRegistry(p, l)
	_, err := r.List(context.Background())
	require.NoError(t, err)

	p.onEnumerate = func(call int) {
		if call == 2 {
			a := fact(60, 0x600)
			a.WorkingDir = "/work"
			a.StartedAt = baseTime.Add(time.Second)
			b := fact(61, 0x610)
			b.WorkingDir = "/work/"
			b.StartedAt = baseTime.Add(2 * time.Second)
			other := fact(62, 0x620)
			other.WorkingDir = "/tmp"
			p.add(a)
			p.add(b)
			p.add(other)
		}
	}

	inst, err := r.Spawn(context.Background(), SpawnRequest{})
	require.NoError(t, err)
	assert.Equal(t, 61, inst.PID, "most recent start in the launch dir wins")
}

func TestSpawn_Timeout(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100))
	l := &fakeLauncher{pid: 1}
	r := newTestRegistry(p, l)

	_, err := r.Spawn(context.Background(), SpawnRequest{})
	assert.ErrorIs(t, err, ErrSpawnTimeout)
	assert.Equal(t, 5, p.calls)

	r.mu.RLock()
	assert.Empty(t, r.pending)
	r.mu.RUnlock()

	_, err = r.Get(context.Background(), "id-01")
	assert.ErrorIs(t, err, ErrNotFound, "tentative ids never become visible")
}

func TestSpawn_FailedExitEndsEarly(t *testing.T) {
	p := &fakeProbe{}
	l := &fakeLauncher{pid: 1}
	r := newTestRegistry(p, l)
	p.onEnumerate = func(int) {
		l.proc.MarkExited(errors.New("exit status 1"))
	}

	_, err := r.Spawn(context.Background(), SpawnRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSpawnTimeout)
	assert.Equal(t, 1, p.calls)
}

func TestSpawn_LaunchError(t *testing.T) {
	r := newTestRegistry(&fakeProbe{}, &fakeLauncher{err: errors.New("no alacritty")})
	_, err := r.Spawn(context.Background(), SpawnRequest{})
	assert.ErrorContains(t, err, "no alacritty")

	r = newTestRegistry(&fakeProbe{}, nil)
	_, err = r.Spawn(context.Background(), SpawnRequest{})
	assert.Error(t, err)
}

func TestSpawn_ContextCancelled(t *testing.T) {
	p := &fakeProbe{}
	r := New(p, &fakeLauncher{pid: 1}, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		After:  func(time.Duration) <-chan time.Time { return nil },
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Spawn(ctx, SpawnRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcile_ConcurrentReaders(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100), fact(20, 0x200))
	r := newTestRegistry(p, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := r.List(context.Background())
			assert.NoError(t, err)
			assert.Len(t, list, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, r.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := &fakeProbe{}
	p.set(fact(10, 0x100))
	r := newTestRegistry(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestJoinArgv(t *testing.T) {
	assert.Equal(t, "alacritty -e nvim", joinArgv([]string{"alacritty", "-e", "nvim"}))
	assert.Equal(t, `sh -c 'echo hi'`, joinArgv([]string{"sh", "-c", "echo hi"}))
	assert.Equal(t, `a ''`, joinArgv([]string{"a", ""}))
}
