// Package probe enumerates terminal-emulator instances by joining the
// window manager's client list with the process table. It holds no state
// between calls.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/termpilot/internal/platform"
	"github.com/1broseidon/termpilot/internal/procfs"
	"github.com/1broseidon/termpilot/internal/terminals"
)

// Key identifies one instance: a process together with its window.
type Key struct {
	PID      int
	WindowID platform.WindowID
}

func (k Key) String() string {
	return fmt.Sprintf("pid=%d window=0x%x", k.PID, uint32(k.WindowID))
}

// Fact is one observed terminal window and what the process table says
// about its owner.
type Fact struct {
	PID         int
	WindowID    platform.WindowID
	Title       string
	Class       string
	Marker      string // WM_CLASS instance; carries the spawn marker when set
	EnvMarker   string // value of MarkerEnv in the owner's environment
	CommandLine []string
	WorkingDir  string
	StartedAt   time.Time // zero when unknown
	Alive       bool      // owner present in the process table
}

// MarkerEnv is the environment variable spawned terminals carry so their
// windows can be correlated with the spawn request.
const MarkerEnv = "TERMPILOT_INSTANCE"

// HasMarker reports whether f carries marker in its WM_CLASS instance or
// environment.
func (f Fact) HasMarker(marker string) bool {
	return marker != "" && (f.Marker == marker || f.EnvMarker == marker)
}

// Key returns the registry matching key for f.
func (f Fact) Key() Key {
	return Key{PID: f.PID, WindowID: f.WindowID}
}

// Enumerator is the registry's view of the probe.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Fact, error)
}

// WindowLister is the subset of platform.Backend the probe needs.
type WindowLister interface {
	ListWindows() ([]platform.Window, error)
}

// Probe is the live Enumerator backed by X11 and /proc.
type Probe struct {
	windows  WindowLister
	detector *terminals.Detector
	proc     procfs.FS
	logger   *slog.Logger
}

var _ Enumerator = (*Probe)(nil)

// New creates a probe. classes lists the WM_CLASS names treated as
// terminal emulators.
func New(windows WindowLister, proc procfs.FS, classes []string, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		windows:  windows,
		detector: terminals.NewDetector(classes),
		proc:     proc,
		logger:   logger,
	}
}

// Enumerate returns one Fact per terminal window whose owning pid is
// known. Windows without _NET_WM_PID cannot be keyed and are skipped.
func (p *Probe) Enumerate(ctx context.Context) ([]Fact, error) {
	windows, err := p.listWindows(ctx)
	if err != nil {
		return nil, err
	}

	facts := make([]Fact, 0, len(windows))
	for _, w := range p.detector.Filter(windows) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.PID <= 0 {
			p.logger.Debug("probe: skipping terminal window without pid", "window_id", w.ID, "class", w.AppID)
			continue
		}
		facts = append(facts, p.describe(w))
	}
	return facts, nil
}

// listWindows runs the window query off the caller's goroutine so a stuck
// X server cannot outlive ctx.
func (p *Probe) listWindows(ctx context.Context) ([]platform.Window, error) {
	type result struct {
		windows []platform.Window
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		windows, err := p.windows.ListWindows()
		ch <- result{windows, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list windows: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("list windows: %w", r.err)
		}
		return r.windows, nil
	}
}

func (p *Probe) describe(w platform.Window) Fact {
	fact := Fact{
		PID:      w.PID,
		WindowID: w.ID,
		Title:    w.Title,
		Class:    w.AppID,
		Marker:   w.Instance,
		Alive:    p.proc.Alive(w.PID),
	}
	if !fact.Alive {
		return fact
	}

	if argv, err := p.proc.Cmdline(w.PID); err == nil {
		fact.CommandLine = argv
	}
	flags := ParseTerminalArgs(fact.CommandLine)
	if fact.Title == "" {
		fact.Title = flags.Title
	}
	fact.WorkingDir = flags.WorkingDir
	if fact.WorkingDir == "" {
		if cwd, err := p.proc.Cwd(w.PID); err == nil {
			fact.WorkingDir = cwd
		}
	}
	if env, err := p.proc.Environ(w.PID); err == nil {
		fact.EnvMarker = env[MarkerEnv]
	}
	if started, err := p.proc.StartTime(w.PID); err == nil {
		fact.StartedAt = started
	}
	return fact
}

// TerminalArgs are the launch parameters recoverable from a terminal's argv.
type TerminalArgs struct {
	Title      string
	WorkingDir string
	Command    []string
}

// ParseTerminalArgs extracts title, working directory and the command
// that follows -e/--command from a terminal argv. The flag spellings cover
// Alacritty, kitty, foot, xterm and gnome-terminal.
func ParseTerminalArgs(argv []string) TerminalArgs {
	var out TerminalArgs
	for i := 1; i < len(argv); i++ {
		arg := argv[i]
		name, value, hasValue := strings.Cut(arg, "=")
		next := func() (string, bool) {
			if hasValue {
				return value, true
			}
			if i+1 < len(argv) {
				i++
				return argv[i], true
			}
			return "", false
		}

		switch name {
		case "-T", "-t", "--title":
			if v, ok := next(); ok {
				out.Title = v
			}
		case "--working-directory", "--directory", "-d":
			if v, ok := next(); ok {
				out.WorkingDir = v
			}
		case "-e", "--command", "-x", "--":
			if hasValue {
				out.Command = append([]string{value}, argv[i+1:]...)
			} else if i+1 < len(argv) {
				out.Command = append([]string(nil), argv[i+1:]...)
			}
			return out
		}
	}
	return out
}
