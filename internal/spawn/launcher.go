// Package spawn launches terminal-emulator processes from a configurable
// command template.
package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/1broseidon/termpilot/internal/probe"
)

// Request describes one terminal to launch.
type Request struct {
	Command          string
	Args             []string
	WorkingDirectory string
	Title            string
	// Marker is an opaque correlation token. It is exported as
	// probe.MarkerEnv and, when the template supports it, used as the
	// WM_CLASS instance name.
	Marker string
}

// Process is a launched terminal.
type Process struct {
	PID       int
	Argv      []string
	StartedAt time.Time

	done    chan struct{}
	mu      sync.Mutex
	waitErr error
}

// NewProcess returns a Process that never exits on its own; callers
// signal exit with MarkExited. Useful for launchers that do not own an
// exec.Cmd.
func NewProcess(pid int, argv []string, startedAt time.Time) *Process {
	return &Process{PID: pid, Argv: argv, StartedAt: startedAt, done: make(chan struct{})}
}

// MarkExited records the process exit.
func (p *Process) MarkExited(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
	}
	p.waitErr = err
	close(p.done)
}

// Exited reports whether the launched process has already terminated, and
// with which error.
func (p *Process) Exited() (bool, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return true, p.waitErr
	default:
		return false, nil
	}
}

// Launcher starts terminal processes.
type Launcher interface {
	Launch(ctx context.Context, req Request) (*Process, error)
	// SupportsClassMarker reports whether launched windows carry
	// Request.Marker as their WM_CLASS instance.
	SupportsClassMarker() bool
}

// ExecLauncher renders a template and starts it with os/exec.
type ExecLauncher struct {
	Template string
	// Env entries (KEY=VALUE) override the inherited environment.
	Env []string
	// NoClassMarker keeps {{class}} empty; the marker is then only
	// exported through the environment.
	NoClassMarker bool
	Logger        *slog.Logger
}

var _ Launcher = (*ExecLauncher)(nil)

// SupportsClassMarker implements Launcher.
func (l *ExecLauncher) SupportsClassMarker() bool {
	return !l.NoClassMarker && SupportsClass(l.Template)
}

// Launch implements Launcher. The terminal runs in its own session so it
// outlives the caller.
func (l *ExecLauncher) Launch(ctx context.Context, req Request) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var command []string
	if strings.TrimSpace(req.Command) != "" {
		command = append([]string{req.Command}, req.Args...)
	} else if len(req.Args) > 0 {
		return nil, errors.New("args given without a command")
	}

	dir := req.WorkingDirectory
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("working directory %q is not a directory", dir)
		}
	}

	class := req.Marker
	if l.NoClassMarker {
		class = ""
	}
	argv, err := RenderTemplate(l.Template, TemplateValues{
		Dir:     dir,
		Title:   req.Title,
		Class:   class,
		Command: command,
	})
	if err != nil {
		return nil, fmt.Errorf("render spawn template: %w", err)
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("terminal %q not found: %w", argv[0], err)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), l.Env...)
	if req.Marker != "" {
		cmd.Env = append(cmd.Env, probe.MarkerEnv+"="+req.Marker)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	proc := NewProcess(cmd.Process.Pid, argv, startedAt)
	go func() {
		proc.MarkExited(cmd.Wait())
	}()

	l.logger().Info("spawn: terminal started", "pid", proc.PID, "argv", argv)
	return proc, nil
}

func (l *ExecLauncher) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
