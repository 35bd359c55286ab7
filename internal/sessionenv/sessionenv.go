// Package sessionenv recovers the graphical session environment (DISPLAY,
// XAUTHORITY, XDG_RUNTIME_DIR) for a process started without it, such as
// an MCP server launched by an agent host.
package sessionenv

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/1broseidon/termpilot/internal/procfs"
	"github.com/1broseidon/termpilot/internal/runtimepath"
)

// ErrNoDisplay is returned when no X display can be found.
var ErrNoDisplay = errors.New("no X display found; set display in config (e.g. display: \":1\") or export DISPLAY")

// Env is the resolved session environment.
type Env struct {
	Display    string
	XAuthority string
	RuntimeDir string
}

var (
	runCommandOutputFn        = runCommandOutput
	readDirFn                 = os.ReadDir
	procFS                    = procfs.New("")
	detectSessionX11EnvFn     = detectSessionX11Env
	detectDisplayFromSocketFn = detectDisplayFromSockets
)

// Resolve fills in the session environment. Values already present in
// base win, then configDisplay, then the logind session, then the newest
// socket in /tmp/.X11-unix.
func Resolve(base []string, configDisplay string) (Env, error) {
	e := Env{
		Display:    strings.TrimSpace(Lookup(base, "DISPLAY")),
		XAuthority: strings.TrimSpace(Lookup(base, "XAUTHORITY")),
		RuntimeDir: strings.TrimSpace(Lookup(base, "XDG_RUNTIME_DIR")),
	}
	if e.RuntimeDir == "" {
		if rd, ok := runtimepath.UserRuntimeDir(); ok {
			e.RuntimeDir = rd
		}
	}
	if e.Display == "" {
		e.Display = strings.TrimSpace(configDisplay)
	}

	if e.Display == "" || e.XAuthority == "" {
		display, xauth := detectSessionX11EnvFn()
		if e.Display == "" {
			e.Display = strings.TrimSpace(display)
		}
		if e.XAuthority == "" {
			e.XAuthority = strings.TrimSpace(xauth)
		}
	}
	if e.Display == "" {
		e.Display = detectDisplayFromSocketFn("/tmp/.X11-unix")
	}
	if e.Display == "" {
		return e, ErrNoDisplay
	}

	if e.XAuthority == "" {
		home := strings.TrimSpace(Lookup(base, "HOME"))
		if home == "" {
			home, _ = os.UserHomeDir()
		}
		if home != "" {
			candidate := filepath.Join(home, ".Xauthority")
			if _, err := os.Stat(candidate); err == nil {
				e.XAuthority = candidate
			}
		}
	}
	return e, nil
}

// Apply returns env with e's non-empty values set.
func (e Env) Apply(env []string) []string {
	out := append([]string(nil), env...)
	if e.RuntimeDir != "" {
		out = Upsert(out, "XDG_RUNTIME_DIR", e.RuntimeDir)
	}
	if e.Display != "" {
		out = Upsert(out, "DISPLAY", e.Display)
	}
	if e.XAuthority != "" {
		out = Upsert(out, "XAUTHORITY", e.XAuthority)
	}
	return out
}

// Export sets e's values in the current process environment, so that
// libraries reading $DISPLAY directly see them.
func (e Env) Export() error {
	for k, v := range map[string]string{"XDG_RUNTIME_DIR": e.RuntimeDir, "DISPLAY": e.Display, "XAUTHORITY": e.XAuthority} {
		if v == "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func runCommandOutput(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// detectSessionX11Env asks logind for a graphical session of this user
// and reads DISPLAY/XAUTHORITY from its leader process.
func detectSessionX11Env() (display string, xauthority string) {
	uid := strconv.Itoa(os.Getuid())
	out, err := runCommandOutputFn("loginctl", "list-sessions", "--no-legend")
	if err != nil {
		return "", ""
	}
	for _, sessionID := range parseLoginctlSessions(out, uid) {
		d := loginctlShowSessionProp(sessionID, "Display")
		if d == "" || strings.EqualFold(d, "n/a") {
			continue
		}

		xauth := ""
		if leader, err := strconv.Atoi(loginctlShowSessionProp(sessionID, "Leader")); err == nil && leader > 0 {
			if env, err := procFS.Environ(leader); err == nil {
				if ed := strings.TrimSpace(env["DISPLAY"]); ed != "" {
					d = ed
				}
				xauth = strings.TrimSpace(env["XAUTHORITY"])
			}
		}
		return d, xauth
	}
	return "", ""
}

func parseLoginctlSessions(output string, uid string) []string {
	var sessions []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == uid {
			sessions = append(sessions, fields[0])
		}
	}
	return sessions
}

func loginctlShowSessionProp(sessionID string, prop string) string {
	out, err := runCommandOutputFn("loginctl", "show-session", sessionID, "-p", prop, "--value")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// detectDisplayFromSockets returns the highest-numbered display with a
// socket in dir.
func detectDisplayFromSockets(dir string) string {
	entries, err := readDirFn(dir)
	if err != nil {
		return ""
	}
	var displays []int
	for _, entry := range entries {
		name := entry.Name()
		if len(name) < 2 || name[0] != 'X' {
			continue
		}
		if n, err := strconv.Atoi(name[1:]); err == nil {
			displays = append(displays, n)
		}
	}
	if len(displays) == 0 {
		return ""
	}
	sort.Ints(displays)
	return fmt.Sprintf(":%d", displays[len(displays)-1])
}

// Lookup returns the value of key in a KEY=VALUE list.
func Lookup(env []string, key string) string {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return strings.TrimPrefix(e, prefix)
		}
	}
	return ""
}

// Upsert sets key in a KEY=VALUE list, replacing an existing entry.
func Upsert(env []string, key string, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
