package sessionenv

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/1broseidon/termpilot/internal/procfs"
)

func stubDetectFns(t *testing.T, detectSession func() (string, string), detectSocket func(string) string) {
	t.Helper()
	origSession := detectSessionX11EnvFn
	origSocket := detectDisplayFromSocketFn
	detectSessionX11EnvFn = detectSession
	detectDisplayFromSocketFn = detectSocket
	t.Cleanup(func() {
		detectSessionX11EnvFn = origSession
		detectDisplayFromSocketFn = origSocket
	})
}

func TestResolve_ExistingEnvWins(t *testing.T) {
	stubDetectFns(t,
		func() (string, string) { return ":99", "/tmp/should-not-be-used" },
		func(string) string { return ":88" },
	)

	e, err := Resolve([]string{"HOME=" + t.TempDir(), "DISPLAY=:7", "XAUTHORITY=/tmp/xauth-existing"}, ":1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Display != ":7" || e.XAuthority != "/tmp/xauth-existing" {
		t.Fatalf("unexpected env %+v", e)
	}
}

func TestResolve_ConfigDisplayAndHomeXAuthority(t *testing.T) {
	stubDetectFns(t,
		func() (string, string) { return "", "" },
		func(string) string { return "" },
	)

	home := t.TempDir()
	xauth := filepath.Join(home, ".Xauthority")
	if err := os.WriteFile(xauth, []byte("cookie"), 0600); err != nil {
		t.Fatalf("write xauthority: %v", err)
	}

	e, err := Resolve([]string{"HOME=" + home}, ":1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Display != ":1" || e.XAuthority != xauth {
		t.Fatalf("unexpected env %+v", e)
	}
}

func TestResolve_DetectedSession(t *testing.T) {
	stubDetectFns(t,
		func() (string, string) { return ":5", "/tmp/xauth-detected" },
		func(string) string { return "" },
	)

	e, err := Resolve([]string{"HOME=" + t.TempDir()}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Display != ":5" || e.XAuthority != "/tmp/xauth-detected" {
		t.Fatalf("unexpected env %+v", e)
	}
}

func TestResolve_SocketFallbackAndRuntimeDir(t *testing.T) {
	stubDetectFns(t,
		func() (string, string) { return "", "" },
		func(string) string { return ":3" },
	)
	xdg := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", xdg)

	e, err := Resolve([]string{"HOME=" + t.TempDir()}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Display != ":3" || e.RuntimeDir != xdg {
		t.Fatalf("unexpected env %+v", e)
	}

	env := e.Apply([]string{"DISPLAY=:0", "PATH=/bin"})
	if Lookup(env, "DISPLAY") != ":3" || Lookup(env, "XDG_RUNTIME_DIR") != xdg || Lookup(env, "PATH") != "/bin" {
		t.Fatalf("Apply = %v", env)
	}
}

func TestResolve_NoDisplay(t *testing.T) {
	stubDetectFns(t,
		func() (string, string) { return "", "" },
		func(string) string { return "" },
	)
	_, err := Resolve([]string{"HOME=" + t.TempDir()}, "")
	if !errors.Is(err, ErrNoDisplay) {
		t.Fatalf("expected ErrNoDisplay, got %v", err)
	}
}

func TestDetectSessionX11Env_ReadsLeaderEnviron(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "4242"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	environ := "DISPLAY=:4\x00XAUTHORITY=/run/user/1000/xauth\x00"
	if err := os.WriteFile(filepath.Join(root, "4242", "environ"), []byte(environ), 0600); err != nil {
		t.Fatalf("write environ: %v", err)
	}

	origRun, origFS := runCommandOutputFn, procFS
	t.Cleanup(func() { runCommandOutputFn, procFS = origRun, origFS })
	procFS = procfs.New(root)
	uid := strconv.Itoa(os.Getuid())
	runCommandOutputFn = func(name string, args ...string) (string, error) {
		switch strings.Join(args, " ") {
		case "list-sessions --no-legend":
			return "c1 " + uid + " me seat0\n", nil
		case "show-session c1 -p Display --value":
			return ":0\n", nil
		case "show-session c1 -p Leader --value":
			return "4242\n", nil
		}
		return "", errors.New("unexpected loginctl call")
	}

	display, xauth := detectSessionX11Env()
	if display != ":4" || xauth != "/run/user/1000/xauth" {
		t.Fatalf("got %q %q", display, xauth)
	}
}

func TestDetectDisplayFromSockets(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"X0", "X2", "not-a-display"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if got := detectDisplayFromSockets(dir); got != ":2" {
		t.Fatalf("detectDisplayFromSockets = %q, want %q", got, ":2")
	}
}

func TestParseLoginctlSessions(t *testing.T) {
	out := strings.Join([]string{
		"1 1000 george seat0",
		"2 1001 alice seat0",
		"3 1000 george seat1",
		"",
	}, "\n")
	got := parseLoginctlSessions(out, "1000")
	if len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Fatalf("parseLoginctlSessions = %v, want [1 3]", got)
	}
}
