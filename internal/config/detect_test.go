package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectTerminals_FromPath(t *testing.T) {
	dir := t.TempDir()
	kittyPath := writeFakeBinary(t, dir, "kitty")
	xtermPath := writeFakeBinary(t, dir, "xterm")
	t.Setenv("PATH", dir)

	cfg := DefaultConfig()
	delete(cfg.Terminal.SpawnTemplates, "XTerm")

	got := cfg.DetectTerminals()
	if len(got) != 2 {
		t.Fatalf("expected 2 detected terminals, got %#v", got)
	}
	if got[0].Class != "XTerm" || got[1].Class != "kitty" {
		t.Fatalf("unexpected order: %q, %q", got[0].Class, got[1].Class)
	}
	if got[0].Path != xtermPath || got[1].Path != kittyPath {
		t.Fatalf("unexpected paths: %#v", got)
	}
	if got[0].Configured {
		t.Fatalf("xterm has no template and must not be configured")
	}
	if !got[1].Configured || got[1].Template == "" {
		t.Fatalf("kitty should be configured with a template: %#v", got[1])
	}
}

func TestDetectTerminals_NothingInstalled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if got := DefaultConfig().DetectTerminals(); len(got) != 0 {
		t.Fatalf("expected no terminals, got %#v", got)
	}
}

func TestSpawnTemplate_ExplicitOverrideWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Terminal.SpawnTemplate = "foot -D {{dir}} {{cmd}}"

	tmpl, class, err := cfg.SpawnTemplate()
	if err != nil {
		t.Fatalf("SpawnTemplate: %v", err)
	}
	if tmpl != "foot -D {{dir}} {{cmd}}" || class != "" {
		t.Fatalf("unexpected result %q %q", tmpl, class)
	}
}

func TestSpawnTemplate_UsesResolvedClass(t *testing.T) {
	origLookPath := execLookPath
	origDetect := detectSystemTerminal
	t.Cleanup(func() {
		execLookPath = origLookPath
		detectSystemTerminal = origDetect
	})
	t.Setenv("TERMINAL", "")

	execLookPath = func(file string) (string, error) {
		if file == "konsole" {
			return "/usr/bin/konsole", nil
		}
		return "", errors.New("not found")
	}
	detectSystemTerminal = func() string { return "konsole" }

	cfg := DefaultConfig()
	tmpl, class, err := cfg.SpawnTemplate()
	if err != nil {
		t.Fatalf("SpawnTemplate: %v", err)
	}
	if class != "konsole" {
		t.Fatalf("expected konsole, got %q", class)
	}
	if tmpl != cfg.Terminal.SpawnTemplates["konsole"] {
		t.Fatalf("unexpected template %q", tmpl)
	}
}

func TestSpawnTemplate_PreferredCommand(t *testing.T) {
	origLookPath := execLookPath
	t.Cleanup(func() { execLookPath = origLookPath })
	execLookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }

	cfg := DefaultConfig()
	cfg.Terminal.Command = "kitty"

	_, class, err := cfg.SpawnTemplate()
	if err != nil {
		t.Fatalf("SpawnTemplate: %v", err)
	}
	if class != "kitty" {
		t.Fatalf("expected terminal.command to win, got %q", class)
	}
}

func TestSpawnTemplate_NoClasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Terminal.Classes = nil
	if _, _, err := cfg.SpawnTemplate(); err == nil {
		t.Fatalf("expected error without classes")
	}
}

func writeFakeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestLoadFromPath_MixedClassList(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml",
		"terminal:",
		"  classes:",
		"    - Alacritty",
		"    - class: kitty",
		"      default: true",
	)
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := res.Config.Terminal.Classes
	if len(got) != 2 || got[0].Class != "Alacritty" || got[0].Default || got[1].Class != "kitty" || !got[1].Default {
		t.Fatalf("unexpected classes %#v", got)
	}

	bad := writeConfig(t, t.TempDir(), "config.yaml", "terminal:", "  classes:", "    - class: kitty", "      colour: red")
	if _, err := LoadFromPath(bad); err == nil {
		t.Fatalf("expected unknown class field error")
	}
}

func TestResolveTerminal_DefaultClassBeatsEnvironment(t *testing.T) {
	origLookPath := execLookPath
	origDetect := detectSystemTerminal
	t.Cleanup(func() {
		execLookPath = origLookPath
		detectSystemTerminal = origDetect
	})
	execLookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	detectSystemTerminal = func() string { return "" }
	t.Setenv("TERMINAL", "/usr/bin/konsole --separate")

	cfg := DefaultConfig()
	if got := cfg.ResolveTerminal(); got != "Alacritty" {
		t.Fatalf("expected builtin default Alacritty, got %q", got)
	}

	for i := range cfg.Terminal.Classes {
		cfg.Terminal.Classes[i].Default = false
	}
	if got := cfg.ResolveTerminal(); got != "konsole" {
		t.Fatalf("expected $TERMINAL to pick konsole, got %q", got)
	}

	for i := range cfg.Terminal.Classes {
		cfg.Terminal.Classes[i].Default = cfg.Terminal.Classes[i].Class == "kitty"
	}
	if got := cfg.ResolveTerminal(); got != "kitty" {
		t.Fatalf("expected default class kitty, got %q", got)
	}
}
