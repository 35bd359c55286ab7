package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/termpilot/internal/spawn"
)

// TerminalClass is one WM_CLASS treated as a terminal emulator.
type TerminalClass struct {
	Class   string `yaml:"class"`
	Default bool   `yaml:"default,omitempty"`
}

// TerminalClassList accepts bare class names, mappings, or a mix:
//
//	classes:
//	  - Alacritty
//	  - class: kitty
//	    default: true
type TerminalClassList []TerminalClass

func (l *TerminalClassList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 {
		*l = nil
		return nil
	}
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("terminal.classes must be a list")
	}
	out := make([]TerminalClass, 0, len(value.Content))
	for _, item := range value.Content {
		tc, err := decodeTerminalClass(item)
		if err != nil {
			return fmt.Errorf("line %d: %w", item.Line, err)
		}
		out = append(out, tc)
	}
	*l = out
	return nil
}

func decodeTerminalClass(item *yaml.Node) (TerminalClass, error) {
	var tc TerminalClass
	switch {
	case item.Kind == yaml.ScalarNode && item.Tag == "!!str":
		tc.Class = item.Value
	case item.Kind == yaml.MappingNode:
		for i := 0; i+1 < len(item.Content); i += 2 {
			key, val := item.Content[i].Value, item.Content[i+1]
			switch key {
			case "class":
				if val.Kind != yaml.ScalarNode || val.Tag != "!!str" {
					return tc, fmt.Errorf("terminal.classes[].class must be a string")
				}
				tc.Class = val.Value
			case "default":
				if err := val.Decode(&tc.Default); err != nil {
					return tc, fmt.Errorf("terminal.classes[].default must be a boolean")
				}
			default:
				return tc, fmt.Errorf("unknown terminal.classes field %q", key)
			}
		}
	default:
		return tc, fmt.Errorf("terminal.classes entries must be strings or mappings")
	}
	tc.Class = strings.TrimSpace(tc.Class)
	if tc.Class == "" {
		return tc, fmt.Errorf("terminal.classes entries need a class name")
	}
	return tc, nil
}

// MarshalYAML prints the short form unless some entry is marked default.
func (l TerminalClassList) MarshalYAML() (any, error) {
	names := make([]string, 0, len(l))
	for _, tc := range l {
		if tc.Default {
			return []TerminalClass(l), nil
		}
		names = append(names, tc.Class)
	}
	return names, nil
}

// TerminalClassNames returns the configured classes in order.
func (c *Config) TerminalClassNames() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Terminal.Classes))
	for _, tc := range c.Terminal.Classes {
		out = append(out, tc.Class)
	}
	return out
}

var (
	execLookPath         = exec.LookPath
	execCommandOutput    = func(name string, args ...string) ([]byte, error) { return exec.Command(name, args...).Output() }
	evalSymlinks         = filepath.EvalSymlinks
	detectSystemTerminal = defaultDetectSystemTerminal
)

// wellKnownTerminals are tried on PATH when nothing else names a terminal.
var wellKnownTerminals = []string{"alacritty", "kitty", "ghostty", "wezterm", "gnome-terminal", "konsole", "xterm"}

// classAliases maps launcher names to the WM_CLASS values their windows use.
var classAliases = map[string][]string{
	"ghostty":        {"com.mitchellh.ghostty"},
	"tilix":          {"com.gexperts.Tilix"},
	"gnome-terminal": {"Gnome-terminal", "gnome-terminal-server"},
	"xterm":          {"XTerm", "UXTerm"},
}

// ResolveTerminal picks the terminal class to spawn. Candidates are tried
// in order: terminal.command, the class marked default, $TERMINAL, the
// desktop's configured terminal, then well-known binaries on PATH. A
// candidate qualifies only when its class has a spawn template whose
// binary is installed. With no qualifying candidate the first spawnable
// class wins, then the first listed class.
func (c *Config) ResolveTerminal() string {
	if c == nil {
		return ""
	}

	candidates := []func() string{
		func() string { return c.Terminal.Command },
		c.defaultClass,
		func() string { return os.Getenv("TERMINAL") },
		detectSystemTerminal,
	}
	for _, exe := range wellKnownTerminals {
		candidates = append(candidates, func() string {
			if _, err := execLookPath(exe); err != nil {
				return ""
			}
			return exe
		})
	}

	for _, next := range candidates {
		ref := strings.TrimSpace(next())
		if ref == "" {
			continue
		}
		if class, ok := c.matchTerminalClass(ref); ok && c.canSpawnTerminal(class) {
			return class
		}
	}

	for _, tc := range c.Terminal.Classes {
		if c.canSpawnTerminal(tc.Class) {
			return tc.Class
		}
	}
	if len(c.Terminal.Classes) > 0 {
		return c.Terminal.Classes[0].Class
	}
	return ""
}

func (c *Config) defaultClass() string {
	for _, tc := range c.Terminal.Classes {
		if tc.Default {
			return tc.Class
		}
	}
	return ""
}

// SpawnTemplate returns the template used to launch terminals and the
// class it belongs to (empty for an explicit spawn_template).
func (c *Config) SpawnTemplate() (template string, class string, err error) {
	if c == nil {
		return "", "", fmt.Errorf("no config")
	}
	if t := strings.TrimSpace(c.Terminal.SpawnTemplate); t != "" {
		return t, "", nil
	}
	class = c.ResolveTerminal()
	if class == "" {
		return "", "", fmt.Errorf("no terminal configured in terminal.classes")
	}
	t, ok := lookupSpawnTemplate(c.Terminal.SpawnTemplates, class)
	if !ok {
		return "", class, fmt.Errorf("no spawn template for terminal class %q", class)
	}
	return t, class, nil
}

// normalizeTerminalRef reduces a command line, path or .desktop id to a
// bare launcher name ("/usr/bin/kitty -1" and "kitty.desktop" are both
// "kitty").
func normalizeTerminalRef(ref string) string {
	fields := strings.Fields(strings.Trim(strings.TrimSpace(ref), `"'`))
	if len(fields) == 0 {
		return ""
	}
	name := filepath.Base(strings.Trim(fields[0], `"'`))
	name = strings.TrimSuffix(name, ".desktop")
	name = strings.TrimSuffix(name, ".wrapper")
	if name == "x-terminal-emulator" {
		if resolved := resolveXTerminalEmulator(); resolved != "" {
			name = strings.TrimSuffix(resolved, ".wrapper")
		}
	}
	return name
}

// resolveXTerminalEmulator follows the Debian alternatives symlink.
func resolveXTerminalEmulator() string {
	path, err := execLookPath("x-terminal-emulator")
	if err != nil {
		return ""
	}
	if resolved, err := evalSymlinks(path); err == nil && resolved != "" {
		path = resolved
	}
	return filepath.Base(path)
}

// defaultDetectSystemTerminal asks the alternatives system, GNOME and KDE,
// in that order, which terminal the desktop prefers.
func defaultDetectSystemTerminal() string {
	if resolved := resolveXTerminalEmulator(); resolved != "" && resolved != "x-terminal-emulator" {
		return resolved
	}

	kread := "kreadconfig5"
	if _, err := execLookPath(kread); err != nil {
		if _, err := execLookPath("kreadconfig6"); err == nil {
			kread = "kreadconfig6"
		}
	}
	queries := [][]string{
		{"gsettings", "get", "org.gnome.desktop.default-applications.terminal", "exec"},
		{kread, "--group", "General", "--key", "TerminalApplication"},
	}
	for _, q := range queries {
		out, err := execCommandOutput(q[0], q[1:]...)
		if err != nil {
			continue
		}
		if term := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(out)), `"'`)); term != "" {
			return term
		}
	}
	return ""
}

// matchTerminalClass maps a launcher name to a configured class, trying
// an exact (case-insensitive) match, the last segment of a reverse-DNS
// id, then known aliases.
func (c *Config) matchTerminalClass(candidate string) (string, bool) {
	candidate = normalizeTerminalRef(candidate)
	if candidate == "" || c == nil {
		return "", false
	}

	names := []string{candidate}
	if i := strings.LastIndex(candidate, "."); i >= 0 && i < len(candidate)-1 {
		names = append(names, candidate[i+1:])
	}
	names = append(names, classAliases[strings.ToLower(candidate)]...)

	for _, name := range names {
		for _, tc := range c.Terminal.Classes {
			if strings.EqualFold(tc.Class, name) {
				return tc.Class, true
			}
		}
	}
	return "", false
}

func (c *Config) canSpawnTerminal(class string) bool {
	template, ok := lookupSpawnTemplate(c.Terminal.SpawnTemplates, class)
	if !ok {
		return false
	}
	argv, err := spawn.SplitCommand(template)
	if err != nil || len(argv) == 0 {
		return false
	}
	_, err = execLookPath(argv[0])
	return err == nil
}

// lookupSpawnTemplate finds the template for class, ignoring case.
func lookupSpawnTemplate(templates map[string]string, class string) (string, bool) {
	if v, ok := templates[class]; ok {
		return v, true
	}
	for k, v := range templates {
		if strings.EqualFold(k, class) {
			return v, true
		}
	}
	return "", false
}
