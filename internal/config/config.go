package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/termpilot/internal/spawn"
)

const (
	DefaultSpawnMaxAttempts  = 8
	DefaultSpawnInitialDelay = 100 * time.Millisecond
	DefaultSpawnMaxDelay     = 2 * time.Second
	DefaultSpawnStartSkew    = time.Second
	DefaultReconcileInterval = 5 * time.Second
	DefaultEditorCallTimeout = 300 * time.Millisecond
	DefaultEditorDeadline    = 2 * time.Second
	DefaultContextLines      = 5
	MaxContextLines          = 100
)

// Duration is a time.Duration written as "300ms", "2s" in YAML.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string like \"300ms\"")
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type TerminalConfig struct {
	// Command is the preferred terminal; empty means auto-detect.
	Command string `yaml:"command,omitempty"`
	// SpawnTemplate overrides the per-class template when set.
	SpawnTemplate  string            `yaml:"spawn_template,omitempty"`
	SpawnTemplates map[string]string `yaml:"spawn_templates"`
	Classes        TerminalClassList `yaml:"classes"`
	// ClassMarker injects the correlation marker as the WM_CLASS instance
	// name when the template has a {{class}} placeholder.
	ClassMarker bool `yaml:"class_marker"`
}

type SpawnConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	StartSkew    Duration `yaml:"start_skew"`
}

type ReconcileConfig struct {
	// Interval of the background reconciler in `mcp serve`; 0 disables it.
	Interval Duration `yaml:"interval"`
}

type EditorConfig struct {
	Names        []string `yaml:"names"`
	SocketGlobs  []string `yaml:"socket_globs,omitempty"`
	CallTimeout  Duration `yaml:"call_timeout"`
	Deadline     Duration `yaml:"deadline"`
	ContextLines int      `yaml:"context_lines"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	File      string `yaml:"file,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

type Config struct {
	Display   string          `yaml:"display,omitempty"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Spawn     SpawnConfig     `yaml:"spawn"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Editor    EditorConfig    `yaml:"editor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

func DefaultConfig() *Config {
	return &Config{
		Terminal: TerminalConfig{
			SpawnTemplates: defaultSpawnTemplates(),
			Classes:        defaultTerminalClasses(),
			ClassMarker:    true,
		},
		Spawn: SpawnConfig{
			MaxAttempts:  DefaultSpawnMaxAttempts,
			InitialDelay: Duration(DefaultSpawnInitialDelay),
			MaxDelay:     Duration(DefaultSpawnMaxDelay),
			StartSkew:    Duration(DefaultSpawnStartSkew),
		},
		Reconcile: ReconcileConfig{
			Interval: Duration(DefaultReconcileInterval),
		},
		Editor: EditorConfig{
			Names:        []string{"nvim"},
			CallTimeout:  Duration(DefaultEditorCallTimeout),
			Deadline:     Duration(DefaultEditorDeadline),
			ContextLines: DefaultContextLines,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

func defaultSpawnTemplates() map[string]string {
	return map[string]string{
		"Alacritty":             "alacritty --class {{class}},Alacritty --working-directory {{dir}} --title {{title}} -e {{cmd}}",
		"kitty":                 "kitty --name {{class}} --directory {{dir}} --title {{title}} {{cmd}}",
		"com.mitchellh.ghostty": "ghostty --working-directory={{dir}} --title={{title}} -e {{cmd}}",
		"ghostty":               "ghostty --working-directory={{dir}} --title={{title}} -e {{cmd}}",
		"wezterm":               "wezterm start --cwd {{dir}} -- {{cmd}}",
		"Gnome-terminal":        "gnome-terminal --working-directory={{dir}} --title={{title}} -- {{cmd}}",
		"gnome-terminal-server": "gnome-terminal --working-directory={{dir}} --title={{title}} -- {{cmd}}",
		"konsole":               "konsole --workdir {{dir}} -e {{cmd}}",
		"XTerm":                 "xterm -name {{class}} -T {{title}} -e {{cmd}}",
	}
}

func defaultTerminalClasses() TerminalClassList {
	return TerminalClassList{
		{Class: "Alacritty", Default: true},
		{Class: "kitty"},
		{Class: "com.mitchellh.ghostty"},
		{Class: "ghostty"},
		{Class: "Gnome-terminal"},
		{Class: "gnome-terminal-server"},
		{Class: "XTerm"},
		{Class: "UXTerm"},
		{Class: "konsole"},
		{Class: "wezterm"},
	}
}

// DefaultConfigPath returns ~/.config/termpilot/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "termpilot", "config.yaml"), nil
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	if len(c.Terminal.Classes) == 0 {
		return &ValidationError{Path: "terminal.classes", Err: fmt.Errorf("terminal.classes must not be empty")}
	}
	for class, tmpl := range c.Terminal.SpawnTemplates {
		if strings.TrimSpace(class) == "" {
			return &ValidationError{Path: "terminal.spawn_templates", Err: fmt.Errorf("spawn_templates contains an empty class name")}
		}
		if err := spawn.ValidateTemplate(tmpl); err != nil {
			return &ValidationError{Path: "terminal.spawn_templates." + class, Err: err}
		}
	}
	if c.Terminal.SpawnTemplate != "" {
		if err := spawn.ValidateTemplate(c.Terminal.SpawnTemplate); err != nil {
			return &ValidationError{Path: "terminal.spawn_template", Err: err}
		}
	}

	if c.Spawn.MaxAttempts <= 0 {
		return &ValidationError{Path: "spawn.max_attempts", Err: fmt.Errorf("max_attempts must be > 0")}
	}
	if c.Spawn.InitialDelay <= 0 {
		return &ValidationError{Path: "spawn.initial_delay", Err: fmt.Errorf("initial_delay must be > 0")}
	}
	if c.Spawn.MaxDelay < c.Spawn.InitialDelay {
		return &ValidationError{Path: "spawn.max_delay", Err: fmt.Errorf("max_delay must be >= initial_delay")}
	}
	if c.Spawn.StartSkew < 0 {
		return &ValidationError{Path: "spawn.start_skew", Err: fmt.Errorf("start_skew must be >= 0")}
	}
	if c.Reconcile.Interval < 0 {
		return &ValidationError{Path: "reconcile.interval", Err: fmt.Errorf("interval must be >= 0")}
	}

	if len(c.Editor.Names) == 0 {
		return &ValidationError{Path: "editor.names", Err: fmt.Errorf("editor.names must not be empty")}
	}
	for _, g := range c.Editor.SocketGlobs {
		if !strings.Contains(g, "{pid}") {
			return &ValidationError{Path: "editor.socket_globs", Err: fmt.Errorf("socket glob %q must contain {pid}", g)}
		}
	}
	if c.Editor.CallTimeout <= 0 {
		return &ValidationError{Path: "editor.call_timeout", Err: fmt.Errorf("call_timeout must be > 0")}
	}
	if c.Editor.Deadline < c.Editor.CallTimeout {
		return &ValidationError{Path: "editor.deadline", Err: fmt.Errorf("deadline must be >= call_timeout")}
	}
	if c.Editor.ContextLines < 0 || c.Editor.ContextLines > MaxContextLines {
		return &ValidationError{Path: "editor.context_lines", Err: fmt.Errorf("context_lines must be between 0 and %d", MaxContextLines)}
	}

	switch c.Logging.Level {
	case "debug", "info", "warning", "error":
	default:
		return &ValidationError{Path: "logging.level", Err: fmt.Errorf("level must be one of: debug, info, warning, error")}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &ValidationError{Path: "logging.format", Err: fmt.Errorf("format must be one of: text, json")}
	}
	if c.Logging.MaxSizeMB < 0 {
		return &ValidationError{Path: "logging.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 0")}
	}
	if c.Logging.MaxFiles < 0 {
		return &ValidationError{Path: "logging.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}

	if warnings := c.validationWarnings(); len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}
	return nil
}

func (c *Config) validationWarnings() []string {
	var warnings []string
	if pref := strings.TrimSpace(c.Terminal.Command); pref != "" {
		if _, ok := c.matchTerminalClass(pref); !ok {
			warnings = append(warnings, fmt.Sprintf("terminal.command %q is not in terminal.classes; it will be ignored", pref))
		}
	}
	defaultCount := 0
	for _, tc := range c.Terminal.Classes {
		if tc.Default {
			defaultCount++
		}
	}
	if defaultCount > 1 {
		warnings = append(warnings, fmt.Sprintf("terminal.classes has %d entries with default: true; the first one wins", defaultCount))
	}
	return warnings
}

// Marshal renders the effective config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
