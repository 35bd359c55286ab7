package config

import (
	"fmt"
	"sort"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig layers raw over DefaultConfig. The result still
// needs Validate.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Display != nil {
		cfg.Display = *raw.Display
	}

	if t := raw.Terminal; t != nil {
		if t.Command != nil {
			cfg.Terminal.Command = *t.Command
		}
		if t.SpawnTemplate != nil {
			cfg.Terminal.SpawnTemplate = *t.SpawnTemplate
		}
		for _, class := range sortedKeys(t.SpawnTemplates) {
			tmpl := t.SpawnTemplates[class]
			if tmpl == "" {
				// An empty value removes a builtin template.
				delete(cfg.Terminal.SpawnTemplates, class)
				continue
			}
			cfg.Terminal.SpawnTemplates[class] = tmpl
		}
		if t.Classes != nil {
			cfg.Terminal.Classes = append(TerminalClassList(nil), (*t.Classes)...)
		}
		if t.ClassMarker != nil {
			cfg.Terminal.ClassMarker = *t.ClassMarker
		}
	}

	if s := raw.Spawn; s != nil {
		cfg.Spawn.MaxAttempts = derefInt(s.MaxAttempts, cfg.Spawn.MaxAttempts)
		cfg.Spawn.InitialDelay = derefDuration(s.InitialDelay, cfg.Spawn.InitialDelay)
		cfg.Spawn.MaxDelay = derefDuration(s.MaxDelay, cfg.Spawn.MaxDelay)
		cfg.Spawn.StartSkew = derefDuration(s.StartSkew, cfg.Spawn.StartSkew)
	}

	if r := raw.Reconcile; r != nil {
		cfg.Reconcile.Interval = derefDuration(r.Interval, cfg.Reconcile.Interval)
	}

	if e := raw.Editor; e != nil {
		if e.Names != nil {
			cfg.Editor.Names = append([]string(nil), (*e.Names)...)
		}
		if e.SocketGlobs != nil {
			cfg.Editor.SocketGlobs = append([]string(nil), (*e.SocketGlobs)...)
		}
		cfg.Editor.CallTimeout = derefDuration(e.CallTimeout, cfg.Editor.CallTimeout)
		cfg.Editor.Deadline = derefDuration(e.Deadline, cfg.Editor.Deadline)
		cfg.Editor.ContextLines = derefInt(e.ContextLines, cfg.Editor.ContextLines)
	}

	if l := raw.Logging; l != nil {
		if l.Level != nil {
			cfg.Logging.Level = *l.Level
		}
		if l.Format != nil {
			cfg.Logging.Format = *l.Format
		}
		if l.File != nil {
			cfg.Logging.File = *l.File
		}
		cfg.Logging.MaxSizeMB = derefInt(l.MaxSizeMB, cfg.Logging.MaxSizeMB)
		cfg.Logging.MaxFiles = derefInt(l.MaxFiles, cfg.Logging.MaxFiles)
	}

	for _, class := range cfg.Terminal.Classes {
		if class.Class == "" {
			return nil, &ValidationError{Path: "terminal.classes", Err: fmt.Errorf("class name must not be empty")}
		}
	}
	return cfg, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func derefDuration(p *Duration, def Duration) Duration {
	if p == nil {
		return def
	}
	return *p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
