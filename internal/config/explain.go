package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	display
//	terminal.command
//	terminal.spawn_template
//	terminal.spawn_templates.<WM_CLASS>
//	terminal.classes
//	spawn.max_attempts
//	reconcile.interval
//	editor.deadline
//	logging.level
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	if strings.HasPrefix(path, "terminal.spawn_templates.") {
		if _, ok := defaultSpawnTemplates()[strings.TrimPrefix(path, "terminal.spawn_templates.")]; ok {
			return value, Source{Kind: SourceBuiltin, Name: "spawn_templates"}, nil
		}
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	switch path {
	case "display":
		return cfg.Display, nil
	case "terminal.command":
		return cfg.Terminal.Command, nil
	case "terminal.spawn_template":
		return cfg.Terminal.SpawnTemplate, nil
	case "terminal.spawn_templates":
		return cfg.Terminal.SpawnTemplates, nil
	case "terminal.classes":
		return cfg.Terminal.Classes, nil
	case "terminal.class_marker":
		return cfg.Terminal.ClassMarker, nil
	case "spawn.max_attempts":
		return cfg.Spawn.MaxAttempts, nil
	case "spawn.initial_delay":
		return cfg.Spawn.InitialDelay.D().String(), nil
	case "spawn.max_delay":
		return cfg.Spawn.MaxDelay.D().String(), nil
	case "spawn.start_skew":
		return cfg.Spawn.StartSkew.D().String(), nil
	case "reconcile.interval":
		return cfg.Reconcile.Interval.D().String(), nil
	case "editor.names":
		return cfg.Editor.Names, nil
	case "editor.socket_globs":
		return cfg.Editor.SocketGlobs, nil
	case "editor.call_timeout":
		return cfg.Editor.CallTimeout.D().String(), nil
	case "editor.deadline":
		return cfg.Editor.Deadline.D().String(), nil
	case "editor.context_lines":
		return cfg.Editor.ContextLines, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "logging.max_size_mb":
		return cfg.Logging.MaxSizeMB, nil
	case "logging.max_files":
		return cfg.Logging.MaxFiles, nil
	}

	if class, ok := strings.CutPrefix(path, "terminal.spawn_templates."); ok && class != "" {
		tmpl, ok := lookupSpawnTemplate(cfg.Terminal.SpawnTemplates, class)
		if !ok {
			return nil, fmt.Errorf("no spawn template for class %q", class)
		}
		return tmpl, nil
	}
	return nil, fmt.Errorf("unknown config path %q", path)
}
