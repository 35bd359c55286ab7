package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

// Raw* types mirror the YAML with pointer fields so an absent key can be
// told apart from a zero value when layering files over defaults.

type RawTerminalConfig struct {
	Command        *string            `yaml:"command"`
	SpawnTemplate  *string            `yaml:"spawn_template"`
	SpawnTemplates map[string]string  `yaml:"spawn_templates"`
	Classes        *TerminalClassList `yaml:"classes"`
	ClassMarker    *bool              `yaml:"class_marker"`
}

type RawSpawnConfig struct {
	MaxAttempts  *int      `yaml:"max_attempts"`
	InitialDelay *Duration `yaml:"initial_delay"`
	MaxDelay     *Duration `yaml:"max_delay"`
	StartSkew    *Duration `yaml:"start_skew"`
}

type RawReconcileConfig struct {
	Interval *Duration `yaml:"interval"`
}

type RawEditorConfig struct {
	Names        *[]string `yaml:"names"`
	SocketGlobs  *[]string `yaml:"socket_globs"`
	CallTimeout  *Duration `yaml:"call_timeout"`
	Deadline     *Duration `yaml:"deadline"`
	ContextLines *int      `yaml:"context_lines"`
}

type RawLoggingConfig struct {
	Level     *string `yaml:"level"`
	Format    *string `yaml:"format"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
}

type RawConfig struct {
	Include IncludeList `yaml:"include"`

	Display   *string             `yaml:"display"`
	Terminal  *RawTerminalConfig  `yaml:"terminal"`
	Spawn     *RawSpawnConfig     `yaml:"spawn"`
	Reconcile *RawReconcileConfig `yaml:"reconcile"`
	Editor    *RawEditorConfig    `yaml:"editor"`
	Logging   *RawLoggingConfig   `yaml:"logging"`
}

// merge returns r with every key set in overlay replacing r's value.
// spawn_templates merge per class.
func (r RawConfig) merge(overlay RawConfig) RawConfig {
	out := r
	out.Include = nil
	if overlay.Display != nil {
		out.Display = overlay.Display
	}

	if overlay.Terminal != nil {
		t := RawTerminalConfig{}
		if r.Terminal != nil {
			t = *r.Terminal
		}
		o := overlay.Terminal
		setIf(&t.Command, o.Command)
		setIf(&t.SpawnTemplate, o.SpawnTemplate)
		setIf(&t.Classes, o.Classes)
		setIf(&t.ClassMarker, o.ClassMarker)
		if o.SpawnTemplates != nil {
			merged := make(map[string]string, len(t.SpawnTemplates)+len(o.SpawnTemplates))
			for k, v := range t.SpawnTemplates {
				merged[k] = v
			}
			for k, v := range o.SpawnTemplates {
				merged[k] = v
			}
			t.SpawnTemplates = merged
		}
		out.Terminal = &t
	}

	if overlay.Spawn != nil {
		s := RawSpawnConfig{}
		if r.Spawn != nil {
			s = *r.Spawn
		}
		o := overlay.Spawn
		setIf(&s.MaxAttempts, o.MaxAttempts)
		setIf(&s.InitialDelay, o.InitialDelay)
		setIf(&s.MaxDelay, o.MaxDelay)
		setIf(&s.StartSkew, o.StartSkew)
		out.Spawn = &s
	}

	if overlay.Reconcile != nil {
		rc := RawReconcileConfig{}
		if r.Reconcile != nil {
			rc = *r.Reconcile
		}
		setIf(&rc.Interval, overlay.Reconcile.Interval)
		out.Reconcile = &rc
	}

	if overlay.Editor != nil {
		e := RawEditorConfig{}
		if r.Editor != nil {
			e = *r.Editor
		}
		o := overlay.Editor
		setIf(&e.Names, o.Names)
		setIf(&e.SocketGlobs, o.SocketGlobs)
		setIf(&e.CallTimeout, o.CallTimeout)
		setIf(&e.Deadline, o.Deadline)
		setIf(&e.ContextLines, o.ContextLines)
		out.Editor = &e
	}

	if overlay.Logging != nil {
		l := RawLoggingConfig{}
		if r.Logging != nil {
			l = *r.Logging
		}
		o := overlay.Logging
		setIf(&l.Level, o.Level)
		setIf(&l.Format, o.Format)
		setIf(&l.File, o.File)
		setIf(&l.MaxSizeMB, o.MaxSizeMB)
		setIf(&l.MaxFiles, o.MaxFiles)
		out.Logging = &l
	}
	return out
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
