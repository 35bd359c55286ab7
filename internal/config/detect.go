package config

import "sort"

// DetectedTerminal is a known terminal emulator found on PATH.
type DetectedTerminal struct {
	Class      string
	Binary     string
	Path       string
	Configured bool   // class listed in terminal.classes with a spawn template
	Template   string // template that would be used, if any
}

// knownTerminalBinaries maps WM_CLASS names to their launcher binaries.
var knownTerminalBinaries = map[string]string{
	"Alacritty":      "alacritty",
	"kitty":          "kitty",
	"ghostty":        "ghostty",
	"wezterm":        "wezterm",
	"Gnome-terminal": "gnome-terminal",
	"konsole":        "konsole",
	"XTerm":          "xterm",
}

// DetectTerminals scans PATH for known terminal emulators and reports
// whether c can spawn each of them.
func (c *Config) DetectTerminals() []DetectedTerminal {
	detected := make([]DetectedTerminal, 0, len(knownTerminalBinaries))
	for class, binary := range knownTerminalBinaries {
		path, err := execLookPath(binary)
		if err != nil {
			continue
		}
		entry := DetectedTerminal{Class: class, Binary: binary, Path: path}
		if matched, ok := c.matchTerminalClass(class); ok {
			if tmpl, ok := lookupSpawnTemplate(c.Terminal.SpawnTemplates, matched); ok {
				entry.Configured = true
				entry.Template = tmpl
			}
		}
		detected = append(detected, entry)
	}

	sort.Slice(detected, func(i, j int) bool {
		return detected[i].Class < detected[j].Class
	})
	return detected
}
