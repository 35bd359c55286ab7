package terminals

import (
	"strings"
	"sync"

	"github.com/1broseidon/termpilot/internal/platform"
)

// Detector identifies terminal windows by WM_CLASS
type Detector struct {
	mu              sync.RWMutex
	terminalClasses map[string]bool
}

// NewDetector creates a new terminal detector with the given terminal class list
func NewDetector(terminalClasses []string) *Detector {
	d := &Detector{}
	d.UpdateTerminalClasses(terminalClasses)
	return d
}

// UpdateTerminalClasses updates the terminal classes for detection
func (d *Detector) UpdateTerminalClasses(terminalClasses []string) {
	classMap := make(map[string]bool)
	for _, class := range terminalClasses {
		class = strings.TrimSpace(class)
		if class == "" {
			continue
		}
		// Store both original and lowercase for case-insensitive matching
		classMap[class] = true
		classMap[strings.ToLower(class)] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminalClasses = classMap
}

// IsTerminal reports whether w belongs to a known terminal emulator. The
// class half of WM_CLASS is checked first; the instance half is checked too
// because some terminals only set the instance name.
func (d *Detector) IsTerminal(w platform.Window) bool {
	return d.isTerminalClass(w.AppID) || d.isTerminalClass(w.Instance)
}

// Filter returns the terminal windows in windows, preserving order.
func (d *Detector) Filter(windows []platform.Window) []platform.Window {
	var out []platform.Window
	for _, w := range windows {
		if d.IsTerminal(w) {
			out = append(out, w)
		}
	}
	return out
}

// isTerminalClass checks if the given WM_CLASS matches a known terminal
func (d *Detector) isTerminalClass(class string) bool {
	if class == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.terminalClasses[class] {
		return true
	}
	return d.terminalClasses[strings.ToLower(class)]
}
