package terminals

import (
	"testing"

	"github.com/1broseidon/termpilot/internal/platform"
)

func TestDetector_IsTerminal(t *testing.T) {
	d := NewDetector([]string{"Alacritty", " kitty ", ""})

	tests := []struct {
		name string
		win  platform.Window
		want bool
	}{
		{"exact class", platform.Window{AppID: "Alacritty"}, true},
		{"lowercase class", platform.Window{AppID: "alacritty"}, true},
		{"uppercase class", platform.Window{AppID: "KITTY"}, true},
		{"marker instance with terminal class", platform.Window{AppID: "Alacritty", Instance: "termpilot-abc"}, true},
		{"instance only", platform.Window{Instance: "alacritty"}, true},
		{"browser", platform.Window{AppID: "firefox", Instance: "Navigator"}, false},
		{"empty", platform.Window{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsTerminal(tt.win); got != tt.want {
				t.Errorf("IsTerminal(%+v) = %v, want %v", tt.win, got, tt.want)
			}
		})
	}
}

func TestDetector_FilterAndUpdate(t *testing.T) {
	d := NewDetector([]string{"Alacritty"})
	windows := []platform.Window{
		{ID: 1, AppID: "Alacritty"},
		{ID: 2, AppID: "firefox"},
		{ID: 3, AppID: "kitty"},
	}

	got := d.Filter(windows)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("Filter() = %+v, want only window 1", got)
	}

	d.UpdateTerminalClasses([]string{"kitty"})
	got = d.Filter(windows)
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("Filter() after update = %+v, want only window 3", got)
	}
}
