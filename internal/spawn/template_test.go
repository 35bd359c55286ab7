package spawn

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alacrittyTemplate = "alacritty --class {{class}},Alacritty --working-directory {{dir}} --title {{title}} -e {{cmd}}"

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   TemplateValues
		want     []string
	}{
		{
			name:     "all values",
			template: alacrittyTemplate,
			values:   TemplateValues{Dir: "/src", Title: "edit", Class: "termpilot-1", Command: []string{"nvim", "main.go"}},
			want:     []string{"alacritty", "--class", "termpilot-1,Alacritty", "--working-directory", "/src", "--title", "edit", "-e", "nvim", "main.go"},
		},
		{
			name:     "empty values drop their flags",
			template: alacrittyTemplate,
			values:   TemplateValues{},
			want:     []string{"alacritty"},
		},
		{
			name:     "command args are not re-split",
			template: "kitty -d {{dir}} {{cmd}}",
			values:   TemplateValues{Dir: "/w", Command: []string{"sh", "-c", "echo a b"}},
			want:     []string{"kitty", "-d", "/w", "sh", "-c", "echo a b"},
		},
		{
			name:     "quoted template words",
			template: `foot --title "{{title}} (pilot)"`,
			values:   TemplateValues{Title: "x"},
			want:     []string{"foot", "--title", "x (pilot)"},
		},
		{
			name:     "binary is never dropped",
			template: "{{dir}}",
			values:   TemplateValues{Dir: "/usr/bin/xterm"},
			want:     []string{"/usr/bin/xterm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.template, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTemplate_Errors(t *testing.T) {
	_, err := RenderTemplate("", TemplateValues{})
	assert.Error(t, err)

	_, err = RenderTemplate("alacritty -e sh-{{cmd}}", TemplateValues{Command: []string{"x"}})
	assert.Error(t, err)

	_, err = RenderTemplate(`alacritty "unterminated`, TemplateValues{})
	assert.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a b  c", []string{"a", "b", "c"}},
		{`a "b c" 'd e'`, []string{"a", "b c", "d e"}},
		{`a\ b`, []string{"a b"}},
		{`a ""`, []string{"a", ""}},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := SplitCommand(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := SplitCommand(`trailing\`)
	assert.Error(t, err)
}

func TestValidateTemplate(t *testing.T) {
	assert.NoError(t, ValidateTemplate(alacrittyTemplate))
	assert.NoError(t, ValidateTemplate("wezterm start --cwd {{dir}} -- {{cmd}}"))
	assert.Error(t, ValidateTemplate(""))
	assert.Error(t, ValidateTemplate("xterm -e sh-{{cmd}}"))
	assert.Error(t, ValidateTemplate(`kitty "unterminated`))
}

func TestSupportsClass(t *testing.T) {
	assert.True(t, SupportsClass(alacrittyTemplate))
	assert.False(t, SupportsClass("xterm -e {{cmd}}"))
}

func TestExecLauncher_LaunchAndExit(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-term")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	l := &ExecLauncher{Template: script + " --title {{title}} {{cmd}}"}
	proc, err := l.Launch(context.Background(), Request{Title: "t", WorkingDirectory: dir, Marker: "m1"})
	require.NoError(t, err)
	assert.Positive(t, proc.PID)
	assert.Equal(t, []string{script, "--title", "t"}, proc.Argv)

	require.Eventually(t, func() bool {
		exited, _ := proc.Exited()
		return exited
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExecLauncher_Validation(t *testing.T) {
	l := &ExecLauncher{Template: "definitely-not-a-terminal-binary {{cmd}}"}

	_, err := l.Launch(context.Background(), Request{Args: []string{"x"}})
	assert.Error(t, err, "args without command")

	_, err = l.Launch(context.Background(), Request{WorkingDirectory: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err, "missing working directory")

	_, err = l.Launch(context.Background(), Request{})
	assert.Error(t, err, "binary not on PATH")
}

func TestProcess_MarkExitedIdempotent(t *testing.T) {
	p := NewProcess(1, nil, time.Now())
	exited, _ := p.Exited()
	assert.False(t, exited)

	p.MarkExited(nil)
	p.MarkExited(assert.AnError)
	exited, err := p.Exited()
	assert.True(t, exited)
	assert.NoError(t, err)
}

func TestExecLauncher_NoClassMarker(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-term")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	l := &ExecLauncher{Template: script + " --class {{class}} {{cmd}}", NoClassMarker: true}
	assert.False(t, l.SupportsClassMarker())

	proc, err := l.Launch(context.Background(), Request{Marker: "termpilot-x"})
	require.NoError(t, err)
	assert.Equal(t, []string{script}, proc.Argv)

	l.NoClassMarker = false
	assert.True(t, l.SupportsClassMarker())
}
