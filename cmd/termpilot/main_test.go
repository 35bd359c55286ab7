package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/termpilot/internal/config"
	"github.com/1broseidon/termpilot/internal/editorctx"
	"github.com/1broseidon/termpilot/internal/registry"
)

func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfigValidate(t *testing.T) {
	path := writeTestConfig(t, "editor:\n  context_lines: 8\n")
	out, _, err := runRoot(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config: ok")

	bad := writeTestConfig(t, "editor:\n  context_lines: 800\n")
	_, _, err = runRoot(t, "--config", bad, "config", "validate")
	require.Error(t, err)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.code)
	assert.Contains(t, err.Error(), "editor.context_lines")
}

func TestConfigPrint(t *testing.T) {
	path := writeTestConfig(t, "logging:\n  level: debug\n")
	out, _, err := runRoot(t, "--config", path, "config", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "level: debug")

	out, _, err = runRoot(t, "--config", path, "config", "print", "--defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "level: info")
}

func TestConfigExplain(t *testing.T) {
	path := writeTestConfig(t, "spawn:\n  max_attempts: 4\n")
	out, _, err := runRoot(t, "--config", path, "config", "explain", "spawn.max_attempts")
	require.NoError(t, err)
	assert.Contains(t, out, "value:\n4")
	assert.Contains(t, out, "source: file:")

	_, _, err = runRoot(t, "--config", path, "config", "explain", "nope")
	assert.Error(t, err)
}

func TestConfigDetect_NoTerminals(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	path := writeTestConfig(t, "")
	out, _, err := runRoot(t, "--config", path, "config", "detect")
	require.NoError(t, err)
	assert.Contains(t, out, "no known terminal emulators")
}

func TestContext_RequiresExactlyOneTarget(t *testing.T) {
	for _, args := range [][]string{
		{"context"},
		{"context", "some-id", "--pid", "42"},
	} {
		_, _, err := runRoot(t, args...)
		var ee *exitError
		require.True(t, errors.As(err, &ee), "%v", args)
		assert.Equal(t, 2, ee.code)
	}
}

func TestFormatSource(t *testing.T) {
	tests := []struct {
		src  config.Source
		want string
	}{
		{config.Source{Kind: config.SourceFile, File: "/c.yaml", Line: 3, Column: 5}, "file:/c.yaml:3:5"},
		{config.Source{Kind: config.SourceFile, File: "/c.yaml"}, "file:/c.yaml"},
		{config.Source{Kind: config.SourceBuiltin, Name: "spawn_templates"}, "builtin:spawn_templates"},
		{config.Source{Kind: config.SourceDefault}, "default"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSource(tt.src))
	}
}

func TestRenderInstances(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderInstances(&buf, nil, false))
	assert.Equal(t, "no terminal instances\n", buf.String())

	buf.Reset()
	require.NoError(t, renderInstances(&buf, []registry.Instance{
		{ID: "3f2a", PID: 4242, WindowID: 0x1400001, Class: "Alacritty", Title: "nvim main.go", WorkingDirectory: "/src", CreatedAt: time.Now()},
	}, false))
	out := buf.String()
	for _, want := range []string{"ID", "3f2a", "4242", "0x1400001", "Alacritty", "nvim main.go", "/src"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderSnapshot(t *testing.T) {
	snap := &editorctx.Snapshot{
		Instance:         editorctx.InstanceInfo{ID: "3f2a", EditorPID: 77, EditorVersion: "0.10.1"},
		WorkingDirectory: "/src",
		Mode:             &editorctx.Mode{Raw: "n", Name: "normal"},
		CurrentBuffer: &editorctx.CurrentBuffer{
			Path: "/src/main.go", Filetype: "go", LineCount: 3, Modified: true,
			Context: editorctx.ContextWindow{StartLine: 0, EndLine: 3, LinesBefore: []string{"package main"}, CurrentLine: "func main() {", LinesAfter: []string{"}"}, Absent: []int{0}},
		},
		Cursor: &editorctx.Cursor{Line: 2, Column: 1, Content: "func main() {"},
		Diagnostics: []editorctx.Diagnostic{
			{Path: "/src/main.go", Line: 2, Column: 6, Severity: editorctx.SeverityError, Message: "boom"},
		},
		DiagnosticCounts: editorctx.DiagnosticCounts{Errors: 1},
		OpenBuffers:      []editorctx.BufferInfo{{Path: "/src/main.go", Current: true}},
		LSPClients:       []editorctx.LSPClient{{Name: "gopls", Status: "active"}},
		Completeness: map[string]editorctx.FacetStatus{
			"buffer": {Status: editorctx.StatusComplete},
			"lsp":    {Status: editorctx.StatusTimeout},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderSnapshot(&buf, snap))
	out := buf.String()
	for _, want := range []string{"3f2a", "0.10.1", "normal", "/src/main.go", "package main", "func main() {", "boom", "gopls (active)", "buffer=", "lsp="} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "package main"), strings.Index(out, "func main() {"))
}
