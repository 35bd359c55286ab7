package editorctx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/1broseidon/termpilot/internal/procfs"
	"github.com/1broseidon/termpilot/internal/runtimepath"
)

// Editor is a located editor process and its control socket.
type Editor struct {
	PID        int
	SocketPath string
}

// Locator finds the editor running inside a terminal.
type Locator struct {
	proc  procfs.FS
	names map[string]bool
	globs []string
}

// DefaultSocketGlobs are the listen addresses Neovim picks on its own.
// "{pid}" is replaced with the candidate editor pid.
func DefaultSocketGlobs() []string {
	var globs []string
	tmp := os.TempDir()
	for _, dir := range runtimepath.EditorSocketDirs() {
		switch {
		case dir == tmp:
			globs = append(globs,
				filepath.Join(dir, "nvim.{pid}.0"),
				filepath.Join(dir, "nvim{pid}", "0"),
			)
		case filepath.Dir(dir) == tmp:
			// Per-user dir holds one random subdirectory per instance.
			globs = append(globs, filepath.Join(dir, "*", "nvim.{pid}.0"))
		default:
			globs = append(globs, filepath.Join(dir, "nvim.{pid}.0"))
		}
	}
	return globs
}

// NewLocator creates a Locator. names are process comm values treated as
// editors; globs are tried in order before falling back to the unix
// sockets the process holds. Globs may use "**" to match any depth.
func NewLocator(proc procfs.FS, names, globs []string) *Locator {
	if len(names) == 0 {
		names = []string{"nvim"}
	}
	if len(globs) == 0 {
		globs = DefaultSocketGlobs()
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return &Locator{proc: proc, names: set, globs: globs}
}

// Locate walks the process tree under terminalPID for an editor with a
// reachable control socket. Editors in the tty's foreground process group
// are tried first.
func (l *Locator) Locate(terminalPID int) (Editor, error) {
	descendants, err := l.proc.Descendants(terminalPID)
	if err != nil {
		return Editor{}, fmt.Errorf("%w: process tree of %d: %v", ErrNotAnEditorInstance, terminalPID, err)
	}

	var candidates []procfs.Stat
	for _, st := range descendants {
		if l.names[st.Comm] {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return Editor{}, fmt.Errorf("%w: no editor process under pid %d", ErrNotAnEditorInstance, terminalPID)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return isForeground(candidates[i]) && !isForeground(candidates[j])
	})

	for _, st := range candidates {
		if socket, ok := l.socketFor(st.PID); ok {
			return Editor{PID: st.PID, SocketPath: socket}, nil
		}
	}
	return Editor{}, fmt.Errorf("%w: editor pid %d has no control socket", ErrNotAnEditorInstance, candidates[0].PID)
}

func isForeground(st procfs.Stat) bool {
	return st.TPGID > 0 && st.PGRP == st.TPGID
}

func (l *Locator) socketFor(pid int) (string, bool) {
	p := strconv.Itoa(pid)
	for _, g := range l.globs {
		matches, err := doublestar.FilepathGlob(strings.ReplaceAll(g, "{pid}", p), doublestar.WithFilesOnly())
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if isSocket(m) {
				return m, true
			}
		}
	}

	sockets, err := l.proc.ListeningSockets(pid)
	if err != nil {
		return "", false
	}
	for _, s := range sockets {
		if isSocket(s) {
			return s, true
		}
	}
	return "", false
}

func isSocket(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode()&os.ModeSocket != 0
}
