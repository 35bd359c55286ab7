package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// UserRuntimeDir returns the per-user runtime directory without creating
// anything. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// The boolean is false when neither exists.
func UserRuntimeDir() (string, bool) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, true
	}

	runUserDir := fmt.Sprintf("/run/user/%d", os.Getuid())
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, true
	}
	return "", false
}

// EditorSocketDirs returns the directories Neovim uses for its default
// listen address, most specific first. Neovim >= 0.8 places sockets
// directly under the runtime dir; older releases and sessions without a
// runtime dir use a per-user directory under TMPDIR.
func EditorSocketDirs() []string {
	var dirs []string
	if runtimeDir, ok := UserRuntimeDir(); ok {
		dirs = append(dirs, runtimeDir)
	}

	tmp := os.TempDir()
	if user := os.Getenv("USER"); user != "" {
		dirs = append(dirs, filepath.Join(tmp, "nvim."+user))
	}
	dirs = append(dirs, tmp)
	return dirs
}
