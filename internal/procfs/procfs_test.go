package procfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProc builds a minimal /proc tree under a temp dir.
type fakeProc struct {
	t    *testing.T
	root string
}

func newFakeProc(t *testing.T) *fakeProc {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stat"), []byte("cpu  1 2 3\nbtime 1700000000\nprocesses 42\n"), 0o644))
	return &fakeProc{t: t, root: root}
}

func (p *fakeProc) addProcess(pid, ppid int, comm string, state byte, tpgid int, startTick uint64, argv ...string) {
	p.t.Helper()
	dir := filepath.Join(p.root, fmt.Sprint(pid))
	require.NoError(p.t, os.MkdirAll(filepath.Join(dir, "fd"), 0o755))
	stat := fmt.Sprintf("%d (%s) %c %d %d %d 34816 %d 4194304 100 0 0 0 1 2 0 0 20 0 1 0 %d 1000 200\n",
		pid, comm, state, ppid, pid, pid, tpgid, startTick)
	require.NoError(p.t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
	cmdline := strings.Join(argv, "\x00")
	if cmdline != "" {
		cmdline += "\x00"
	}
	require.NoError(p.t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644))
}

func (p *fakeProc) setCwd(pid int, cwd string) {
	p.t.Helper()
	require.NoError(p.t, os.Symlink(cwd, filepath.Join(p.root, fmt.Sprint(pid), "cwd")))
}

func (p *fakeProc) addFD(pid, fd int, target string) {
	p.t.Helper()
	require.NoError(p.t, os.Symlink(target, filepath.Join(p.root, fmt.Sprint(pid), "fd", fmt.Sprint(fd))))
}

func (p *fakeProc) writeNetUnix(lines ...string) {
	p.t.Helper()
	require.NoError(p.t, os.MkdirAll(filepath.Join(p.root, "net"), 0o755))
	body := "Num       RefCount Protocol Flags    Type St Inode Path\n" + strings.Join(lines, "\n") + "\n"
	require.NoError(p.t, os.WriteFile(filepath.Join(p.root, "net", "unix"), []byte(body), 0o644))
}

func TestParseStat_CommWithSpacesAndParens(t *testing.T) {
	line := "4242 (my (weird) proc) S 1 4242 4242 34817 4300 4194304 0 0 0 0 0 0 0 0 20 0 1 0 98765 0 0\n"
	st, err := parseStat([]byte(line))
	require.NoError(t, err)

	assert.Equal(t, 4242, st.PID)
	assert.Equal(t, "my (weird) proc", st.Comm)
	assert.Equal(t, byte('S'), st.State)
	assert.Equal(t, 1, st.PPID)
	assert.Equal(t, 34817, st.TTY)
	assert.Equal(t, 4300, st.TPGID)
	assert.Equal(t, uint64(98765), st.StartTick)
}

func TestParseStat_Malformed(t *testing.T) {
	for _, line := range []string{"", "garbage", "12 (x) S 1 2"} {
		_, err := parseStat([]byte(line))
		assert.Error(t, err, "line %q", line)
	}
}

func TestCmdlineAndCwd(t *testing.T) {
	p := newFakeProc(t)
	p.addProcess(100, 1, "alacritty", 'S', 100, 500, "alacritty", "--title", "work", "--working-directory", "/src")
	p.setCwd(100, "/src")
	fs := New(p.root)

	argv, err := fs.Cmdline(100)
	require.NoError(t, err)
	assert.Equal(t, []string{"alacritty", "--title", "work", "--working-directory", "/src"}, argv)

	cwd, err := fs.Cwd(100)
	require.NoError(t, err)
	assert.Equal(t, "/src", cwd)

	_, err = fs.Cmdline(999)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStartTime(t *testing.T) {
	p := newFakeProc(t)
	p.addProcess(100, 1, "alacritty", 'S', 100, 250)
	fs := New(p.root)

	got, err := fs.StartTime(100)
	require.NoError(t, err)
	want := time.Unix(1700000000, 0).Add(2500 * time.Millisecond)
	assert.True(t, got.Equal(want), "StartTime = %v, want %v", got, want)
}

func TestAlive_ZombieIsNotAlive(t *testing.T) {
	p := newFakeProc(t)
	p.addProcess(100, 1, "alacritty", 'S', 100, 1)
	p.addProcess(101, 1, "alacritty", 'Z', 101, 1)
	fs := New(p.root)

	assert.True(t, fs.Alive(100))
	assert.False(t, fs.Alive(101))
	assert.False(t, fs.Alive(102))
	assert.False(t, fs.Alive(0))
}

func TestDescendants_BreadthFirst(t *testing.T) {
	p := newFakeProc(t)
	p.addProcess(100, 1, "alacritty", 'S', 100, 1)
	p.addProcess(110, 100, "zsh", 'S', 120, 2)
	p.addProcess(120, 110, "nvim", 'S', 120, 3)
	p.addProcess(121, 120, "nvim", 'S', 120, 4)
	p.addProcess(200, 1, "other", 'S', 200, 5)
	fs := New(p.root)

	got, err := fs.Descendants(100)
	require.NoError(t, err)
	pids := make([]int, 0, len(got))
	for _, st := range got {
		pids = append(pids, st.PID)
	}
	assert.Equal(t, []int{110, 120, 121}, pids)
}

func TestListeningSockets(t *testing.T) {
	p := newFakeProc(t)
	p.addProcess(300, 1, "nvim", 'S', 300, 1)
	p.addFD(300, 0, "/dev/pts/3")
	p.addFD(300, 7, "socket:[5551]")
	p.addFD(300, 8, "socket:[5552]")
	p.addFD(300, 9, "socket:[5553]")
	p.writeNetUnix(
		"0000000000000000: 00000002 00000000 00010000 0001 01 5551 /run/user/1000/nvim.300.0",
		"0000000000000000: 00000003 00000000 00000000 0001 03 5552",
		"0000000000000000: 00000002 00000000 00010000 0001 01 5553 @abstract",
		"0000000000000000: 00000002 00000000 00010000 0001 01 7777 /tmp/someone-else.sock",
	)
	fs := New(p.root)

	paths, err := fs.ListeningSockets(300)
	require.NoError(t, err)
	assert.Equal(t, []string{"/run/user/1000/nvim.300.0"}, paths)
}

func TestPIDs_SkipsNonNumeric(t *testing.T) {
	p := newFakeProc(t)
	p.addProcess(5, 1, "a", 'S', 5, 1)
	p.addProcess(3, 1, "b", 'S', 3, 1)
	require.NoError(t, os.MkdirAll(filepath.Join(p.root, "self"), 0o755))

	pids, err := New(p.root).PIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, pids)
}
