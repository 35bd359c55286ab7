// Package procfs reads process-table facts from a Linux /proc tree.
//
// All lookups take a pid and return errors wrapping fs.ErrNotExist when the
// process is gone, so callers can treat a vanished process uniformly.
package procfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultRoot is the mount point of the live process table.
const DefaultRoot = "/proc"

// clockTicks is USER_HZ. It is 100 on every mainstream Linux ABI and is not
// reachable through sysconf without cgo.
const clockTicks = 100

// FS is a view of a /proc tree rooted at Root.
type FS struct {
	root string
}

// New returns an FS rooted at root; an empty root means DefaultRoot.
func New(root string) FS {
	if root == "" {
		root = DefaultRoot
	}
	return FS{root: root}
}

// Root returns the mount point this FS reads from.
func (fs FS) Root() string { return fs.root }

// Stat holds the fields of /proc/<pid>/stat that this module uses.
type Stat struct {
	PID       int
	Comm      string
	State     byte
	PPID      int
	PGRP      int
	Session   int
	TTY       int
	TPGID     int
	StartTick uint64
}

func (fs FS) pidPath(pid int, elem ...string) string {
	return filepath.Join(append([]string{fs.root, strconv.Itoa(pid)}, elem...)...)
}

// ReadStat parses /proc/<pid>/stat.
func (fs FS) ReadStat(pid int) (Stat, error) {
	data, err := os.ReadFile(fs.pidPath(pid, "stat"))
	if err != nil {
		return Stat{}, err
	}
	return parseStat(data)
}

func parseStat(data []byte) (Stat, error) {
	line := strings.TrimSpace(string(data))
	// comm may contain spaces and parentheses; it ends at the last ')'.
	open := strings.IndexByte(line, '(')
	closeIdx := strings.LastIndexByte(line, ')')
	if open <= 0 || closeIdx < open {
		return Stat{}, fmt.Errorf("malformed stat line %q", line)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(line[:open]))
	if err != nil {
		return Stat{}, fmt.Errorf("malformed stat pid: %w", err)
	}

	fields := strings.Fields(line[closeIdx+1:])
	// fields[0] is field 3 (state); starttime is field 22.
	if len(fields) < 20 {
		return Stat{}, fmt.Errorf("short stat line for pid %d: %d fields", pid, len(fields))
	}

	ints := make([]int, 6)
	for i := range ints {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return Stat{}, fmt.Errorf("stat field %d for pid %d: %w", i+4, pid, err)
		}
		ints[i] = v
	}
	start, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return Stat{}, fmt.Errorf("stat starttime for pid %d: %w", pid, err)
	}

	return Stat{
		PID:       pid,
		Comm:      line[open+1 : closeIdx],
		State:     fields[0][0],
		PPID:      ints[0],
		PGRP:      ints[1],
		Session:   ints[2],
		TTY:       ints[3],
		TPGID:     ints[4],
		StartTick: start,
	}, nil
}

// Alive reports whether pid is present and not a zombie.
func (fs FS) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if fs.root == DefaultRoot {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return false
		}
	}
	st, err := fs.ReadStat(pid)
	if err != nil {
		return false
	}
	return st.State != 'Z' && st.State != 'X'
}

// Cmdline returns the argv of pid.
func (fs FS) Cmdline(pid int) ([]string, error) {
	data, err := os.ReadFile(fs.pidPath(pid, "cmdline"))
	if err != nil {
		return nil, err
	}
	data = bytes.TrimRight(data, "\x00")
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(string(data), "\x00"), nil
}

// Environ returns the initial environment of pid. Reading another user's
// environment fails with a permission error.
func (fs FS) Environ(pid int) (map[string]string, error) {
	data, err := os.ReadFile(fs.pidPath(pid, "environ"))
	if err != nil {
		return nil, err
	}
	env := make(map[string]string)
	for _, kv := range strings.Split(string(data), "\x00") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env, nil
}

// Cwd returns the working directory of pid.
func (fs FS) Cwd(pid int) (string, error) {
	return os.Readlink(fs.pidPath(pid, "cwd"))
}

// BootTime returns the system boot time from the btime line of /proc/stat.
func (fs FS) BootTime() (time.Time, error) {
	f, err := os.Open(filepath.Join(fs.root, "stat"))
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		secs, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "btime ")), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse btime: %w", err)
		}
		return time.Unix(secs, 0), nil
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, err
	}
	return time.Time{}, errors.New("btime not found in stat")
}

// StartTime returns the wall-clock start time of pid.
func (fs FS) StartTime(pid int) (time.Time, error) {
	st, err := fs.ReadStat(pid)
	if err != nil {
		return time.Time{}, err
	}
	boot, err := fs.BootTime()
	if err != nil {
		return time.Time{}, err
	}
	offset := time.Duration(st.StartTick) * time.Second / clockTicks
	return boot.Add(offset), nil
}

// PIDs lists every numeric entry in the process table, ascending.
func (fs FS) PIDs() ([]int, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

// Descendants returns the stats of every live descendant of pid in
// breadth-first order. Processes that exit mid-scan are skipped.
func (fs FS) Descendants(pid int) ([]Stat, error) {
	pids, err := fs.PIDs()
	if err != nil {
		return nil, err
	}

	children := make(map[int][]Stat)
	for _, p := range pids {
		st, err := fs.ReadStat(p)
		if err != nil {
			continue
		}
		children[st.PPID] = append(children[st.PPID], st)
	}

	var out []Stat
	queue := []int{pid}
	seen := map[int]bool{pid: true}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range children[next] {
			if seen[child.PID] {
				continue
			}
			seen[child.PID] = true
			out = append(out, child)
			queue = append(queue, child.PID)
		}
	}
	return out, nil
}

// SocketInodes returns the inode numbers of every socket fd held by pid.
func (fs FS) SocketInodes(pid int) (map[uint64]bool, error) {
	dir := fs.pidPath(pid, "fd")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	inodes := make(map[uint64]bool)
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
			continue
		}
		inode, err := strconv.ParseUint(target[len("socket:["):len(target)-1], 10, 64)
		if err != nil {
			continue
		}
		inodes[inode] = true
	}
	return inodes, nil
}

// UnixListener is one listening AF_UNIX socket bound to a filesystem path.
type UnixListener struct {
	Inode uint64
	Path  string
}

const unixAcceptCon = 0x10000

// UnixListeners parses /proc/net/unix and returns path-bound listening
// sockets. Abstract-namespace sockets are skipped.
func (fs FS) UnixListeners() ([]UnixListener, error) {
	f, err := os.Open(filepath.Join(fs.root, "net", "unix"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseNetUnix(f)
}

func parseNetUnix(r io.Reader) ([]UnixListener, error) {
	var out []UnixListener
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 {
			continue
		}
		flags, err := strconv.ParseUint(fields[3], 16, 64)
		if err != nil || flags&unixAcceptCon == 0 {
			continue
		}
		path := strings.Join(fields[7:], " ")
		if strings.HasPrefix(path, "@") {
			continue
		}
		inode, err := strconv.ParseUint(fields[6], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, UnixListener{Inode: inode, Path: path})
	}
	return out, scanner.Err()
}

// ListeningSockets returns the filesystem paths of unix sockets pid is
// listening on.
func (fs FS) ListeningSockets(pid int) ([]string, error) {
	inodes, err := fs.SocketInodes(pid)
	if err != nil {
		return nil, err
	}
	if len(inodes) == 0 {
		return nil, nil
	}
	listeners, err := fs.UnixListeners()
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, l := range listeners {
		if inodes[l.Inode] {
			paths = append(paths, l.Path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
