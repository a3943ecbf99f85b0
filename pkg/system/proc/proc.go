//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// procRoot is the procfs mount point; tests point it at a fixture tree.
var procRoot = procfs.DefaultMountPoint

// userHZ is the unit of the utime/stime fields; Linux exports them in
// USER_HZ, which is 100 on every supported architecture.
const userHZ = 100

// ClockTicks returns the jiffies per second of /proc/<pid>/stat times.
// CLK_TCK in the environment overrides it.
func ClockTicks() int {
	if v, err := strconv.Atoi(os.Getenv("CLK_TCK")); err == nil && v > 0 {
		return v
	}
	return userHZ
}

func pidPath(pid int, elem ...string) string {
	return filepath.Join(append([]string{procRoot, strconv.Itoa(pid)}, elem...)...)
}

// Exists reports whether pid has a directory under procRoot.
func Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.Stat(pidPath(pid))
	return err == nil
}

func lookup(pid int) (procfs.Proc, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return procfs.Proc{}, err
	}
	p, err := fs.Proc(pid)
	if err != nil {
		return procfs.Proc{}, fmt.Errorf("proc: pid %d: %w", pid, err)
	}
	return p, nil
}

// ReadProcStat returns the user and system CPU time of pid in jiffies.
func ReadProcStat(pid int) (utime, stime uint64, err error) {
	p, err := lookup(pid)
	if err != nil {
		return 0, 0, err
	}
	st, err := p.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("proc: stat %d: %w", pid, err)
	}
	return uint64(st.UTime), uint64(st.STime), nil
}

// ReadProcRSS returns the resident memory of pid in bytes, from
// smaps_rollup when the kernel has it and from the stat rss field
// otherwise.
func ReadProcRSS(pid int) (uint64, error) {
	p, err := lookup(pid)
	if err != nil {
		return 0, err
	}
	if rollup, err := p.ProcSMapsRollup(); err == nil && rollup.Rss > 0 {
		return rollup.Rss, nil
	}
	st, err := p.Stat()
	if err != nil || st.RSS <= 0 {
		return 0, ErrNoRSS
	}
	return uint64(st.ResidentMemory()), nil
}

// ReadProcChildren returns the direct child PIDs of a process by reading
// /proc/<pid>/task/*/children files, deduplicated across threads.
// Returns ErrNoChildren when there are none.
func ReadProcChildren(pid int) ([]int, error) {
	paths, _ := filepath.Glob(pidPath(pid, "task", "*", "children"))
	set := map[int]struct{}{}
	var out []int
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		for _, s := range strings.Fields(string(b)) {
			id, err := strconv.Atoi(s)
			if err != nil {
				continue
			}
			if _, ok := set[id]; !ok {
				set[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoChildren
	}
	return out, nil
}

// Tree returns root and all of its live descendants, breadth first. It
// returns nil when root does not exist.
func Tree(root int) []int {
	if !Exists(root) {
		return nil
	}
	queue := []int{root}
	seen := map[int]struct{}{root: {}}
	var out []int
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		out = append(out, pid)
		kids, _ := ReadProcChildren(pid)
		for _, k := range kids {
			if _, ok := seen[k]; ok || !Exists(k) {
				continue
			}
			seen[k] = struct{}{}
			queue = append(queue, k)
		}
	}
	return out
}
