//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statTail = "18446744073709551615 94679445069824 94679445089705 140725496412560 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0 " +
	"94679445105712 94679445107328 94680091619328 140725496419645 140725496419665 140725496419665 140725496422379 0"

// fakeProc builds a minimal procfs tree under a temp dir and points procRoot
// at it for the duration of the test.
type fakeProc struct {
	t    *testing.T
	root string
}

func newFakeProc(t *testing.T) *fakeProc {
	t.Helper()
	root := t.TempDir()
	prev := procRoot
	procRoot = root
	t.Cleanup(func() { procRoot = prev })
	return &fakeProc{t: t, root: root}
}

func (f *fakeProc) write(pid int, name, content string) {
	f.t.Helper()
	path := filepath.Join(f.root, strconv.Itoa(pid), name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fakeProc) stat(pid int, comm string, utime, stime uint64) {
	f.t.Helper()
	line := fmt.Sprintf("%d (%s) S 1 %d %d 0 -1 4194304 82 0 3 0 %d %d 0 0 20 0 1 0 59244 2703360 272 %s\n",
		pid, comm, pid, pid, utime, stime, statTail)
	f.write(pid, "stat", line)
}

func (f *fakeProc) children(pid int, kids ...int) {
	f.t.Helper()
	var s string
	for _, k := range kids {
		s += strconv.Itoa(k) + " "
	}
	f.write(pid, filepath.Join("task", strconv.Itoa(pid), "children"), s)
}

func TestClockTicks(t *testing.T) {
	t.Setenv("CLK_TCK", "")
	assert.Equal(t, userHZ, ClockTicks())

	t.Setenv("CLK_TCK", "250")
	assert.Equal(t, 250, ClockTicks())

	t.Setenv("CLK_TCK", "-3")
	assert.Equal(t, userHZ, ClockTicks())
}

func TestExists(t *testing.T) {
	assert.True(t, Exists(os.Getpid()), "current PID should exist")
	assert.False(t, Exists(999999999), "very large PID should not exist")
	assert.False(t, Exists(0))
	assert.False(t, Exists(-1))
}

func TestReadProcStat_Self(t *testing.T) {
	me := os.Getpid()
	ut, st, err := ReadProcStat(me)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	ut2, st2, err := ReadProcStat(me)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ut2, ut)
	assert.GreaterOrEqual(t, st2, st)
}

func TestReadProcStat_Fixture(t *testing.T) {
	fp := newFakeProc(t)
	fp.stat(100, "my worker", 120, 30)

	ut, st, err := ReadProcStat(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), ut)
	assert.Equal(t, uint64(30), st)

	_, _, err = ReadProcStat(101)
	require.Error(t, err)
}

func TestReadProcRSS(t *testing.T) {
	fp := newFakeProc(t)
	fp.write(100, "smaps_rollup", "55d0-7ffd ---p 00000000 00:00 0 [rollup]\nRss:                2048 kB\nPss: 1024 kB\n")
	fp.stat(101, "no rollup", 0, 0)
	fp.write(102, "status", "")

	rss, err := ReadProcRSS(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(2048*1024), rss)

	// the stat fixture reports 272 resident pages
	rss, err = ReadProcRSS(101)
	require.NoError(t, err)
	assert.Equal(t, uint64(272*os.Getpagesize()), rss)

	_, err = ReadProcRSS(102)
	assert.ErrorIs(t, err, ErrNoRSS)

	_, err = ReadProcRSS(103)
	assert.Error(t, err)
}

func TestReadProcRSS_Self(t *testing.T) {
	rss, err := ReadProcRSS(os.Getpid())
	if err != nil {
		t.Skipf("skipping: unable to read RSS for self: %v", err)
	}
	assert.Greater(t, rss, uint64(0))
}

func TestReadProcChildren(t *testing.T) {
	fp := newFakeProc(t)
	fp.stat(100, "root", 0, 0)
	fp.write(100, "task/100/children", "101 102 ")
	fp.write(100, "task/200/children", "102 103")

	kids, err := ReadProcChildren(100)
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102, 103}, kids)

	_, err = ReadProcChildren(999)
	assert.ErrorIs(t, err, ErrNoChildren)
}

func TestTree(t *testing.T) {
	fp := newFakeProc(t)
	fp.stat(100, "root", 0, 0)
	fp.stat(101, "child", 0, 0)
	fp.stat(102, "grandchild", 0, 0)
	fp.children(100, 101, 105) // 105 already exited
	fp.children(101, 102, 100) // cycle guard

	assert.Equal(t, []int{100, 101, 102}, Tree(100))
	assert.Nil(t, Tree(999))
}
