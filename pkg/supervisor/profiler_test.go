//go:build linux

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiler_Paths(t *testing.T) {
	p := Profiler{Output: "/runs/r1/powerjoular.csv"}
	assert.Equal(t, []string{"-l", "-p", "42", "-f", "/runs/r1/powerjoular.csv"}, p.Args(42))
	assert.Equal(t, "/runs/r1/powerjoular.csv-42.csv", p.ReportPath(42))
	assert.Equal(t, DefaultProfilerTool, p.tool())
}

func TestStartProfiler_ConfigurationErrors(t *testing.T) {
	prof := Profiler{Output: filepath.Join(t.TempDir(), "out.csv")}

	var cfgErr *ConfigurationError
	_, err := StartProfiler(context.Background(), prof, nil)
	require.ErrorAs(t, err, &cfgErr)

	exited, err := Launch(context.Background(), helperCommand("exit", "0"))
	require.NoError(t, err)
	_ = exited.Wait(context.Background())
	_, err = StartProfiler(context.Background(), prof, exited)
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), strconv.Itoa(exited.PID()))

	target := launchReady(t, "sleep")
	_, err = StartProfiler(context.Background(), Profiler{}, target)
	require.ErrorAs(t, err, &cfgErr)
}

func TestStartProfiler_InterruptStops(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "fake-profiler")
	script := "#!/bin/sh\n" +
		"echo \"$@\" > \"$5.args\"\n" +
		"trap 'exit 0' INT\n" +
		"while :; do sleep 0.05; done\n"
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	target := launchReady(t, "sleep")
	out := filepath.Join(dir, "powerjoular.csv")
	prof, err := StartProfiler(context.Background(), Profiler{Tool: tool, Output: out}, target)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(out + ".args")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	args, err := os.ReadFile(out + ".args")
	require.NoError(t, err)
	assert.Equal(t, "-l -p "+strconv.Itoa(target.PID())+" -f "+out+"\n", string(args))

	require.NoError(t, prof.Interrupt())
	assert.Equal(t, 0, prof.ExitCode())
	assert.True(t, target.Alive())
}
