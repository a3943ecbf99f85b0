package sink

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/runmeter/pkg/consumption"
)

func resourceMetrics(t *testing.T, cpuPower float64) consumption.RunMetrics {
	t.Helper()
	b := consumption.NewBuilder(consumption.ResourceSchema)
	require.NoError(t, b.Set(consumption.AvgCPUUtilization, 12))
	require.NoError(t, b.Set(consumption.AvgCPUPower, cpuPower))
	require.NoError(t, b.Set(consumption.CPUEnergyUsage, 2.5))
	return b.Build()
}

func TestAppendCSV_HeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_table.csv")

	require.NoError(t, AppendCSV(path, resourceMetrics(t, 5)))
	require.NoError(t, AppendCSV(path, resourceMetrics(t, 6.25)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"avg_cpu_utilization,avg_mem_utilization,avg_cpu_power,avg_mem_power,cpu_energy_usage,mem_energy_usage,avg_gpu_power,avg_gpu_utilization,gpu_energy_usage\n"+
			"12.0,0,5.0,0.0,2.5,0.0,0,0,0.0\n"+
			"12.0,0,6.25,0.0,2.5,0.0,0,0,0.0\n",
		string(b))
}

func TestAppendCSV_EmptyFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_table.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, AppendRecord(path, []string{"a", "b"}, []string{"1", "x,y"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\"x,y\"\n", string(b))
}

func TestAppendRecord_Errors(t *testing.T) {
	assert.ErrorIs(t, AppendRecord("", []string{"a"}, []string{"1"}), ErrEmptyPath)
	assert.Error(t, AppendRecord(filepath.Join(t.TempDir(), "x.csv"), []string{"a"}, nil))
	assert.Error(t, AppendRecord(filepath.Join(t.TempDir(), "missing", "x.csv"), []string{"a"}, []string{"1"}))
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWriteRecords_FlushErrorSurfaces(t *testing.T) {
	boom := errors.New("disk full")
	err := writeRecords(failingWriter{boom}, true, []string{"a"}, []string{"1"})
	assert.ErrorIs(t, err, boom)
}

func TestAppendRecord_DeviceFull(t *testing.T) {
	f, err := os.OpenFile("/dev/full", os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Skipf("/dev/full not writable: %v", err)
	}
	require.NoError(t, f.Close())

	err = AppendRecord("/dev/full", []string{"a"}, []string{"1"})
	assert.ErrorIs(t, err, syscall.ENOSPC)
}
