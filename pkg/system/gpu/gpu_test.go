package gpu

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unsupported")
	}
	path := filepath.Join(t.TempDir(), "fake-smi")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestParseSMI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Reading
	}{
		{"single", "150.0, 80\n", []Reading{{Index: 0, PowerW: 150, Utilization: 80}}},
		{"trailing comma", "150.5, 80,\n", []Reading{{Index: 0, PowerW: 150.5, Utilization: 80}}},
		{"two gpus", "100, 50\n200, 70\n", []Reading{
			{Index: 0, PowerW: 100, Utilization: 50},
			{Index: 1, PowerW: 200, Utilization: 70},
		}},
		{"blank lines", "\n100, 50\n\n", []Reading{{Index: 0, PowerW: 100, Utilization: 50}}},
		{"empty", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSMI([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseSMI_Errors(t *testing.T) {
	for _, in := range []string{"[N/A], 80\n", "150\n", "150, 80, 3\n", "150, abc\n"} {
		_, err := ParseSMI([]byte(in))
		var perr *ParseError
		require.ErrorAs(t, err, &perr, "input %q", in)
	}
}

func TestSMI_Query(t *testing.T) {
	tool := fakeTool(t, `echo "$@" > "$0.args"
echo "150.0, 80"
`)
	s := NewSMI(tool)
	got, err := s.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Index: 0, PowerW: 150, Utilization: 80}}, got)

	args, err := os.ReadFile(tool + ".args")
	require.NoError(t, err)
	assert.Equal(t, "--query-gpu=power.draw,utilization.gpu --format=csv,nounits,noheader\n", string(args))
}

func TestSMI_QueryErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		_, err := NewSMI(filepath.Join(t.TempDir(), "missing-smi")).Query(context.Background())
		var nf *ToolNotFoundError
		require.ErrorAs(t, err, &nf)
	})
	t.Run("non-zero exit", func(t *testing.T) {
		tool := fakeTool(t, "echo 'NVIDIA-SMI has failed' >&2\nexit 9\n")
		_, err := NewSMI(tool).Query(context.Background())
		var ee *ToolExecutionError
		require.ErrorAs(t, err, &ee)
		assert.Contains(t, ee.Error(), "NVIDIA-SMI has failed")
	})
	t.Run("unparseable", func(t *testing.T) {
		tool := fakeTool(t, "echo '[N/A], [N/A]'\n")
		_, err := NewSMI(tool).Query(context.Background())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
	})
}

type stubQuerier struct {
	readings []Reading
	err      error
	calls    int
}

func (s *stubQuerier) Name() string { return "stub" }

func (s *stubQuerier) Query(context.Context) ([]Reading, error) {
	s.calls++
	return s.readings, s.err
}

func TestTelemetry_DisablesOnError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	q := &stubQuerier{readings: []Reading{{PowerW: 100, Utilization: 50}}}
	tel := NewTelemetry(q, WithLogger(logger))
	assert.True(t, tel.Available())
	assert.Len(t, tel.Sample(context.Background()), 1)

	q.err = &ToolExecutionError{Tool: "stub", Err: errors.New("boom")}
	assert.Nil(t, tel.Sample(context.Background()))
	assert.False(t, tel.Available())

	q.err = nil
	assert.Nil(t, tel.Sample(context.Background()))
	assert.Equal(t, 2, q.calls)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("skipping GPU monitoring")))

	var ee *ToolExecutionError
	assert.ErrorAs(t, tel.Err(), &ee)
}

func TestTelemetry_WarnOncePerProcess(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	var warned atomic.Bool

	q := &stubQuerier{err: &ToolNotFoundError{Tool: "stub"}}
	for i := 0; i < 3; i++ {
		tel := NewTelemetry(q, WithLogger(logger), WithWarnOnce(&warned))
		assert.Nil(t, tel.Sample(context.Background()))
		assert.False(t, tel.Available())
	}
	assert.Equal(t, 3, q.calls)
	assert.True(t, warned.Load())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("skipping GPU monitoring")))
}

func TestTelemetry_NilQuerier(t *testing.T) {
	tel := NewTelemetry(nil)
	assert.False(t, tel.Available())
	assert.Nil(t, tel.Sample(context.Background()))
	assert.ErrorIs(t, tel.Err(), ErrDisabled)
}

func TestTelemetry_MissingTool(t *testing.T) {
	tel := NewTelemetry(NewSMI(filepath.Join(t.TempDir(), "nope")), WithLogger(slog.New(slog.DiscardHandler)))
	assert.Nil(t, tel.Sample(context.Background()))
	assert.False(t, tel.Available())
}

func TestMean(t *testing.T) {
	p, u := Mean(nil)
	assert.Zero(t, p)
	assert.Zero(t, u)

	p, u = Mean([]Reading{{PowerW: 100, Utilization: 40}, {PowerW: 200, Utilization: 60}})
	assert.Equal(t, 150.0, p)
	assert.Equal(t, 50.0, u)
}

type fakeDevice struct {
	mw   uint32
	util uint32
	ret  nvml.Return
}

func (d fakeDevice) GetPowerUsage() (uint32, nvml.Return) { return d.mw, d.ret }

func (d fakeDevice) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return nvml.Utilization{Gpu: d.util}, d.ret
}

func TestNVML_Query(t *testing.T) {
	n := &NVML{devices: []device{
		fakeDevice{mw: 150500, util: 80, ret: nvml.SUCCESS},
		fakeDevice{mw: 20000, util: 5, ret: nvml.SUCCESS},
	}}
	got, err := n.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{
		{Index: 0, PowerW: 150.5, Utilization: 80},
		{Index: 1, PowerW: 20, Utilization: 5},
	}, got)
	assert.NoError(t, n.Close())

	n.devices = append(n.devices, fakeDevice{ret: nvml.ERROR_GPU_IS_LOST})
	_, err = n.Query(context.Background())
	var ee *ToolExecutionError
	assert.ErrorAs(t, err, &ee)
}
