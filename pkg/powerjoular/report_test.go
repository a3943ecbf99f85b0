package powerjoular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/runmeter/pkg/consumption"
)

const cpuOnly = `Date,CPU Utilization,Total Power,CPU Power
2024-10-01 10:00:01,0.25,12.5,10.0
2024-10-01 10:00:02,0.35,14.5,12.0
2024-10-01 10:00:03,0.30,16.5,14.0
`

func TestDecode(t *testing.T) {
	rep, err := Decode(strings.NewReader(cpuOnly))
	require.NoError(t, err)
	assert.Equal(t, []string{ColDate, ColCPUUtilization, ColTotalPower, ColCPUPower}, rep.Header)
	require.Len(t, rep.Rows, 3)
	assert.Equal(t, "2024-10-01 10:00:01", rep.Rows[0].Date)
	require.NotNil(t, rep.Rows[2].CPUPower)
	assert.Equal(t, 14.0, *rep.Rows[2].CPUPower)
	assert.Nil(t, rep.Rows[0].GPUPower)
	assert.True(t, rep.Has(ColCPUPower))
	assert.False(t, rep.Has(ColGPUPower))
}

func TestMetrics_CPUOnly(t *testing.T) {
	rep, err := Decode(strings.NewReader(cpuOnly))
	require.NoError(t, err)
	m := rep.Metrics()

	assert.Equal(t, consumption.ProfiledSchema.Names(), m.Names())
	v, _ := m.Get(consumption.AvgCPUUtilization)
	assert.Equal(t, 0.3, v)
	v, _ = m.Get(consumption.AvgCPUPower)
	assert.Equal(t, 12.0, v)
	v, _ = m.Get(consumption.TotalCPUEnergy)
	assert.Equal(t, 36.0, v)
	assert.Equal(t, []string{"0.3", "12.0", "36.0", "0", "0", "0"}, m.Strings())
}

func TestMetrics_WithGPU(t *testing.T) {
	in := "Date,CPU Utilization,CPU Power,GPU Utilization,GPU Power\n" +
		"t1,0.5,10,40,100\n" +
		"t2,0.5,10,,150\n" +
		"t3,0.5,10,60,\n"
	rep, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	m := rep.Metrics()

	v, _ := m.Get(consumption.AvgGPUUtilization)
	assert.Equal(t, 50.0, v)
	v, _ = m.Get(consumption.AvgGPUPower)
	assert.Equal(t, 125.0, v)
	v, _ = m.Get(consumption.TotalGPUEnergy)
	assert.Equal(t, 250.0, v)
}

func TestMetrics_HeaderOnly(t *testing.T) {
	rep, err := Decode(strings.NewReader("Date,CPU Utilization,CPU Power\n"))
	require.NoError(t, err)
	assert.Empty(t, rep.Rows)
	assert.Equal(t, []string{"0", "0", "0", "0", "0", "0"}, rep.Metrics().Strings())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyReport)

	_, err = Decode(strings.NewReader("Date,CPU Power\nt1,abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powerjoular.csv-1234.csv")
	require.NoError(t, os.WriteFile(path, []byte(cpuOnly), 0o644))

	rep, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, rep.Rows, 3)

	_, err = ReadFile(path + ".missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
