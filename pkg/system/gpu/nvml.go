package gpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/ja7ad/runmeter/pkg/types"
)

// device is the subset of nvml.Device the querier reads.
type device interface {
	GetPowerUsage() (uint32, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
}

// NVML queries GPUs through the NVIDIA management library instead of the
// command line tool.
type NVML struct {
	devices []device
	close   func() nvml.Return
}

// NewNVML initializes NVML. A missing library or driver is reported as a
// ToolNotFoundError so callers can fall back the same way as for nvidia-smi.
func NewNVML() (*NVML, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, &ToolNotFoundError{Tool: "nvml", Err: errors.New(retString(ret))}
	}
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS || count == 0 {
		nvml.Shutdown()
		return nil, &ToolNotFoundError{Tool: "nvml", Err: errors.New("no NVIDIA devices found")}
	}
	n := &NVML{devices: make([]device, 0, count), close: nvml.Shutdown}
	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			nvml.Shutdown()
			return nil, fmt.Errorf("gpu: nvml device %d: %s", i, retString(ret))
		}
		n.devices = append(n.devices, dev)
	}
	return n, nil
}

func (n *NVML) Name() string { return "nvml" }

func (n *NVML) Query(_ context.Context) ([]Reading, error) {
	readings := make([]Reading, 0, len(n.devices))
	for i, dev := range n.devices {
		mw, ret := dev.GetPowerUsage()
		if ret != nvml.SUCCESS {
			return nil, &ToolExecutionError{Tool: "nvml", Err: fmt.Errorf("device %d power: %s", i, retString(ret))}
		}
		util, ret := dev.GetUtilizationRates()
		if ret != nvml.SUCCESS {
			return nil, &ToolExecutionError{Tool: "nvml", Err: fmt.Errorf("device %d utilization: %s", i, retString(ret))}
		}
		readings = append(readings, Reading{
			Index:       i,
			PowerW:      types.FromMilliWatts(mw).Watts(),
			Utilization: float64(util.Gpu),
		})
	}
	return readings, nil
}

func (n *NVML) Close() error {
	if n.close == nil {
		return nil
	}
	if ret := n.close(); ret != nvml.SUCCESS {
		return fmt.Errorf("gpu: nvml shutdown: %s", retString(ret))
	}
	return nil
}

// retString avoids nvml.ErrorString, which needs the library loaded.
func retString(ret nvml.Return) string {
	return fmt.Sprintf("nvml return code %d", int32(ret))
}
