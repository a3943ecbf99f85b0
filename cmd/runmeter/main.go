//go:build linux

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "runmeter",
		Short: "Energy and resource measurement for repeated workload runs",
		Long: `The runmeter tool runs a workload once per row of an experiment's run table
and measures each run: host CPU and memory utilization, RAPL package and DRAM
power and energy, NVIDIA GPU power and utilization, or the per-process report
of an attached power profiler. Every run's metrics are appended to
run_table.csv in its run directory and to the experiment table.

* GitHub: https://github.com/ja7ad/runmeter

Examples:
  runmeter run --experiment.name primes -- ./primes --config config.json
  runmeter run --config.file experiment.yaml --monitor.mode profiled
  runmeter sample --monitor.cpu-interval 500ms
  runmeter gen-config config.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	registerCommonFlags(root)
	root.AddCommand(newRunCmd(), newSampleCmd(), newGenConfigCmd())
	return root
}
