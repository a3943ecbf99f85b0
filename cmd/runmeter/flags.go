//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"

	"github.com/ja7ad/runmeter/internal/config"
	"github.com/ja7ad/runmeter/internal/logger"
)

const (
	configFileFlag = "config.file"
	factorFlag     = "factor"
)

// registerCommonFlags adds the flags every subcommand shares. Defaults
// mirror config.DefaultConfig; only flags set on the command line override
// the configuration file.
func registerCommonFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	fs := cmd.PersistentFlags()
	fs.String(configFileFlag, "", "path to YAML configuration file")
	fs.String(config.LogLevelFlag, def.Log.Level, "log level: "+strings.Join(logger.Levels, ", "))
	fs.String(config.LogFormatFlag, def.Log.Format, "log format: "+strings.Join(logger.Formats, ", "))

	fs.String(config.MonitorModeFlag, def.Monitor.Mode, "measurement mode: resource or profiled")
	fs.Duration(config.MonitorBudgetFlag, def.Monitor.Budget, "sampling time budget per run")
	fs.Duration(config.MonitorCPUIntervalFlag, def.Monitor.CPUInterval, "blocking window of each CPU utilization sample")
	fs.Duration(config.MonitorCadenceFlag, def.Monitor.Cadence, "extra pause between samples")

	fs.Bool(config.RaplEnabledFlag, ptr.Deref(def.Rapl.Enabled, true), "read RAPL package and DRAM energy")
	fs.String(config.RaplSysFSFlag, def.Rapl.SysFS, "sysfs mount point")

	fs.String(config.GPUBackendFlag, def.GPU.Backend, "GPU telemetry backend: smi, nvml or none")
	fs.String(config.GPUToolFlag, def.GPU.Tool, "nvidia-smi executable for the smi backend")
}

func registerRunFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	fs := cmd.Flags()
	fs.String(config.ExperimentNameFlag, def.Experiment.Name, "experiment name, the directory below the output")
	fs.String(config.ExperimentOutputFlag, def.Experiment.Output, "directory holding experiments")
	fs.Duration(config.ExperimentCooldownFlag, def.Experiment.Cooldown, "pause between runs")
	fs.Int(config.ExperimentRepetitionsFlag, def.Experiment.Repetitions, "repetitions of every factor combination")
	fs.StringArray(factorFlag, nil, "factor and its levels as name=level1,level2 (repeatable)")

	fs.String(config.WorkloadDirFlag, def.Workload.Dir, "workload working directory (default: the run directory)")
	fs.String(config.ProfilerToolFlag, def.Profiler.Tool, "profiler executable for the profiled mode")
	fs.String(config.SinkTextfileFlag, def.Sink.Textfile, "also write run metrics to this Prometheus textfile")
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fs := cmd.Flags()
	cfg := config.DefaultConfig()
	if path, _ := fs.GetString(configFileFlag); path != "" {
		var err error
		if cfg, err = config.FromFile(path); err != nil {
			return nil, err
		}
	}

	var errs []string
	str := func(name string, dst *string) {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			return
		}
		v, err := fs.GetString(name)
		if err != nil {
			errs = append(errs, err.Error())
			return
		}
		*dst = strings.TrimSpace(v)
	}
	str(config.LogLevelFlag, &cfg.Log.Level)
	str(config.LogFormatFlag, &cfg.Log.Format)
	str(config.ExperimentNameFlag, &cfg.Experiment.Name)
	str(config.ExperimentOutputFlag, &cfg.Experiment.Output)
	str(config.WorkloadDirFlag, &cfg.Workload.Dir)
	str(config.MonitorModeFlag, &cfg.Monitor.Mode)
	str(config.RaplSysFSFlag, &cfg.Rapl.SysFS)
	str(config.GPUBackendFlag, &cfg.GPU.Backend)
	str(config.GPUToolFlag, &cfg.GPU.Tool)
	str(config.ProfilerToolFlag, &cfg.Profiler.Tool)
	str(config.SinkTextfileFlag, &cfg.Sink.Textfile)

	for name, dst := range map[string]*time.Duration{
		config.ExperimentCooldownFlag: &cfg.Experiment.Cooldown,
		config.MonitorBudgetFlag:      &cfg.Monitor.Budget,
		config.MonitorCPUIntervalFlag: &cfg.Monitor.CPUInterval,
		config.MonitorCadenceFlag:     &cfg.Monitor.Cadence,
	} {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		*dst = v
	}

	if fs.Lookup(config.ExperimentRepetitionsFlag) != nil && fs.Changed(config.ExperimentRepetitionsFlag) {
		cfg.Experiment.Repetitions, _ = fs.GetInt(config.ExperimentRepetitionsFlag)
	}
	if fs.Changed(config.RaplEnabledFlag) {
		v, _ := fs.GetBool(config.RaplEnabledFlag)
		cfg.Rapl.Enabled = ptr.To(v)
	}
	if fs.Lookup(factorFlag) != nil && fs.Changed(factorFlag) {
		raw, _ := fs.GetStringArray(factorFlag)
		factors, err := parseFactors(raw)
		if err != nil {
			errs = append(errs, err.Error())
		}
		cfg.Experiment.Factors = factors
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid flags: %s", strings.Join(errs, ", "))
	}
	return cfg, cfg.Validate()
}

// parseFactors parses name=level1,level2 definitions.
func parseFactors(raw []string) ([]config.Factor, error) {
	factors := make([]config.Factor, 0, len(raw))
	for _, r := range raw {
		name, levels, ok := strings.Cut(r, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.TrimSpace(levels) == "" {
			return nil, fmt.Errorf("invalid factor %q, want name=level1,level2", r)
		}
		f := config.Factor{Name: name}
		for _, l := range strings.Split(levels, ",") {
			f.Levels = append(f.Levels, strings.TrimSpace(l))
		}
		factors = append(factors, f)
	}
	return factors, nil
}

// setup loads the configuration and installs the default logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}
