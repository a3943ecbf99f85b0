//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"

	"github.com/ja7ad/runmeter/internal/config"
	"github.com/ja7ad/runmeter/pkg/experiment"
	"github.com/ja7ad/runmeter/pkg/sampling"
	"github.com/ja7ad/runmeter/pkg/sink"
	"github.com/ja7ad/runmeter/pkg/supervisor"
	"github.com/ja7ad/runmeter/pkg/system/gpu"
	"github.com/ja7ad/runmeter/pkg/system/host"
	"github.com/ja7ad/runmeter/pkg/system/rapl"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [-- workload args...]",
		Short: "Run an experiment and measure every run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Workload.Command = args
			}
			if err := cfg.ValidateRun(); err != nil {
				return err
			}
			return runExperiment(cmd.Context(), cfg, logger)
		},
	}
	registerRunFlags(cmd)
	return cmd
}

func runExperiment(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	printBanner(os.Stdout, cfg)
	logger.Debug("effective configuration\n" + cfg.String())

	plugin, closer, err := newPlugin(cfg, logger)
	if err != nil {
		return err
	}
	defer closer()

	opts := []experiment.OptionFn{experiment.WithLogger(logger)}
	if cfg.Sink.Textfile != "" {
		names := make([]string, 0, len(cfg.Experiment.Factors))
		for _, f := range cfg.Experiment.Factors {
			names = append(names, f.Name)
		}
		exp, err := sink.NewTextfileExporter(cfg.Sink.Textfile, names)
		if err != nil {
			return err
		}
		opts = append(opts, experiment.WithTextfile(exp))
	}

	runner := experiment.NewRunner(experimentConfig(cfg), plugin, opts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		g       run.Group
		results []experiment.Result
	)
	g.Add(func() error {
		var err error
		results, err = runner.Run(ctx)
		return err
	}, func(error) {
		cancel()
	})
	g.Add(waitForInterrupt(ctx, logger, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	printResults(os.Stdout, results)
	if err != nil {
		return err
	}
	fmt.Printf("\nresults: %s\n", filepath.Join(runner.Dir(), cfg.Sink.CSV))
	return nil
}

func waitForInterrupt(ctx context.Context, logger *slog.Logger, signals ...os.Signal) (func() error, func(error)) {
	ctxInternal, cancel := context.WithCancel(ctx)
	return func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, signals...)
			defer signal.Stop(c)
			select {
			case sig := <-c:
				logger.Info("interrupted, stopping experiment", "signal", sig.String())
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-ctxInternal.Done():
				return nil
			}
		}, func(error) {
			cancel()
		}
}

func experimentConfig(cfg *config.Config) experiment.Config {
	factors := make([]experiment.Factor, 0, len(cfg.Experiment.Factors))
	for _, f := range cfg.Experiment.Factors {
		factors = append(factors, experiment.Factor{Name: f.Name, Levels: f.Levels})
	}
	return experiment.Config{
		Name:        cfg.Experiment.Name,
		Output:      cfg.Experiment.Output,
		Factors:     factors,
		Repetitions: cfg.Experiment.Repetitions,
		Cooldown:    cfg.Experiment.Cooldown,
		CSVName:     cfg.Sink.CSV,
	}
}

func workloadSpec(cfg *config.Config) experiment.WorkloadSpec {
	spec := experiment.WorkloadSpec{
		Command: supervisor.Command{
			Path: cfg.Workload.Command[0],
			Args: cfg.Workload.Command[1:],
			Dir:  cfg.Workload.Dir,
		},
		CaptureOutput: ptr.Deref(cfg.Workload.CaptureOutput, true),
	}
	if ptr.Deref(cfg.Workload.GenerateConfig, false) {
		spec.ConfigFile = cfg.Workload.ConfigFile
	}
	return spec
}

// newPlugin builds the measurement plugin for the configured mode. The
// returned func releases what the plugin holds open.
func newPlugin(cfg *config.Config, logger *slog.Logger) (experiment.Plugin, func(), error) {
	spec := workloadSpec(cfg)
	switch cfg.Monitor.Mode {
	case config.ModeProfiled:
		return experiment.NewProfiledRun(spec, experiment.ProfiledConfig{
			Profiler:    supervisor.Profiler{Tool: cfg.Profiler.Tool, Output: cfg.Profiler.Output},
			Warmup:      cfg.Profiler.Warmup,
			Budget:      cfg.Profiler.Budget,
			CPUInterval: cfg.Monitor.CPUInterval,
			Grace:       cfg.Profiler.Grace,
		}, experiment.WithProfiledLogger(logger)), func() {}, nil

	case config.ModeResource:
		opts := []experiment.ResourceOptionFn{experiment.WithResourceLogger(logger)}
		if ptr.Deref(cfg.Monitor.ProcessTree, false) {
			opts = append(opts, experiment.WithProcessTree())
		} else {
			opts = append(opts, experiment.WithUsage(host.NewSampler()))
		}
		if reader, pkg, dram := newRAPL(cfg, logger); reader != nil {
			opts = append(opts, experiment.WithRAPL(reader, pkg, dram))
		}
		q, closer := newGPUQuerier(cfg, logger)
		if q != nil {
			opts = append(opts, experiment.WithGPUQuerier(q))
		}
		return experiment.NewResourceMonitor(spec, sampling.Config{
			Budget:      cfg.Monitor.Budget,
			CPUInterval: cfg.Monitor.CPUInterval,
			Cadence:     cfg.Monitor.Cadence,
		}, opts...), closer, nil

	default:
		return nil, nil, fmt.Errorf("unknown monitor mode %q", cfg.Monitor.Mode)
	}
}

// newRAPL returns nil when RAPL is disabled. Discovery falls back to the
// configured zone directories.
func newRAPL(cfg *config.Config, logger *slog.Logger) (*rapl.Reader, *rapl.Domain, *rapl.Domain) {
	if !ptr.Deref(cfg.Rapl.Enabled, true) {
		return nil, nil, nil
	}
	var pkg, dram *rapl.Domain
	if ptr.Deref(cfg.Rapl.Discover, false) {
		var err error
		if pkg, dram, err = rapl.Discover(cfg.Rapl.SysFS); err != nil {
			logger.Warn("RAPL zone discovery failed, using configured zones", "error", err)
		} else {
			for _, d := range []*rapl.Domain{pkg, dram} {
				if d != nil {
					logger.Debug("RAPL zone discovered", "domain", d.Name(), "path", d.Path())
				}
			}
		}
	}
	if pkg == nil && dram == nil {
		base := filepath.Join(cfg.Rapl.SysFS, "class", "powercap")
		pkg = rapl.NewDomain(rapl.Package, filepath.Join(base, cfg.Rapl.PackageZone))
		dram = rapl.NewDomain(rapl.DRAM, filepath.Join(base, cfg.Rapl.DRAMZone))
	}
	return rapl.NewReader(rapl.WithLogger(logger)), pkg, dram
}

// newGPUQuerier returns nil when the backend is disabled or NVML cannot be
// initialised.
func newGPUQuerier(cfg *config.Config, logger *slog.Logger) (gpu.Querier, func()) {
	switch cfg.GPU.Backend {
	case config.GPUBackendSMI:
		return gpu.NewSMI(cfg.GPU.Tool), func() {}
	case config.GPUBackendNVML:
		n, err := gpu.NewNVML()
		if err != nil {
			logger.Warn("skipping GPU monitoring", "backend", cfg.GPU.Backend, "error", err)
			return nil, func() {}
		}
		return n, func() {
			if err := n.Close(); err != nil {
				logger.Warn("NVML shutdown failed", "error", err)
			}
		}
	default:
		return nil, func() {}
	}
}
