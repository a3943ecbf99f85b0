//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ja7ad/runmeter/internal/config"
	"github.com/ja7ad/runmeter/pkg/system/gpu"
	"github.com/ja7ad/runmeter/pkg/system/host"
	"github.com/ja7ad/runmeter/pkg/system/rapl"
	"github.com/ja7ad/runmeter/pkg/system/util"
	"github.com/ja7ad/runmeter/pkg/workload"
)

func newSampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Take one host, RAPL and GPU reading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			return sampleOnce(cmd.Context(), cmd.OutOrStdout(), cfg, logger)
		},
	}
}

type reading struct {
	name, value, unit string
}

func sampleOnce(ctx context.Context, w io.Writer, cfg *config.Config, logger *slog.Logger) error {
	var rows []reading

	hs := host.NewSampler()
	if v, err := hs.CPUPercent(ctx, cfg.Monitor.CPUInterval); err == nil {
		rows = append(rows, reading{"cpu utilization", util.FmtFloat(util.Round3(v)), "%"})
	} else {
		logger.Warn("cpu sample failed", "error", err)
	}
	if v, err := hs.MemPercent(ctx); err == nil {
		rows = append(rows, reading{"memory utilization", util.FmtFloat(util.Round3(v)), "%"})
	} else {
		logger.Warn("memory sample failed", "error", err)
	}

	if reader, pkg, dram := newRAPL(cfg, logger); reader != nil {
		for _, d := range []*rapl.Domain{pkg, dram} {
			if d == nil {
				continue
			}
			w, err := reader.SamplePower(ctx, d)
			if err != nil {
				return err
			}
			rows = append(rows, reading{d.Name() + " power", util.FmtFloat(w), "W"})
		}
	}

	q, closer := newGPUQuerier(cfg, logger)
	defer closer()
	if q != nil {
		tel := gpu.NewTelemetry(q, gpu.WithLogger(logger))
		readings := tel.Sample(ctx)
		for _, r := range readings {
			rows = append(rows,
				reading{fmt.Sprintf("gpu%d power", r.Index), util.FmtFloat(r.PowerW), "W"},
				reading{fmt.Sprintf("gpu%d utilization", r.Index), util.FmtFloat(r.Utilization), "%"})
		}
		if len(readings) > 1 {
			power, utilization := gpu.Mean(readings)
			rows = append(rows,
				reading{"gpu mean power", util.FmtFloat(util.Round3(power)), "W"},
				reading{"gpu mean utilization", util.FmtFloat(util.Round3(utilization)), "%"})
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "READING\tVALUE\tUNIT")
	fmt.Fprintln(tw, "-------\t-----\t----")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.name, r.value, r.unit)
	}
	return tw.Flush()
}

func newGenConfigCmd() *cobra.Command {
	var printConfig bool
	cmd := &cobra.Command{
		Use:   "gen-config [path]",
		Short: "Write a random workload range file (default config.json)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			if printConfig {
				_, err := fmt.Fprint(cmd.OutOrStdout(), cfg.String())
				return err
			}
			path := cfg.Workload.ConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			return genConfig(cmd.OutOrStdout(), path)
		},
	}
	cmd.Flags().BoolVar(&printConfig, "print", false, "print the effective runmeter configuration instead")
	return cmd
}

func genConfig(w io.Writer, path string) error {
	wc := workload.Generate(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	if err := wc.Write(path); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s written to %s\n", wc, path)
	return err
}
