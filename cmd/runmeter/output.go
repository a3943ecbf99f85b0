//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/runmeter/internal/config"
	"github.com/ja7ad/runmeter/pkg/experiment"
	"github.com/ja7ad/runmeter/pkg/system/host"
	"github.com/ja7ad/runmeter/pkg/types"
)

const _console = `Runmeter - Workload Energy Measurement Tool

* GitHub: https://github.com/ja7ad/runmeter

       Host: %s
       Kernel: %s
       CPUs: %d
       Mem: %s

Experiment %q (%s mode) as of %s:

`

func printBanner(w io.Writer, cfg *config.Config) {
	hostname, kernel := "unknown", "unknown"
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		hostname = unix.ByteSliceToString(uts.Nodename[:])
		kernel = unix.ByteSliceToString(uts.Release[:])
	}
	mem := "unknown"
	if total, err := host.NewSampler().TotalMemory(context.Background()); err == nil {
		mem = types.Bytes(total).Humanized()
	}
	fmt.Fprintf(w, _console, hostname, kernel, runtime.NumCPU(), mem,
		cfg.Experiment.Name, cfg.Monitor.Mode, time.Now().Format("2006-01-02 15:04:05"))
}

// printResults writes one row per completed run, factors first.
func printResults(w io.Writer, results []experiment.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no completed runs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"RUN"}
	for _, l := range results[0].Run.Levels {
		header = append(header, strings.ToUpper(l.Factor))
	}
	for _, name := range results[0].Metrics.Names() {
		header = append(header, strings.ToUpper(name))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	sep := make([]string, len(header))
	for i, h := range header {
		sep[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))

	for _, r := range results {
		row := []string{r.Run.Name()}
		for _, l := range r.Run.Levels {
			row = append(row, l.Value)
		}
		row = append(row, r.Metrics.Strings()...)
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, strconv.Itoa(len(results))+" run(s) completed")
}
