// Package sink persists per-run metrics.
package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/ja7ad/runmeter/pkg/consumption"
)

// AppendCSV appends one row of metrics to path. A missing file is created
// with a header row of the metric names in schema order. Concurrent writers
// to the same path are not coordinated.
func AppendCSV(path string, metrics consumption.RunMetrics) error {
	return AppendRecord(path, metrics.Names(), metrics.Strings())
}

// AppendRecord is AppendCSV for an arbitrary header and row, used when run
// metadata columns precede the metrics.
func AppendRecord(path string, header, row []string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(header) != len(row) {
		return fmt.Errorf("sink: %d columns, %d values", len(header), len(row))
	}

	fresh, err := needsHeader(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open %s: %w", path, err)
	}
	if err := writeRecords(f, fresh, header, row); err != nil {
		_ = f.Close()
		return fmt.Errorf("sink: %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sink: close %s: %w", path, err)
	}
	return nil
}

func writeRecords(w io.Writer, withHeader bool, header, row []string) error {
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// needsHeader reports whether path is missing or empty.
func needsHeader(path string) (bool, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("sink: stat %s: %w", path, err)
	}
	return fi.Size() == 0, nil
}
