package gpu

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	DefaultSMITool = "nvidia-smi"

	smiQuery  = "--query-gpu=power.draw,utilization.gpu"
	smiFormat = "--format=csv,nounits,noheader"
)

// SMI queries GPUs through the nvidia-smi command line tool.
type SMI struct {
	tool string
}

// NewSMI returns an SMI querier for tool, which is a name looked up in PATH
// or a path. An empty tool means nvidia-smi.
func NewSMI(tool string) *SMI {
	if tool == "" {
		tool = DefaultSMITool
	}
	return &SMI{tool: tool}
}

func (s *SMI) Name() string { return s.tool }

// Args returns the query arguments.
func (s *SMI) Args() []string { return []string{smiQuery, smiFormat} }

func (s *SMI) Query(ctx context.Context) ([]Reading, error) {
	path, err := exec.LookPath(s.tool)
	if err != nil {
		return nil, &ToolNotFoundError{Tool: s.tool, Err: err}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, s.Args()...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ToolExecutionError{Tool: s.tool, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		}
		return nil, &ToolExecutionError{Tool: s.tool, Err: err}
	}
	return ParseSMI(out)
}

// ParseSMI parses "power,utilization" lines, one per GPU. Empty trailing
// fields are ignored.
func ParseSMI(out []byte) ([]Reading, error) {
	var readings []Reading
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var fields []string
		for _, f := range strings.Split(line, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		if len(fields) != 2 {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("want 2 fields, got %d", len(fields))}
		}
		power, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		util, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		readings = append(readings, Reading{Index: len(readings), PowerW: power, Utilization: util})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}
