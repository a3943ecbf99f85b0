package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"

	"github.com/ja7ad/runmeter/internal/logger"
)

const (
	ModeResource = "resource"
	ModeProfiled = "profiled"

	GPUBackendSMI  = "smi"
	GPUBackendNVML = "nvml"
	GPUBackendNone = "none"
)

type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// Factor is one experiment variable and the levels it takes.
	Factor struct {
		Name   string   `yaml:"name"`
		Levels []string `yaml:"levels"`
	}

	Experiment struct {
		Name        string        `yaml:"name"`
		Output      string        `yaml:"output"`
		Cooldown    time.Duration `yaml:"cooldown"`
		Repetitions int           `yaml:"repetitions"`
		Factors     []Factor      `yaml:"factors,omitempty"`
	}

	Workload struct {
		Command []string `yaml:"command,omitempty"`
		Dir     string   `yaml:"dir"`
		// GenerateConfig writes a fresh range file into the run directory
		// before each run.
		GenerateConfig *bool  `yaml:"generateConfig"`
		ConfigFile     string `yaml:"configFile"`
		// CaptureOutput stores the workload's stdout/stderr in the run
		// directory.
		CaptureOutput *bool `yaml:"captureOutput"`
	}

	Monitor struct {
		Mode        string        `yaml:"mode"`
		Budget      time.Duration `yaml:"budget"`
		CPUInterval time.Duration `yaml:"cpuInterval"`
		Cadence     time.Duration `yaml:"cadence"`
		// ProcessTree samples the workload's process tree instead of the
		// whole host in resource mode.
		ProcessTree *bool `yaml:"processTree"`
	}

	Rapl struct {
		Enabled *bool  `yaml:"enabled"`
		SysFS   string `yaml:"sysfs"`
		// Discover maps zones by name instead of the fixed intel-rapl:0/1
		// layout.
		Discover    *bool  `yaml:"discover"`
		PackageZone string `yaml:"packageZone"`
		DRAMZone    string `yaml:"dramZone"`
	}

	GPU struct {
		Backend string `yaml:"backend"`
		Tool    string `yaml:"tool"`
	}

	Profiler struct {
		Tool   string        `yaml:"tool"`
		Output string        `yaml:"output"`
		Warmup time.Duration `yaml:"warmup"`
		Budget time.Duration `yaml:"budget"`
		Grace  time.Duration `yaml:"grace"`
	}

	Sink struct {
		CSV      string `yaml:"csv"`
		Textfile string `yaml:"textfile"`
	}

	Config struct {
		Log        Log        `yaml:"log"`
		Experiment Experiment `yaml:"experiment"`
		Workload   Workload   `yaml:"workload"`
		Monitor    Monitor    `yaml:"monitor"`
		Rapl       Rapl       `yaml:"rapl"`
		GPU        GPU        `yaml:"gpu"`
		Profiler   Profiler   `yaml:"profiler"`
		Sink       Sink       `yaml:"sink"`
	}
)

// Flag names shared with the CLI.
const (
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	ExperimentNameFlag        = "experiment.name"
	ExperimentOutputFlag      = "experiment.output"
	ExperimentCooldownFlag    = "experiment.cooldown"
	ExperimentRepetitionsFlag = "experiment.repetitions"

	WorkloadDirFlag = "workload.dir"

	MonitorModeFlag        = "monitor.mode"
	MonitorBudgetFlag      = "monitor.budget"
	MonitorCPUIntervalFlag = "monitor.cpu-interval"
	MonitorCadenceFlag     = "monitor.cadence"

	RaplEnabledFlag = "rapl.enabled"
	RaplSysFSFlag   = "rapl.sysfs"

	GPUBackendFlag = "gpu.backend"
	GPUToolFlag    = "gpu.tool"

	ProfilerToolFlag = "profiler.tool"

	SinkTextfileFlag = "sink.textfile"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Experiment: Experiment{
			Name:        "new_runner_experiment",
			Output:      "experiments",
			Cooldown:    time.Second,
			Repetitions: 1,
		},
		Workload: Workload{
			GenerateConfig: ptr.To(false),
			ConfigFile:     "config.json",
			CaptureOutput:  ptr.To(true),
		},
		Monitor: Monitor{
			Mode:        ModeResource,
			Budget:      10 * time.Second,
			CPUInterval: time.Second,
			ProcessTree: ptr.To(false),
		},
		Rapl: Rapl{
			Enabled:     ptr.To(true),
			SysFS:       "/sys",
			Discover:    ptr.To(false),
			PackageZone: "intel-rapl:0",
			DRAMZone:    "intel-rapl:1",
		},
		GPU: GPU{
			Backend: GPUBackendSMI,
			Tool:    "nvidia-smi",
		},
		Profiler: Profiler{
			Tool:   "powerjoular",
			Output: "powerjoular.csv",
			Warmup: time.Second,
			Budget: 20 * time.Second,
			Grace:  5 * time.Second,
		},
		Sink: Sink{
			CSV: "run_table.csv",
		},
	}
}

// Load reads YAML from r on top of the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile loads the configuration at path.
func FromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (c *Config) sanitize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Experiment.Name = strings.TrimSpace(c.Experiment.Name)
	c.Experiment.Output = strings.TrimSpace(c.Experiment.Output)
	for i := range c.Experiment.Factors {
		f := &c.Experiment.Factors[i]
		f.Name = strings.TrimSpace(f.Name)
		for j := range f.Levels {
			f.Levels[j] = strings.TrimSpace(f.Levels[j])
		}
	}
	c.Monitor.Mode = strings.ToLower(strings.TrimSpace(c.Monitor.Mode))
	c.Rapl.SysFS = strings.TrimSpace(c.Rapl.SysFS)
	c.GPU.Backend = strings.ToLower(strings.TrimSpace(c.GPU.Backend))
	c.GPU.Tool = strings.TrimSpace(c.GPU.Tool)
	c.Profiler.Tool = strings.TrimSpace(c.Profiler.Tool)
	c.Sink.CSV = strings.TrimSpace(c.Sink.CSV)
	c.Sink.Textfile = strings.TrimSpace(c.Sink.Textfile)
}

// Validate checks the configuration. It does not require a workload
// command, so that one-shot sampling can share it.
func (c *Config) Validate() error {
	var errs []string
	{ // log
		if !slices.Contains(logger.Levels, c.Log.Level) {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
		if !slices.Contains(logger.Formats, c.Log.Format) {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // experiment
		if c.Experiment.Name == "" {
			errs = append(errs, "experiment name cannot be empty")
		}
		if c.Experiment.Output == "" {
			errs = append(errs, "experiment output cannot be empty")
		}
		if c.Experiment.Cooldown < 0 {
			errs = append(errs, fmt.Sprintf("invalid cooldown: %s can't be negative", c.Experiment.Cooldown))
		}
		if c.Experiment.Repetitions < 1 {
			errs = append(errs, fmt.Sprintf("invalid repetitions: %d must be at least 1", c.Experiment.Repetitions))
		}
		seen := map[string]bool{}
		for _, f := range c.Experiment.Factors {
			if f.Name == "" {
				errs = append(errs, "factor name cannot be empty")
				continue
			}
			if seen[f.Name] {
				errs = append(errs, fmt.Sprintf("duplicate factor: %s", f.Name))
			}
			seen[f.Name] = true
			if len(f.Levels) == 0 {
				errs = append(errs, fmt.Sprintf("factor %s has no levels", f.Name))
			}
		}
	}
	{ // monitor
		if c.Monitor.Mode != ModeResource && c.Monitor.Mode != ModeProfiled {
			errs = append(errs, fmt.Sprintf("invalid monitor mode: %s", c.Monitor.Mode))
		}
		if c.Monitor.Budget <= 0 {
			errs = append(errs, fmt.Sprintf("invalid monitor budget: %s must be positive", c.Monitor.Budget))
		}
		if c.Monitor.CPUInterval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid cpu interval: %s must be positive", c.Monitor.CPUInterval))
		}
		if c.Monitor.Cadence < 0 {
			errs = append(errs, fmt.Sprintf("invalid cadence: %s can't be negative", c.Monitor.Cadence))
		}
	}
	{ // rapl
		if ptr.Deref(c.Rapl.Enabled, false) && c.Rapl.SysFS == "" {
			errs = append(errs, "rapl sysfs path cannot be empty")
		}
	}
	{ // gpu
		switch c.GPU.Backend {
		case GPUBackendSMI:
			if c.GPU.Tool == "" {
				errs = append(errs, "gpu tool cannot be empty for the smi backend")
			}
		case GPUBackendNVML, GPUBackendNone:
		default:
			errs = append(errs, fmt.Sprintf("invalid gpu backend: %s", c.GPU.Backend))
		}
	}
	if c.Monitor.Mode == ModeProfiled { // profiler
		if c.Profiler.Tool == "" {
			errs = append(errs, "profiler tool cannot be empty")
		}
		if c.Profiler.Output == "" {
			errs = append(errs, "profiler output cannot be empty")
		}
		if c.Profiler.Budget <= 0 {
			errs = append(errs, fmt.Sprintf("invalid profiler budget: %s must be positive", c.Profiler.Budget))
		}
		if c.Profiler.Warmup < 0 || c.Profiler.Grace < 0 {
			errs = append(errs, "profiler warmup and grace can't be negative")
		}
	}
	if c.Sink.CSV == "" {
		errs = append(errs, "sink csv name cannot be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}
	return nil
}

// ValidateRun additionally requires what an experiment run needs.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Workload.Command) == 0 || strings.TrimSpace(c.Workload.Command[0]) == "" {
		return fmt.Errorf("invalid configuration: workload command cannot be empty")
	}
	return nil
}

func (c *Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(b)
}
