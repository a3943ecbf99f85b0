package consumption

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ja7ad/runmeter/pkg/system/util"
)

// ErrUnknownMetric is returned when a value is set for a metric that the
// schema does not declare.
var ErrUnknownMetric = errors.New("consumption: unknown metric")

// ValueType is the declared type of a metric. It only matters for metrics
// whose series stayed empty: Integer metrics report 0, Float metrics 0.0.
type ValueType int

const (
	Integer ValueType = iota
	Float
)

// Metric names of the in-process resource monitor.
const (
	AvgCPUUtilization = "avg_cpu_utilization"
	AvgMemUtilization = "avg_mem_utilization"
	AvgCPUPower       = "avg_cpu_power"
	AvgMemPower       = "avg_mem_power"
	CPUEnergyUsage    = "cpu_energy_usage"
	MemEnergyUsage    = "mem_energy_usage"
	AvgGPUPower       = "avg_gpu_power"
	AvgGPUUtilization = "avg_gpu_utilization"
	GPUEnergyUsage    = "gpu_energy_usage"
)

// Metric names of the external profiler variant.
const (
	TotalCPUEnergy = "total_cpu_energy"
	TotalGPUEnergy = "total_gpu_energy"
)

type Metric struct {
	Name string
	Type ValueType
}

// Schema is the ordered list of metrics a run reports. The order is the CSV
// column order.
type Schema []Metric

// ResourceSchema is reported by the resource monitor: host utilization, RAPL
// package/DRAM power and energy, and GPU telemetry.
var ResourceSchema = Schema{
	{AvgCPUUtilization, Integer},
	{AvgMemUtilization, Integer},
	{AvgCPUPower, Float},
	{AvgMemPower, Float},
	{CPUEnergyUsage, Float},
	{MemEnergyUsage, Float},
	{AvgGPUPower, Integer},
	{AvgGPUUtilization, Integer},
	{GPUEnergyUsage, Float},
}

// ProfiledSchema is reported from an external profiler's CSV output.
var ProfiledSchema = Schema{
	{AvgCPUUtilization, Integer},
	{AvgCPUPower, Integer},
	{TotalCPUEnergy, Integer},
	{AvgGPUUtilization, Integer},
	{AvgGPUPower, Integer},
	{TotalGPUEnergy, Integer},
}

func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, m := range s {
		out[i] = m.Name
	}
	return out
}

func (s Schema) lookup(name string) (Metric, bool) {
	for _, m := range s {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Value is a single reduced metric.
type Value struct {
	v   float64
	set bool
	typ ValueType
}

func (v Value) Float64() float64 { return v.v }

// IsSet reports whether the value came from data rather than the default.
func (v Value) IsSet() bool { return v.set }

func (v Value) String() string {
	if !v.set && v.typ == Integer {
		return "0"
	}
	return util.FmtFloat(v.v)
}

// RunMetrics maps every metric of a schema to a scalar. It is immutable once
// built.
type RunMetrics struct {
	schema Schema
	values map[string]Value
}

func (m RunMetrics) Schema() Schema { return m.schema }

func (m RunMetrics) Names() []string { return m.schema.Names() }

// Get returns the value of name and whether the schema declares it.
func (m RunMetrics) Get(name string) (float64, bool) {
	v, ok := m.values[name]
	return v.v, ok
}

func (m RunMetrics) Value(name string) Value { return m.values[name] }

// Strings returns the formatted values in schema order.
func (m RunMetrics) Strings() []string {
	out := make([]string, len(m.schema))
	for i, metric := range m.schema {
		out[i] = m.values[metric.Name].String()
	}
	return out
}

// Map returns a copy of the values keyed by metric name.
func (m RunMetrics) Map() map[string]float64 {
	out := make(map[string]float64, len(m.values))
	for k, v := range m.values {
		out[k] = v.v
	}
	return out
}

func (m RunMetrics) String() string {
	var sb strings.Builder
	for i, metric := range m.schema {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%s", metric.Name, m.values[metric.Name])
	}
	return sb.String()
}

// Builder collects values for a schema and produces RunMetrics. Metrics
// that are never set take their zero default.
type Builder struct {
	schema Schema
	values map[string]Value
}

func NewBuilder(schema Schema) *Builder {
	values := make(map[string]Value, len(schema))
	for _, m := range schema {
		values[m.Name] = Value{typ: m.Type}
	}
	return &Builder{schema: schema, values: values}
}

func (b *Builder) Set(name string, v float64) error {
	m, ok := b.schema.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	b.values[name] = Value{v: v, set: true, typ: m.Type}
	return nil
}

// SetSeries sets name to the rounded mean of s. An empty series leaves the
// default in place.
func (b *Builder) SetSeries(name string, s *Series) error {
	if s == nil || s.Len() == 0 {
		if _, ok := b.schema.lookup(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMetric, name)
		}
		return nil
	}
	return b.Set(name, s.Mean())
}

func (b *Builder) Build() RunMetrics {
	values := make(map[string]Value, len(b.values))
	for k, v := range b.values {
		values[k] = v
	}
	schema := make(Schema, len(b.schema))
	copy(schema, b.schema)
	return RunMetrics{schema: schema, values: values}
}
