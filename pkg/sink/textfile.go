package sink

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ja7ad/runmeter/pkg/consumption"
)

const namespace = "runmeter"

var invalidLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// LabelName turns a factor name into a valid Prometheus label name.
func LabelName(s string) string {
	s = invalidLabelChars.ReplaceAllString(s, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return strings.ToLower(s)
}

// TextfileExporter exposes run metrics as gauges in a node-exporter textfile.
// Every Export rewrites the file with all runs seen so far.
type TextfileExporter struct {
	path     string
	labels   []string
	registry *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec
}

// NewTextfileExporter writes to path. factors are the factor names that
// become labels next to run_id.
func NewTextfileExporter(path string, factors []string) (*TextfileExporter, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	labels := []string{"run_id"}
	for _, f := range factors {
		labels = append(labels, LabelName(f))
	}
	sort.Strings(labels[1:])
	return &TextfileExporter{
		path:     path,
		labels:   labels,
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}, nil
}

func (e *TextfileExporter) Registry() *prometheus.Registry { return e.registry }

func (e *TextfileExporter) gauge(metric string) (*prometheus.GaugeVec, error) {
	if g, ok := e.gauges[metric]; ok {
		return g, nil
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      LabelName(metric),
		Help:      fmt.Sprintf("Per-run %s reported by runmeter.", metric),
	}, e.labels)
	if err := e.registry.Register(g); err != nil {
		return nil, fmt.Errorf("sink: register %s: %w", metric, err)
	}
	e.gauges[metric] = g
	return g, nil
}

// Export records metrics for runID and rewrites the textfile. factors maps
// factor names to their levels for this run.
func (e *TextfileExporter) Export(runID string, factors map[string]string, metrics consumption.RunMetrics) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lv := prometheus.Labels{"run_id": runID}
	for _, l := range e.labels[1:] {
		lv[l] = ""
	}
	for k, v := range factors {
		name := LabelName(k)
		if _, ok := lv[name]; !ok {
			return fmt.Errorf("sink: unknown factor %q", k)
		}
		lv[name] = v
	}

	for _, name := range metrics.Names() {
		v, _ := metrics.Get(name)
		g, err := e.gauge(name)
		if err != nil {
			return err
		}
		g.With(lv).Set(v)
	}
	if err := prometheus.WriteToTextfile(e.path, e.registry); err != nil {
		return fmt.Errorf("sink: write textfile %s: %w", e.path, err)
	}
	return nil
}
