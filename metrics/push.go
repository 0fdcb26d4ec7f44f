package metrics

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// PushRegistry implements Registry for push-based metrics collection.
//
// Values are buffered in memory, one sample per series, and sent to a
// VictoriaMetrics/Prometheus remote write endpoint by Flush. The CLI flushes
// once after a run.
type PushRegistry struct {
	writer   *remoteWriter
	job      string
	instance string
	prefix   string

	mu     sync.Mutex
	series map[string]*pushSeries // series key -> latest value
	names  map[string]bool        // registered metric names
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:8428").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed with this value
	// followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &PushRegistry{
		writer: &remoteWriter{
			url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
			httpClient: &http.Client{Timeout: timeout},
		},
		job:      cfg.Job,
		instance: cfg.Instance,
		prefix:   cfg.Prefix,
		series:   make(map[string]*pushSeries),
		names:    make(map[string]bool),
	}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	if err := r.register(opts.Name); err != nil {
		return nil, err
	}
	return &pushGauge{registry: r, name: opts.Name}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	if err := r.register(opts.Name); err != nil {
		return nil, err
	}
	return &pushGaugeVec{registry: r, name: opts.Name, labels: labels}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	if err := r.register(opts.Name); err != nil {
		return nil, err
	}
	return &pushCounter{registry: r, name: opts.Name}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	if err := r.register(opts.Name); err != nil {
		return nil, err
	}
	return &pushCounterVec{registry: r, name: opts.Name, labels: labels}, nil
}

// Len returns the number of buffered series.
func (r *PushRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}

// Flush sends every buffered series in a single remote write request. The
// buffer is kept, so counters continue to accumulate across flushes.
func (r *PushRegistry) Flush(ctx context.Context) error {
	now := time.Now().UnixMilli()

	r.mu.Lock()
	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	timeseries := make([]prompb.TimeSeries, 0, len(keys))
	for _, k := range keys {
		timeseries = append(timeseries, r.toTimeSeries(r.series[k], now))
	}
	r.mu.Unlock()

	if len(timeseries) == 0 {
		return nil
	}
	if err := r.writer.write(ctx, timeseries); err != nil {
		return fmt.Errorf("pushing %d series: %w", len(timeseries), err)
	}
	return nil
}

func (r *PushRegistry) register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[name] {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.names[name] = true
	return nil
}

// pushSeries is the latest value of one name+labels combination.
type pushSeries struct {
	name   string
	labels prometheus.Labels
	value  float64
}

func (r *PushRegistry) update(name string, labels prometheus.Labels, fn func(v float64) float64) {
	key := seriesKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[key]
	if !ok {
		s = &pushSeries{name: name, labels: labels}
		r.series[key] = s
	}
	s.value = fn(s.value)
}

// toTimeSeries converts a series to Prometheus TimeSeries format.
// Labels are sorted by name as remote write requires.
func (r *PushRegistry) toTimeSeries(s *pushSeries, timestamp int64) prompb.TimeSeries {
	metricName := s.name
	if r.prefix != "" {
		metricName = r.prefix + "_" + s.name
	}

	promLabels := make([]prompb.Label, 0, len(s.labels)+3)
	promLabels = append(promLabels, prompb.Label{Name: "__name__", Value: metricName})
	if r.job != "" {
		promLabels = append(promLabels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		promLabels = append(promLabels, prompb.Label{Name: "instance", Value: r.instance})
	}
	for k, v := range s.labels {
		promLabels = append(promLabels, prompb.Label{Name: k, Value: v})
	}
	slices.SortFunc(promLabels, func(a, b prompb.Label) int {
		return strings.Compare(a.Name, b.Name)
	})

	return prompb.TimeSeries{
		Labels:  promLabels,
		Samples: []prompb.Sample{{Value: s.value, Timestamp: timestamp}},
	}
}

// seriesKey identifies a series independent of label map order.
func seriesKey(name string, labels prometheus.Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("\xff")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

// pushGauge implements Gauge for push mode.
type pushGauge struct {
	registry *PushRegistry
	name     string
	labels   prometheus.Labels
}

func (g *pushGauge) Set(v float64) {
	g.registry.update(g.name, g.labels, func(float64) float64 { return v })
}

// pushGaugeVec implements GaugeVec for push mode.
type pushGaugeVec struct {
	registry *PushRegistry
	name     string
	labels   []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{registry: g.registry, name: g.name, labels: copyLabels(labels)}
}

// pushCounter implements Counter for push mode.
type pushCounter struct {
	registry *PushRegistry
	name     string
	labels   prometheus.Labels
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

// Add panics on a negative value, like prometheus.Counter.
func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.registry.update(c.name, c.labels, func(cur float64) float64 { return cur + v })
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	registry *PushRegistry
	name     string
	labels   []string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{registry: c.registry, name: c.name, labels: copyLabels(labels)}
}

func copyLabels(labels prometheus.Labels) prometheus.Labels {
	out := make(prometheus.Labels, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
