// Package metrics wraps github.com/prometheus/client_golang with a small
// registry that matches the call shape the rest of the pipeline expects:
// name a metric once (optionally with WithLabels), get back a handle, and
// increment/observe it anywhere without threading the registry through.
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBuckets are the default histogram buckets (in seconds), matching
// prometheus.DefBuckets.
var DefaultBuckets = prometheus.DefBuckets

// Registry owns a prometheus.Registry and caches vectors by base metric name
// so repeated calls with different label values reuse the same collector
// instead of erroring on a duplicate registration.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// New creates an empty Registry with its own prometheus collector set.
func New() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Labeled names a metric along with the label key/value pairs that should be
// bound to it, built by WithLabels.
type Labeled struct {
	Name   string
	keys   []string
	values []string
}

// WithLabels attaches label key/value pairs to a metric name, e.g.
// WithLabels("jobs_total", "source", "pdf"). Counter/Gauge/Histogram accept
// either a plain string (zero labels) or a Labeled value.
func WithLabels(name string, kv ...string) Labeled {
	l := Labeled{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		l.keys = append(l.keys, kv[i])
		l.values = append(l.values, kv[i+1])
	}
	return l
}

func asLabeled(v any) Labeled {
	switch t := v.(type) {
	case Labeled:
		return t
	case string:
		return Labeled{Name: t}
	default:
		panic(fmt.Sprintf("metrics: expected string or Labeled, got %T", v))
	}
}

// Counter is a handle to one label-tuple of a CounterVec.
type Counter struct{ c prometheus.Counter }

func (c *Counter) Inc()        { c.c.Add(1) }
func (c *Counter) Add(n int64) { c.c.Add(float64(n)) }

// Gauge is a handle to one label-tuple of a GaugeVec.
type Gauge struct{ g prometheus.Gauge }

func (g *Gauge) Set(v float64) { g.g.Set(v) }
func (g *Gauge) Inc()          { g.g.Inc() }
func (g *Gauge) Dec()          { g.g.Dec() }

// Histogram is a handle to one label-tuple of a HistogramVec.
type Histogram struct{ h prometheus.Observer }

func (h *Histogram) Observe(v float64) { h.h.Observe(v) }

// Counter returns (registering on first use) the counter for name/labels.
func (r *Registry) Counter(nameOrLabeled any, help string) *Counter {
	l := asLabeled(nameOrLabeled)
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.counters[l.Name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: l.Name, Help: help}, l.keys)
		r.reg.MustRegister(vec)
		r.counters[l.Name] = vec
	}
	return &Counter{c: vec.WithLabelValues(l.values...)}
}

// Gauge returns (registering on first use) the gauge for name/labels.
func (r *Registry) Gauge(nameOrLabeled any, help string) *Gauge {
	l := asLabeled(nameOrLabeled)
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.gauges[l.Name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: l.Name, Help: help}, l.keys)
		r.reg.MustRegister(vec)
		r.gauges[l.Name] = vec
	}
	return &Gauge{g: vec.WithLabelValues(l.values...)}
}

// Histogram returns (registering on first use) the histogram for name/labels.
// A nil buckets slice uses DefaultBuckets.
func (r *Registry) Histogram(nameOrLabeled any, help string, buckets []float64) *Histogram {
	l := asLabeled(nameOrLabeled)
	if buckets == nil {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.histograms[l.Name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: l.Name, Help: help, Buckets: buckets}, l.keys)
		r.reg.MustRegister(vec)
		r.histograms[l.Name] = vec
	}
	return &Histogram{h: vec.WithLabelValues(l.values...)}
}

// Handler returns the Prometheus text-exposition HTTP handler for /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server on the given port exposing /metrics.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync starts Serve in a goroutine; failures are printed to stderr via
// fmt since this runs before logging is wired up in most commands.
func (r *Registry) ServeAsync(port int) {
	go func() {
		if err := r.Serve(port); err != nil {
			fmt.Printf("metrics server error on port %d: %v\n", port, err)
		}
	}()
}
