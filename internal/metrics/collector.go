// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for the bot. It renders the text exposition format itself.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry()

// Registry holds named counters, gauges and histograms.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

type series struct {
	name   string
	help   string
	labels string
}

func (s series) key() string { return s.name + "{" + s.labels + "}" }

// Counter is a monotonically increasing counter.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values over fixed buckets.
type Histogram struct {
	series
	mu     sync.Mutex
	count  int64
	sum    float64
	bounds []float64
	counts []int64 // cumulative, parallel to bounds
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns or creates a counter.
func (r *Registry) Counter(name, help, labels string) *Counter {
	s := series{name: name, help: help, labels: labels}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[s.key()]; ok {
		return c
	}
	c := &Counter{series: s}
	r.counters[s.key()] = c
	return c
}

// Gauge returns or creates a gauge.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	s := series{name: name, help: help, labels: labels}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[s.key()]; ok {
		return g
	}
	g := &Gauge{series: s}
	r.gauges[s.key()] = g
	return g
}

// Histogram returns or creates a histogram with the given upper bounds.
func (r *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	s := series{name: name, help: help, labels: labels}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[s.key()]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{series: s, bounds: bounds, counts: make([]int64, len(bounds))}
	r.histograms[s.key()] = h
	return h
}

// WriteTo renders every series in Prometheus text format, sorted by name.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP plantbot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE plantbot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "plantbot_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	r.mu.RLock()
	defer r.mu.RUnlock()

	helpWritten := make(map[string]bool)
	header := func(s series, kind string) {
		if helpWritten[s.name] {
			return
		}
		helpWritten[s.name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, kind)
	}

	for _, k := range sortedKeys(r.counters) {
		c := r.counters[k]
		header(c.series, "counter")
		fmt.Fprintf(&sb, "%s %d\n", sample(c.name, c.labels, ""), c.Value())
	}
	for _, k := range sortedKeys(r.gauges) {
		g := r.gauges[k]
		header(g.series, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", sample(g.name, g.labels, ""), g.Value())
	}
	for _, k := range sortedKeys(r.histograms) {
		h := r.histograms[k]
		header(h.series, "histogram")
		h.mu.Lock()
		for i, le := range h.bounds {
			fmt.Fprintf(&sb, "%s %d\n", sample(h.name+"_bucket", h.labels, formatBound(le)), h.counts[i])
		}
		fmt.Fprintf(&sb, "%s %d\n", sample(h.name+"_bucket", h.labels, "+Inf"), h.count)
		fmt.Fprintf(&sb, "%s %d\n", sample(h.name+"_count", h.labels, ""), h.count)
		fmt.Fprintf(&sb, "%s %f\n", sample(h.name+"_sum", h.labels, ""), h.sum)
		h.mu.Unlock()
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler serves the registry at a scrape endpoint.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	}
}

func sample(name, labels, le string) string {
	parts := make([]string, 0, 2)
	if labels != "" {
		parts = append(parts, labels)
	}
	if le != "" {
		parts = append(parts, `le="`+le+`"`)
	}
	if len(parts) == 0 {
		return name
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func formatBound(le float64) string {
	if math.IsInf(le, 1) {
		return "+Inf"
	}
	return fmt.Sprintf("%g", le)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Pre-defined metrics used across the application ---

var (
	MessagesTotal        = Collector.Counter("plantbot_messages_total", "Total inbound messages dispatched", "")
	CommandsTotal        = Collector.Counter("plantbot_commands_total", "Total /start and /help commands answered", "")
	PhotosTotal          = Collector.Counter("plantbot_photos_total", "Total photo messages accepted for analysis", "")
	IdentificationsTotal = Collector.Counter("plantbot_identifications_total", "Total inference calls made", "")
	RejectionsTotal      = Collector.Counter("plantbot_rejections_total", "Total answers where no plant was recognized", "")
	FailuresTotal        = Collector.Counter("plantbot_failures_total", "Total photo requests answered with the generic apology", "")
	InflightRequests     = Collector.Gauge("plantbot_inflight_requests", "Photo requests currently being processed", "")

	InferenceLatency = Collector.Histogram("plantbot_inference_latency_seconds", "Inference call latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
	DownloadBytes = Collector.Histogram("plantbot_download_bytes", "Size of downloaded photos in bytes", "",
		[]float64{16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20, 16 << 20})
)
