// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector. It outputs text/plain in Prometheus exposition format without
// requiring the prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // name{labels} -> *Counter
	gauges     sync.Map // name{labels} -> *Gauge
	histograms sync.Map // name{labels} -> *Histogram
	startTime  time.Time
}

// NewMetricsCollector creates a new collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of values. Bucket counts are cumulative.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Label renders a single name="value" pair with the value escaped.
func Label(name, value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return name + `="` + r.Replace(value) + `"`
}

// --- Registration helpers ---

// Counter returns or creates a counter with the given name and labels.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	actual, _ := c.counters.LoadOrStore(key, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and labels.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	actual, _ := c.gauges.LoadOrStore(key, &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram. A +Inf bucket is always present.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	if len(bs) == 0 || !math.IsInf(bs[len(bs)-1], 1) {
		bs = append(bs, math.Inf(1))
	}
	hb := make([]histBucket, len(bs))
	for i, b := range bs {
		hb[i] = histBucket{le: b}
	}
	actual, _ := c.histograms.LoadOrStore(key, &Histogram{name: name, help: help, labels: labels, buckets: hb})
	return actual.(*Histogram)
}

// Render writes all metrics in Prometheus text format. Series are sorted so
// output is stable between scrapes.
func (c *MetricsCollector) Render() string {
	var sb strings.Builder
	typed := make(map[string]bool)
	header := func(name, help, kind string) {
		if typed[name] {
			return
		}
		typed[name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	}

	header("secopsmcp_uptime_seconds", "Time since start in seconds", "gauge")
	fmt.Fprintf(&sb, "secopsmcp_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	each(&c.counters, func(m *Counter) {
		header(m.name, m.help, "counter")
		fmt.Fprintf(&sb, "%s %d\n", series(m.name, m.labels), m.Value())
	})
	each(&c.gauges, func(m *Gauge) {
		header(m.name, m.help, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", series(m.name, m.labels), m.Value())
	})
	each(&c.histograms, func(m *Histogram) {
		header(m.name, m.help, "histogram")
		m.writeTo(&sb)
	})
	return sb.String()
}

func each[T any](m *sync.Map, fn func(T)) {
	var keys []string
	m.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := m.Load(k)
		fn(v.(T))
	}
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func (h *Histogram) writeTo(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.buckets {
		le := "+Inf"
		if !math.IsInf(b.le, 1) {
			le = strconv.FormatFloat(b.le, 'g', -1, 64)
		}
		labels := Label("le", le)
		if h.labels != "" {
			labels = h.labels + "," + labels
		}
		fmt.Fprintf(sb, "%s %d\n", series(h.name+"_bucket", labels), b.count)
	}
	fmt.Fprintf(sb, "%s %d\n", series(h.name+"_count", h.labels), h.count)
	fmt.Fprintf(sb, "%s %f\n", series(h.name+"_sum", h.labels), h.sum)
}

// Handler returns an http.HandlerFunc that renders metrics in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}

// --- Pre-defined metrics used across the application ---

var (
	ToolsInFlight = Collector.Gauge("secopsmcp_tool_calls_in_flight", "Tool invocations currently running", "")
	MCPSessions   = Collector.Gauge("secopsmcp_mcp_sessions", "Current MCP client sessions", "")

	latencyBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120}
)

// RecordToolCall counts one finished tool invocation. errorKind is empty on
// success.
func RecordToolCall(toolKind, errorKind string, elapsed time.Duration) {
	Collector.Counter("secopsmcp_tool_invocations_total", "Total tool invocations", Label("tool_kind", toolKind)).Inc()
	if errorKind != "" {
		Collector.Counter("secopsmcp_tool_failures_total", "Failed tool invocations by error kind", Label("kind", errorKind)).Inc()
	}
	Collector.Histogram("secopsmcp_tool_latency_seconds", "Tool invocation latency in seconds",
		Label("tool_kind", toolKind), latencyBuckets).Observe(elapsed.Seconds())
}

// RecordBackendResponse counts one backend HTTP response by status class.
func RecordBackendResponse(status int) {
	class := "transport_error"
	if status > 0 {
		class = fmt.Sprintf("%dxx", status/100)
	}
	Collector.Counter("secopsmcp_backend_responses_total", "Backend HTTP responses by status class", Label("class", class)).Inc()
}
