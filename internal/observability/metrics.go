package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

// Metrics is a small Prometheus text-format registry. Every method is safe on a nil receiver,
// so callers never check whether metrics are enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	tasks          *CounterVec
	chunks         *CounterVec
	framesDropped  *Counter
	sideEffects    *CounterVec
	sideEffectTime *HistogramVec
	resourceWrites *CounterVec
	busDrops       *Counter

	redisUp   *Gauge
	redisPing *Gauge
}

func Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED"))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// NewMetrics returns nil when METRICS_ENABLED is off.
func NewMetrics() *Metrics {
	if !Enabled() {
		return nil
	}
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("ts_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("ts_api_request_duration_seconds", "API request latency in seconds.",
			[]string{"method", "route"}, []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}),
		apiInflight: NewGauge("ts_api_inflight_requests", "In-flight API requests."),

		tasks:         NewCounterVec("ts_tasks_total", "Tasks by lifecycle outcome.", []string{"outcome"}),
		chunks:        NewCounterVec("ts_stream_chunks_total", "Decoded stream chunks by type.", []string{"type"}),
		framesDropped: NewCounter("ts_stream_frames_dropped_total", "Frames dropped because they failed to decode."),
		sideEffects:   NewCounterVec("ts_side_effects_total", "Post-completion side effects by effect/status.", []string{"effect", "status"}),
		sideEffectTime: NewHistogramVec("ts_side_effect_duration_seconds", "Side effect latency in seconds.",
			[]string{"effect"}, []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}),
		resourceWrites: NewCounterVec("ts_resource_writes_total", "Resource rows written by mode/status.", []string{"mode", "status"}),
		busDrops:       NewCounter("ts_bus_events_dropped_total", "Events dropped for slow subscribers."),

		redisUp:   NewGauge("ts_redis_up", "1 when the event relay redis answers PING."),
		redisPing: NewGauge("ts_redis_ping_seconds", "Last redis PING latency in seconds."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.tasks, m.chunks, m.framesDropped,
		m.sideEffects, m.sideEffectTime, m.resourceWrites, m.busDrops,
		m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) IncTask(outcome string) {
	if m == nil {
		return
	}
	m.tasks.Inc(outcome)
}

func (m *Metrics) IncChunk(chunkType string) {
	if m == nil {
		return
	}
	m.chunks.Inc(chunkType)
}

func (m *Metrics) IncFrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

func (m *Metrics) ObserveSideEffect(effect, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.sideEffects.Inc(effect, status)
	m.sideEffectTime.Observe(dur.Seconds(), effect)
}

func (m *Metrics) AddResourceWrites(mode, status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.resourceWrites.Add(float64(n), mode, status)
}

func (m *Metrics) IncBusDrop() {
	if m == nil {
		return
	}
	m.busDrops.Inc()
}

// StartRedisCollector pings the relay redis every interval until ctx ends.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string, interval time.Duration) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer rdb.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

type collector interface {
	WritePrometheus(w io.Writer) error
}

// series is a set of label-keyed float values shared by counters and gauges.
type series struct {
	name   string
	help   string
	kind   string
	labels []string

	mu     sync.RWMutex
	values map[string]float64
}

func (s *series) add(v float64, values []string) {
	key := labelString(s.labels, values)
	s.mu.Lock()
	s.values[key] += v
	s.mu.Unlock()
}

func (s *series) set(v float64, values []string) {
	key := labelString(s.labels, values)
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

func (s *series) get(values []string) float64 {
	key := labelString(s.labels, values)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *series) WritePrometheus(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, s.kind); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range sortedKeys(s.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", s.name, k, s.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type CounterVec struct{ s *series }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{s: &series{name: name, help: help, kind: "counter", labels: labels, values: map[string]float64{}}}
}

func (c *CounterVec) Inc(values ...string) { c.s.add(1, values) }
func (c *CounterVec) Add(v float64, values ...string) { c.s.add(v, values) }
func (c *CounterVec) Value(values ...string) float64 { return c.s.get(values) }
func (c *CounterVec) WritePrometheus(w io.Writer) error {
	return c.s.WritePrometheus(w)
}

type Counter struct{ s *series }

func NewCounter(name, help string) *Counter {
	return &Counter{s: &series{name: name, help: help, kind: "counter", values: map[string]float64{"": 0}}}
}

func (c *Counter) Inc() { c.s.add(1, nil) }
func (c *Counter) Value() float64 { return c.s.get(nil) }
func (c *Counter) WritePrometheus(w io.Writer) error { return c.s.WritePrometheus(w) }

type Gauge struct{ s *series }

func NewGauge(name, help string) *Gauge {
	return &Gauge{s: &series{name: name, help: help, kind: "gauge", values: map[string]float64{"": 0}}}
}

func (g *Gauge) Set(v float64) { g.s.set(v, nil) }
func (g *Gauge) Add(v float64) { g.s.add(v, nil) }
func (g *Gauge) Value() float64 { return g.s.get(nil) }
func (g *Gauge) WritePrometheus(w io.Writer) error { return g.s.WritePrometheus(w) }

type HistogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.Mutex
	values map[string]*histogram
}

type histogram struct {
	counts []uint64 // len(buckets)+1, last is +Inf
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	return &HistogramVec{name: name, help: help, labels: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	key := labelString(h.labels, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[key]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets)+1)}
		h.values[key] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(h.buckets)]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		hist := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), hist.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n%s_sum%s %g\n%s_count%s %d\n",
			h.name, withLe(k, "+Inf"), hist.counts[len(h.buckets)],
			h.name, k, hist.sum,
			h.name, k, hist.total); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		parts[i] = name + "=\"" + escapeLabel(val) + "\""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string { return labelEscaper.Replace(v) }

func withLe(labels string, le string) string {
	if labels == "" {
		return "{le=\"" + le + "\"}"
	}
	return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
}
