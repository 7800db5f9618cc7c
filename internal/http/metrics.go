package http

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// counterSet is one labelled metric family. Each label tuple keeps an observation
// count, a duration sum and an error count; only the metric names that are set are
// exposed.
type counterSet struct {
	total    string
	duration string
	failures string
	help     string
	labels   []string
	rows     map[string]*counterRow
}

type counterRow struct {
	values  []string
	count   uint64
	errors  uint64
	seconds float64
}

func newCounterSet(total, duration, failures, help string, labels ...string) *counterSet {
	return &counterSet{
		total:    total,
		duration: duration,
		failures: failures,
		help:     help,
		labels:   labels,
		rows:     map[string]*counterRow{},
	}
}

var (
	startedAt = time.Now()
	inFlight  atomic.Int64
	metricsMu sync.Mutex

	httpRequests = newCounterSet("fraudviz_http_requests_total", "fraudviz_http_request_duration_seconds", "",
		"HTTP requests handled", "method", "path", "status")
	storeCalls = newCounterSet("", "fraudviz_db_query_duration_seconds", "fraudviz_db_query_errors_total",
		"Snapshot store calls", "connector", "operation")
	backendCalls = newCounterSet("", "fraudviz_external_probe_duration_seconds", "fraudviz_external_probe_errors_total",
		"Scoring backend calls", "target", "operation")
	chartRenders = newCounterSet("fraudviz_chart_renders_total", "", "", "Chart renders", "chart", "format")
	hydrations   = newCounterSet("fraudviz_hydrations_total", "fraudviz_hydration_duration_seconds", "",
		"View state loads", "origin")

	allSets = []*counterSet{httpRequests, storeCalls, backendCalls, chartRenders, hydrations}
)

// observe must be called with metricsMu held.
func (c *counterSet) observe(seconds float64, err error, values ...string) {
	key := strings.Join(values, "\x00")
	row, ok := c.rows[key]
	if !ok {
		row = &counterRow{values: values}
		c.rows[key] = row
	}
	row.count++
	row.seconds += seconds
	if err != nil {
		row.errors++
	}
}

// sorted copies the rows ordered by label values. metricsMu must be held.
func (c *counterSet) sorted() []counterRow {
	keys := make([]string, 0, len(c.rows))
	for k := range c.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]counterRow, len(keys))
	for i, k := range keys {
		out[i] = *c.rows[k]
	}
	return out
}

func (c *counterSet) labelString(values []string) string {
	parts := make([]string, len(c.labels))
	for i, name := range c.labels {
		parts[i] = name + `="` + escapeLabel(values[i]) + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (c *counterSet) write(w io.Writer, rows []counterRow) {
	family := func(name, kind, help string, value func(counterRow) string) {
		if name == "" {
			return
		}
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
		for _, row := range rows {
			fmt.Fprintf(w, "%s%s %s\n", name, c.labelString(row.values), value(row))
		}
	}
	count := func(r counterRow) string { return strconv.FormatUint(r.count, 10) }
	family(c.total, "counter", c.help+".", count)
	if c.duration != "" {
		family(c.duration+"_sum", "counter", c.help+", total seconds.", func(r counterRow) string {
			return strconv.FormatFloat(r.seconds, 'f', 9, 64)
		})
		family(c.duration+"_count", "counter", c.help+", timed observations.", count)
	}
	family(c.failures, "counter", c.help+" that failed.", func(r counterRow) string {
		return strconv.FormatUint(r.errors, 10)
	})
}

func gauge(w io.Writer, name, help string, value any) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, value)
}

func metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		metricsMu.Lock()
		rows := make([][]counterRow, len(allSets))
		for i, set := range allSets {
			rows[i] = set.sorted()
		}
		metricsMu.Unlock()

		for i, set := range allSets {
			set.write(w, rows[i])
		}

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		gauge(w, "fraudviz_http_in_flight_requests", "Requests being served.", inFlight.Load())
		gauge(w, "fraudviz_uptime_seconds", "Seconds since the process started.", int64(time.Since(startedAt).Seconds()))
		gauge(w, "fraudviz_runtime_goroutines", "Live goroutines.", runtime.NumGoroutine())
		gauge(w, "fraudviz_runtime_memory_alloc_bytes", "Bytes of allocated heap objects.", ms.Alloc)
		fmt.Fprintf(w, "# HELP fraudviz_runtime_gc_total Completed GC cycles.\n# TYPE fraudviz_runtime_gc_total counter\nfraudviz_runtime_gc_total %d\n", ms.NumGC)
	})
}

// slowRow is one line of the slowest-operations tables in the app summary.
type slowRow struct {
	Labels map[string]string `json:"labels"`
	Count  uint64            `json:"count"`
	Errors uint64            `json:"errors"`
	AvgMS  float64           `json:"avg_ms"`
}

func slowest(set *counterSet, rows []counterRow, limit int) []slowRow {
	out := make([]slowRow, 0, len(rows))
	for _, row := range rows {
		labels := make(map[string]string, len(set.labels))
		for i, name := range set.labels {
			labels[name] = row.values[i]
		}
		var avg float64
		if row.count > 0 {
			avg = row.seconds / float64(row.count) * 1000
		}
		out = append(out, slowRow{Labels: labels, Count: row.count, Errors: row.errors, AvgMS: avg})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgMS > out[j].AvgMS })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tally sums observation counts by the label at index.
func tally(rows []counterRow, index int) map[string]uint64 {
	out := map[string]uint64{}
	for _, row := range rows {
		out[row.values[index]] += row.count
	}
	return out
}

func failures(rows []counterRow) uint64 {
	var n uint64
	for _, row := range rows {
		n += row.errors
	}
	return n
}

func appMetricsSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		metricsMu.Lock()
		httpRows := httpRequests.sorted()
		storeRows := storeCalls.sorted()
		backendRows := backendCalls.sorted()
		renderRows := chartRenders.sorted()
		hydrationRows := hydrations.sorted()
		metricsMu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{
				"generated_at": time.Now().UTC(),
			},
			"data": map[string]any{
				"top_http_slowest_avg_ms": slowest(httpRequests, httpRows, 5),
				"top_db_slowest_avg_ms":   slowest(storeCalls, storeRows, 5),
				"renders_by_format":       tally(renderRows, 1),
				"hydrations_by_origin":    tally(hydrationRows, 0),
				"errors": map[string]any{
					"db_query_total":       failures(storeRows),
					"external_probe_total": failures(backendRows),
				},
			},
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inFlight.Add(1)
		defer inFlight.Add(-1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		recordHTTPMetric(r.Method, normalizeMetricPath(r), rec.status, time.Since(start).Seconds())
	})
}

// normalizeMetricPath labels requests by their chi route pattern so path parameters do
// not explode series cardinality.
func normalizeMetricPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func recordHTTPMetric(method, path string, status int, durationSeconds float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	httpRequests.observe(durationSeconds, nil, method, path, strconv.Itoa(status))
}

func recordDBQuery(connector, operation string, durationSeconds float64, err error) {
	if connector == "" || operation == "" {
		return
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	storeCalls.observe(durationSeconds, err, connector, operation)
}

func recordExternalProbe(target, operation string, durationSeconds float64, err error) {
	if target == "" || operation == "" {
		return
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	backendCalls.observe(durationSeconds, err, target, operation)
}

func recordRender(chart, format string) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	chartRenders.observe(0, nil, chart, format)
}

func recordHydration(origin string, durationSeconds float64) {
	origin = strings.TrimSpace(strings.ToLower(origin))
	if origin == "" {
		origin = "unknown"
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	hydrations.observe(durationSeconds, nil, origin)
}

func escapeLabel(v string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`).Replace(v)
}
