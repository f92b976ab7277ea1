// Package monitoring exposes Prometheus metrics and tracing for the property
// map and watches the submission log for failure spikes.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-map/internal/quality"
	"github.com/sells-group/property-map/internal/resilience"
)

// Metrics bundles the Prometheus collectors. It satisfies the cadastre
// Recorder interface; all methods are safe on a nil receiver.
type Metrics struct {
	gatherer prometheus.Gatherer

	ResolveTotal       *prometheus.CounterVec
	ResolveDuration    *prometheus.HistogramVec
	StageFailures      *prometheus.CounterVec
	SubmarketFallbacks *prometheus.CounterVec
	Submissions        *prometheus.CounterVec
	BuildingsByTier    *prometheus.GaugeVec
	BreakerState       *prometheus.GaugeVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error

	if m.ResolveTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propmap_resolve_total",
		Help: "Cadastral point resolutions, labeled by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.ResolveDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "propmap_resolve_duration_seconds",
		Help:    "Latency of a full point resolution in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.StageFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propmap_lookup_failures_total",
		Help: "Failed cadastral lookups, labeled by stage.",
	}, []string{"stage"})); err != nil {
		return nil, err
	}
	if m.SubmarketFallbacks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propmap_submarket_fallback_total",
		Help: "Buffered submarket retries, labeled by whether they found a match.",
	}, []string{"found"})); err != nil {
		return nil, err
	}
	if m.Submissions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propmap_submissions_total",
		Help: "CRM property submissions, labeled by status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if m.BuildingsByTier, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "propmap_buildings",
		Help: "Loaded buildings per quality tier.",
	}, []string{"tier"})); err != nil {
		return nil, err
	}
	if m.BreakerState, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "propmap_breaker_state",
		Help: "Circuit breaker state per lookup source (0 closed, 1 open, 2 half-open).",
	}, []string{"source"})); err != nil {
		return nil, err
	}
	if m.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propmap_http_requests_total",
		Help: "Handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"})); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "propmap_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveResolve records one finished resolution.
func (m *Metrics) ObserveResolve(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ResolveTotal.WithLabelValues(outcome).Inc()
	m.ResolveDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// StageFailed counts a failed lookup stage.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// SubmarketFallback counts a buffered submarket retry.
func (m *Metrics) SubmarketFallback(found bool) {
	if m == nil {
		return
	}
	m.SubmarketFallbacks.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// SubmissionRecorded counts a submission by status.
func (m *Metrics) SubmissionRecorded(status string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(status).Inc()
}

// SetBuildingCounts replaces the per-tier building gauges.
func (m *Metrics) SetBuildingCounts(hist map[quality.Tier]int) {
	if m == nil {
		return
	}
	m.BuildingsByTier.Reset()
	for _, t := range quality.All() {
		m.BuildingsByTier.WithLabelValues(string(t)).Set(float64(hist[t]))
	}
}

// BreakerChanged matches resilience.BreakerConfig.OnChange.
func (m *Metrics) BreakerChanged(name string, _, to resilience.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations, labeled by the matched
// chi route pattern so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := RoutePattern(r)
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RoutePattern returns the chi route pattern matched by r, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if eris.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, eris.Errorf("monitoring: collector %T already registered with incompatible type", c)
		}
		return c, eris.Wrap(err, "monitoring: register collector")
	}
	return c, nil
}
