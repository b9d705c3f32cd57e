// Package metrics exposes Prometheus metrics and the /healthz probe of the
// monitor daemon.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the monitor.
type Metrics struct {
	// Orchestrator passes
	PassesTotal   prometheus.Counter
	PassDuration  prometheus.Histogram
	LiveMonitors  prometheus.Gauge
	FetchErrors   *prometheus.CounterVec // labels: instrument
	PanicsTotal   *prometheus.CounterVec // labels: instrument
	ActionsTotal  *prometheus.CounterVec // labels: kind
	GatedTicks    prometheus.Counter
	ReloadsTotal  *prometheus.CounterVec // labels: result=ok|error
	FetchDuration prometheus.Histogram
	BarCloseFired prometheus.Counter

	// Delivery
	NotifyFailures  prometheus.Counter
	JournalFailures *prometheus.CounterVec // labels: sink
	JournalDropped  prometheus.Counter

	// Redis mirror circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Dashboard
	WSClients prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PassesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_passes_total",
			Help: "Total evaluation passes over the registry",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_pass_duration_seconds",
			Help:    "Wall time of one evaluation pass",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LiveMonitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_live_monitors",
			Help: "Number of registered instrument monitors",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_fetch_errors_total",
			Help: "Candle fetch or snapshot failures per instrument",
		}, []string{"instrument"}),
		PanicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_panics_total",
			Help: "Recovered panics per instrument",
		}, []string{"instrument"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_actions_total",
			Help: "Actions emitted by kind",
		}, []string{"kind"}),
		GatedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_gated_ticks_total",
			Help: "Evaluations that fell outside the bar-close window",
		}),
		ReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_reloads_total",
			Help: "Instruments file reloads by result",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_fetch_duration_seconds",
			Help:    "Candle fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		BarCloseFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_bar_close_evaluations_total",
			Help: "Evaluations treated as closed-bar ticks",
		}),

		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_notify_failures_total",
			Help: "Failed alert deliveries (console fallback used)",
		}),
		JournalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_journal_failures_total",
			Help: "Failed journal writes per sink",
		}, []string{"sink"}),
		JournalDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_journal_dropped_total",
			Help: "Journal rows dropped because the queue was full",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_redis_buffered_writes_total",
			Help: "Rows buffered locally during Redis circuit breaker open state",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_ws_clients",
			Help: "Connected dashboard WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.LiveMonitors,
		m.FetchErrors,
		m.PanicsTotal,
		m.ActionsTotal,
		m.GatedTicks,
		m.ReloadsTotal,
		m.FetchDuration,
		m.BarCloseFired,
		m.NotifyFailures,
		m.JournalFailures,
		m.JournalDropped,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
	)

	return m
}

// HealthStatus represents the daemon health.
type HealthStatus struct {
	mu sync.RWMutex

	LastPassAt     time.Time
	LastPassErr    int // instruments that failed in the last pass
	Monitors       int
	RedisEnabled   bool
	RedisConnected bool
	SQLiteEnabled  bool
	SQLiteOK       bool

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	// StaleAfter marks the daemon unhealthy when no pass completed for
	// this long. Zero disables the check.
	StaleAfter time.Duration

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		StaleAfter: staleAfter,
		now:        time.Now,
	}
}

// RecordPass stores the outcome of one evaluation pass.
func (h *HealthStatus) RecordPass(at time.Time, monitors, failed int) {
	h.mu.Lock()
	h.LastPassAt = at
	h.Monitors = monitors
	h.LastPassErr = failed
	h.mu.Unlock()
}

// EnableRedis marks the Redis mirror as configured.
func (h *HealthStatus) EnableRedis(connected bool) {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = connected
	h.mu.Unlock()
}

// EnableSQLite marks the SQLite journal as configured.
func (h *HealthStatus) EnableSQLite(ok bool) {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = ok
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// RunLivenessChecker runs periodic dependency checks until ctx is cancelled.
// Either dependency may be nil.
func (h *HealthStatus) RunLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if rdb != nil {
				h.CheckRedis(probeCtx, rdb)
			}
			if sqlDB != nil {
				h.CheckSQLite(probeCtx, sqlDB)
			}
			cancel()
		}
	}
}

// Report is the /healthz body.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	LastPassAt      string  `json:"last_pass_at"`
	PassAge         string  `json:"pass_age"`
	Monitors        int     `json:"monitors"`
	FailedLastPass  int     `json:"failed_last_pass"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteEnabled   bool    `json:"sqlite_enabled"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastCheckAt     string  `json:"last_check_at"`
}

// Snapshot evaluates the current health. The status is "unhealthy" when
// passes have stalled, "degraded" when an enabled store is down, and
// "healthy" otherwise.
func (h *HealthStatus) Snapshot() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	status := "healthy"
	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		status = "degraded"
	}
	last := h.LastPassAt
	if last.IsZero() {
		last = h.StartedAt
	}
	if h.StaleAfter > 0 && now.Sub(last) > h.StaleAfter {
		status = "unhealthy"
	}

	passAge := ""
	if !h.LastPassAt.IsZero() {
		passAge = now.Sub(h.LastPassAt).Round(time.Millisecond).String()
	}

	return Report{
		Status:          status,
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		LastPassAt:      h.LastPassAt.Format(time.RFC3339),
		PassAge:         passAge,
		Monitors:        h.Monitors,
		FailedLastPass:  h.LastPassErr,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if report.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer is usually
// prometheus.DefaultGatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
