// Package metrics exposes the screener's Prometheus metrics and a /healthz
// endpoint. Grounded on the teacher's internal/metrics package (registered
// Counter/Histogram/Gauge bundle, HealthStatus with RWMutex-guarded fields,
// a combined /metrics + /healthz http.Server), generalized from market-data
// pipeline metrics to ingest/snapshot/backtester metrics.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the screener.
type Metrics struct {
	// Ingest
	KlinesTotal      *prometheus.CounterVec // labels: exchange
	TickersTotal     *prometheus.CounterVec // labels: exchange
	WSReconnects     *prometheus.CounterVec // labels: exchange
	DroppedEvents    *prometheus.CounterVec // labels: exchange, reason
	LiquidationsTotal *prometheus.CounterVec // labels: exchange
	TaskRestarts     *prometheus.CounterVec // labels: exchange, task

	// Persistence
	SQLiteCommitDur prometheus.Histogram

	// Aggregator
	SnapshotEmitDur  *prometheus.HistogramVec // labels: exchange
	SnapshotSymbols  *prometheus.GaugeVec     // labels: exchange
	SubscriberDrops  *prometheus.CounterVec   // labels: exchange
	FreshSignalsTotal *prometheus.CounterVec  // labels: exchange, side

	// Grader / liquidity
	GradesTotal    *prometheus.CounterVec // labels: exchange, grade
	LiquidityTop200 *prometheus.GaugeVec  // labels: exchange

	// Backtester
	BacktestRunDur    prometheus.Histogram
	BacktestTrades    *prometheus.CounterVec // labels: resolution
	WinRateCacheSize  prometheus.Gauge

	// Alert dispatch
	AlertsDispatched *prometheus.CounterVec // labels: channel
	AlertsSuppressed *prometheus.CounterVec // labels: reason
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		KlinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_klines_total",
			Help: "Total 1m klines ingested",
		}, []string{"exchange"}),
		TickersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_tickers_total",
			Help: "Total mini-ticker updates ingested",
		}, []string{"exchange"}),
		WSReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}, []string{"exchange"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_dropped_events_total",
			Help: "Events dropped (malformed payload, subscriber queue full)",
		}, []string{"exchange", "reason"}),
		LiquidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_liquidations_total",
			Help: "Total forced-liquidation events observed",
		}, []string{"exchange"}),
		TaskRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_task_restarts_total",
			Help: "Ingest task restarts by watchdog or health monitor",
		}, []string{"exchange", "task"}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpscreen_sqlite_commit_duration_seconds",
			Help:    "SQLite write latency",
			Buckets: prometheus.DefBuckets,
		}),

		SnapshotEmitDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpscreen_snapshot_emit_duration_seconds",
			Help:    "Time to compute and publish one snapshot",
			Buckets: prometheus.DefBuckets,
		}, []string{"exchange"}),
		SnapshotSymbols: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpscreen_snapshot_symbols",
			Help: "Number of symbols in the most recent snapshot",
		}, []string{"exchange"}),
		SubscriberDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_subscriber_drops_total",
			Help: "Snapshot payloads dropped from a full subscriber queue (drop-oldest)",
		}, []string{"exchange"}),
		FreshSignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_fresh_signals_total",
			Help: "Fresh (non-repeating) signals detected",
		}, []string{"exchange", "side"}),

		GradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_grades_total",
			Help: "Graded setups by grade",
		}, []string{"exchange", "grade"}),
		LiquidityTop200: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpscreen_liquidity_top200",
			Help: "Number of symbols currently in the liquidity top-200 cohort",
		}, []string{"exchange"}),

		BacktestRunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpscreen_backtest_run_duration_seconds",
			Help:    "Backtester run wall-clock duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		BacktestTrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_backtest_trades_total",
			Help: "Forward-simulated trades resolved, by resolution",
		}, []string{"resolution"}),
		WinRateCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpscreen_winrate_cache_size",
			Help: "Number of symbols in the grader's win-rate cache",
		}),

		AlertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_alerts_dispatched_total",
			Help: "Alerts successfully sent to an external channel",
		}, []string{"channel"}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscreen_alerts_suppressed_total",
			Help: "Alerts suppressed by cooldown, dedup, or grade filter",
		}, []string{"reason"}),
	}

	prometheus.MustRegister(
		m.KlinesTotal,
		m.TickersTotal,
		m.WSReconnects,
		m.DroppedEvents,
		m.LiquidationsTotal,
		m.TaskRestarts,
		m.SQLiteCommitDur,
		m.SnapshotEmitDur,
		m.SnapshotSymbols,
		m.SubscriberDrops,
		m.FreshSignalsTotal,
		m.GradesTotal,
		m.LiquidityTop200,
		m.BacktestRunDur,
		m.BacktestTrades,
		m.WinRateCacheSize,
		m.AlertsDispatched,
		m.AlertsSuppressed,
	)

	return m
}

// HealthStatus represents the system health surfaced at /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	Exchanges   map[string]bool `json:"exchanges"` // exchange -> stream connected
	SQLiteOK    bool            `json:"sqlite_ok"`
	LastEmitMs  map[string]int64 `json:"last_emit_ms"`

	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		Exchanges:  make(map[string]bool),
		LastEmitMs: make(map[string]int64),
		StartedAt:  time.Now(),
	}
}

func (h *HealthStatus) SetStreamConnected(exchange string, v bool) {
	h.mu.Lock()
	h.Exchanges[exchange] = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEmit(exchange string, tsMs int64) {
	h.mu.Lock()
	h.LastEmitMs[exchange] = tsMs
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
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

// StartLivenessChecker runs periodic SQLite liveness checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. Per §7 "User-visible failure
// surface", degraded subsystems are reported, never hidden behind a 200.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	anyStreamDown := false
	for _, connected := range h.Exchanges {
		if !connected {
			anyStreamDown = true
		}
	}
	if anyStreamDown || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && len(h.Exchanges) == 0 {
		overallStatus = "unhealthy"
	}

	status := struct {
		Status          string           `json:"status"`
		Uptime          string           `json:"uptime"`
		Exchanges       map[string]bool  `json:"exchanges"`
		LastEmitMs      map[string]int64 `json:"last_emit_ms"`
		SQLiteOK        bool             `json:"sqlite_ok"`
		SQLiteLatencyMs float64          `json:"sqlite_latency_ms"`
		LastCheckAt     string           `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Exchanges:       h.Exchanges,
		LastEmitMs:      h.LastEmitMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
