package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusMetrics handles all Prometheus metrics for the swing-trading
// engine: per-loop decisions, breaker trips, portfolio health, registry
// size and backfill activity.
type PrometheusMetrics struct {
	// Trading Loop / Executor
	DecisionsTotal  *prometheus.CounterVec
	SignalsTotal    *prometheus.CounterVec
	BreakerTrips    *prometheus.CounterVec
	PortfolioValue  *prometheus.GaugeVec
	OpenPositions   *prometheus.GaugeVec
	RealizedPnL     *prometheus.GaugeVec

	// Registry / Discovery
	RegistrySize    *prometheus.GaugeVec
	DiscoveryRuns   *prometheus.CounterVec
	BackfillRuns    *prometheus.CounterVec
	BackfillCandles *prometheus.CounterVec

	// Loop Health
	LoopTickLatency *prometheus.HistogramVec
	LoopErrors      *prometheus.CounterVec
	ProviderErrors  *prometheus.CounterVec

	logger *zap.Logger
	server *http.Server
}

// NewPrometheusMetrics creates and registers a new metrics instance.
func NewPrometheusMetrics(logger *zap.Logger) *PrometheusMetrics {
	m := &PrometheusMetrics{
		logger: logger.Named("metrics"),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_decisions_total",
				Help: "Total number of executor decisions by kind",
			},
			[]string{"kind"},
		),

		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_signals_total",
				Help: "Total number of signals generated by symbol",
			},
			[]string{"symbol", "signal"},
		),

		BreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_breaker_trips_total",
				Help: "Total number of circuit breaker trips by reason",
			},
			[]string{"reason"},
		),

		PortfolioValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexswing_portfolio_value_usd",
				Help: "Current total portfolio value (cash + open positions)",
			},
			[]string{"user_id"},
		),

		OpenPositions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexswing_open_positions",
				Help: "Current number of open positions",
			},
			[]string{"user_id"},
		),

		RealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexswing_realized_pnl_usd_cumulative",
				Help: "Cumulative realized PnL by exit reason",
			},
			[]string{"exit_reason"},
		),

		RegistrySize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexswing_registry_active_tokens",
				Help: "Number of Active tokens in the token registry",
			},
			[]string{},
		),

		DiscoveryRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_discovery_runs_total",
				Help: "Total number of discovery loop ticks by outcome",
			},
			[]string{"outcome"},
		),

		BackfillRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_backfill_runs_total",
				Help: "Total number of backfill runs by outcome",
			},
			[]string{"symbol", "outcome"},
		),

		BackfillCandles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_backfill_candles_stored_total",
				Help: "Total number of candles stored by backfill",
			},
			[]string{"symbol"},
		),

		LoopTickLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexswing_loop_tick_seconds",
				Help:    "Loop tick processing latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"loop"},
		),

		LoopErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_loop_errors_total",
				Help: "Total number of loop tick errors",
			},
			[]string{"loop"},
		),

		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexswing_provider_errors_total",
				Help: "Total number of external provider errors by kind",
			},
			[]string{"provider", "kind"},
		),
	}

	prometheus.MustRegister(
		m.DecisionsTotal,
		m.SignalsTotal,
		m.BreakerTrips,
		m.PortfolioValue,
		m.OpenPositions,
		m.RealizedPnL,
		m.RegistrySize,
		m.DiscoveryRuns,
		m.BackfillRuns,
		m.BackfillCandles,
		m.LoopTickLatency,
		m.LoopErrors,
		m.ProviderErrors,
	)

	return m
}

// Start starts the Prometheus metrics HTTP server.
func (m *PrometheusMetrics) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	m.logger.Info("starting metrics server", zap.String("addr", addr))

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server.
func (m *PrometheusMetrics) Stop() error {
	if m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.logger.Info("stopping metrics server")
	return m.server.Shutdown(ctx)
}

// RecordDecision records an executor decision.
func (m *PrometheusMetrics) RecordDecision(kind string) {
	m.DecisionsTotal.WithLabelValues(kind).Inc()
}

// RecordSignal records a generated signal.
func (m *PrometheusMetrics) RecordSignal(symbol, signal string) {
	m.SignalsTotal.WithLabelValues(symbol, signal).Inc()
}

// RecordBreakerTrip records a circuit breaker denial.
func (m *PrometheusMetrics) RecordBreakerTrip(reason string) {
	m.BreakerTrips.WithLabelValues(reason).Inc()
}

// SetPortfolioValue sets the current portfolio value gauge.
func (m *PrometheusMetrics) SetPortfolioValue(userID string, value float64) {
	m.PortfolioValue.WithLabelValues(userID).Set(value)
}

// SetOpenPositions sets the current open-position count gauge.
func (m *PrometheusMetrics) SetOpenPositions(userID string, count int) {
	m.OpenPositions.WithLabelValues(userID).Set(float64(count))
}

// RecordRealizedPnL accumulates a closed position's realized PnL.
func (m *PrometheusMetrics) RecordRealizedPnL(exitReason string, pnl float64) {
	m.RealizedPnL.WithLabelValues(exitReason).Add(pnl)
}

// SetRegistrySize sets the active-token-count gauge.
func (m *PrometheusMetrics) SetRegistrySize(count int) {
	m.RegistrySize.WithLabelValues().Set(float64(count))
}

// RecordDiscoveryRun records a discovery loop tick outcome.
func (m *PrometheusMetrics) RecordDiscoveryRun(outcome string) {
	m.DiscoveryRuns.WithLabelValues(outcome).Inc()
}

// RecordBackfillRun records a backfill run outcome and candle count.
func (m *PrometheusMetrics) RecordBackfillRun(symbol, outcome string, stored int) {
	m.BackfillRuns.WithLabelValues(symbol, outcome).Inc()
	if stored > 0 {
		m.BackfillCandles.WithLabelValues(symbol).Add(float64(stored))
	}
}

// ObserveLoopTick records a loop tick's processing latency.
func (m *PrometheusMetrics) ObserveLoopTick(loop string, d time.Duration) {
	m.LoopTickLatency.WithLabelValues(loop).Observe(d.Seconds())
}

// RecordLoopError records a loop tick error.
func (m *PrometheusMetrics) RecordLoopError(loop string) {
	m.LoopErrors.WithLabelValues(loop).Inc()
}

// RecordProviderError records an external provider error; kind is the
// failing operation (e.g. get_quote, fetch_trending).
func (m *PrometheusMetrics) RecordProviderError(provider, kind string) {
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}
