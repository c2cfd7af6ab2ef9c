// Package tradingloop implements C10: the clock-aligned loop that checks
// exits before generating new entries, every 5 minutes offset 30s from
// the Price Ingestor so the latest candle is already in place.
package tradingloop

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dexswing/internal/breakers"
	"dexswing/internal/bus"
	"dexswing/internal/candlestore"
	"dexswing/internal/executor"
	"dexswing/internal/positionstore"
	"dexswing/internal/registry"
	"dexswing/internal/signals"
)

const (
	defaultTickInterval = 5 * time.Minute
	defaultTickOffset   = 30 * time.Second
)

// PositionManager is the subset of positions.Manager the trading loop
// drives.
type PositionManager interface {
	CheckExits(ctx context.Context, prices map[string]float64, now time.Time) ([]uuid.UUID, error)
	OpenPosition(ctx context.Context, symbol string, entryPrice, quantity float64, now time.Time) (uuid.UUID, error)
	ClosePosition(ctx context.Context, id uuid.UUID, exitPrice float64, reason positionstore.ExitReason, now time.Time) (float64, error)
	HasOpenPosition(symbol string) bool
	PositionID(symbol string) (uuid.UUID, bool)
	AvailableCash() float64
	OpenSymbols() []string
	PortfolioValue(prices map[string]float64) float64
	TradingState(currentPortfolioValue float64) breakers.TradingState
	ResetDaily()
}

// DecisionPublisher is the subset of bus.Publisher the trading loop uses
// to announce executor decisions. Satisfied by *bus.Publisher; a nil
// publisher silently disables publishing (used in tests).
type DecisionPublisher interface {
	PublishDecision(ev bus.ExecutionDecisionEvent) error
}

// Metrics is the subset of metrics.PrometheusMetrics the trading loop
// reports to. Satisfied by *metrics.PrometheusMetrics; a nil Metrics
// silently disables recording (used in tests).
type Metrics interface {
	RecordDecision(kind string)
	RecordSignal(symbol, signal string)
	RecordBreakerTrip(reason string)
	ObserveLoopTick(loop string, d time.Duration)
	RecordLoopError(loop string)
}

// Loop runs the C10 tick.
type Loop struct {
	registry  registry.Store
	candles   candlestore.Store
	positions PositionManager
	breakers  *breakers.CircuitBreakers
	publisher DecisionPublisher
	metrics   Metrics
	logger    *zap.Logger

	mustTrack      []string
	defaultSignal  signals.Config
	executorConfig executor.Config
	tickInterval   time.Duration
	tickOffset     time.Duration

	lastResetDate string
}

func New(reg registry.Store, candles candlestore.Store, positions PositionManager, cb *breakers.CircuitBreakers, publisher DecisionPublisher, metrics Metrics, logger *zap.Logger, mustTrack []string, defaultSignal signals.Config, executorConfig executor.Config, tickInterval, tickOffset time.Duration) *Loop {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	if tickOffset <= 0 {
		tickOffset = defaultTickOffset
	}
	return &Loop{
		registry:       reg,
		candles:        candles,
		positions:      positions,
		breakers:       cb,
		publisher:      publisher,
		metrics:        metrics,
		logger:         logger.Named("tradingloop"),
		mustTrack:      mustTrack,
		defaultSignal:  defaultSignal,
		executorConfig: executorConfig,
		tickInterval:   tickInterval,
		tickOffset:     tickOffset,
	}
}

// Run blocks until ctx is cancelled, firing one tick at every clock
// boundary aligned to the configured tick interval plus the trading
// offset.
func (l *Loop) Run(ctx context.Context) error {
	for {
		next := l.nextAlignedTick(time.Now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case tick := <-timer.C:
			l.runTick(ctx, tick.UTC())
		}
	}
}

func (l *Loop) nextAlignedTick(now time.Time) time.Time {
	base := now.Add(-l.tickOffset).Truncate(l.tickInterval)
	next := base.Add(l.tickOffset)
	if !next.After(now) {
		next = next.Add(l.tickInterval)
	}
	return next
}

func (l *Loop) runTick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.ObserveLoopTick("tradingloop", time.Since(start))
		}
	}()

	today := now.Format("2006-01-02")
	if l.lastResetDate != "" && l.lastResetDate != today {
		l.positions.ResetDaily()
	}
	l.lastResetDate = today

	tokens, err := l.registry.ListActiveWithPositions(ctx, l.positions.OpenSymbols(), l.mustTrack)
	if err != nil {
		l.logger.Error("failed to list active tokens", zap.Error(err))
		if l.metrics != nil {
			l.metrics.RecordLoopError("tradingloop")
		}
		return
	}

	prices := l.buildPriceSnapshot(ctx, tokens)

	if _, err := l.positions.CheckExits(ctx, prices, now); err != nil {
		l.logger.Error("check_exits failed", zap.Error(err))
	}

	for _, tok := range tokens {
		l.processSymbol(ctx, tok, prices, now)
	}

	portfolioValue := l.positions.PortfolioValue(prices)
	l.logger.Info("tick complete",
		zap.Time("tick", now),
		zap.Float64("portfolio_value", portfolioValue),
		zap.Int("open_positions", len(l.positions.OpenSymbols())),
	)
}

// buildPriceSnapshot implements the single-price-snapshot rule: one map
// built once per tick and reused for check_exits and every symbol's
// signal evaluation.
func (l *Loop) buildPriceSnapshot(ctx context.Context, tokens []registry.TrackedToken) map[string]float64 {
	prices := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		candles, err := l.candles.LoadCandles(ctx, tok.Symbol, time.Hour)
		if err != nil || len(candles) == 0 {
			continue
		}
		prices[tok.Symbol] = candles[len(candles)-1].Close
	}
	return prices
}

func (l *Loop) processSymbol(ctx context.Context, tok registry.TrackedToken, prices map[string]float64, now time.Time) {
	cfg := l.resolveSignalConfig(tok)

	window, err := l.candles.LoadCandles(ctx, tok.Symbol, time.Duration(cfg.LookbackHours)*time.Hour)
	if err != nil {
		l.logger.Warn("failed to load candle window", zap.String("symbol", tok.Symbol), zap.Error(err))
		return
	}

	signal, reason := signals.Generate(window, cfg, true)
	if l.metrics != nil {
		l.metrics.RecordSignal(tok.Symbol, string(signal))
	}
	if signal == signals.Hold {
		return
	}

	price, ok := prices[tok.Symbol]
	if !ok {
		return
	}

	portfolioValue := l.positions.PortfolioValue(prices)
	state := l.positions.TradingState(portfolioValue)

	decision := executor.ProcessSignal(signal, tok.Symbol, price, l.positions, l.breakers, state, l.executorConfig)
	l.applyDecision(ctx, decision, now, reason)
}

func (l *Loop) applyDecision(ctx context.Context, d executor.Decision, now time.Time, signalReason string) {
	switch d.Kind {
	case executor.Execute:
		if _, err := l.positions.OpenPosition(ctx, d.Symbol, d.CurrentPrice, d.Quantity, now); err != nil {
			l.logger.Warn("open_position failed", zap.String("symbol", d.Symbol), zap.Error(err))
			return
		}
		l.recordDecision(d)
		l.publishDecision(d, signalReason)
	case executor.Close:
		if _, err := l.positions.ClosePosition(ctx, d.PositionID, d.CurrentPrice, positionstore.ExitManual, now); err != nil {
			l.logger.Warn("close_position failed", zap.String("symbol", d.Symbol), zap.Error(err))
			return
		}
		l.recordDecision(d)
		l.publishDecision(d, signalReason)
	case executor.Skip:
		l.logger.Debug("signal skipped", zap.String("symbol", d.Symbol), zap.String("signal_reason", signalReason), zap.String("skip_reason", d.SkipReason))
		l.recordDecision(d)
		l.publishDecision(d, signalReason)
	}
}

// breakerSkipPrefix matches the SkipReason executor.ProcessSignal sets
// when a circuit breaker denies a Buy (executor.go's "circuit breaker: "+reason).
const breakerSkipPrefix = "circuit breaker: "

func (l *Loop) recordDecision(d executor.Decision) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordDecision(string(d.Kind))
	if d.Kind == executor.Skip && strings.HasPrefix(d.SkipReason, breakerSkipPrefix) {
		l.metrics.RecordBreakerTrip(strings.TrimPrefix(d.SkipReason, breakerSkipPrefix))
	}
}

func (l *Loop) publishDecision(d executor.Decision, signalReason string) {
	if l.publisher == nil {
		return
	}
	ev := bus.ExecutionDecisionEvent{
		Symbol:       d.Symbol,
		Kind:         string(d.Kind),
		Quantity:     d.Quantity,
		Price:        d.CurrentPrice,
		SignalReason: signalReason,
		SkipReason:   d.SkipReason,
		Timestamp:    time.Now().UTC(),
	}
	if err := l.publisher.PublishDecision(ev); err != nil {
		l.logger.Warn("failed to publish decision event", zap.String("symbol", d.Symbol), zap.Error(err))
	}
}

func (l *Loop) resolveSignalConfig(tok registry.TrackedToken) signals.Config {
	if len(tok.StrategyConfig) == 0 {
		return l.defaultSignal
	}
	cfg := l.defaultSignal
	if err := json.Unmarshal(tok.StrategyConfig, &cfg); err != nil {
		l.logger.Warn("invalid strategy_config, using defaults", zap.String("symbol", tok.Symbol), zap.Error(err))
		return l.defaultSignal
	}
	return cfg
}
