// Package ingestor implements C4: the clock-aligned Price Ingestor loop.
package ingestor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dexswing/internal/candlestore"
	"dexswing/internal/providers"
	"dexswing/internal/ratelimit"
	"dexswing/internal/registry"
)

const defaultTickInterval = 5 * time.Minute

// OpenPositionSymbols is the subset of positions.Manager the ingestor
// needs to know which symbols must never be dropped mid-trade.
type OpenPositionSymbols interface {
	OpenSymbols() []string
}

// Metrics is the subset of metrics.PrometheusMetrics the ingestor
// reports to. Satisfied by *metrics.PrometheusMetrics; a nil Metrics
// silently disables recording (used in tests).
type Metrics interface {
	ObserveLoopTick(loop string, d time.Duration)
	RecordLoopError(loop string)
	RecordProviderError(provider, kind string)
}

// Ingestor fetches a current quote per active symbol on a clock-aligned
// cadence (`poll_interval_minutes`) and appends a snapshot candle.
type Ingestor struct {
	registry  registry.Store
	candles   candlestore.Store
	quotes    providers.QuoteProvider
	limiter   *ratelimit.Limiter
	positions OpenPositionSymbols
	metrics   Metrics
	logger    *zap.Logger

	mustTrack    []string
	keepHours    time.Duration
	tickInterval time.Duration

	lastCleanupHour int
}

func New(reg registry.Store, candles candlestore.Store, quotes providers.QuoteProvider, limiter *ratelimit.Limiter, positions OpenPositionSymbols, metrics Metrics, logger *zap.Logger, mustTrack []string, keepHours time.Duration, tickInterval time.Duration) *Ingestor {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &Ingestor{
		registry:        reg,
		candles:         candles,
		quotes:          quotes,
		limiter:         limiter,
		positions:       positions,
		metrics:         metrics,
		logger:          logger.Named("ingestor"),
		mustTrack:       mustTrack,
		keepHours:       keepHours,
		tickInterval:    tickInterval,
		lastCleanupHour: -1,
	}
}

// Run blocks until ctx is cancelled, firing one tick at every clock
// boundary aligned to the configured tick interval.
func (in *Ingestor) Run(ctx context.Context) error {
	for {
		next := in.nextAlignedTick(time.Now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case tick := <-timer.C:
			in.runTick(ctx, tick.UTC())
		}
	}
}

func (in *Ingestor) nextAlignedTick(now time.Time) time.Time {
	truncated := now.Truncate(in.tickInterval)
	if !truncated.After(now) {
		truncated = truncated.Add(in.tickInterval)
	}
	return truncated
}

func (in *Ingestor) runTick(ctx context.Context, tick time.Time) {
	start := time.Now()
	defer func() {
		if in.metrics != nil {
			in.metrics.ObserveLoopTick("ingestor", time.Since(start))
		}
	}()

	tokens, err := in.registry.ListActiveWithPositions(ctx, in.positions.OpenSymbols(), in.mustTrack)
	if err != nil {
		in.logger.Error("failed to list active tokens", zap.Error(err))
		if in.metrics != nil {
			in.metrics.RecordLoopError("ingestor")
		}
		return
	}

	var wg sync.WaitGroup
	for _, tok := range tokens {
		tok := tok
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.ingestSymbol(ctx, tok, tick)
		}()
	}
	wg.Wait()

	if tick.Hour() != in.lastCleanupHour {
		in.lastCleanupHour = tick.Hour()
		in.cleanupAll(ctx, tokens)
	}
}

func (in *Ingestor) ingestSymbol(ctx context.Context, tok registry.TrackedToken, tick time.Time) {
	if err := in.limiter.Wait(ctx); err != nil {
		return
	}

	quote, err := in.quotes.GetQuote(ctx, tok.Address)
	if err != nil {
		in.logger.Warn("quote fetch failed", zap.String("symbol", tok.Symbol), zap.Error(err))
		if in.metrics != nil {
			in.metrics.RecordProviderError("quote", "get_quote")
		}
		return
	}

	candle := candlestore.Candle{
		Symbol:    tok.Symbol,
		Timestamp: tick,
		Open:      quote.Price,
		High:      quote.Price,
		Low:       quote.Price,
		Close:     quote.Price,
		Volume:    quote.Volume24h,
	}

	if err := in.candles.SaveCandles(ctx, tok.Symbol, []candlestore.Candle{candle}); err != nil {
		in.logger.Error("failed to persist candle", zap.String("symbol", tok.Symbol), zap.Error(err))
	}
}

func (in *Ingestor) cleanupAll(ctx context.Context, tokens []registry.TrackedToken) {
	for _, tok := range tokens {
		removed, err := in.candles.CleanupOld(ctx, tok.Symbol, in.keepHours)
		if err != nil {
			in.logger.Warn("cleanup failed", zap.String("symbol", tok.Symbol), zap.Error(err))
			continue
		}
		if removed > 0 {
			in.logger.Info("cleaned up old candles", zap.String("symbol", tok.Symbol), zap.Int("removed", removed))
		}
	}
}
