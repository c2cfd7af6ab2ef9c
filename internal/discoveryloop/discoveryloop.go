// Package discoveryloop implements C11: the periodic trending-fetch,
// safety-filter, rotation, and backfill cycle that keeps the Token
// Registry populated.
package discoveryloop

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dexswing/internal/backfill"
	"dexswing/internal/candlestore"
	"dexswing/internal/providers"
	"dexswing/internal/ratelimit"
	"dexswing/internal/registry"
)

const cadence = 30 * time.Minute

// SafetyFilters is the §4.11 step 2 candidate gate.
type SafetyFilters struct {
	MinLiquidityUSD float64
	MinVolume24hUSD float64
	MinFDVUSD       float64
	MaxRank         int
}

func (f SafetyFilters) passes(c providers.DiscoveryCandidate) bool {
	if c.LiquidityUSD < f.MinLiquidityUSD {
		return false
	}
	if c.Volume24hUSD < f.MinVolume24hUSD {
		return false
	}
	if c.FDVUSD < f.MinFDVUSD {
		return false
	}
	if f.MaxRank > 0 && c.Rank > f.MaxRank {
		return false
	}
	return true
}

// OpenPositionSymbols is the subset of positions.Manager the loop needs
// to build the protected-symbols set.
type OpenPositionSymbols interface {
	OpenSymbols() []string
}

// Metrics is the subset of metrics.PrometheusMetrics the discovery loop
// reports to. Satisfied by *metrics.PrometheusMetrics; a nil Metrics
// silently disables recording (used in tests).
type Metrics interface {
	RecordDiscoveryRun(outcome string)
	RecordBackfillRun(symbol, outcome string, stored int)
	ObserveLoopTick(loop string, d time.Duration)
	RecordLoopError(loop string)
	RecordProviderError(provider, kind string)
}

// Loop runs the C11 tick.
type Loop struct {
	registry         registry.Store
	candles          candlestore.Store
	discovery        providers.DiscoveryProvider
	backfiller       *backfill.Backfiller
	discoveryLimiter *ratelimit.Limiter
	backfillLimiter  *ratelimit.Limiter
	positions        OpenPositionSymbols
	metrics          Metrics
	logger           *zap.Logger

	topN         int
	filters      SafetyFilters
	mustTrack    []string
	maxWatchlist int
	staleAfter   time.Duration
	removeAfter  time.Duration
	backfillDays int
}

func New(reg registry.Store, candles candlestore.Store, discovery providers.DiscoveryProvider, backfiller *backfill.Backfiller, discoveryLimiter, backfillLimiter *ratelimit.Limiter, positions OpenPositionSymbols, metrics Metrics, logger *zap.Logger, topN int, filters SafetyFilters, mustTrack []string, maxWatchlist int, staleAfter, removeAfter time.Duration, backfillDays int) *Loop {
	return &Loop{
		registry:         reg,
		candles:          candles,
		discovery:        discovery,
		backfiller:       backfiller,
		discoveryLimiter: discoveryLimiter,
		backfillLimiter:  backfillLimiter,
		positions:        positions,
		metrics:          metrics,
		logger:           logger.Named("discoveryloop"),
		topN:             topN,
		filters:          filters,
		mustTrack:        mustTrack,
		maxWatchlist:     maxWatchlist,
		staleAfter:       staleAfter,
		removeAfter:      removeAfter,
		backfillDays:     backfillDays,
	}
}

// Run blocks until ctx is cancelled, firing one tick every 30 minutes.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	l.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runTick(ctx)
		}
	}
}

func (l *Loop) runTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.ObserveLoopTick("discoveryloop", time.Since(start))
		}
	}()

	now := time.Now().UTC()

	if err := l.discoveryLimiter.Wait(ctx); err != nil {
		return
	}
	candidates, err := l.discovery.FetchTrending(ctx, l.topN)
	if err != nil {
		l.logger.Error("trending fetch failed", zap.Error(err))
		if l.metrics != nil {
			l.metrics.RecordLoopError("discoveryloop")
			l.metrics.RecordProviderError("discovery", "fetch_trending")
			l.metrics.RecordDiscoveryRun("error")
		}
		return
	}
	if l.metrics != nil {
		l.metrics.RecordDiscoveryRun("success")
	}

	protected := l.protectedSymbols(ctx)

	newlyInserted := make([]registry.TrackedToken, 0)
	for _, c := range candidates {
		if !l.filters.passes(c) {
			continue
		}
		existing, found, err := l.registry.Get(ctx, c.Symbol)
		if err != nil {
			l.logger.Warn("registry lookup failed", zap.String("symbol", c.Symbol), zap.Error(err))
			continue
		}
		tok, err := l.registry.Upsert(ctx, c.Symbol, c.Address, c.Name, 0, "", now)
		if err != nil {
			l.logger.Warn("upsert failed", zap.String("symbol", c.Symbol), zap.Error(err))
			continue
		}
		if !found || existing.Status != registry.StatusActive {
			newlyInserted = append(newlyInserted, tok)
		}
	}

	staleCount, err := l.registry.MarkStaleBefore(ctx, now.Add(-l.staleAfter), protected)
	if err != nil {
		l.logger.Warn("mark_stale_before failed", zap.Error(err))
	}
	removedCount, err := l.registry.MarkRemovedBefore(ctx, now.Add(-l.removeAfter), protected)
	if err != nil {
		l.logger.Warn("mark_removed_before failed", zap.Error(err))
	}
	l.logger.Info("rotation complete", zap.Int("stale", staleCount), zap.Int("removed", removedCount))

	l.backfillNewTokens(ctx, newlyInserted)

	l.capWatchlist(ctx, protected)
}

func (l *Loop) protectedSymbols(ctx context.Context) []string {
	protected := append([]string{}, l.mustTrack...)
	protected = append(protected, l.positions.OpenSymbols()...)
	return protected
}

func (l *Loop) backfillNewTokens(ctx context.Context, tokens []registry.TrackedToken) {
	for _, tok := range tokens {
		count, err := l.candles.CountSnapshots(ctx, tok.Symbol)
		if err != nil {
			l.logger.Warn("count_snapshots failed", zap.String("symbol", tok.Symbol), zap.Error(err))
			continue
		}
		if count > 0 {
			continue
		}
		if err := l.backfillLimiter.Wait(ctx); err != nil {
			return
		}
		stats, err := l.backfiller.Run(ctx, tok.Symbol, tok.Address, l.backfillDays, false)
		if err != nil {
			l.logger.Warn("backfill failed", zap.String("symbol", tok.Symbol), zap.Error(err))
			if l.metrics != nil {
				l.metrics.RecordBackfillRun(tok.Symbol, "error", 0)
			}
			continue
		}
		l.logger.Info("backfilled new token", zap.String("symbol", tok.Symbol), zap.Int("stored", stats.StoredNew))
		if l.metrics != nil {
			l.metrics.RecordBackfillRun(tok.Symbol, "success", stats.StoredNew)
		}
	}
}

func (l *Loop) capWatchlist(ctx context.Context, protected []string) {
	for {
		count, err := l.registry.CountActive(ctx)
		if err != nil {
			l.logger.Warn("count_active failed", zap.Error(err))
			return
		}
		if count <= l.maxWatchlist {
			return
		}
		evicted, err := l.registry.EvictOldestActive(ctx, protected)
		if err != nil {
			l.logger.Warn("evict_oldest_active failed", zap.Error(err))
			return
		}
		if evicted == "" {
			return
		}
		l.logger.Info("evicted from watchlist", zap.String("symbol", evicted))
	}
}
