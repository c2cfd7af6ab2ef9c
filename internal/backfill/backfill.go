// Package backfill implements C5: seeding a newly discovered token's
// candle series from a coarser historical source so it doesn't need a
// ~24h live warm-up before trading.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"dexswing/internal/candlestore"
	"dexswing/internal/providers"
)

var (
	ErrTokenNotFound = errors.New("backfill: no external id mapping for token")
	ErrEmptyResponse = errors.New("backfill: historical provider returned no data")
)

const bucketWidth = 5 * time.Minute

// overlapWindow is the ±60s duplicate tolerance from §3/§4.5 step 7.
const overlapWindow = 60 * time.Second

// maxClockSkew bounds how far a synthesized candle may sit in the future
// relative to now, mirroring candlestore.Candle.Validate's tolerance.
const maxClockSkew = 2 * time.Minute

// Stats is the typed result of a single Run, §4.5's {fetched_points,
// converted_candles, skipped_existing, stored_new, validation_failures}.
type Stats struct {
	FetchedPoints      int
	ConvertedCandles   int
	SkippedExisting    int
	StoredNew          int
	ValidationFailures int
}

// Resolver maps (symbol, address) to the historical provider's external
// identifier.
type Resolver interface {
	Resolve(symbol, address string) (string, error)
}

// Backfiller runs the historical-to-candle merge protocol against a
// candle store, given a resolver and historical provider.
type Backfiller struct {
	resolver   Resolver
	historical providers.HistoricalProvider
	store      candlestore.Store
	logger     *zap.Logger

	maxRetries     int
	initialBackoff time.Duration
}

func New(resolver Resolver, historical providers.HistoricalProvider, store candlestore.Store, logger *zap.Logger, maxRetries int, initialBackoff time.Duration) *Backfiller {
	return &Backfiller{
		resolver:       resolver,
		historical:     historical,
		store:          store,
		logger:         logger.Named("backfill"),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}
}

// Run implements the §4.5 algorithm. symbol/address identify the token;
// days is the requested window; force disables the overlap-skip policy.
func (b *Backfiller) Run(ctx context.Context, symbol, address string, days int, force bool) (Stats, error) {
	var stats Stats

	externalID, err := b.resolver.Resolve(symbol, address)
	if err != nil {
		return stats, fmt.Errorf("%w: %s/%s", ErrTokenNotFound, symbol, address)
	}

	series, err := b.fetchWithRetry(ctx, externalID, days)
	if err != nil {
		return stats, err
	}
	stats.FetchedPoints = len(series.Prices)
	if len(series.Prices) == 0 {
		return stats, ErrEmptyResponse
	}

	dedupedPrices := dedupeAndSortPrices(series.Prices)
	buckets := bucketPrices(dedupedPrices)

	now := time.Now().UTC()
	candles := make([]candlestore.Candle, 0, len(buckets))
	for _, bucketStart := range sortedBucketKeys(buckets) {
		points := buckets[bucketStart]
		if len(points) == 0 {
			continue
		}
		c := synthesizeCandle(symbol, bucketStart, points)
		if err := c.Validate(now, maxClockSkew); err != nil {
			stats.ValidationFailures++
			continue
		}
		candles = append(candles, c)
	}
	stats.ConvertedCandles = len(candles)

	existing, err := b.store.GetTimestamps(ctx, symbol)
	if err != nil {
		return stats, fmt.Errorf("backfill: load existing timestamps: %w", err)
	}

	var latestLive time.Time
	for _, ts := range existing {
		if ts.After(latestLive) {
			latestLive = ts
		}
	}
	liveFloor := latestLive.Add(-24 * time.Hour)

	toStore := make([]candlestore.Candle, 0, len(candles))
	for _, c := range candles {
		if !latestLive.IsZero() && c.Timestamp.After(liveFloor) {
			stats.SkippedExisting++
			continue
		}
		if !force && overlapsExisting(c.Timestamp, existing) {
			stats.SkippedExisting++
			continue
		}
		toStore = append(toStore, c)
	}

	if len(toStore) > 0 {
		if err := b.store.SaveCandles(ctx, symbol, toStore); err != nil {
			return stats, fmt.Errorf("backfill: persist: %w", err)
		}
	}
	stats.StoredNew = len(toStore)

	return stats, nil
}

func (b *Backfiller) fetchWithRetry(ctx context.Context, externalID string, days int) (providers.HistoricalSeries, error) {
	backoff := b.initialBackoff
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		series, err := b.historical.FetchSeries(ctx, externalID, days)
		if err == nil {
			return series, nil
		}
		lastErr = err
		if !errors.Is(err, providers.ErrRateLimited) && !errors.Is(err, providers.ErrTransient) {
			return providers.HistoricalSeries{}, err
		}
		if attempt == b.maxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return providers.HistoricalSeries{}, ctx.Err()
		}
		backoff *= 2
	}
	return providers.HistoricalSeries{}, fmt.Errorf("backfill: fetch failed after %d retries: %w", b.maxRetries, lastErr)
}

func dedupeAndSortPrices(points []providers.PricePoint) []providers.PricePoint {
	byTs := make(map[int64]float64, len(points))
	for _, p := range points {
		byTs[p.TimestampMs] = p.Price // last value wins
	}
	out := make([]providers.PricePoint, 0, len(byTs))
	for ts, price := range byTs {
		out = append(out, providers.PricePoint{TimestampMs: ts, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out
}

func bucketPrices(points []providers.PricePoint) map[time.Time][]providers.PricePoint {
	buckets := make(map[time.Time][]providers.PricePoint)
	for _, p := range points {
		ts := time.UnixMilli(p.TimestampMs).UTC()
		bucketStart := ts.Truncate(bucketWidth)
		buckets[bucketStart] = append(buckets[bucketStart], p)
	}
	return buckets
}

func sortedBucketKeys(buckets map[time.Time][]providers.PricePoint) []time.Time {
	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

func synthesizeCandle(symbol string, bucketStart time.Time, points []providers.PricePoint) candlestore.Candle {
	open := points[0].Price
	lastClose := points[len(points)-1].Price
	high := open
	low := open
	for _, p := range points {
		if p.Price > high {
			high = p.Price
		}
		if p.Price < low {
			low = p.Price
		}
	}
	return candlestore.Candle{
		Symbol:    symbol,
		Timestamp: bucketStart,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     lastClose,
		Volume:    0,
	}
}

func overlapsExisting(ts time.Time, existing []time.Time) bool {
	for _, e := range existing {
		delta := ts.Sub(e)
		if delta < 0 {
			delta = -delta
		}
		if delta <= overlapWindow {
			return true
		}
	}
	return false
}
