package candlestore

import (
	"context"
	"time"
)

// Store is the candle store contract (C1): ordered by timestamp, O(log n)
// range queries, persistence across process restart. Writes are keyed by
// second-precision Unix timestamp — a later Save at the same timestamp
// replaces the earlier candle.
type Store interface {
	// SaveCandles idempotently writes candles for symbol, keyed by
	// timestamp.
	SaveCandles(ctx context.Context, symbol string, candles []Candle) error

	// LoadCandles returns candles with timestamp >= now-hoursBack,
	// ascending by time.
	LoadCandles(ctx context.Context, symbol string, hoursBack time.Duration) ([]Candle, error)

	// CountSnapshots returns the number of stored candles for symbol.
	CountSnapshots(ctx context.Context, symbol string) (int, error)

	// CleanupOld deletes candles older than now-keepHours and returns the
	// number removed.
	CleanupOld(ctx context.Context, symbol string, keepHours time.Duration) (int, error)

	// GetTimestamps returns every stored timestamp for symbol, ascending
	// — used by backfill to detect overlap with the live series.
	GetTimestamps(ctx context.Context, symbol string) ([]time.Time, error)
}
