package registry

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the token registry contract (C3).
type Store interface {
	// ListActive returns every token with Status == Active.
	ListActive(ctx context.Context) ([]TrackedToken, error)

	// ListActiveWithPositions returns tokens that are Active OR whose
	// symbol is in openSymbols OR mustTrack.
	ListActiveWithPositions(ctx context.Context, openSymbols, mustTrack []string) ([]TrackedToken, error)

	// Upsert inserts or refreshes a token: sets last_seen_trending = now
	// and status = Active.
	Upsert(ctx context.Context, symbol, address, name string, decimals int, strategyType string, now time.Time) (TrackedToken, error)

	// MarkStaleBefore transitions Active tokens whose last_seen_trending
	// is before cutoff to Stale, skipping protected symbols.
	MarkStaleBefore(ctx context.Context, cutoff time.Time, protected []string) (int, error)

	// MarkRemovedBefore transitions Stale tokens whose last_seen_trending
	// is before cutoff to Removed, skipping protected symbols.
	MarkRemovedBefore(ctx context.Context, cutoff time.Time, protected []string) (int, error)

	// UpdateStrategyConfig overwrites a token's opaque strategy config.
	UpdateStrategyConfig(ctx context.Context, symbol string, cfg json.RawMessage) error

	// Get returns a single token by symbol.
	Get(ctx context.Context, symbol string) (TrackedToken, bool, error)

	// CountActive returns the number of Active tokens — used by the discovery
	// loop's watchlist cap.
	CountActive(ctx context.Context) (int, error)

	// EvictOldestActive removes the Active token with the oldest
	// last_seen_trending, skipping protected symbols. Returns the evicted
	// symbol, or "" if none were eligible.
	EvictOldestActive(ctx context.Context, protected []string) (string, error)
}
