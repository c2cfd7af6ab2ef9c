// Package providers implements the §6 external collaborators: the live
// quote provider, the discovery (trending) provider, and the historical
// price/volume provider. Only the shape of returned data is specified —
// these are thin typed HTTP clients, not domain logic.
package providers

import (
	"errors"
	"time"
)

var (
	ErrRateLimited = errors.New("providers: rate limited by upstream")
	ErrNotFound    = errors.New("providers: not found")
	ErrTransient   = errors.New("providers: transient failure")
)

// Quote is the live price snapshot C4 appends as a candle.
type Quote struct {
	Price     float64
	Volume24h float64
	Timestamp time.Time
}

// DiscoveryCandidate is a single ranked entry returned by the trending
// endpoint, before safety filtering.
type DiscoveryCandidate struct {
	Address      string
	Symbol       string
	Name         string
	Decimals     int
	LiquidityUSD float64
	Volume24hUSD float64
	FDVUSD       float64
	PriceUSD     float64
	Rank         int
}

// PricePoint is a single (timestamp_ms, price) sample from the
// historical series.
type PricePoint struct {
	TimestampMs int64
	Price       float64
}

// VolumePoint is a single (timestamp_ms, rolling 24h volume) sample.
type VolumePoint struct {
	TimestampMs int64
	Volume24h   float64
}

// HistoricalSeries bundles the two parallel series returned by the
// historical provider for a given external id and window.
type HistoricalSeries struct {
	Prices  []PricePoint
	Volumes []VolumePoint
}
