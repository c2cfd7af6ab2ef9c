// Package candlestore implements C1: a persistent, ordered, per-symbol
// sequence of OHLCV bars with load/save/cleanup semantics.
package candlestore

import (
	"errors"
	"time"
)

// ErrNotFound names the no-candles case. MemStore and RedisStore do not
// return it: loading an unknown symbol yields an empty result.
var ErrNotFound = errors.New("candlestore: symbol not found")

// Candle is a single OHLCV bar. Live candles from the ingestor are
// snapshot-style (Open == High == Low == Close); backfilled candles carry
// real O/H/L/C derived from a finer price series.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the §3 OHLCV invariants. maxSkew bounds how far into the
// future a timestamp may be to tolerate small clock skew.
func (c Candle) Validate(now time.Time, maxSkew time.Duration) error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candlestore: non-positive price")
	}
	if c.Volume < 0 {
		return errors.New("candlestore: negative volume")
	}
	lo := c.Low
	hi := c.High
	minOC := min(c.Open, c.Close)
	maxOC := max(c.Open, c.Close)
	if lo > minOC || maxOC > hi {
		return errors.New("candlestore: OHLC invariant violated")
	}
	if c.Timestamp.After(now.Add(maxSkew)) {
		return errors.New("candlestore: timestamp in the future")
	}
	return nil
}
