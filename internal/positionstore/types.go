// Package positionstore implements C2: the durable record of open/closed
// positions per user, with a uniqueness constraint of at most one Open
// position per (user_id, symbol).
package positionstore

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyOpen is returned by Insert when an Open position already
// exists for the (user_id, symbol) pair.
var ErrAlreadyOpen = errors.New("positionstore: open position already exists for symbol")

// ErrNotFound is returned when a position id is unknown to the store.
var ErrNotFound = errors.New("positionstore: position not found")

// ErrNotOpen is returned by Update when the transition requires the
// current row to be Open and it isn't.
var ErrNotOpen = errors.New("positionstore: position is not open")

// Status is the Position lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTimeStop   ExitReason = "time_stop"
	ExitManual     ExitReason = "manual"
)

// Position is a single paper (or live) trade lifecycle record.
type Position struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	Symbol       string     `json:"symbol"`
	EntryPrice   float64    `json:"entry_price"`
	Quantity     float64    `json:"quantity"`
	EntryTime    time.Time  `json:"entry_time"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfit   *float64   `json:"take_profit,omitempty"`
	TrailingHigh float64    `json:"trailing_high"`
	Status       Status     `json:"status"`
	RealizedPnL  *float64   `json:"realized_pnl,omitempty"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
	ExitReason   ExitReason `json:"exit_reason,omitempty"`
}

// IsOpen reports whether the position is still live.
func (p Position) IsOpen() bool { return p.Status == StatusOpen }

// Validate checks the §3 invariants for a single row.
func (p Position) Validate() error {
	if p.Status == StatusOpen {
		if p.ExitPrice != nil || p.ExitTime != nil || p.RealizedPnL != nil || p.ExitReason != "" {
			return errors.New("positionstore: open position must not carry exit fields")
		}
		if p.TrailingHigh < p.EntryPrice {
			return errors.New("positionstore: trailing_high must be >= entry_price while open")
		}
	}
	if p.Status == StatusClosed {
		if p.ExitPrice == nil || p.ExitTime == nil || p.RealizedPnL == nil || p.ExitReason == "" {
			return errors.New("positionstore: closed position must carry all exit fields")
		}
	}
	return nil
}
