// Package executor implements C9: a pure filter turning a signal into an
// Execute/Close/Skip decision using the Position Manager and Circuit
// Breakers. It never mutates state itself — the trading loop applies the
// returned decision.
package executor

import (
	"github.com/google/uuid"

	"dexswing/internal/breakers"
	"dexswing/internal/signals"
)

// Kind is the decision variant.
type Kind string

const (
	Execute Kind = "execute"
	Close   Kind = "close"
	Skip    Kind = "skip"
)

// Decision is the executor's output.
type Decision struct {
	Kind         Kind
	PositionID   uuid.UUID
	Symbol       string
	Quantity     float64
	CurrentPrice float64
	SkipReason   string
}

// PositionView is the subset of positions.Manager the executor consults.
type PositionView interface {
	HasOpenPosition(symbol string) bool
	PositionID(symbol string) (uuid.UUID, bool)
	AvailableCash() float64
}

// Config carries the sizing parameters from config.EngineConfig /
// config.BreakersConfig that the executor needs.
type Config struct {
	InitialBalance      float64
	MaxPositionSizePct  float64
	MinPositionNotional float64
}

// ProcessSignal implements process_signal.
func ProcessSignal(signal signals.Signal, symbol string, currentPrice float64, positionView PositionView, breakersCheck *breakers.CircuitBreakers, tradingState breakers.TradingState, cfg Config) Decision {
	switch signal {
	case signals.Sell:
		if id, ok := positionView.PositionID(symbol); ok {
			return Decision{Kind: Close, PositionID: id, Symbol: symbol, CurrentPrice: currentPrice}
		}
		return Decision{Kind: Skip, Symbol: symbol, SkipReason: "no position"}

	case signals.Hold:
		return Decision{Kind: Skip, Symbol: symbol, SkipReason: "hold"}

	case signals.Buy:
		if positionView.HasOpenPosition(symbol) {
			return Decision{Kind: Skip, Symbol: symbol, SkipReason: "already positioned"}
		}
		if ok, reason := breakersCheck.Check(tradingState); !ok {
			return Decision{Kind: Skip, Symbol: symbol, SkipReason: "circuit breaker: " + string(reason)}
		}

		target := cfg.InitialBalance * cfg.MaxPositionSizePct
		available := positionView.AvailableCash()
		actual := target
		if available < actual {
			actual = available
		}
		if actual < cfg.MinPositionNotional {
			return Decision{Kind: Skip, Symbol: symbol, SkipReason: "position too small"}
		}
		if currentPrice <= 0 {
			return Decision{Kind: Skip, Symbol: symbol, SkipReason: "invalid price"}
		}

		quantity := actual / currentPrice
		return Decision{Kind: Execute, Symbol: symbol, Quantity: quantity, CurrentPrice: currentPrice}

	default:
		return Decision{Kind: Skip, Symbol: symbol, SkipReason: "unknown signal"}
	}
}
