package executor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"dexswing/internal/breakers"
	"dexswing/internal/signals"
)

type fakePositionView struct {
	open map[string]uuid.UUID
	cash float64
}

func (f fakePositionView) HasOpenPosition(symbol string) bool {
	_, ok := f.open[symbol]
	return ok
}

func (f fakePositionView) PositionID(symbol string) (uuid.UUID, bool) {
	id, ok := f.open[symbol]
	return id, ok
}

func (f fakePositionView) AvailableCash() float64 { return f.cash }

func defaultCfg() Config {
	return Config{InitialBalance: 10000, MaxPositionSizePct: 0.05, MinPositionNotional: 10}
}

func defaultBreakersCfg() breakers.Config {
	return breakers.Config{MaxDailyLossPct: 0.05, MaxDrawdownPct: 0.20, MaxConsecutiveLoss: 5, MaxDailyTrades: 20}
}

func TestProcessSignal_SellClosesExistingPosition(t *testing.T) {
	id := uuid.New()
	view := fakePositionView{open: map[string]uuid.UUID{"SOL": id}, cash: 5000}
	b := breakers.New(defaultBreakersCfg())

	d := ProcessSignal(signals.Sell, "SOL", 100, view, b, breakers.TradingState{InitialBalance: 10000}, defaultCfg())
	assert.Equal(t, Close, d.Kind)
	assert.Equal(t, id, d.PositionID)
}

func TestProcessSignal_SellWithNoPositionSkips(t *testing.T) {
	view := fakePositionView{open: map[string]uuid.UUID{}, cash: 5000}
	b := breakers.New(defaultBreakersCfg())

	d := ProcessSignal(signals.Sell, "SOL", 100, view, b, breakers.TradingState{InitialBalance: 10000}, defaultCfg())
	assert.Equal(t, Skip, d.Kind)
	assert.Equal(t, "no position", d.SkipReason)
}

func TestProcessSignal_HoldAlwaysSkips(t *testing.T) {
	view := fakePositionView{open: map[string]uuid.UUID{}, cash: 5000}
	b := breakers.New(defaultBreakersCfg())

	d := ProcessSignal(signals.Hold, "SOL", 100, view, b, breakers.TradingState{InitialBalance: 10000}, defaultCfg())
	assert.Equal(t, Skip, d.Kind)
	assert.Equal(t, "hold", d.SkipReason)
}

func TestProcessSignal_BuySkipsWhenAlreadyPositioned(t *testing.T) {
	view := fakePositionView{open: map[string]uuid.UUID{"SOL": uuid.New()}, cash: 5000}
	b := breakers.New(defaultBreakersCfg())

	d := ProcessSignal(signals.Buy, "SOL", 100, view, b, breakers.TradingState{InitialBalance: 10000}, defaultCfg())
	assert.Equal(t, Skip, d.Kind)
	assert.Equal(t, "already positioned", d.SkipReason)
}

func TestProcessSignal_BuyDeniedByCircuitBreakerButCloseStillAllowed(t *testing.T) {
	id := uuid.New()
	view := fakePositionView{open: map[string]uuid.UUID{"SOL": id}, cash: 5000}
	b := breakers.New(defaultBreakersCfg())
	state := breakers.TradingState{InitialBalance: 10000, DailyPnL: -600}

	buyDecision := ProcessSignal(signals.Buy, "ETH", 100, fakePositionView{cash: 5000}, b, state, defaultCfg())
	assert.Equal(t, Skip, buyDecision.Kind)
	assert.Equal(t, "circuit breaker: DailyLoss", buyDecision.SkipReason)

	closeDecision := ProcessSignal(signals.Sell, "SOL", 100, view, b, state, defaultCfg())
	assert.Equal(t, Close, closeDecision.Kind)
	assert.Equal(t, id, closeDecision.PositionID)
}

func TestProcessSignal_BuySizingAndMinNotionalFloor(t *testing.T) {
	view := fakePositionView{open: map[string]uuid.UUID{}, cash: 5}
	b := breakers.New(defaultBreakersCfg())

	d := ProcessSignal(signals.Buy, "SOL", 100, view, b, breakers.TradingState{InitialBalance: 10000}, defaultCfg())
	assert.Equal(t, Skip, d.Kind)
	assert.Equal(t, "position too small", d.SkipReason)
}

func TestProcessSignal_BuyComputesQuantityFromTargetNotional(t *testing.T) {
	view := fakePositionView{open: map[string]uuid.UUID{}, cash: 10000}
	b := breakers.New(defaultBreakersCfg())

	d := ProcessSignal(signals.Buy, "SOL", 100, view, b, breakers.TradingState{InitialBalance: 10000}, defaultCfg())
	assert.Equal(t, Execute, d.Kind)
	// target notional = 10000*0.05 = 500, quantity = 500/100 = 5
	assert.InDelta(t, 5.0, d.Quantity, 0.0001)
}
