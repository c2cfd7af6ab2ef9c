package tradingloop

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexswing/internal/breakers"
	"dexswing/internal/candlestore"
	"dexswing/internal/executor"
	"dexswing/internal/positions"
	"dexswing/internal/positionstore"
	"dexswing/internal/registry"
	"dexswing/internal/signals"
)

func TestNextAlignedTick_OffsetThirtySeconds(t *testing.T) {
	l := &Loop{tickInterval: 5 * time.Minute, tickOffset: 30 * time.Second}
	now := time.Date(2026, 1, 1, 10, 2, 0, 0, time.UTC)
	next := l.nextAlignedTick(now)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 5, 30, 0, time.UTC), next)
}

func newTestLoop(t *testing.T) (*Loop, *registry.MemStore, *candlestore.MemStore, *positions.Manager) {
	t.Helper()
	ctx := context.Background()
	reg := registry.NewMemStore()
	candles := candlestore.NewMemStore()

	posStore := positionstore.NewMemStore()
	mgr, err := positions.NewManager(ctx, posStore, zap.NewNop(), nil, "u1", 10000, 0.5, positions.ExitConfig{
		StopLossPct: 0.08, TPActivationPct: 0.12, TrailPct: 0.05, TimeStop: 14 * 24 * time.Hour,
	})
	require.NoError(t, err)

	cb := breakers.New(breakers.Config{MaxDailyLossPct: 0.05, MaxDrawdownPct: 0.2, MaxConsecutiveLoss: 5, MaxDailyTrades: 20})

	sigCfg := signals.Config{
		RSIPeriod: 14, RSIOversold: 45, RSIOverbought: 70,
		ShortMAPeriod: 10, LongMAPeriod: 20, MA20Period: 20,
		VolumeThreshold: 1.5, LookbackHours: 24,
	}
	execCfg := executor.Config{InitialBalance: 10000, MaxPositionSizePct: 0.05, MinPositionNotional: 10}

	loop := New(reg, candles, mgr, cb, nil, nil, zap.NewNop(), nil, sigCfg, execCfg, 5*time.Minute, 30*time.Second)
	return loop, reg, candles, mgr
}

func seedUptrendCandles(t *testing.T, store *candlestore.MemStore, symbol string) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-24 * time.Hour).Truncate(5 * time.Minute)
	closes := make([]candlestore.Candle, 288)
	for i := 0; i < 288; i++ {
		price := 100.0
		if i >= 258 {
			price = 100 * (1 + 0.002*float64(i-258))
		}
		vol := 1e6
		if i == 287 {
			vol = 3e6
		}
		closes[i] = candlestore.Candle{
			Symbol:    symbol,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price, High: price, Low: price, Close: price,
			Volume: vol,
		}
	}
	require.NoError(t, store.SaveCandles(ctx, symbol, closes))
}

func TestRunTick_OpensPositionOnMomentumBuy(t *testing.T) {
	loop, reg, candles, mgr := newTestLoop(t)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, "SOL", "addr1", "Solana", 9, "", time.Now())
	require.NoError(t, err)
	seedUptrendCandles(t, candles, "SOL")

	loop.runTick(ctx, time.Now().UTC())

	assert.True(t, mgr.HasOpenPosition("SOL"))
}

func TestRunTick_ResetsDailyCountersOnDateRollover(t *testing.T) {
	loop, _, _, mgr := newTestLoop(t)
	ctx := context.Background()

	_, err := mgr.OpenPosition(ctx, "SOL", 100, 1, time.Now())
	require.NoError(t, err)
	_, err = mgr.ClosePosition(ctx, firstOpenID(mgr, "SOL"), 90, positionstore.ExitStopLoss, time.Now())
	require.NoError(t, err)

	day1 := time.Date(2026, 1, 1, 10, 5, 30, 0, time.UTC)
	loop.runTick(ctx, day1)
	stateBefore := mgr.TradingState(0)
	assert.NotZero(t, stateBefore.DailyTradeCount)

	day2 := time.Date(2026, 1, 2, 10, 5, 30, 0, time.UTC)
	loop.runTick(ctx, day2)
	stateAfter := mgr.TradingState(0)
	assert.Zero(t, stateAfter.DailyPnL)
}

func firstOpenID(mgr *positions.Manager, symbol string) uuid.UUID {
	id, _ := mgr.PositionID(symbol)
	return id
}
