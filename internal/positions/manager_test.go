package positions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexswing/internal/positionstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := positionstore.NewMemStore()
	m, err := NewManager(context.Background(), store, zap.NewNop(), nil, "u1", 10000, 0.5, ExitConfig{
		StopLossPct:     0.08,
		TPActivationPct: 0.12,
		TrailPct:        0.05,
		TimeStop:        14 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestOpenPosition_RejectsSecondOpenForSymbol(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.OpenPosition(ctx, "SOL", 100, 1, now)
	require.NoError(t, err)

	_, err = m.OpenPosition(ctx, "SOL", 100, 1, now)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestOpenPosition_RejectsWhenCashInsufficient(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.OpenPosition(ctx, "SOL", 100, 1000, time.Now())
	assert.ErrorIs(t, err, ErrInsufficientCash)
}

func TestCheckExits_TrailingStopExit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	id, err := m.OpenPosition(ctx, "SOL", 100, 1, now)
	require.NoError(t, err)

	// Price rallies to activate the trailing take-profit at 112, then
	// pulls back through trailing_high*(1-trail_pct).
	_, err = m.CheckExits(ctx, map[string]float64{"SOL": 120}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, m.HasOpenPosition("SOL"))

	closed, err := m.CheckExits(ctx, map[string]float64{"SOL": 113}, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, id, closed[0])
	assert.False(t, m.HasOpenPosition("SOL"))
}

func TestCheckExits_StopLossPrecedesTakeProfit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.OpenPosition(ctx, "SOL", 100, 1, now)
	require.NoError(t, err)

	// Crash straight through stop_loss (92) without ever activating TP.
	closed, err := m.CheckExits(ctx, map[string]float64{"SOL": 90}, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.False(t, m.HasOpenPosition("SOL"))
}

func TestClosePosition_UpdatesConsecutiveLossesAndCash(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	id, err := m.OpenPosition(ctx, "SOL", 100, 1, now)
	require.NoError(t, err)

	pnl, err := m.ClosePosition(ctx, id, 90, positionstore.ExitStopLoss, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Less(t, pnl, 0.0)

	state := m.TradingState(m.AvailableCash())
	assert.Equal(t, 1, state.ConsecutiveLosses)
}
