package positionstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPosition(symbol string) Position {
	return Position{
		ID:           uuid.New(),
		UserID:       "u1",
		Symbol:       symbol,
		EntryPrice:   100,
		Quantity:     1,
		EntryTime:    time.Now(),
		StopLoss:     92,
		TrailingHigh: 100,
		Status:       StatusOpen,
	}
}

func TestMemStore_InsertRejectsSecondOpenForSameSymbol(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Insert(ctx, openPosition("SOL")))
	err := store.Insert(ctx, openPosition("SOL"))
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestMemStore_UpdateRequiresOpenToClosedTransition(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	p := openPosition("SOL")
	require.NoError(t, store.Insert(ctx, p))

	exitPrice := 110.0
	exitTime := time.Now()
	pnl := 10.0
	closed := p
	closed.Status = StatusClosed
	closed.ExitPrice = &exitPrice
	closed.ExitTime = &exitTime
	closed.RealizedPnL = &pnl
	closed.ExitReason = ExitTakeProfit

	require.NoError(t, store.Update(ctx, closed))

	// re-closing an already-closed position is rejected
	err := store.Update(ctx, closed)
	assert.ErrorIs(t, err, ErrNotOpen)

	open, err := store.LoadOpen(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, open)

	since := exitTime.Add(-time.Minute)
	hist, err := store.LoadClosed(ctx, "u1", since)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ExitTakeProfit, hist[0].ExitReason)
}

func TestPositionValidate(t *testing.T) {
	p := openPosition("SOL")
	assert.NoError(t, p.Validate())

	bad := p
	bad.TrailingHigh = 50
	assert.Error(t, bad.Validate())

	exitPrice := 90.0
	closedMissingFields := p
	closedMissingFields.Status = StatusClosed
	closedMissingFields.ExitPrice = &exitPrice
	assert.Error(t, closedMissingFields.Validate())
}
