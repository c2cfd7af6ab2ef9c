package candlestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandle(ts time.Time, close float64) Candle {
	return Candle{
		Symbol:    "SOL",
		Timestamp: ts,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    100,
	}
}

func TestMemStore_SaveIdempotentSameTimestampReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	ts := time.Now().Add(-time.Hour).Truncate(time.Second)

	require.NoError(t, store.SaveCandles(ctx, "SOL", []Candle{mkCandle(ts, 10)}))
	require.NoError(t, store.SaveCandles(ctx, "SOL", []Candle{mkCandle(ts, 20)}))

	got, err := store.LoadCandles(ctx, "SOL", 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 20.0, got[0].Close)
}

func TestMemStore_LoadCandlesAscendingAndWindowed(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Now().Truncate(time.Second)

	old := mkCandle(now.Add(-48*time.Hour), 1)
	recent1 := mkCandle(now.Add(-2*time.Hour), 2)
	recent2 := mkCandle(now.Add(-1*time.Hour), 3)
	require.NoError(t, store.SaveCandles(ctx, "SOL", []Candle{recent2, old, recent1}))

	got, err := store.LoadCandles(ctx, "SOL", 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))
	assert.Equal(t, 2.0, got[0].Close)
	assert.Equal(t, 3.0, got[1].Close)
}

func TestMemStore_CleanupOldRemovesOnlyStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.SaveCandles(ctx, "SOL", []Candle{
		mkCandle(now.Add(-72*time.Hour), 1),
		mkCandle(now.Add(-1*time.Hour), 2),
	}))

	removed, err := store.CleanupOld(ctx, "SOL", 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := store.CountSnapshots(ctx, "SOL")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCandleValidate(t *testing.T) {
	now := time.Now()
	valid := Candle{Symbol: "SOL", Timestamp: now, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5}
	assert.NoError(t, valid.Validate(now, 5*time.Second))

	bad := valid
	bad.High = 8 // high below open/close
	assert.Error(t, bad.Validate(now, 5*time.Second))

	neg := valid
	neg.Volume = -1
	assert.Error(t, neg.Validate(now, 5*time.Second))

	future := valid
	future.Timestamp = now.Add(time.Hour)
	assert.Error(t, future.Validate(now, 5*time.Second))
}
