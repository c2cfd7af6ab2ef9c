package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexswing/internal/candlestore"
	"dexswing/internal/providers"
)

type fakeResolver struct {
	ids map[string]string
}

func (f fakeResolver) Resolve(symbol, address string) (string, error) {
	if id, ok := f.ids[symbol]; ok {
		return id, nil
	}
	return "", ErrTokenNotFound
}

type fakeHistorical struct {
	series providers.HistoricalSeries
	err    error
	calls  int
}

func (f *fakeHistorical) FetchSeries(ctx context.Context, externalID string, days int) (providers.HistoricalSeries, error) {
	f.calls++
	if f.err != nil {
		return providers.HistoricalSeries{}, f.err
	}
	return f.series, nil
}

func msAt(base time.Time, offset time.Duration) int64 {
	return base.Add(offset).UnixMilli()
}

func TestBackfiller_Run_BucketsAndPersistsNewCandles(t *testing.T) {
	base := time.Now().UTC().Add(-10 * 24 * time.Hour).Truncate(5 * time.Minute)
	series := providers.HistoricalSeries{
		Prices: []providers.PricePoint{
			{TimestampMs: msAt(base, 0), Price: 100},
			{TimestampMs: msAt(base, 2 * time.Minute), Price: 102},
			{TimestampMs: msAt(base, 4 * time.Minute), Price: 101},
			{TimestampMs: msAt(base, 5 * time.Minute), Price: 103},
		},
	}

	resolver := fakeResolver{ids: map[string]string{"SOL": "solana"}}
	historical := &fakeHistorical{series: series}
	store := candlestore.NewMemStore()

	b := New(resolver, historical, store, zap.NewNop(), 3, 10*time.Millisecond)
	stats, err := b.Run(context.Background(), "SOL", "addr1", 7, false)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.FetchedPoints)
	assert.Equal(t, 2, stats.ConvertedCandles)
	assert.Equal(t, 2, stats.StoredNew)

	loaded, err := store.LoadCandles(context.Background(), "SOL", 24*365*time.Hour)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.InDelta(t, 100, loaded[0].Open, 0.0001)
	assert.InDelta(t, 102, loaded[0].High, 0.0001)
	assert.InDelta(t, 101, loaded[0].Close, 0.0001)
}

func TestBackfiller_Run_UnknownTokenFails(t *testing.T) {
	resolver := fakeResolver{ids: map[string]string{}}
	historical := &fakeHistorical{}
	store := candlestore.NewMemStore()

	b := New(resolver, historical, store, zap.NewNop(), 3, time.Millisecond)
	_, err := b.Run(context.Background(), "UNKNOWN", "addr", 7, false)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestBackfiller_Run_SkipsOverlapWithExistingWithoutForce(t *testing.T) {
	base := time.Now().UTC().Add(-10 * 24 * time.Hour).Truncate(5 * time.Minute)
	ctx := context.Background()
	store := candlestore.NewMemStore()
	require.NoError(t, store.SaveCandles(ctx, "SOL", []candlestore.Candle{
		{Symbol: "SOL", Timestamp: base, Open: 99, High: 99, Low: 99, Close: 99, Volume: 1},
	}))

	series := providers.HistoricalSeries{
		Prices: []providers.PricePoint{
			{TimestampMs: msAt(base, 10 * time.Second), Price: 100},
		},
	}
	resolver := fakeResolver{ids: map[string]string{"SOL": "solana"}}
	historical := &fakeHistorical{series: series}

	b := New(resolver, historical, store, zap.NewNop(), 3, time.Millisecond)
	stats, err := b.Run(ctx, "SOL", "addr1", 7, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedExisting)
	assert.Equal(t, 0, stats.StoredNew)
}

func TestBackfiller_Run_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	base := time.Now().UTC().Add(-10 * 24 * time.Hour).Truncate(5 * time.Minute)
	series := providers.HistoricalSeries{
		Prices: []providers.PricePoint{{TimestampMs: msAt(base, 0), Price: 100}},
	}
	resolver := fakeResolver{ids: map[string]string{"SOL": "solana"}}

	attempt := 0
	historical := &countingHistorical{
		fn: func() (providers.HistoricalSeries, error) {
			attempt++
			if attempt < 2 {
				return providers.HistoricalSeries{}, providers.ErrRateLimited
			}
			return series, nil
		},
	}
	store := candlestore.NewMemStore()

	b := New(resolver, historical, store, zap.NewNop(), 3, time.Millisecond)
	stats, err := b.Run(context.Background(), "SOL", "addr1", 7, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.StoredNew)
	assert.Equal(t, 2, attempt)
}

type countingHistorical struct {
	fn func() (providers.HistoricalSeries, error)
}

func (c *countingHistorical) FetchSeries(ctx context.Context, externalID string, days int) (providers.HistoricalSeries, error) {
	return c.fn()
}

func TestBackfiller_Run_NonTransientErrorDoesNotRetry(t *testing.T) {
	resolver := fakeResolver{ids: map[string]string{"SOL": "solana"}}
	historical := &fakeHistorical{err: errors.New("boom")}
	store := candlestore.NewMemStore()

	b := New(resolver, historical, store, zap.NewNop(), 3, time.Millisecond)
	_, err := b.Run(context.Background(), "SOL", "addr1", 7, false)
	assert.Error(t, err)
	assert.Equal(t, 1, historical.calls)
}
