package ingestor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexswing/internal/candlestore"
	"dexswing/internal/providers"
	"dexswing/internal/ratelimit"
	"dexswing/internal/registry"
)

type fakeQuotes struct {
	price float64
}

func (f fakeQuotes) GetQuote(ctx context.Context, address string) (providers.Quote, error) {
	return providers.Quote{Price: f.price, Volume24h: 1000, Timestamp: time.Now()}, nil
}

type fakeOpenSymbols struct{ symbols []string }

func (f fakeOpenSymbols) OpenSymbols() []string { return f.symbols }

func TestNextAlignedTick_RoundsUpToBoundary(t *testing.T) {
	in := &Ingestor{tickInterval: 5 * time.Minute}
	now := time.Date(2026, 1, 1, 10, 2, 30, 0, time.UTC)
	next := in.nextAlignedTick(now)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC), next)
}

func TestNextAlignedTick_ExactBoundaryAdvances(t *testing.T) {
	in := &Ingestor{tickInterval: 5 * time.Minute}
	now := time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)
	next := in.nextAlignedTick(now)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 10, 0, 0, time.UTC), next)
}

func TestIngestor_RunTick_PersistsSnapshotCandlePerActiveSymbol(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemStore()
	_, err := reg.Upsert(ctx, "SOL", "addr1", "Solana", 9, "", time.Now())
	require.NoError(t, err)

	store := candlestore.NewMemStore()
	limiter := ratelimit.PerSecond(100)
	in := New(reg, store, fakeQuotes{price: 150}, limiter, fakeOpenSymbols{}, nil, zap.NewNop(), nil, 48*time.Hour, 5*time.Minute)

	tick := time.Now().UTC().Truncate(5 * time.Minute)
	in.runTick(ctx, tick)

	loaded, err := store.LoadCandles(ctx, "SOL", time.Hour)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.InDelta(t, 150, loaded[0].Close, 0.0001)
	assert.Equal(t, tick, loaded[0].Timestamp)
}
