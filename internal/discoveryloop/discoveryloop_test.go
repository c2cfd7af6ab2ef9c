package discoveryloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexswing/internal/backfill"
	"dexswing/internal/candlestore"
	"dexswing/internal/providers"
	"dexswing/internal/ratelimit"
	"dexswing/internal/registry"
)

type fakeDiscovery struct {
	candidates []providers.DiscoveryCandidate
}

func (f *fakeDiscovery) FetchTrending(ctx context.Context, limit int) ([]providers.DiscoveryCandidate, error) {
	return f.candidates, nil
}

type fakeHistorical struct{}

func (fakeHistorical) FetchSeries(ctx context.Context, externalID string, days int) (providers.HistoricalSeries, error) {
	now := time.Now().UTC().UnixMilli()
	return providers.HistoricalSeries{
		Prices:  []providers.PricePoint{{TimestampMs: now - 3600_000, Price: 1.0}, {TimestampMs: now, Price: 1.1}},
		Volumes: []providers.VolumePoint{{TimestampMs: now - 3600_000, Volume24h: 100}, {TimestampMs: now, Volume24h: 200}},
	}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(symbol, address string) (string, error) { return "ext-" + symbol, nil }

type fakeOpenSymbols struct{ symbols []string }

func (f fakeOpenSymbols) OpenSymbols() []string { return f.symbols }

func newTestLoop(t *testing.T, candidates []providers.DiscoveryCandidate, mustTrack []string, maxWatchlist int) (*Loop, *registry.MemStore, *candlestore.MemStore) {
	t.Helper()
	reg := registry.NewMemStore()
	candles := candlestore.NewMemStore()
	disc := &fakeDiscovery{candidates: candidates}
	bf := backfill.New(fakeResolver{}, fakeHistorical{}, candles, zap.NewNop(), 3, time.Millisecond)
	limiter := ratelimit.PerSecond(1000)
	filters := SafetyFilters{MinLiquidityUSD: 10000, MinVolume24hUSD: 5000, MinFDVUSD: 0, MaxRank: 50}

	loop := New(reg, candles, disc, bf, limiter, limiter, fakeOpenSymbols{}, nil, zap.NewNop(), 10, filters, mustTrack, maxWatchlist, 24*time.Hour, 7*24*time.Hour, 7)
	return loop, reg, candles
}

func TestRunTick_FiltersOutCandidatesBelowThresholds(t *testing.T) {
	candidates := []providers.DiscoveryCandidate{
		{Address: "addr1", Symbol: "GOOD", LiquidityUSD: 20000, Volume24hUSD: 10000, FDVUSD: 1, Rank: 1},
		{Address: "addr2", Symbol: "THIN", LiquidityUSD: 100, Volume24hUSD: 10000, FDVUSD: 1, Rank: 2},
	}
	loop, reg, _ := newTestLoop(t, candidates, nil, 50)
	ctx := context.Background()

	loop.runTick(ctx)

	_, found, err := reg.Get(ctx, "GOOD")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = reg.Get(ctx, "THIN")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunTick_BackfillsOnlyBrandNewTokens(t *testing.T) {
	candidates := []providers.DiscoveryCandidate{
		{Address: "addr1", Symbol: "NEW", LiquidityUSD: 20000, Volume24hUSD: 10000, FDVUSD: 1, Rank: 1},
	}
	loop, reg, candles := newTestLoop(t, candidates, nil, 50)
	ctx := context.Background()

	loop.runTick(ctx)

	_, found, err := reg.Get(ctx, "NEW")
	require.NoError(t, err)
	require.True(t, found)

	count, err := candles.CountSnapshots(ctx, "NEW")
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestRunTick_RotatesStaleAndRemovedSkippingProtected(t *testing.T) {
	loop, reg, _ := newTestLoop(t, nil, []string{"KEEP"}, 50)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	_, err := reg.Upsert(ctx, "OLD", "addrOld", "Old", 9, "", old)
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "KEEP", "addrKeep", "Keep", 9, "", old)
	require.NoError(t, err)

	loop.runTick(ctx)

	oldTok, _, err := reg.Get(ctx, "OLD")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusStale, oldTok.Status)

	keepTok, _, err := reg.Get(ctx, "KEEP")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusActive, keepTok.Status)
}

func TestRunTick_CapsWatchlistByEvictingOldestActive(t *testing.T) {
	loop, reg, _ := newTestLoop(t, nil, nil, 1)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, "FIRST", "addr1", "First", 9, "", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "SECOND", "addr2", "Second", 9, "", time.Now())
	require.NoError(t, err)

	loop.capWatchlist(ctx, nil)

	firstTok, _, err := reg.Get(ctx, "FIRST")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusRemoved, firstTok.Status)

	secondTok, _, err := reg.Get(ctx, "SECOND")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusActive, secondTok.Status)
}
