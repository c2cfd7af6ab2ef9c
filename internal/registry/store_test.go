package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_UpsertThenListActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Now()

	tok, err := store.Upsert(ctx, "SOL", "addr1", "Solana", 9, "momentum", now)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, tok.Status)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "SOL", active[0].Symbol)
}

func TestMemStore_UpsertRejectsAddressReuseUnderDifferentSymbol(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Now()

	_, err := store.Upsert(ctx, "SOL", "addr1", "Solana", 9, "momentum", now)
	require.NoError(t, err)

	_, err = store.Upsert(ctx, "WSOL", "addr1", "Wrapped Solana", 9, "momentum", now)
	assert.ErrorIs(t, err, ErrDuplicateAddress)
}

func TestMemStore_MarkStaleBeforeSkipsProtectedAndFresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()

	_, err := store.Upsert(ctx, "STALE", "a1", "Stale Coin", 9, "", old)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "PROTECTED", "a2", "Protected Coin", 9, "", old)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "FRESH", "a3", "Fresh Coin", 9, "", fresh)
	require.NoError(t, err)

	cutoff := time.Now().Add(-24 * time.Hour)
	n, err := store.MarkStaleBefore(ctx, cutoff, []string{"PROTECTED"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, _, err := store.Get(ctx, "STALE")
	require.NoError(t, err)
	assert.Equal(t, StatusStale, stale.Status)

	protected, _, err := store.Get(ctx, "PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, protected.Status)

	freshTok, _, err := store.Get(ctx, "FRESH")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, freshTok.Status)
}

func TestMemStore_MarkRemovedBeforeOnlyAffectsStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	old := time.Now().Add(-10 * 24 * time.Hour)

	_, err := store.Upsert(ctx, "ACTIVE", "a1", "Active Coin", 9, "", old)
	require.NoError(t, err)
	_, err = store.MarkStaleBefore(ctx, time.Now(), nil)
	require.NoError(t, err)

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	n, err := store.MarkRemovedBefore(ctx, cutoff, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tok, _, err := store.Get(ctx, "ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, StatusRemoved, tok.Status)
}

func TestMemStore_ListActiveWithPositionsIncludesMustTrackAndOpenSymbols(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	old := time.Now().Add(-48 * time.Hour)

	_, err := store.Upsert(ctx, "HELD", "a1", "Held Coin", 9, "", old)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "MUST", "a2", "Must Track Coin", 9, "", old)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "IGNORED", "a3", "Ignored Coin", 9, "", old)
	require.NoError(t, err)

	_, err = store.MarkStaleBefore(ctx, time.Now(), nil)
	require.NoError(t, err)

	tokens, err := store.ListActiveWithPositions(ctx, []string{"HELD"}, []string{"MUST"})
	require.NoError(t, err)

	symbols := make(map[string]bool)
	for _, tok := range tokens {
		symbols[tok.Symbol] = true
	}
	assert.True(t, symbols["HELD"])
	assert.True(t, symbols["MUST"])
	assert.False(t, symbols["IGNORED"])
}

func TestMemStore_EvictOldestActiveSkipsProtected(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	oldest := time.Now().Add(-72 * time.Hour)
	middle := time.Now().Add(-48 * time.Hour)

	_, err := store.Upsert(ctx, "OLDEST", "a1", "Oldest Coin", 9, "", oldest)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "PROTECTED", "a2", "Protected Coin", 9, "", oldest.Add(-time.Hour))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "MIDDLE", "a3", "Middle Coin", 9, "", middle)
	require.NoError(t, err)

	evicted, err := store.EvictOldestActive(ctx, []string{"PROTECTED"})
	require.NoError(t, err)
	assert.Equal(t, "OLDEST", evicted)

	tok, _, err := store.Get(ctx, "OLDEST")
	require.NoError(t, err)
	assert.Equal(t, StatusRemoved, tok.Status)

	n, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
