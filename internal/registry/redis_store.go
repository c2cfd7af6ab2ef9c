package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists the registry as a single hash (symbol -> JSON
// TrackedToken) plus a side index (address -> symbol) for the duplicate
// address check, the same hash-plus-index shape positionstore uses for
// its open-position constraint.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger.Named("registry")}
}

const (
	tokensKey    = "registry:tokens"
	addressesKey = "registry:addresses"
)

func (s *RedisStore) loadAll(ctx context.Context) (map[string]TrackedToken, error) {
	raw, err := s.client.HGetAll(ctx, tokensKey).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: load all: %w", err)
	}
	out := make(map[string]TrackedToken, len(raw))
	for sym, v := range raw {
		var t TrackedToken
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			s.logger.Warn("skipping unparseable token", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		out[sym] = t
	}
	return out, nil
}

func (s *RedisStore) save(ctx context.Context, t TrackedToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("registry: marshal %s: %w", t.Symbol, err)
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, tokensKey, t.Symbol, data)
	pipe.HSet(ctx, addressesKey, t.Address, t.Symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("registry: save %s: %w", t.Symbol, err)
	}
	return nil
}

func (s *RedisStore) ListActive(ctx context.Context) ([]TrackedToken, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TrackedToken, 0)
	for _, t := range all {
		if t.Status == StatusActive {
			out = append(out, t)
		}
	}
	sortBySymbol(out)
	return out, nil
}

func (s *RedisStore) ListActiveWithPositions(ctx context.Context, openSymbols, mustTrack []string) ([]TrackedToken, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool)
	for _, sym := range openSymbols {
		want[sym] = true
	}
	for _, sym := range mustTrack {
		want[sym] = true
	}
	out := make([]TrackedToken, 0)
	for _, t := range all {
		if t.Status == StatusActive || want[t.Symbol] {
			out = append(out, t)
		}
	}
	sortBySymbol(out)
	return out, nil
}

func (s *RedisStore) Upsert(ctx context.Context, symbol, address, name string, decimals int, strategyType string, now time.Time) (TrackedToken, error) {
	existingSym, err := s.client.HGet(ctx, addressesKey, address).Result()
	if err != nil && err != redis.Nil {
		return TrackedToken{}, fmt.Errorf("registry: check address %s: %w", address, err)
	}
	if existingSym != "" && existingSym != symbol {
		return TrackedToken{}, ErrDuplicateAddress
	}

	raw, err := s.client.HGet(ctx, tokensKey, symbol).Result()
	var tok TrackedToken
	if err == redis.Nil {
		tok = TrackedToken{ID: symbol, Symbol: symbol, CreatedAt: now}
	} else if err != nil {
		return TrackedToken{}, fmt.Errorf("registry: load %s: %w", symbol, err)
	} else if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return TrackedToken{}, fmt.Errorf("registry: unmarshal %s: %w", symbol, err)
	}

	tok.Address = address
	tok.Name = name
	tok.Decimals = decimals
	if strategyType != "" {
		tok.StrategyType = strategyType
	}
	tok.Status = StatusActive
	tok.LastSeenTrending = now
	tok.UpdatedAt = now

	if err := s.save(ctx, tok); err != nil {
		return TrackedToken{}, err
	}
	return tok, nil
}

func (s *RedisStore) MarkStaleBefore(ctx context.Context, cutoff time.Time, protected []string) (int, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for sym, t := range all {
		if t.Status != StatusActive || isProtected(sym, protected) || !t.LastSeenTrending.Before(cutoff) {
			continue
		}
		t.Status = StatusStale
		t.UpdatedAt = time.Now()
		if err := s.save(ctx, t); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *RedisStore) MarkRemovedBefore(ctx context.Context, cutoff time.Time, protected []string) (int, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for sym, t := range all {
		if t.Status != StatusStale || isProtected(sym, protected) || !t.LastSeenTrending.Before(cutoff) {
			continue
		}
		t.Status = StatusRemoved
		t.UpdatedAt = time.Now()
		if err := s.save(ctx, t); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *RedisStore) UpdateStrategyConfig(ctx context.Context, symbol string, cfg json.RawMessage) error {
	raw, err := s.client.HGet(ctx, tokensKey, symbol).Result()
	if err == redis.Nil {
		return nil
	} else if err != nil {
		return fmt.Errorf("registry: load %s: %w", symbol, err)
	}
	var t TrackedToken
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return fmt.Errorf("registry: unmarshal %s: %w", symbol, err)
	}
	t.StrategyConfig = cfg
	t.UpdatedAt = time.Now()
	return s.save(ctx, t)
}

func (s *RedisStore) Get(ctx context.Context, symbol string) (TrackedToken, bool, error) {
	raw, err := s.client.HGet(ctx, tokensKey, symbol).Result()
	if err == redis.Nil {
		return TrackedToken{}, false, nil
	} else if err != nil {
		return TrackedToken{}, false, fmt.Errorf("registry: get %s: %w", symbol, err)
	}
	var t TrackedToken
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return TrackedToken{}, false, fmt.Errorf("registry: unmarshal %s: %w", symbol, err)
	}
	return t, true, nil
}

func (s *RedisStore) CountActive(ctx context.Context) (int, error) {
	active, err := s.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (s *RedisStore) EvictOldestActive(ctx context.Context, protected []string) (string, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return "", err
	}
	var oldestSym string
	var oldestTime time.Time
	for sym, t := range all {
		if t.Status != StatusActive || isProtected(sym, protected) {
			continue
		}
		if oldestSym == "" || t.LastSeenTrending.Before(oldestTime) {
			oldestSym = sym
			oldestTime = t.LastSeenTrending
		}
	}
	if oldestSym == "" {
		return "", nil
	}
	t := all[oldestSym]
	t.Status = StatusRemoved
	t.UpdatedAt = time.Now()
	if err := s.save(ctx, t); err != nil {
		return "", err
	}
	return oldestSym, nil
}
