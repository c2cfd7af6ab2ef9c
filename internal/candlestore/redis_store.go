package candlestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists each symbol's candle series as a Redis hash keyed by
// Unix-second timestamp (for idempotent replace-on-write) plus a sorted
// set carrying the same timestamps as scores (for ordered range scans),
// the same split teacher uses for candle/history keys in
// internal/analytics/redis_candle_aggregator.go.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger.Named("candlestore")}
}

func hashKey(symbol string) string { return fmt.Sprintf("candles:%s:data", symbol) }
func indexKey(symbol string) string { return fmt.Sprintf("candles:%s:index", symbol) }
func member(ts time.Time) string   { return fmt.Sprintf("%d", ts.Unix()) }

func (s *RedisStore) SaveCandles(ctx context.Context, symbol string, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, c := range candles {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("candlestore: marshal candle: %w", err)
		}
		key := member(c.Timestamp)
		pipe.HSet(ctx, hashKey(symbol), key, data)
		pipe.ZAdd(ctx, indexKey(symbol), redis.Z{Score: float64(c.Timestamp.Unix()), Member: key})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("candlestore: save %s: %w", symbol, err)
	}
	return nil
}

func (s *RedisStore) LoadCandles(ctx context.Context, symbol string, hoursBack time.Duration) ([]Candle, error) {
	cutoff := time.Now().Add(-hoursBack)
	members, err := s.client.ZRangeByScore(ctx, indexKey(symbol), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoff.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("candlestore: range %s: %w", symbol, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	return s.fetchMembers(ctx, symbol, members)
}

func (s *RedisStore) fetchMembers(ctx context.Context, symbol string, members []string) ([]Candle, error) {
	raw, err := s.client.HMGet(ctx, hashKey(symbol), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("candlestore: hmget %s: %w", symbol, err)
	}
	candles := make([]Candle, 0, len(raw))
	for _, v := range raw {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var c Candle
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			s.logger.Warn("skipping unparseable candle", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func (s *RedisStore) CountSnapshots(ctx context.Context, symbol string) (int, error) {
	n, err := s.client.HLen(ctx, hashKey(symbol)).Result()
	if err != nil {
		return 0, fmt.Errorf("candlestore: count %s: %w", symbol, err)
	}
	return int(n), nil
}

func (s *RedisStore) CleanupOld(ctx context.Context, symbol string, keepHours time.Duration) (int, error) {
	cutoff := time.Now().Add(-keepHours)
	stale, err := s.client.ZRangeByScore(ctx, indexKey(symbol), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("candlestore: scan stale %s: %w", symbol, err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, indexKey(symbol), "-inf", fmt.Sprintf("%d", cutoff.Unix()))
	pipe.HDel(ctx, hashKey(symbol), stale...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("candlestore: cleanup %s: %w", symbol, err)
	}
	return len(stale), nil
}

func (s *RedisStore) GetTimestamps(ctx context.Context, symbol string) ([]time.Time, error) {
	members, err := s.client.ZRangeByScore(ctx, indexKey(symbol), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("candlestore: timestamps %s: %w", symbol, err)
	}
	out := make([]time.Time, 0, len(members))
	for _, m := range members {
		var sec int64
		if _, err := fmt.Sscanf(m, "%d", &sec); err != nil {
			continue
		}
		out = append(out, time.Unix(sec, 0).UTC())
	}
	return out, nil
}
