package positionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists positions as a Redis hash per user (field = position
// id), plus a side index of the currently-open id per symbol so the
// one-Open-per-symbol constraint can be checked without a full scan —
// the same hash-plus-index shape RedisStore in candlestore uses.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger.Named("positionstore")}
}

func positionsKey(userID string) string { return fmt.Sprintf("positions:%s:all", userID) }
func openIndexKey(userID string) string { return fmt.Sprintf("positions:%s:open", userID) }

func (s *RedisStore) Insert(ctx context.Context, p Position) error {
	key := openKey(p.UserID, p.Symbol)
	if p.Status == StatusOpen {
		existing, err := s.client.HGet(ctx, openIndexKey(p.UserID), p.Symbol).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("positionstore: check open %s: %w", key, err)
		}
		if existing != "" {
			return ErrAlreadyOpen
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("positionstore: marshal: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, positionsKey(p.UserID), p.ID.String(), data)
	if p.Status == StatusOpen {
		pipe.HSet(ctx, openIndexKey(p.UserID), p.Symbol, p.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("positionstore: insert %s: %w", p.ID, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, p Position) error {
	raw, err := s.client.HGet(ctx, positionsKey(p.UserID), p.ID.String()).Result()
	if err == redis.Nil {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("positionstore: load for update: %w", err)
	}

	var existing Position
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return fmt.Errorf("positionstore: unmarshal existing: %w", err)
	}
	if existing.Status != StatusOpen || p.Status != StatusClosed {
		return ErrNotOpen
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("positionstore: marshal: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, positionsKey(p.UserID), p.ID.String(), data)
	pipe.HDel(ctx, openIndexKey(p.UserID), p.Symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("positionstore: update %s: %w", p.ID, err)
	}
	return nil
}

func (s *RedisStore) LoadOpen(ctx context.Context, userID string) ([]Position, error) {
	all, err := s.loadAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0)
	for _, p := range all {
		if p.Status == StatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *RedisStore) LoadClosed(ctx context.Context, userID string, since time.Time) ([]Position, error) {
	all, err := s.loadAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0)
	for _, p := range all {
		if p.Status == StatusClosed && p.ExitTime != nil && !p.ExitTime.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *RedisStore) loadAll(ctx context.Context, userID string) ([]Position, error) {
	raw, err := s.client.HGetAll(ctx, positionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("positionstore: load all %s: %w", userID, err)
	}
	out := make([]Position, 0, len(raw))
	for id, v := range raw {
		var p Position
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			s.logger.Warn("skipping unparseable position", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

