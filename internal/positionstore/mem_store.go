package positionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store used by tests; the engine itself always
// uses RedisStore.
type MemStore struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]Position
	openBySym   map[string]uuid.UUID // (user_id + ":" + symbol) -> id
}

func NewMemStore() *MemStore {
	return &MemStore{
		byID:      make(map[uuid.UUID]Position),
		openBySym: make(map[string]uuid.UUID),
	}
}

func openKey(userID, symbol string) string { return userID + ":" + symbol }

func (s *MemStore) Insert(ctx context.Context, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status == StatusOpen {
		key := openKey(p.UserID, p.Symbol)
		if _, exists := s.openBySym[key]; exists {
			return ErrAlreadyOpen
		}
		s.openBySym[key] = p.ID
	}
	s.byID[p.ID] = p
	return nil
}

func (s *MemStore) Update(ctx context.Context, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status != StatusOpen || p.Status != StatusClosed {
		return ErrNotOpen
	}
	s.byID[p.ID] = p
	delete(s.openBySym, openKey(p.UserID, p.Symbol))
	return nil
}

func (s *MemStore) LoadOpen(ctx context.Context, userID string) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Position, 0)
	for _, p := range s.byID {
		if p.UserID == userID && p.Status == StatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemStore) LoadClosed(ctx context.Context, userID string, since time.Time) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Position, 0)
	for _, p := range s.byID {
		if p.UserID == userID && p.Status == StatusClosed && p.ExitTime != nil && !p.ExitTime.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

