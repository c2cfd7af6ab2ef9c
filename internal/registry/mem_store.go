package registry

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemStore is an in-process Store used by tests.
type MemStore struct {
	mu     sync.Mutex
	bySym  map[string]TrackedToken
	byAddr map[string]string // address -> symbol
	seq    int
}

func NewMemStore() *MemStore {
	return &MemStore{bySym: make(map[string]TrackedToken), byAddr: make(map[string]string)}
}

func isProtected(symbol string, protected []string) bool {
	for _, p := range protected {
		if p == symbol {
			return true
		}
	}
	return false
}

func (s *MemStore) ListActive(ctx context.Context) ([]TrackedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TrackedToken, 0)
	for _, t := range s.bySym {
		if t.Status == StatusActive {
			out = append(out, t)
		}
	}
	sortBySymbol(out)
	return out, nil
}

func (s *MemStore) ListActiveWithPositions(ctx context.Context, openSymbols, mustTrack []string) ([]TrackedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool)
	for _, sym := range openSymbols {
		want[sym] = true
	}
	for _, sym := range mustTrack {
		want[sym] = true
	}

	out := make([]TrackedToken, 0)
	for _, t := range s.bySym {
		if t.Status == StatusActive || want[t.Symbol] {
			out = append(out, t)
		}
	}
	sortBySymbol(out)
	return out, nil
}

func (s *MemStore) Upsert(ctx context.Context, symbol, address, name string, decimals int, strategyType string, now time.Time) (TrackedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byAddr[address]; ok && owner != symbol {
		return TrackedToken{}, ErrDuplicateAddress
	}

	existing, exists := s.bySym[symbol]
	tok := existing
	if !exists {
		s.seq++
		tok = TrackedToken{
			ID:        strconv.Itoa(s.seq),
			Symbol:    symbol,
			CreatedAt: now,
		}
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

	s.bySym[symbol] = tok
	s.byAddr[address] = symbol
	return tok, nil
}

func (s *MemStore) MarkStaleBefore(ctx context.Context, cutoff time.Time, protected []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for sym, t := range s.bySym {
		if t.Status != StatusActive {
			continue
		}
		if isProtected(sym, protected) {
			continue
		}
		if t.LastSeenTrending.Before(cutoff) {
			t.Status = StatusStale
			t.UpdatedAt = time.Now()
			s.bySym[sym] = t
			count++
		}
	}
	return count, nil
}

func (s *MemStore) MarkRemovedBefore(ctx context.Context, cutoff time.Time, protected []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for sym, t := range s.bySym {
		if t.Status != StatusStale {
			continue
		}
		if isProtected(sym, protected) {
			continue
		}
		if t.LastSeenTrending.Before(cutoff) {
			t.Status = StatusRemoved
			t.UpdatedAt = time.Now()
			s.bySym[sym] = t
			count++
		}
	}
	return count, nil
}

func (s *MemStore) UpdateStrategyConfig(ctx context.Context, symbol string, cfg json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.bySym[symbol]
	if !ok {
		return nil
	}
	t.StrategyConfig = cfg
	t.UpdatedAt = time.Now()
	s.bySym[symbol] = t
	return nil
}

func (s *MemStore) Get(ctx context.Context, symbol string) (TrackedToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.bySym[symbol]
	return t, ok, nil
}

func (s *MemStore) CountActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.bySym {
		if t.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) EvictOldestActive(ctx context.Context, protected []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldestSym string
	var oldestTime time.Time
	for sym, t := range s.bySym {
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
	t := s.bySym[oldestSym]
	t.Status = StatusRemoved
	t.UpdatedAt = time.Now()
	s.bySym[oldestSym] = t
	return oldestSym, nil
}

func sortBySymbol(toks []TrackedToken) {
	sort.Slice(toks, func(i, j int) bool { return toks[i].Symbol < toks[j].Symbol })
}
