package positionstore

import (
	"context"
	"time"
)

// Store is the position store contract (C2). Update only permits the
// Open -> Closed transition with all exit fields set atomically.
type Store interface {
	Insert(ctx context.Context, p Position) error
	Update(ctx context.Context, p Position) error
	LoadOpen(ctx context.Context, userID string) ([]Position, error)
	LoadClosed(ctx context.Context, userID string, since time.Time) ([]Position, error)
}
