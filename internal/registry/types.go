// Package registry implements C3: the mutable set of tracked symbols
// with status, strategy binding, and discovery-freshness timestamp that
// drives the active/stale/removed rotation lifecycle.
package registry

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrDuplicateAddress is returned by Upsert when a different symbol
// already owns the address.
var ErrDuplicateAddress = errors.New("registry: address already tracked under a different symbol")

// Status is the TrackedToken lifecycle state (§4.8 rotation).
type Status string

const (
	StatusActive  Status = "active"
	StatusStale   Status = "stale"
	StatusRemoved Status = "removed"
	StatusPaused  Status = "paused"
)

// TrackedToken is a single row in the registry.
type TrackedToken struct {
	ID                string          `json:"id"`
	Symbol            string          `json:"symbol"`
	Address           string          `json:"address"`
	Name              string          `json:"name"`
	Decimals         int             `json:"decimals"`
	Status           Status          `json:"status"`
	StrategyType     string          `json:"strategy_type"`
	StrategyConfig   json.RawMessage `json:"strategy_config,omitempty"`
	LastSeenTrending time.Time       `json:"last_seen_trending"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
