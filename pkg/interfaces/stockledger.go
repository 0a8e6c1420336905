package interfaces

import (
	"context"

	"github.com/google/uuid"
)

// StockImpact is one signed delta applied to a scoped stock bucket.
type StockImpact struct {
	Metric string  `json:"metric"`
	Scope  string  `json:"scope"`
	Delta  float64 `json:"delta"`
}

// StockCommand asks the external stock ledger to move quantities or values
// between scoped buckets. IdempotencyKey makes the command safe to replay:
// the ledger either creates a new effect or returns the one previously
// recorded under the same key.
type StockCommand struct {
	TenantID       uuid.UUID     `json:"tenant_id"`
	ItemID         uuid.UUID     `json:"item_id"`
	Origin         string        `json:"origin"`
	Reference      string        `json:"reference,omitempty"`
	Impacts        []StockImpact `json:"impacts"`
	IdempotencyKey string        `json:"idempotency_key"`
	ActorID        uuid.UUID     `json:"actor_id"`
}

// StockResult reports the effect the ledger recorded for a command.
type StockResult struct {
	EffectID uuid.UUID     `json:"effect_id"`
	Reused   bool          `json:"reused"`
	Applied  []StockImpact `json:"applied,omitempty"`
}

// StockLedger is the external mutation engine for stock buckets. The workflow
// engine only consumes the command/result contract; storage and bookkeeping
// belong to the implementing system.
type StockLedger interface {
	Apply(ctx context.Context, cmd StockCommand) (*StockResult, error)
}
