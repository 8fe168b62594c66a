// Package ledger publishes transfer instructions for committed charges.
// The vault never moves value itself; an external ledger consumes these
// instructions and settles the transfer.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Instruction tells the downstream ledger to move value from the token
// vault to the merchant for one charged billing period.
type Instruction struct {
	SubscriptionID uint32          `json:"subscription_id"`
	FromVault      uuid.UUID       `json:"from_vault"`
	ToAccount      uuid.UUID       `json:"to_account"`
	Amount         decimal.Decimal `json:"amount"`
	PeriodIndex    uint64          `json:"period_index"`
	Timestamp      uint64          `json:"timestamp"`
}

// Publisher delivers transfer instructions to the settlement pipeline.
type Publisher interface {
	PublishTransfer(ctx context.Context, instruction Instruction) error
}
