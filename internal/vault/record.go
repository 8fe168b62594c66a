// Package vault implements the subscription vault core: lifecycle
// management, prepaid balances, and the persisted record shapes.
package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultpay/subvault-backend/pkg/enums"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
)

// Subscription is the persisted record for one recurring agreement.
// Serialization is append-only: new fields go at the end with omitempty
// so records written by older builds still decode.
type Subscription struct {
	Subscriber           uuid.UUID                `json:"subscriber"`
	Merchant             uuid.UUID                `json:"merchant"`
	Amount               decimal.Decimal          `json:"amount"`
	IntervalSeconds      uint64                   `json:"interval_seconds"`
	LastPaymentTimestamp uint64                   `json:"last_payment_timestamp"`
	Status               enums.SubscriptionStatus `json:"status"`
	PrepaidBalance       decimal.Decimal          `json:"prepaid_balance"`
	UsageEnabled         bool                     `json:"usage_enabled"`
	Expiration           *uint64                  `json:"expiration,omitempty"`
}

// NextChargeTimestamp returns last payment plus one interval, failing with
// OVERFLOW instead of wrapping.
func (s *Subscription) NextChargeTimestamp() (uint64, error) {
	return checkedAdd(s.LastPaymentTimestamp, s.IntervalSeconds)
}

// PeriodIndex maps a timestamp onto the subscription's billing period grid.
// Charges are keyed by this index so a period can only ever be charged once.
func (s *Subscription) PeriodIndex(now uint64) uint64 {
	if s.IntervalSeconds == 0 {
		return 0
	}
	return now / s.IntervalSeconds
}

// ExpiredAt reports whether the subscription has reached its expiration.
// A subscription expires at exactly its expiration timestamp.
func (s *Subscription) ExpiredAt(now uint64) bool {
	return s.Expiration != nil && now >= *s.Expiration
}

// CreationDigest fingerprints the caller-supplied creation parameters.
// Identical create calls produce identical digests, so the stored idem keys
// of two subscriptions can be compared to spot a duplicate agreement.
func (s *Subscription) CreationDigest() string {
	expiration := ""
	if s.Expiration != nil {
		expiration = fmt.Sprintf("%d", *s.Expiration)
	}
	payload := fmt.Sprintf("%s|%s|%s|%d|%t|%s",
		s.Subscriber,
		s.Merchant,
		s.Amount.String(),
		s.IntervalSeconds,
		s.UsageEnabled,
		expiration,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, pkgerrors.New(pkgerrors.CodeOverflow, "timestamp addition overflows")
	}
	return a + b, nil
}
