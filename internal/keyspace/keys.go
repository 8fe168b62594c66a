// Package keyspace defines the canonical storage key set for all vault
// state. Every persisted value lives under exactly one of these keys; no
// other component may derive storage keys by hand.
package keyspace

import (
	"fmt"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is written under the SchemaVersion key during init.
// Increment it whenever the storage schema changes, and add a matching
// migration branch.
const CurrentSchemaVersion uint32 = 1

// Kind discriminates the key variants. The numeric values are fixed
// forever: never remove or reorder variants, only append new ones.
type Kind uint8

const (
	// KindMerchantSubs indexes merchant -> subscription id list. Must stay at 0.
	KindMerchantSubs Kind = iota
	// KindToken holds the token vault account used for value transfer.
	KindToken
	// KindAdmin holds the authorized admin account.
	KindAdmin
	// KindMinTopup holds the minimum deposit threshold.
	KindMinTopup
	// KindNextID holds the auto-incrementing subscription id counter.
	KindNextID
	// KindSchemaVersion holds the storage schema version.
	KindSchemaVersion
	// KindSub holds a subscription record keyed by its id.
	KindSub
	// KindChargedPeriod holds the last charged billing-period index per
	// subscription (replay guard).
	KindChargedPeriod
	// KindIdemKey holds the idempotency digest stored per subscription.
	KindIdemKey
)

const namespace = "vault"

var kindSegments = map[Kind]string{
	KindMerchantSubs:  "msubs",
	KindToken:         "token",
	KindAdmin:         "admin",
	KindMinTopup:      "min_topup",
	KindNextID:        "next_id",
	KindSchemaVersion: "schema_version",
	KindSub:           "sub",
	KindChargedPeriod: "period",
	KindIdemKey:       "idem",
}

// LegacyNextIDKey is the bare counter key used before the keyspace was
// namespaced. It only appears in version 0 stores.
const LegacyNextIDKey = "next_id"

// LegacySub returns the bare numeric subscription key used before the
// keyspace was namespaced.
func LegacySub(id uint32) string {
	return fmt.Sprintf("%d", id)
}

// Key is one member of the closed storage key set. Construct values only
// through the typed constructors below; the zero value is not a valid key.
type Key struct {
	kind    Kind
	subID   uint32
	account uuid.UUID
}

func MerchantSubs(merchant uuid.UUID) Key {
	return Key{kind: KindMerchantSubs, account: merchant}
}

func Token() Key { return Key{kind: KindToken} }

func Admin() Key { return Key{kind: KindAdmin} }

func MinTopup() Key { return Key{kind: KindMinTopup} }

func NextID() Key { return Key{kind: KindNextID} }

func SchemaVersion() Key { return Key{kind: KindSchemaVersion} }

func Sub(id uint32) Key { return Key{kind: KindSub, subID: id} }

func ChargedPeriod(id uint32) Key { return Key{kind: KindChargedPeriod, subID: id} }

func IdemKey(id uint32) Key { return Key{kind: KindIdemKey, subID: id} }

// Kind returns the variant discriminant.
func (k Key) Kind() Kind { return k.kind }

// Encode renders the storage key string. Each kind owns a distinct segment,
// so two keys collide only when kind and payload are both equal.
func (k Key) Encode() string {
	segment, ok := kindSegments[k.kind]
	if !ok {
		// Unreachable for keys built via the constructors.
		panic(fmt.Sprintf("keyspace: unknown key kind %d", k.kind))
	}
	switch k.kind {
	case KindMerchantSubs:
		return fmt.Sprintf("%s:%s:%s", namespace, segment, k.account)
	case KindSub, KindChargedPeriod, KindIdemKey:
		return fmt.Sprintf("%s:%s:%d", namespace, segment, k.subID)
	default:
		return fmt.Sprintf("%s:%s", namespace, segment)
	}
}
