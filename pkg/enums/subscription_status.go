package enums

import "fmt"

// SubscriptionStatus is the lifecycle state of a subscription.
//
// Allowed transitions:
//
//	Active              -> Paused, Cancelled, InsufficientBalance
//	Paused              -> Active, Cancelled
//	InsufficientBalance -> Active, Cancelled
//	Cancelled           -> (terminal)
//
// Every status may transition to itself (idempotent no-op). The
// InsufficientBalance target is only ever requested by the charge engine,
// never by a direct caller operation.
type SubscriptionStatus string

const (
	SubscriptionStatusActive              SubscriptionStatus = "active"
	SubscriptionStatusPaused              SubscriptionStatus = "paused"
	SubscriptionStatusCancelled           SubscriptionStatus = "cancelled"
	SubscriptionStatusInsufficientBalance SubscriptionStatus = "insufficient_balance"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPaused,
	SubscriptionStatusCancelled,
	SubscriptionStatusInsufficientBalance,
}

var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive: {
		SubscriptionStatusPaused,
		SubscriptionStatusCancelled,
		SubscriptionStatusInsufficientBalance,
	},
	SubscriptionStatusPaused: {
		SubscriptionStatusActive,
		SubscriptionStatusCancelled,
	},
	SubscriptionStatusInsufficientBalance: {
		SubscriptionStatusActive,
		SubscriptionStatusCancelled,
	},
	SubscriptionStatusCancelled: {},
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the transition s -> target is legal.
// A status can always "transition" to itself.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	if !s.IsValid() || !target.IsValid() {
		return false
	}
	if s == target {
		return true
	}
	for _, candidate := range allowedTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal non-self targets from s.
func (s SubscriptionStatus) AllowedTransitions() []SubscriptionStatus {
	targets := allowedTransitions[s]
	out := make([]SubscriptionStatus, len(targets))
	copy(out, targets)
	return out
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
