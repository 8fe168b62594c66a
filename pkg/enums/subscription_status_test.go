package enums

import "testing"

func TestSelfTransitionAlwaysAllowed(t *testing.T) {
	for _, status := range validSubscriptionStatuses {
		if !status.CanTransitionTo(status) {
			t.Fatalf("%s -> %s should be allowed", status, status)
		}
	}
}

func TestActiveTransitions(t *testing.T) {
	from := SubscriptionStatusActive
	for _, target := range []SubscriptionStatus{
		SubscriptionStatusPaused,
		SubscriptionStatusCancelled,
		SubscriptionStatusInsufficientBalance,
	} {
		if !from.CanTransitionTo(target) {
			t.Fatalf("active -> %s should be allowed", target)
		}
	}
}

func TestPausedTransitions(t *testing.T) {
	from := SubscriptionStatusPaused
	if !from.CanTransitionTo(SubscriptionStatusActive) {
		t.Fatal("paused -> active should be allowed")
	}
	if !from.CanTransitionTo(SubscriptionStatusCancelled) {
		t.Fatal("paused -> cancelled should be allowed")
	}
	if from.CanTransitionTo(SubscriptionStatusInsufficientBalance) {
		t.Fatal("paused -> insufficient_balance should be rejected")
	}
}

func TestInsufficientBalanceTransitions(t *testing.T) {
	from := SubscriptionStatusInsufficientBalance
	if !from.CanTransitionTo(SubscriptionStatusActive) {
		t.Fatal("insufficient_balance -> active should be allowed")
	}
	if !from.CanTransitionTo(SubscriptionStatusCancelled) {
		t.Fatal("insufficient_balance -> cancelled should be allowed")
	}
	if from.CanTransitionTo(SubscriptionStatusPaused) {
		t.Fatal("insufficient_balance -> paused should be rejected")
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	from := SubscriptionStatusCancelled
	for _, target := range []SubscriptionStatus{
		SubscriptionStatusActive,
		SubscriptionStatusPaused,
		SubscriptionStatusInsufficientBalance,
	} {
		if from.CanTransitionTo(target) {
			t.Fatalf("cancelled -> %s should be rejected", target)
		}
	}
	if len(from.AllowedTransitions()) != 0 {
		t.Fatal("cancelled should have no outgoing transitions")
	}
}

func TestTransitionClosure(t *testing.T) {
	// Every (source, target) pair not in the table must be rejected.
	allowed := map[[2]SubscriptionStatus]bool{}
	for _, s := range validSubscriptionStatuses {
		allowed[[2]SubscriptionStatus{s, s}] = true
		for _, target := range s.AllowedTransitions() {
			allowed[[2]SubscriptionStatus{s, target}] = true
		}
	}
	for _, from := range validSubscriptionStatuses {
		for _, to := range validSubscriptionStatuses {
			want := allowed[[2]SubscriptionStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	bogus := SubscriptionStatus("bogus")
	if bogus.IsValid() {
		t.Fatal("bogus status should be invalid")
	}
	if bogus.CanTransitionTo(SubscriptionStatusActive) {
		t.Fatal("unknown source should never transition")
	}
	if SubscriptionStatusActive.CanTransitionTo(bogus) {
		t.Fatal("unknown target should never be reachable")
	}
}

func TestParseSubscriptionStatus(t *testing.T) {
	status, err := ParseSubscriptionStatus("insufficient_balance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != SubscriptionStatusInsufficientBalance {
		t.Fatalf("unexpected status %s", status)
	}
	if _, err := ParseSubscriptionStatus("unpaid"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
