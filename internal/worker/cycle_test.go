package worker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultpay/subvault-backend/internal/charges"
	"github.com/vaultpay/subvault-backend/internal/vault"
	"github.com/vaultpay/subvault-backend/pkg/enums"
	"github.com/vaultpay/subvault-backend/pkg/kv"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

type allowAll struct{}

func (allowAll) RequireAuthorized(context.Context, uuid.UUID) error { return nil }

type fixedClock struct{ now uint64 }

func (c *fixedClock) Now() uint64 { return c.now }

const startTime = uint64(1_000_000)

type fixture struct {
	repo   vault.Repository
	vaults *vault.Service
	cycle  *ChargeCycle
	clock  *fixedClock
	admin  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := kv.NewMemory()
	repo := vault.NewRepository(store)
	clock := &fixedClock{now: startTime}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	vaults := vault.NewService(repo, allowAll{}, clock, nil, logg)

	admin := uuid.New()
	if err := vaults.Init(context.Background(), admin, uuid.New(), decimal.NewFromInt(10)); err != nil {
		t.Fatalf("init: %v", err)
	}

	engine := charges.NewEngine(repo, allowAll{}, clock, nil, nil, logg, 2)
	cycle := NewChargeCycle(repo, engine, clock, logg, 2)
	return &fixture{repo: repo, vaults: vaults, cycle: cycle, clock: clock, admin: admin}
}

func (f *fixture) createFunded(t *testing.T, balance int64) uint32 {
	t.Helper()
	params := vault.CreateParams{
		Subscriber:      uuid.New(),
		Merchant:        uuid.New(),
		Amount:          decimal.NewFromInt(50),
		IntervalSeconds: 3600,
	}
	id, _, err := f.vaults.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if balance > 0 {
		if _, err := f.vaults.Deposit(context.Background(), params.Subscriber, id, decimal.NewFromInt(balance)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return id
}

func TestCycleChargesDueSubscriptions(t *testing.T) {
	f := newFixture(t)
	// More subscriptions than the batch cap to exercise chunking.
	ids := []uint32{
		f.createFunded(t, 500),
		f.createFunded(t, 500),
		f.createFunded(t, 500),
	}
	f.clock.now += 3600

	if err := f.cycle.Run(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	for _, id := range ids {
		sub, err := f.repo.GetSubscription(context.Background(), id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if !sub.PrepaidBalance.Equal(decimal.NewFromInt(450)) {
			t.Fatalf("subscription %d not charged: balance %s", id, sub.PrepaidBalance)
		}
	}
}

func TestCycleSkipsNotDue(t *testing.T) {
	f := newFixture(t)
	id := f.createFunded(t, 500)

	if err := f.cycle.Run(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	sub, err := f.repo.GetSubscription(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !sub.PrepaidBalance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("fresh subscription must not be charged, balance %s", sub.PrepaidBalance)
	}
}

func TestCycleTreatsInsufficientBalanceAsExpected(t *testing.T) {
	f := newFixture(t)
	id := f.createFunded(t, 0)
	f.clock.now += 3600

	if err := f.cycle.Run(context.Background()); err != nil {
		t.Fatalf("parking an unfunded subscription is not a cycle failure: %v", err)
	}
	sub, err := f.repo.GetSubscription(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Status != enums.SubscriptionStatusInsufficientBalance {
		t.Fatalf("expected insufficient_balance, got %s", sub.Status)
	}
}

func TestCycleIsIdempotentWithinPeriod(t *testing.T) {
	f := newFixture(t)
	id := f.createFunded(t, 500)
	f.clock.now += 3600

	if err := f.cycle.Run(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := f.cycle.Run(context.Background()); err != nil {
		t.Fatalf("second cycle within the same period: %v", err)
	}

	sub, err := f.repo.GetSubscription(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !sub.PrepaidBalance.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("expected a single charge, balance %s", sub.PrepaidBalance)
	}
}

type memoryLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{data: map[string]string{}}
}

func (s *memoryLockStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *memoryLockStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	return value, ok, nil
}

func (s *memoryLockStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func TestRedisLockMutualExclusion(t *testing.T) {
	store := newMemoryLockStore()

	first, err := NewRedisLock(store, "lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewRedisLock(store, "lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%t err=%v", ok, err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire must fail while the lock is held")
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%t err=%v", ok, err)
	}
}

func TestRedisLockReleaseRespectsOwner(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, err := lock.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("acquire: ok=%t err=%v", ok, err)
	}

	// Another owner took over after expiry; release must not delete it.
	store.mu.Lock()
	store.data["lock"] = "someone-else"
	store.mu.Unlock()

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if value, ok, _ := store.Get(context.Background(), "lock"); !ok || value != "someone-else" {
		t.Fatal("release must not delete a lock held by another owner")
	}
}
