package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

type stubLock struct {
	acquired   bool
	acquireErr error
	releases   int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	return l.acquired, l.acquireErr
}

func (l *stubLock) Release(context.Context) error {
	l.releases++
	return nil
}

func TestNewServiceValidatesParams(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := newFixture(t)
	cycle := f.cycle

	_, err := NewService(ServiceParams{Cycle: cycle, Lock: &stubLock{}})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Logger: logg, Lock: &stubLock{}})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Logger: logg, Cycle: cycle})
	require.Error(t, err)

	svc, err := NewService(ServiceParams{Logger: logg, Cycle: cycle, Lock: &stubLock{}})
	require.NoError(t, err)
	require.Equal(t, defaultInterval, svc.interval)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := newFixture(t)
	lock := &stubLock{acquired: false}

	svc, err := NewService(ServiceParams{
		Logger:   logg,
		Cycle:    f.cycle,
		Lock:     lock,
		Interval: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	require.Zero(t, lock.releases, "a skipped cycle must not release the lock")
}

func TestRunCycleReleasesLock(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := newFixture(t)
	lock := &stubLock{acquired: true}

	svc, err := NewService(ServiceParams{
		Logger:   logg,
		Cycle:    f.cycle,
		Lock:     lock,
		Interval: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	require.Equal(t, 1, lock.releases)
}

func TestRunCycleSurfacesLockError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := newFixture(t)
	lock := &stubLock{acquireErr: errors.New("redis down")}

	svc, err := NewService(ServiceParams{
		Logger:   logg,
		Cycle:    f.cycle,
		Lock:     lock,
		Interval: time.Minute,
	})
	require.NoError(t, err)

	require.Error(t, svc.runCycle(context.Background()))
}
