package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/driveloop/driveloop-backend/pkg/logger"
)

type fakeLock struct {
	locked   bool
	err      error
	acquires int
	releases int
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	f.acquires++
	return f.locked, f.err
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.releases++
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func newTestCronService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunCycleExecutesJobsWhileHoldingLock(t *testing.T) {
	lock := &fakeLock{locked: true}
	first := &namedJob{name: "first"}
	second := &namedJob{name: "second", err: errors.New("boom")}
	third := &namedJob{name: "third"}

	svc := newTestCronService(t, lock, first, second, third)
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if first.runs != 1 || second.runs != 1 || third.runs != 1 {
		t.Fatalf("expected every job to run once, got %d/%d/%d", first.runs, second.runs, third.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected one lock release, got %d", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	lock := &fakeLock{locked: false}
	job := &namedJob{name: "only"}

	svc := newTestCronService(t, lock, job)
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if job.runs != 0 {
		t.Fatalf("expected no job runs, got %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("expected no release without acquisition, got %d", lock.releases)
	}
}

func TestRunCyclePropagatesLockErrors(t *testing.T) {
	lock := &fakeLock{err: errors.New("redis down")}

	svc := newTestCronService(t, lock, &namedJob{name: "only"})
	if err := svc.runCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	if err == nil {
		t.Fatal("expected error")
	}
}
