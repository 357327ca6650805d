package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunLock_AcquireAndRelease(t *testing.T) {
	client, _, cleanup := setupTestClient(t)
	defer cleanup()

	lock := NewRunLock(client, zap.NewNop(), time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "daily")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, err = lock.Acquire(ctx, "daily")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire should fail while held")
	}

	if err := lock.Release(ctx, "daily"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	ok, err = lock.Acquire(ctx, "daily")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestRunLock_ScopesAreIndependent(t *testing.T) {
	client, _, cleanup := setupTestClient(t)
	defer cleanup()

	lock := NewRunLock(client, zap.NewNop(), time.Minute)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "daily"); !ok {
		t.Fatal("daily acquire should succeed")
	}
	if ok, _ := lock.Acquire(ctx, "prop-1"); !ok {
		t.Fatal("prop-1 acquire should succeed independently")
	}
}

func TestRunLock_TTLExpires(t *testing.T) {
	client, mr, cleanup := setupTestClient(t)
	defer cleanup()

	lock := NewRunLock(client, zap.NewNop(), time.Minute)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "daily"); !ok {
		t.Fatal("acquire should succeed")
	}

	mr.FastForward(2 * time.Minute)

	// A stale lock from a crashed run does not block forever.
	ok, err := lock.Acquire(ctx, "daily")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ok {
		t.Fatal("acquire after TTL expiry should succeed")
	}
}
