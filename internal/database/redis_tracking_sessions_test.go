package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisTrackingSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisTrackingSessionStore(rdb, 72*time.Hour), mr
}

func testSession(code, deliveryID string, now time.Time) *models.TrackingSession {
	return &models.TrackingSession{
		ID:           "sess-" + code,
		TrackingCode: code,
		DeliveryID:   deliveryID,
		DriverID:     "driver-1",
		IsActive:     true,
		ExpiresAt:    now.Add(24 * time.Hour).Unix(),
		CreatedAt:    now.Unix(),
	}
}

func TestRedisStoreCreateAndFind(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)

	if err := store.Create(ctx, testSession("ABC123", "del-1", now), now); err != nil {
		t.Fatalf("create: %v", err)
	}

	byDelivery, err := store.FindActiveByDelivery(ctx, "del-1", now)
	if err != nil {
		t.Fatalf("find by delivery: %v", err)
	}
	if byDelivery.TrackingCode != "ABC123" {
		t.Fatalf("code = %s, want ABC123", byDelivery.TrackingCode)
	}

	byCode, err := store.FindActiveByCode(ctx, "ABC123", now)
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if byCode.DeliveryID != "del-1" || byCode.DriverID != "driver-1" {
		t.Fatalf("session = %+v", byCode)
	}
}

func TestRedisStoreRejectsSecondActiveSession(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)

	if err := store.Create(ctx, testSession("AAA111", "del-1", now), now); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.Create(ctx, testSession("BBB222", "del-1", now), now)
	if !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("err = %v, want ErrActiveSessionExists", err)
	}

	// The losing code must not stay reserved
	if _, err := store.FindActiveByCode(ctx, "BBB222", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("losing code still resolvable: %v", err)
	}
}

func TestRedisStoreRejectsReusedCode(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)

	if err := store.Create(ctx, testSession("SAME01", "del-1", now), now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, testSession("SAME01", "del-2", now), now); !errors.Is(err, ErrCodeTaken) {
		t.Fatalf("err = %v, want ErrCodeTaken", err)
	}
	if _, err := store.FindActiveByDelivery(ctx, "del-2", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("del-2 should have no session, got %v", err)
	}
}

func TestRedisStoreExpiryIsReadTime(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)

	if err := store.Create(ctx, testSession("OLD001", "del-1", now), now); err != nil {
		t.Fatalf("create: %v", err)
	}

	later := now.Add(25 * time.Hour)
	if _, err := store.FindActiveByCode(ctx, "OLD001", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired code resolved: %v", err)
	}
	if _, err := store.FindActiveByDelivery(ctx, "del-1", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session found by delivery: %v", err)
	}

	// A fresh session replaces the stale pointer
	if err := store.Create(ctx, testSession("NEW001", "del-1", later), later); err != nil {
		t.Fatalf("create after expiry: %v", err)
	}
	s, err := store.FindActiveByDelivery(ctx, "del-1", later)
	if err != nil || s.TrackingCode != "NEW001" {
		t.Fatalf("session = %+v, err = %v", s, err)
	}
}

func TestRedisStoreDeactivate(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)

	if err := store.Create(ctx, testSession("DONE01", "del-1", now), now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Deactivate(ctx, "del-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := store.FindActiveByCode(ctx, "DONE01", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deactivated code resolved: %v", err)
	}
	if !mr.Exists(codeKey("DONE01")) {
		t.Fatalf("code key must stay reserved after deactivation")
	}
	if err := store.Create(ctx, testSession("DONE01", "del-9", now), now); !errors.Is(err, ErrCodeTaken) {
		t.Fatalf("err = %v, want ErrCodeTaken", err)
	}

	// Deactivating a delivery without a session is a no-op
	if err := store.Deactivate(ctx, "missing"); err != nil {
		t.Fatalf("deactivate missing: %v", err)
	}
}
