package redis

import (
	"context"
	"testing"
	"time"
)

func TestIdempotencyStoreClaimAndComplete(t *testing.T) {
	client, _ := newTestStore(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	claimed, err := store.TryInsertPending(ctx, "key-1", "hash-1", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	// Second request with the same key loses the claim.
	claimed, err = store.TryInsertPending(ctx, "key-1", "hash-1", time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim to fail")
	}

	// While pending there is no replayable response yet.
	payload, err := store.FindByKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected no payload while pending, got %q", payload)
	}

	if err := store.UpdateResponsePayload(ctx, "key-1", []byte(`{"id":"pay-1"}`), time.Minute); err != nil {
		t.Fatalf("update: %v", err)
	}

	payload, err = store.FindByKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if string(payload) != `{"id":"pay-1"}` {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestIdempotencyStoreUnknownKey(t *testing.T) {
	client, _ := newTestStore(t)
	store := NewIdempotencyStore(client)

	payload, err := store.FindByKey(context.Background(), "missing")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected nil payload for unknown key, got %q", payload)
	}
}

func TestIdempotencyStoreClaimExpires(t *testing.T) {
	client, mr := newTestStore(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	if _, err := store.TryInsertPending(ctx, "key-1", "hash-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	claimed, err := store.TryInsertPending(ctx, "key-1", "hash-1", time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed after expiry")
	}
}

func TestIdempotencyStoreReleasePendingClaim(t *testing.T) {
	client, _ := newTestStore(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	if _, err := store.TryInsertPending(ctx, "key-1", "hash-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	claimed, err := store.TryInsertPending(ctx, "key-1", "hash-1", time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed after release")
	}
}

func TestIdempotencyStoreReleaseKeepsRecordedResponse(t *testing.T) {
	client, _ := newTestStore(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	if _, err := store.TryInsertPending(ctx, "key-1", "hash-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.UpdateResponsePayload(ctx, "key-1", []byte(`{"ok":true}`), time.Minute); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := store.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	payload, err := store.FindByKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if string(payload) != `{"ok":true}` {
		t.Fatalf("recorded response must survive release, got %q", payload)
	}
}
