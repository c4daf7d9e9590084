package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/iho/payflow/internal/domain"
)

func testRetryItem(t *testing.T, eventID string) domain.RetryItem {
	t.Helper()

	payload, err := json.Marshal(domain.CaptureCommand{PaymentOrderID: "po-1", RetryCount: 1})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	item, err := domain.NewRetryItem(domain.Envelope{
		EventID:     eventID,
		EventType:   domain.EventTypeCaptureCommand,
		AggregateID: "po-1",
		Data:        payload,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("new retry item: %v", err)
	}

	return item
}

func TestRetryQueueScheduleAndPoll(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	// Due immediately.
	if err := queue.ScheduleRetry(ctx, testRetryItem(t, "evt-1"), -time.Second); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	items, err := queue.PollDueRetriesToInflight(ctx, 10)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 due item, got %d", len(items))
	}
	if items[0].Envelope.EventID != "evt-1" {
		t.Fatalf("expected evt-1, got %s", items[0].Envelope.EventID)
	}

	// The claimed item sits in the inflight set, not pending.
	if n := client.ZCard(ctx, retryPendingKey).Val(); n != 0 {
		t.Fatalf("expected empty pending set, got %d", n)
	}
	if n := client.ZCard(ctx, retryInflightKey).Val(); n != 1 {
		t.Fatalf("expected 1 inflight member, got %d", n)
	}
}

func TestRetryQueueBackoffGatesDelivery(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	if err := queue.ScheduleRetry(ctx, testRetryItem(t, "evt-1"), time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	items, err := queue.PollDueRetriesToInflight(ctx, 10)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no due items before backoff elapsed, got %d", len(items))
	}

	// The early pop went straight back to pending.
	if n := client.ZCard(ctx, retryPendingKey).Val(); n != 1 {
		t.Fatalf("expected 1 pending member after push-back, got %d", n)
	}
	if n := client.ZCard(ctx, retryInflightKey).Val(); n != 0 {
		t.Fatalf("expected empty inflight set, got %d", n)
	}
}

func TestRetryQueueClaimIsExclusive(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if err := queue.ScheduleRetry(ctx, testRetryItem(t, id), -time.Second); err != nil {
			t.Fatalf("schedule %s: %v", id, err)
		}
	}

	first, err := queue.PollDueRetriesToInflight(ctx, 10)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	second, err := queue.PollDueRetriesToInflight(ctx, 10)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}

	if len(first)+len(second) != 3 {
		t.Fatalf("expected 3 items total, got %d+%d", len(first), len(second))
	}

	seen := map[string]bool{}
	for _, item := range append(first, second...) {
		if seen[item.Envelope.EventID] {
			t.Fatalf("item %s claimed twice", item.Envelope.EventID)
		}
		seen[item.Envelope.EventID] = true
	}
}

func TestRetryQueueConcurrentPollersNeverShareClaims(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	const total = 40
	for i := 0; i < total; i++ {
		item := testRetryItem(t, fmt.Sprintf("evt-%d", i))
		if err := queue.ScheduleRetry(ctx, item, -time.Second); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	const pollers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []string
	)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				items, err := queue.PollDueRetriesToInflight(ctx, 3)
				if err != nil {
					t.Errorf("poll: %v", err)
					return
				}
				if len(items) == 0 {
					return
				}
				mu.Lock()
				for _, item := range items {
					claimed = append(claimed, item.Envelope.EventID)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("expected %d claims, got %d", total, len(claimed))
	}
	seen := map[string]bool{}
	for _, id := range claimed {
		if seen[id] {
			t.Fatalf("item %s claimed by two pollers", id)
		}
		seen[id] = true
	}
	if n := client.ZCard(ctx, retryInflightKey).Val(); n != total {
		t.Fatalf("expected %d inflight members, got %d", total, n)
	}
}

func TestRetryQueuePollSurvivesClaimFailure(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	if err := queue.ScheduleRetry(ctx, testRetryItem(t, "evt-1"), -time.Second); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// A string under the inflight key makes the claim ZADD fail with
	// WRONGTYPE after the pop already removed the member from pending.
	if err := client.Set(ctx, retryInflightKey, "occupied", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}

	items, err := queue.PollDueRetriesToInflight(ctx, 10)
	if err == nil {
		t.Fatal("expected an error when the claim cannot be persisted")
	}
	if len(items) != 0 {
		t.Fatalf("expected no items when the push-back succeeded, got %d", len(items))
	}

	// The popped member went back to pending instead of vanishing.
	if n := client.ZCard(ctx, retryPendingKey).Val(); n != 1 {
		t.Fatalf("expected 1 pending member after push-back, got %d", n)
	}

	if err := client.Del(ctx, retryInflightKey).Err(); err != nil {
		t.Fatalf("del: %v", err)
	}
	items, err = queue.PollDueRetriesToInflight(ctx, 10)
	if err != nil {
		t.Fatalf("poll after recovery: %v", err)
	}
	if len(items) != 1 || items[0].Envelope.EventID != "evt-1" {
		t.Fatalf("expected evt-1 deliverable after recovery, got %#v", items)
	}
}

func TestRetryQueueQuarantinesUndecodableMembers(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	if err := queue.ScheduleRetry(ctx, testRetryItem(t, "evt-1"), -time.Second); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	due := float64(time.Now().Add(-time.Second).UnixMilli())
	if err := client.ZAdd(ctx, retryPendingKey, redislib.Z{Score: due, Member: "{not an envelope"}).Err(); err != nil {
		t.Fatalf("zadd: %v", err)
	}

	items, err := queue.PollDueRetriesToInflight(ctx, 10)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(items) != 1 || items[0].Envelope.EventID != "evt-1" {
		t.Fatalf("expected only the valid item, got %#v", items)
	}

	// The garbage member is parked with its decode error, not silently gone.
	entries, err := queue.Quarantined(ctx)
	if err != nil {
		t.Fatalf("quarantined: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 quarantined member, got %d", len(entries))
	}
	if entries["{not an envelope"] == "" {
		t.Fatalf("expected a decode error recorded, got %#v", entries)
	}

	// It does not resurface on later polls.
	if n := client.ZCard(ctx, retryPendingKey).Val(); n != 0 {
		t.Fatalf("expected empty pending set, got %d", n)
	}
}

func TestRetryQueueRemoveFromInflight(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	if err := queue.ScheduleRetry(ctx, testRetryItem(t, "evt-1"), -time.Second); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	items, err := queue.PollDueRetriesToInflight(ctx, 1)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	if err := queue.RemoveFromInflight(ctx, items[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := client.ZCard(ctx, retryInflightKey).Val(); n != 0 {
		t.Fatalf("expected empty inflight set, got %d", n)
	}
}

func TestRetryQueueReclaimInflight(t *testing.T) {
	client, _ := newTestStore(t)
	queue := NewRetryQueue(client)
	ctx := context.Background()

	if err := queue.ScheduleRetry(ctx, testRetryItem(t, "evt-1"), -time.Second); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := queue.PollDueRetriesToInflight(ctx, 1); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// A young claim is left alone.
	moved, err := queue.ReclaimInflight(ctx, time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if moved != 0 {
		t.Fatalf("expected no reclaims for a fresh claim, got %d", moved)
	}

	// With zero tolerance the claim is considered abandoned.
	moved, err = queue.ReclaimInflight(ctx, -time.Second)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 reclaimed item, got %d", moved)
	}

	items, err := queue.PollDueRetriesToInflight(ctx, 1)
	if err != nil {
		t.Fatalf("poll after reclaim: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected reclaimed item to be deliverable, got %d", len(items))
	}
}
