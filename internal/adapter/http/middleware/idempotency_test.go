package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubIdempotencyStore struct {
	mu        sync.Mutex
	pending   map[string]string
	responses map[string][]byte
	failClaim error
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{
		pending:   make(map[string]string),
		responses: make(map[string][]byte),
	}
}

func (s *stubIdempotencyStore) TryInsertPending(ctx context.Context, key, requestHash string, ttl time.Duration) (bool, error) {
	if s.failClaim != nil {
		return false, s.failClaim
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok {
		return false, nil
	}
	if _, ok := s.responses[key]; ok {
		return false, nil
	}
	s.pending[key] = requestHash
	return true, nil
}

func (s *stubIdempotencyStore) FindByKey(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp, ok := s.responses[key]; ok {
		return resp, nil
	}
	return nil, nil
}

func (s *stubIdempotencyStore) UpdateResponsePayload(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	s.responses[key] = response
	return nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func postWithKey(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{"buyer_id":"b-1"}`))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func TestIdempotencyMiddleware_SkipsNonMutatingRequests(t *testing.T) {
	store := newStubIdempotencyStore()
	wrapped := NewIdempotencyMiddleware(store).Wrap(okHandler(`{"ok":true}`))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/pay-1", nil)
	req.Header.Set(IdempotencyKeyHeader, "key-1")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if len(store.pending) != 0 || len(store.responses) != 0 {
		t.Error("GET must not touch the idempotency store")
	}
}

func TestIdempotencyMiddleware_SkipsWithoutKey(t *testing.T) {
	store := newStubIdempotencyStore()
	wrapped := NewIdempotencyMiddleware(store).Wrap(okHandler(`{"ok":true}`))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, postWithKey(""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(store.pending) != 0 {
		t.Error("keyless request must not claim anything")
	}
}

func TestIdempotencyMiddleware_StoresSuccessfulResponse(t *testing.T) {
	store := newStubIdempotencyStore()
	wrapped := NewIdempotencyMiddleware(store).Wrap(okHandler(`{"id":"pay-1"}`))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, postWithKey("key-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if string(store.responses["key-1"]) != `{"id":"pay-1"}` {
		t.Errorf("expected response recorded, got %q", store.responses["key-1"])
	}
}

func TestIdempotencyMiddleware_ReplaysRecordedResponse(t *testing.T) {
	store := newStubIdempotencyStore()
	calls := 0
	wrapped := NewIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"id":"pay-1"}`))
	}))

	wrapped.ServeHTTP(httptest.NewRecorder(), postWithKey("key-1"))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, postWithKey("key-1"))

	if calls != 1 {
		t.Fatalf("handler must run once, ran %d times", calls)
	}
	if rec.Header().Get("X-Idempotency-Replay") != "true" {
		t.Error("replay must be marked")
	}
	if rec.Body.String() != `{"id":"pay-1"}` {
		t.Errorf("unexpected replayed body %q", rec.Body.String())
	}
}

func TestIdempotencyMiddleware_ConflictWhileFirstRequestRuns(t *testing.T) {
	store := newStubIdempotencyStore()
	store.pending["key-1"] = "hash"

	wrapped := NewIdempotencyMiddleware(store).Wrap(okHandler(`{}`))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, postWithKey("key-1"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while first request is in flight, got %d", rec.Code)
	}
}

func TestIdempotencyMiddleware_ReleasesKeyOnFailure(t *testing.T) {
	store := newStubIdempotencyStore()
	wrapped := NewIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	wrapped.ServeHTTP(httptest.NewRecorder(), postWithKey("key-1"))

	if len(store.pending) != 0 {
		t.Error("failed request must release its claim")
	}
	if len(store.responses) != 0 {
		t.Error("failed responses must not be recorded")
	}
}

func TestIdempotencyMiddleware_StoreErrorFailsClosed(t *testing.T) {
	store := newStubIdempotencyStore()
	store.failClaim = errors.New("redis down")
	wrapped := NewIdempotencyMiddleware(store).Wrap(okHandler(`{}`))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, postWithKey("key-1"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store error, got %d", rec.Code)
	}
}
