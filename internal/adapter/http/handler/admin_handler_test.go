package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubOutboxInspector struct {
	stats map[string]int64
	err   error
}

func (s *stubOutboxInspector) Stats(ctx context.Context) (map[string]int64, error) {
	return s.stats, s.err
}

type stubRetryInspector struct {
	entries map[string]string
	err     error
}

func (s *stubRetryInspector) Quarantined(ctx context.Context) (map[string]string, error) {
	return s.entries, s.err
}

func TestAdminHandler_OutboxStats(t *testing.T) {
	h := NewAdminHandler(&stubOutboxInspector{
		stats: map[string]int64{"NEW": 3, "PROCESSING": 1, "SENT": 120},
	}, &stubRetryInspector{})

	rec := httptest.NewRecorder()
	h.OutboxStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/outbox/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["NEW"] != 3 || body["SENT"] != 120 {
		t.Errorf("unexpected stats: %#v", body)
	}
}

func TestAdminHandler_OutboxStats_Error(t *testing.T) {
	h := NewAdminHandler(&stubOutboxInspector{err: errors.New("db down")}, &stubRetryInspector{})

	rec := httptest.NewRecorder()
	h.OutboxStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/outbox/stats", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAdminHandler_RetryQuarantine(t *testing.T) {
	h := NewAdminHandler(&stubOutboxInspector{}, &stubRetryInspector{
		entries: map[string]string{"{broken": "unexpected end of JSON input"},
	})

	rec := httptest.NewRecorder()
	h.RetryQuarantine(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/retries/quarantine", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Count   int               `json:"count"`
		Entries map[string]string `json:"entries"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 1 {
		t.Errorf("expected count 1, got %d", body.Count)
	}
	if body.Entries["{broken"] == "" {
		t.Errorf("expected decode error for quarantined member, got %#v", body.Entries)
	}
}

func TestAdminHandler_RetryQuarantine_Error(t *testing.T) {
	h := NewAdminHandler(&stubOutboxInspector{}, &stubRetryInspector{err: errors.New("redis down")})

	rec := httptest.NewRecorder()
	h.RetryQuarantine(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/retries/quarantine", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
