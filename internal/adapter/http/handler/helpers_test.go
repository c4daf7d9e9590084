package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iho/payflow/internal/adapter/http/dto"
	"github.com/iho/payflow/internal/domain"
)

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"payment not found", domain.ErrPaymentNotFound, http.StatusNotFound},
		{"order not found", domain.ErrPaymentOrderNotFound, http.StatusNotFound},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict},
		{"order lines mismatch", domain.ErrOrderLinesMismatch, http.StatusBadRequest},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"invalid currency", domain.ErrInvalidCurrency, http.StatusBadRequest},
		{"missing psp reference", domain.ErrMissingPSPReference, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.want {
				t.Errorf("mapDomainError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"id": "pay-1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "pay-1" {
		t.Errorf("unexpected body: %#v", body)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, "invalid request", "missing buyer")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "invalid request" || body.Message != "missing buyer" {
		t.Errorf("unexpected body: %#v", body)
	}
}
