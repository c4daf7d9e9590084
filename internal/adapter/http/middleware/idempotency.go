package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/iho/payflow/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency keys.
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
)

// IdempotencyMiddleware deduplicates client submissions keyed by the
// Idempotency-Key header. The first request claims the key; a concurrent
// duplicate gets 409 while the first is still running, and a later replay
// gets the recorded response.
type IdempotencyMiddleware struct {
	store usecase.IdempotencyStore
}

// NewIdempotencyMiddleware creates a new IdempotencyMiddleware.
func NewIdempotencyMiddleware(store usecase.IdempotencyStore) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{store: store}
}

// Wrap wraps an http.Handler with idempotency checking.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := sha256.Sum256(body)
		claimed, err := m.store.TryInsertPending(r.Context(), key, hex.EncodeToString(hash[:]), idempotencyTTL)
		if err != nil {
			http.Error(w, "idempotency check failed", http.StatusInternalServerError)
			return
		}

		if !claimed {
			cached, err := m.store.FindByKey(r.Context(), key)
			if err != nil {
				http.Error(w, "idempotency check failed", http.StatusInternalServerError)
				return
			}

			if cached == nil {
				// First request still in flight.
				http.Error(w, "request with this idempotency key is still processing", http.StatusConflict)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replay", "true")
			w.Write(cached)

			return
		}

		recorder := &responseRecorder{
			ResponseWriter: w,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(recorder, r)

		// Only successful responses are worth replaying; a failure
		// releases the key so the client can retry.
		if recorder.statusCode >= 200 && recorder.statusCode < 300 {
			m.store.UpdateResponsePayload(r.Context(), key, recorder.body.Bytes(), idempotencyTTL)
		} else {
			m.store.Release(r.Context(), key)
		}
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
