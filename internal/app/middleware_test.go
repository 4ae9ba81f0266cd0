package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[key]; ok && existing == module {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func newTestRouter(t *testing.T, store IdempotencyStore, handler http.HandlerFunc) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Idempotency: store,
	}) {
		r.Use(mw)
	}
	r.Post("/api/v1/procurement/receipts", handler)
	return r
}

func TestIdempotencyKeyRejectsReplayAfterSuccess(t *testing.T) {
	store := newMemoryIdempotency()
	router := newTestRouter(t, store, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	key := uuid.NewString()

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/procurement/receipts", nil)
	req.Header.Set("Idempotency-Key", key)
	router.ServeHTTP(first, req)
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/procurement/receipts", nil)
	req.Header.Set("Idempotency-Key", key)
	router.ServeHTTP(second, req)
	require.Equal(t, http.StatusConflict, second.Code)
}

func TestIdempotencyKeyReleasedWhenRequestFails(t *testing.T) {
	store := newMemoryIdempotency()
	calls := 0
	router := newTestRouter(t, store, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	key := uuid.NewString()

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/procurement/receipts", nil)
	req.Header.Set("Idempotency-Key", key)
	router.ServeHTTP(first, req)
	require.Equal(t, http.StatusConflict, first.Code)

	// The first attempt applied nothing; the same key must be usable again.
	retry := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/procurement/receipts", nil)
	req.Header.Set("Idempotency-Key", key)
	router.ServeHTTP(retry, req)
	require.Equal(t, http.StatusCreated, retry.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyKeyMustBeUUID(t *testing.T) {
	store := newMemoryIdempotency()
	router := newTestRouter(t, store, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/procurement/receipts", nil)
	req.Header.Set("Idempotency-Key", "not-a-uuid")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
