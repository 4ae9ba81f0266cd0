package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/unrolled/secure"

	"github.com/sitechain-erp/sitechain-erp/internal/observability"
	"github.com/sitechain-erp/sitechain-erp/internal/platform/httpx"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// Header carrying the acting user. Authentication lives at the gateway;
// the core only records who acted on every write.
const (
	actorIDHeader   = "X-Actor-ID"
	actorNameHeader = "X-Actor-Name"
	idempotencyKey  = "Idempotency-Key"
)

// IdempotencyStore is the subset of shared.IdempotencyStore the middleware
// needs: claim a key up front, release it when the request failed so the
// client's retry is not rejected for work that never happened.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger      *slog.Logger
	Config      *Config
	Metrics     *observability.Metrics
	Idempotency IdempotencyStore
}

// MiddlewareStack installs the middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	actorMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(actorIDHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "invalid actor", "X-Actor-ID must be a positive integer")
				return
			}
			actor := shared.Actor{ID: id, Name: r.Header.Get(actorNameHeader)}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}

	idempotencyMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Idempotency == nil || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(idempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := uuid.Parse(key); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "invalid idempotency key", "Idempotency-Key must be a UUID")
				return
			}
			if err := cfg.Idempotency.CheckAndInsert(r.Context(), key, moduleFromPath(r.URL.Path)); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "duplicate request", "this idempotency key was already processed")
					return
				}
				cfg.Logger.Error("idempotency check", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "internal error", "")
				return
			}
			recorder := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			// A failed request applied no effect; release the key so the
			// client's retry is not turned away as a duplicate.
			if recorder.status >= http.StatusMultipleChoices {
				if err := cfg.Idempotency.Delete(r.Context(), key); err != nil {
					cfg.Logger.Warn("idempotency key release", slog.Any("error", err))
				}
			}
		})
	}

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	limit := 120
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		limit = cfg.Config.RateLimitPerMinute
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		actorMiddleware,
		idempotencyMiddleware,
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// moduleFromPath namespaces idempotency keys by the first API segment so a
// key replayed against a different module still counts as a new request.
func moduleFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/")
	if i := strings.IndexByte(trimmed, '/'); i > 0 {
		return trimmed[:i]
	}
	if trimmed == "" {
		return "root"
	}
	return trimmed
}
