package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitechain-erp/sitechain-erp/internal/ap"
	"github.com/sitechain-erp/sitechain-erp/internal/inventory"
	"github.com/sitechain-erp/sitechain-erp/internal/masterdata"
	"github.com/sitechain-erp/sitechain-erp/internal/observability"
	"github.com/sitechain-erp/sitechain-erp/internal/procurement"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Pool               *pgxpool.Pool
	MasterDataHandler  *masterdata.Handler
	InventoryHandler   *inventory.Handler
	ProcurementHandler *procurement.Handler
	SupplierHandler    *ap.Handler
	Metrics            *observability.Metrics
	Idempotency        IdempotencyStore
}

// NewRouter constructs the chi.Router with SiteChain defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Metrics:     params.Metrics,
		Idempotency: params.Idempotency,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				params.Logger.Warn("readiness ping", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.MasterDataHandler != nil {
			r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.ProcurementHandler != nil {
			r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		}
		if params.SupplierHandler != nil {
			r.Route("/finance/ap", params.SupplierHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
