package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gudang-erp/gudang-erp/internal/catalog"
	"github.com/gudang-erp/gudang-erp/internal/ledger"
	"github.com/gudang-erp/gudang-erp/internal/purchasing"
	"github.com/gudang-erp/gudang-erp/internal/sales"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	CatalogHandler    *catalog.Handler
	SalesHandler      *sales.Handler
	PurchasingHandler *purchasing.Handler
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/inventory", func(g chi.Router) {
			params.LedgerHandler.MountRoutes(g)
		})
		api.Route("/catalog", func(g chi.Router) {
			params.CatalogHandler.MountRoutes(g)
		})
		api.Route("/sales", func(g chi.Router) {
			params.SalesHandler.MountRoutes(g)
		})
		api.Route("/purchasing", func(g chi.Router) {
			params.PurchasingHandler.MountRoutes(g)
		})
	})

	return r
}
