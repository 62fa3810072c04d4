package api

import (
	"log/slog"

	"github.com/Fantasim/rektrescue/internal/api/handlers"
	"github.com/Fantasim/rektrescue/internal/api/middleware"
	"github.com/Fantasim/rektrescue/internal/viewstate"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps *handlers.Deps) chi.Router {
	if deps.Version == "" {
		deps.Version = Version
	}

	r := chi.NewRouter()

	// Middleware stack (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogging)
	r.Use(middleware.HostCheck)
	r.Use(middleware.CORS)
	r.Use(middleware.CSRF)

	slog.Info("router initialized",
		"middleware", []string{"requestID", "recoverer", "requestLogging", "hostCheck", "cors", "csrf"},
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthHandler(deps))
		r.Get("/health/providers", handlers.GetProviderHealth(deps))
		r.Get("/chain/head", handlers.ChainHead(deps))

		r.Post("/approvals/scan", handlers.ScanApprovals(deps))
		r.Get("/approvals/latest", handlers.LatestResult(deps, viewstate.KindApprovals))
		r.Post("/dust/scan", handlers.ScanDust(deps))
		r.Get("/dust/latest", handlers.LatestResult(deps, viewstate.KindDust))
		r.Post("/protocols/assess", handlers.AssessProtocols(deps))
		r.Get("/protocols/latest", handlers.LatestResult(deps, viewstate.KindProtocols))

		r.Post("/revoke", handlers.RevokeApproval(deps))
		r.Post("/actions", handlers.SubmitAction(deps))

		r.Route("/batch", func(r chi.Router) {
			r.Get("/", handlers.ListBatch(deps))
			r.Post("/", handlers.AddToBatch(deps))
			r.Delete("/", handlers.ClearBatch(deps))
			r.Post("/submit", handlers.SubmitBatch(deps))
			r.Delete("/{id}", handlers.RemoveFromBatch(deps))
		})

		r.Get("/submissions", handlers.ListSubmissions(deps))
		r.Get("/scans", handlers.ListScanLog(deps))
		r.Get("/registry/spenders/{address}", handlers.LookupSpender(deps))
	})

	r.Handle("/metrics", deps.Metrics.Handler())

	return r
}
