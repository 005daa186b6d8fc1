// Package api implements the storefront-facing REST API of the campaign
// engine. It handles HTTP routing, request decoding, validation, and
// response formatting.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// CampaignSelector is the engine operation the API exposes.
// We use the interface type to allow for mocking in unit tests.
type CampaignSelector interface {
	SelectCampaigns(ctx context.Context, storeID string, visitor targeting.VisitorContext) (*targeting.Selection, error)
}

// VisitorRedactor removes every frequency counter belonging to a visitor.
// Backed by the cap ledger; called by data-redaction workflows.
type VisitorRedactor interface {
	RedactVisitor(ctx context.Context, storeID, visitorID string) (int, error)
}

// API is the main struct that holds dependencies and the router.
// It follows the Dependency Injection pattern to facilitate testing.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	engine   CampaignSelector
	redactor VisitorRedactor
	logger   *slog.Logger
}

// NewAPI creates a new API instance.
//
// Panics if engine or redactor are nil.
func NewAPI(engine CampaignSelector, redactor VisitorRedactor, log *slog.Logger) *API {
	// We check the interface explicitly.
	// An interface is only nil if it has no underlying type and no value.
	if engine == nil {
		panic("api: campaign selector cannot be nil")
	}
	if redactor == nil {
		panic("api: visitor redactor cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	a := &API{
		Router:   chi.NewRouter(),
		engine:   engine,
		redactor: redactor,
		logger:   log,
	}

	a.configureRoutes()
	return a
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// 1. Global Middleware Stack
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// RequestLogger: injects a request-scoped logger and logs completions.
	a.Router.Use(RequestLogger(a.logger))
	// Recoverer: Prevents the server from crashing on panics, returning 500 instead.
	a.Router.Use(middleware.Recoverer)
	// Content-Type: Forces JSON content type for API responses.
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	// 2. Public Routes
	a.Router.Get("/health", a.handleHealthCheck)

	// 3. API V1 Routes
	a.Router.Route("/api/v1/stores/{storeID}", func(r chi.Router) {
		r.Post("/selections", a.handleSelect)
		r.Delete("/visitors/{visitorID}/counters", a.handleRedactVisitor)
	})
}

// handleHealthCheck verifies the service can serve HTTP. Deep dependency
// checks live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
