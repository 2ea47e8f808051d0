// Package api exposes the diagnostic and plan lifecycle over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/config"
	"github.com/sells-group/raiox/internal/diagnostic"
	"github.com/sells-group/raiox/internal/monitoring"
	"github.com/sells-group/raiox/internal/plan"
	"github.com/sells-group/raiox/internal/snapshot"
)

// CompanyHeader carries the caller's company when an upstream gateway has
// authenticated the request.
const CompanyHeader = "X-Company-ID"

// Deps are the services behind the HTTP handlers.
type Deps struct {
	Diagnostic *diagnostic.Service
	Plan       *plan.Service
	Snapshots  *snapshot.Service
	Catalogs   *catalog.Provider
	Audit      *monitoring.Auditor
	Pinger     monitoring.Pinger
}

// Server holds the handler dependencies.
type Server struct {
	deps     Deps
	validate *validator.Validate
}

// NewRouter builds the /v1 API with its middleware chain.
func NewRouter(deps Deps, cfg config.ServerConfig) http.Handler {
	s := &Server{deps: deps, validate: newValidator()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", CompanyHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute).middleware)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/companies/{companyID}/assessment", s.handleCompanyAssessment)

		r.Route("/assessments/{id}", func(r chi.Router) {
			r.Use(s.companyScope)

			r.Get("/", s.handleGetAssessment)
			r.Put("/answers", s.handleSaveAnswers)
			r.Post("/answers", s.handleSaveAnswers)
			r.Post("/submit", s.handleSubmit)

			r.Get("/cause/pending", s.handlePendingCauses)
			r.Post("/cause/answer", s.handleAnswerCause)

			r.Get("/actions", s.handleActions)
			r.Get("/plan", s.handleCurrentPlan)
			r.Post("/plan", s.handleSelectPlan)
			r.Post("/plan/evidence", s.handlePlanEvidence)
			r.Post("/actions/{actionKey}/status", s.handleActionStatus)
			r.Post("/actions/{actionKey}/dod", s.handleConfirmDoD)
			r.Post("/actions/{actionKey}/evidence", s.handleActionEvidence)

			r.Post("/close", s.handleClose)
			r.Post("/new-cycle", s.handleNewCycle)
			r.Get("/snapshots", s.handleSnapshots)
			r.Get("/history", s.handleHistory)
		})

		r.Post("/admin/catalog/reload", s.handleCatalogReload)
	})
	return r
}
