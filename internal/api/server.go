// SPDX-License-Identifier: MIT

// Package api serves the HTTP interface: search, offers, the
// recommendation endpoint and CSV export, plus the probe endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/farewatch/farewatch/internal/api/middleware"
	"github.com/farewatch/farewatch/internal/cache"
	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/flights"
	"github.com/farewatch/farewatch/internal/gflights"
	"github.com/farewatch/farewatch/internal/health"
	"github.com/farewatch/farewatch/internal/jobs"
	"github.com/farewatch/farewatch/internal/recommend"
	"github.com/farewatch/farewatch/internal/store"
)

// Recommender phrases the best offer. *recommend.Recommender implements it.
type Recommender interface {
	Recommend(ctx context.Context, offers []flights.Offer, c flights.Criteria, notes string) (*recommend.Recommendation, error)
}

// SearchReader reads persisted searches. *store.Store implements it.
type SearchReader interface {
	GetSearch(ctx context.Context, id string) (*store.Search, error)
	ListSearches(ctx context.Context, limit int) ([]store.Search, error)
	ListOffers(ctx context.Context, searchID string) ([]flights.Offer, error)
}

// Deps are the server's collaborators.
type Deps struct {
	Jobs        jobs.Deps
	Store       SearchReader
	Recommender Recommender
	Tracker     *jobs.Tracker
	Health      *health.Manager
	Breaker     *gflights.CircuitBreaker
	Cache       cache.Cache
}

// Server is the farewatch HTTP API.
type Server struct {
	cfg  config.AppConfig
	deps Deps
}

// New creates the API server.
func New(cfg config.AppConfig, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		EnableMetrics:    s.cfg.MetricsEnabled,
		TracingService:   "farewatch",
		EnableLogging:    true,
		RateLimitEnabled: s.cfg.RateLimitEnabled,
		RateLimitPerMin:  s.cfg.RateLimitPerMin,
		RateLimitBurst:   s.cfg.RateLimitBurst,
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerAuth(s.cfg.APIToken))

		r.With(middleware.SearchRateLimit(s.cfg.RateLimitBurst)).
			Post("/search", s.handleSearch)
		r.With(middleware.SearchRateLimit(s.cfg.RateLimitBurst)).
			Post("/recommend", s.handleRecommend)

		r.Get("/searches", s.handleListSearches)
		r.Get("/searches/{id}/offers", s.handleListOffers)
		r.Get("/export", s.handleExport)
		r.Get("/status", s.handleStatus)
	})

	return r
}
