package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/docpipeline/internal/api/handlers"
	"github.com/nikhilbhutani/docpipeline/internal/api/middleware"
	"github.com/nikhilbhutani/docpipeline/internal/config"
	"github.com/nikhilbhutani/docpipeline/internal/document"
)

// Router wires the REST surface over the document service.
type Router struct {
	mux     *chi.Mux
	cfg     *config.Config
	docs    *document.Service
	checks  map[string]handlers.Check
	limiter *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, docs *document.Service, checks map[string]handlers.Check) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg,
		docs:    docs,
		checks:  checks,
		limiter: middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

// Limiter exposes the rate limiter so the caller can run its cleanup loop.
func (rt *Router) Limiter() *middleware.RateLimiter {
	return rt.limiter
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))
	r.Use(rt.limiter.Limit)

	health := handlers.NewHealthHandler(rt.checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		docH := handlers.NewDocumentHandler(rt.docs, rt.cfg.MaxUploadBytes())
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Get("/search", docH.Search)
			r.Get("/{id}", docH.Get)
			r.Put("/{id}", docH.Update)
			r.Delete("/{id}", docH.Delete)
		})
	})

	return r
}
