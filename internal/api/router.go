package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/api/middleware"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/gateway"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/handlers"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter creates and configures the HTTP router. socket serves the
// websocket endpoint.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, socket http.Handler, opts Options) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 * 1024
	}

	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", gateway.IdentityHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Live relay
	r.Handle("/ws", socket)

	r.Route("/channels", func(r chi.Router) {
		r.Get("/", h.ListChannels)
		r.Get("/{channel}/messages", h.GetHistory)
		r.Delete("/{channel}", h.DeleteChannel)
		r.Delete("/{channel}/messages/{id}", h.SoftDeleteMessage)
	})
	r.Get("/users/{id}/unread", h.GetUnread)

	return r
}
