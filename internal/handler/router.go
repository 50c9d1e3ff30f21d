package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/player-messaging/internal/middleware"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

// RouterConfig wires handlers and middleware settings into a router.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string

	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Blocks        *BlockHandler
	Internal      *InternalHandler

	Logger *logger.Logger
}

// NewRouter builds the HTTP routes of the messaging API.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Player routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequirePlayer)
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.PlayerRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", cfg.Conversations.List)
			r.Post("/", cfg.Conversations.Start)
			r.Get("/unread-count", cfg.Conversations.UnreadCount)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Conversations.Get)
				r.Post("/accept", cfg.Conversations.Accept)
				r.Post("/deny", cfg.Conversations.Deny)
				r.Post("/ignore", cfg.Conversations.Ignore)
				r.Post("/report", cfg.Conversations.Report)

				r.Get("/messages", cfg.Messages.List)
				r.Post("/messages", cfg.Messages.Send)
				r.Post("/read", cfg.Messages.MarkRead)
				r.Post("/typing", cfg.Messages.Typing)
			})
		})

		r.Route("/blocks", func(r chi.Router) {
			r.Get("/", cfg.Blocks.List)
			r.Put("/{playerId}", cfg.Blocks.Block)
			r.Delete("/{playerId}", cfg.Blocks.Unblock)
		})
	})

	// Collaborator routes
	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.With(middleware.RequireScope(middleware.ScopeMarketplace)).
			Post("/listings/{id}/{event}", cfg.Internal.ListingEvent)
		r.With(middleware.RequireScope(middleware.ScopeIdentity)).
			Put("/players/{id}", cfg.Internal.PutPlayer)
	})

	return r
}
