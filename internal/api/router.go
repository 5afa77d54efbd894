package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/tarschat/internal/api/middleware"
	"github.com/eldtechnologies/tarschat/internal/handlers"
)

const (
	// maxBodyBytes bounds every request body except webhooks.
	maxBodyBytes = 8 * 1024
	// maxWebhookBodyBytes bounds identity provider payloads, which carry
	// every address and metadata blob of a user.
	maxWebhookBodyBytes = 1 << 20
)

// RouterConfig holds what NewRouter wires together. RedisClient may be nil.
type RouterConfig struct {
	Logger      zerolog.Logger
	Handler     *handlers.Handler
	Auth        *middleware.AuthMiddleware
	RedisClient *redis.Client
	RateLimit   middleware.RateLimiterConfig
	CORSOrigins []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	h := cfg.Handler

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes, middleware.BodyLimit{
		Prefix:   "/webhooks/",
		MaxBytes: maxWebhookBodyBytes,
	}))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(cfg.RedisClient, cfg.Logger, cfg.RateLimit)
	r.Use(limiter.Middleware)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/webhooks/identity", h.IdentityWebhook)

	// Authenticated routes (require a bearer token)
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.RequireAuth)

		r.Get("/ws", h.Websocket)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/me", h.UpsertMe)
			r.Get("/me", h.Me)
			r.Get("/{id}", h.GetUser)
		})
		r.Put("/presence", h.SetPresence)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.ListConversations)
			r.Post("/direct", h.CreateDirect)
			r.Post("/group", h.CreateGroup)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetConversation)
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.SendMessage)
				r.Get("/typing", h.ActiveTypers)
				r.Put("/typing", h.SetTyping)
				r.Delete("/typing", h.ClearTyping)
				r.Get("/read", h.ListReadReceipts)
				r.Post("/read", h.MarkRead)
			})
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Delete("/", h.DeleteMessage)
			r.Post("/reactions", h.ToggleReaction)
		})
	})

	return r
}
