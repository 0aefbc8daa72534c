package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/operator-console/internal/console"
	"github.com/capitalize-ai/operator-console/internal/middleware"
	"github.com/capitalize-ai/operator-console/pkg/logger"
)

// RouterConfig configures the local API router.
type RouterConfig struct {
	AllowedOrigins    []string
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	ReadyChecks       map[string]ReadyCheck
}

// NewRouter builds the console's HTTP API around a session.
func NewRouter(s *console.Session, cfg RouterConfig, log *logger.Logger) http.Handler {
	healthHandler := NewHealthHandler(cfg.ReadyChecks)
	conversationHandler := NewConversationHandler(s, log)
	messageHandler := NewMessageHandler(s, log)
	streamHandler := NewStreamHandler(s, log)
	taskHandler := NewTaskHandler(s)
	viewportHandler := NewViewportHandler(s)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins...))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, s.OperatorID()))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Get("/events", streamHandler.Stream)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/more", conversationHandler.LoadMore)
			r.Post("/refresh", conversationHandler.Refresh)
			r.Post("/scroll", viewportHandler.ListScroll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/select", conversationHandler.Select)
				r.Post("/archive", conversationHandler.Archive)
				r.Post("/unread", conversationHandler.MarkUnread)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages/more", messageHandler.LoadMore)
				r.Post("/messages/{token}/resend", messageHandler.Resend)
			})
		})

		r.Get("/selection", conversationHandler.Selection)
		r.Delete("/selection", conversationHandler.Deselect)

		r.Post("/messages", messageHandler.Send)
		r.Post("/messages/image", messageHandler.SendImage)

		r.Post("/viewport/scroll", viewportHandler.Scroll)
		r.Post("/viewport/content", viewportHandler.ContentChanged)

		r.Get("/tasks/{id}/progress", taskHandler.Progress)
	})

	return r
}
