package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dgnsrekt/relay-watcher/internal/notify"
)

// Watcher is the view of the poll scheduler the control surface needs.
type Watcher interface {
	Watermark() time.Time
}

// Gate is the view of the notification gate the control surface needs.
type Gate interface {
	LastSentAt() time.Time
}

// Server exposes the manual-trigger and status endpoints. The manual trigger
// invokes the dispatcher directly, bypassing the cooldown gate, and surfaces
// send failures synchronously.
type Server struct {
	relays  []string
	topic   string
	watcher Watcher
	gate    Gate
	sender  notify.Sender
	logger  *zap.Logger
}

// NewServer creates the control surface.
func NewServer(relays []string, topic string, watcher Watcher, gate Gate, sender notify.Sender, logger *zap.Logger) *Server {
	return &Server{
		relays:  relays,
		topic:   topic,
		watcher: watcher,
		gate:    gate,
		sender:  sender,
		logger:  logger,
	}
}

// NewRouter builds the HTTP handler for the control surface.
func NewRouter(server *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/healthz", server.handleHealthz)
	r.Get("/status", server.handleStatus)
	r.Post("/notify", server.handleNotify)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
		})
	}
}
