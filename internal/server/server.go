// Package server assembles the HTTP + WebSocket API surface of the engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/server/handler"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/server/middleware"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Streams *handler.StreamHandler
	Markets *handler.MarketHandler
	Oracle  *handler.OracleHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered, wiring logging and
// CORS middleware and attaching the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Stream ledger operations.
	mux.HandleFunc("POST /api/streams", handlers.Streams.Initialize)
	mux.HandleFunc("GET /api/streams/{id}", handlers.Streams.Get)
	mux.HandleFunc("GET /api/streams/{id}/donors", handlers.Streams.ListDonors)
	mux.HandleFunc("POST /api/streams/{id}/start", handlers.Streams.Start)
	mux.HandleFunc("POST /api/streams/{id}/deposit", handlers.Streams.Deposit)
	mux.HandleFunc("POST /api/streams/{id}/distribute", handlers.Streams.Distribute)
	mux.HandleFunc("POST /api/streams/{id}/refund", handlers.Streams.Refund)
	mux.HandleFunc("POST /api/streams/{id}/complete", handlers.Streams.Complete)
	mux.HandleFunc("POST /api/streams/{id}/update", handlers.Streams.Update)

	// Betting market operations and views.
	mux.HandleFunc("POST /api/markets", handlers.Markets.Initialize)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.Get)
	mux.HandleFunc("GET /api/markets/{id}/probabilities", handlers.Markets.Probabilities)
	mux.HandleFunc("GET /api/markets/{id}/positions/{bettor}", handlers.Markets.GetPosition)
	mux.HandleFunc("GET /api/markets/{id}/resolution", handlers.Markets.GetResolution)
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Markets.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Markets.Claim)
	mux.HandleFunc("POST /api/markets/{id}/randomness", handlers.Markets.RequestRandomness)
	mux.HandleFunc("POST /api/markets/{id}/votes", handlers.Markets.Vote)

	// Oracle callback.
	mux.HandleFunc("POST /api/oracle/callback", handlers.Oracle.Callback)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. With no origins
// configured it allows all.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}
				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
