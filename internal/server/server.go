package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tomlord1122/todo-graphql/internal/config"
	"github.com/Tomlord1122/todo-graphql/internal/dashboard"
	"github.com/Tomlord1122/todo-graphql/internal/service"
)

// HealthChecker reports the state of the backing store.
type HealthChecker interface {
	Health() map[string]string
}

type Server struct {
	port        int
	corsOrigins []string
	todoService service.TodoService
	graphql     http.Handler
	db          HealthChecker
	guestTokens dashboard.GuestTokenProvider
	logger      *slog.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithHealthChecker reports db health on /health. Without it the store is
// assumed to be in memory and always up.
func WithHealthChecker(db HealthChecker) Option {
	return func(s *Server) { s.db = db }
}

// WithGuestTokens enables the dashboard guest-token endpoint.
func WithGuestTokens(p dashboard.GuestTokenProvider) Option {
	return func(s *Server) { s.guestTokens = p }
}

// WithGraphQL mounts h on /api/graphql.
func WithGraphQL(h http.Handler) Option {
	return func(s *Server) { s.graphql = h }
}

func newServer(cfg *config.Config, todoService service.TodoService, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		port:        cfg.Port,
		corsOrigins: cfg.CORSAllowedOrigins,
		todoService: todoService,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServer builds the HTTP server for the todo API.
func NewServer(cfg *config.Config, todoService service.TodoService, logger *slog.Logger, opts ...Option) *http.Server {
	appServer := newServer(cfg, todoService, logger, opts...)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appServer.port),
		Handler:      appServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}
