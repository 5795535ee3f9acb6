// Package statusapi exposes the daemon's current state over HTTP: stream
// health, per-account positions/P&L/lockouts, and the enforcement log —
// read-only, for dashboards and operator tooling. Grounded on the
// teacher's chi-based HTTP server.
package statusapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/brokerapi"
	"github.com/riskd/sentinel-risk-daemon/internal/lockout"
	"github.com/riskd/sentinel-risk-daemon/internal/persistence"
	"github.com/riskd/sentinel-risk-daemon/internal/pnltracker"
	"github.com/riskd/sentinel-risk-daemon/internal/selfhealth"
	"github.com/riskd/sentinel-risk-daemon/internal/state"
	"github.com/riskd/sentinel-risk-daemon/internal/stream"
)

// DiagnosticsSource reports the brokerage client's rate-limit, error, and
// token-manager observability state (§12.1-§12.3). Satisfied by
// *brokerapi.Client; narrowed so handler tests don't need a live client.
type DiagnosticsSource interface {
	Diagnostics() brokerapi.Diagnostics
}

// StreamHealth reports the connectivity state of the user and market data
// hubs. Satisfied by *stream.Manager; narrowed to an interface here so
// tests don't need a live stream connection.
type StreamHealth interface {
	UserHealth() stream.HealthStatus
	MarketHealth() stream.HealthStatus
}

// Config holds the dependencies and listen address for the status server.
type Config struct {
	Port        int
	Log         zerolog.Logger
	Stream      StreamHealth
	State       *state.Manager
	PnL         *pnltracker.Tracker
	Lockouts    *lockout.Manager
	Store       *persistence.Store
	Accounts    []int64
	DevMode     bool
	Health      *selfhealth.Monitor
	Diagnostics DiagnosticsSource
}

// Server serves the daemon's read-only status API.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New builds a Server with routes wired and ready to Start.
func New(cfg Config) *Server {
	if cfg.Health == nil {
		cfg.Health = selfhealth.New(cfg.Log)
	}

	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "statusapi").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleSystemStatus)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/positions", s.handlePositions)
			r.Get("/pnl", s.handlePnL)
			r.Get("/lockout", s.handleLockout)
			r.Get("/enforcement-log", s.handleEnforcementLog)
		})
	})
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting status api")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down status api")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
