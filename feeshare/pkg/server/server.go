// Package server exposes the fee engine's admin HTTP surface.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/moltpump/feeshare/feeshare/pkg/feesharing"
	"github.com/moltpump/feeshare/feeshare/pkg/metrics"
	"github.com/moltpump/feeshare/feeshare/pkg/scheduler"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBatchMints = 10

// Fees is the fee sharing surface served over HTTP.
type Fees interface {
	Status(ctx context.Context, mint solana.PublicKey) *feesharing.FeeStatus
	ConfigStatus(ctx context.Context, mint solana.PublicKey) (bool, error)
	DistributeCreatorFees(ctx context.Context, mint solana.PublicKey) (*feesharing.Distribution, error)
	TokensReadyForDistribution(ctx context.Context, mints []solana.PublicKey) []solana.PublicKey
	BatchDistributeCreatorFees(ctx context.Context, mints []solana.PublicKey) []feesharing.MintDistribution
	SetupFeeSharing(ctx context.Context, mint, agent solana.PublicKey) (*feesharing.SetupResult, error)
	AgentStats(ctx context.Context, mints []solana.PublicKey) *feesharing.AgentStats
}

type Runner interface {
	TriggerManualRun(ctx context.Context) (*scheduler.BatchResult, error)
}

// Assets looks up launched assets. Optional; without it setup requires an
// explicit agent wallet and stats are unavailable.
type Assets interface {
	FindAssetByMint(ctx context.Context, mint string) (*store.Asset, error)
	ListAssetsByAgent(ctx context.Context, agent string) ([]store.Asset, error)
}

// Events reads the audit trail. Optional.
type Events interface {
	RecentEvents(ctx context.Context, mint string, limit int) ([]store.Event, error)
}

type Config struct {
	Logger    *slog.Logger
	Addr      string
	AuthToken string
	Fees      Fees
	Runner    Runner
	Assets    Assets
	Events    Events

	// AllowedOrigins enables CORS for browser dashboards. Empty disables it.
	AllowedOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Fees == nil {
		return errors.New("fees are required")
	}
	if cfg.Runner == nil {
		return errors.New("runner is required")
	}
	if cfg.AuthToken == "" {
		return errors.New("auth token is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	// Manual runs pace between assets and can take minutes.
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Minute
	}
	return nil
}

type Server struct {
	log    *slog.Logger
	cfg    Config
	router *chi.Mux
	srv    *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1/fees", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status/{mint}", s.handleStatus)
		r.Post("/distribute", s.handleDistribute)
		r.Post("/distribute/batch", s.handleBatchDistribute)
		r.Post("/setup", s.handleSetup)
		r.Post("/auto-distribute", s.handleAutoDistribute)
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server: listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server: shutting down")
	return s.srv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("server: failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
