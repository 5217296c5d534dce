// Package api exposes candidate generation and run history over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/database"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/x9/internal/telemetry"
)

// RunStore is the read side of run history. *database.Store satisfies it.
type RunStore interface {
	ListRuns(ctx context.Context, filter database.RunFilter) ([]*database.Run, error)
	GetRun(ctx context.Context, id string) (*database.Run, error)
	GetCandidates(ctx context.Context, runID string, limit int) ([]database.CandidateRecord, error)
	Ping(ctx context.Context) error
}

type Server struct {
	cfg       *config.Config
	logger    *logger.Logger
	telemetry telemetry.Telemetry
	store     RunStore
	version   string
	router    *gin.Engine
}

type Option func(*Server)

// WithStore enables the /api/v1/runs endpoints.
func WithStore(store RunStore) Option {
	return func(s *Server) { s.store = store }
}

func WithTelemetry(t telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

func NewServer(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	if cfg.Security.EnableAuth && cfg.Security.APIKey == "" {
		return nil, fmt.Errorf("API key not configured: set X9_API_KEY or security.api_key")
	}

	s := &Server{
		cfg:       cfg,
		logger:    log.WithComponent("api"),
		telemetry: telemetry.Noop(),
		version:   logger.Version,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware(s.logger))

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	if s.cfg.Security.EnableAuth {
		v1.Use(AuthMiddleware(s.cfg.Security.APIKey, s.logger))
	}
	v1.Use(RateLimitMiddleware(ratelimit.NewKeyedLimiter(ratelimit.FromConfig(s.cfg.Security.RateLimit))))

	v1.POST("/generate", s.handleGenerate)
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:id", s.handleGetRun)
	return router
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			healthy = false
			checks["database"] = gin.H{"status": "unhealthy", "error": err.Error()}
		} else {
			checks["database"] = gin.H{"status": "healthy"}
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":   healthy,
		"checks":    checks,
		"timestamp": time.Now().Unix(),
		"version":   s.version,
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down within the
// configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Infow("HTTP server listening", "address", addr, "auth", s.cfg.Security.EnableAuth)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Infow("Shutting down HTTP server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
