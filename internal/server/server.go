// Package server exposes discovery sessions over HTTP: an SSE stream, a
// WebSocket stream, stored sessions, DNS record lookup, health and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hakim/bughunter/internal/metrics"
	"github.com/hakim/bughunter/internal/pipeline"
	"github.com/hakim/bughunter/internal/resolver"
	"github.com/hakim/bughunter/internal/storage"
)

// Lookuper runs a multi-resolver DNS record lookup
type Lookuper interface {
	Lookup(ctx context.Context, domain string) *resolver.LookupReport
}

// Config holds server configuration
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Debug           bool
}

// Deps are the collaborators behind the routes. Store, Lookup and Metrics
// are optional; their routes answer 503 or are not mounted when missing.
type Deps struct {
	Runner  *pipeline.Runner
	Store   storage.SessionStore
	Lookup  Lookuper
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     Config
	deps       Deps
	logger     *slog.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		router: gin.New(),
		config: cfg,
		deps:   deps,
		logger: deps.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures recovery, logging and CORS
func (s *Server) setupMiddleware() {
	// Recovery middleware (handles panics)
	s.router.Use(gin.Recovery())

	s.router.Use(s.requestLogger())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if allowAll(s.config.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
	}
	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.GET("/subdomain-stream", s.handleStream)
		api.POST("/subdomain-stream", s.handleStream)

		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:id", s.handleGetSession)
		api.DELETE("/sessions/:id", s.handleDeleteSession)

		api.POST("/dns-lookup", s.handleDNSLookup)
	}

	s.router.GET("/ws/subdomain-stream", s.handleWebSocket)
}

// requestLogger logs requests in a structured format
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// Skip logging for health checks and metric scrapes
		if path == "/healthz" || path == "/metrics" {
			return
		}

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", path,
			"query", c.Request.URL.RawQuery,
			"status", status,
			"latency", time.Since(start).Round(time.Microsecond),
			"client", c.ClientIP(),
		)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: event streams stay open for the whole scan
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", s.config.ShutdownTimeout)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
