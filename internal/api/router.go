package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adamscao/captionapi/internal/api/handlers"
	"github.com/adamscao/captionapi/internal/api/middleware"
	"github.com/adamscao/captionapi/internal/auth"
	"github.com/adamscao/captionapi/internal/config"
	"github.com/adamscao/captionapi/internal/db/repository"
	"github.com/adamscao/captionapi/internal/service"
)

// Deps are the collaborators the HTTP server routes to
type Deps struct {
	Accounts  *service.AccountService
	Tokens    *auth.TokenManager
	Ledger    *repository.EndpointStatsRepository
	AuditRepo *repository.AuditRepository
	Logger    *zap.Logger
	// Registry receives the HTTP collectors and backs /metrics. A fresh
	// registry is created when nil.
	Registry *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	http   *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	if cfg.Metrics.Enabled {
		metrics, err := middleware.NewHTTPMetrics(registry)
		if err != nil {
			return nil, err
		}
		router.Use(metrics.Handler())
	}
	router.Use(middleware.TrackEndpoint(deps.Ledger, logger))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	router.NoRoute(func(c *gin.Context) {
		handlers.RespondError(c, http.StatusNotFound, "not_found", "Route not found")
	})

	// Create handlers
	auditor := handlers.NewAuditor(deps.AuditRepo, logger)
	authHandler := handlers.NewAuthHandler(deps.Accounts, auditor)
	quotaHandler := handlers.NewQuotaHandler(deps.Accounts, auditor)
	adminHandler := handlers.NewAdminHandler(deps.Accounts, auditor)

	// Public endpoints, rate limited per client IP
	public := router.Group("/")
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		public.Use(limiter.Middleware())
	}
	{
		public.POST("/register", authHandler.Register)
		public.POST("/login", authHandler.Login)
		public.POST("/request-reset-password", authHandler.RequestPasswordReset)
		public.POST("/reset-password", authHandler.ResetPassword)
	}

	// Authenticated endpoints
	authed := router.Group("/")
	authed.Use(middleware.RequireAuth(deps.Tokens))
	{
		authed.GET("/protected", authHandler.Protected)
		authed.GET("/get-api-count", quotaHandler.GetAPICount)
		authed.POST("/use-api", quotaHandler.UseAPI)
	}

	// Admin endpoints
	admin := router.Group("/admin")
	admin.Use(middleware.RequireAuth(deps.Tokens), middleware.RequireAdmin())
	{
		admin.GET("", adminHandler.ListUsers)
		admin.PUT("/promote", adminHandler.PromoteUser)
		admin.DELETE("/delete-user/:userId", adminHandler.DeleteUser)
		admin.GET("/endpoint-stats", adminHandler.EndpointStats)
		admin.GET("/audit-logs", auditor.ListAuditLogs)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return &Server{
		router: router,
		config: cfg,
		logger: logger,
		http: &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.GetShutdownTimeout())
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	return <-errCh
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
