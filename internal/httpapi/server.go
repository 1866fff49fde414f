// Package httpapi exposes the webhook ingress and read-side HTTP API.
// Webhook handlers always acknowledge receipt: internal retry or breaker
// failures never turn into 5xx responses toward the voice platform.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/dialerd/internal/audit"
	"github.com/fyrsmithlabs/dialerd/internal/config"
	"github.com/fyrsmithlabs/dialerd/internal/detect"
	"github.com/fyrsmithlabs/dialerd/internal/dispatch"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
	"github.com/fyrsmithlabs/dialerd/internal/session"
)

// Server is the HTTP server for webhooks and introspection.
type Server struct {
	cfg        config.ServerConfig
	echo       *echo.Echo
	logger     *logging.Logger
	registry   *session.Registry
	detector   detect.Detector
	silence    *detect.SilenceTracker
	dispatcher *dispatch.Dispatcher
	audit      audit.Store
}

// NewServer creates the server and registers all routes.
func NewServer(
	cfg config.ServerConfig,
	registry *session.Registry,
	detector detect.Detector,
	silence *detect.SilenceTracker,
	dispatcher *dispatch.Dispatcher,
	store audit.Store,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if store == nil {
		store = audit.NewMemoryStore()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext(logger))

	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		}))
	}

	s := &Server{
		cfg:        cfg,
		echo:       e,
		logger:     logger.Named("http"),
		registry:   registry,
		detector:   detector,
		silence:    silence,
		dispatcher: dispatcher,
		audit:      store,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/webhooks/call-status", s.handleCallStatus)
	s.echo.POST("/webhooks/end-of-call", s.handleEndOfCall)
	s.echo.POST("/webhooks/qualification", s.handleQualification)

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/sessions", s.handleSessions)
	s.echo.GET("/sessions/:id", s.handleSession)
	s.echo.POST("/sessions/:id/callback", s.handleScheduleCallback)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// requestContext threads the echo request id into the request context so
// downstream log lines carry it.
func requestContext(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), rid)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
