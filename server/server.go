// Package server exposes the webhook endpoint. Deliveries are acknowledged
// immediately and reviewed in the background.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/reviewbot/reviewbot/router"
)

// Dispatcher runs the review session for one delivery. *router.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *router.Request) error
}

// Server is the HTTP ingress of the bot.
type Server struct {
	echo       *echo.Echo
	dispatcher Dispatcher
	// sessionTimeout bounds one background session. Zero means no bound.
	sessionTimeout time.Duration
	logger         *slog.Logger

	sessions sync.WaitGroup
}

// New creates a Server and registers its routes.
func New(dispatcher Dispatcher, sessionTimeout time.Duration, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		dispatcher:     dispatcher,
		sessionTimeout: sessionTimeout,
		logger:         logger,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.POST("/webhook", s.handleWebhook)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running sessions until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"name":   "reviewbot",
		"status": "running",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		s.logger.Error("failed to read body", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read body"})
	}

	delivery := c.Request().Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = uuid.NewString()
	}
	req := &router.Request{
		Payload:     payload,
		GitLabToken: c.Request().Header.Get("X-Gitlab-Token"),
	}
	logger := s.logger.With("delivery", delivery)
	logger.Info("received webhook", "size", len(payload))

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()

		ctx := context.Background()
		if s.sessionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.sessionTimeout)
			defer cancel()
		}

		if err := s.dispatcher.Dispatch(ctx, req); err != nil {
			logger.Error("failed to process event", "error", err)
		}
	}()

	return c.JSON(http.StatusOK, map[string]string{"message": "received"})
}
