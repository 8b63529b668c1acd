// Package http serves the worker's health, metrics and run-trigger endpoints.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
	"github.com/fyrsmithlabs/dbtflow/internal/operation"
)

// RunStarter begins a pipeline run without waiting for it.
type RunStarter interface {
	Start(ctx context.Context, target dbt.Target) (string, error)
}

// Server provides HTTP endpoints for the worker.
type Server struct {
	echo    *echo.Echo
	starter RunStarter
	logger  *logging.Logger
	addr    string
}

// NewServer creates a new HTTP server. starter may be nil, in which case
// POST /api/v1/runs answers 503.
func NewServer(cfg config.MetricsConfig, starter RunStarter, metrics *HTTPMetrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if metrics != nil {
		e.Use(metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{echo: e, starter: starter, logger: logger, addr: cfg.Addr}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/operations", s.handleOperations)
	v1.POST("/runs", s.handleStartRun)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// OperationResponse describes one operation in GET /api/v1/operations.
type OperationResponse struct {
	Name                string   `json:"name"`
	Command             []string `json:"command"`
	Activity            string   `json:"activity"`
	HonorsPreventWrites bool     `json:"honors_prevent_writes"`
}

// StartRunResponse is the response body for POST /api/v1/runs.
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleOperations(c echo.Context) error {
	specs := operation.All()
	out := make([]OperationResponse, 0, len(specs))
	for _, spec := range specs {
		out = append(out, OperationResponse{
			Name:                spec.Name,
			Command:             spec.Command,
			Activity:            spec.Activity,
			HonorsPreventWrites: spec.HonorsPreventWrites,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleStartRun(c echo.Context) error {
	if s.starter == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run submission is not enabled")
	}

	var target dbt.Target
	if err := c.Bind(&target); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := target.Validate(); err != nil {
		s.logger.Warn(ctx, "rejected run request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := s.starter.Start(ctx, target)
	if err != nil {
		s.logger.Error(ctx, "failed to start run", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "failed to start run")
	}
	return c.JSON(http.StatusAccepted, StartRunResponse{RunID: id})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info(ctx, "starting http server", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
