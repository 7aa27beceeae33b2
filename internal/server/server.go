// Package server provides the operator HTTP API for remedyd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/approval"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/orchestrator"
	"github.com/fyrsmithlabs/remedyd/internal/record"
	"github.com/fyrsmithlabs/remedyd/internal/telemetry"
)

// Loop is the orchestrator surface the operator API drives.
type Loop interface {
	Start(ctx context.Context) error
	Stop()
	Status() orchestrator.Status
	Decisions() []orchestrator.DecisionStatus
	Config() config.OrchestratorConfig
	SetConfig(cfg config.OrchestratorConfig) error
}

// Approver resolves decisions waiting at the approval gate.
type Approver interface {
	Resolve(ctx context.Context, decisionID string, approved bool) error
	Waiting() []record.Decision
}

// Server exposes the operator endpoints.
type Server struct {
	echo      *echo.Echo
	loop      Loop
	approvals Approver
	metrics   *telemetry.Metrics
	logger    *logging.Logger
	cfg       config.ServerConfig
}

// NewServer wires the operator API. metrics may be nil; /metrics then
// serves an empty registry.
func NewServer(loop Loop, approvals Approver, metrics *telemetry.Metrics, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if loop == nil {
		return nil, fmt.Errorf("server: loop is required")
	}
	if approvals == nil {
		return nil, fmt.Errorf("server: approval service is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		loop:      loop,
		approvals: approvals,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
			s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/decisions", s.handleDecisions)
	v1.POST("/decisions/:id/approve", s.handleApprove)
	v1.POST("/decisions/:id/reject", s.handleReject)
	v1.GET("/config", s.handleGetConfig)
	v1.PATCH("/config", s.handleSetConfig)
	v1.POST("/run", s.handleRun)
	v1.POST("/stop", s.handleStop)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// DecisionsResponse is the response body for GET /api/v1/decisions.
type DecisionsResponse struct {
	Decisions []orchestrator.DecisionStatus `json:"decisions"`
	Waiting   []record.Decision             `json:"waiting_approval"`
}

// ResolveResponse is the response body for the approve/reject endpoints.
type ResolveResponse struct {
	DecisionID string `json:"decision_id"`
	Resolution string `json:"resolution"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.loop.Status())
}

func (s *Server) handleDecisions(c echo.Context) error {
	return c.JSON(http.StatusOK, DecisionsResponse{
		Decisions: s.loop.Decisions(),
		Waiting:   s.approvals.Waiting(),
	})
}

func (s *Server) handleApprove(c echo.Context) error {
	return s.resolve(c, true)
}

func (s *Server) handleReject(c echo.Context) error {
	return s.resolve(c, false)
}

func (s *Server) resolve(c echo.Context, approved bool) error {
	id := c.Param("id")
	if err := s.approvals.Resolve(c.Request().Context(), id, approved); err != nil {
		if errors.Is(err, approval.ErrUnknownDecision) {
			return echo.NewHTTPError(http.StatusNotFound, "no decision waiting with id "+id)
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	resolution := "rejected"
	if approved {
		resolution = "approved"
	}
	s.logger.Info(c.Request().Context(), "decision resolved",
		zap.String("decision_id", id), zap.String("resolution", resolution))
	return c.JSON(http.StatusOK, ResolveResponse{DecisionID: id, Resolution: resolution})
}

func (s *Server) handleGetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.loop.Config())
}

func (s *Server) handleSetConfig(c echo.Context) error {
	cfg := s.loop.Config()
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.loop.SetConfig(cfg); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleRun(c echo.Context) error {
	if err := s.loop.Start(context.WithoutCancel(c.Request().Context())); err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, s.loop.Status())
}

func (s *Server) handleStop(c echo.Context) error {
	s.loop.Stop()
	return c.JSON(http.StatusOK, s.loop.Status())
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "starting operator api", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down operator api")
	return s.echo.Shutdown(ctx)
}
