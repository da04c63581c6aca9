// Package httpapi provides the HTTP API for alcove.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/orchestrator"
	"github.com/fyrsmithlabs/alcove/internal/search"
	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the engine over HTTP.
type Server struct {
	echo   *echo.Echo
	engine *orchestrator.Engine
	logger *zap.Logger
	config Config
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(engine *orchestrator.Engine, cfg Config, logger *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8642
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
			logger.Info("http request",
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
		echo:   e,
		engine: engine,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/v1")
	v1.POST("/libraries", s.handleCreateLibrary)
	v1.GET("/libraries", s.handleListLibraries)
	v1.DELETE("/libraries/:id", s.handleDropLibrary)
	v1.POST("/libraries/:id/active", s.handleActivateLibrary)
	v1.POST("/libraries/:id/documents", s.handleIngest)
	v1.DELETE("/libraries/:id/documents/:doc", s.handleDeleteDocument)
	v1.GET("/libraries/:id/chunks", s.handleEnumerate)
	v1.POST("/query", s.handleQuery)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateLibraryRequest is the request body for POST /v1/libraries.
type CreateLibraryRequest struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	EmbeddingDim int            `json:"embedding_dim"`
	Policy       library.Policy `json:"policy"`
}

func (s *Server) handleCreateLibrary(c echo.Context) error {
	var req CreateLibraryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	lib, err := s.engine.CreateLibrary(c.Request().Context(), library.Library{
		ID:           req.ID,
		Name:         req.Name,
		EmbeddingDim: req.EmbeddingDim,
		Policy:       req.Policy,
	})
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, lib)
}

func (s *Server) handleListLibraries(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Router().List())
}

func (s *Server) handleDropLibrary(c echo.Context) error {
	if err := s.engine.DropLibrary(c.Request().Context(), c.Param("id")); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleActivateLibrary(c echo.Context) error {
	if err := s.engine.Router().SetActive(c.Param("id")); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req orchestrator.IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.LibraryID = c.Param("id")

	report, err := s.engine.Ingest(c.Request().Context(), req)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, report)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	err := s.engine.DeleteDocument(c.Request().Context(), c.Param("id"), c.Param("doc"))
	if err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EnumerateResponse is the response body for GET /v1/libraries/:id/chunks.
type EnumerateResponse struct {
	Count  int                 `json:"count"`
	Chunks []vectorstore.Chunk `json:"chunks"`
}

func (s *Server) handleEnumerate(c echo.Context) error {
	chunks, err := s.engine.Enumerate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, EnumerateResponse{Count: len(chunks), Chunks: chunks})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req orchestrator.QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.engine.Query(c.Request().Context(), req)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// mapError translates engine errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, library.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, library.ErrExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, library.ErrDimensionLocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, library.ErrInvalidLibrary),
		errors.Is(err, orchestrator.ErrNoLibrary),
		errors.Is(err, orchestrator.ErrEmptyDocument),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, embeddings.ErrEmptyInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, embeddings.ErrProviderUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-errCh
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
