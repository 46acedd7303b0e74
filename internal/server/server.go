// Package server exposes the chat, retrieval and document endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/semanticdb"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdf_rag",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pdf_rag",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, including the full streamed answer",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"method", "route"})
)

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	agent  *rag.Agent
	chat   *rag.Chat
	db     *semanticdb.SemanticDB
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Addr  string
	Table string
	// NewFileID names uploaded documents that arrive without a file_id.
	NewFileID func() string
}

// NewServer creates a new HTTP server.
func NewServer(agent *rag.Agent, chat *rag.Chat, db *semanticdb.SemanticDB, cfg *Config) (*Server, error) {
	if agent == nil || chat == nil {
		return nil, fmt.Errorf("agent and chat are required")
	}
	if db == nil {
		return nil, fmt.Errorf("semantic db is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.Table == "" {
		cfg.Table = models.DefaultTable
	}
	if cfg.NewFileID == nil {
		cfg.NewFileID = helper.NewFileID
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger)

	s := &Server{
		echo:   e,
		agent:  agent,
		chat:   chat,
		db:     db,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		duration := time.Since(start)

		req := c.Request()
		status := c.Response().Status
		route := c.Path()
		requestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		requestDuration.WithLabelValues(req.Method, route).Observe(duration.Seconds())

		log.Info().
			Str("method", req.Method).
			Str("uri", req.RequestURI).
			Int("status", status).
			Dur("duration", duration).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("http request")
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/chat", s.handleChat)
	s.echo.POST("/rag", s.handleRAG)

	s.echo.POST("/documents", s.handleUpload)
	s.echo.DELETE("/documents/:file_id", s.handleDelete)
}

// ChatRequest is the request body for POST /chat and POST /rag.
type ChatRequest struct {
	Messages []models.Message `json:"messages"`
}

// UploadResponse is the response body for POST /documents.
type UploadResponse struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Chunks   int    `json:"chunks"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) bindMessages(c echo.Context) ([]models.Message, error) {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid chat request")
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return req.Messages, nil
}

func (s *Server) handleChat(c echo.Context) error {
	messages, err := s.bindMessages(c)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return c.JSON(http.StatusOK, nil)
	}
	return stream(c, s.chat.Answer(c.Request().Context(), messages))
}

func (s *Server) handleRAG(c echo.Context) error {
	messages, err := s.bindMessages(c)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return c.JSON(http.StatusOK, nil)
	}
	return stream(c, s.agent.Answer(c.Request().Context(), messages, s.config.Table))
}

// stream writes and flushes each fragment as soon as it is produced. A failed
// write means the client is gone, so iteration stops and the backend stream
// is released.
func stream(c echo.Context, fragments iter.Seq[string]) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for fragment := range fragments {
		if _, err := io.WriteString(resp, fragment); err != nil {
			log.Debug().Err(err).Msg("Client went away")
			return nil
		}
		resp.Flush()
	}
	return nil
}

func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}

	fileID := c.FormValue("file_id")
	if fileID == "" {
		fileID = s.config.NewFileID()
	}
	n, err := s.db.Ingest(c.Request().Context(), data, fh.Filename, fileID, s.config.Table)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, UploadResponse{FileID: fileID, FileName: fh.Filename, Chunks: n})
}

func (s *Server) handleDelete(c echo.Context) error {
	if err := s.db.Remove(c.Request().Context(), c.Param("file_id"), s.config.Table); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func toHTTPError(err error) error {
	var perr *models.ProviderError
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSchemaMismatch):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &perr):
		log.Error().Err(err).Msg("Backend failure")
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("Starting http server")
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted or tested as a plain handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
