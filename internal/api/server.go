// Package api serves generation over HTTP.
package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/loom/internal/inference"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/version"
)

// maxTimeoutMS is the largest timeout_ms that fits in a time.Duration.
const maxTimeoutMS = math.MaxInt64 / int64(time.Millisecond)

// Generator is the engine surface the server needs.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *inference.Request) (*inference.Result, error)
}

type Config struct {
	Engine   Generator
	Defaults inference.Defaults
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// UI serves the playground at / when set.
	UI http.FileSystem
	// StoreSize bounds the number of responses kept for GET /v1/generations/:id.
	StoreSize int
}

type Server struct {
	engine   Generator
	defaults inference.Defaults
	metrics  http.Handler
	ui       http.Handler
	store    *GenerationStore
	clock    func() time.Time
}

func NewServer(cfg Config) *Server {
	size := cfg.StoreSize
	if size <= 0 {
		size = 256
	}
	s := &Server{
		engine:   cfg.Engine,
		defaults: cfg.Defaults,
		metrics:  cfg.Metrics,
		store:    NewGenerationStore(size),
		clock:    time.Now,
	}
	if cfg.UI != nil {
		s.ui = http.FileServer(cfg.UI)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/generations/:id", s.handleGetGeneration)
	e.DELETE("/v1/generations/:id", s.handleDeleteGeneration)
	e.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		e.GET("/metrics", s.handleMetrics)
	}
	if s.ui != nil {
		e.GET("/", s.handleUI)
	}
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "engine not configured", "")
	}
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "", err.Error())
	}
	req, err := s.toInferenceRequest(&body)
	if err != nil {
		return writeFailure(c, err)
	}

	ctx := c.Request().Context()
	id := newGenerationID()
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("generation_id", id))

	res, err := s.engine.Generate(ctx, &req)
	if err != nil {
		return writeFailure(c, err)
	}

	resp := GenerateResponse{
		ID:        id,
		Object:    "generation",
		CreatedAt: s.clock().Unix(),
		Model:     s.engine.Name(),
		Strategy:  res.Strategy,
		Results:   res.Elements,
		Stats:     res.Stats,
	}
	if body.Store == nil || *body.Store {
		s.store.Save(resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) toInferenceRequest(body *GenerateRequest) (inference.Request, error) {
	prompts := body.Prompts
	switch {
	case body.Prompt != "" && len(prompts) > 0:
		return inference.Request{}, newInvalidRequest("prompt", "prompt and prompts are mutually exclusive")
	case body.Prompt != "":
		prompts = []string{body.Prompt}
	case len(prompts) == 0:
		return inference.Request{}, newInvalidRequest("prompt", "prompt is required")
	}
	for _, p := range prompts {
		if strings.TrimSpace(p) == "" {
			return inference.Request{}, newInvalidRequest("prompts", "prompts must not be blank")
		}
	}

	opts := inference.RequestOptions{
		Prompts:               prompts,
		Strategy:              body.Strategy,
		BeamSize:              body.BeamSize,
		Temperature:           body.Temperature,
		MaxLength:             body.MaxLength,
		Seed:                  body.Seed,
		Alpha:                 body.Alpha,
		LengthPenaltyConstant: body.LengthPenaltyConstant,
		Backfill:              body.Backfill,
		NumResults:            body.NumResults,
	}
	if body.TimeoutMS != nil {
		if *body.TimeoutMS < 0 {
			return inference.Request{}, newInvalidRequest("timeout_ms", "timeout_ms must not be negative")
		}
		if *body.TimeoutMS > maxTimeoutMS {
			return inference.Request{}, newInvalidRequest("timeout_ms", fmt.Sprintf("timeout_ms must be <= %d", maxTimeoutMS))
		}
		d := time.Duration(*body.TimeoutMS) * time.Millisecond
		opts.Timeout = &d
	}
	return inference.ResolveRequest(opts, s.defaults), nil
}

func (s *Server) handleGetGeneration(c *echo.Context) error {
	resp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "generation not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteGeneration(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "generation not found")
	}
	return c.JSON(http.StatusOK, DeleteGenerationResponse{
		ID:      id,
		Object:  "generation",
		Deleted: true,
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	model := ""
	if s.engine != nil {
		model = s.engine.Name()
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Model:   model,
		Version: version.String(),
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleUI(c *echo.Context) error {
	s.ui.ServeHTTP(c.Response(), c.Request())
	return nil
}
