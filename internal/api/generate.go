package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CodeMonkeyCybersecurity/x9/internal/input"
	"github.com/CodeMonkeyCybersecurity/x9/internal/output"
	"github.com/CodeMonkeyCybersecurity/x9/internal/validation"
	"github.com/CodeMonkeyCybersecurity/x9/internal/worker"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

// GenerateRequest is the body of POST /api/v1/generate. Unset generator
// fields fall back to the server configuration.
type GenerateRequest struct {
	URLs          []string `json:"urls" binding:"required,min=1"`
	Params        []string `json:"params"`
	Values        []string `json:"values" binding:"required,min=1"`
	ChunkSize     int      `json:"chunk_size"`
	Strategy      string   `json:"strategy"`
	ValueStrategy string   `json:"value_strategy"`
	DoubleEncode  bool     `json:"double_encode"`
	ForceHTTPS    bool     `json:"force_https"`
	SkipAssets    bool     `json:"skip_assets"`
}

type InvalidURL struct {
	Input string `json:"input"`
	Error string `json:"error"`
}

type GenerateResponse struct {
	Candidates []mutation.Candidate `json:"candidates"`
	Invalid    []InvalidURL         `json:"invalid,omitempty"`
	Truncated  bool                 `json:"truncated"`
	Stats      *worker.Stats        `json:"stats"`
}

var errLimitReached = errors.New("candidate limit reached")

// limitSink stops the batch once max candidates were collected.
type limitSink struct {
	*output.Collector
	max   int
	count int
}

func (l *limitSink) Write(ctx context.Context, c mutation.Candidate) error {
	if l.max > 0 && l.count >= l.max {
		return errLimitReached
	}
	l.count++
	return l.Collector.Write(ctx, c)
}

func (s *Server) engineOptions(req *GenerateRequest) (mutation.Options, error) {
	gen := s.cfg.Generator
	chunk := gen.ChunkSize
	if req.ChunkSize != 0 {
		chunk = req.ChunkSize
	}
	strategy := gen.Strategy
	if req.Strategy != "" {
		strategy = req.Strategy
	}
	valueStrategy := gen.ValueStrategy
	if req.ValueStrategy != "" {
		valueStrategy = req.ValueStrategy
	}

	mode, err := mutation.ParseMode(strategy)
	if err != nil {
		return mutation.Options{}, err
	}
	vs, err := mutation.ParseValueStrategy(valueStrategy)
	if err != nil {
		return mutation.Options{}, err
	}
	return mutation.Options{
		ChunkSize:     chunk,
		Mode:          mode,
		ValueStrategy: vs,
		DoubleEncode:  req.DoubleEncode || gen.DoubleEncode,
	}, nil
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts, err := s.engineOptions(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	engine, err := mutation.NewEngine(opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	words := input.Dedup(req.Params)
	if len(words) == 0 && opts.Mode.Includes(mutation.Ignore) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the ignore strategy needs at least one parameter name"})
		return
	}

	urls, invalid := validation.NormalizeAll(req.URLs, validation.NormalizeOptions{ForceHTTPS: req.ForceHTTPS})
	if req.SkipAssets {
		urls = validation.FilterStaticAssets(urls)
	}

	resp := GenerateResponse{Candidates: []mutation.Candidate{}}
	for _, r := range invalid {
		resp.Invalid = append(resp.Invalid, InvalidURL{Input: r.Input, Error: r.Error.Error()})
	}

	sink := &limitSink{Collector: &output.Collector{}, max: s.cfg.Server.MaxCandidates}
	pool := worker.NewPool(engine, s.cfg.Worker.Count, s.logger,
		worker.WithTelemetry(s.telemetry),
		worker.WithMode(opts.Mode.String()),
	)

	stats, err := pool.Run(c.Request.Context(), urls, words, input.Dedup(req.Values), sink)
	switch {
	case errors.Is(err, errLimitReached):
		resp.Truncated = true
	case err != nil:
		s.logger.LogError(c.Request.Context(), err, "api.generate")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp.Candidates = append(resp.Candidates, sink.Candidates()...)
	resp.Stats = stats
	c.JSON(http.StatusOK, resp)
}
