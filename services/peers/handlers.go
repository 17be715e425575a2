// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package peers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
	"github.com/AleutianAI/PeersRAG/services/peers/rag"
)

// requestIDKey is the gin context key set by RequestIDMiddleware.
const requestIDKey = "request_id"

// Pipeline is the question-answering surface the handlers expose over
// HTTP. *Service and *rag.GraphRAG both satisfy it.
type Pipeline interface {
	RunPipeline(ctx context.Context, question string) (*rag.PipelineResult, error)
	GenerateQueryOnly(ctx context.Context, question string) (*rag.GeneratedQuery, error)
	ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*rag.ExecutionResult, error)
	Schema(ctx context.Context) *rag.SchemaContext
	History() []rag.HistoryEntry
	ClearHistory()
}

// Handlers holds the HTTP handlers for the peers API.
//
// Thread Safety: Handlers is stateless beyond its dependencies and safe
// for concurrent use.
type Handlers struct {
	pipeline Pipeline
	health   graphstore.Pinger
}

// NewHandlers creates the handler set.
//
// Inputs:
//   - pipeline: The question-answering pipeline. Must not be nil.
//   - health: Graph connectivity probe for /health. May be nil; the
//     health endpoint then reports the graph as unconfigured.
func NewHandlers(pipeline Pipeline, health graphstore.Pinger) *Handlers {
	return &Handlers{pipeline: pipeline, health: health}
}

// RequestIDMiddleware tags every request with an ID, honoring an
// X-Request-ID supplied by the caller, and echoes it in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// getOrCreateRequestID returns the request ID set by the middleware,
// minting one when the middleware is not installed (tests).
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Set(requestIDKey, id)
	c.Header("X-Request-ID", id)
	return id
}

// HandleQuery handles POST /v1/peers/query.
//
// Description:
//
//	Runs the full pipeline: assessment, generation, execution, chunk
//	retrieval, synthesis, history append.
//
// Request Body:
//
//	QueryRequest (question required)
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Missing or empty question
//	502 Bad Gateway: Graph store or LLM provider failed
//	504 Gateway Timeout: Pipeline deadline exceeded
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	res, err := h.pipeline.RunPipeline(c.Request.Context(), req.Question)
	if err != nil {
		writePipelineError(c, logger, err)
		return
	}

	logger.Info("question answered",
		slog.String("provenance", string(res.Query.Provenance)),
		slog.Int("row_count", res.RowCount),
		slog.Duration("duration", res.Duration),
	)

	c.JSON(http.StatusOK, QueryResponse{
		Answer:              res.Answer,
		Cypher:              res.Query.Text,
		Params:              res.Query.Params,
		Provenance:          string(res.Query.Provenance),
		Complexity:          string(res.Complexity.Level),
		DegradedFromComplex: res.DegradedFromComplex,
		RowCount:            res.RowCount,
		DurationMS:          res.Duration.Milliseconds(),
	})
}

// HandleCypher handles POST /v1/peers/cypher.
//
// Description:
//
//	Generates Cypher for a question without executing it. Useful for
//	inspecting what the strategy chain produces.
//
// Request Body:
//
//	QueryRequest (question required)
//
// Response:
//
//	200 OK: CypherResponse
//	400 Bad Request: Missing or empty question
//	504 Gateway Timeout: Generation deadline exceeded
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCypher(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCypher")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	q, err := h.pipeline.GenerateQueryOnly(c.Request.Context(), req.Question)
	if err != nil {
		writePipelineError(c, logger, err)
		return
	}

	logger.Debug("query generated", slog.String("provenance", string(q.Provenance)))

	c.JSON(http.StatusOK, CypherResponse{
		Cypher:     q.Text,
		Params:     q.Params,
		Provenance: string(q.Provenance),
	})
}

// HandleExecute handles POST /v1/peers/execute.
//
// Description:
//
//	Validates and runs caller-supplied Cypher with its parameter
//	bindings. The same validator that gates generated queries gates
//	these, so write statements and unbound placeholders are rejected
//	before touching the graph.
//
// Request Body:
//
//	ExecuteRequest (cypher required, params optional)
//
// Response:
//
//	200 OK: ExecuteResponse
//	400 Bad Request: Missing cypher or failed validation
//	502 Bad Gateway: Graph store unreachable
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleExecute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExecute")

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "cypher is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	res, err := h.pipeline.ExecuteQuery(c.Request.Context(), req.Cypher, req.Params)
	if err != nil {
		writePipelineError(c, logger, err)
		return
	}

	logger.Info("caller query executed", slog.Int("row_count", len(res.Rows)))

	c.JSON(http.StatusOK, ExecuteResponse{
		Rows:       res.Rows,
		RowCount:   len(res.Rows),
		Parameters: res.Parameters,
		Periods:    res.Periods,
		Companies:  res.Companies,
	})
}

// HandleSchema handles GET /v1/peers/schema.
//
// Response:
//
//	200 OK: rag.SchemaContext
//	503 Service Unavailable: Graph unreachable and cache cold
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleSchema(c *gin.Context) {
	snapshot := h.pipeline.Schema(c.Request.Context())
	if snapshot == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "schema unavailable: knowledge graph unreachable",
			Code:  "SCHEMA_UNAVAILABLE",
		})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// HandleHistory handles GET /v1/peers/history.
//
// Response:
//
//	200 OK: HistoryResponse (entries oldest first)
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHistory(c *gin.Context) {
	entries := h.pipeline.History()
	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// HandleClearHistory handles DELETE /v1/peers/history.
//
// Response:
//
//	204 No Content
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleClearHistory(c *gin.Context) {
	h.pipeline.ClearHistory()
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/peers/health.
//
// Response:
//
//	200 OK: HealthResponse with status "ok"
//	503 Service Unavailable: HealthResponse with status "degraded" when
//	the graph probe fails
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Graph: "unconfigured"})
		return
	}
	if err := h.health.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status: "degraded",
			Graph:  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Graph: "ok"})
}

// writePipelineError maps the pipeline error taxonomy onto HTTP statuses.
// Validation failures are the caller's fault; upstream connectivity and
// synthesis failures are gateway errors; deadline hits are timeouts.
func writePipelineError(c *gin.Context, logger *slog.Logger, err error) {
	var invalidErr *rag.InvalidQueryError
	if errors.As(err, &invalidErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: invalidErr.Error(),
			Code:  "INVALID_QUERY",
		})
		return
	}

	var connErr *rag.ConnectivityError
	if errors.As(err, &connErr) {
		logger.Error("upstream failure", slog.String("service", connErr.Service), slog.Any("error", err))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: connErr.Error(),
			Code:  "UPSTREAM_UNAVAILABLE",
		})
		return
	}

	var synthErr *rag.SynthesisError
	if errors.As(err, &synthErr) {
		logger.Error("synthesis failure", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: synthErr.Error(),
			Code:  "SYNTHESIS_FAILED",
		})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{
			Error: "pipeline deadline exceeded",
			Code:  "PIPELINE_TIMEOUT",
		})
		return
	}

	logger.Error("pipeline failure", slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: err.Error(),
		Code:  "INTERNAL_ERROR",
	})
}
