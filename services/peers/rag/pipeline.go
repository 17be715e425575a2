// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ragTracerName is the tracer identity for all spans in this package.
const ragTracerName = "aleutian.peers.rag"

// =============================================================================
// GraphRAG Pipeline
// =============================================================================

// Components are the assembled stages of a GraphRAG pipeline. All fields
// except Reasoner are required; a nil Reasoner means complex questions
// always degrade to the standard chain.
type Components struct {
	Decomposer  *Decomposer
	Runner      *StrategyRunner
	Reasoner    ReasoningEngine
	Executor    *Executor
	Retriever   *ChunkRetriever
	Synthesizer *Synthesizer
	Schema      *SchemaCache
	History     *History
}

// GraphRAG is the pipeline facade: every operation the service exposes
// over HTTP runs through here.
//
// # Description
//
// RunPipeline is the full round trip — assess, generate, execute, retrieve
// chunks, synthesize, record history. The partial operations (Decompose,
// GenerateQueryOnly, ExecuteQuery, SynthesizeAnswer) expose individual
// stages for inspection and tooling; they share the same components and
// never touch history.
//
// # Thread Safety
//
// Safe for concurrent use.
type GraphRAG struct {
	decomposer  *Decomposer
	runner      *StrategyRunner
	reasoner    ReasoningEngine
	executor    *Executor
	retriever   *ChunkRetriever
	synthesizer *Synthesizer
	schema      *SchemaCache
	history     *History
	timeout     time.Duration
	logger      *slog.Logger
}

// NewGraphRAG assembles the facade. timeout bounds a full RunPipeline
// round trip; <= 0 disables the bound.
func NewGraphRAG(c Components, timeout time.Duration, logger *slog.Logger) *GraphRAG {
	if logger == nil {
		logger = slog.Default()
	}
	history := c.History
	if history == nil {
		history = NewHistory(0)
	}
	return &GraphRAG{
		decomposer:  c.Decomposer,
		runner:      c.Runner,
		reasoner:    c.Reasoner,
		executor:    c.Executor,
		retriever:   c.Retriever,
		synthesizer: c.Synthesizer,
		schema:      c.Schema,
		history:     history,
		timeout:     timeout,
		logger:      logger,
	}
}

// RunPipeline answers a question end to end.
//
// # Inputs
//
//   - ctx: Cancellation; the configured pipeline timeout is layered on.
//   - question: The natural-language question.
//
// # Outputs
//
//   - *PipelineResult: Answer, the query that produced it, complexity
//     verdict, and whether a complex question degraded to the standard
//     chain.
//   - error: Execution or synthesis failure. Generation never fails; the
//     strategy chain always yields a query.
func (g *GraphRAG) RunPipeline(ctx context.Context, question string) (*PipelineResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer(ragTracerName).Start(ctx, "rag.pipeline")
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	status := "error"
	defer func() {
		pipelineDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	g.logger.Info("pipeline started", slog.String("question", question))

	query, assessment, degraded := g.generate(ctx, question)
	span.SetAttributes(
		attribute.String("rag.complexity", string(assessment.Level)),
		attribute.String("rag.provenance", string(query.Provenance)),
		attribute.Bool("rag.degraded", degraded),
	)

	result, err := g.executor.Execute(ctx, query.Text, query.Params)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	chunks := g.retriever.Retrieve(ctx, result)

	answer, err := g.synthesizer.Synthesize(ctx, question, result, chunks)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	g.history.Append(HistoryEntry{
		Timestamp:  time.Now(),
		Question:   question,
		Query:      query,
		RawResults: result.Rows,
		Answer:     answer,
	})

	status = "ok"
	duration := time.Since(start)
	g.logger.Info("pipeline complete",
		slog.String("provenance", string(query.Provenance)),
		slog.Int("rows", len(result.Rows)),
		slog.Bool("degraded_from_complex", degraded),
		slog.Duration("duration", duration),
	)

	return &PipelineResult{
		Answer:              answer,
		Query:               query,
		Complexity:          assessment,
		DegradedFromComplex: degraded,
		RowCount:            len(result.Rows),
		Duration:            duration,
	}, nil
}

// generate routes by complexity: complex questions try the reasoning
// engine first and fall back to the strategy chain, visibly.
func (g *GraphRAG) generate(ctx context.Context, question string) (GeneratedQuery, Assessment, bool) {
	assessment := Assess(question)
	degraded := false

	if assessment.Level == ComplexityComplex {
		q, err := g.reasonComplex(ctx, question)
		if err == nil && q != nil {
			return *q, assessment, false
		}
		complexityDegraded.Inc()
		degraded = true
		g.logger.Warn("complex question degraded to standard generation",
			slog.Int("score", assessment.Score),
			slog.Int("company_mentions", assessment.CompanyMentions),
			slog.Int("metric_mentions", assessment.MetricMentions),
			slog.Any("error", err),
		)
	}

	return g.runner.Generate(ctx, question), assessment, degraded
}

func (g *GraphRAG) reasonComplex(ctx context.Context, question string) (*GeneratedQuery, error) {
	if g.reasoner == nil {
		return nil, ErrReasoningUnavailable
	}
	return g.reasoner.GenerateQuery(ctx, question)
}

// Decompose exposes the deterministic intent extraction for a question.
func (g *GraphRAG) Decompose(ctx context.Context, question string) Decomposition {
	return g.decomposer.Decompose(ctx, question)
}

// GenerateQueryOnly produces a query without executing it. The error is
// only ever the context's; the strategy chain itself cannot fail.
func (g *GraphRAG) GenerateQueryOnly(ctx context.Context, question string) (*GeneratedQuery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, _, _ := g.generate(ctx, question)
	return &query, nil
}

// ExecuteQuery validates and runs caller-supplied Cypher with bound
// parameters.
func (g *GraphRAG) ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*ExecutionResult, error) {
	return g.executor.Execute(ctx, cypher, params)
}

// SynthesizeAnswer renders an answer for an existing result set.
func (g *GraphRAG) SynthesizeAnswer(ctx context.Context, question string, result *ExecutionResult, supplementary string) (string, error) {
	return g.synthesizer.Synthesize(ctx, question, result, supplementary)
}

// Schema returns the cached schema snapshot, refreshing when stale. Nil
// means the graph could not be reached.
func (g *GraphRAG) Schema(ctx context.Context) *SchemaContext {
	return g.schema.Get(ctx)
}

// History returns a copy of the recorded pipeline runs.
func (g *GraphRAG) History() []HistoryEntry {
	return g.history.List()
}

// ClearHistory drops all recorded runs.
func (g *GraphRAG) ClearHistory() {
	g.history.Clear()
}
