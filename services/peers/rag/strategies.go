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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Generation Strategies
// =============================================================================

// staticFallbackText is the last-resort query: a bounded company listing
// that always executes.
const staticFallbackText = "MATCH (c:Company) RETURN c.company_name, c.cid LIMIT 10"

// GenerationStrategy is one way of turning a question into a query.
// Returning (nil, nil) means "no candidate from this strategy"; the runner
// moves on to the next one.
type GenerationStrategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Generate produces a candidate query, or (nil, nil) when it cannot.
	Generate(ctx context.Context, question string) (*GeneratedQuery, error)
}

// toolCallingStrategy wraps the orchestrator as the first link in the
// chain.
type toolCallingStrategy struct {
	orch *Orchestrator
}

// NewToolCallingStrategy adapts an orchestrator into a GenerationStrategy.
func NewToolCallingStrategy(orch *Orchestrator) GenerationStrategy {
	return &toolCallingStrategy{orch: orch}
}

func (s *toolCallingStrategy) Name() string { return string(ProvenanceToolCalling) }

func (s *toolCallingStrategy) Generate(ctx context.Context, question string) (*GeneratedQuery, error) {
	return s.orch.Generate(ctx, question)
}

// decompositionStrategy resolves entities deterministically and builds the
// query from vocabulary patterns. It always yields a candidate.
type decompositionStrategy struct {
	decomposer *Decomposer
	builder    *FallbackBuilder
}

// NewDecompositionStrategy pairs a decomposer with the fallback builder.
func NewDecompositionStrategy(decomposer *Decomposer, builder *FallbackBuilder) GenerationStrategy {
	return &decompositionStrategy{decomposer: decomposer, builder: builder}
}

func (s *decompositionStrategy) Name() string { return string(ProvenanceDecomposition) }

func (s *decompositionStrategy) Generate(ctx context.Context, question string) (*GeneratedQuery, error) {
	d := s.decomposer.Decompose(ctx, question)
	q := s.builder.Build(d)
	return &q, nil
}

// staticFallbackStrategy emits the constant company listing so the chain
// never comes up empty.
type staticFallbackStrategy struct{}

// NewStaticFallbackStrategy returns the terminal strategy.
func NewStaticFallbackStrategy() GenerationStrategy {
	return staticFallbackStrategy{}
}

func (staticFallbackStrategy) Name() string { return string(ProvenanceStaticFallback) }

func (staticFallbackStrategy) Generate(_ context.Context, _ string) (*GeneratedQuery, error) {
	q := staticQuery()
	return &q, nil
}

func staticQuery() GeneratedQuery {
	return GeneratedQuery{Text: staticFallbackText, Provenance: ProvenanceStaticFallback}
}

// =============================================================================
// Strategy Runner
// =============================================================================

// StrategyRunner walks an ordered strategy chain and returns the first
// candidate that validates.
//
// # Description
//
// Every candidate passes through ValidCypher regardless of which strategy
// produced it; provenance travels on the query so callers and metrics can
// tell how it was made.
//
// # Thread Safety
//
// Safe for concurrent use once constructed.
type StrategyRunner struct {
	strategies []GenerationStrategy
	logger     *slog.Logger
}

// NewStrategyRunner creates a runner over the given chain, tried in order.
func NewStrategyRunner(strategies []GenerationStrategy, logger *slog.Logger) *StrategyRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &StrategyRunner{strategies: strategies, logger: logger}
}

// Generate returns the first valid candidate. It never returns a zero
// query: if every strategy declines — possible only with a custom chain
// that omits the static terminal — the static listing is returned.
func (r *StrategyRunner) Generate(ctx context.Context, question string) GeneratedQuery {
	ctx, span := otel.Tracer(ragTracerName).Start(ctx, "rag.generate_query")
	defer span.End()

	for _, strat := range r.strategies {
		q, err := strat.Generate(ctx, question)
		if err != nil {
			r.logger.Warn("generation strategy failed",
				slog.String("strategy", strat.Name()),
				slog.Any("error", err),
			)
			continue
		}
		if q == nil {
			r.logger.Debug("generation strategy produced no candidate",
				slog.String("strategy", strat.Name()),
			)
			continue
		}
		if !ValidCypher(q.Text) {
			r.logger.Warn("generation strategy produced invalid query",
				slog.String("strategy", strat.Name()),
				slog.String("query", truncateForError(q.Text)),
			)
			continue
		}

		queriesGenerated.WithLabelValues(string(q.Provenance)).Inc()
		span.SetAttributes(attribute.String("rag.provenance", string(q.Provenance)))
		r.logger.Info("query generated",
			slog.String("provenance", string(q.Provenance)),
			slog.Int("bound_params", len(q.Params)),
		)
		return *q
	}

	q := staticQuery()
	queriesGenerated.WithLabelValues(string(q.Provenance)).Inc()
	span.SetAttributes(attribute.String("rag.provenance", string(q.Provenance)))
	r.logger.Warn("all generation strategies declined, using static fallback")
	return q
}
