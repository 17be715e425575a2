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

	"github.com/AleutianAI/PeersRAG/services/llm"
	"github.com/AleutianAI/PeersRAG/services/peers/rag/tools"
)

// =============================================================================
// Reasoning Engine
// =============================================================================

// ReasoningEngine generates queries for questions the assessor scores as
// complex: multi-company comparisons, rankings, multi-hop aggregations.
//
// Implementations return ErrReasoningUnavailable to hand the question back
// to the standard generation chain; the pipeline records the degradation.
type ReasoningEngine interface {
	GenerateQuery(ctx context.Context, question string) (*GeneratedQuery, error)
}

// IterativeReasoner will run an observation/thought/action loop over the
// tool registry for multi-hop questions.
//
// # Description
//
// Generation is not implemented yet; GenerateQuery always returns
// ErrReasoningUnavailable so complex questions degrade to tool calling.
// The dependencies are wired now so the loop can land without touching
// the pipeline.
//
// # Thread Safety
//
// Safe for concurrent use.
type IterativeReasoner struct {
	client   llm.ToolCaller
	registry *tools.Registry
	logger   *slog.Logger
}

// NewIterativeReasoner creates the reasoner shell.
func NewIterativeReasoner(client llm.ToolCaller, registry *tools.Registry, logger *slog.Logger) *IterativeReasoner {
	if logger == nil {
		logger = slog.Default()
	}
	return &IterativeReasoner{client: client, registry: registry, logger: logger}
}

// GenerateQuery reports that iterative reasoning is unavailable.
//
// TODO: implement the observation/thought/action loop; the registry and
// model client are already in place.
func (r *IterativeReasoner) GenerateQuery(_ context.Context, question string) (*GeneratedQuery, error) {
	r.logger.Debug("iterative reasoning requested but not implemented",
		slog.String("question", question),
	)
	return nil, ErrReasoningUnavailable
}
