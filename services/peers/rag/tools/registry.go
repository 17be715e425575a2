// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/PeersRAG/services/llm"
	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

const toolsTracerName = "aleutian.peers.tools"

// Registry holds the fixed tool set and dispatches executions by name.
//
// # Description
//
// The registry is assembled once at startup and never mutated, so reads
// need no locking. Definition order matches what the model is shown:
// searches first (resolve names), generators second (build the query).
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry assembles the five-tool registry over the given store and
// embedding index.
//
// # Inputs
//
//   - store: Graph querier backing the search tools. Must not be nil.
//   - index: Semantic scorer for parameter search. May be nil (substring
//     matching only).
//   - logger: Logger shared by all tools. May be nil.
//
// # Outputs
//
//   - *Registry: Ready-to-use registry. Never nil.
func NewRegistry(store graphstore.Querier, index Scorer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	all := []Tool{
		NewParameterSearch(store, index, logger),
		NewCompanySearch(store, logger),
		NewParameterQueryGen(logger),
		NewCompanyDetailsQueryGen(logger),
		NewFilterQueryGen(logger),
	}

	byName := make(map[string]Tool, len(all))
	order := make([]string, 0, len(all))
	for _, t := range all {
		byName[t.Name()] = t
		order = append(order, t.Name())
	}

	return &Registry{tools: byName, order: order, logger: logger}
}

// Definitions returns every tool definition in presentation order.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Names returns the registered tool names in presentation order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Execute dispatches one tool call by name.
//
// # Description
//
// Unknown tool names and argument-decoding failures return an error; the
// orchestrator converts it into an {"error": ...} tool-result payload so
// the model can react. Data-layer failures inside a tool do not surface
// here — tools absorb them into their own shaped error payloads.
//
// # Inputs
//
//   - ctx: Context for cancellation; forwarded to the tool.
//   - name: Tool name as requested by the model.
//   - args: Raw JSON arguments from the tool call.
//
// # Outputs
//
//   - any: JSON-serializable payload for the tool-result message.
//   - error: Non-nil for unknown tools or undecodable arguments.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	tracer := otel.Tracer(toolsTracerName)
	ctx, span := tracer.Start(ctx, "tools.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", name),
		attribute.Int("tool.args_bytes", len(args)),
	)

	start := time.Now()

	tool, ok := r.tools[name]
	if !ok {
		err := fmt.Errorf("tools: unknown tool %q", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown tool")
		recordToolMetrics(name, time.Since(start), err)
		return nil, err
	}

	payload, err := tool.Execute(ctx, args)
	duration := time.Since(start)
	recordToolMetrics(name, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool execution failed")
		r.logger.Warn("tool execution failed",
			slog.String("tool", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		return nil, err
	}

	r.logger.Debug("tool executed",
		slog.String("tool", name),
		slog.Duration("duration", duration),
	)
	return payload, nil
}
