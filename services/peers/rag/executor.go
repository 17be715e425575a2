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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

// =============================================================================
// Query Executor
// =============================================================================

// Executor runs validated queries against the knowledge graph and derives
// the entity sets later stages consume.
//
// # Description
//
// Every query revalidates before execution regardless of where it came
// from; callers submitting their own Cypher get the same gate the
// generation chain does. Store failures surface as ConnectivityError so
// the caller can distinguish "graph is down" from "no data".
//
// # Thread Safety
//
// Safe for concurrent use.
type Executor struct {
	store   graphstore.Querier
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an executor. timeout <= 0 disables the per-query
// deadline and leaves the caller's context in charge.
func NewExecutor(store graphstore.Querier, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, timeout: timeout, logger: logger}
}

// Execute validates and runs a query.
//
// # Inputs
//
//   - ctx: Cancellation; a per-query deadline is layered on when the
//     executor was configured with one.
//   - text: The Cypher text. Must pass ValidCypher.
//   - params: Bound parameter values; nil when the query has none.
//
// # Outputs
//
//   - *ExecutionResult: Rows plus distinct parameter/period/company names
//     in first-observed order.
//   - error: *InvalidQueryError on validation failure, *ConnectivityError
//     when the store is unreachable.
func (e *Executor) Execute(ctx context.Context, text string, params map[string]any) (*ExecutionResult, error) {
	ctx, span := otel.Tracer(ragTracerName).Start(ctx, "rag.execute_query")
	defer span.End()

	if !ValidCypher(text) {
		queriesExecuted.WithLabelValues("invalid").Inc()
		span.SetStatus(codes.Error, "query failed validation")
		return nil, &InvalidQueryError{Text: truncateForError(text), Reason: "failed validation"}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Info("executing query",
		slog.String("query", truncateForError(text)),
		slog.Int("bound_params", len(params)),
	)

	rows, err := e.store.Query(ctx, text, params)
	if err != nil {
		queriesExecuted.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store query failed")
		return nil, &ConnectivityError{Service: "neo4j", Err: err}
	}

	result := &ExecutionResult{
		Rows:       rows,
		Parameters: distinctRowValues(rows, "p.parameter_name", "parameter_name"),
		Periods:    distinctRowValues(rows, "pr.period", "period"),
		Companies:  distinctRowValues(rows, "c.company_name", "company_name"),
	}

	queriesExecuted.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("rag.rows", len(rows)))
	e.logger.Info("query executed",
		slog.Int("rows", len(rows)),
		slog.Int("distinct_parameters", len(result.Parameters)),
		slog.Int("distinct_periods", len(result.Periods)),
		slog.Int("distinct_companies", len(result.Companies)),
	)
	return result, nil
}

// distinctRowValues collects the distinct values of the first present key
// per row, preserving first-observed order. Keys are tried in the order
// given, covering both raw RETURN terms and their aliases; empty values
// are skipped.
func distinctRowValues(rows []map[string]any, keys ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range rows {
		value := firstRowValue(row, keys...)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// firstRowValue returns the stringified value of the first key present and
// non-empty in the row.
func firstRowValue(row map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if s != "" {
			return s
		}
	}
	return ""
}
