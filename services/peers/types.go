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

import "github.com/AleutianAI/PeersRAG/services/peers/rag"

// =============================================================================
// Request Types
// =============================================================================

// QueryRequest is the body for POST /v1/peers/query and POST
// /v1/peers/cypher.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// ExecuteRequest is the body for POST /v1/peers/execute. Params carries
// the bindings for $-placeholders in Cypher; literal values never appear
// in the statement text.
type ExecuteRequest struct {
	Cypher string         `json:"cypher" binding:"required"`
	Params map[string]any `json:"params"`
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// QueryResponse is the full pipeline outcome for one question.
type QueryResponse struct {
	Answer              string         `json:"answer"`
	Cypher              string         `json:"cypher"`
	Params              map[string]any `json:"params,omitempty"`
	Provenance          string         `json:"provenance"`
	Complexity          string         `json:"complexity"`
	DegradedFromComplex bool           `json:"degraded_from_complex"`
	RowCount            int            `json:"row_count"`
	DurationMS          int64          `json:"duration_ms"`
}

// CypherResponse is a generated query that has not been executed.
type CypherResponse struct {
	Cypher     string         `json:"cypher"`
	Params     map[string]any `json:"params,omitempty"`
	Provenance string         `json:"provenance"`
}

// ExecuteResponse carries rows plus the distinct values observed in them.
type ExecuteResponse struct {
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"row_count"`
	Parameters []string         `json:"parameters,omitempty"`
	Periods    []string         `json:"periods,omitempty"`
	Companies  []string         `json:"companies,omitempty"`
}

// HistoryResponse lists completed pipeline runs, oldest first.
type HistoryResponse struct {
	Entries []rag.HistoryEntry `json:"entries"`
	Count   int                `json:"count"`
}

// HealthResponse reports service liveness and graph connectivity.
type HealthResponse struct {
	Status string `json:"status"`
	Graph  string `json:"graph"`
}
