// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rag implements the question-to-answer pipeline over the company
// knowledge graph: complexity assessment, Cypher generation through LLM
// tool calling with a deterministic fallback chain, validated execution,
// and grounded answer synthesis.
package rag

import "time"

// =============================================================================
// Enumerations
// =============================================================================

// Operation classifies what a question asks the graph to do.
type Operation string

const (
	OperationRetrieve  Operation = "retrieve"
	OperationCompare   Operation = "compare"
	OperationAggregate Operation = "aggregate"
)

// Provenance records which generation strategy produced a query.
type Provenance string

const (
	ProvenanceToolCalling    Provenance = "tool_calling"
	ProvenanceDecomposition  Provenance = "decomposition"
	ProvenanceStaticFallback Provenance = "static_fallback"
)

// ComplexityLevel is the assessor's routing decision.
type ComplexityLevel string

const (
	ComplexitySimple  ComplexityLevel = "simple"
	ComplexityComplex ComplexityLevel = "complex"
)

// =============================================================================
// Pipeline Data Types
// =============================================================================

// SchemaContext is a point-in-time snapshot of known entity values in the
// graph, used to ground decomposition and the LLM's tool choices.
//
// # Thread Safety
//
// SchemaContext values are immutable once published by the cache; readers
// must not mutate the slices.
type SchemaContext struct {
	Sectors    []string  `json:"sectors"`
	Industries []string  `json:"industries"`
	Countries  []string  `json:"countries"`
	Regions    []string  `json:"regions"`
	Exchanges  []string  `json:"exchanges"`
	Parameters []string  `json:"parameters"`
	Periods    []string  `json:"periods"`
	Companies  []string  `json:"companies"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Decomposition is the structured intent extracted from a question:
// which company, which canonical parameter labels, which period, and what
// kind of operation. Immutable once built.
type Decomposition struct {
	// Company is the resolved canonical company name, empty when no cached
	// company or alias matched.
	Company string `json:"company,omitempty"`

	// Parameters holds canonical parameter labels in rule-priority order,
	// without duplicates.
	Parameters []string `json:"parameters,omitempty"`

	// Period is the canonical period token ("3QFY-2024", "FY-2025",
	// "latest") or empty when the question names none.
	Period string `json:"period,omitempty"`

	// Operation is retrieve, compare, or aggregate.
	Operation Operation `json:"operation"`

	// IsMultiParameter is true when more than one label was resolved.
	IsMultiParameter bool `json:"is_multi_parameter"`
}

// GeneratedQuery is executable Cypher plus the parameter bindings for its
// $-placeholders and the strategy that produced it.
//
// # Description
//
// Literal filter values live in Params, never spliced into Text. Every
// GeneratedQuery leaving the generation layer has passed the validator or
// is the designated static fallback.
type GeneratedQuery struct {
	Text       string         `json:"text"`
	Params     map[string]any `json:"params,omitempty"`
	Provenance Provenance     `json:"provenance"`
}

// ExecutionResult carries rows returned by the graph plus distinct
// parameter, period, and company values observed in them. The derived sets
// preserve first-observed order.
type ExecutionResult struct {
	Rows       []map[string]any `json:"rows"`
	Parameters []string         `json:"parameters,omitempty"`
	Periods    []string         `json:"periods,omitempty"`
	Companies  []string         `json:"companies,omitempty"`
}

// Assessment is the complexity assessor's verdict for one question.
type Assessment struct {
	Level           ComplexityLevel `json:"level"`
	Score           int             `json:"score"`
	CompanyMentions int             `json:"company_mentions"`
	MetricMentions  int             `json:"metric_mentions"`
}

// HistoryEntry is one completed pipeline run.
type HistoryEntry struct {
	Timestamp  time.Time        `json:"timestamp"`
	Question   string           `json:"question"`
	Query      GeneratedQuery   `json:"query"`
	RawResults []map[string]any `json:"raw_results,omitempty"`
	Answer     string           `json:"answer"`
}

// PipelineResult is the full outcome of one question round trip.
//
// DegradedFromComplex is set when the assessor classified the question as
// complex but the reasoning engine was unavailable and the tool-calling
// path answered instead. Callers can surface this; the degradation is
// never silent.
type PipelineResult struct {
	Answer              string         `json:"answer"`
	Query               GeneratedQuery `json:"query"`
	Complexity          Assessment     `json:"complexity"`
	DegradedFromComplex bool           `json:"degraded_from_complex"`
	RowCount            int            `json:"row_count"`
	Duration            time.Duration  `json:"duration"`
}
