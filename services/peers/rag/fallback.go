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
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/PeersRAG/services/peers/config"
)

// =============================================================================
// Fallback Query Builder
// =============================================================================

// parameterDataMatch is the three-hop traversal every parameter data query
// shares.
const parameterDataMatch = "MATCH (c:Company)-[:HAS_PARAMETER]->(p:Parameter)-[:HAS_VALUE_IN_PERIOD]->(pr:PeriodResult)"

// parameterDataReturn is the six standard columns.
const parameterDataReturn = "RETURN DISTINCT c.company_name, p.parameter_name, pr.period, pr.value, pr.currency, pr.yoy_growth"

// genericParameterScan is emitted when no company resolves; a bounded scan
// beats returning nothing.
const genericParameterScan = parameterDataMatch +
	" RETURN c.company_name, p.parameter_name, pr.period, pr.value, pr.currency, pr.yoy_growth LIMIT 20"

// broadParameterTerms filter when no canonical label was resolved.
var broadParameterTerms = []string{"Revenue", "Profit", "margin"}

// FallbackBuilder turns a Decomposition into an always-valid parameterized
// query. It is the second strategy in the generation chain: deterministic,
// no LLM, no store access.
//
// # Description
//
// The builder never fails. Unresolved companies produce a bounded generic
// scan, unresolved parameters a broad Revenue/Profit/margin disjunction.
// Every literal value binds through Params; clause joins always carry a
// single separating space.
//
// # Thread Safety
//
// Safe for concurrent use.
type FallbackBuilder struct {
	vocab  *config.VocabStore
	logger *slog.Logger
}

// NewFallbackBuilder creates a builder over the given vocabulary.
func NewFallbackBuilder(vocab *config.VocabStore, logger *slog.Logger) *FallbackBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if vocab == nil {
		vocab = config.NewVocabStore()
	}
	return &FallbackBuilder{vocab: vocab, logger: logger}
}

// Build emits a query for the decomposed intent.
//
// # Outputs
//
//   - GeneratedQuery: Always passes ValidCypher; provenance decomposition.
func (b *FallbackBuilder) Build(d Decomposition) GeneratedQuery {
	if d.Company == "" {
		return GeneratedQuery{
			Text:       genericParameterScan,
			Provenance: ProvenanceDecomposition,
		}
	}

	params := map[string]any{"company": firstToken(d.Company)}
	whereParts := []string{"c.company_name CONTAINS $company"}

	nextParam := 0
	bind := func(value string) string {
		key := fmt.Sprintf("p%d", nextParam)
		nextParam++
		params[key] = value
		return "$" + key
	}

	if filter := b.parameterFilter(d.Parameters, bind); filter != "" {
		whereParts = append(whereParts, filter)
	}

	if d.Period != "" && d.Period != "latest" {
		whereParts = append(whereParts, "pr.period CONTAINS $period")
		params["period"] = d.Period
	}

	var orderClause, limitClause string
	switch {
	case d.Period == "latest" || d.Period == "":
		orderClause = "ORDER BY pr.period DESC"
		if d.IsMultiParameter {
			limitClause = "LIMIT 10"
		} else {
			limitClause = "LIMIT 5"
		}
	case d.IsMultiParameter:
		orderClause = "ORDER BY p.parameter_name, pr.period"
	default:
		orderClause = "ORDER BY p.parameter_name"
	}

	text := parameterDataMatch +
		" WHERE " + strings.Join(whereParts, " AND ") +
		" " + parameterDataReturn +
		" " + orderClause
	if limitClause != "" {
		text += " " + limitClause
	}

	b.logger.Debug("fallback query built",
		slog.String("company", d.Company),
		slog.Int("parameters", len(d.Parameters)),
		slog.String("period", d.Period),
	)

	return GeneratedQuery{
		Text:       text,
		Params:     params,
		Provenance: ProvenanceDecomposition,
	}
}

// parameterFilter renders the OR-combined label conditions. Each label's
// pattern alternatives come from the vocabulary: an alternative is a
// conjunction of CONTAINS terms, alternatives are OR'd, and multiple
// labels OR together inside one parenthesized group.
func (b *FallbackBuilder) parameterFilter(labels []string, bind func(string) string) string {
	patterns := b.vocab.Current().ParameterPatterns

	terms := labels
	if len(terms) == 0 {
		terms = broadParameterTerms
	}

	conditions := make([]string, 0, len(terms))
	for _, label := range terms {
		alternatives, ok := patterns[label]
		if !ok {
			// Labels the vocabulary does not know (including the broad
			// terms) match on their own text.
			alternatives = [][]string{{label}}
		}

		rendered := make([]string, 0, len(alternatives))
		for _, alt := range alternatives {
			parts := make([]string, 0, len(alt))
			for _, substr := range alt {
				parts = append(parts, "p.parameter_name CONTAINS "+bind(substr))
			}
			if len(parts) > 1 {
				rendered = append(rendered, "("+strings.Join(parts, " AND ")+")")
			} else if len(parts) == 1 {
				rendered = append(rendered, parts[0])
			}
		}

		switch len(rendered) {
		case 0:
			continue
		case 1:
			conditions = append(conditions, rendered[0])
		default:
			conditions = append(conditions, "("+strings.Join(rendered, " OR ")+")")
		}
	}

	if len(conditions) == 0 {
		return ""
	}
	return "(" + strings.Join(conditions, " OR ") + ")"
}

// firstToken returns the first whitespace-separated token of a name; the
// substring filter matches on it to survive suffix variations like "Ltd".
func firstToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[0]
}
