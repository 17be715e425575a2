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
	"sort"
	"strings"

	"github.com/AleutianAI/PeersRAG/services/llm"
	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

// parameterSearchDefaultLimit is used when the model omits the limit argument.
const parameterSearchDefaultLimit = 5

// parameterSearchMaxLimit caps the result count regardless of what the model
// asks for.
const parameterSearchMaxLimit = 25

// parameterSearchThreshold is the minimum cosine similarity for a semantic
// match. Below it, a candidate is considered unrelated to the search term.
const parameterSearchThreshold = 0.6

// parameterCandidateLimit bounds the candidate pull. The vocabulary is small
// (dozens of parameter names); 200 comfortably covers it.
const parameterCandidateLimit = 200

// Candidate pulls, global and company-scoped.
const (
	parameterCandidatesCypher = "MATCH (p:Parameter) " +
		"RETURN DISTINCT p.parameter_name LIMIT $limit"

	parameterCandidatesByCompanyCypher = "MATCH (c:Company {cid: $cid})-[:HAS_PARAMETER]->(p:Parameter) " +
		"RETURN DISTINCT p.parameter_name LIMIT $limit"
)

// Scorer produces semantic similarity scores for candidate parameter names.
// A nil map signals "use substring matching instead" — the graceful
// degradation contract of ParameterEmbeddingIndex.
type Scorer interface {
	Score(ctx context.Context, term string, candidates []string) (map[string]float64, error)
}

// ParameterMatch is one scored parameter name in a ParameterSearch payload.
type ParameterMatch struct {
	ParameterName string  `json:"parameter_name"`
	Similarity    float64 `json:"similarity"`
	MatchMethod   string  `json:"match_method"`
}

// parameterSearchResult is the payload returned to the LLM.
type parameterSearchResult struct {
	Matches    []ParameterMatch `json:"matches"`
	SearchTerm string           `json:"search_term,omitempty"`
	TotalFound int              `json:"total_found"`
	Error      string           `json:"error,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// parameterSearchArgs is the decoded argument shape for search_parameters.
type parameterSearchArgs struct {
	SearchTerm string `json:"search_term"`
	CompanyID  string `json:"company_id"`
	Limit      int    `json:"limit"`
}

// ParameterSearch resolves metric mentions ("revenue", "margin") to exact
// parameter names as stored in the graph.
//
// # Description
//
// Candidates are pulled from the store — scoped to one company when the
// model supplies a company_id, global otherwise — then ranked by cosine
// similarity through the embedding index. When the index is cold or the
// embedding service is unreachable, ranking falls back to bidirectional
// substring matching so the tool always has an answer path.
//
// # Thread Safety
//
// Safe for concurrent use.
type ParameterSearch struct {
	store  graphstore.Querier
	index  Scorer // nil → substring matching only
	logger *slog.Logger
}

// NewParameterSearch creates the search_parameters tool over the given store
// and embedding index. index may be nil.
func NewParameterSearch(store graphstore.Querier, index Scorer, logger *slog.Logger) *ParameterSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParameterSearch{store: store, index: index, logger: logger}
}

// Name implements Tool.
func (t *ParameterSearch) Name() string { return "search_parameters" }

// Definition implements Tool.
func (t *ParameterSearch) Definition() llm.ToolDef {
	return llm.NewToolDef(
		"search_parameters",
		"Search for parameter names in the database using semantic similarity. Use this when user mentions metrics like 'revenue', 'margin', 'profit', 'ebitda', etc. Returns exact parameter names from database.",
		map[string]llm.ToolParamDef{
			"search_term": {
				Type:        "string",
				Description: "The term to search for (e.g., 'revenue', 'margin', 'profit', 'ebitda')",
			},
			"company_id": {
				Type:        "string",
				Description: "Optional: Filter parameters for a specific company by company ID",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of results to return",
				Default:     parameterSearchDefaultLimit,
			},
		},
		[]string{"search_term"},
	)
}

// Execute implements Tool.
func (t *ParameterSearch) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a parameterSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("search_parameters: decoding arguments: %w", err)
	}
	limit := a.Limit
	if limit <= 0 {
		limit = parameterSearchDefaultLimit
	}
	if limit > parameterSearchMaxLimit {
		limit = parameterSearchMaxLimit
	}

	t.logger.Debug("tool: search_parameters",
		slog.String("term", a.SearchTerm),
		slog.String("company_id", a.CompanyID),
		slog.Int("limit", limit),
	)

	candidates, err := t.candidates(ctx, a.CompanyID)
	if err != nil {
		t.logger.Warn("search_parameters: candidate pull failed", slog.String("error", err.Error()))
		return parameterSearchResult{
			Matches: []ParameterMatch{},
			Error:   err.Error(),
			Message: "Error searching parameters",
		}, nil
	}
	if len(candidates) == 0 {
		return parameterSearchResult{
			Matches: []ParameterMatch{},
			Message: "No parameters found in database",
		}, nil
	}

	matches := t.semanticMatches(ctx, a.SearchTerm, candidates, limit)
	if matches == nil {
		matches = substringMatches(a.SearchTerm, candidates, limit)
	}

	t.logger.Debug("search_parameters: matched",
		slog.String("term", a.SearchTerm),
		slog.Int("matches", len(matches)),
	)

	return parameterSearchResult{
		Matches:    matches,
		SearchTerm: a.SearchTerm,
		TotalFound: len(matches),
	}, nil
}

// candidates pulls the distinct parameter names the search will rank.
func (t *ParameterSearch) candidates(ctx context.Context, companyID string) ([]string, error) {
	cypher := parameterCandidatesCypher
	params := map[string]any{"limit": parameterCandidateLimit}
	if companyID != "" {
		cypher = parameterCandidatesByCompanyCypher
		params["cid"] = companyID
	}

	rows, err := t.store.Query(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name := stringValue(row["p.parameter_name"]); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// semanticMatches ranks candidates by embedding similarity. Returns nil when
// the index is absent or degraded, signaling the substring fallback.
func (t *ParameterSearch) semanticMatches(ctx context.Context, term string, candidates []string, limit int) []ParameterMatch {
	if t.index == nil {
		return nil
	}

	scores, err := t.index.Score(ctx, term, candidates)
	if err != nil || scores == nil {
		return nil
	}

	matches := make([]ParameterMatch, 0, len(scores))
	for name, sim := range scores {
		matches = append(matches, ParameterMatch{
			ParameterName: name,
			Similarity:    sim,
			MatchMethod:   "semantic",
		})
	}
	sortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	// Threshold applies after the top-limit cut, so a weak match never
	// displaces a strong one.
	kept := matches[:0]
	for _, m := range matches {
		if m.Similarity >= parameterSearchThreshold {
			kept = append(kept, m)
		}
	}
	return kept
}

// substringMatches is the always-available fallback: bidirectional
// containment with a crude length-ratio similarity.
func substringMatches(term string, candidates []string, limit int) []ParameterMatch {
	termLower := strings.ToLower(term)
	matches := make([]ParameterMatch, 0, len(candidates))

	for _, name := range candidates {
		nameLower := strings.ToLower(name)
		if !strings.Contains(nameLower, termLower) && !strings.Contains(termLower, nameLower) {
			continue
		}
		firstWord := name
		if fields := strings.Fields(name); len(fields) > 0 {
			firstWord = fields[0]
		}
		denom := len(term)
		if len(firstWord) > denom {
			denom = len(firstWord)
		}
		sim := 0.0
		if denom > 0 {
			sim = float64(len(term)) / float64(denom)
		}
		matches = append(matches, ParameterMatch{
			ParameterName: name,
			Similarity:    sim,
			MatchMethod:   "substring",
		})
	}

	sortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// sortMatches orders by similarity descending, name ascending for stability.
func sortMatches(matches []ParameterMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ParameterName < matches[j].ParameterName
	})
}
