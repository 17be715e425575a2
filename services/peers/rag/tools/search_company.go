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

	"github.com/AleutianAI/PeersRAG/services/llm"
	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

// companySearchDefaultLimit is used when the model omits the limit argument.
const companySearchDefaultLimit = 5

// companySearchMaxLimit caps the result count regardless of what the model
// asks for.
const companySearchMaxLimit = 25

// companySearchCypher matches on substring, prefix, or suffix so the model
// can resolve typos and partial names to exact database spellings.
const companySearchCypher = "MATCH (c:Company) " +
	"WHERE c.company_name CONTAINS $name " +
	"OR c.company_name STARTS WITH $name " +
	"OR c.company_name ENDS WITH $name " +
	"RETURN c.company_name, c.cid LIMIT $limit"

// CompanyMatch is one resolved company in a CompanySearch payload.
type CompanyMatch struct {
	CompanyName string `json:"company_name"`
	CID         string `json:"cid"`
}

// companySearchResult is the payload returned to the LLM.
type companySearchResult struct {
	Companies  []CompanyMatch `json:"companies"`
	SearchTerm string         `json:"search_term,omitempty"`
	TotalFound int            `json:"total_found"`
	Error      string         `json:"error,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// companySearchArgs is the decoded argument shape for search_company.
type companySearchArgs struct {
	CompanyName string `json:"company_name"`
	Limit       int    `json:"limit"`
}

// CompanySearch resolves free-text company names to exact database
// spellings and company IDs.
//
// # Description
//
// The model is instructed to call search_company before generating any
// company-scoped query, so that the generated query filters on a name that
// actually exists in the graph. Store failures are absorbed into an error
// payload — the model sees the failure and can proceed without the lookup.
//
// # Thread Safety
//
// Safe for concurrent use.
type CompanySearch struct {
	store  graphstore.Querier
	logger *slog.Logger
}

// NewCompanySearch creates the search_company tool over the given store.
func NewCompanySearch(store graphstore.Querier, logger *slog.Logger) *CompanySearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompanySearch{store: store, logger: logger}
}

// Name implements Tool.
func (t *CompanySearch) Name() string { return "search_company" }

// Definition implements Tool.
func (t *CompanySearch) Definition() llm.ToolDef {
	return llm.NewToolDef(
		"search_company",
		"Search for company names in the database with fuzzy matching. Handles typos, partial names, and variations.",
		map[string]llm.ToolParamDef{
			"company_name": {
				Type:        "string",
				Description: "Company name or partial name to search for",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of results",
				Default:     companySearchDefaultLimit,
			},
		},
		[]string{"company_name"},
	)
}

// Execute implements Tool.
func (t *CompanySearch) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a companySearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("search_company: decoding arguments: %w", err)
	}
	limit := a.Limit
	if limit <= 0 {
		limit = companySearchDefaultLimit
	}
	if limit > companySearchMaxLimit {
		limit = companySearchMaxLimit
	}

	t.logger.Debug("tool: search_company",
		slog.String("name", a.CompanyName),
		slog.Int("limit", limit),
	)

	rows, err := t.store.Query(ctx, companySearchCypher, map[string]any{
		"name":  a.CompanyName,
		"limit": limit,
	})
	if err != nil {
		t.logger.Warn("search_company: store query failed", slog.String("error", err.Error()))
		return companySearchResult{
			Companies: []CompanyMatch{},
			Error:     err.Error(),
			Message:   "Error searching companies",
		}, nil
	}

	companies := make([]CompanyMatch, 0, len(rows))
	for _, row := range rows {
		companies = append(companies, CompanyMatch{
			CompanyName: stringValue(row["c.company_name"]),
			CID:         stringValue(row["c.cid"]),
		})
	}

	return companySearchResult{
		Companies:  companies,
		SearchTerm: a.CompanyName,
		TotalFound: len(companies),
	}, nil
}

// stringValue renders a row value as a string; Neo4j returns property values
// as any.
func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}
