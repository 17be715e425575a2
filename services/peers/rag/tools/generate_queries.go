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
	"strings"

	"github.com/AleutianAI/PeersRAG/services/llm"
)

// =============================================================================
// Query Generator Tools
// =============================================================================
//
// The three generators are pure builders: no store access, no LLM access.
// They emit Cypher text with $-placeholders plus the parameter bag that
// binds them. The orchestrator tracks the most recent GeneratedCypher so the
// parameter bag survives the model's final bare-Cypher response.

// filterQueryDefaultLimit is used when the model omits the limit argument.
const filterQueryDefaultLimit = 50

// GeneratedCypher is the payload every generator tool returns.
//
// # Description
//
// CypherQuery contains $-placeholders; Parameters binds them. The pair is
// executable as-is. Echo fields (CompanyName, ParameterNames, Period,
// Filters) repeat the request so the model can verify what was built.
type GeneratedCypher struct {
	CypherQuery    string         `json:"cypher_query"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	QueryType      string         `json:"query_type,omitempty"`
	CompanyName    string         `json:"company_name,omitempty"`
	ParameterNames []string       `json:"parameter_names,omitempty"`
	Period         string         `json:"period,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
}

// -----------------------------------------------------------------------------
// generate_parameter_query
// -----------------------------------------------------------------------------

// parameterQueryArgs is the decoded argument shape for generate_parameter_query.
type parameterQueryArgs struct {
	CompanyName    string   `json:"company_name"`
	ParameterNames []string `json:"parameter_names"`
	Period         string   `json:"period"`
	Periods        []string `json:"periods"`
}

// ParameterQueryGen builds the three-hop parameter data query: company →
// parameter → period result, filtered by exact names the search tools
// resolved.
//
// # Thread Safety
//
// Stateless aside from the logger. Safe for concurrent use.
type ParameterQueryGen struct {
	logger *slog.Logger
}

// NewParameterQueryGen creates the generate_parameter_query tool.
func NewParameterQueryGen(logger *slog.Logger) *ParameterQueryGen {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParameterQueryGen{logger: logger}
}

// Name implements Tool.
func (t *ParameterQueryGen) Name() string { return "generate_parameter_query" }

// Definition implements Tool.
func (t *ParameterQueryGen) Definition() llm.ToolDef {
	return llm.NewToolDef(
		"generate_parameter_query",
		"Generate Cypher query for company parameter data (revenue, margin, profit, etc.). Use this when user asks about financial metrics or parameters for a company.",
		map[string]llm.ToolParamDef{
			"company_name": {
				Type:        "string",
				Description: "Exact company name from database (use search_company first)",
			},
			"parameter_names": {
				Type:        "array",
				Items:       &llm.ToolParamDef{Type: "string"},
				Description: "List of exact parameter names from database (use search_parameters first)",
			},
			"period": {
				Type:        "string",
				Description: "Period: 'latest', 'FY-2024', 'Q1FY-2024', etc. Use 'latest' for most recent data.",
				Default:     "latest",
			},
			"periods": {
				Type:        "array",
				Items:       &llm.ToolParamDef{Type: "string"},
				Description: "Multiple periods to query (e.g., ['1QFY-2024', '2QFY-2024'])",
			},
		},
		[]string{"company_name", "parameter_names"},
	)
}

// Execute implements Tool.
func (t *ParameterQueryGen) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a parameterQueryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("generate_parameter_query: decoding arguments: %w", err)
	}
	if a.Period == "" {
		a.Period = "latest"
	}

	t.logger.Debug("tool: generate_parameter_query",
		slog.String("company", a.CompanyName),
		slog.Int("parameters", len(a.ParameterNames)),
		slog.String("period", a.Period),
	)

	params := map[string]any{"company": a.CompanyName}

	paramFilter := "1=1"
	if len(a.ParameterNames) > 0 {
		conditions := make([]string, 0, len(a.ParameterNames))
		for i, name := range a.ParameterNames {
			key := fmt.Sprintf("p%d", i)
			conditions = append(conditions, fmt.Sprintf("p.parameter_name CONTAINS $%s", key))
			params[key] = name
		}
		paramFilter = "(" + strings.Join(conditions, " OR ") + ")"
	}

	var periodFilter, orderClause string
	switch {
	case a.Period == "latest" && len(a.Periods) == 0:
		periodFilter = ""
		orderClause = "ORDER BY pr.period DESC LIMIT 1"
	case len(a.Periods) > 0:
		periodFilter = " AND pr.period IN $periods"
		params["periods"] = a.Periods
		orderClause = "ORDER BY pr.period, p.parameter_name"
	default:
		periodFilter = " AND pr.period CONTAINS $period"
		params["period"] = a.Period
		orderClause = "ORDER BY pr.period, p.parameter_name"
	}

	cypher := "MATCH (c:Company)-[:HAS_PARAMETER]->(p:Parameter)-[:HAS_VALUE_IN_PERIOD]->(pr:PeriodResult) " +
		"WHERE c.company_name CONTAINS $company AND " + paramFilter + periodFilter + " " +
		"RETURN DISTINCT c.company_name, p.parameter_name, pr.period, pr.value, pr.currency, pr.yoy_growth " +
		orderClause

	return GeneratedCypher{
		CypherQuery:    cypher,
		Parameters:     params,
		QueryType:      "parameter",
		CompanyName:    a.CompanyName,
		ParameterNames: a.ParameterNames,
		Period:         a.Period,
	}, nil
}

// -----------------------------------------------------------------------------
// generate_company_details_query
// -----------------------------------------------------------------------------

// companyDetailsArgs is the decoded argument shape for
// generate_company_details_query. IncludeRelationships is a pointer because
// its default is true — an absent field must not read as false.
type companyDetailsArgs struct {
	CompanyName          string `json:"company_name"`
	IncludeRelationships *bool  `json:"include_relationships"`
}

// CompanyDetailsQueryGen builds the company profile query, optionally
// joining country, sector, and industry.
//
// # Thread Safety
//
// Stateless aside from the logger. Safe for concurrent use.
type CompanyDetailsQueryGen struct {
	logger *slog.Logger
}

// NewCompanyDetailsQueryGen creates the generate_company_details_query tool.
func NewCompanyDetailsQueryGen(logger *slog.Logger) *CompanyDetailsQueryGen {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompanyDetailsQueryGen{logger: logger}
}

// Name implements Tool.
func (t *CompanyDetailsQueryGen) Name() string { return "generate_company_details_query" }

// Definition implements Tool.
func (t *CompanyDetailsQueryGen) Definition() llm.ToolDef {
	return llm.NewToolDef(
		"generate_company_details_query",
		"Generate Cypher query for company details including country, sector, industry, market cap, and relationships.",
		map[string]llm.ToolParamDef{
			"company_name": {
				Type:        "string",
				Description: "Company name from database (use search_company first)",
			},
			"include_relationships": {
				Type:        "boolean",
				Description: "Include all relationship data (country, sector, industry)",
				Default:     true,
			},
		},
		[]string{"company_name"},
	)
}

// Execute implements Tool.
func (t *CompanyDetailsQueryGen) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a companyDetailsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("generate_company_details_query: decoding arguments: %w", err)
	}
	includeRelationships := a.IncludeRelationships == nil || *a.IncludeRelationships

	t.logger.Debug("tool: generate_company_details_query",
		slog.String("company", a.CompanyName),
		slog.Bool("include_relationships", includeRelationships),
	)

	var cypher string
	if includeRelationships {
		cypher = "MATCH (c:Company)-[:IN_COUNTRY]->(country:Country), " +
			"(c)-[:IN_SECTOR]->(s:Sector), (c)-[:IN_INDUSTRY]->(i:Industry) " +
			"WHERE c.company_name CONTAINS $company " +
			"RETURN c.company_name, c.cid, country.name as country, country.code as country_code, " +
			"s.name as sector, i.name as industry, c.market_cap, c.description LIMIT 10"
	} else {
		cypher = "MATCH (c:Company) WHERE c.company_name CONTAINS $company " +
			"RETURN c.company_name, c.cid, c.market_cap, c.description LIMIT 10"
	}

	return GeneratedCypher{
		CypherQuery: cypher,
		Parameters:  map[string]any{"company": a.CompanyName},
		QueryType:   "company_details",
		CompanyName: a.CompanyName,
	}, nil
}

// -----------------------------------------------------------------------------
// generate_filter_query
// -----------------------------------------------------------------------------

// filterQueryArgs is the decoded argument shape for generate_filter_query.
// Market-cap bounds are pointers: zero is a legitimate bound.
type filterQueryArgs struct {
	Sectors      []string `json:"sectors"`
	Industries   []string `json:"industries"`
	Countries    []string `json:"countries"`
	Regions      []string `json:"regions"`
	Exchanges    []string `json:"exchanges"`
	MinMarketCap *float64 `json:"min_market_cap"`
	MaxMarketCap *float64 `json:"max_market_cap"`
	Limit        int      `json:"limit"`
}

// FilterQueryGen builds company screening queries: by sector, industry,
// country, region, exchange, or market-cap range.
//
// # Description
//
// The MATCH shape follows the dominant filter family: sector/industry/
// country filters use the classification hops, region filters the region
// hop, exchange filters the listing hop, and market-cap-only requests a
// bare company scan. Filters from a lower-precedence family are dropped
// with a warning rather than emitted against an unbound variable.
//
// # Thread Safety
//
// Stateless aside from the logger. Safe for concurrent use.
type FilterQueryGen struct {
	logger *slog.Logger
}

// NewFilterQueryGen creates the generate_filter_query tool.
func NewFilterQueryGen(logger *slog.Logger) *FilterQueryGen {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilterQueryGen{logger: logger}
}

// Name implements Tool.
func (t *FilterQueryGen) Name() string { return "generate_filter_query" }

// Definition implements Tool.
func (t *FilterQueryGen) Definition() llm.ToolDef {
	return llm.NewToolDef(
		"generate_filter_query",
		"Generate Cypher query for filtering companies by sector, industry, country, region, exchange, or market cap.",
		map[string]llm.ToolParamDef{
			"sectors": {
				Type:        "array",
				Items:       &llm.ToolParamDef{Type: "string"},
				Description: "Filter by sectors",
			},
			"industries": {
				Type:        "array",
				Items:       &llm.ToolParamDef{Type: "string"},
				Description: "Filter by industries",
			},
			"countries": {
				Type:        "array",
				Items:       &llm.ToolParamDef{Type: "string"},
				Description: "Filter by country codes (e.g., ['US', 'IN'])",
			},
			"regions": {
				Type:        "array",
				Items:       &llm.ToolParamDef{Type: "string"},
				Description: "Filter by regions",
			},
			"exchanges": {
				Type:        "array",
				Items:       &llm.ToolParamDef{Type: "string"},
				Description: "Filter by exchange codes",
			},
			"min_market_cap": {
				Type:        "number",
				Description: "Minimum market capitalization",
			},
			"max_market_cap": {
				Type:        "number",
				Description: "Maximum market capitalization",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of results",
				Default:     filterQueryDefaultLimit,
			},
		},
		nil,
	)
}

// Execute implements Tool.
func (t *FilterQueryGen) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a filterQueryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("generate_filter_query: decoding arguments: %w", err)
	}
	limit := a.Limit
	if limit <= 0 {
		limit = filterQueryDefaultLimit
	}

	t.logger.Debug("tool: generate_filter_query",
		slog.Int("sectors", len(a.Sectors)),
		slog.Int("industries", len(a.Industries)),
		slog.Int("countries", len(a.Countries)),
		slog.Int("regions", len(a.Regions)),
		slog.Int("exchanges", len(a.Exchanges)),
		slog.Int("limit", limit),
	)

	params := map[string]any{"limit": limit}
	var conditions []string
	var dropped []string

	// Market-cap bounds bind to c, which every variant has.
	addMarketCap := func() {
		if a.MinMarketCap != nil {
			conditions = append(conditions, "c.market_cap >= $minMarketCap")
			params["minMarketCap"] = *a.MinMarketCap
		}
		if a.MaxMarketCap != nil {
			conditions = append(conditions, "c.market_cap <= $maxMarketCap")
			params["maxMarketCap"] = *a.MaxMarketCap
		}
	}

	var match, returns string
	switch {
	case len(a.Sectors) > 0 || len(a.Industries) > 0 || len(a.Countries) > 0:
		match = "MATCH (c:Company)-[:IN_COUNTRY]->(country:Country), " +
			"(c)-[:IN_SECTOR]->(s:Sector), (c)-[:IN_INDUSTRY]->(i:Industry)"
		returns = "RETURN c.company_name, c.cid, s.name as sector, country.name as country, c.market_cap"
		if len(a.Sectors) > 0 {
			conditions = append(conditions, "s.name IN $sectors")
			params["sectors"] = a.Sectors
		}
		if len(a.Industries) > 0 {
			conditions = append(conditions, "i.name IN $industries")
			params["industries"] = a.Industries
		}
		if len(a.Countries) > 0 {
			conditions = append(conditions, "country.code IN $countries")
			params["countries"] = a.Countries
		}
		addMarketCap()
		if len(a.Regions) > 0 {
			dropped = append(dropped, "regions")
		}
		if len(a.Exchanges) > 0 {
			dropped = append(dropped, "exchanges")
		}

	case len(a.Regions) > 0:
		match = "MATCH (c:Company)-[:IN_REGION]->(r:Region), (c)-[:IN_COUNTRY]->(country:Country)"
		returns = "RETURN c.company_name, c.cid, r.name as region, country.name as country, c.market_cap"
		conditions = append(conditions, "r.name IN $regions")
		params["regions"] = a.Regions
		addMarketCap()
		if len(a.Exchanges) > 0 {
			dropped = append(dropped, "exchanges")
		}

	case len(a.Exchanges) > 0:
		match = "MATCH (c:Company)-[:LISTED_ON]->(e:Exchange)"
		returns = "RETURN c.company_name, c.cid, e.code as exchange, c.market_cap"
		conditions = append(conditions, "e.code IN $exchanges")
		params["exchanges"] = a.Exchanges
		addMarketCap()

	default:
		match = "MATCH (c:Company)"
		returns = "RETURN c.company_name, c.cid, c.market_cap"
		addMarketCap()
	}

	if len(dropped) > 0 {
		t.logger.Warn("generate_filter_query: dropping filters outside the dominant family",
			slog.String("dropped", strings.Join(dropped, ",")),
		)
	}

	whereClause := "1=1"
	if len(conditions) > 0 {
		whereClause = strings.Join(conditions, " AND ")
	}

	cypher := match + " WHERE " + whereClause + " " + returns + " LIMIT $limit"

	return GeneratedCypher{
		CypherQuery: cypher,
		Parameters:  params,
		QueryType:   "filter",
		Filters:     echoFilters(a, limit),
	}, nil
}

// echoFilters reports the filters actually requested, for the model's benefit.
func echoFilters(a filterQueryArgs, limit int) map[string]any {
	filters := map[string]any{"limit": limit}
	if len(a.Sectors) > 0 {
		filters["sectors"] = a.Sectors
	}
	if len(a.Industries) > 0 {
		filters["industries"] = a.Industries
	}
	if len(a.Countries) > 0 {
		filters["countries"] = a.Countries
	}
	if len(a.Regions) > 0 {
		filters["regions"] = a.Regions
	}
	if len(a.Exchanges) > 0 {
		filters["exchanges"] = a.Exchanges
	}
	if a.MinMarketCap != nil {
		filters["min_market_cap"] = *a.MinMarketCap
	}
	if a.MaxMarketCap != nil {
		filters["max_market_cap"] = *a.MaxMarketCap
	}
	return filters
}
