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

import "github.com/tmc/langchaingo/prompts"

// =============================================================================
// Orchestrator Prompt
// =============================================================================

// orchestratorSystemPrompt instructs the tool-calling model. The final
// response contract (Cypher only, no prose) is what ExtractCypher and
// ValidCypher enforce downstream.
const orchestratorSystemPrompt = `You are a Cypher query expert. Use the available tools to search for companies and parameters, then generate a valid Cypher query.

Process:
1. Use search_company to find the exact company name
2. Use search_parameters to find exact parameter names
3. Use generate_parameter_query or generate_company_details_query to generate the final Cypher query
4. Your final response should contain ONLY a valid Cypher query, no explanations

Generate Cypher queries that:
- Match the exact company and parameter names from tool results
- Include proper relationship patterns ([:HAS_PARAMETER], [:IN_COUNTRY], etc.)
- Return relevant fields (company_name, parameter_name, period, value, currency, etc.)
- Handle period filtering (latest, specific quarters, FY periods)

Example final response format:
MATCH (c:Company)-[:HAS_PARAMETER]->(p:Parameter)-[:HAS_VALUE_IN_PERIOD]->(pr:PeriodResult)
WHERE c.company_name CONTAINS 'Exact Company Name' AND p.parameter_name CONTAINS 'Exact Parameter Name'
RETURN c.company_name, p.parameter_name, pr.period, pr.value, pr.currency
`

// =============================================================================
// Synthesis Prompts
// =============================================================================

// synthesisVars are the inputs both synthesis templates take. Every key
// must be present in the Format call; supplementary may be empty.
var synthesisVars = []string{
	"question",
	"resultsIndicator",
	"recordCount",
	"structuredData",
	"supplementary",
}

// companyDetailsTemplate answers company-profile questions. The rules repeat
// the never-claim-no-data contract because models otherwise apologize past
// perfectly good rows.
const companyDetailsTemplate = `
Based ONLY on the structured data provided below, answer the user's question about company details.

Question: {{.question}}

{{.resultsIndicator}}

Structured Data:
{{.structuredData}}
{{if .supplementary}}
Supplementary Context:
{{.supplementary}}
{{end}}
CRITICAL RULES - FOLLOW EXACTLY:
1. If you see "Found X company record(s)" above, DATA EXISTS - present it immediately
2. NEVER say "No data found", "no information", "no specific data" if structured data shows company records
3. Format the answer as a clear, readable company information summary
4. Use the EXACT company name from the data - do not modify or abbreviate it
5. Present company details in this format:

## Company Details: [Company Name]

**Basic Information:**
- Company ID: [cid]
- Country: [country] ([country_code])
- Sector: [sector]
- Industry: [industry]
- Market Cap: [market_cap] (if available)

**Description:**
[description if available]

6. If multiple companies match, create separate sections for each
7. Use the EXACT values from structured data - do not make up information
8. If market cap is available, format it with commas (e.g., 1,234,567,890)
9. If description is too long, summarize it but keep key information

Example format:
## Company Details: Kajaria Ceramics

**Basic Information:**
- Company ID: 18315
- Country: India (IN)
- Sector: Materials
- Industry: Building Products
- Market Cap: 45,678,900,000

**Description:**
Kajaria Ceramics is a leading manufacturer of ceramic tiles...

Answer (provide complete company details from the data):`

// parameterAnswerTemplate answers parameter and generic questions with a
// markdown-table contract.
const parameterAnswerTemplate = `
Based ONLY on the structured data provided below, answer the user's question.

Question: {{.question}}

{{.resultsIndicator}}

Structured Data:
{{.structuredData}}
{{if .supplementary}}
Supplementary Context:
{{.supplementary}}
{{end}}
CRITICAL RULES - FOLLOW EXACTLY:
1. If you see "{{.recordCount}} records found" or "Found X data records" above, DATA EXISTS - present it immediately
2. NEVER say "No data found", "no information", "no specific data", "Unfortunately there is no data" if structured data shows records
3. Format the answer as a structured table using markdown format with pipe delimiters
4. If multiple records exist, group by parameter and show each period's data in a row
5. Round currency values to 2 decimal places for readability
6. Use this EXACT format for parameter queries:

## [Parameter Name] for [Company Name] in [Period/Range]

| Period | Value | Currency | YoY Growth |
|--------|-------|----------|------------|
| [period1] | [value1] | [currency1] | [growth1]% |
| [period2] | [value2] | [currency2] | [growth2]% |

If multiple similar parameter names exist (e.g., "Accounts receivable" and "Accounts receivable, Average"), use this format instead:

| Parameter Name | Period | Value | Currency | YoY Growth |
|---------------|--------|-------|----------|------------|
| Accounts receivable | [period1] | [value1] | [currency1] | [growth1]% |
| Accounts receivable, Average | [period1] | [value2] | [currency2] | [growth2]% |

IMPORTANT: Always include "Period" as a column. If multiple similar parameter names exist, include "Parameter Name" as the FIRST column. Each row must have data in ALL columns matching the header structure. Ensure data alignment: Period column should ONLY contain periods (like "2QFY-2025"), Value column should ONLY contain numeric values, Currency column should ONLY contain currency codes (like "INR"), and YoY Growth should ONLY contain percentages.

7. If multiple parameters are requested or similar parameter names exist (e.g., "Accounts receivable" and "Accounts receivable, Average"), create separate rows or separate tables showing BOTH parameter names and their distinct values
8. Sort periods chronologically when possible
9. Use actual numbers from the structured data - do not generalize
10. If {{.recordCount}} records are shown above, create tables with ALL that data
11. IMPORTANT: Do NOT combine or deduplicate similar parameter names - if "Accounts receivable" and "Accounts receivable, Average" both exist, show them as separate rows with their respective values
12. Use the EXACT company name from the data - do not use "Unknown" or make up names

Example format:
## Accounts receivable for Kajaria Ceramics for FY-2025

| Period | Value | Currency | YoY Growth |
|--------|-------|----------|------------|
| 1HFY-2025 | 6,461,000,000.00 | INR | 16.12% |
| 2QFY-2025 | 6,461,000,000.00 | INR | 0.00% |
| FY-2025 | 5,701,800,000.00 | INR | -7.95% |

Answer (create markdown table format if data exists, otherwise say data not found):`

// companyDetailsPrompt and parameterAnswerPrompt are the two synthesis
// prompts; company-profile answers use the first, everything else the
// second.
var (
	companyDetailsPrompt  = prompts.NewPromptTemplate(companyDetailsTemplate, synthesisVars)
	parameterAnswerPrompt = prompts.NewPromptTemplate(parameterAnswerTemplate, synthesisVars)
)
