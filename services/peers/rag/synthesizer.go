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
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/AleutianAI/PeersRAG/services/llm"
)

// =============================================================================
// Answer Synthesizer
// =============================================================================

// numberPrinter renders large values with thousands separators.
var numberPrinter = message.NewPrinter(language.English)

// answerShape classifies a result set by its first row's keys.
type answerShape int

const (
	shapeGeneric answerShape = iota
	shapeCompanyDetails
	shapeParameterSeries
)

func (s answerShape) String() string {
	switch s {
	case shapeCompanyDetails:
		return "company_details"
	case shapeParameterSeries:
		return "parameter_series"
	default:
		return "generic"
	}
}

var companyShapeKeys = []string{"country", "sector", "industry", "country_code", "s.name", "i.name"}

var parameterShapeKeys = []string{"p.parameter_name", "parameter_name", "pr.period", "pr.value"}

// noDataPhrases are the claims the contract check scans for. Any of these
// in an answer produced from a non-empty result set means the model ignored
// the data.
var noDataPhrases = []string{
	"no data",
	"no information",
	"no specific data",
	"unfortunately there is no data",
}

// Synthesizer turns execution results into a grounded natural-language
// answer.
//
// # Description
//
// Rows render deterministically first — deduplicated, grouped, formatted —
// and the model only rephrases that rendering under a strict prompt
// contract. If the model claims no data while rows exist, the answer is
// replaced with the deterministic rendering outright.
//
// # Thread Safety
//
// Safe for concurrent use.
type Synthesizer struct {
	client llm.ChatClient
	logger *slog.Logger
}

// NewSynthesizer creates a synthesizer over the given chat model.
func NewSynthesizer(client llm.ChatClient, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{client: client, logger: logger}
}

// Synthesize produces the final answer for a question.
//
// # Inputs
//
//   - ctx: Cancellation for the model call.
//   - question: The original natural-language question.
//   - result: Execution result; nil is treated as empty.
//   - supplementary: Optional narrative context (chunk text); empty omits
//     the section from the prompt.
//
// # Outputs
//
//   - string: The answer. Never claims no data when rows exist.
//   - error: *SynthesisError when the prompt cannot be rendered or the
//     model call fails.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, result *ExecutionResult, supplementary string) (string, error) {
	ctx, span := otel.Tracer(ragTracerName).Start(ctx, "rag.synthesize")
	defer span.End()

	if result == nil {
		result = &ExecutionResult{}
	}
	rows := result.Rows

	shape := classifyRows(rows)
	structuredData := renderStructuredData(shape, rows)

	indicator := "No data records found in database."
	if len(rows) > 0 {
		indicator = fmt.Sprintf("⚠️ CRITICAL: %d DATA RECORDS FOUND - YOU MUST PRESENT THIS DATA", len(rows))
	}

	tmpl := parameterAnswerPrompt
	if shape == shapeCompanyDetails {
		tmpl = companyDetailsPrompt
	}
	prompt, err := tmpl.Format(map[string]any{
		"question":         question,
		"resultsIndicator": indicator,
		"recordCount":      len(rows),
		"structuredData":   structuredData,
		"supplementary":    supplementary,
	})
	if err != nil {
		return "", &SynthesisError{Err: fmt.Errorf("render prompt: %w", err)}
	}

	span.SetAttributes(
		attribute.String("rag.answer_shape", shape.String()),
		attribute.Int("rag.rows", len(rows)),
	)
	s.logger.Debug("synthesizing answer",
		slog.String("shape", shape.String()),
		slog.Int("rows", len(rows)),
	)

	temp := float32(0)
	answer, err := s.client.Chat(ctx, []llm.ChatMessage{llm.UserMessage(prompt)}, llm.GenerationParams{Temperature: &temp})
	if err != nil {
		span.RecordError(err)
		return "", &SynthesisError{Err: err}
	}
	answer = strings.TrimSpace(answer)

	if len(rows) > 0 && claimsNoData(answer) {
		synthesisContractEnforced.Inc()
		s.logger.Warn("model claimed no data despite results, substituting deterministic rendering",
			slog.Int("rows", len(rows)),
			slog.String("shape", shape.String()),
		)
		return "## Query Results\n\n" + structuredData, nil
	}

	s.logger.Info("answer synthesized",
		slog.Int("rows", len(rows)),
		slog.Int("answer_length", len(answer)),
	)
	return answer, nil
}

// claimsNoData reports whether an answer contains a no-data claim.
func claimsNoData(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range noDataPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// classifyRows inspects the first row's keys. Company-profile keys without
// parameter keys mean company details; any parameter key means a parameter
// series; everything else is generic.
func classifyRows(rows []map[string]any) answerShape {
	if len(rows) == 0 {
		return shapeGeneric
	}
	first := rows[0]
	hasCompany := rowHasAnyKey(first, companyShapeKeys)
	hasParameter := rowHasAnyKey(first, parameterShapeKeys)
	switch {
	case hasCompany && !hasParameter:
		return shapeCompanyDetails
	case hasParameter:
		return shapeParameterSeries
	default:
		return shapeGeneric
	}
}

func rowHasAnyKey(row map[string]any, keys []string) bool {
	for _, key := range keys {
		if _, ok := row[key]; ok {
			return true
		}
	}
	return false
}

// renderStructuredData produces the deterministic intermediate rendering
// the prompt and the contract fallback both use.
func renderStructuredData(shape answerShape, rows []map[string]any) string {
	if len(rows) == 0 {
		return "No structured data records found."
	}
	switch shape {
	case shapeCompanyDetails:
		return renderCompanyDetails(rows)
	case shapeParameterSeries:
		return renderParameterSeries(rows)
	default:
		return renderGeneric(rows)
	}
}

// renderCompanyDetails formats company-profile rows.
func renderCompanyDetails(rows []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d company record(s):\n\n", len(rows))

	for _, row := range rows {
		fmt.Fprintf(&b, "Company: %s\n", rowString(row, "Unknown", "c.company_name", "company_name"))
		fmt.Fprintf(&b, "  Company ID: %s\n", rowString(row, "N/A", "c.cid", "cid"))
		fmt.Fprintf(&b, "  Country: %s (%s)\n",
			rowString(row, "N/A", "country", "country.name"),
			rowString(row, "N/A", "country_code", "country.code"),
		)
		fmt.Fprintf(&b, "  Sector: %s\n", rowString(row, "N/A", "sector", "s.name"))
		fmt.Fprintf(&b, "  Industry: %s\n", rowString(row, "N/A", "industry", "i.name"))

		if marketCap := rowValue(row, "c.market_cap", "market_cap"); marketCap != nil {
			if f, ok := asFloat(marketCap); ok {
				if f != 0 {
					fmt.Fprintf(&b, "  Market Cap: %s\n", numberPrinter.Sprintf("%.0f", f))
				}
			} else if s := fmt.Sprintf("%v", marketCap); s != "" && s != "N/A" {
				fmt.Fprintf(&b, "  Market Cap: %s\n", s)
			}
		}
		if desc := rowString(row, "", "c.description", "description"); desc != "" && desc != "N/A" {
			if utf8.RuneCountInString(desc) > 200 {
				desc = string([]rune(desc)[:200]) + "..."
			}
			fmt.Fprintf(&b, "  Description: %s\n", desc)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// seriesRecord is one deduplicated period observation of a parameter.
type seriesRecord struct {
	period   string
	value    any
	currency string
	yoy      any
}

// renderParameterSeries deduplicates on the exact
// parameter|period|value|currency composite, groups by parameter in
// first-seen order, and formats each group capped at 20 records sorted by
// period. Similar parameter names ("Accounts receivable" vs "Accounts
// receivable, Average") stay separate because the name is part of the key.
func renderParameterSeries(rows []map[string]any) string {
	var (
		paramOrder  []string
		paramGroups = make(map[string][]seriesRecord)
		seen        = make(map[string]struct{})
		periodSet   = make(map[string]struct{})
	)

	for _, row := range rows {
		name := rowString(row, "Unknown", "p.parameter_name", "parameter_name")
		period := rowString(row, "Unknown", "pr.period", "period")
		value := rowValue(row, "pr.value", "value")
		currency := rowString(row, "N/A", "pr.currency", "currency")
		yoy := rowValue(row, "pr.yoy_growth", "yoy_growth")

		valueKey := "N/A"
		if value != nil {
			valueKey = fmt.Sprintf("%v", value)
		}
		key := name + "|" + period + "|" + valueKey + "|" + currency
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		periodSet[period] = struct{}{}

		if _, ok := paramGroups[name]; !ok {
			paramOrder = append(paramOrder, name)
		}
		paramGroups[name] = append(paramGroups[name], seriesRecord{
			period:   period,
			value:    value,
			currency: currency,
			yoy:      yoy,
		})
	}

	totalDeduped := 0
	for _, records := range paramGroups {
		totalDeduped += len(records)
	}
	periods := make([]string, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d unique data records (after deduplication):\n\n", totalDeduped)
	fmt.Fprintf(&b, "Company: %s\n", rowString(rows[0], "Unknown", "c.company_name", "company_name"))
	fmt.Fprintf(&b, "Periods in data: %s\n\n", strings.Join(periods, ", "))

	for _, name := range paramOrder {
		records := paramGroups[name]
		fmt.Fprintf(&b, "\nParameter: %s (%d unique records)\n", name, len(records))

		capped := records
		if len(capped) > 20 {
			capped = capped[:20]
		}
		ordered := make([]seriesRecord, len(capped))
		copy(ordered, capped)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].period < ordered[j].period })

		for _, rec := range ordered {
			formatted := "N/A"
			if rec.value != nil {
				formatted = formatValue(rec.value)
			}
			fmt.Fprintf(&b, "  - Period: %s, Value: %s, Currency: %s", rec.period, formatted, rec.currency)
			if rec.yoy != nil {
				if f, ok := asFloat(rec.yoy); ok {
					fmt.Fprintf(&b, ", YoY Growth: %.2f%%", f)
				} else if s := fmt.Sprintf("%v", rec.yoy); s != "" && s != "N/A" {
					fmt.Fprintf(&b, ", YoY Growth: %s%%", s)
				}
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nTotal: %d records found across %d parameters.\n", len(rows), len(paramOrder))
	return b.String()
}

// renderGeneric dumps up to 10 rows key-by-key, keys sorted for stable
// output.
func renderGeneric(rows []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d record(s):\n\n", len(rows))

	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "Record %d:\n", i+1)
		keys := make([]string, 0, len(rows[i]))
		for key := range rows[i] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", key, rows[i][key])
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatValue renders a cell value: grouped %.2f at a million and above,
// plain %.2f below, raw text for non-numerics.
func formatValue(v any) string {
	f, ok := asFloat(v)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	if math.Abs(f) >= 1e6 {
		return numberPrinter.Sprintf("%.2f", f)
	}
	return fmt.Sprintf("%.2f", f)
}

// asFloat widens any numeric value the store can return.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// rowString returns the stringified value of the first key present with a
// non-nil value, or def.
func rowString(row map[string]any, def string, keys ...string) string {
	if v := rowValue(row, keys...); v != nil {
		return fmt.Sprintf("%v", v)
	}
	return def
}

// rowValue returns the first key's non-nil value, or nil.
func rowValue(row map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := row[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
