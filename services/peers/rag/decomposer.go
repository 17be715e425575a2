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
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/PeersRAG/services/peers/config"
)

// decomposeCompanyScan caps how many cached companies are token-tested per
// question.
const decomposeCompanyScan = 50

var (
	yearRe = regexp.MustCompile(`(?:fy-|20)(\d{4})`)
	fyRe   = regexp.MustCompile(`fy-(\d{4})`)
)

// quarterTokens are checked in this order; the first hit wins.
var quarterTokens = []struct {
	tokens  [2]string
	quarter int
}{
	{[2]string{"q3", "3q"}, 3},
	{[2]string{"q2", "2q"}, 2},
	{[2]string{"q1", "1q"}, 1},
	{[2]string{"q4", "4q"}, 4},
}

var (
	compareWords   = []string{"compare", "comparison", "vs", "versus", "difference"}
	aggregateWords = []string{"sum", "total", "aggregate", "average"}
)

// Decomposer maps a natural-language question to a structured intent using
// fixed rules over the schema snapshot and the embedded vocabulary.
//
// # Description
//
// Deterministic given the cache contents: the same question against the
// same snapshot always yields the same Decomposition. When the snapshot is
// unavailable, company resolution falls back to the vocabulary's alias
// table so that well-known names keep resolving during a graph outage.
//
// # Thread Safety
//
// Safe for concurrent use.
type Decomposer struct {
	cache  *SchemaCache
	vocab  *config.VocabStore
	logger *slog.Logger
}

// NewDecomposer creates a decomposer over the schema cache and vocabulary.
func NewDecomposer(cache *SchemaCache, vocab *config.VocabStore, logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	if vocab == nil {
		vocab = config.NewVocabStore()
	}
	return &Decomposer{cache: cache, vocab: vocab, logger: logger}
}

// Decompose extracts company, parameter labels, period, and operation from
// a question.
func (d *Decomposer) Decompose(ctx context.Context, question string) Decomposition {
	lower := strings.ToLower(question)

	dec := Decomposition{
		Company:    d.resolveCompany(ctx, lower),
		Parameters: resolveParameters(lower),
		Period:     resolvePeriod(lower),
		Operation:  resolveOperation(lower),
	}
	dec.IsMultiParameter = len(dec.Parameters) > 1

	d.logger.Debug("question decomposed",
		slog.String("company", dec.Company),
		slog.String("parameters", strings.Join(dec.Parameters, ",")),
		slog.String("period", dec.Period),
		slog.String("operation", string(dec.Operation)),
	)
	return dec
}

// resolveCompany matches cached company names by significant token, then
// falls back to the alias table.
func (d *Decomposer) resolveCompany(ctx context.Context, lower string) string {
	if d.cache != nil {
		if snap := d.cache.Get(ctx); snap != nil {
			companies := snap.Companies
			if len(companies) > decomposeCompanyScan {
				companies = companies[:decomposeCompanyScan]
			}
			for _, company := range companies {
				for _, word := range strings.Fields(strings.ToLower(company)) {
					if len(word) > 3 && strings.Contains(lower, word) {
						return company
					}
				}
			}
		}
	}

	aliases := d.vocab.Current().CompanyAliases
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, alias := range keys {
		if strings.Contains(lower, alias) {
			return aliases[alias]
		}
	}
	return ""
}

// resolveParameters applies the fixed-priority rule list. Most-specific
// forms win; each rule appends at most one label and no label repeats.
func resolveParameters(lower string) []string {
	var params []string
	seen := make(map[string]bool)
	add := func(label string) {
		if !seen[label] {
			seen[label] = true
			params = append(params, label)
		}
	}

	// EBITDA margin: phrase, or both words anywhere.
	if strings.Contains(lower, "ebitda margin") {
		add("EBITDA margin")
	} else if strings.Contains(lower, "ebitda") && strings.Contains(lower, "margin") {
		add("EBITDA margin")
	}

	// Net margin: phrase, or net+margin within 15 chars when no ebitda.
	if strings.Contains(lower, "net margin") {
		add("Net margin")
	} else if strings.Contains(lower, "net") && strings.Contains(lower, "margin") &&
		!strings.Contains(lower, "ebitda") &&
		within(lower, "net", "margin", 15) {
		add("Net margin")
	}

	// Net profit: phrase, or net+profit within 10 chars when "net margin"
	// did not already consume the "net".
	if strings.Contains(lower, "net profit") {
		add("Net profit")
	} else if strings.Contains(lower, "net") && strings.Contains(lower, "profit") &&
		!strings.Contains(lower, "net margin") &&
		within(lower, "net", "profit", 10) {
		add("Net profit")
	}

	// Production volume.
	if strings.Contains(lower, "production volume") ||
		(strings.Contains(lower, "production") && strings.Contains(lower, "volume")) {
		add("Production Units/Volume")
	}

	// Receivables: the exact phrase maps to the canonical label, a bare
	// "receivable" to the common graph variant.
	if strings.Contains(lower, "accounts receivable") {
		add("Accounts receivable")
	} else if strings.Contains(lower, "receivable") {
		add("Receivables, Net")
	}

	// Revenue: "total revenue" before bare "revenue"; suppressed entirely
	// for production questions.
	if strings.Contains(lower, "total revenue") {
		add("Total revenue, Primary")
	} else if strings.Contains(lower, "revenue") && !strings.Contains(lower, "production") {
		add("Revenue")
	}

	return params
}

// within reports whether the first occurrences of a and b sit within dist
// characters of each other.
func within(s, a, b string, dist int) bool {
	ai, bi := strings.Index(s, a), strings.Index(s, b)
	if ai < 0 || bi < 0 {
		return false
	}
	delta := ai - bi
	if delta < 0 {
		delta = -delta
	}
	return delta < dist
}

// resolvePeriod extracts the canonical period token.
func resolvePeriod(lower string) string {
	year := "2024"
	if m := yearRe.FindStringSubmatch(lower); m != nil {
		year = m[1]
	}

	for _, qt := range quarterTokens {
		if strings.Contains(lower, qt.tokens[0]) || strings.Contains(lower, qt.tokens[1]) {
			return fmt.Sprintf("%dQFY-%s", qt.quarter, year)
		}
	}

	if m := fyRe.FindStringSubmatch(lower); m != nil {
		return "FY-" + m[1]
	}

	if strings.Contains(lower, "latest") || strings.Contains(lower, "recent") {
		return "latest"
	}
	return ""
}

// resolveOperation classifies the question's verb.
func resolveOperation(lower string) Operation {
	for _, w := range compareWords {
		if strings.Contains(lower, w) {
			return OperationCompare
		}
	}
	for _, w := range aggregateWords {
		if strings.Contains(lower, w) {
			return OperationAggregate
		}
	}
	return OperationRetrieve
}
