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
	"regexp"
	"strings"
)

// =============================================================================
// Complexity Assessment
// =============================================================================

// complexIndicators suggest comparison, aggregation, or multi-hop analysis
// that the plain tool-calling loop handles poorly.
var complexIndicators = []string{
	"compare", "comparison", "vs", "versus", "trend",
	"across", "multiple", "over", "calculate", "sum",
	"aggregate", "average", "ratio", "difference",
	"growth rate", "percentage change", "correlation",
}

var (
	companyMentionRe = regexp.MustCompile(`\b(company|companies|corporation|corp)\b`)
	metricMentionRe  = regexp.MustCompile(`\b(revenue|margin|profit|ebitda|sales|earnings)\b`)
)

// Assess scores a question and routes it to the simple tool-calling path
// or the iterative reasoning engine.
//
// # Description
//
// The score counts distinct complexity indicators present (each at most
// once); company and metric mentions count every occurrence. A question
// is complex when the score reaches 2, more than one company is
// mentioned, or more than two metrics are mentioned.
//
// Deterministic and side-effect-free.
func Assess(question string) Assessment {
	lower := strings.ToLower(question)

	score := 0
	for _, indicator := range complexIndicators {
		if strings.Contains(lower, indicator) {
			score++
		}
	}

	companies := len(companyMentionRe.FindAllString(lower, -1))
	metrics := len(metricMentionRe.FindAllString(lower, -1))

	level := ComplexitySimple
	if score >= 2 || companies > 1 || metrics > 2 {
		level = ComplexityComplex
	}

	return Assessment{
		Level:           level,
		Score:           score,
		CompanyMentions: companies,
		MetricMentions:  metrics,
	}
}
