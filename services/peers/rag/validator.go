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

import "strings"

// =============================================================================
// Query Validation
// =============================================================================

// validStartKeywords are the clauses a query may open with.
var validStartKeywords = []string{
	"MATCH", "RETURN", "WITH", "OPTIONAL", "UNWIND", "CALL", "MERGE", "CREATE",
}

// apologyPhrases mark natural-language refusals that slip past the keyword
// checks when a model wraps prose around query fragments.
var apologyPhrases = []string{
	"i'm sorry", "i cannot", "here is", "the query is",
	"i am unable", "cannot assist", "not specific enough",
}

// cypherKeywords is the minimum evidence that text is a query at all.
var cypherKeywords = []string{"MATCH", "RETURN", "WHERE", "WITH", "ORDER", "LIMIT"}

// ValidCypher reports whether text is acceptable for execution.
//
// # Description
//
// This predicate is the single gate used by every generation path before
// a query reaches the store. It rejects short fragments, text that does
// not open with a Cypher clause, model apologies, and text containing no
// Cypher keywords at all. It does not parse Cypher; the store is the
// final arbiter of syntax.
func ValidCypher(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 10 {
		return false
	}

	upper := strings.ToUpper(trimmed)
	hasValidStart := false
	for _, kw := range validStartKeywords {
		if strings.HasPrefix(upper, kw) {
			hasValidStart = true
			break
		}
	}
	if !hasValidStart {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range apologyPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}

	for _, kw := range cypherKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// =============================================================================
// Query Extraction
// =============================================================================

// extractionPrefixes are stripped from the front of model output before
// line scanning. Checked in order, once each.
var extractionPrefixes = []string{
	"Cypher:", "Query:", "Cypher Query:", "Here is the Cypher query:",
	"The Cypher query is:", "Generated Cypher:", "```cypher", "```",
}

// cypherLineKeywords mark a line as part of a query during extraction.
// Broader than validStartKeywords because continuation lines open with
// clauses like WHERE and ORDER.
var cypherLineKeywords = []string{
	"MATCH", "RETURN", "WITH", "OPTIONAL", "UNWIND", "CALL",
	"ORDER", "LIMIT", "WHERE", "AND", "OR",
}

// proseMarkers end extraction once a query has started; anything after is
// the model explaining itself.
var proseMarkers = []string{"here", "the query", "i ", "sorry", "cannot"}

// ExtractCypher pulls query text out of a model response, dropping code
// fences, known prefixes, and surrounding prose.
//
// # Description
//
// Responses that already open with a Cypher clause pass through
// unchanged. Otherwise the known prefixes and fence markers are stripped
// and the remaining lines are scanned: lines opening with a Cypher clause
// start or continue the query, and the first prose line after the query
// has started ends it. When no query-shaped lines are found the stripped
// text is returned as-is for the validator to reject.
func ExtractCypher(text string) string {
	text = strings.TrimSpace(text)

	upper := strings.ToUpper(text)
	for _, kw := range []string{"MATCH", "RETURN", "WITH", "OPTIONAL", "UNWIND", "CALL"} {
		if strings.HasPrefix(upper, kw) {
			return text
		}
	}

	for _, prefix := range extractionPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
		}
	}
	text = strings.ReplaceAll(text, "```cypher", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	var cypherLines []string
	inCypher := false
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if lineStartsCypher(stripped) {
			inCypher = true
			cypherLines = append(cypherLines, stripped)
			continue
		}
		if inCypher {
			if lineIsProse(stripped) {
				break
			}
			cypherLines = append(cypherLines, stripped)
		}
	}

	if len(cypherLines) > 0 {
		return strings.Join(cypherLines, "\n")
	}
	return text
}

func lineStartsCypher(line string) bool {
	upper := strings.ToUpper(line)
	for _, kw := range cypherLineKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

func lineIsProse(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range proseMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}
