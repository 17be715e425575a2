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
	"errors"
	"fmt"
)

// Error taxonomy. Generation-layer components never error on "no match" —
// they degrade to always-valid output. Execution and synthesis failures
// propagate, because reporting infrastructure trouble as "no data" would
// misinform the user.

// ErrReasoningUnavailable is returned by the iterative reasoning stub; the
// pipeline degrades complex questions to the tool-calling path and records
// the degradation when it sees this error.
var ErrReasoningUnavailable = errors.New("rag: iterative reasoning engine not implemented")

// ConnectivityError wraps a failure to reach an external service (graph
// store or LLM provider). Always propagated, never retried here.
type ConnectivityError struct {
	// Service names the unreachable dependency, e.g. "neo4j" or "llm".
	Service string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("rag: %s unreachable: %v", e.Service, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// InvalidQueryError reports query text that failed validation. Inside the
// generation chain it is recovered by the next strategy; it only surfaces
// to callers who submit their own Cypher for execution.
type InvalidQueryError struct {
	// Text is the rejected query, truncated for logging.
	Text   string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("rag: invalid query (%s): %s", e.Reason, e.Text)
}

// ToolExecutionError reports a tool dispatch failure inside the
// orchestrator loop. It is converted into an {"error": ...} tool-result
// payload for the model, never raised past the orchestrator.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("rag: tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// SynthesisError wraps an answer-synthesis failure.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("rag: answer synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// truncateForError keeps rejected query text loggable without flooding.
func truncateForError(text string) string {
	const max = 200
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
