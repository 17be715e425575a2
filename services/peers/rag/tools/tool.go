// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the fixed tool registry the query-generation
// orchestrator exposes to the LLM: fuzzy company search, semantic parameter
// search, and three Cypher query generators. Every graph lookup and every
// generated query binds its literal values as Cypher parameters — user text
// never reaches query syntax.
package tools

import (
	"context"
	"encoding/json"

	"github.com/AleutianAI/PeersRAG/services/llm"
)

// Tool is one callable unit the registry exposes to the LLM.
//
// # Description
//
// Execute decodes its own arguments from raw JSON and returns a payload the
// orchestrator serializes back into a tool-result message. Tools absorb
// their own data-layer failures into shaped error payloads (the LLM can
// recover by calling a different tool); Execute returns a non-nil error only
// for malformed arguments, which the orchestrator converts into a generic
// error payload.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the function name the LLM calls.
	Name() string

	// Definition returns the JSON-schema tool definition sent to the LLM.
	Definition() llm.ToolDef

	// Execute runs the tool against the decoded arguments.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}
