// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestToolCallResponse_ArgumentsString_Object(t *testing.T) {
	tc := ToolCallResponse{
		ID:        "call-1",
		Name:      "search_company",
		Arguments: json.RawMessage(`{"company_name":"Kajaria","limit":5}`),
	}

	result := tc.ArgumentsString()
	if result != `{"company_name":"Kajaria","limit":5}` {
		t.Errorf("ArgumentsString() = %q, want JSON object string", result)
	}
}

func TestToolCallResponse_ArgumentsString_String(t *testing.T) {
	// Some models return arguments as a JSON string
	tc := ToolCallResponse{
		ID:        "call-2",
		Name:      "search_parameters",
		Arguments: json.RawMessage(`"{\"search_term\":\"revenue\"}"`),
	}

	result := tc.ArgumentsString()
	if result != `{"search_term":"revenue"}` {
		t.Errorf("ArgumentsString() = %q, want unquoted JSON string", result)
	}
}

func TestToolCallResponse_ArgumentsString_Empty(t *testing.T) {
	tc := ToolCallResponse{
		ID:   "call-3",
		Name: "no_args",
	}

	result := tc.ArgumentsString()
	if result != "{}" {
		t.Errorf("ArgumentsString() = %q, want %q", result, "{}")
	}
}

func TestToolCallResponse_ArgumentsString_Array(t *testing.T) {
	tc := ToolCallResponse{
		ID:        "call-4",
		Name:      "array_args",
		Arguments: json.RawMessage(`[1,2,3]`),
	}

	result := tc.ArgumentsString()
	if result != `[1,2,3]` {
		t.Errorf("ArgumentsString() = %q, want %q", result, `[1,2,3]`)
	}
}

func TestNewToolDef_Shape(t *testing.T) {
	def := NewToolDef("search_company", "Search for companies by name",
		map[string]ToolParamDef{
			"company_name": {Type: "string", Description: "Company name or partial name"},
			"limit":        {Type: "integer", Description: "Maximum results", Default: 5},
		},
		[]string{"company_name"},
	)

	if def.Type != "function" {
		t.Errorf("Type = %q, want %q", def.Type, "function")
	}
	if def.Function.Parameters.Type != "object" {
		t.Errorf("Parameters.Type = %q, want %q", def.Function.Parameters.Type, "object")
	}
	if len(def.Function.Parameters.Required) != 1 || def.Function.Parameters.Required[0] != "company_name" {
		t.Errorf("Required = %v, want [company_name]", def.Function.Parameters.Required)
	}
}

func TestToolDef_JSONRoundTrip(t *testing.T) {
	def := NewToolDef("generate_filter_query", "Generate a Cypher query filtering companies",
		map[string]ToolParamDef{
			"sectors": {
				Type:        "array",
				Description: "Sector names to filter by",
				Items:       &ToolParamDef{Type: "string"},
			},
			"limit": {Type: "integer", Default: 50},
		},
		nil,
	)

	data, err := json.Marshal(def)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded ToolDef
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Function.Name != "generate_filter_query" {
		t.Errorf("Name = %q, want %q", decoded.Function.Name, "generate_filter_query")
	}
	if len(decoded.Function.Parameters.Properties) != 2 {
		t.Errorf("Properties count = %d, want 2", len(decoded.Function.Parameters.Properties))
	}
	items := decoded.Function.Parameters.Properties["sectors"].Items
	if items == nil || items.Type != "string" {
		t.Errorf("sectors.Items = %+v, want string items", items)
	}
}

func TestChatMessage_JSONRoundTrip(t *testing.T) {
	msg := ChatMessage{
		Role:    "assistant",
		Content: "I'll call a tool",
		ToolCalls: []ToolCallResponse{
			{
				ID:        "tc-1",
				Name:      "search_parameters",
				Arguments: json.RawMessage(`{"search_term":"ebitda margin"}`),
			},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded ChatMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Role != "assistant" {
		t.Errorf("Role = %q, want %q", decoded.Role, "assistant")
	}
	if len(decoded.ToolCalls) != 1 {
		t.Fatalf("ToolCalls count = %d, want 1", len(decoded.ToolCalls))
	}
	if decoded.ToolCalls[0].Name != "search_parameters" {
		t.Errorf("ToolCalls[0].Name = %q, want %q", decoded.ToolCalls[0].Name, "search_parameters")
	}
}

func TestToolResultMessage_LinksCall(t *testing.T) {
	call := ToolCallResponse{ID: "tc-1", Name: "search_company"}
	msg := ToolResultMessage(call, `{"companies":[]}`)

	if msg.Role != "tool" {
		t.Errorf("Role = %q, want %q", msg.Role, "tool")
	}
	if msg.ToolCallID != "tc-1" {
		t.Errorf("ToolCallID = %q, want %q", msg.ToolCallID, "tc-1")
	}
	if msg.ToolName != "search_company" {
		t.Errorf("ToolName = %q, want %q", msg.ToolName, "search_company")
	}
}

func TestNormalizeToolCalls_SyntheticIDs(t *testing.T) {
	calls := []ToolCallResponse{
		{Name: "search_company", Arguments: json.RawMessage(`{"company_name":"Acme"}`)},
		{Name: "search_parameters"},
	}

	normalized := NormalizeToolCalls(calls)
	if len(normalized) != 2 {
		t.Fatalf("len(normalized) = %d, want 2", len(normalized))
	}
	for i, tc := range normalized {
		if tc.ID == "" {
			t.Errorf("normalized[%d].ID is empty, want synthetic id", i)
		}
		if !strings.HasPrefix(tc.ID, "call_") {
			t.Errorf("normalized[%d].ID = %q, want call_ prefix", i, tc.ID)
		}
	}
	if normalized[0].ID == normalized[1].ID {
		t.Error("synthetic ids should be unique")
	}
	if string(normalized[1].Arguments) != "{}" {
		t.Errorf("empty arguments should default to {}, got %q", normalized[1].Arguments)
	}
}

func TestNormalizeToolCalls_PreservesProviderIDs(t *testing.T) {
	calls := []ToolCallResponse{
		{ID: "call_abc", Name: "search_company", Arguments: json.RawMessage(`{}`)},
	}

	normalized := NormalizeToolCalls(calls)
	if normalized[0].ID != "call_abc" {
		t.Errorf("ID = %q, want provider id preserved", normalized[0].ID)
	}
}

func TestNormalizeToolCalls_DropsNamelessCalls(t *testing.T) {
	calls := []ToolCallResponse{
		{ID: "call_1", Arguments: json.RawMessage(`{}`)},
		{ID: "call_2", Name: "search_company"},
	}

	normalized := NormalizeToolCalls(calls)
	if len(normalized) != 1 {
		t.Fatalf("len(normalized) = %d, want 1", len(normalized))
	}
	if normalized[0].Name != "search_company" {
		t.Errorf("Name = %q, want %q", normalized[0].Name, "search_company")
	}
}

func TestNormalizeToolCalls_Empty(t *testing.T) {
	if got := NormalizeToolCalls(nil); got != nil {
		t.Errorf("NormalizeToolCalls(nil) = %v, want nil", got)
	}
}
