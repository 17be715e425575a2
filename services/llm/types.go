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
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// GenerationParams carries optional sampling controls for a chat request.
//
// Description:
//
//	Nil pointer fields mean "use the provider default". ModelOverride
//	selects a different model than the one the client was constructed
//	with, for callers that need per-request model routing.
//
// Thread Safety: GenerationParams is a value type; copies are independent.
type GenerationParams struct {
	Temperature   *float32
	MaxTokens     *int
	TopP          *float32
	Stop          []string
	ModelOverride string
}

// ChatClient is the minimal text-in/text-out surface every provider offers.
type ChatClient interface {
	Chat(ctx context.Context, messages []ChatMessage, params GenerationParams) (string, error)
}

// ToolCaller extends ChatClient with native function calling.
//
// Description:
//
//	The query-generation orchestrator depends on this interface rather
//	than a concrete provider so that tests can script tool-call rounds
//	and deployments can switch providers by configuration.
type ToolCaller interface {
	ChatClient
	ChatWithTools(ctx context.Context, messages []ChatMessage,
		params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error)
}

// ToolDef is the generic tool definition used as input to ChatWithTools
// for all providers. Follows the OpenAI function calling schema.
//
// Description:
//
//	Provides a provider-agnostic way to define tools. Each provider's
//	ChatWithTools method converts ToolDef into its wire format
//	(OpenAI function, Ollama tools array).
//
// Thread Safety: ToolDef is immutable and safe for concurrent read access.
type ToolDef struct {
	// Type is the tool type. Always "function" for function calling.
	Type string `json:"type"`

	// Function contains the function definition.
	Function ToolFunction `json:"function"`
}

// ToolFunction contains the function name, description, and parameter schema.
type ToolFunction struct {
	// Name is the function name the model will call.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description"`

	// Parameters defines the JSON Schema for function parameters.
	Parameters ToolParameters `json:"parameters"`
}

// ToolParameters defines the JSON Schema for tool parameters.
type ToolParameters struct {
	// Type is the JSON Schema type. Always "object" for tool parameters.
	Type string `json:"type"`

	// Properties maps parameter names to their definitions.
	Properties map[string]ToolParamDef `json:"properties,omitempty"`

	// Required lists parameter names that must be provided.
	Required []string `json:"required,omitempty"`
}

// ToolParamDef defines a single parameter in JSON Schema format.
type ToolParamDef struct {
	// Type is the JSON Schema type (string, integer, boolean, number, array).
	Type string `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description,omitempty"`

	// Items describes array element types for array parameters.
	Items *ToolParamDef `json:"items,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`

	// Default is the default value if not provided.
	Default any `json:"default,omitempty"`
}

// NewToolDef builds a function-typed ToolDef from a parameter schema.
func NewToolDef(name, description string, props map[string]ToolParamDef, required []string) ToolDef {
	return ToolDef{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters: ToolParameters{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}

// ChatMessage is a richer message type that carries tool call metadata.
//
// Description:
//
//	Regular messages use Role + Content. Tool results include ToolCallID
//	and ToolName. Assistant messages with tool calls include ToolCalls.
//	All providers convert this one shape to and from their wire formats.
//
// Thread Safety: ChatMessage is safe for concurrent read access.
type ChatMessage struct {
	// Role is the message role: "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool invocations (for assistant messages).
	ToolCalls []ToolCallResponse `json:"tool_calls,omitempty"`

	// ToolCallID links this message back to a specific tool call (for tool result messages).
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is the tool name for tool result messages.
	ToolName string `json:"tool_name,omitempty"`
}

// SystemMessage returns a system-role ChatMessage.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage returns a user-role ChatMessage.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage returns an assistant-role ChatMessage carrying any tool
// calls the model produced, so the following tool results can be linked
// back to their requests.
func AssistantMessage(content string, toolCalls []ToolCallResponse) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content, ToolCalls: toolCalls}
}

// ToolResultMessage returns a tool-role ChatMessage answering a specific
// tool call. Payload should be a JSON document (success or error shape).
func ToolResultMessage(call ToolCallResponse, payload string) ChatMessage {
	return ChatMessage{
		Role:       "tool",
		Content:    payload,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// ToolCallResponse represents a tool call from any LLM provider.
//
// Description:
//
//	Provider-agnostic representation of a tool call. Each provider's
//	ChatWithTools method populates this from its native response format:
//	- OpenAI: tool_calls array (ids provided)
//	- Ollama: message.tool_calls (no ids; synthetic ones are generated)
//
// Thread Safety: ToolCallResponse is safe for concurrent read access.
type ToolCallResponse struct {
	// ID is the unique identifier for this tool call.
	ID string `json:"id"`

	// Name is the function name to call.
	Name string `json:"name"`

	// Arguments is the raw JSON arguments for the function.
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsString returns the arguments as a JSON string.
//
// Description:
//
//	If arguments is already a JSON string value (starts with quote),
//	it returns the unquoted string. If arguments is an object or other
//	JSON value, it returns the raw JSON as-is. Returns "{}" for nil/empty.
//
// Outputs:
//   - string: The arguments as a JSON string suitable for tool execution.
//
// Thread Safety: This method is safe for concurrent use.
func (t *ToolCallResponse) ArgumentsString() string {
	if len(t.Arguments) == 0 {
		return "{}"
	}

	// Check if it's a JSON string (starts with quote)
	if t.Arguments[0] == '"' {
		var s string
		if err := json.Unmarshal(t.Arguments, &s); err == nil {
			return s
		}
	}

	// It's an object or other JSON value, return as-is
	return string(t.Arguments)
}

// NormalizeToolCalls enforces the unified tool-call shape at the provider
// boundary.
//
// Description:
//
//	Drops calls without a function name (nothing can be dispatched),
//	assigns a synthetic UUID to calls whose provider omitted the id, and
//	defaults empty arguments to "{}" so downstream JSON decoding never
//	sees a zero-length document.
//
// Outputs:
//   - []ToolCallResponse: Normalized copies; the input slice is not mutated.
//
// Thread Safety: This function is safe for concurrent use.
func NormalizeToolCalls(calls []ToolCallResponse) []ToolCallResponse {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCallResponse, 0, len(calls))
	for _, tc := range calls {
		if tc.Name == "" {
			continue
		}
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if len(tc.Arguments) == 0 {
			tc.Arguments = json.RawMessage("{}")
		}
		out = append(out, tc)
	}
	return out
}

// ChatWithToolsResult is the provider-agnostic result from ChatWithTools.
//
// Description:
//
//	Contains the LLM response including any tool calls. All provider
//	clients return this from their ChatWithTools method.
//
// Thread Safety: ChatWithToolsResult is safe for concurrent read access.
type ChatWithToolsResult struct {
	// Content is the text response (may be empty if only tool calls).
	Content string

	// ToolCalls contains tool calls from the model.
	ToolCalls []ToolCallResponse

	// StopReason indicates why generation stopped.
	// Values: "end" (normal completion) or "tool_use" (tool calls present).
	StopReason string
}
