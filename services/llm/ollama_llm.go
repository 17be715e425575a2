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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Ollama Wire Types
// =============================================================================

const (
	defaultOllamaBaseURL = "http://host.containers.internal:11434"
	defaultOllamaModel   = "llama3.1:8b"
)

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

// ollamaTool mirrors the OpenAI function schema, which Ollama adopted
// for its native tool support.
type ollamaTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type ollamaToolCall struct {
	Function ollamaCallFunction `json:"function"`
}

// ollamaCallFunction carries arguments as a JSON object, not a string
// like OpenAI; decoding keeps them raw for the normalized shape.
type ollamaCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
	Error      string        `json:"error,omitempty"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OllamaClient implements ToolCaller against a local Ollama server.
//
// Description:
//
//	Talks to Ollama's /api/chat endpoint with stream disabled. Tool
//	definitions reuse the OpenAI function schema, which Ollama accepts
//	natively. Ollama does not assign tool-call ids, so synthetic ones
//	are attached before results leave this client.
//
// Thread Safety: OllamaClient is safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	model      string
	baseURL    string
}

// NewOllamaClientWithConfig creates an OllamaClient with explicit configuration.
func NewOllamaClientWithConfig(model, baseURL string) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// NewOllamaClient creates a new OllamaClient from environment variables.
//
// Description:
//
//	Reads OLLAMA_BASE_URL and OLLAMA_MODEL from the environment. The
//	default base URL matches the container-host convention used by the
//	embedding client. No API key is required for a local server.
//
// Outputs:
//   - *OllamaClient: The configured client.
//   - error: Reserved for future validation; currently always nil.
func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("OLLAMA_MODEL")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
		slog.Warn("OLLAMA_MODEL not set, defaulting", slog.String("model", model))
	}
	slog.Info("Initializing Ollama client",
		slog.String("model", model),
		slog.String("base_url", baseURL),
	)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Chat implements ChatClient via Ollama's /api/chat endpoint.
//
// Thread Safety: This method is safe for concurrent use.
func (c *OllamaClient) Chat(ctx context.Context, messages []ChatMessage, params GenerationParams) (string, error) {
	start := time.Now()
	resp, err := c.send(ctx, messages, params, nil)
	recordChatMetrics("ollama", time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ChatWithTools sends a chat request with tool definitions and returns tool calls.
//
// Description:
//
//	Converts generic ToolDef values to Ollama's tools array, sends the
//	request, and normalizes message.tool_calls into ToolCallResponse
//	values with synthetic ids.
//
// Thread Safety: This method is safe for concurrent use.
func (c *OllamaClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error) {

	slog.Debug("ChatWithTools via Ollama",
		slog.String("model", c.model),
		slog.Int("messages", len(messages)),
		slog.Int("tools", len(tools)),
	)

	oTools := make([]ollamaTool, 0, len(tools))
	for _, td := range tools {
		oTools = append(oTools, ollamaTool{
			Type: "function",
			Function: openaiFunction{
				Name:        td.Function.Name,
				Description: td.Function.Description,
				Parameters:  td.Function.Parameters,
			},
		})
	}

	start := time.Now()
	resp, err := c.send(ctx, messages, params, oTools)
	recordChatMetrics("ollama", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	result := &ChatWithToolsResult{
		Content: resp.Message.Content,
	}
	for _, tc := range resp.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	result.ToolCalls = NormalizeToolCalls(result.ToolCalls)

	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	} else {
		result.StopReason = "end"
	}

	return result, nil
}

func (c *OllamaClient) send(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ollamaTool) (*ollamaChatResponse, error) {

	model := c.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	oMessages := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		oMsg := ollamaMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				oMsg.ToolCalls = append(oMsg.ToolCalls, ollamaToolCall{
					Function: ollamaCallFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		oMessages = append(oMessages, oMsg)
	}

	reqPayload := ollamaChatRequest{
		Model:    model,
		Messages: oMessages,
		Stream:   false,
		Tools:    tools,
	}
	if params.Temperature != nil || params.MaxTokens != nil || params.TopP != nil || len(params.Stop) > 0 {
		reqPayload.Options = &ollamaOptions{
			Temperature: params.Temperature,
			NumPredict:  params.MaxTokens,
			TopP:        params.TopP,
			Stop:        params.Stop,
		}
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("ollama: parsing response JSON: %w", err)
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("ollama: API error: %s", SafeLogString(apiResp.Error))
	}

	return &apiResp, nil
}
