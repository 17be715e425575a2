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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/PeersRAG/services/llm"
	"github.com/AleutianAI/PeersRAG/services/peers/rag/tools"
)

// =============================================================================
// Tool-Calling Orchestrator
// =============================================================================

// orchState is a step in the generation loop.
type orchState int

const (
	stateInit orchState = iota
	stateAwaitLLM
	stateToolRequested
	stateExecuteTools
	stateFinal
	stateAborted
)

func (s orchState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateAwaitLLM:
		return "await_llm"
	case stateToolRequested:
		return "tool_requested"
	case stateExecuteTools:
		return "execute_tools"
	case stateFinal:
		return "final"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const (
	defaultMaxRounds   = 5
	defaultLLMTimeout  = 120 * time.Second
	defaultToolTimeout = 30 * time.Second
)

// OrchestratorConfig bounds the generation loop.
type OrchestratorConfig struct {
	// MaxRounds caps LLM round-trips. <=0 means 5.
	MaxRounds int

	// LLMTimeout bounds each model call. <=0 means 120s.
	LLMTimeout time.Duration

	// ToolTimeout bounds each tool execution. <=0 means 30s.
	ToolTimeout time.Duration
}

// Orchestrator drives the tool-calling loop that turns a question into a
// Cypher query.
//
// # Description
//
// The loop is a state machine: stateInit → stateAwaitLLM →
// (stateToolRequested → stateExecuteTools → stateAwaitLLM)* → stateFinal
// or stateAborted. Tool calls are normalized at the boundary; execution
// failures become {"error": ...} tool-result payloads in the transcript,
// never a raised error. A reply without tool calls is the model's final
// answer and must extract to valid Cypher.
//
// Generate returns (nil, nil) when it cannot produce a valid query —
// invalid final text, a failed model call, or round exhaustion. Callers
// fall through to the next generation strategy.
//
// # Thread Safety
//
// Safe for concurrent use; all loop state is method-local.
type Orchestrator struct {
	client      llm.ToolCaller
	registry    *tools.Registry
	maxRounds   int
	llmTimeout  time.Duration
	toolTimeout time.Duration
	logger      *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given model and tools.
func NewOrchestrator(client llm.ToolCaller, registry *tools.Registry, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaultToolTimeout
	}
	return &Orchestrator{
		client:      client,
		registry:    registry,
		maxRounds:   cfg.MaxRounds,
		llmTimeout:  cfg.LLMTimeout,
		toolTimeout: cfg.ToolTimeout,
		logger:      logger,
	}
}

// Generate runs the tool-calling loop for a question.
//
// # Inputs
//
//   - ctx: Governs the whole loop; each model and tool call also gets its
//     own deadline.
//   - question: The natural-language question.
//
// # Outputs
//
//   - *GeneratedQuery: Provenance tool_calling, or nil when the loop
//     aborted.
//   - error: Always nil; aborts are not errors.
func (o *Orchestrator) Generate(ctx context.Context, question string) (*GeneratedQuery, error) {
	ctx, span := otel.Tracer(ragTracerName).Start(ctx, "rag.orchestrate")
	defer span.End()

	messages := []llm.ChatMessage{
		llm.SystemMessage(orchestratorSystemPrompt),
		llm.UserMessage("Question: " + question),
	}
	defs := o.registry.Definitions()

	var (
		state   = stateInit
		reply   *llm.ChatWithToolsResult
		calls   []llm.ToolCallResponse
		lastGen *tools.GeneratedCypher
		out     *GeneratedQuery
		rounds  int
	)

	for state != stateFinal && state != stateAborted {
		switch state {
		case stateInit:
			state = stateAwaitLLM

		case stateAwaitLLM:
			if rounds >= o.maxRounds {
				o.logger.Warn("orchestrator exhausted rounds without a final query",
					slog.Int("max_rounds", o.maxRounds),
				)
				state = stateAborted
				continue
			}
			rounds++

			var err error
			reply, err = o.callModel(ctx, messages, defs)
			if err != nil {
				span.RecordError(err)
				o.logger.Warn("orchestrator model call failed",
					slog.Int("round", rounds),
					slog.Any("error", err),
				)
				state = stateAborted
				continue
			}
			if len(reply.ToolCalls) > 0 {
				state = stateToolRequested
			} else if out = o.finalize(reply.Content, lastGen); out != nil {
				state = stateFinal
			} else {
				state = stateAborted
			}

		case stateToolRequested:
			calls = llm.NormalizeToolCalls(reply.ToolCalls)
			messages = append(messages, llm.AssistantMessage(reply.Content, calls))
			state = stateExecuteTools

		case stateExecuteTools:
			for _, call := range calls {
				payload := o.executeTool(ctx, call)
				if gen, ok := payload.(tools.GeneratedCypher); ok {
					g := gen
					lastGen = &g
				}
				messages = append(messages, llm.ToolResultMessage(call, encodeToolPayload(payload)))
			}
			state = stateAwaitLLM
		}
	}

	toolRounds.Observe(float64(rounds))
	span.SetAttributes(
		attribute.Int("rag.orchestrator.rounds", rounds),
		attribute.String("rag.orchestrator.state", state.String()),
	)

	if state == stateAborted {
		return nil, nil
	}
	o.logger.Info("orchestrator produced query",
		slog.Int("rounds", rounds),
		slog.Int("bound_params", len(out.Params)),
	)
	return out, nil
}

// callModel performs one tool-enabled chat round under the per-call
// deadline.
func (o *Orchestrator) callModel(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDef) (*llm.ChatWithToolsResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()

	temp := float32(0)
	return o.client.ChatWithTools(callCtx, messages, llm.GenerationParams{Temperature: &temp}, defs)
}

// executeTool runs one call through the registry. Failures come back as an
// error payload for the model to read; a tool that cannot run is signal,
// not a crash.
func (o *Orchestrator) executeTool(ctx context.Context, call llm.ToolCallResponse) any {
	toolCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	payload, err := o.registry.Execute(toolCtx, call.Name, call.Arguments)
	if err != nil {
		dispatchErr := &ToolExecutionError{Tool: call.Name, Err: err}
		o.logger.Warn("tool call failed, reporting error to model",
			slog.String("tool", call.Name),
			slog.Any("error", err),
		)
		return map[string]any{"error": dispatchErr.Error()}
	}
	return payload
}

// finalize extracts and validates the model's final text, then marries the
// query with parameters from the last generator payload.
//
// The text alone cannot carry bindings, so: text matching the last
// generated query (whitespace-insensitive) → use that query verbatim with
// its parameters; text with no $placeholders → run as-is; text with
// placeholders and a prior generator payload → attach those parameters;
// placeholders with nothing to bind → abort.
func (o *Orchestrator) finalize(content string, lastGen *tools.GeneratedCypher) *GeneratedQuery {
	cypher := ExtractCypher(content)
	if !ValidCypher(cypher) {
		o.logger.Warn("orchestrator final response is not a valid query",
			slog.String("response", truncateForError(content)),
		)
		return nil
	}

	switch {
	case lastGen != nil && normalizeSpace(cypher) == normalizeSpace(lastGen.CypherQuery):
		return &GeneratedQuery{
			Text:       lastGen.CypherQuery,
			Params:     lastGen.Parameters,
			Provenance: ProvenanceToolCalling,
		}
	case !strings.Contains(cypher, "$"):
		return &GeneratedQuery{Text: cypher, Provenance: ProvenanceToolCalling}
	case lastGen != nil:
		return &GeneratedQuery{
			Text:       cypher,
			Params:     lastGen.Parameters,
			Provenance: ProvenanceToolCalling,
		}
	default:
		o.logger.Warn("orchestrator final query has placeholders but no generator payload to bind",
			slog.String("query", truncateForError(cypher)),
		)
		return nil
	}
}

// encodeToolPayload renders a tool result for the transcript.
func encodeToolPayload(payload any) string {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, "encode tool result: "+err.Error())
	}
	return string(body)
}

// normalizeSpace collapses runs of whitespace so query texts compare on
// content rather than formatting.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
