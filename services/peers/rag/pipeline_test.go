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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

// pipelineFixture wires a full GraphRAG over a scripted store and chat
// model, using the decomposition and static strategies. Tool calling has
// its own tests; pipeline flow does not depend on which strategy fired.
func pipelineFixture(store *graphstore.Fake, chat *cannedChatClient) *GraphRAG {
	cache := NewSchemaCache(store, time.Minute, nil)
	decomposer := NewDecomposer(cache, nil, nil)
	chain := []GenerationStrategy{
		NewDecompositionStrategy(decomposer, NewFallbackBuilder(nil, nil)),
		NewStaticFallbackStrategy(),
	}
	return NewGraphRAG(Components{
		Decomposer:  decomposer,
		Runner:      NewStrategyRunner(chain, nil),
		Executor:    NewExecutor(store, 0, nil),
		Retriever:   NewChunkRetriever(store, nil),
		Synthesizer: NewSynthesizer(chat, nil),
		Schema:      cache,
		History:     NewHistory(0),
	}, 0, nil)
}

func pipelineStore() *graphstore.Fake {
	fake := graphstore.NewFake()
	fake.Stub("HAS_PARAMETER", []map[string]any{
		{"c.company_name": "Kajaria Ceramics", "p.parameter_name": "Revenue", "pr.period": "2QFY-2024",
			"pr.value": 999.25, "pr.currency": "INR"},
		{"c.company_name": "Kajaria Ceramics", "p.parameter_name": "Revenue", "pr.period": "1QFY-2024",
			"pr.value": 1234567.5, "pr.currency": "INR", "pr.yoy_growth": 12.5},
	})
	fake.Stub("HAS_Chunk_INFO", []map[string]any{
		{"chunk.text": "Strong quarter on tile volumes."},
	})
	fake.Stub("(c:Company) RETURN DISTINCT c.company_name", []map[string]any{
		{"c.company_name": "Kajaria Ceramics"},
	})
	return fake
}

func TestRunPipelineEndToEnd(t *testing.T) {
	store := pipelineStore()
	chat := &cannedChatClient{answer: "Revenue grew through FY-2024."}
	g := pipelineFixture(store, chat)

	res, err := g.RunPipeline(context.Background(), "kajaria revenue latest")

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Revenue grew through FY-2024.", res.Answer)
	assert.Equal(t, ProvenanceDecomposition, res.Query.Provenance)
	assert.Equal(t, "Kajaria", res.Query.Params["company"])
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, ComplexitySimple, res.Complexity.Level)
	assert.False(t, res.DegradedFromComplex)
	assert.Positive(t, res.Duration)

	// Chunk text reached the synthesis prompt as supplementary context.
	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "Supplementary Context:")
	assert.Contains(t, chat.prompts[0], "Strong quarter on tile volumes.")

	// The run was recorded.
	entries := g.History()
	require.Len(t, entries, 1)
	assert.Equal(t, "kajaria revenue latest", entries[0].Question)
	assert.Equal(t, "Revenue grew through FY-2024.", entries[0].Answer)
	assert.Len(t, entries[0].RawResults, 2)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestRunPipelineComplexDegradesVisibly(t *testing.T) {
	store := pipelineStore()
	chat := &cannedChatClient{answer: "Comparison follows."}
	g := pipelineFixture(store, chat)

	res, err := g.RunPipeline(context.Background(), "compare revenue trends for kajaria")

	require.NoError(t, err)
	assert.Equal(t, ComplexityComplex, res.Complexity.Level)
	assert.True(t, res.DegradedFromComplex)
	assert.Equal(t, ProvenanceDecomposition, res.Query.Provenance)
}

func TestRunPipelineExecutorFailureSkipsHistory(t *testing.T) {
	store := graphstore.NewFake()
	store.StubErr("HAS_PARAMETER", errors.New("connection reset"))
	store.Stub("(c:Company) RETURN DISTINCT c.company_name", []map[string]any{
		{"c.company_name": "Kajaria Ceramics"},
	})
	chat := &cannedChatClient{answer: "unused"}
	g := pipelineFixture(store, chat)

	res, err := g.RunPipeline(context.Background(), "kajaria revenue latest")

	require.Error(t, err)
	assert.Nil(t, res)

	var conn *ConnectivityError
	assert.ErrorAs(t, err, &conn)

	// Failed runs are not recorded and synthesis never ran.
	assert.Empty(t, g.History())
	assert.Empty(t, chat.prompts)
}

func TestRunPipelineSynthesisFailurePropagates(t *testing.T) {
	store := pipelineStore()
	chat := &cannedChatClient{err: errors.New("model timeout")}
	g := pipelineFixture(store, chat)

	res, err := g.RunPipeline(context.Background(), "kajaria revenue latest")

	require.Error(t, err)
	assert.Nil(t, res)

	var synth *SynthesisError
	assert.ErrorAs(t, err, &synth)
	assert.Empty(t, g.History())
}

func TestGenerateQueryOnlyDoesNotExecute(t *testing.T) {
	store := pipelineStore()
	g := pipelineFixture(store, &cannedChatClient{answer: "unused"})

	q, err := g.GenerateQueryOnly(context.Background(), "kajaria revenue latest")

	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, ProvenanceDecomposition, q.Provenance)
	assert.Equal(t, "Kajaria", q.Params["company"])

	// Schema reads are expected; the generated query itself must not run.
	for _, call := range store.Calls() {
		assert.NotContains(t, call.Cypher, "HAS_PARAMETER")
	}
	assert.Empty(t, g.History())
}

func TestGenerateQueryOnlyHonorsCancellation(t *testing.T) {
	g := pipelineFixture(graphstore.NewFake(), &cannedChatClient{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q, err := g.GenerateQueryOnly(ctx, "kajaria revenue latest")

	assert.Nil(t, q)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteQueryDelegatesWithParams(t *testing.T) {
	store := pipelineStore()
	g := pipelineFixture(store, &cannedChatClient{})

	_, err := g.ExecuteQuery(context.Background(), "drop everything", nil)
	var invalid *InvalidQueryError
	assert.ErrorAs(t, err, &invalid)

	text := "MATCH (c:Company) WHERE c.company_name CONTAINS $company RETURN c.company_name LIMIT 5"
	params := map[string]any{"company": "Kajaria"}
	_, err = g.ExecuteQuery(context.Background(), text, params)
	require.NoError(t, err)
	assert.Equal(t, params, store.LastCall().Params)
}

func TestPipelineSchemaAndHistoryAccessors(t *testing.T) {
	store := pipelineStore()
	chat := &cannedChatClient{answer: "fine"}
	g := pipelineFixture(store, chat)

	snap := g.Schema(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, []string{"Kajaria Ceramics"}, snap.Companies)

	_, err := g.RunPipeline(context.Background(), "kajaria revenue latest")
	require.NoError(t, err)
	require.Len(t, g.History(), 1)

	g.ClearHistory()
	assert.Empty(t, g.History())
}
