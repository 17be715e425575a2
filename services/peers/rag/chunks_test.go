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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

func TestChunkRetrieverConcatenatesChunkText(t *testing.T) {
	fake := graphstore.NewFake()
	fake.SetDefault([]map[string]any{
		{"chunk.text": "Kajaria reported record volumes."},
		{"chunk.text": "Margins held steady."},
		{"chunk.text": nil},
	})
	r := NewChunkRetriever(fake, nil)

	got := r.Retrieve(context.Background(), &ExecutionResult{
		Companies: []string{"Kajaria Ceramics"},
	})

	assert.Equal(t, "\nKajaria reported record volumes.\n\nMargins held steady.\n", got)

	// The company name binds through $name rather than the query text.
	last := fake.LastCall()
	assert.Contains(t, last.Cypher, "$name")
	assert.NotContains(t, last.Cypher, "Kajaria")
	assert.Equal(t, map[string]any{"name": "Kajaria Ceramics"}, last.Params)
}

func TestChunkRetrieverCapsCompanies(t *testing.T) {
	fake := graphstore.NewFake()
	r := NewChunkRetriever(fake, nil)

	companies := []string{"A1", "B2", "C3", "D4", "E5", "F6", "G7"}
	got := r.Retrieve(context.Background(), &ExecutionResult{Companies: companies})

	assert.Empty(t, got)
	require.Len(t, fake.Calls(), 5)
	assert.Equal(t, "E5", fake.Calls()[4].Params["name"])
}

func TestChunkRetrieverSkipsFailedCompanies(t *testing.T) {
	fake := graphstore.NewFake()
	fake.SetDefaultErr(errors.New("node store corrupt"))
	r := NewChunkRetriever(fake, nil)

	got := r.Retrieve(context.Background(), &ExecutionResult{
		Companies: []string{"Kajaria Ceramics", "Bajaj"},
	})

	// Failures degrade to missing context, never an error.
	assert.Empty(t, got)
	assert.Len(t, fake.Calls(), 2)
}

func TestChunkRetrieverEmptyInputs(t *testing.T) {
	fake := graphstore.NewFake()
	r := NewChunkRetriever(fake, nil)

	assert.Empty(t, r.Retrieve(context.Background(), nil))
	assert.Empty(t, r.Retrieve(context.Background(), &ExecutionResult{}))
	assert.Empty(t, fake.Calls())
}
