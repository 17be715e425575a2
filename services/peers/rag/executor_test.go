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

const executorTestQuery = "MATCH (c:Company) RETURN c.company_name LIMIT 5"

func TestExecutorRejectsInvalidQuery(t *testing.T) {
	fake := graphstore.NewFake()
	e := NewExecutor(fake, 0, nil)

	result, err := e.Execute(context.Background(), "hello world", nil)

	require.Error(t, err)
	assert.Nil(t, result)

	var invalid *InvalidQueryError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "failed validation", invalid.Reason)

	// The store must never see a rejected query.
	assert.Empty(t, fake.Calls())
}

func TestExecutorWrapsStoreFailure(t *testing.T) {
	sentinel := errors.New("connection refused")
	fake := graphstore.NewFake()
	fake.SetDefaultErr(sentinel)
	e := NewExecutor(fake, 0, nil)

	result, err := e.Execute(context.Background(), executorTestQuery, nil)

	require.Error(t, err)
	assert.Nil(t, result)

	var conn *ConnectivityError
	require.ErrorAs(t, err, &conn)
	assert.Equal(t, "neo4j", conn.Service)
	assert.ErrorIs(t, err, sentinel)
}

func TestExecutorHonorsContextCancellation(t *testing.T) {
	fake := graphstore.NewFake()
	e := NewExecutor(fake, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, executorTestQuery, nil)

	var conn *ConnectivityError
	require.ErrorAs(t, err, &conn)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorDerivesDistinctSets(t *testing.T) {
	fake := graphstore.NewFake()
	fake.SetDefault([]map[string]any{
		{"p.parameter_name": "Revenue", "pr.period": "1QFY-2024", "c.company_name": "Kajaria Ceramics"},
		{"p.parameter_name": "Revenue", "pr.period": "2QFY-2024", "c.company_name": "Kajaria Ceramics"},
		{"parameter_name": "EBITDA margin", "period": "2QFY-2024", "company_name": "Bajaj"},
		{"p.parameter_name": nil, "parameter_name": "Net profit"},
	})
	e := NewExecutor(fake, 0, nil)

	result, err := e.Execute(context.Background(), executorTestQuery, nil)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Rows, 4)

	// Per row the first non-empty key wins (raw RETURN term, then its
	// alias), duplicates collapse, and first-observed order is preserved.
	assert.Equal(t, []string{"Revenue", "EBITDA margin", "Net profit"}, result.Parameters)
	assert.Equal(t, []string{"1QFY-2024", "2QFY-2024"}, result.Periods)
	assert.Equal(t, []string{"Kajaria Ceramics", "Bajaj"}, result.Companies)
}

func TestExecutorPassesParamsThrough(t *testing.T) {
	fake := graphstore.NewFake()
	e := NewExecutor(fake, 0, nil)

	text := "MATCH (c:Company) WHERE c.company_name CONTAINS $company RETURN c.company_name LIMIT 5"
	params := map[string]any{"company": "Kajaria"}

	_, err := e.Execute(context.Background(), text, params)

	require.NoError(t, err)
	last := fake.LastCall()
	assert.Equal(t, text, last.Cypher)
	assert.Equal(t, params, last.Params)
}

func TestExecutorEmptyResult(t *testing.T) {
	e := NewExecutor(graphstore.NewFake(), 0, nil)

	result, err := e.Execute(context.Background(), executorTestQuery, nil)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.Parameters)
	assert.Empty(t, result.Periods)
	assert.Empty(t, result.Companies)
}
