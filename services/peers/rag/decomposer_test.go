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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

func TestDecomposeMultiParameterQuestion(t *testing.T) {
	d := NewDecomposer(nil, nil, nil)

	dec := d.Decompose(context.Background(),
		"What was the EBITDA margin and Net profit of Acme in Q3FY-2024?")

	assert.Equal(t, "", dec.Company)
	assert.Equal(t, []string{"EBITDA margin", "Net profit"}, dec.Parameters)
	assert.Equal(t, "3QFY-2024", dec.Period)
	assert.Equal(t, OperationRetrieve, dec.Operation)
	assert.True(t, dec.IsMultiParameter)
}

func TestResolveCompanyFromSnapshot(t *testing.T) {
	fake := graphstore.NewFake()
	fake.Stub("(c:Company)", []map[string]any{
		{"c.company_name": "Acme Industries Ltd"},
	})
	cache := NewSchemaCache(fake, time.Minute, nil)
	d := NewDecomposer(cache, nil, nil)

	dec := d.Decompose(context.Background(), "what is acme's profit in q1?")

	assert.Equal(t, "Acme Industries Ltd", dec.Company)
	assert.Equal(t, "1QFY-2024", dec.Period)
}

func TestResolveCompanyAliasFallbackWithoutCache(t *testing.T) {
	d := NewDecomposer(nil, nil, nil)

	dec := d.Decompose(context.Background(), "kajaria revenue latest")

	assert.Equal(t, "Kajaria Ceramics", dec.Company)
	assert.Equal(t, []string{"Revenue"}, dec.Parameters)
	assert.Equal(t, "latest", dec.Period)
	assert.False(t, dec.IsMultiParameter)
}

func TestResolveCompanyIgnoresShortTokens(t *testing.T) {
	fake := graphstore.NewFake()
	fake.Stub("(c:Company)", []map[string]any{
		{"c.company_name": "SGX Ltd"},
	})
	cache := NewSchemaCache(fake, time.Minute, nil)
	d := NewDecomposer(cache, nil, nil)

	// Every token of "SGX Ltd" is three characters or fewer, so neither
	// the snapshot nor the alias table resolves it.
	dec := d.Decompose(context.Background(), "sgx revenue this year")

	assert.Equal(t, "", dec.Company)
}

func TestResolveParameters(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"phrase accounts receivable", "accounts receivable trend", []string{"Accounts receivable"}},
		{"bare receivable maps to graph variant", "receivables for bajaj", []string{"Receivables, Net"}},
		{"total revenue beats bare revenue", "total revenue in fy-2024", []string{"Total revenue, Primary"}},
		{"production suppresses revenue", "production volume and revenue", []string{"Production Units/Volume"}},
		{"net margin phrase", "net margin of kajaria", []string{"Net margin"}},
		{"ebitda and margin as separate words", "ebitda and margin outlook", []string{"EBITDA margin"}},
		{"rule priority fixes output order", "compare net profit with ebitda margin", []string{"EBITDA margin", "Net profit"}},
		{"bare profit is not a label", "profit for bajaj", nil},
		{"empty question", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveParameters(tt.question))
		})
	}
}

func TestResolvePeriod(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"quarter with fy year", "q3fy-2024 numbers", "3QFY-2024"},
		{"quarter token before year", "revenue in 2q fy-2025", "2QFY-2025"},
		{"quarter without year defaults", "q1 results", "1QFY-2024"},
		{"bare calendar year is not a period year", "q2 of 2025", "2QFY-2024"},
		{"fiscal year", "fy-2023 results", "FY-2023"},
		{"latest", "latest numbers please", "latest"},
		{"recent maps to latest", "most recent quarter", "latest"},
		{"no period", "how is the business", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvePeriod(tt.question))
		})
	}
}

func TestResolveOperation(t *testing.T) {
	tests := []struct {
		question string
		want     Operation
	}{
		{"compare kajaria and bajaj", OperationCompare},
		{"kajaria versus bajaj", OperationCompare},
		{"sum of quarterly values", OperationAggregate},
		{"average margin", OperationAggregate},
		{"show me the numbers", OperationRetrieve},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveOperation(tt.question))
		})
	}
}
