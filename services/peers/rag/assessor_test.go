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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssess(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     Assessment
	}{
		{
			name:     "plain lookup is simple",
			question: "What is the revenue of Kajaria?",
			want: Assessment{
				Level:           ComplexitySimple,
				Score:           0,
				CompanyMentions: 0,
				MetricMentions:  1,
			},
		},
		{
			name:     "one indicator stays simple",
			question: "Show the latest margin trend",
			want: Assessment{
				Level:           ComplexitySimple,
				Score:           1,
				CompanyMentions: 0,
				MetricMentions:  1,
			},
		},
		{
			name:     "two indicators flip to complex",
			question: "Compare the quarterly trend for Kajaria",
			want: Assessment{
				Level:           ComplexityComplex,
				Score:           2,
				CompanyMentions: 0,
				MetricMentions:  0,
			},
		},
		{
			// "versus" scores twice because it also contains "vs"; the
			// indicator scan is substring-based on purpose.
			name:     "versus counts as two indicators",
			question: "Kajaria versus Bajaj margins",
			want: Assessment{
				Level:           ComplexityComplex,
				Score:           2,
				CompanyMentions: 0,
				MetricMentions:  0,
			},
		},
		{
			name:     "multiple company mentions are complex",
			question: "Tell me about the company and its parent company",
			want: Assessment{
				Level:           ComplexityComplex,
				Score:           0,
				CompanyMentions: 2,
				MetricMentions:  0,
			},
		},
		{
			name:     "three metric mentions are complex",
			question: "List revenue, profit and ebitda for Kajaria",
			want: Assessment{
				Level:           ComplexityComplex,
				Score:           0,
				CompanyMentions: 0,
				MetricMentions:  3,
			},
		},
		{
			name:     "two metrics and one company stay simple",
			question: "What is the total revenue and profit of the company?",
			want: Assessment{
				Level:           ComplexitySimple,
				Score:           0,
				CompanyMentions: 1,
				MetricMentions:  2,
			},
		},
		{
			name:     "metric matching is whole-word",
			question: "margins and earning potential",
			want: Assessment{
				Level:           ComplexitySimple,
				Score:           0,
				CompanyMentions: 0,
				MetricMentions:  0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assess(tt.question))
		})
	}
}

func TestAssessIsCaseInsensitive(t *testing.T) {
	upper := Assess("COMPARE REVENUE TRENDS ACROSS SECTORS")
	assert.Equal(t, ComplexityComplex, upper.Level)
	assert.GreaterOrEqual(t, upper.Score, 3)
}
