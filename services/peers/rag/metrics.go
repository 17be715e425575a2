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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peers",
			Subsystem: "rag",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end duration of one question round trip.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	queriesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "rag",
			Name:      "queries_generated_total",
			Help:      "Queries accepted by the strategy runner, by provenance.",
		},
		[]string{"provenance"},
	)

	complexityDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "rag",
			Name:      "complexity_degraded_total",
			Help:      "Complex-classified questions answered by the simple path because the reasoning engine is unavailable.",
		},
	)

	schemaRefresh = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "rag",
			Name:      "schema_refresh_total",
			Help:      "Schema context cache rebuilds, by outcome.",
		},
		[]string{"status"},
	)

	queriesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "rag",
			Name:      "queries_executed_total",
			Help:      "Cypher executions, by outcome.",
		},
		[]string{"status"},
	)

	toolRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "peers",
			Subsystem: "rag",
			Name:      "tool_rounds",
			Help:      "LLM round trips consumed per tool-calling generation.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	synthesisContractEnforced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "rag",
			Name:      "synthesis_contract_enforced_total",
			Help:      "Answers replaced by the deterministic rendering because the model claimed no data while rows existed.",
		},
	)
)
