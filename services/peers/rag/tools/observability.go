// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// toolExecutionDuration tracks tool execution latency by tool and status.
	toolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peers",
			Subsystem: "tools",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution latency by tool name and status.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"tool", "status"},
	)

	// toolExecutionsTotal counts tool executions by tool and status.
	toolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "tools",
			Name:      "executions_total",
			Help:      "Total tool executions by tool name and status.",
		},
		[]string{"tool", "status"},
	)
)

// recordToolMetrics updates the execution counters and latency histogram.
func recordToolMetrics(tool string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	toolExecutionDuration.WithLabelValues(tool, status).Observe(duration.Seconds())
	toolExecutionsTotal.WithLabelValues(tool, status).Inc()
}
