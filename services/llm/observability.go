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
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// chatCallDuration tracks LLM chat call latency by provider and status.
	chatCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peers",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of LLM chat calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// chatCallsTotal counts LLM chat calls by provider and status.
	chatCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM chat calls.",
		},
		[]string{"provider", "status"},
	)

	// chatErrorsTotal counts LLM chat errors by provider and error type.
	chatErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peers",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total number of LLM chat errors.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyChatError maps an error message to a coarse error type label.
//
// Description:
//
//	Keeps metric cardinality bounded by folding provider-specific error
//	strings into a small fixed set: timeout, auth, rate_limit, server,
//	nil_client, unknown.
func classifyChatError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return "server"
	case strings.Contains(msg, "client is nil"):
		return "nil_client"
	default:
		return "unknown"
	}
}

// recordChatMetrics records duration, call count, and error class for one
// chat round trip.
func recordChatMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		chatErrorsTotal.WithLabelValues(provider, classifyChatError(err)).Inc()
	}
	chatCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	chatCallsTotal.WithLabelValues(provider, status).Inc()
}
