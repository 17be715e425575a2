// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command peersd starts the Aleutian Peers API server.
//
// Aleutian Peers answers natural-language questions about companies from a
// Neo4j knowledge graph:
//   - LLM tool calling generates parameterized Cypher
//   - A deterministic decomposition fallback covers LLM outages
//   - Every query is validated before it touches the graph
//   - Answers are synthesized strictly from retrieved rows
//
// Usage:
//
//	go run ./cmd/peersd
//	go run ./cmd/peersd -addr :9090
//
// With OpenAI (default provider):
//
//	OPENAI_API_KEY=sk-... go run ./cmd/peersd
//
// With Ollama:
//
//	PEERS_LLM_PROVIDER=ollama OLLAMA_BASE_URL=http://localhost:11434 go run ./cmd/peersd
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8086/v1/peers/health
//
//	# Ask a question
//	curl -X POST http://localhost:8086/v1/peers/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "What was the EBITDA margin of Kajaria in Q3FY-2024?"}'
//
//	# Generate Cypher without executing it
//	curl -X POST http://localhost:8086/v1/peers/cypher \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "kajaria revenue latest"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/PeersRAG/services/peers"
	"github.com/AleutianAI/PeersRAG/services/peers/config"
	"github.com/AleutianAI/PeersRAG/services/peers/telemetry"
)

func main() {
	addr := flag.String("addr", "", "Listen address (overrides PEERS_LISTEN_ADDR)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		slog.Error("Failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	svc, err := peers.NewService(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to start service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := svc.WatchVocab(ctx); err != nil {
		slog.Warn("Vocabulary watch unavailable", slog.String("error", err.Error()))
	}

	// Warm the parameter embedding index in the background. The server
	// accepts requests immediately; parameter search substring-matches
	// until warm-up finishes.
	go warmEmbeddings(svc)

	handlers := peers.NewHandlers(svc, svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-peers"))
	router.Use(peers.RequestIDMiddleware())
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	peers.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(cfg.ListenAddr)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Aleutian Peers server")
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			slog.Warn("Failed to close service cleanly", slog.String("error", err.Error()))
		}
		if err := shutdownTracing(closeCtx); err != nil {
			slog.Warn("Failed to flush traces", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	slog.Info("Starting Aleutian Peers server", slog.String("address", cfg.ListenAddr))
	if err := router.Run(cfg.ListenAddr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// warmEmbeddings pre-computes parameter vocabulary vectors so the first
// semantic search does not pay the embedding cost.
//
// Panic recovery keeps a failure in the embedding path from taking the
// server down; the parameter search tool falls back to substring matching
// whenever the index is cold.
func warmEmbeddings(svc *peers.Service) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("Panic in embedding warm-up recovered",
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
		}
	}()

	warmCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := svc.WarmEmbeddings(warmCtx); err != nil {
		slog.Warn("Embedding warm-up incomplete, parameter search will substring-match",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	slog.Info("Embedding warm-up complete", slog.Duration("duration", time.Since(start)))
}

func printBanner(addr string) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                      ALEUTIAN PEERS SERVER                        ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  GraphRAG over the company knowledge graph.                       ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost%s/v1/peers/health                  │  ║
║  │                                                             │  ║
║  │ # Ask a question                                            │  ║
║  │ curl -X POST http://localhost%s/v1/peers/query \         │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"question": "kajaria revenue latest"}'               │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Pipeline: /query, /cypher, /execute                          ║
║  ├── Introspection: /schema, /history                             ║
║  └── Ops: /health, /metrics                                       ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, addr, addr)
}
