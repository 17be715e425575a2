// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package peers assembles the question-answering service over the company
// knowledge graph and exposes it as an HTTP API: Neo4j store, LLM provider,
// tool registry, schema cache, and the generation/execution/synthesis
// pipeline, wired from one Config.
package peers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/PeersRAG/services/llm"
	"github.com/AleutianAI/PeersRAG/services/peers/config"
	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
	"github.com/AleutianAI/PeersRAG/services/peers/rag"
	"github.com/AleutianAI/PeersRAG/services/peers/rag/tools"
	badgerstore "github.com/AleutianAI/PeersRAG/services/peers/storage/badger"
)

// Service owns every long-lived component of the peers API: the graph
// store, the LLM client, the vector cache, and the assembled pipeline.
//
// # Description
//
// NewService dials the graph and the LLM provider eagerly so a
// misconfigured deployment fails at startup, not on the first question.
// The BadgerDB vector cache degrades gracefully: when it cannot be opened
// the embedding index runs in memory and parameter search falls back to
// substring matching after a restart until the index re-warms.
//
// # Thread Safety
//
// Safe for concurrent use once NewService returns.
type Service struct {
	cfg      *config.Config
	store    *graphstore.Neo4jStore
	vocab    *config.VocabStore
	cache    *badgerstore.DB
	index    *tools.ParameterEmbeddingIndex
	schema   *rag.SchemaCache
	pipeline *rag.GraphRAG
	logger   *slog.Logger
}

// NewService wires the full pipeline from configuration.
//
// Description:
//
//	Connection order matters: the graph store first (hard dependency),
//	then the LLM provider (hard dependency), then the vector cache
//	(soft dependency, logged and skipped on failure). The embedding
//	index starts cold; call WarmEmbeddings once the server is up.
//
// Inputs:
//   - ctx: Bounds the Neo4j connectivity check.
//   - cfg: Validated service configuration.
//   - logger: May be nil; slog.Default is used.
//
// Outputs:
//   - *Service: The assembled service.
//   - error: Non-nil when the graph or the LLM provider is unreachable.
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storeCfg := graphstore.Neo4jConfigFromEnv()
	storeCfg.QueryTimeout = cfg.StoreTimeout
	store, err := graphstore.NewNeo4jStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("peers: connecting knowledge graph: %w", err)
	}

	client, err := llm.NewToolCallerFromEnv()
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("peers: constructing LLM client: %w", err)
	}

	vocab := config.NewVocabStore()
	if cfg.VocabOverridePath != "" {
		if err := vocab.ApplyOverrides(cfg.VocabOverridePath); err != nil {
			logger.Warn("Vocabulary overrides unavailable, using embedded vocabulary",
				slog.String("path", cfg.VocabOverridePath),
				slog.String("error", err.Error()),
			)
		}
	}

	cache := openVectorCache(cfg, logger)
	var embStore tools.EmbeddingStore
	if cache != nil {
		embStore = tools.NewBadgerEmbeddingStore(cache, 0, logger)
	}
	index := tools.NewParameterEmbeddingIndex(logger, embStore, cfg.EmbedTimeout)

	registry := tools.NewRegistry(store, index, logger)
	schema := rag.NewSchemaCache(store, cfg.SchemaTTL, logger)
	decomposer := rag.NewDecomposer(schema, vocab, logger)
	builder := rag.NewFallbackBuilder(vocab, logger)

	orchestrator := rag.NewOrchestrator(client, registry, rag.OrchestratorConfig{
		MaxRounds:   cfg.MaxToolRounds,
		LLMTimeout:  cfg.LLMTimeout,
		ToolTimeout: cfg.StoreTimeout,
	}, logger)

	pipeline := rag.NewGraphRAG(rag.Components{
		Decomposer: decomposer,
		Runner: rag.NewStrategyRunner([]rag.GenerationStrategy{
			rag.NewToolCallingStrategy(orchestrator),
			rag.NewDecompositionStrategy(decomposer, builder),
			rag.NewStaticFallbackStrategy(),
		}, logger),
		Reasoner:    rag.NewIterativeReasoner(client, registry, logger),
		Executor:    rag.NewExecutor(store, cfg.StoreTimeout, logger),
		Retriever:   rag.NewChunkRetriever(store, logger),
		Synthesizer: rag.NewSynthesizer(client, logger),
		Schema:      schema,
		History:     rag.NewHistory(cfg.HistoryLimit),
	}, cfg.PipelineTimeout, logger)

	return &Service{
		cfg:      cfg,
		store:    store,
		vocab:    vocab,
		cache:    cache,
		index:    index,
		schema:   schema,
		pipeline: pipeline,
		logger:   logger,
	}, nil
}

// openVectorCache opens the BadgerDB vector cache: on-disk when CacheDir
// is set, otherwise in-memory so warmed vectors survive vocabulary
// refreshes within the process. Open failure returns nil.
func openVectorCache(cfg *config.Config, logger *slog.Logger) *badgerstore.DB {
	bcfg := badgerstore.InMemoryConfig()
	if cfg.CacheDir != "" {
		bcfg = badgerstore.DefaultConfig(cfg.CacheDir)
	}
	db, err := badgerstore.Open(bcfg)
	if err != nil {
		logger.Warn("Vector cache unavailable, embedding persistence disabled",
			slog.String("path", cfg.CacheDir),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return db
}

// WarmEmbeddings fetches the parameter vocabulary from the graph and
// pre-computes its embedding vectors.
//
// Description:
//
//	Called from a startup goroutine; the server accepts requests while
//	warm-up runs, and parameter search substring-matches until it
//	finishes. A cold schema cache or an unreachable embedding endpoint
//	leaves the index unwarmed, which is the degraded-but-working state.
//
// Outputs:
//   - error: Non-nil when the schema snapshot is unavailable or warm-up
//     is cancelled.
func (s *Service) WarmEmbeddings(ctx context.Context) error {
	snapshot := s.schema.Get(ctx)
	if snapshot == nil {
		return errors.New("peers: schema snapshot unavailable, skipping embedding warm-up")
	}
	if err := s.index.Warm(ctx, snapshot.Parameters); err != nil {
		return fmt.Errorf("peers: warming embedding index: %w", err)
	}
	return nil
}

// WatchVocab starts watching the configured vocabulary override file.
// No-op when no override path is configured.
func (s *Service) WatchVocab(ctx context.Context) error {
	if s.cfg.VocabOverridePath == "" {
		return nil
	}
	return s.vocab.Watch(ctx, s.cfg.VocabOverridePath)
}

// Close releases the graph driver and the vector cache.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// =============================================================================
// Pipeline Operations
// =============================================================================

// RunPipeline answers a question end to end.
func (s *Service) RunPipeline(ctx context.Context, question string) (*rag.PipelineResult, error) {
	return s.pipeline.RunPipeline(ctx, question)
}

// Decompose extracts structured intent from a question without executing
// anything.
func (s *Service) Decompose(ctx context.Context, question string) rag.Decomposition {
	return s.pipeline.Decompose(ctx, question)
}

// GenerateQueryOnly produces Cypher for a question without executing it.
func (s *Service) GenerateQueryOnly(ctx context.Context, question string) (*rag.GeneratedQuery, error) {
	return s.pipeline.GenerateQueryOnly(ctx, question)
}

// ExecuteQuery validates and runs caller-supplied Cypher.
func (s *Service) ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*rag.ExecutionResult, error) {
	return s.pipeline.ExecuteQuery(ctx, cypher, params)
}

// SynthesizeAnswer grounds an answer in an existing execution result.
func (s *Service) SynthesizeAnswer(ctx context.Context, question string, result *rag.ExecutionResult, supplementary string) (string, error) {
	return s.pipeline.SynthesizeAnswer(ctx, question, result, supplementary)
}

// Schema returns the current schema snapshot, fetching on a cold cache.
func (s *Service) Schema(ctx context.Context) *rag.SchemaContext {
	return s.pipeline.Schema(ctx)
}

// History returns completed pipeline runs, oldest first.
func (s *Service) History() []rag.HistoryEntry { return s.pipeline.History() }

// ClearHistory drops all recorded runs.
func (s *Service) ClearHistory() { s.pipeline.ClearHistory() }

// Ping probes graph connectivity for the health endpoint.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }
