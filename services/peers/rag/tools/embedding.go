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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Parameter Embedding Index
// =============================================================================

// paramEmbedWarmConcurrency is the number of parallel Ollama calls during
// warm-up and candidate back-fill. 10 concurrent requests saturates Ollama
// without overwhelming it.
const paramEmbedWarmConcurrency = 10

// paramEmbedQueryTimeout is the per-query embedding call timeout. Score() is
// on the tool-execution hot path; 3 seconds is ample for a local Ollama call.
const paramEmbedQueryTimeout = 3 * time.Second

// ollamaEmbedReq is the Ollama /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the Ollama /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ParameterEmbeddingIndex pre-computes and caches embedding vectors for the
// database's parameter vocabulary, then uses cosine similarity at search time
// to score how well a user's search term matches each parameter name.
//
// # Description
//
// Embedding-based matching is semantically robust: "revenue" and
// "Total revenue, Primary" produce nearby vectors regardless of exact word
// form, which plain substring matching cannot do.
//
// Each parameter is embedded as the document "parameter: <name>"; search
// terms are embedded bare. The index calls Ollama's /api/embed endpoint
// (nomic-embed-text-v2-moe by default) in parallel during Warm(). Candidates
// seen at search time that were not part of the warm vocabulary are embedded
// on demand and retained, so repeated searches stay cheap.
//
// If Ollama is unavailable, the index degrades gracefully: Score() returns
// (nil, nil) and the parameter search tool falls back to substring matching.
//
// Vectors are persisted via EmbeddingStore (BadgerDB) between service
// restarts. The corpus hash (SHA256 of sorted parameter terms + model name)
// serves as the cache key, providing automatic invalidation when the
// vocabulary or model changes. If the store is nil, the index operates in
// in-memory-only mode (no persistence).
//
// # Thread Safety
//
// Safe for concurrent use after Warm() completes.
type ParameterEmbeddingIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32 // parameter name → unit-normalized embedding vector
	warmed  bool

	url          string // Ollama /api/embed endpoint URL
	model        string // embedding model name
	client       *http.Client
	logger       *slog.Logger
	store        EmbeddingStore // BadgerDB persistence; nil = in-memory-only
	queryTimeout time.Duration
}

// NewParameterEmbeddingIndex creates an unwarmed embedding index.
//
// # Description
//
// Reads EMBEDDING_SERVICE_URL and EMBEDDING_MODEL from the environment.
// Call Warm() with the parameter vocabulary before the index can score
// search terms.
//
// If store is non-nil, Warm() checks the BadgerDB cache before calling
// Ollama and persists newly computed vectors after warm-up. If store is
// nil, the index operates in in-memory-only mode — correct for tests and
// for deployments without a cache directory configured.
//
// # Inputs
//
//   - logger: Logger for warnings and debug output. May be nil.
//   - store: Optional BadgerDB persistence store. Nil disables persistence.
//   - queryTimeout: Per-search embedding call timeout. Pass 0 for the
//     default (3 seconds).
//
// # Outputs
//
//   - *ParameterEmbeddingIndex: Unwarmed index. Never nil.
//
// # Thread Safety
//
// The returned index is safe for concurrent use after Warm() completes.
func NewParameterEmbeddingIndex(logger *slog.Logger, store EmbeddingStore, queryTimeout time.Duration) *ParameterEmbeddingIndex {
	if logger == nil {
		logger = slog.Default()
	}
	if queryTimeout <= 0 {
		queryTimeout = paramEmbedQueryTimeout
	}

	url := os.Getenv("EMBEDDING_SERVICE_URL")
	if url == "" {
		url = "http://host.containers.internal:11434/api/embed"
	}

	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text-v2-moe"
	}

	return &ParameterEmbeddingIndex{
		vectors: make(map[string][]float32),
		url:     url,
		model:   model,
		client: &http.Client{
			Timeout: 30 * time.Second, // warm-up can be slow; query timeout set per-call
		},
		logger:       logger,
		store:        store,
		queryTimeout: queryTimeout,
	}
}

// Warm pre-computes and caches an embedding vector for every vocabulary term.
//
// # Description
//
// Checks the persistence store first: when the corpus hash (sorted terms +
// model name) matches a stored entry, the vectors load from BadgerDB and no
// Ollama call is made. Otherwise each term is embedded in parallel (up to
// paramEmbedWarmConcurrency concurrent requests), unit-normalized, and —
// when a store is configured — persisted for the next restart.
//
// If any single term fails to embed, a warning is logged and that term is
// skipped. If all terms fail, warmed remains false and Score() degrades
// gracefully.
//
// # Inputs
//
//   - ctx: Context for the warm-up HTTP calls. Cancellation aborts all
//     pending embeds.
//   - terms: Parameter vocabulary to embed. Empty slice is a no-op.
//
// # Outputs
//
//   - error: Non-nil if the warm-up is aborted by context cancellation.
//     Individual term failures are logged as warnings, not returned.
//
// # Thread Safety
//
// Not safe to call concurrently. Call once at service startup.
func (x *ParameterEmbeddingIndex) Warm(ctx context.Context, terms []string) error {
	if len(terms) == 0 {
		return nil
	}

	corpusHash := computeCorpusHash(terms, x.model)
	if x.store != nil {
		cached, err := x.store.LoadEmbeddings(ctx, corpusHash)
		if err != nil {
			x.logger.Warn("embedding index: store load failed, continuing with Ollama warm-up",
				slog.String("error", err.Error()),
			)
		} else if len(cached) > 0 {
			x.mu.Lock()
			for name, vec := range cached {
				x.vectors[name] = vec // already unit-normalized on save
			}
			x.warmed = true
			x.mu.Unlock()
			x.logger.Info("embedding index: loaded from BadgerDB (skipping Ollama warm-up)",
				slog.Int("term_count", len(cached)),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
			return nil
		}
	}

	x.logger.Info("embedding index: starting Ollama warm-up",
		slog.Int("term_count", len(terms)),
		slog.String("url", x.url),
		slog.String("model", x.model),
	)

	embedded := x.embedBatch(ctx, terms)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("embedding index warm-up: %w", err)
	}

	x.mu.Lock()
	for name, vec := range embedded {
		x.vectors[name] = vec
	}
	x.warmed = len(x.vectors) > 0

	// Snapshot under lock, then release before the BadgerDB write. Avoids
	// holding the lock during a potentially slow I/O call.
	embeddedCount := len(x.vectors)
	var toSave map[string][]float32
	if x.warmed && x.store != nil {
		toSave = make(map[string][]float32, len(x.vectors))
		for k, v := range x.vectors {
			toSave[k] = v
		}
	}
	x.mu.Unlock()

	x.logger.Info("embedding index: warm-up complete",
		slog.Int("embedded_terms", embeddedCount),
		slog.Int("requested_terms", len(terms)),
	)

	// Persistence failure is non-fatal: vectors are already in RAM.
	if toSave != nil {
		if err := x.store.SaveEmbeddings(ctx, corpusHash, toSave); err != nil {
			x.logger.Warn("embedding index: failed to persist vectors to BadgerDB",
				slog.String("error", err.Error()),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
		} else {
			x.logger.Debug("embedding index: persisted vectors to BadgerDB",
				slog.Int("term_count", len(toSave)),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
		}
	}

	return nil
}

// Score embeds the search term and returns cosine similarity vs each
// candidate parameter name.
//
// # Description
//
// Candidates absent from the warm vocabulary are embedded on demand and
// retained in memory, so the second search over the same candidate set does
// not touch Ollama for them. Candidates whose embedding fails are omitted
// from the result (implicit score 0).
//
// Returns (nil, nil) in two cases where the caller should fall back to
// substring matching:
//  1. The index was never warmed (Ollama was unavailable at startup).
//  2. The Ollama call for the search-term embedding fails or times out.
//
// # Inputs
//
//   - ctx: Context for cancellation. A per-call timeout is applied to the
//     search-term embed internally.
//   - term: The raw search term (e.g. "revenue").
//   - candidates: Parameter names pulled from the graph for this search.
//
// # Outputs
//
//   - map[string]float64: Parameter name → cosine similarity in [0.0, 1.0].
//     Nil signals graceful degradation — caller should substring-match.
//   - error: Always nil. Errors are absorbed and signaled via nil map.
//
// # Thread Safety
//
// Safe for concurrent use after Warm() completes.
func (x *ParameterEmbeddingIndex) Score(ctx context.Context, term string, candidates []string) (map[string]float64, error) {
	x.mu.RLock()
	warmed := x.warmed
	x.mu.RUnlock()

	if !warmed {
		return nil, nil
	}

	// Tight timeout for the search-term embedding call.
	embedCtx, cancel := context.WithTimeout(ctx, x.queryTimeout)
	defer cancel()

	queryVec, err := x.embed(embedCtx, term)
	if err != nil {
		x.logger.Warn("embedding index: search-term embedding failed, falling back to substring match",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	queryNorm := l2Norm(queryVec)
	if queryNorm == 0 {
		return nil, nil
	}
	queryUnit := make([]float32, len(queryVec))
	for i, v := range queryVec {
		queryUnit[i] = v / float32(queryNorm)
	}

	x.fillMissing(ctx, candidates)

	x.mu.RLock()
	defer x.mu.RUnlock()

	scores := make(map[string]float64, len(candidates))
	for _, name := range candidates {
		vec, ok := x.vectors[name]
		if !ok {
			continue
		}
		sim := dotProduct(queryUnit, vec) // dot of two unit vectors = cosine
		if sim > 0 {
			scores[name] = float64(sim)
		}
	}

	return scores, nil
}

// IsWarmed reports whether the index has been successfully warmed.
//
// # Thread Safety
//
// Safe for concurrent use.
func (x *ParameterEmbeddingIndex) IsWarmed() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.warmed
}

// =============================================================================
// Helpers
// =============================================================================

// fillMissing embeds any candidates not yet present in the vector map and
// retains them. Failures are logged and skipped; the candidate simply gets
// no semantic score for this search.
func (x *ParameterEmbeddingIndex) fillMissing(ctx context.Context, candidates []string) {
	x.mu.RLock()
	var missing []string
	for _, name := range candidates {
		if _, ok := x.vectors[name]; !ok {
			missing = append(missing, name)
		}
	}
	x.mu.RUnlock()

	if len(missing) == 0 {
		return
	}

	embedded := x.embedBatch(ctx, missing)
	if len(embedded) == 0 {
		return
	}

	x.mu.Lock()
	for name, vec := range embedded {
		x.vectors[name] = vec
	}
	x.mu.Unlock()

	x.logger.Debug("embedding index: back-filled candidate vectors",
		slog.Int("requested", len(missing)),
		slog.Int("embedded", len(embedded)),
	)
}

// embedBatch embeds each term's "parameter: <name>" document in parallel
// (bounded concurrency) and returns the unit-normalized vectors that
// succeeded, keyed by the raw term.
func (x *ParameterEmbeddingIndex) embedBatch(ctx context.Context, terms []string) map[string][]float32 {
	type result struct {
		name   string
		vector []float32
	}

	resultCh := make(chan result, len(terms))
	g, gctx := errgroup.WithContext(ctx)

	// Semaphore to limit concurrency.
	sem := make(chan struct{}, paramEmbedWarmConcurrency)

	for _, term := range terms {
		t := term // capture
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := x.embed(gctx, buildParameterDoc(t))
			if err != nil {
				x.logger.Warn("embedding index: failed to embed term",
					slog.String("term", t),
					slog.String("error", err.Error()),
				)
				// Individual failure is not fatal.
				return nil
			}

			resultCh <- result{name: t, vector: vec}
			return nil
		})
	}

	_ = g.Wait() // goroutines never return errors; Wait only flushes them
	close(resultCh)

	out := make(map[string][]float32, len(terms))
	for r := range resultCh {
		norm := l2Norm(r.vector)
		if norm > 0 {
			// Store unit-normalized so cosine = dot product at query time.
			normalized := make([]float32, len(r.vector))
			for i, v := range r.vector {
				normalized[i] = v / float32(norm)
			}
			out[r.name] = normalized
		}
	}
	return out
}

// buildParameterDoc constructs the text document used to embed a parameter
// name. The "parameter:" framing keeps the vector space consistent between
// warm-up and back-fill.
func buildParameterDoc(name string) string {
	return "parameter: " + name
}

// embed calls the Ollama /api/embed endpoint and returns the embedding vector.
func (x *ParameterEmbeddingIndex) embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{
		Model: x.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var ollamaResp ollamaEmbedResp
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(ollamaResp.Embeddings) == 0 || len(ollamaResp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}

	return ollamaResp.Embeddings[0], nil
}

// l2Norm computes the L2 (Euclidean) norm of a float32 vector.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// dotProduct computes the dot product of two float32 vectors.
// Both vectors must have the same length; mismatched lengths use the shorter.
func dotProduct(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
