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

// =============================================================================
// EmbeddingStore — Parameter Vector Persistence
// =============================================================================
//
// Parameter-name embedding vectors are expensive to compute (~50ms per term
// via Ollama, ×50 vocabulary terms per warm-up) but change only when the
// parameter vocabulary or the embedding model changes. This store persists
// them in BadgerDB between service restarts.
//
// Design choices:
//
//	1. BadgerDB (not a vector database): the parameter vocabulary is service
//	   infrastructure, not user data. A lookup of ~50 pre-computed vectors
//	   does not benefit from ANN indexing. BadgerDB is embedded — no network
//	   call, no availability dependency, ~100µs access latency.
//
//	2. Corpus hash as cache key: SHA256(sorted parameter terms + model name).
//	   Any change to the vocabulary or the EMBEDDING_MODEL env var produces a
//	   different hash, automatically invalidating the cached vectors. No
//	   explicit invalidation API is needed — just delete the PEERS_CACHE_DIR
//	   directory.
//
//	3. BadgerDB native TTL: 7-day expiry is enforced by BadgerDB's GC, not
//	   by application code. Expired keys return ErrKeyNotFound, which the
//	   store treats as a cache miss.
//
// Storage layout:
//
//	peers/emb/v1/{corpusHash}  →  gob-encoded map[string][]float32
//	                               (parameter name → unit-normalized vector)
//	                               TTL: 7 days

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/PeersRAG/services/peers/storage/badger"
)

// embeddingStoreDefaultTTL is the default lifetime of a cached vector set.
// 7 days is long enough to survive weekends and short deployments without
// accumulating stale data indefinitely.
const embeddingStoreDefaultTTL = 7 * 24 * time.Hour

// embeddingStoreKeyPrefix is prepended to the corpus hash to form the
// BadgerDB key. Versioned (v1) to allow future format changes without
// collision.
const embeddingStoreKeyPrefix = "peers/emb/v1/"

// errVectorCacheMiss is a sentinel used internally to distinguish "key not
// found" (a normal cache miss) from a genuine storage error in LoadEmbeddings.
var errVectorCacheMiss = errors.New("vector cache miss")

// =============================================================================
// EmbeddingStore Interface
// =============================================================================

// EmbeddingStore persists parameter embedding vectors across service restarts.
//
// # Description
//
// The store is keyed by corpus hash — a SHA256 digest of the sorted parameter
// vocabulary plus the embedding model name. Any change to the vocabulary or
// model automatically produces a different hash, so the previous entry
// becomes unreachable (expires via TTL) without explicit invalidation.
//
// Both methods are nil-safe by convention: the ParameterEmbeddingIndex checks
// for a nil EmbeddingStore and skips persistence, operating in in-memory-only
// mode. This is the correct behavior for tests and for deployments that do
// not configure a cache directory.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingStore interface {
	// LoadEmbeddings retrieves cached unit-normalized parameter vectors for
	// the given corpus hash.
	//
	// Returns (nil, nil) on cache miss (key absent or TTL expired).
	// Returns (nil, error) on storage failure.
	// Returns (vectors, nil) on cache hit; vectors is never empty on success.
	LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error)

	// SaveEmbeddings persists unit-normalized parameter vectors for the
	// given corpus hash. The store applies a 7-day TTL automatically.
	//
	// Returns non-nil error only on storage failure. The caller logs the
	// error as a warning and continues — persistence failure is non-fatal;
	// vectors will be recomputed on the next warm-up.
	SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error
}

// =============================================================================
// BadgerEmbeddingStore
// =============================================================================

// BadgerEmbeddingStore implements EmbeddingStore backed by a BadgerDB
// instance. The DB is expected to be a service-global singleton opened at
// startup, owned by the caller.
//
// # Description
//
// Vectors are gob-encoded as map[string][]float32. Encoding is compact
// (~4 bytes/float32; 50 parameters × 768 dims ≈ 150KB) and fast. The key is
// the corpus hash prefixed with the storage layout version string.
//
// TTL is enforced by BadgerDB's native GC — no application-level expiry
// check is needed. Expired keys return ErrKeyNotFound, which this store
// treats as a cache miss.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerEmbeddingStore struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerEmbeddingStore creates a BadgerEmbeddingStore backed by the given
// DB instance.
//
// # Description
//
// The DB must be opened by the caller (typically in main) and must not be
// closed before the store is done being used. The caller owns the DB
// lifecycle — this store does not close it.
//
// # Inputs
//
//   - db: Opened BadgerDB wrapper. Must not be nil.
//   - ttl: Lifetime for each cached entry. Pass 0 to use the default (7 days).
//   - logger: Logger for cache hit/miss diagnostics. May be nil.
//
// # Outputs
//
//   - *BadgerEmbeddingStore: Ready-to-use store. Never nil.
//
// # Thread Safety
//
// The returned store is safe for concurrent use.
func NewBadgerEmbeddingStore(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *BadgerEmbeddingStore {
	if db == nil {
		panic("NewBadgerEmbeddingStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = embeddingStoreDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerEmbeddingStore{db: db, ttl: ttl, logger: logger}
}

// LoadEmbeddings retrieves cached unit-normalized parameter vectors.
//
// # Description
//
// Looks up the key peers/emb/v1/{corpusHash}. Returns (nil, nil) on miss
// (key not found or TTL expired). Returns (nil, error) on storage or decode
// failure. Returns (vectors, nil) on success.
//
// # Thread Safety
//
// Safe for concurrent use.
func (s *BadgerEmbeddingStore) LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error) {
	key := embeddingStoreKey(corpusHash)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errVectorCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errVectorCacheMiss) {
		s.logger.Debug("embedding store: miss", slog.String("hash", shortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding store load: %w", err)
	}

	vectors, err := gobDecodeVectors(raw)
	if err != nil {
		return nil, fmt.Errorf("embedding store decode: %w", err)
	}

	s.logger.Debug("embedding store: hit",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("term_count", len(vectors)),
	)
	return vectors, nil
}

// SaveEmbeddings persists unit-normalized parameter vectors with the
// configured TTL.
//
// # Thread Safety
//
// Safe for concurrent use.
func (s *BadgerEmbeddingStore) SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	raw, err := gobEncodeVectors(vectors)
	if err != nil {
		return fmt.Errorf("embedding store encode: %w", err)
	}

	key := embeddingStoreKey(corpusHash)
	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, raw).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("embedding store save: %w", err)
	}

	s.logger.Debug("embedding store: saved",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("term_count", len(vectors)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// =============================================================================
// Corpus Hash
// =============================================================================

// computeCorpusHash computes a deterministic SHA256 hash of the parameter
// vocabulary and embedding model name.
//
// # Description
//
// The hash captures the two signals that determine the shape and content of
// the cached vectors: the parameter terms themselves and the embedding model
// name (from the EMBEDDING_MODEL env var). Terms are sorted for determinism
// regardless of graph query ordering.
//
// # Outputs
//
//   - string: Lowercase hex-encoded SHA256 digest (64 characters).
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func computeCorpusHash(terms []string, model string) string {
	sorted := make([]string, len(terms))
	copy(sorted, terms)
	sort.Strings(sorted)

	h := sha256.New()
	for _, t := range sorted {
		// Newline-terminated entries; stable across Go versions.
		fmt.Fprintf(h, "%s\n", t)
	}
	fmt.Fprintf(h, "model=%s\n", model)

	return hex.EncodeToString(h.Sum(nil))
}

// =============================================================================
// Helpers
// =============================================================================

// embeddingStoreKey builds the BadgerDB key for the given corpus hash.
func embeddingStoreKey(corpusHash string) []byte {
	return []byte(embeddingStoreKeyPrefix + corpusHash)
}

// shortHash returns the first 8 characters of a hash for log display.
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

// gobEncodeVectors serializes a map[string][]float32 using encoding/gob.
func gobEncodeVectors(vectors map[string][]float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// gobDecodeVectors deserializes a map[string][]float32 from gob-encoded bytes.
func gobDecodeVectors(data []byte) (map[string][]float32, error) {
	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return vectors, nil
}
