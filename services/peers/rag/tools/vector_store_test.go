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
	"context"
	"testing"
	"time"

	badgerstore "github.com/AleutianAI/PeersRAG/services/peers/storage/badger"
)

// =============================================================================
// Helpers
// =============================================================================

// openTestDB opens an in-memory BadgerDB for testing.
func openTestDB(t *testing.T) *badgerstore.DB {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// makeTestVectors builds a small map[string][]float32 for round-trip testing.
func makeTestVectors() map[string][]float32 {
	return map[string][]float32{
		"Total revenue, Primary": {0.1, 0.2, 0.3, 0.4},
		"EBITDA margin":          {0.5, 0.6, 0.7, 0.8},
		"Net profit":             {0.9, 0.1, 0.2, 0.3},
	}
}

// =============================================================================
// BadgerEmbeddingStore Tests
// =============================================================================

func TestEmbeddingStore_Load_EmptyDB(t *testing.T) {
	db := openTestDB(t)
	store := NewBadgerEmbeddingStore(db, 0, nil)

	vectors, err := store.LoadEmbeddings(context.Background(), "nonexistenthash")
	if err != nil {
		t.Errorf("expected nil error on miss, got %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil vectors on miss, got %v", vectors)
	}
}

func TestEmbeddingStore_Save_EmptyVectors(t *testing.T) {
	db := openTestDB(t)
	store := NewBadgerEmbeddingStore(db, 0, nil)

	// Empty map should be a no-op, not an error.
	if err := store.SaveEmbeddings(context.Background(), "anyhash", nil); err != nil {
		t.Errorf("expected no error for nil vectors, got %v", err)
	}
	if err := store.SaveEmbeddings(context.Background(), "anyhash", map[string][]float32{}); err != nil {
		t.Errorf("expected no error for empty map, got %v", err)
	}
}

func TestEmbeddingStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewBadgerEmbeddingStore(db, 0, nil)
	ctx := context.Background()

	want := makeTestVectors()
	hash := computeCorpusHash([]string{"Total revenue, Primary", "EBITDA margin", "Net profit"}, "test-model")

	if err := store.SaveEmbeddings(ctx, hash, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.LoadEmbeddings(ctx, hash)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cache hit, got miss")
	}
	if len(got) != len(want) {
		t.Fatalf("term count = %d, want %d", len(got), len(want))
	}
	for name, wantVec := range want {
		gotVec, ok := got[name]
		if !ok {
			t.Errorf("missing vector for %q", name)
			continue
		}
		if len(gotVec) != len(wantVec) {
			t.Errorf("vector length for %q = %d, want %d", name, len(gotVec), len(wantVec))
			continue
		}
		for i := range wantVec {
			if gotVec[i] != wantVec[i] {
				t.Errorf("vector[%d] for %q = %f, want %f", i, name, gotVec[i], wantVec[i])
			}
		}
	}
}

func TestEmbeddingStore_DifferentHashesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	store := NewBadgerEmbeddingStore(db, 0, nil)
	ctx := context.Background()

	if err := store.SaveEmbeddings(ctx, "hash-a", makeTestVectors()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.LoadEmbeddings(ctx, "hash-b")
	if err != nil {
		t.Errorf("expected nil error on miss, got %v", err)
	}
	if got != nil {
		t.Errorf("expected miss for different hash, got %d vectors", len(got))
	}
}

func TestEmbeddingStore_TTLExpiry(t *testing.T) {
	db := openTestDB(t)
	store := NewBadgerEmbeddingStore(db, 50*time.Millisecond, nil)
	ctx := context.Background()

	if err := store.SaveEmbeddings(ctx, "expiringhash", makeTestVectors()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	got, err := store.LoadEmbeddings(ctx, "expiringhash")
	if err != nil {
		t.Errorf("expected nil error after expiry, got %v", err)
	}
	if got != nil {
		t.Errorf("expected miss after TTL expiry, got %d vectors", len(got))
	}
}

func TestEmbeddingStore_ContextCancelled(t *testing.T) {
	db := openTestDB(t)
	store := NewBadgerEmbeddingStore(db, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.LoadEmbeddings(ctx, "somehash"); err == nil {
		t.Error("expected error from cancelled context on load")
	}
	if err := store.SaveEmbeddings(ctx, "somehash", makeTestVectors()); err == nil {
		t.Error("expected error from cancelled context on save")
	}
}

// =============================================================================
// computeCorpusHash Tests
// =============================================================================

func TestComputeCorpusHash_OrderInsensitive(t *testing.T) {
	a := computeCorpusHash([]string{"Revenue", "Net profit", "EBITDA margin"}, "nomic")
	b := computeCorpusHash([]string{"EBITDA margin", "Revenue", "Net profit"}, "nomic")
	if a != b {
		t.Error("hash should not depend on term order")
	}
}

func TestComputeCorpusHash_TermSensitive(t *testing.T) {
	a := computeCorpusHash([]string{"Revenue"}, "nomic")
	b := computeCorpusHash([]string{"Revenue", "Net profit"}, "nomic")
	if a == b {
		t.Error("hash should change when the vocabulary changes")
	}
}

func TestComputeCorpusHash_ModelSensitive(t *testing.T) {
	a := computeCorpusHash([]string{"Revenue"}, "nomic")
	b := computeCorpusHash([]string{"Revenue"}, "other-model")
	if a == b {
		t.Error("hash should change when the model changes")
	}
}

func TestComputeCorpusHash_HexLength(t *testing.T) {
	h := computeCorpusHash(nil, "nomic")
	if len(h) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h))
	}
}
