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
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

// =============================================================================
// Chunk Retriever
// =============================================================================

const (
	// chunkCompanyLimit caps how many companies contribute chunks.
	chunkCompanyLimit = 5

	// chunkQuery pulls up to three narrative chunks per company.
	chunkQuery = "MATCH (c:Company {company_name: $name})-[:HAS_Chunk_INFO]->(chunk) RETURN chunk.text LIMIT 3"
)

// ChunkRetriever fetches narrative text linked to the companies a query
// returned. The text supplements synthesis; retrieval failure is never an
// error, just missing context.
//
// # Thread Safety
//
// Safe for concurrent use.
type ChunkRetriever struct {
	store  graphstore.Querier
	logger *slog.Logger
}

// NewChunkRetriever creates a retriever over the graph store.
func NewChunkRetriever(store graphstore.Querier, logger *slog.Logger) *ChunkRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkRetriever{store: store, logger: logger}
}

// Retrieve collects chunk text for up to five of the result's companies.
// Per-company failures are logged and skipped.
func (r *ChunkRetriever) Retrieve(ctx context.Context, result *ExecutionResult) string {
	if result == nil || len(result.Companies) == 0 {
		return ""
	}
	companies := result.Companies
	if len(companies) > chunkCompanyLimit {
		companies = companies[:chunkCompanyLimit]
	}

	var b strings.Builder
	for _, name := range companies {
		rows, err := r.store.Query(ctx, chunkQuery, map[string]any{"name": name})
		if err != nil {
			r.logger.Info("could not retrieve chunks for company",
				slog.String("company", name),
				slog.Any("error", err),
			)
			continue
		}
		for _, row := range rows {
			text, ok := row["chunk.text"]
			if !ok || text == nil {
				continue
			}
			fmt.Fprintf(&b, "\n%v\n", text)
		}
	}

	r.logger.Debug("chunk retrieval complete",
		slog.Int("companies", len(companies)),
		slog.Int("characters", b.Len()),
	)
	return b.String()
}
