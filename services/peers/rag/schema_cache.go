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
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/PeersRAG/services/peers/graphstore"
)

// defaultSchemaTTL bounds how stale a schema snapshot may get.
const defaultSchemaTTL = 300 * time.Second

// schemaQueries are the per-category reads behind one snapshot. Limits are
// deliberately small: the snapshot grounds matching and prompts, it is not
// an export.
var schemaQueries = []struct {
	category string
	cypher   string
	key      string
}{
	{"sectors", "MATCH (s:Sector) RETURN DISTINCT s.name ORDER BY s.name LIMIT 20", "s.name"},
	{"industries", "MATCH (i:Industry) RETURN DISTINCT i.name ORDER BY i.name LIMIT 30", "i.name"},
	{"countries", "MATCH (c:Country) RETURN DISTINCT c.name, c.code ORDER BY c.name LIMIT 20", "c.name"},
	{"regions", "MATCH (r:Region) RETURN DISTINCT r.name ORDER BY r.name LIMIT 10", "r.name"},
	{"exchanges", "MATCH (e:Exchange) RETURN DISTINCT e.code ORDER BY e.code LIMIT 15", "e.code"},
	{"parameters", "MATCH (p:Parameter) RETURN DISTINCT p.parameter_name ORDER BY p.parameter_name LIMIT 50", "p.parameter_name"},
	{"periods", "MATCH (pr:PeriodResult) RETURN DISTINCT pr.period ORDER BY pr.period DESC LIMIT 20", "pr.period"},
	{"companies", "MATCH (c:Company) RETURN DISTINCT c.company_name ORDER BY c.company_name LIMIT 30", "c.company_name"},
}

// SchemaCache serves time-bounded snapshots of known entity values.
//
// # Description
//
// Reads within the TTL return the same snapshot without touching the
// store. On expiry exactly one rebuild runs, however many goroutines ask
// concurrently; the rest share its result. A store failure during rebuild
// is logged and surfaces as a nil snapshot — callers must treat nil as
// "proceed with substring matching only", never as a hard failure.
//
// # Thread Safety
//
// Safe for concurrent use.
type SchemaCache struct {
	store  graphstore.Querier
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot *SchemaContext

	group singleflight.Group
}

// NewSchemaCache creates a cache over the given store. A ttl of zero
// selects the 300 second default.
func NewSchemaCache(store graphstore.Querier, ttl time.Duration, logger *slog.Logger) *SchemaCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultSchemaTTL
	}
	return &SchemaCache{store: store, ttl: ttl, logger: logger}
}

// Get returns the current snapshot, rebuilding it when stale. Returns nil
// when the store is unreachable and no fresh snapshot exists.
func (c *SchemaCache) Get(ctx context.Context) *SchemaContext {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()
	if snap != nil && time.Since(snap.FetchedAt) < c.ttl {
		return snap
	}

	v, err, _ := c.group.Do("schema", func() (any, error) {
		// Another waiter may have refreshed while this one queued.
		c.mu.RLock()
		current := c.snapshot
		c.mu.RUnlock()
		if current != nil && time.Since(current.FetchedAt) < c.ttl {
			return current, nil
		}

		fresh, err := c.fetch(ctx)
		if err != nil {
			schemaRefresh.WithLabelValues("error").Inc()
			return nil, err
		}

		c.mu.Lock()
		c.snapshot = fresh
		c.mu.Unlock()
		schemaRefresh.WithLabelValues("success").Inc()
		return fresh, nil
	})
	if err != nil {
		c.logger.Error("Schema context refresh failed",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return v.(*SchemaContext)
}

// Invalidate forces the next Get to refetch.
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

// fetch runs the eight per-category reads and assembles a snapshot.
func (c *SchemaCache) fetch(ctx context.Context) (*SchemaContext, error) {
	snap := &SchemaContext{FetchedAt: time.Now()}

	for _, q := range schemaQueries {
		rows, err := c.store.Query(ctx, q.cypher, nil)
		if err != nil {
			return nil, fmt.Errorf("rag: fetching %s: %w", q.category, err)
		}

		values := make([]string, 0, len(rows))
		for _, row := range rows {
			if q.category == "countries" {
				name, code := stringCell(row["c.name"]), stringCell(row["c.code"])
				if name != "" {
					values = append(values, fmt.Sprintf("%s (%s)", name, code))
				}
				continue
			}
			if v := stringCell(row[q.key]); v != "" {
				values = append(values, v)
			}
		}

		switch q.category {
		case "sectors":
			snap.Sectors = values
		case "industries":
			snap.Industries = values
		case "countries":
			snap.Countries = values
		case "regions":
			snap.Regions = values
		case "exchanges":
			snap.Exchanges = values
		case "parameters":
			snap.Parameters = values
		case "periods":
			snap.Periods = values
		case "companies":
			snap.Companies = values
		}
	}

	c.logger.Info("Schema context loaded",
		slog.Int("sectors", len(snap.Sectors)),
		slog.Int("industries", len(snap.Industries)),
		slog.Int("parameters", len(snap.Parameters)),
		slog.Int("companies", len(snap.Companies)),
		slog.Int("periods", len(snap.Periods)),
	)
	return snap, nil
}

// stringCell renders a row value for snapshot storage; non-strings are
// rare but possible with mixed-type properties.
func stringCell(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}
