// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import (
	"context"
	"errors"
	"testing"
)

func TestFake_RuleOrderAndRecording(t *testing.T) {
	fake := NewFake().
		Stub(":Sector", []map[string]any{{"s.name": "Materials"}}).
		Stub(":Company", []map[string]any{{"c.company_name": "Kajaria Ceramics"}})

	ctx := context.Background()

	rows, err := fake.Query(ctx, "MATCH (c:Company)-[:IN_SECTOR]->(s:Sector) RETURN DISTINCT s.name", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["s.name"] != "Materials" {
		t.Errorf("rows = %v, want sector rule to win (registration order)", rows)
	}

	rows, err = fake.Query(ctx, "MATCH (c:Company) RETURN c.company_name", map[string]any{"name": "kaj"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["c.company_name"] != "Kajaria Ceramics" {
		t.Errorf("rows = %v, want company rule", rows)
	}

	calls := fake.Calls()
	if len(calls) != 2 {
		t.Fatalf("len(Calls) = %d, want 2", len(calls))
	}
	if calls[1].Params["name"] != "kaj" {
		t.Errorf("recorded params = %v, want bound name", calls[1].Params)
	}
}

func TestFake_CaseInsensitiveMatch(t *testing.T) {
	fake := NewFake().Stub("match (c:company)", []map[string]any{{"c.cid": "C-1"}})

	rows, err := fake.Query(context.Background(), "MATCH (c:Company) RETURN c.cid", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("len(rows) = %d, want case-insensitive match", len(rows))
	}
}

func TestFake_StubErrAndDefaults(t *testing.T) {
	boom := errors.New("connection reset")
	fake := NewFake().
		StubErr("PeriodResult", boom).
		SetDefault([]map[string]any{{"x": 1}})

	_, err := fake.Query(context.Background(), "MATCH (pr:PeriodResult) RETURN pr.period", nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want stubbed error", err)
	}

	rows, err := fake.Query(context.Background(), "MATCH (n) RETURN n", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["x"] != 1 {
		t.Errorf("rows = %v, want default rows", rows)
	}
}

func TestFake_RowsAreCopies(t *testing.T) {
	fake := NewFake().Stub("Company", []map[string]any{{"c.company_name": "Acme"}})

	rows, _ := fake.Query(context.Background(), "MATCH (c:Company) RETURN c.company_name", nil)
	rows[0]["c.company_name"] = "mutated"

	rows2, _ := fake.Query(context.Background(), "MATCH (c:Company) RETURN c.company_name", nil)
	if rows2[0]["c.company_name"] != "Acme" {
		t.Error("caller mutation leaked into stubbed rows")
	}
}

func TestFake_CancelledContext(t *testing.T) {
	fake := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fake.Query(ctx, "MATCH (n) RETURN n", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNeo4jConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("NEO4J_URI", "")
	t.Setenv("NEO4J_USERNAME", "")
	t.Setenv("NEO4J_PASSWORD", "")
	t.Setenv("NEO4J_DATABASE", "")

	cfg := Neo4jConfigFromEnv()
	if cfg.URI != "neo4j://localhost:7687" {
		t.Errorf("URI = %q, want local default", cfg.URI)
	}
	if cfg.Username != "neo4j" {
		t.Errorf("Username = %q, want %q", cfg.Username, "neo4j")
	}
	if cfg.Database != "neo4j" {
		t.Errorf("Database = %q, want %q", cfg.Database, "neo4j")
	}
	if cfg.QueryTimeout <= 0 {
		t.Error("QueryTimeout should default to a positive bound")
	}
}

func TestNeo4jConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph.internal:7687")
	t.Setenv("NEO4J_USERNAME", "reader")
	t.Setenv("NEO4J_PASSWORD", "s3cret")
	t.Setenv("NEO4J_DATABASE", "peers")

	cfg := Neo4jConfigFromEnv()
	if cfg.URI != "bolt://graph.internal:7687" {
		t.Errorf("URI = %q, want env override", cfg.URI)
	}
	if cfg.Username != "reader" || cfg.Password != "s3cret" || cfg.Database != "peers" {
		t.Errorf("cfg = %+v, want env overrides applied", cfg)
	}
}
