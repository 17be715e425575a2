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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const neo4jTracerName = "aleutian.peers.graphstore"

// Neo4jConfig holds connection settings for the knowledge graph.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string

	// QueryTimeout bounds every Query call. Zero means no per-call bound
	// beyond the caller's context.
	QueryTimeout time.Duration
}

// Neo4jConfigFromEnv reads NEO4J_URI, NEO4J_USERNAME, NEO4J_PASSWORD, and
// NEO4J_DATABASE with local-development defaults.
func Neo4jConfigFromEnv() Neo4jConfig {
	cfg := Neo4jConfig{
		URI:          os.Getenv("NEO4J_URI"),
		Username:     os.Getenv("NEO4J_USERNAME"),
		Password:     os.Getenv("NEO4J_PASSWORD"),
		Database:     os.Getenv("NEO4J_DATABASE"),
		QueryTimeout: 30 * time.Second,
	}
	if cfg.URI == "" {
		cfg.URI = "neo4j://localhost:7687"
	}
	if cfg.Username == "" {
		cfg.Username = "neo4j"
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	return cfg
}

// Neo4jStore implements Querier against a Neo4j server.
//
// Description:
//
//	Sessions are opened read-only per query; generated Cypher is expected
//	to be read-shaped, and a write statement slipping through validation
//	fails at the server instead of mutating the graph.
//
// Thread Safety: Neo4jStore is safe for concurrent use; the underlying
// driver pools connections.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewNeo4jStore dials the graph and verifies connectivity.
//
// Outputs:
//   - *Neo4jStore: The connected store.
//   - error: Non-nil when the driver cannot be constructed or the server
//     is unreachable.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphstore: creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphstore: verifying neo4j connectivity: %w", err)
	}

	slog.Info("Connected to Neo4j",
		slog.String("uri", cfg.URI),
		slog.String("database", cfg.Database),
	)

	return &Neo4jStore{
		driver:   driver,
		database: cfg.Database,
		timeout:  cfg.QueryTimeout,
	}, nil
}

// Query implements Querier.
//
// Description:
//
//	Runs the statement in a read session and materializes every record
//	via Record.AsMap, so row keys match the RETURN terms. The configured
//	per-query timeout applies on top of the caller's context.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Neo4jStore) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	tracer := otel.Tracer(neo4jTracerName)
	ctx, span := tracer.Start(ctx, "neo4j.query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("db.statement_length", len(cypher)),
		attribute.Int("db.parameter_count", len(params)),
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("graphstore: running query: %w", err)
	}

	var rows []map[string]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "result iteration failed")
		return nil, fmt.Errorf("graphstore: reading results: %w", err)
	}

	span.SetAttributes(attribute.Int("db.rows", len(rows)))
	return rows, nil
}

// Ping implements Pinger for the health endpoint.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graphstore: neo4j unreachable: %w", err)
	}
	return nil
}

// Close releases the driver's connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
