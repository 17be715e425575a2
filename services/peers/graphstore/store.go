// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphstore defines the read interface to the company knowledge
// graph and its Neo4j implementation. Everything above this package
// depends on the Querier interface, never on a concrete driver, so tests
// inject the in-memory Fake and deployments inject Neo4jStore.
package graphstore

import (
	"context"
)

// Querier executes a read query against the knowledge graph.
//
// Description:
//
//	Rows come back as one map per record, keyed by the RETURN terms
//	exactly as written in the query ("c.company_name", or the alias for
//	"country.name AS country"). Literal filter values must be passed
//	through params — query text never carries user-derived literals.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Querier interface {
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// Pinger is implemented by stores that can report connectivity, used by
// the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
