// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package peers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all peers routes with the router.
//
// Description:
//
//	Registers all /v1/peers/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Pipeline Endpoints:
//
//	POST /v1/peers/query - Answer a question end to end
//	POST /v1/peers/cypher - Generate Cypher without executing
//	POST /v1/peers/execute - Validate and run caller-supplied Cypher
//
// Introspection Endpoints:
//
//	GET  /v1/peers/schema - Current knowledge-graph schema snapshot
//	GET  /v1/peers/history - Completed pipeline runs
//	DELETE /v1/peers/history - Clear recorded runs
//
// Health Endpoints:
//
//	GET  /v1/peers/health - Graph connectivity probe
//
// Example:
//
//	svc, err := peers.NewService(ctx, cfg, nil)
//	handlers := peers.NewHandlers(svc, svc)
//
//	v1 := router.Group("/v1")
//	peers.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	peers := rg.Group("/peers")
	{
		// Pipeline
		peers.POST("/query", handlers.HandleQuery)
		peers.POST("/cypher", handlers.HandleCypher)
		peers.POST("/execute", handlers.HandleExecute)

		// Introspection
		peers.GET("/schema", handlers.HandleSchema)
		peers.GET("/history", handlers.HandleHistory)
		peers.DELETE("/history", handlers.HandleClearHistory)

		// Health
		peers.GET("/health", handlers.HandleHealth)
	}
}
