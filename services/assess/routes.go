// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assess

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the assessment routes with the router.
//
// Description:
//
//	Registers all /v1/assess/* endpoints with the given Gin router
//	group. The group should already carry any required middleware.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/assess/runs            - Start an assessment run
//	GET  /v1/assess/runs            - List runs (newest first)
//	GET  /v1/assess/runs/:id        - Get one run record
//	GET  /v1/assess/runs/:id/stream - Stream run progress (websocket)
//	GET  /v1/assess/health          - Health check
//	GET  /v1/assess/ready           - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	assess := rg.Group("/assess")
	{
		// Run lifecycle
		assess.POST("/runs", handlers.HandleStartRun)
		assess.GET("/runs", handlers.HandleListRuns)
		assess.GET("/runs/:id", handlers.HandleGetRun)
		assess.GET("/runs/:id/stream", handlers.HandleStreamRun)

		// Health checks
		assess.GET("/health", handlers.HandleHealth)
		assess.GET("/ready", handlers.HandleReady)
	}
}
