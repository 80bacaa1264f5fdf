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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/VeracityAI/VeracityFOSS/services/assess/store"
)

// Handlers exposes the Service over HTTP.
type Handlers struct {
	svc      *Service
	upgrader websocket.Upgrader
}

// NewHandlers wires handlers to a service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API carries no cookies; cross-origin dashboards are fine.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleStartRun starts an assessment.
//
// POST /v1/assess/runs
//
// Request body:
//
//	{
//	  "framework": "soc2",
//	  "framework_version": "2023.1",
//	  "target": "acme-prod",
//	  "compare_with_previous": true
//	}
//
// Responses:
//
//	202 - Run accepted; body is the run record with status "running".
//	400 - Missing framework or target.
//	500 - Run store failure.
func (h *Handlers) HandleStartRun(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.svc.StartRun(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, rec)
}

// HandleGetRun returns one run record.
//
// GET /v1/assess/runs/:id
func (h *Handlers) HandleGetRun(c *gin.Context) {
	rec, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleListRuns lists runs newest-first.
//
// GET /v1/assess/runs?target=acme-prod&limit=20
func (h *Handlers) HandleListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	recs, err := h.svc.ListRuns(c.Request.Context(), c.Query("target"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": recs, "count": len(recs)})
}

// HandleStreamRun streams a run's progress events over a websocket.
//
// GET /v1/assess/runs/:id/stream
//
// Each message is one JSON progress event. When the run finishes the
// final run record is sent and the socket closes normally. Connecting
// to an already-finished run sends the record immediately.
func (h *Handlers) HandleStreamRun(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.svc.GetRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Subscribe before upgrading so no event slips between the check
	// above and the first read below.
	events, cancel := h.svc.Subscribe(id)
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		return
	}
	defer conn.Close()

	if rec.Status != "running" {
		h.writeFinal(conn, id)
		return
	}

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			slog.Debug("Progress stream client went away",
				slog.String("run_id", id),
				slog.String("error", err.Error()))
			return
		}
	}

	// Channel closed: the run is done.
	h.writeFinal(conn, id)
}

func (h *Handlers) writeFinal(conn *websocket.Conn, id string) {
	rec, err := h.svc.GetRun(context.Background(), id)
	if err == nil {
		_ = conn.WriteJSON(gin.H{"final": true, "run": rec})
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// HandleHealth reports liveness.
//
// GET /v1/assess/health
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady reports readiness: the run store must answer.
//
// GET /v1/assess/ready
func (h *Handlers) HandleReady(c *gin.Context) {
	if _, err := h.svc.ListRuns(c.Request.Context(), "", 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
