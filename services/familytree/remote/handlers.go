// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/familytree/services/familytree/middleware"
	"github.com/AleutianAI/familytree/services/familytree/observability"
)

const writeWait = 10 * time.Second

// Handlers serves a Store over HTTP. Routes are expected to run behind
// middleware.Optional so that anonymous callers can read locale bundles.
type Handlers struct {
	store    Store
	logger   *slog.Logger
	metrics  *observability.StoreMetrics
	upgrader websocket.Upgrader
}

// NewHandlers returns handlers for store. metrics may be nil.
func NewHandlers(store Store, logger *slog.Logger, metrics *observability.StoreMetrics) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		store:   store,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// The store is called by the CLI, not by browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// authorize parses the path parameter and applies the ownership rule,
// writing the error response itself when the request is refused.
func (h *Handlers) authorize(c *gin.Context, op string, write bool) (Path, bool) {
	p, err := ParsePath(c.Param("path"))
	if err != nil {
		h.count(op, "invalid", "denied")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return Path{}, false
	}
	uid := middleware.UserID(c)
	if err := Authorize(p, uid, write); err != nil {
		h.count(op, p.Kind, "denied")
		status := http.StatusForbidden
		if uid == "" && p.Kind == KindTrees {
			status = http.StatusUnauthorized
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return Path{}, false
	}
	return p, true
}

func (h *Handlers) count(op, kind, result string) {
	if h.metrics != nil {
		h.metrics.Op(op, kind, result)
	}
}

// Read handles GET /v1/data/*path.
func (h *Handlers) Read(c *gin.Context) {
	p, ok := h.authorize(c, "read", false)
	if !ok {
		return
	}
	snap, err := h.store.Read(c.Request.Context(), p.String())
	if err != nil {
		h.count("read", p.Kind, "error")
		h.logger.Error("store read failed", "path", p.String(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
		return
	}
	h.count("read", p.Kind, "ok")
	c.JSON(http.StatusOK, snap)
}

// Write handles PUT /v1/data/*path. The body is the new value.
func (h *Handlers) Write(c *gin.Context) {
	p, ok := h.authorize(c, "write", true)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxValueBytes))
	if err != nil {
		h.count("write", p.Kind, "invalid")
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "value too large"})
		return
	}
	err = h.store.Write(c.Request.Context(), p.String(), json.RawMessage(body))
	switch {
	case errors.Is(err, ErrInvalidValue):
		h.count("write", p.Kind, "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.count("write", p.Kind, "error")
		h.logger.Error("store write failed", "path", p.String(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "write failed"})
		return
	}
	h.count("write", p.Kind, "ok")
	h.logger.Info("tree stored", "path", p.String(), "user_id", middleware.UserID(c), "bytes", len(body))
	c.Status(http.StatusNoContent)
}

// Subscribe handles GET /v1/subscribe/*path by upgrading to a websocket
// and streaming snapshots until the peer goes away.
func (h *Handlers) Subscribe(c *gin.Context) {
	p, ok := h.authorize(c, "subscribe", false)
	if !ok {
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	send := func(snap Snapshot) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(snap); err != nil {
			h.logger.Debug("subscriber write failed", "path", p.String(), "error", err)
			cancel()
			ws.Close()
		}
	}

	unsubscribe, err := h.store.Subscribe(ctx, p.String(), send)
	if err != nil {
		h.logger.Error("subscribe failed", "path", p.String(), "error", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	defer unsubscribe()
	h.count("subscribe", p.Kind, "ok")

	// Inbound frames are ignored; the read loop only detects the peer
	// closing the connection.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Register mounts the handlers on g.
func (h *Handlers) Register(g gin.IRoutes) {
	g.GET(DataRoute+"*path", h.Read)
	g.PUT(DataRoute+"*path", h.Write)
	g.GET(SubscribeRoute+"*path", h.Subscribe)
}
