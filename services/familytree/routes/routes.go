// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the treestore HTTP API.
package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/familytree/services/familytree/auth"
	"github.com/AleutianAI/familytree/services/familytree/middleware"
	"github.com/AleutianAI/familytree/services/familytree/observability"
	"github.com/AleutianAI/familytree/services/familytree/remote"
)

// HealthRoute answers 200 while the server runs. Editors probe it to
// decide whether they are online.
const HealthRoute = "/healthz"

// Deps are the services the routes dispatch to.
type Deps struct {
	ServiceName string
	Store       remote.Store
	Auth        *auth.Service
	Metrics     *observability.StoreMetrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// SetupRoutes registers every route on router.
//
//	GET  /healthz
//	GET  /metrics
//	POST /v1/auth/{signup,login,reset,reset/confirm}
//	GET  /v1/auth/me
//	GET  /v1/data/{trees|locale}/{id}
//	PUT  /v1/data/trees/{userId}
//	GET  /v1/subscribe/{trees|locale}/{id}   (websocket)
func SetupRoutes(router *gin.Engine, d Deps) {
	if d.ServiceName != "" {
		router.Use(otelgin.Middleware(d.ServiceName))
	}

	router.GET(HealthRoute, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	auth.NewHandlers(d.Auth, d.Logger).Register(router)

	data := router.Group("/", middleware.Optional(d.Auth))
	remote.NewHandlers(d.Store, d.Logger, d.Metrics).Register(data)
}
