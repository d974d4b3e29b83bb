// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/familytree/services/familytree/auth"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/mailer"
	"github.com/AleutianAI/familytree/services/familytree/observability"
	"github.com/AleutianAI/familytree/services/familytree/remote"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := localstore.OpenDB(localstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	metrics := observability.NewStoreMetrics(reg)
	svc, err := auth.NewService(db, auth.NewTokenIssuer(nil, time.Hour), &mailer.Outbox{},
		auth.ServiceConfig{BcryptCost: bcrypt.MinCost}, metrics, nil)
	require.NoError(t, err)

	hub := remote.NewHub(localstore.NewBadger(db, "remote/"), remote.WithHubMetrics(metrics))
	t.Cleanup(func() { hub.Close() })

	router := gin.New()
	SetupRoutes(router, Deps{
		ServiceName:    "treestore-test",
		Store:          hub,
		Auth:           svc,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return router
}

func do(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	router := newRouter(t)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, HealthRoute, "", nil).Code)

	w := do(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignupThenOwnTreeOnly(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodPost, auth.SignupRoute, "", map[string]string{"email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess auth.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))

	own := remote.DataRoute + remote.TreePath(sess.UserID)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodPut, own, sess.Token, []any{}).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, own, sess.Token, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, own, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, remote.DataRoute+"trees/someone-else", sess.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, own, "forged", nil).Code)
}

func TestLocaleIsPublic(t *testing.T) {
	router := newRouter(t)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, remote.DataRoute+"locale/en", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPut, remote.DataRoute+"locale/en", "", map[string]string{}).Code)
}

func TestAuthErrorsCarryCodes(t *testing.T) {
	router := newRouter(t)
	w := do(router, http.MethodPost, auth.LoginRoute, "", map[string]string{"email": "zed@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, auth.CodeUserNotFound, body.Code)
	assert.Equal(t, "No user found with this email.", body.Error)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, auth.LoginRoute, "", map[string]string{}).Code)
}

func TestClientsAgainstRouter(t *testing.T) {
	srv := httptest.NewServer(newRouter(t))
	defer srv.Close()
	ctx := context.Background()

	authn, err := auth.NewClient(srv.URL, localstore.NewMemory(), "session")
	require.NoError(t, err)
	require.NoError(t, authn.Signup(ctx, "ann@example.com", "secret1"))

	store, err := remote.NewClient(srv.URL, remote.WithToken(authn.Token))
	require.NoError(t, err)
	defer store.Close()

	path := remote.TreePath(authn.CurrentUserID())
	require.NoError(t, store.Write(ctx, path, json.RawMessage(`[{"label":"Root"}]`)))
	snap, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.JSONEq(t, `[{"label":"Root"}]`, string(snap.Value))
}
