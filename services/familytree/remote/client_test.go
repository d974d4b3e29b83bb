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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (*middleware.Identity, error) {
	if uid, ok := v[token]; ok {
		return &middleware.Identity{UserID: uid}, nil
	}
	return nil, middleware.ErrUnauthorized
}

// newServer runs Handlers over a memory hub behind optional auth.
// Token "t1" belongs to user u1 and "t2" to u2.
func newServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(localstore.NewMemory())
	r := gin.New()
	g := r.Group("/", middleware.Optional(staticVerifier{"t1": "u1", "t2": "u2"}))
	NewHandlers(hub, nil, nil).Register(g)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		hub.Close()
	})
	return srv, hub
}

func newClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	c, err := NewClient(srv.URL,
		WithToken(func() string { return token }),
		WithRetryDelay(20*time.Millisecond))
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	assert.Error(t, err)
	_, err = NewClient("://")
	assert.Error(t, err)
}

func TestClient_ReadWriteOwnTree(t *testing.T) {
	srv, hub := newServer(t)
	c := newClient(t, srv, "t1")
	ctx := context.Background()

	snap, err := c.Read(ctx, TreePath("u1"))
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	require.NoError(t, c.Write(ctx, TreePath("u1"), json.RawMessage(`[{"label":"Root"}]`)))

	snap, err = c.Read(ctx, TreePath("u1"))
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.JSONEq(t, `[{"label":"Root"}]`, string(snap.Value))

	stored, err := hub.Read(ctx, TreePath("u1"))
	require.NoError(t, err)
	assert.True(t, stored.Exists)
}

func TestClient_OwnershipEnforced(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()

	err := newClient(t, srv, "t2").Write(ctx, TreePath("u1"), json.RawMessage(`[]`))
	assert.True(t, failure.Is(err, failure.Auth), "%v", err)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = newClient(t, srv, "").Read(ctx, TreePath("u1"))
	assert.True(t, failure.Is(err, failure.Auth), "%v", err)

	_, err = newClient(t, srv, "expired").Read(ctx, TreePath("u1"))
	assert.True(t, failure.Is(err, failure.Auth), "%v", err)
}

func TestClient_LocaleReadableByAnyone(t *testing.T) {
	srv, hub := newServer(t)
	ctx := context.Background()
	require.NoError(t, hub.Write(ctx, LocalePath("fr"), json.RawMessage(`{"SAVE":"Enregistrer"}`)))

	snap, err := newClient(t, srv, "").Read(ctx, LocalePath("fr"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"SAVE":"Enregistrer"}`, string(snap.Value))

	err = newClient(t, srv, "t1").Write(ctx, LocalePath("fr"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestClient_Validation(t *testing.T) {
	srv, _ := newServer(t)
	c := newClient(t, srv, "t1")
	ctx := context.Background()

	err := c.Write(ctx, TreePath("u1"), json.RawMessage(`{`))
	assert.True(t, failure.Is(err, failure.Validation))

	_, err = c.Read(ctx, "users/u1")
	assert.True(t, failure.Is(err, failure.Validation))
}

func TestClient_Unreachable(t *testing.T) {
	srv, _ := newServer(t)
	c := newClient(t, srv, "t1")
	srv.Close()

	err := c.Write(context.Background(), TreePath("u1"), json.RawMessage(`[]`))
	assert.True(t, failure.Is(err, failure.Network), "%v", err)
}

func TestClient_Subscribe(t *testing.T) {
	srv, hub := newServer(t)
	c := newClient(t, srv, "t1")
	ctx := context.Background()

	rec := newRecorder()
	unsubscribe, err := c.Subscribe(ctx, TreePath("u1"), rec.fn)
	require.NoError(t, err)

	first := rec.next(t)
	assert.False(t, first.Exists)
	assert.Equal(t, "trees/u1", first.Path)

	require.NoError(t, hub.Write(ctx, TreePath("u1"), json.RawMessage(`[7]`)))
	assert.JSONEq(t, `[7]`, string(rec.next(t).Value))

	unsubscribe()
	require.NoError(t, c.Close())
}

func TestClient_SubscribeRejected(t *testing.T) {
	srv, _ := newServer(t)

	_, err := newClient(t, srv, "t2").Subscribe(context.Background(), TreePath("u1"), func(Snapshot) {})
	assert.True(t, failure.Is(err, failure.Auth), "%v", err)
}

func TestHandlers_WriteStatusCodes(t *testing.T) {
	srv, _ := newServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+DataRoute+"trees/u1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer t1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "empty body is not JSON")

	req, err = http.NewRequest(http.MethodGet, srv.URL+DataRoute+"bogus", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
