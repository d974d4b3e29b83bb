// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

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
	"github.com/AleutianAI/familytree/services/familytree/mailer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const sessionKey = "session"

func newAuthServer(t *testing.T) (*httptest.Server, *mailer.Outbox) {
	t.Helper()
	svc, outbox := newService(t, ServiceConfig{})
	r := gin.New()
	NewHandlers(svc, nil).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, outbox
}

func TestClient_SignupPersistsSession(t *testing.T) {
	srv, _ := newAuthServer(t)
	store := localstore.NewMemory()
	ctx := context.Background()

	c, err := NewClient(srv.URL, store, sessionKey)
	require.NoError(t, err)
	assert.Empty(t, c.CurrentUserID())

	require.NoError(t, c.Signup(ctx, "ann@example.com", "secret1"))
	uid := c.CurrentUserID()
	require.NotEmpty(t, uid)
	assert.Equal(t, "ann@example.com", c.CurrentEmail())
	assert.NotEmpty(t, c.Token())

	// A new client over the same store is still signed in.
	restored, err := NewClient(srv.URL, store, sessionKey)
	require.NoError(t, err)
	assert.Equal(t, uid, restored.CurrentUserID())

	require.NoError(t, restored.Logout(ctx))
	assert.Empty(t, restored.CurrentUserID())
	_, ok, err := store.Get(sessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_Me(t *testing.T) {
	srv, _ := newAuthServer(t)
	c, err := NewClient(srv.URL, localstore.NewMemory(), sessionKey)
	require.NoError(t, err)
	require.NoError(t, c.Signup(context.Background(), "ann@example.com", "secret1"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+MeRoute, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.Token())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var id struct {
		UserID string `json:"userId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&id))
	assert.Equal(t, c.CurrentUserID(), id.UserID)

	anon, err := http.Get(srv.URL + MeRoute)
	require.NoError(t, err)
	anon.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, anon.StatusCode)
}

func TestClient_ErrorCodes(t *testing.T) {
	srv, _ := newAuthServer(t)
	ctx := context.Background()
	c, err := NewClient(srv.URL, localstore.NewMemory(), sessionKey)
	require.NoError(t, err)
	require.NoError(t, c.Signup(ctx, "ann@example.com", "secret1"))
	require.NoError(t, c.Logout(ctx))

	err = c.Login(ctx, "ann@example.com", "wrong!!")
	assert.Equal(t, CodeWrongPassword, Code(err))
	assert.Equal(t, "Incorrect password. Please try again.", Message(err))
	assert.Empty(t, c.CurrentUserID())

	assert.Equal(t, CodeUserNotFound, Code(c.Login(ctx, "zed@example.com", "secret1")))
	assert.Equal(t, CodeEmailInUse, Code(c.Signup(ctx, "ann@example.com", "secret1")))
	assert.Equal(t, CodeInvalidEmail, Code(c.ResetPassword(ctx, "nope")))
}

func TestClient_ResetFlow(t *testing.T) {
	srv, outbox := newAuthServer(t)
	ctx := context.Background()
	c, err := NewClient(srv.URL, localstore.NewMemory(), sessionKey)
	require.NoError(t, err)
	require.NoError(t, c.Signup(ctx, "ann@example.com", "secret1"))

	require.NoError(t, c.ResetPassword(ctx, "ann@example.com"))
	msg, ok := outbox.Last()
	require.True(t, ok)
	require.NoError(t, c.ConfirmReset(ctx, tokenFromBody(t, msg.Body), "newsecret"))
	require.NoError(t, c.Login(ctx, "ann@example.com", "newsecret"))
}

func TestClient_ExpiredSessionDropped(t *testing.T) {
	store := localstore.NewMemory()
	raw, err := json.Marshal(Session{UserID: "u1", Token: "t", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, store.Set(sessionKey, string(raw)))

	c, err := NewClient("http://localhost:1", store, sessionKey)
	require.NoError(t, err)
	assert.Empty(t, c.CurrentUserID())
	_, ok, err := store.Get(sessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, localstore.NewMemory(), sessionKey)
	require.NoError(t, err)
	err = c.Login(context.Background(), "ann@example.com", "secret1")
	assert.True(t, failure.Is(err, failure.Network))
	assert.Equal(t, GenericMessage, Message(err))
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", localstore.NewMemory(), sessionKey)
	assert.Error(t, err)
}
