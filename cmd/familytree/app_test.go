// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/familytree/pkg/ux"
	"github.com/AleutianAI/familytree/services/familytree/auth"
	"github.com/AleutianAI/familytree/services/familytree/codec"
	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/mailer"
	"github.com/AleutianAI/familytree/services/familytree/remote"
	"github.com/AleutianAI/familytree/services/familytree/routes"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// startServer runs a treestore over an in-memory database.
func startServer(t *testing.T) (*httptest.Server, *remote.Hub) {
	t.Helper()
	db, err := localstore.OpenDB(localstore.InMemoryConfig())
	require.NoError(t, err)

	svc, err := auth.NewService(db, auth.NewTokenIssuer(nil, time.Hour), &mailer.Outbox{},
		auth.ServiceConfig{BcryptCost: bcrypt.MinCost}, nil, nil)
	require.NoError(t, err)
	hub := remote.NewHub(localstore.NewBadger(db, "remote/"))

	router := gin.New()
	routes.SetupRoutes(router, routes.Deps{Store: hub, Auth: svc})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		db.Close()
	})
	return srv, hub
}

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	c := config.DefaultConfig()
	c.Store.URL = url
	c.Store.ProbeInterval = time.Minute
	c.Local.Backend = string(localstore.BackendBolt)
	c.Local.Dir = t.TempDir()
	c.Logging.Level = "error"
	return &c
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &ux.Printer{Out: &buf, Err: &buf, Mode: ux.ModeMachine}
	t.Cleanup(func() { out = prev })
	return &buf
}

func setOffline(t *testing.T, on bool) {
	t.Helper()
	prev := flags.offline
	flags.offline = on
	t.Cleanup(func() { flags.offline = prev })
}

func mustOpen(t *testing.T, c *config.Config) *app {
	t.Helper()
	a, err := openApp(context.Background(), c, out)
	require.NoError(t, err)
	return a
}

func TestApp_ChangesReachTheServer(t *testing.T) {
	captureOutput(t)
	srv, hub := startServer(t)
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	a := mustOpen(t, c)
	require.NoError(t, a.auth.Signup(ctx, "ann@example.com", "secret1"))
	require.NoError(t, a.openSession(ctx))
	assert.Equal(t, 1, a.session.Count())

	alice, err := a.session.Add(tree.Child, tree.Record{Name: "Alice", IsAlive: true})
	require.NoError(t, err)
	uid := a.auth.CurrentUserID()
	a.Close()

	snap, err := hub.Read(ctx, remote.TreePath(uid))
	require.NoError(t, err)
	require.True(t, snap.Exists)
	stored, err := codec.Unmarshal(snap.Value)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Count())

	// A fresh process stays signed in and resolves the stored tree.
	b := mustOpen(t, c)
	defer b.Close()
	require.NoError(t, b.openSession(ctx))
	assert.Equal(t, uid, b.auth.CurrentUserID())
	n, err := b.session.Select(alice.Data.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", n.Label)
}

func TestApp_OfflineChangeFlushesOnNextOnlineRun(t *testing.T) {
	buf := captureOutput(t)
	srv, hub := startServer(t)
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	a := mustOpen(t, c)
	require.NoError(t, a.auth.Signup(ctx, "bo@example.com", "secret1"))
	uid := a.auth.CurrentUserID()
	a.Close()

	setOffline(t, true)
	b := mustOpen(t, c)
	require.NoError(t, b.openSession(ctx))
	_, err := b.session.Add(tree.Child, tree.Record{Name: "Carol", IsAlive: true})
	require.NoError(t, err)
	assert.True(t, b.coord.Pending())
	b.Close()
	assert.Contains(t, buf.String(), "offline")

	snap, err := hub.Read(ctx, remote.TreePath(uid))
	require.NoError(t, err)
	assert.False(t, snap.Exists, "nothing is written while offline")

	flags.offline = false
	d := mustOpen(t, c)
	require.NoError(t, d.openSession(ctx))
	d.Close()
	assert.False(t, d.coord.Pending())

	snap, err = hub.Read(ctx, remote.TreePath(uid))
	require.NoError(t, err)
	require.True(t, snap.Exists)
	stored, err := codec.Unmarshal(snap.Value)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Count())
	assert.NotEmpty(t, tree.FindMatches(stored, "carol"))
}

func TestApp_SignedOutWorksLocally(t *testing.T) {
	captureOutput(t)
	srv, hub := startServer(t)
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	a := mustOpen(t, c)
	require.NoError(t, a.openSession(ctx))
	_, err := a.session.Add(tree.Sibling, tree.Record{Name: "Dan", IsAlive: true})
	require.NoError(t, err)
	assert.ErrorIs(t, a.requireUser(), errNotSignedIn)
	a.Close()

	b := mustOpen(t, c)
	defer b.Close()
	require.NoError(t, b.openSession(ctx))
	assert.Equal(t, 2, b.session.Count())

	snap, err := hub.Read(ctx, remote.TreePath("anyone"))
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestApp_LogoutClearsSession(t *testing.T) {
	buf := captureOutput(t)
	srv, _ := startServer(t)
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	a := mustOpen(t, c)
	require.NoError(t, a.auth.Signup(ctx, "eve@example.com", "secret1"))
	require.NoError(t, a.openSession(ctx))
	require.NoError(t, runLogout(ctx, a, nil))
	assert.Empty(t, a.auth.CurrentUserID())
	a.Close()
	assert.Contains(t, buf.String(), "Signed out.")

	b := mustOpen(t, c)
	defer b.Close()
	assert.Empty(t, b.auth.CurrentUserID())
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"login", "signup", "reset", "logout", "whoami",
		"show", "add", "edit", "delete", "search", "export", "import", "watch", "backup", "lang"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

// setFlags sets flag values on cmd and restores them when the test ends.
func setFlags(t *testing.T, cmd *cobra.Command, values map[string]string) {
	t.Helper()
	fs := cmd.Flags()
	for name, v := range values {
		f := fs.Lookup(name)
		require.NotNil(t, f, name)
		prev := f.Value.String()
		require.NoError(t, fs.Set(name, v))
		t.Cleanup(func() {
			_ = f.Value.Set(prev)
			f.Changed = false
		})
	}
}

func TestAddAndEditCommands_ReadTheirFlags(t *testing.T) {
	buf := captureOutput(t)
	srv, _ := startServer(t)
	prevCfg := cfg
	cfg = testConfig(t, srv.URL)
	t.Cleanup(func() { cfg = prevCfg })
	setOffline(t, true)

	require.NotNil(t, addCmd.RunE)
	require.NotNil(t, editCmd.RunE)
	addCmd.SetContext(context.Background())
	editCmd.SetContext(context.Background())

	setFlags(t, addCmd, map[string]string{"name": "Fay", "gender": "Female"})
	require.NoError(t, addCmd.RunE(addCmd, []string{"child"}))
	assert.Contains(t, buf.String(), "Fay")

	a := mustOpen(t, cfg)
	require.NoError(t, a.openSession(context.Background()))
	fay, count := a.session.Search("fay")
	require.Equal(t, 1, count)
	id := fay.Data.NodeID
	assert.Equal(t, tree.Female, fay.Data.Gender)
	a.Close()

	setFlags(t, editCmd, map[string]string{"name": "Fay Lin"})
	require.NoError(t, editCmd.RunE(editCmd, []string{id}))

	b := mustOpen(t, cfg)
	defer b.Close()
	require.NoError(t, b.openSession(context.Background()))
	n, err := b.session.Select(id)
	require.NoError(t, err)
	assert.Equal(t, "Fay Lin", n.Data.Name)
	assert.Equal(t, tree.Female, n.Data.Gender)
}
