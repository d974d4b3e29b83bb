// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/familytree/services/familytree/codec"
	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/observability"
	"github.com/AleutianAI/familytree/services/familytree/remote"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

type write struct {
	path  string
	value json.RawMessage
}

// fakeRemote records writes. When gate is set, each write waits for a
// value on it.
type fakeRemote struct {
	mu     sync.Mutex
	writes []write
	err    error
	gate   chan struct{}
}

func (f *fakeRemote) Read(_ context.Context, path string) (remote.Snapshot, error) {
	return remote.Snapshot{Path: path}, nil
}

func (f *fakeRemote) Write(ctx context.Context, path string, value json.RawMessage) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{path: path, value: value})
	return f.err
}

func (f *fakeRemote) Subscribe(context.Context, string, func(remote.Snapshot)) (func(), error) {
	return func() {}, nil
}

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeRemote) last() write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[len(f.writes)-1]
}

// countingStore counts Set calls per key.
type countingStore struct {
	*localstore.Memory
	mu   sync.Mutex
	sets map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: localstore.NewMemory(), sets: map[string]int{}}
}

func (s *countingStore) Set(key, value string) error {
	s.mu.Lock()
	s.sets[key]++
	s.mu.Unlock()
	return s.Memory.Set(key, value)
}

func (s *countingStore) setCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[key]
}

type fixture struct {
	coord  *Coordinator
	local  *countingStore
	remote *fakeRemote
	net    *Switch
	done   chan Result
	uid    string
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	f := &fixture{
		local:  newCountingStore(),
		remote: &fakeRemote{},
		net:    NewSwitch(online),
		done:   make(chan Result, 16),
		uid:    "u1",
	}
	coord, err := New(Options{
		Keys:       config.DefaultStorageKeys(),
		Local:      f.local,
		Remote:     f.remote,
		UserID:     func() string { return f.uid },
		Net:        f.net,
		Timeout:    time.Second,
		OnPushDone: func(r Result) { f.done <- r },
		Metrics:    observability.NewSyncMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	f.coord = coord
	t.Cleanup(func() { coord.Close() })
	return f
}

func (f *fixture) waitPush(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-f.done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("push did not complete")
		return Result{}
	}
}

func sampleForest() tree.Forest {
	root := tree.NewNode(tree.Record{Name: "Root", DOB: "2001-02-03", IsAlive: true})
	root.IsRoot = true
	root.Children = append(root.Children, tree.NewNode(tree.Record{Name: "Alice", IsAlive: true, DiedOn: "2020-01-01"}))
	return tree.Forest{root}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestCommit_OnlinePushesCanonicalTree(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, true)
	forest := sampleForest()

	fut, err := f.coord.Commit(forest)
	require.NoError(t, err)
	require.NotNil(t, fut)

	res, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	f.waitPush(t)
	require.NoError(t, f.coord.Close())

	assert.Equal(t, 1, f.remote.count())
	w := f.remote.last()
	assert.Equal(t, "trees/u1", w.path)
	assert.True(t, codec.EqualJSON(w.value, forest))
	assert.NotContains(t, string(w.value), "2020-01-01", "death date of a living person is dropped")

	raw, ok, err := f.local.Get("familyTree")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "2020-01-01", "local copy keeps the raw tree")

	assert.False(t, f.coord.Pending())
	assert.Equal(t, Idle, f.coord.State())
}

func TestCommit_OfflineThenReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, false)

	fut, err := f.coord.Commit(sampleForest())
	require.NoError(t, err)
	assert.Nil(t, fut)

	pending, _, _ := f.local.Get("pendingSync")
	assert.Equal(t, "true", pending)
	assert.Equal(t, OfflinePending, f.coord.State())
	assert.Zero(t, f.remote.count())

	f.net.Set(true)
	res := f.waitPush(t)
	require.NoError(t, res.Err)
	require.NoError(t, f.coord.Close())

	assert.Equal(t, 1, f.remote.count())
	assert.True(t, codec.EqualJSON(f.remote.last().value, sampleForest()))
	_, ok, _ := f.local.Get("pendingSync")
	assert.False(t, ok)
	assert.Equal(t, Idle, f.coord.State())
}

func TestCommit_ReconnectWithoutPendingDoesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, false)
	f.net.Set(true)
	require.NoError(t, f.coord.Close())
	assert.Zero(t, f.remote.count())
}

func TestCommit_NoUser(t *testing.T) {
	f := newFixture(t, true)
	f.uid = ""

	fut, err := f.coord.Commit(sampleForest())
	assert.Nil(t, fut)
	assert.ErrorIs(t, err, ErrNoUser)
	assert.True(t, failure.Is(err, failure.Auth))
	assert.Equal(t, 1, f.local.setCount("familyTree"))
	assert.Zero(t, f.remote.count())
}

func TestCommit_PushFailureLeavesPending(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, true)
	f.remote.err = errors.New("connection reset")

	_, err := f.coord.Commit(sampleForest())
	require.NoError(t, err, "push failures are not returned to the caller")

	res := f.waitPush(t)
	require.NoError(t, f.coord.Close())
	assert.True(t, failure.Is(res.Err, failure.Network))
	assert.True(t, f.coord.Pending())
	assert.Equal(t, Idle, f.coord.State())
}

func TestCommit_StalePushKeepsPending(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, true)
	f.remote.gate = make(chan struct{})

	_, err := f.coord.Commit(sampleForest())
	require.NoError(t, err)
	assert.Equal(t, Syncing, f.coord.State())

	f.net.Set(false)
	_, err = f.coord.Commit(sampleForest())
	require.NoError(t, err)
	assert.Equal(t, OfflinePending, f.coord.State())

	f.remote.gate <- struct{}{}
	require.NoError(t, f.waitPush(t).Err)
	require.NoError(t, f.coord.Close())

	assert.True(t, f.coord.Pending(), "a push of older data must not clear a newer pending change")
	assert.Equal(t, OfflinePending, f.coord.State())
}

func TestNew_RestoresPendingState(t *testing.T) {
	local := localstore.NewMemory()
	require.NoError(t, local.Set("pendingSync", "true"))
	coord, err := New(Options{
		Local:  local,
		Remote: &fakeRemote{},
		UserID: func() string { return "u1" },
		Net:    NewSwitch(false),
	})
	require.NoError(t, err)
	defer coord.Close()
	assert.Equal(t, OfflinePending, coord.State())
	assert.True(t, coord.Pending())
}

func TestFlush_PushesStoredTree(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, false)
	_, err := f.coord.Commit(sampleForest())
	require.NoError(t, err)

	fut, err := f.coord.Flush()
	require.NoError(t, err)
	assert.Nil(t, fut, "still offline")

	// Flip the connectivity flag without notifying watchers.
	f.net.mu.Lock()
	f.net.online = true
	f.net.mu.Unlock()

	fut, err = f.coord.Flush()
	require.NoError(t, err)
	require.NotNil(t, fut)
	<-fut.Done()
	f.waitPush(t)
	require.NoError(t, f.coord.Close())
	assert.False(t, f.coord.Pending())
}

func TestPush_IgnoresPendingFlag(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, true)
	fut, err := f.coord.Push(sampleForest())
	require.NoError(t, err)
	require.NotNil(t, fut)
	f.waitPush(t)
	require.NoError(t, f.coord.Close())
	assert.Equal(t, 1, f.remote.count())

	f.uid = ""
	_, err = f.coord.Push(sampleForest())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_WaitsForInflightPush(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, true)
	f.remote.gate = make(chan struct{})

	fut, err := f.coord.Commit(sampleForest())
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		f.coord.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before the push finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(f.remote.gate)
	<-closed
	<-fut.Done()

	_, err = f.coord.Commit(sampleForest())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMerge(t *testing.T) {
	f := newFixture(t, true)
	current := sampleForest()
	canonical, err := codec.Marshal(current)
	require.NoError(t, err)

	t.Run("identical snapshot is a no-op", func(t *testing.T) {
		got, replaced := f.coord.Merge(remote.Snapshot{Exists: true, Value: canonical}, current)
		assert.False(t, replaced)
		assert.Same(t, current[0], got[0])
		assert.Zero(t, f.local.setCount("familyTree"))
	})

	t.Run("absent snapshot is ignored", func(t *testing.T) {
		_, replaced := f.coord.Merge(remote.Snapshot{}, current)
		assert.False(t, replaced)
		_, replaced = f.coord.Merge(remote.Snapshot{Exists: true, Value: json.RawMessage("null")}, current)
		assert.False(t, replaced)
	})

	t.Run("undecodable snapshot is ignored", func(t *testing.T) {
		_, replaced := f.coord.Merge(remote.Snapshot{Exists: true, Value: json.RawMessage(`{"x":1}`)}, current)
		assert.False(t, replaced)
		assert.Zero(t, f.local.setCount("familyTree"))
	})

	t.Run("different snapshot replaces and persists", func(t *testing.T) {
		other := tree.Forest{tree.NewNode(tree.Record{Name: "Bob", IsAlive: true})}
		value, err := codec.Marshal(other)
		require.NoError(t, err)

		got, replaced := f.coord.Merge(remote.Snapshot{Exists: true, Value: value}, current)
		require.True(t, replaced)
		require.Len(t, got, 1)
		assert.Equal(t, "Bob", got[0].Label)
		assert.Equal(t, 1, f.local.setCount("familyTree"))
	})

	t.Run("null children are dropped", func(t *testing.T) {
		value := json.RawMessage(`[{"label":"A","children":[null]}]`)
		var got tree.Forest
		var replaced bool
		require.NotPanics(t, func() {
			got, replaced = f.coord.Merge(remote.Snapshot{Exists: true, Value: value}, current)
		})
		require.True(t, replaced)
		require.Len(t, got, 1)
		assert.Empty(t, got[0].Children)
		assert.Equal(t, 1, tree.CountNodes(got))
	})
}

func TestWatch_DeliversOwnTree(t *testing.T) {
	hub := remote.NewHub(localstore.NewMemory())
	defer hub.Close()
	value, err := codec.Marshal(sampleForest())
	require.NoError(t, err)
	require.NoError(t, hub.Write(context.Background(), "trees/u1", value))

	coord, err := New(Options{
		Local:  localstore.NewMemory(),
		Remote: hub,
		UserID: func() string { return "u1" },
		Net:    NewSwitch(true),
	})
	require.NoError(t, err)
	defer coord.Close()

	got := make(chan remote.Snapshot, 1)
	stop, err := coord.Watch(context.Background(), func(s remote.Snapshot) {
		select {
		case got <- s:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	select {
	case s := <-got:
		assert.Equal(t, "trees/u1", s.Path)
		assert.True(t, codec.EqualJSON(s.Value, sampleForest()))
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "syncing", Syncing.String())
	assert.Equal(t, "offline_pending", OfflinePending.String())
	assert.Equal(t, "unknown", State(9).String())
}
