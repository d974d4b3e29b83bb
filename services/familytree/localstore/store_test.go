// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	mem, err := OpenBadger(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "nested", "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Store{
		"badger": mem,
		"bolt":   bolt,
		"memory": NewMemory(),
	}
}

func TestStore_Contract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("familyTree")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("familyTree", "[1]"))
			require.NoError(t, s.Set("familyTree", "[2]"))
			v, ok, err := s.Get("familyTree")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "[2]", v, "last write wins")

			require.NoError(t, s.Set("empty", ""))
			v, ok, err = s.Get("empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, v)

			require.NoError(t, s.Delete("familyTree"))
			require.NoError(t, s.Delete("never-set"))
			_, ok, err = s.Get("familyTree")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFlags(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			on, err := GetFlag(s, "pendingSync")
			require.NoError(t, err)
			assert.False(t, on)

			require.NoError(t, SetFlag(s, "pendingSync", true))
			on, err = GetFlag(s, "pendingSync")
			require.NoError(t, err)
			assert.True(t, on)

			require.NoError(t, SetFlag(s, "pendingSync", false))
			_, present, err := s.Get("pendingSync")
			require.NoError(t, err)
			assert.False(t, present, "clearing the flag removes the key")

			require.NoError(t, s.Set("pendingSync", "garbage"))
			on, err = GetFlag(s, "pendingSync")
			require.NoError(t, err)
			assert.False(t, on)
		})
	}
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadger(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Set("defaultLocale", "fr"))
	require.NoError(t, s.Close())

	s, err = OpenBadger(DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get("defaultLocale")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fr", v)
}

func TestBadger_PrefixesShareDB(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	a := NewBadger(db, "a/")
	b := NewBadger(db, "b/")
	require.NoError(t, a.Set("k", "from a"))

	_, ok, err := b.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Close(), "borrowed databases are not closed")
	v, ok, err := a.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "from a", v)
}

func TestBadger_ClosedStore(t *testing.T) {
	s, err := OpenBadger(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set("k", "v"), ErrClosed)
}

func TestOpenDB_RequiresPath(t *testing.T) {
	_, err := OpenDB(Config{})
	assert.ErrorContains(t, err, "path is required")
}

func TestDB_WithTxn_ContextCancelled(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	assert.ErrorContains(t, err, "context cancelled")
}

func TestDB_WithTxn_RollbackOnError(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte("rollback-key"), []byte("x")); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, ok, err := GetValue(txn, []byte("rollback-key"))
		assert.False(t, ok)
		return err
	})
	require.NoError(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, kind := range []Backend{BackendBadger, BackendBolt, BackendMemory} {
		s, err := Open(kind, filepath.Join(dir, string(kind)), nil)
		require.NoError(t, err, kind)
		require.NoError(t, s.Set("k", "v"))
		require.NoError(t, s.Close())
	}

	_, err := Open("sqlite", dir, nil)
	assert.ErrorContains(t, err, "unknown local store backend")
}
