// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locale

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/remote"
)

func TestKeysHaveNamesAndDefaults(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Keys() {
		assert.NotEmpty(t, k.Default(), k.String())
		assert.False(t, seen[k.String()], "duplicate name %s", k)
		seen[k.String()] = true

		parsed, ok := ParseKey(k.String())
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "unknown", Key(-1).String())
	assert.Empty(t, keyCount.Default())
}

func TestBundleFallback(t *testing.T) {
	b, err := ParseJSON("hn", []byte(`{"title":"Vansh Vriksh","signIn":"","count":3,"bogus":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "Vansh Vriksh", b.T(AppTitle))
	assert.Equal(t, SignIn.Default(), b.T(SignIn))
	assert.Equal(t, map[string]string{"title": "Vansh Vriksh"}, b.Map())
	assert.Equal(t, "Match 2 of 5", b.Tf(SearchPosition, 2, 5))

	var nilBundle *Bundle
	assert.Equal(t, AppTitle.Default(), nilBundle.T(AppTitle))

	_, err = ParseJSON("hn", []byte(`[1]`))
	assert.Error(t, err)
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hn.yaml"), []byte("title: Vansh Vriksh\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.yml"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	bundles, err := ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "en", bundles[0].Lang())
	assert.Equal(t, "Vansh Vriksh", bundles[1].T(AppTitle))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("title: [x\n"), 0o600))
	_, err = ReadDir(dir)
	assert.Error(t, err)
}

type fakeReader struct {
	snaps map[string]remote.Snapshot
	err   error
	calls int
}

func (f *fakeReader) Read(_ context.Context, path string) (remote.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return remote.Snapshot{}, f.err
	}
	return f.snaps[path], nil
}

func newCatalog(t *testing.T, r Reader, local localstore.Store) *Catalog {
	t.Helper()
	c, err := NewCatalog(r, local, config.DefaultStorageKeys(), config.LocaleConfig{Default: "en", CacheSize: 2}, nil)
	require.NoError(t, err)
	return c
}

func TestCatalog_FetchCachesInMemoryAndLocally(t *testing.T) {
	r := &fakeReader{snaps: map[string]remote.Snapshot{
		"locale/hn": {Path: "locale/hn", Exists: true, Value: json.RawMessage(`{"title":"Vansh Vriksh"}`)},
	}}
	local := localstore.NewMemory()
	c := newCatalog(t, r, local)

	b := c.Load(context.Background(), "hn")
	assert.Equal(t, "Vansh Vriksh", b.T(AppTitle))
	c.Load(context.Background(), "hn")
	assert.Equal(t, 1, r.calls)

	raw, ok, err := local.Get("translations_hn")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"Vansh Vriksh"}`, raw)
}

func TestCatalog_OfflineUsesSavedCopy(t *testing.T) {
	local := localstore.NewMemory()
	require.NoError(t, local.Set("translations_hn", `{"title":"Saved"}`))
	c := newCatalog(t, &fakeReader{err: errors.New("offline")}, local)

	assert.Equal(t, "Saved", c.Load(context.Background(), "hn").T(AppTitle))
	assert.Equal(t, AppTitle.Default(), c.Load(context.Background(), "fr").T(AppTitle))
}

func TestCatalog_MissingBundleGivesDefaults(t *testing.T) {
	c := newCatalog(t, &fakeReader{snaps: map[string]remote.Snapshot{}}, localstore.NewMemory())
	b := c.Load(context.Background(), "en")
	assert.Equal(t, "en", b.Lang())
	assert.Equal(t, AppTitle.Default(), b.T(AppTitle))
}

func TestCatalog_Preferred(t *testing.T) {
	local := localstore.NewMemory()
	c := newCatalog(t, nil, local)
	assert.Equal(t, "en", c.Preferred())

	require.NoError(t, c.SetPreferred("hn"))
	assert.Equal(t, "hn", c.Preferred())
	v, _, _ := local.Get("defaultLocale")
	assert.Equal(t, "hn", v)

	assert.Error(t, c.SetPreferred("../etc"))
	assert.Equal(t, "hn", c.Current(context.Background()).Lang())
}

type recordingWriter map[string]string

func (w recordingWriter) Write(_ context.Context, path string, value json.RawMessage) error {
	if strings.Contains(path, "fail") {
		return errors.New("boom")
	}
	w[path] = string(value)
	return nil
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hn.yaml"), []byte("title: Vansh Vriksh\nsignIn: Pravesh\n"), 0o600))

	w := recordingWriter{}
	n, err := Seed(context.Background(), w, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"title":"Vansh Vriksh","signIn":"Pravesh"}`, w["locale/hn"])

	_, err = Seed(context.Background(), w, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
