// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type calls struct {
	mu    sync.Mutex
	paths []string
}

func (c *calls) record(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
	if filepath.Base(path) == "broken.json" {
		return errors.New("not a tree")
	}
	return nil
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestImportWatcher_ImportsSettledFiles(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	var c calls
	w, err := New(dir, c.record, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	target := filepath.Join(dir, "family-tree.json")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte("[]"), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("[]"), 0o600))

	assert.Eventually(t, func() bool { return w.Imported() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{target}, c.list(), "repeated writes collapse into one import")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600))
	assert.Eventually(t, func() bool { return len(c.list()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, w.Imported())

	w.Stop()
}

func TestImportWatcher_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	w, err := New(t.TempDir(), func(string) error { return nil }, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx), "second start is a no-op")
	cancel()
	w.Stop()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(t.TempDir(), nil, Options{})
	assert.Error(t, err)
}

func TestStart_MissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), func(string) error { return nil }, Options{})
	require.NoError(t, err)
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}
