// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_ConsoleFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf, Service: "familytree"})
	defer logger.Close()

	logger.Slog().Info("push started")
	logger.Slog().Warn("push failed", "user_id", "u1")

	out := buf.String()
	assert.NotContains(t, out, "push started")
	assert.Contains(t, out, "push failed")
	assert.Contains(t, out, "service=familytree")
	assert.Contains(t, out, "user_id=u1")
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})
	defer logger.Close()

	logger.Slog().Info("tree saved", "nodes", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "tree saved", rec["msg"])
	assert.EqualValues(t, 3, rec["nodes"])
}

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Config{LogDir: dir, Service: "treestore", Quiet: true})

	logger.Slog().Info("listening", "addr", ":8420")
	require.NoError(t, logger.Close())

	name := "treestore_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"listening"`))
	assert.True(t, strings.Contains(string(data), `"service":"treestore"`))
}

func TestNew_QuietWithoutFileDiscards(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	assert.NotPanics(t, func() { logger.Slog().Error("nowhere") })
}

func TestExporter_ReceivesEntries(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Quiet: true, Exporter: exp, Service: "familytree"})

	child := logger.Slog().With("user_id", "u1").WithGroup("sync")
	child.Debug("dropped")
	child.Warn("push failed", "attempt", 2)
	require.NoError(t, logger.Close())

	entries := exp.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "push failed", e.Message)
	assert.Equal(t, LevelWarn, e.Level)
	assert.Equal(t, "familytree", e.Service)
	assert.Equal(t, "u1", e.Attrs["user_id"])
	assert.EqualValues(t, 2, e.Attrs["sync.attempt"])
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true, Exporter: NewBufferedExporter()})

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestDefault(t *testing.T) {
	logger := Default("familytree")
	defer logger.Close()

	assert.True(t, logger.Slog().Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, logger.Slog().Enabled(t.Context(), slog.LevelDebug))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".familytree/logs"), expandPath("~/.familytree/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
