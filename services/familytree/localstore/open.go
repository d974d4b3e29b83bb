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
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
)

// Backend names a Store implementation in configuration.
type Backend string

const (
	BackendBadger Backend = "badger"
	BackendBolt   Backend = "bolt"
	BackendMemory Backend = "memory"
)

// Closer is a Store that holds resources.
type Closer interface {
	Store
	io.Closer
}

type nopCloser struct{ Store }

func (nopCloser) Close() error { return nil }

// Open returns the backend named by kind, rooted in dir.
func Open(kind Backend, dir string, logger *slog.Logger) (Closer, error) {
	switch kind {
	case BackendBadger, "":
		cfg := DefaultConfig(filepath.Join(dir, "local"))
		cfg.Logger = logger
		return OpenBadger(cfg)
	case BackendBolt:
		return OpenBolt(filepath.Join(dir, "local.db"))
	case BackendMemory:
		return nopCloser{NewMemory()}, nil
	default:
		return nil, fmt.Errorf("unknown local store backend %q", kind)
	}
}
