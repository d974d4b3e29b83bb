// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote is the real-time document store that trees are synced
// to.
//
// The contract is deliberately narrow. A path holds one JSON value which
// is read, overwritten wholesale, or watched:
//
//	Read(ctx, "trees/u1")                 -> Snapshot
//	Write(ctx, "trees/u1", value)         -> error
//	Subscribe(ctx, "trees/u1", fn)        -> unsubscribe
//
// Two path kinds exist. trees/{userId} holds a user's forest and is only
// reachable by that user; locale/{lang} holds a translation bundle and is
// readable by anyone.
//
// Hub is the in-process implementation the treestore server runs. Client
// talks to a treestore server over HTTP and a websocket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Path kinds.
const (
	KindTrees  = "trees"
	KindLocale = "locale"
)

var (
	// ErrInvalidPath is returned for paths outside the two known kinds.
	ErrInvalidPath = errors.New("invalid store path")

	// ErrForbidden is returned when a caller touches a path it does not
	// own.
	ErrForbidden = errors.New("path belongs to another user")

	// ErrInvalidValue is returned for writes that are not valid JSON.
	ErrInvalidValue = errors.New("value is not valid JSON")

	// ErrClosed is returned by a closed hub.
	ErrClosed = errors.New("store is closed")
)

// Snapshot is the value at a path at one moment. A missing value has
// Exists false and a nil Value.
type Snapshot struct {
	Path   string          `json:"path"`
	Exists bool            `json:"exists"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Store is the remote real-time store.
type Store interface {
	// Read returns the current value at path.
	Read(ctx context.Context, path string) (Snapshot, error)

	// Write replaces the value at path. A JSON null removes it.
	Write(ctx context.Context, path string, value json.RawMessage) error

	// Subscribe calls fn with the current value at path and then with
	// every later value, in write order, on a goroutine owned by the
	// store. Slow subscribers may miss intermediate values but always
	// receive the latest one. The subscription ends when unsubscribe is
	// called or ctx is done.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (unsubscribe func(), err error)
}

// Path is a parsed store path.
type Path struct {
	Kind string
	ID   string
}

func (p Path) String() string {
	return p.Kind + "/" + p.ID
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ParsePath validates s. Leading and trailing slashes are ignored.
func ParsePath(s string) (Path, error) {
	kind, id, ok := strings.Cut(strings.Trim(s, "/"), "/")
	if !ok || (kind != KindTrees && kind != KindLocale) || !idPattern.MatchString(id) {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	return Path{Kind: kind, ID: id}, nil
}

// TreePath returns the path of a user's tree.
func TreePath(userID string) string {
	return KindTrees + "/" + userID
}

// LocalePath returns the path of a translation bundle.
func LocalePath(lang string) string {
	return KindLocale + "/" + lang
}

// Authorize applies the ownership rule: a user may read and write only
// trees/{own id}; anyone may read locale bundles; nobody writes them
// through the API.
func Authorize(p Path, userID string, write bool) error {
	switch p.Kind {
	case KindTrees:
		if userID == "" || p.ID != userID {
			return ErrForbidden
		}
		return nil
	case KindLocale:
		if write {
			return ErrForbidden
		}
		return nil
	default:
		return ErrInvalidPath
	}
}
