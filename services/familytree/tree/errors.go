// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import "errors"

// Mutation errors. Every one of them leaves the forest untouched.
var (
	// ErrNoSelection indicates that no node was selected.
	ErrNoSelection = errors.New("no node selected")

	// ErrEmptyName indicates that a new person was submitted without a name.
	ErrEmptyName = errors.New("name is required")

	// ErrInvalidRecord indicates that a record failed field validation.
	ErrInvalidRecord = errors.New("invalid person record")

	// ErrUnknownRelation indicates a relation kind other than parent,
	// sibling or child.
	ErrUnknownRelation = errors.New("unknown relation kind")

	// ErrNotTopLevel indicates that a parent was added above a node that
	// already has one.
	ErrNotTopLevel = errors.New("parent can only be added above a top-level node")

	// ErrNotInTree indicates that the selected node is not part of the forest.
	ErrNotInTree = errors.New("node is not part of the tree")

	// ErrLastNode indicates that the only remaining person cannot be deleted.
	ErrLastNode = errors.New("cannot delete the last person in the tree")
)
