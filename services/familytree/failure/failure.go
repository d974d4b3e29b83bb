// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package failure classifies the errors produced by the family tree core.
//
// Every operation that can fail returns a plain Go error. When the caller
// needs to know which category a failure belongs to (to pick a user-facing
// message, to decide whether to retry, to count it in metrics) it asks
// KindOf instead of matching strings:
//
//	if failure.KindOf(err) == failure.Network {
//	    // leave the pending flag set, the next reconnect retries
//	}
package failure

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// Unknown is returned by KindOf for errors that were never classified.
	Unknown Kind = iota

	// Validation covers rejected input: empty names, unknown relation
	// kinds, malformed import files.
	Validation

	// Auth covers sign-in, sign-up and session failures.
	Auth

	// Network covers failed pushes and reads against the remote store.
	Network

	// Guard covers operations refused to protect an invariant, such as
	// deleting the last remaining person.
	Guard

	// NotFound covers lookups for nodes, paths or users that do not exist.
	NotFound
)

// String returns the lower-case name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Auth:
		return "auth"
	case Network:
		return "network"
	case Guard:
		return "guard"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the name of the failing operation to an
// underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with a kind and operation name. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
