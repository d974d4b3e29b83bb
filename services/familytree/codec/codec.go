// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codec converts forests to and from their persisted JSON form.
//
// Two encodings exist. The raw encoding (Encode) is the in-memory tree as
// it stands and is what local storage keeps. The canonical encoding
// (Marshal) first runs SerializeTree, which normalizes every date and
// fills every default, and is what the remote store receives. Inbound
// snapshots are compared against local state in canonical form only.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AleutianAI/familytree/services/familytree/dates"
	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

const (
	// ExportFileName is the name given to downloaded trees.
	ExportFileName = "family-tree.json"

	// ExportMIMEType is the content type of an exported tree.
	ExportMIMEType = "application/json"
)

var (
	// ErrNotArray is returned for imports whose top-level value is not a
	// JSON array.
	ErrNotArray = errors.New("tree data is not a JSON array")

	// ErrEmptyImport is returned when the import source holds no data.
	ErrEmptyImport = errors.New("tree data is empty")
)

// Serializer produces canonical forests. The zero value normalizes dates
// in time.Local.
type Serializer struct {
	Dates dates.Normalizer
}

// SerializeTree returns a canonical deep copy of nodes using time.Local.
func SerializeTree(nodes []*tree.Node) tree.Forest {
	return Serializer{}.Tree(nodes)
}

// Tree returns a deep copy of nodes with every date in canonical form,
// every children list non-nil and death dates of living people cleared.
// The input is not modified. Nil entries are dropped.
func (s Serializer) Tree(nodes []*tree.Node) tree.Forest {
	out := make(tree.Forest, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		out = append(out, s.node(n))
	}
	return out
}

func (s Serializer) node(n *tree.Node) *tree.Node {
	return &tree.Node{
		Label:      n.Label,
		Type:       n.Type,
		StyleClass: n.StyleClass,
		IsRoot:     n.IsRoot,
		Expanded:   n.Expanded,
		Data:       s.record(n.Data),
		Children:   s.Tree(n.Children),
	}
}

func (s Serializer) record(r tree.Record) tree.Record {
	r.DOB = s.date(r.DOB)
	r.DiedOn = s.date(r.DiedOn)
	r.PartnerDOB = s.date(r.PartnerDOB)
	r.PartnerDiedOn = s.date(r.PartnerDiedOn)
	if r.IsAlive {
		r.DiedOn = ""
	}
	if r.PartnerIsAlive {
		r.PartnerDiedOn = ""
	}
	return r
}

func (s Serializer) date(d tree.Date) tree.Date {
	return tree.Date(s.Dates.Normalize(string(d)))
}

// Marshal returns the canonical JSON encoding of nodes.
func Marshal(nodes []*tree.Node) ([]byte, error) {
	data, err := json.Marshal(SerializeTree(nodes))
	if err != nil {
		return nil, fmt.Errorf("marshal tree: %w", err)
	}
	return data, nil
}

// Encode returns the raw JSON encoding of nodes, without normalization.
func Encode(nodes []*tree.Node) ([]byte, error) {
	if nodes == nil {
		nodes = []*tree.Node{}
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a forest from JSON. A JSON null decodes as an empty
// forest and null entries in any node array are dropped.
func Unmarshal(data []byte) (tree.Forest, error) {
	var f tree.Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, failure.New(failure.Validation, "codec.Unmarshal", err)
	}
	return tree.Compact(f), nil
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(a, b []*tree.Node) bool {
	ma, errA := Marshal(a)
	mb, errB := Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ma, mb)
}

// EqualJSON reports whether the JSON snapshot data holds the same tree as
// local, comparing canonical encodings. Undecodable data is never equal.
func EqualJSON(data []byte, local []*tree.Node) bool {
	remote, err := Unmarshal(data)
	if err != nil {
		return false
	}
	return Equal(remote, local)
}

// DecodeImport reads a user supplied tree file. Any JSON array is
// accepted; fields that are missing from a node take their zero values
// and null entries are dropped.
// A top-level value that is not an array fails with ErrNotArray.
func DecodeImport(r io.Reader) (tree.Forest, error) {
	const op = "codec.DecodeImport"

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, failure.New(failure.Validation, op, fmt.Errorf("read import: %w", err))
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, failure.New(failure.Validation, op, ErrEmptyImport)
	}
	if data[0] != '[' {
		return nil, failure.New(failure.Validation, op, ErrNotArray)
	}

	var f tree.Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, failure.New(failure.Validation, op, fmt.Errorf("decode import: %w", err))
	}
	f = tree.Compact(f)
	if f == nil {
		f = tree.Forest{}
	}
	return f, nil
}

// Export writes the canonical, indented JSON encoding of nodes to w.
func Export(w io.Writer, nodes []*tree.Node) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(SerializeTree(nodes)); err != nil {
		return fmt.Errorf("export tree: %w", err)
	}
	return nil
}
