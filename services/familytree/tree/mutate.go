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

import (
	"slices"
	"time"

	"github.com/AleutianAI/familytree/services/familytree/dates"
	"github.com/AleutianAI/familytree/services/familytree/failure"
)

// DefaultRootName is the placeholder name of a freshly bootstrapped tree.
const DefaultRootName = "Root Person"

// AddRelation attaches a new person to selected.
//
// Description:
//
//	child   appends the new node to selected.Children.
//	sibling appends it to selected's parent. When selected is top-level
//	        the new node joins the forest, selected loses its root flag
//	        and the first top-level entry is designated root.
//	parent  puts the new node in selected's top-level slot with
//	        selected as its only child. Root stays with the first
//	        top-level entry, so the new node is root only when it
//	        lands in slot 0.
//
// Dates are normalized and the death dates of living people are cleared
// before the node is created. A node id is assigned when data has none.
//
// Outputs:
//
//	*Node - The node that was added.
//	error - failure.Validation for a nil selection, an empty name, an
//	        invalid record, an unknown kind or a parent requested above a
//	        nested node; failure.NotFound when selected is not in f.
//	        The forest is unchanged whenever an error is returned.
func (f *Forest) AddRelation(selected *Node, kind Relation, data Record) (*Node, error) {
	const op = "add relation"
	if selected == nil {
		return nil, failure.New(failure.Validation, op, ErrNoSelection)
	}
	if data.Name == "" {
		return nil, failure.New(failure.Validation, op, ErrEmptyName)
	}
	if err := Validate(data); err != nil {
		return nil, failure.New(failure.Validation, op, err)
	}

	prepared := Prepare(data)
	if prepared.Relation == "" {
		prepared.Relation = kind
	}

	switch kind {
	case Child:
		if !Contains(*f, selected) {
			return nil, failure.New(failure.NotFound, op, ErrNotInTree)
		}
		f.assignID(&prepared)
		n := NewNode(prepared)
		selected.Children = append(selected.Children, n)
		return n, nil

	case Sibling:
		if parent := FindParent(*f, selected); parent != nil {
			f.assignID(&prepared)
			n := NewNode(prepared)
			parent.Children = append(parent.Children, n)
			return n, nil
		}
		if !slices.Contains(*f, selected) {
			return nil, failure.New(failure.NotFound, op, ErrNotInTree)
		}
		f.assignID(&prepared)
		n := NewNode(prepared)
		*f = append(*f, n)
		selected.IsRoot = false
		f.designateRoot()
		return n, nil

	case Parent:
		i := slices.Index(*f, selected)
		if i < 0 {
			if Contains(*f, selected) {
				return nil, failure.New(failure.Validation, op, ErrNotTopLevel)
			}
			return nil, failure.New(failure.NotFound, op, ErrNotInTree)
		}
		f.assignID(&prepared)
		n := NewNode(prepared)
		n.Children = []*Node{selected}
		selected.IsRoot = false
		(*f)[i] = n
		f.designateRoot()
		return n, nil

	default:
		return nil, failure.New(failure.Validation, op, ErrUnknownRelation)
	}
}

// designateRoot flags the first top-level node as root and clears the
// flag on every other top-level node.
func (f Forest) designateRoot() {
	for i, n := range f {
		n.IsRoot = i == 0
	}
}

// EditRecord overwrites selected's record with data.
//
// Dates are normalized, DiedOn/PartnerDiedOn are cleared when the person or
// partner is alive, and the label follows the new name (an empty name
// clears it). The node id is kept when data carries none.
func EditRecord(selected *Node, data Record) error {
	const op = "edit record"
	if selected == nil {
		return failure.New(failure.Validation, op, ErrNoSelection)
	}
	if err := Validate(data); err != nil {
		return failure.New(failure.Validation, op, err)
	}

	prepared := Prepare(data)
	if prepared.NodeID == "" {
		prepared.NodeID = selected.Data.NodeID
	}
	selected.Label = prepared.Name
	selected.Data = prepared
	return nil
}

// DeleteSubtree removes target and everything below it.
//
// It refuses, returning false without touching the forest, when the whole
// forest holds one node or fewer. Otherwise it removes the first identity
// match found depth first and reports whether one was found.
func (f *Forest) DeleteSubtree(target *Node) bool {
	if target == nil || CountNodes(*f) <= 1 {
		return false
	}
	nodes := []*Node(*f)
	removed := RemoveNode(&nodes, target)
	*f = Forest(nodes)
	return removed
}

// Prepare returns data with every date normalized and the death dates of
// living people cleared.
func Prepare(data Record) Record {
	data.DOB = Date(dates.Normalize(string(data.DOB)))
	data.DiedOn = Date(dates.Normalize(string(data.DiedOn)))
	data.PartnerDOB = Date(dates.Normalize(string(data.PartnerDOB)))
	data.PartnerDiedOn = Date(dates.Normalize(string(data.PartnerDiedOn)))
	if data.IsAlive {
		data.DiedOn = ""
	}
	if data.PartnerIsAlive {
		data.PartnerDiedOn = ""
	}
	return data
}

// DefaultForest returns the single-node tree created for a user who has
// none: a living male placeholder born now.
func DefaultForest(now time.Time) Forest {
	root := NewNode(Record{
		NodeID:         NewNodeID(nil),
		Name:           DefaultRootName,
		Gender:         Male,
		DOB:            Date(dates.Normalize(now)),
		IsAlive:        true,
		PartnerIsAlive: true,
		Relation:       Parent,
	})
	root.IsRoot = true
	return Forest{root}
}
