// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree holds the in-memory family tree and the operations that
// change it.
//
// # Model
//
// A tree is a Forest: an ordered sequence of top-level Nodes, each owning
// its Children. Normally there is exactly one top-level node, flagged
// IsRoot. There are no parent pointers; FindParent walks the forest.
//
//	Forest
//	  └── Root Person (IsRoot)
//	        ├── Alice
//	        │     └── Carol
//	        └── Bob
//
// # Mutations
//
// AddRelation, EditRecord and DeleteSubtree change the forest in place and
// run to completion synchronously. Identity is pointer identity: two nodes
// holding equal records are still different people.
//
// # Thread Safety
//
// Nothing in this package locks. A Forest has exactly one writer; see the
// editor package for the session that owns it.
package tree

import "slices"

// NodeType is the only node type the chart renders.
const NodeType = "person"

// StyleClass is the presentation class given to new nodes.
const StyleClass = "p-person"

// Gender of a person. The empty value means "not recorded".
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
	Other  Gender = "Other"
)

// Relation describes how a new node attaches to the selected one.
// The empty value means "not recorded".
type Relation string

const (
	Parent  Relation = "parent"
	Sibling Relation = "sibling"
	Child   Relation = "child"
)

// Date is a calendar date as stored on a record. It holds either the raw
// value a caller supplied or the canonical YYYY-MM-DD form; the empty
// string is "no date".
type Date string

// Record is the person data attached to a node.
type Record struct {
	NodeID         string   `json:"nodeId,omitempty"`
	Name           string   `json:"name" validate:"max=200"`
	Gender         Gender   `json:"gender" validate:"omitempty,oneof=Male Female Other"`
	DOB            Date     `json:"dob"`
	IsAlive        bool     `json:"isAlive"`
	DiedOn         Date     `json:"diedOn"`
	Married        YesNo    `json:"married"`
	PartnerName    string   `json:"partnerName" validate:"max=200"`
	PartnerDOB     Date     `json:"partnerDob"`
	PartnerIsAlive bool     `json:"partnerIsAlive"`
	PartnerDiedOn  Date     `json:"partnerDiedOn"`
	Relation       Relation `json:"relation" validate:"omitempty,oneof=parent sibling child"`
}

// Node is one person in the chart.
type Node struct {
	Label      string  `json:"label"`
	Type       string  `json:"type,omitempty"`
	StyleClass string  `json:"styleClass,omitempty"`
	IsRoot     bool    `json:"isRootNode,omitempty"`
	Expanded   bool    `json:"expanded"`
	Data       Record  `json:"data"`
	Children   []*Node `json:"children"`
}

// Forest is the top-level node sequence.
type Forest []*Node

// NewNode builds an expanded, childless person node for data.
func NewNode(data Record) *Node {
	return &Node{
		Label:      data.Name,
		Type:       NodeType,
		StyleClass: StyleClass,
		Expanded:   true,
		Data:       data,
		Children:   []*Node{},
	}
}

// Compact removes nil entries from nodes and from every children list
// below them, in place, and returns the shortened slice. Nil lists stay
// nil.
func Compact(nodes []*Node) []*Node {
	nodes = slices.DeleteFunc(nodes, func(n *Node) bool { return n == nil })
	for _, n := range nodes {
		n.Children = Compact(n.Children)
	}
	return nodes
}

// CountNodes returns the number of nodes reachable from nodes. Nil entries
// are not counted.
func CountNodes(nodes []*Node) int {
	count := 0
	for _, n := range nodes {
		if n == nil {
			continue
		}
		count++
		count += CountNodes(n.Children)
	}
	return count
}

// FindParent returns the node whose Children directly contains child, or
// nil when child is top-level or absent.
func FindParent(nodes []*Node, child *Node) *Node {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if slices.Contains(n.Children, child) {
			return n
		}
		if p := FindParent(n.Children, child); p != nil {
			return p
		}
	}
	return nil
}

// RemoveNode removes the first occurrence of target from *nodes or any
// descendant children list, depth first. It reports whether target was
// found.
func RemoveNode(nodes *[]*Node, target *Node) bool {
	if i := slices.Index(*nodes, target); i >= 0 {
		*nodes = slices.Delete(*nodes, i, i+1)
		return true
	}
	for _, n := range *nodes {
		if n != nil && RemoveNode(&n.Children, target) {
			return true
		}
	}
	return false
}

// Contains reports whether target is reachable from nodes.
func Contains(nodes []*Node, target *Node) bool {
	found := false
	Walk(nodes, func(n *Node, _ int) bool {
		found = n == target
		return !found
	})
	return found
}

// Walk visits nodes in document order (pre-order, children left to right),
// skipping nil entries. Returning false from fn stops the walk.
func Walk(nodes []*Node, fn func(n *Node, depth int) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int) bool) bool {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if !fn(n, depth) {
			return false
		}
		if !walk(n.Children, depth+1, fn) {
			return false
		}
	}
	return true
}

// FindByID returns the node whose record carries id, or nil.
func (f Forest) FindByID(id string) *Node {
	var found *Node
	Walk(f, func(n *Node, _ int) bool {
		if n.Data.NodeID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Count returns CountNodes(f).
func (f Forest) Count() int {
	return CountNodes(f)
}

// Root returns the top-level node flagged IsRoot, or nil.
func (f Forest) Root() *Node {
	for _, n := range f {
		if n != nil && n.IsRoot {
			return n
		}
	}
	return nil
}
