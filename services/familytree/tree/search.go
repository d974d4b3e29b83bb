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

import "strings"

// Direction selects which way Cursor.Advance moves.
type Direction int

const (
	Next Direction = iota
	Prev
)

// DisplayText is the text a rendered node shows: the label, followed by
// the partner's name for married people.
func DisplayText(n *Node) string {
	text := n.Label
	if bool(n.Data.Married) && n.Data.PartnerName != "" {
		text += " & " + n.Data.PartnerName
	}
	return text
}

// FindMatches returns every node whose display text contains query,
// ignoring case, in document order. A blank query matches nothing.
func FindMatches(nodes []*Node, query string) []*Node {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var matches []*Node
	Walk(nodes, func(n *Node, _ int) bool {
		if strings.Contains(strings.ToLower(strings.TrimSpace(DisplayText(n))), query) {
			matches = append(matches, n)
		}
		return true
	})
	return matches
}

// Cursor steps through a list of search matches, wrapping at both ends.
// The zero value holds no matches.
type Cursor struct {
	matches []*Node
	index   int
}

// Reset replaces the matches and moves to the first one.
func (c *Cursor) Reset(matches []*Node) {
	c.matches = matches
	c.index = 0
}

// Len returns the number of matches.
func (c *Cursor) Len() int {
	return len(c.matches)
}

// Index returns the position of the current match, or -1 with no matches.
func (c *Cursor) Index() int {
	if len(c.matches) == 0 {
		return -1
	}
	return c.index
}

// Current returns the current match, or nil.
func (c *Cursor) Current() *Node {
	if len(c.matches) == 0 {
		return nil
	}
	return c.matches[c.index]
}

// Advance moves one match in direction d, modulo the match count, and
// returns the new current match.
func (c *Cursor) Advance(d Direction) *Node {
	n := len(c.matches)
	if n == 0 {
		return nil
	}
	switch d {
	case Prev:
		c.index = (c.index - 1 + n) % n
	default:
		c.index = (c.index + 1) % n
	}
	return c.matches[c.index]
}

// IsMatch reports whether n is among the current matches.
func (c *Cursor) IsMatch(n *Node) bool {
	for _, m := range c.matches {
		if m == n {
			return true
		}
	}
	return false
}
