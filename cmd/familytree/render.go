// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"strings"

	ltree "github.com/charmbracelet/lipgloss/tree"

	"github.com/AleutianAI/familytree/pkg/ux"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

// chartOptions control how renderChart marks nodes.
type chartOptions struct {
	Rich     bool
	Selected *tree.Node
	IsMatch  func(*tree.Node) bool
}

// renderChart draws the forest as an indented chart, one person per line:
//
//	Root Person [123456]
//	├── Alice & Bob [234567]
//	│   └── Carol [345678]
//	╰── Dan [456789]
func renderChart(forest tree.Forest, o chartOptions) string {
	var b strings.Builder
	for _, n := range forest {
		switch t := o.subtree(n).(type) {
		case *ltree.Tree:
			b.WriteString(t.String())
		case string:
			b.WriteString(t)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (o chartOptions) subtree(n *tree.Node) any {
	label := o.label(n)
	if len(n.Children) == 0 {
		return label
	}
	t := ltree.Root(label)
	for _, c := range n.Children {
		t.Child(o.subtree(c))
	}
	o.decorate(t)
	return t
}

func (o chartOptions) decorate(t *ltree.Tree) {
	t.Enumerator(ltree.RoundedEnumerator)
	if o.Rich {
		t.EnumeratorStyle(ux.Styles.Muted.PaddingRight(1))
	}
}

// label is the display text plus the node id. Matches and the selection
// are styled in rich mode and marked with * and > otherwise.
func (o chartOptions) label(n *tree.Node) string {
	text := tree.DisplayText(n)
	if text == "" {
		text = "(unnamed)"
	}
	id := "[" + n.Data.NodeID + "]"
	match := o.IsMatch != nil && o.IsMatch(n)
	selected := o.Selected == n

	if !o.Rich {
		if match {
			text = "*" + text
		}
		if selected {
			text = "> " + text
		}
		return text + " " + id
	}

	switch {
	case match:
		text = ux.Styles.Highlight.Render(text)
	case selected:
		text = ux.Styles.Selected.Render(text)
	case n.IsRoot:
		text = ux.Styles.Bold.Render(text)
	}
	return text + " " + ux.Styles.Muted.Render(id)
}
