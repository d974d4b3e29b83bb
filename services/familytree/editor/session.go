// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package editor is the session that owns a user's tree.
//
// A Session holds the in-memory forest, the current selection and the
// search cursor. Every method takes the session lock, so mutations run one
// at a time and inbound snapshots from the store are merged between them,
// never during one. After each successful mutation the forest is handed
// to the sync coordinator, which writes it locally and pushes it in the
// background.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/AleutianAI/familytree/services/familytree/auth"
	"github.com/AleutianAI/familytree/services/familytree/codec"
	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/remote"
	"github.com/AleutianAI/familytree/services/familytree/syncer"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

// ErrUnknownNode is returned by Select for an unknown node id.
var ErrUnknownNode = errors.New("no person with that id")

// Session is one user's editing session.
//
// Thread Safety: safe for concurrent use.
type Session struct {
	coord  *syncer.Coordinator
	auth   auth.Authenticator
	logger *slog.Logger

	mu        sync.Mutex
	forest    tree.Forest
	selected  *tree.Node
	query     string
	cursor    tree.Cursor
	stopWatch func()
}

// NewSession starts a session over forest with the root selected.
func NewSession(forest tree.Forest, coord *syncer.Coordinator, authn auth.Authenticator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		coord:  coord,
		auth:   authn,
		logger: logger.With(slog.String("component", "editor")),
		forest: forest,
	}
	s.selected = top(forest)
	return s
}

// View calls fn with the forest and the selected node under the session
// lock. fn must not keep references or call back into the session.
func (s *Session) View(fn func(forest tree.Forest, selected *tree.Node)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.forest, s.selected)
}

// Count returns the number of people in the tree.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tree.CountNodes(s.forest)
}

// Select makes the person with nodeID the selection.
func (s *Session) Select(nodeID string) (*tree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.forest.FindByID(nodeID)
	if n == nil {
		return nil, failure.New(failure.NotFound, "editor.Select", fmt.Errorf("%w: %s", ErrUnknownNode, nodeID))
	}
	s.selected = n
	return n, nil
}

// Selected returns the selected node, or nil.
func (s *Session) Selected() *tree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Add attaches a new person to the selection and commits. The new person
// becomes the selection.
func (s *Session) Add(kind tree.Relation, data tree.Record) (*tree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.forest.AddRelation(s.selected, kind, data)
	if err != nil {
		return nil, err
	}
	s.selected = n
	s.refreshSearch()
	return n, s.commit()
}

// Edit replaces the selected person's record and commits.
func (s *Session) Edit(data tree.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edit(data)
}

// EditIfChanged edits only when data differs from the stored record once
// both are normalized. It reports whether an edit was made.
func (s *Session) EditIfChanged(data tree.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return false, failure.New(failure.Validation, "editor.EditIfChanged", tree.ErrNoSelection)
	}
	if data.NodeID == "" {
		data.NodeID = s.selected.Data.NodeID
	}
	if tree.Prepare(data) == tree.Prepare(s.selected.Data) {
		return false, nil
	}
	if err := s.edit(data); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) edit(data tree.Record) error {
	if s.selected == nil {
		return failure.New(failure.Validation, "editor.Edit", tree.ErrNoSelection)
	}
	if data.NodeID == "" {
		data.NodeID = s.selected.Data.NodeID
	}
	if err := tree.EditRecord(s.selected, data); err != nil {
		return err
	}
	s.refreshSearch()
	return s.commit()
}

// Delete removes the selected person and everyone below them. The last
// person in the tree cannot be deleted.
func (s *Session) Delete() error {
	const op = "editor.Delete"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return failure.New(failure.Validation, op, tree.ErrNoSelection)
	}
	if !s.forest.DeleteSubtree(s.selected) {
		if tree.CountNodes(s.forest) <= 1 {
			return failure.New(failure.Guard, op, tree.ErrLastNode)
		}
		return failure.New(failure.NotFound, op, tree.ErrNotInTree)
	}
	s.selected = top(s.forest)
	s.refreshSearch()
	return s.commit()
}

// Import replaces the tree with the JSON array read from r and commits,
// which pushes it when someone is signed in.
func (s *Session) Import(r io.Reader) error {
	forest, err := codec.DecodeImport(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest = forest
	s.selected = top(forest)
	s.refreshSearch()
	s.logger.Info("tree imported", slog.Int("nodes", tree.CountNodes(forest)))
	return s.commit()
}

// Export writes the canonical tree to w.
func (s *Session) Export(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return codec.Export(w, s.forest)
}

// Search resets the match cursor for query and returns the first match
// and the number of matches.
func (s *Session) Search(query string) (*tree.Node, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.cursor.Reset(tree.FindMatches(s.forest, query))
	return s.cursor.Current(), s.cursor.Len()
}

// Next moves to the next match, wrapping around.
func (s *Session) Next() *tree.Node {
	return s.advance(tree.Next)
}

// Prev moves to the previous match, wrapping around.
func (s *Session) Prev() *tree.Node {
	return s.advance(tree.Prev)
}

func (s *Session) advance(d tree.Direction) *tree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Advance(d)
}

// Match returns the current match, its zero-based position and the match
// count.
func (s *Session) Match() (*tree.Node, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Current(), s.cursor.Index(), s.cursor.Len()
}

// IsMatch reports whether n is among the current matches.
func (s *Session) IsMatch(n *tree.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.IsMatch(n)
}

// refreshSearch reruns the current query after the tree changed, so the
// cursor never points at a removed node.
func (s *Session) refreshSearch() {
	if s.query != "" {
		s.cursor.Reset(tree.FindMatches(s.forest, s.query))
	}
}

// Watch merges inbound snapshots of the user's tree until ctx is done or
// the session is closed.
func (s *Session) Watch(ctx context.Context) error {
	stop, err := s.coord.Watch(ctx, s.merge)
	if err != nil {
		return err
	}
	s.mu.Lock()
	prev := s.stopWatch
	s.stopWatch = stop
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

func (s *Session) merge(snap remote.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	forest, replaced := s.coord.Merge(snap, s.forest)
	if !replaced {
		return
	}
	var keep string
	if s.selected != nil {
		keep = s.selected.Data.NodeID
	}
	s.forest = forest
	s.selected = nil
	if keep != "" {
		s.selected = forest.FindByID(keep)
	}
	if s.selected == nil {
		s.selected = top(forest)
	}
	s.refreshSearch()
}

// Logout pushes the tree once more, waits for that push, and then signs
// out. A failed final push is logged; the change stays pending locally.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	fut, err := s.coord.Push(s.forest)
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if err != nil && !errors.Is(err, syncer.ErrNoUser) {
		s.logger.Warn("final push not started", slog.String("error", err.Error()))
	}
	if fut != nil {
		if res, werr := fut.Wait(ctx); werr != nil || res.Err != nil {
			s.logger.Warn("final push failed", slog.Any("error", errors.Join(werr, res.Err)))
		}
	}
	return s.auth.Logout(ctx)
}

// Close stops the inbound subscription.
func (s *Session) Close() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// commit hands the forest to the coordinator. Called with s.mu held.
// Without a signed-in user the tree is still saved locally.
func (s *Session) commit() error {
	_, err := s.coord.Commit(s.forest)
	if errors.Is(err, syncer.ErrNoUser) {
		s.logger.Debug("saved locally only, nobody is signed in")
		return nil
	}
	return err
}

// top returns the root-flagged node, or the first top-level node when
// none is flagged.
func top(forest tree.Forest) *tree.Node {
	if n := forest.Root(); n != nil {
		return n
	}
	if len(forest) > 0 {
		return forest[0]
	}
	return nil
}
