// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package syncer keeps a user's tree in step with local storage and the
// remote store.
//
// Every local mutation is committed here. The raw tree is written to local
// storage before anything else happens, so local reads are always fresh.
// When the store is reachable the canonical tree is then pushed wholesale
// to trees/{userId} on a tracked goroutine; the caller never waits for it.
// When it is not, a pending flag is set and the push happens on the next
// online transition.
//
// Inbound snapshots from a subscription replace the in-memory tree only
// when their canonical encoding differs. Conflicts resolve as last write
// wins.
//
// State machine:
//
//	Idle ──commit, online──▶ Syncing ──done──▶ Idle
//	Idle ──commit, offline─▶ OfflinePending ──online──▶ Syncing
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/familytree/services/familytree/codec"
	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/observability"
	"github.com/AleutianAI/familytree/services/familytree/remote"
	"github.com/AleutianAI/familytree/services/familytree/telemetry"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

const tracerName = "familytree/syncer"

var (
	// ErrNoUser is returned by Commit when nobody is signed in. The tree
	// is still written locally.
	ErrNoUser = errors.New("no signed-in user")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sync coordinator is closed")
)

// State is the coordinator's sync state.
type State int

const (
	Idle State = iota
	Syncing
	OfflinePending
)

var stateNames = []string{"idle", "syncing", "offline_pending"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Result describes a finished push.
type Result struct {
	Path    string
	Bytes   int
	Elapsed time.Duration
	Err     error
}

// Future resolves when a push finishes. It exists for telemetry and
// shutdown; user actions never wait on it.
type Future struct {
	done   chan struct{}
	result Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(r Result) {
	f.result = r
	close(f.done)
}

// Done is closed when the push has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the push finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Options configures a Coordinator. Local, Remote, UserID and Net are
// required.
type Options struct {
	Keys   config.StorageKeys
	Local  localstore.Store
	Remote remote.Store
	UserID func() string
	Net    Connectivity

	// Timeout bounds a single push. Defaults to 10s.
	Timeout time.Duration

	// OnPushDone is called after every push, on the push goroutine.
	OnPushDone func(Result)

	Metrics *observability.SyncMetrics
	Logger  *slog.Logger
}

// Coordinator runs the sync state machine for one editor session.
//
// Thread Safety: safe for concurrent use.
type Coordinator struct {
	opts Options

	mu     sync.Mutex
	state  State
	gen    uint64
	pushes int
	closed bool

	wg      sync.WaitGroup
	stopNet func()
	logger  *slog.Logger
}

// New builds a coordinator and starts watching connectivity.
func New(opts Options) (*Coordinator, error) {
	if opts.Local == nil || opts.Remote == nil || opts.UserID == nil || opts.Net == nil {
		return nil, errors.New("syncer: Local, Remote, UserID and Net are required")
	}
	if opts.Keys == (config.StorageKeys{}) {
		opts.Keys = config.DefaultStorageKeys()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	c := &Coordinator{
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "syncer")),
	}
	if pending, _ := localstore.GetFlag(opts.Local, opts.Keys.PendingSync); pending {
		c.state = OfflinePending
	}
	c.reportState()
	if opts.Metrics != nil {
		opts.Metrics.SetPending(c.state == OfflinePending)
	}
	c.stopNet = opts.Net.Watch(func(online bool) {
		if online {
			if _, err := c.Flush(); err != nil && !errors.Is(err, ErrClosed) {
				c.logger.Warn("reconnect flush failed", slog.String("error", err.Error()))
			}
		}
	})
	return c, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports whether local changes are waiting for a push.
func (c *Coordinator) Pending() bool {
	pending, err := localstore.GetFlag(c.opts.Local, c.opts.Keys.PendingSync)
	return err == nil && pending
}

// Commit records a local mutation. It writes forest to local storage and
// then either dispatches a push or marks the change pending. The returned
// Future is nil when no push was dispatched.
func (c *Coordinator) Commit(forest tree.Forest) (*Future, error) {
	const op = "syncer.Commit"

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	raw, err := codec.Encode(forest)
	if err != nil {
		return nil, failure.New(failure.Validation, op, err)
	}
	if err := c.opts.Local.Set(c.opts.Keys.Tree, string(raw)); err != nil {
		return nil, fmt.Errorf("%s: save tree: %w", op, err)
	}

	uid := c.opts.UserID()
	if uid == "" {
		c.countCommit("local")
		return nil, failure.New(failure.Auth, op, ErrNoUser)
	}

	if !c.opts.Net.Online() {
		c.mu.Lock()
		err := c.setPending(true)
		if err == nil {
			c.state = OfflinePending
		}
		c.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.reportState()
		c.countCommit("offline")
		c.logger.Info("offline, change queued")
		return nil, nil
	}

	data, err := codec.Marshal(forest)
	if err != nil {
		return nil, failure.New(failure.Validation, op, err)
	}
	c.countCommit("online")
	return c.dispatch(uid, data, gen)
}

// Flush pushes the locally stored tree when a change is pending and the
// store is reachable. The Future is nil when nothing was pushed.
func (c *Coordinator) Flush() (*Future, error) {
	const op = "syncer.Flush"

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	gen := c.gen
	c.mu.Unlock()

	if !c.Pending() || !c.opts.Net.Online() {
		return nil, nil
	}
	uid := c.opts.UserID()
	if uid == "" {
		return nil, failure.New(failure.Auth, op, ErrNoUser)
	}
	raw, ok, err := c.opts.Local.Get(c.opts.Keys.Tree)
	if err != nil {
		return nil, fmt.Errorf("%s: load tree: %w", op, err)
	}
	if !ok {
		return nil, nil
	}
	forest, err := codec.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := codec.Marshal(forest)
	if err != nil {
		return nil, failure.New(failure.Validation, op, err)
	}
	return c.dispatch(uid, data, gen)
}

// Push sends forest to the store regardless of the pending flag. It is
// used before sign-out so the last state reaches the server while the
// session is still valid.
func (c *Coordinator) Push(forest tree.Forest) (*Future, error) {
	const op = "syncer.Push"

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	gen := c.gen
	c.mu.Unlock()

	uid := c.opts.UserID()
	if uid == "" {
		return nil, failure.New(failure.Auth, op, ErrNoUser)
	}
	if !c.opts.Net.Online() {
		return nil, nil
	}
	data, err := codec.Marshal(forest)
	if err != nil {
		return nil, failure.New(failure.Validation, op, err)
	}
	return c.dispatch(uid, data, gen)
}

// dispatch starts a push of data. gen is the commit generation the data
// reflects; only a push of the latest generation clears the pending flag.
func (c *Coordinator) dispatch(uid string, data []byte, gen uint64) (*Future, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pushes++
	c.state = Syncing
	c.wg.Add(1)
	c.mu.Unlock()
	c.reportState()

	f := newFuture()
	path := remote.TreePath(uid)
	if c.opts.Metrics != nil {
		c.opts.Metrics.PushStarted()
	}
	go func() {
		defer c.wg.Done()
		res := c.push(path, data)
		c.finish(res, gen)
		f.resolve(res)
		if c.opts.OnPushDone != nil {
			c.opts.OnPushDone(res)
		}
	}()
	return f, nil
}

func (c *Coordinator) push(path string, data []byte) Result {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "syncer.Push")
	defer span.End()
	span.SetAttributes(attribute.String("path", path), attribute.Int("bytes", len(data)))

	start := time.Now()
	err := c.opts.Remote.Write(ctx, path, data)
	res := Result{Path: path, Bytes: len(data), Elapsed: time.Since(start)}
	if err != nil {
		res.Err = failure.New(failure.Network, "syncer.Push", err)
		telemetry.RecordError(span, err)
		telemetry.LoggerWithTrace(ctx, c.logger).Warn("push failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	} else {
		telemetry.SetSpanOK(span)
		c.logger.Debug("push done", slog.String("path", path), slog.Duration("elapsed", res.Elapsed))
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.PushDone(err, res.Elapsed)
	}
	return res
}

func (c *Coordinator) finish(res Result, gen uint64) {
	c.mu.Lock()
	var err error
	switch {
	case res.Err != nil:
		err = c.setPending(true)
	case gen == c.gen:
		err = c.setPending(false)
	}
	c.pushes--
	if c.pushes == 0 && c.state == Syncing {
		c.state = Idle
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed to update pending flag", slog.String("error", err.Error()))
	}
	c.reportState()
}

// Watch subscribes fn to the signed-in user's tree path.
func (c *Coordinator) Watch(ctx context.Context, fn func(remote.Snapshot)) (func(), error) {
	uid := c.opts.UserID()
	if uid == "" {
		return nil, failure.New(failure.Auth, "syncer.Watch", ErrNoUser)
	}
	return c.opts.Remote.Subscribe(ctx, remote.TreePath(uid), fn)
}

// Merge applies an inbound snapshot against the current in-memory tree.
// It returns the tree to use and whether it replaced current; on
// replacement the new tree has already been written to local storage.
// Absent, undecodable and identical snapshots leave current in place.
// The caller must hold whatever lock guards current.
func (c *Coordinator) Merge(snap remote.Snapshot, current tree.Forest) (tree.Forest, bool) {
	if !snap.Exists || len(snap.Value) == 0 || string(snap.Value) == "null" {
		c.countInbound("absent")
		return current, false
	}
	if codec.EqualJSON(snap.Value, current) {
		c.countInbound("identical")
		return current, false
	}
	incoming, err := codec.Unmarshal(snap.Value)
	if err != nil {
		c.countInbound("invalid")
		c.logger.Warn("ignoring undecodable snapshot", slog.String("path", snap.Path), slog.String("error", err.Error()))
		return current, false
	}
	raw, err := codec.Encode(incoming)
	if err == nil {
		err = c.opts.Local.Set(c.opts.Keys.Tree, string(raw))
	}
	if err != nil {
		c.logger.Error("failed to save inbound tree", slog.String("error", err.Error()))
	}
	c.countInbound("replaced")
	c.logger.Info("tree replaced from remote", slog.String("path", snap.Path), slog.Int("nodes", tree.CountNodes(incoming)))
	return incoming, true
}

// Close stops watching connectivity and waits for in-flight pushes.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopNet()
	c.wg.Wait()
	return nil
}

// setPending writes the pending flag. Callers hold c.mu so that the
// generation check and the flag write are atomic.
func (c *Coordinator) setPending(on bool) error {
	if err := localstore.SetFlag(c.opts.Local, c.opts.Keys.PendingSync, on); err != nil {
		return fmt.Errorf("set pending flag: %w", err)
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.SetPending(on)
	}
	return nil
}

func (c *Coordinator) reportState() {
	if c.opts.Metrics == nil {
		return
	}
	c.opts.Metrics.SetState(c.State().String(), stateNames)
}

func (c *Coordinator) countCommit(mode string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.Commit(mode)
	}
}

func (c *Coordinator) countInbound(outcome string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.Inbound(outcome)
	}
}
