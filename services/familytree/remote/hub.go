// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/observability"
)

// Hub is a Store persisted in a localstore.Store with in-process fan-out
// to subscribers.
//
// Thread Safety: safe for concurrent use. Writes to one hub are applied
// and published in a single order.
type Hub struct {
	kv      localstore.Store
	logger  *slog.Logger
	metrics *observability.StoreMetrics

	mu     sync.Mutex
	subs   map[string]map[string]*subscriber
	closed bool
	wg     sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub's logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithHubMetrics records subscriber and publish metrics.
func WithHubMetrics(m *observability.StoreMetrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub returns a hub over kv.
func NewHub(kv localstore.Store, opts ...HubOption) *Hub {
	h := &Hub{
		kv:     kv,
		logger: slog.New(slog.DiscardHandler),
		subs:   make(map[string]map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Read returns the value at path.
func (h *Hub) Read(ctx context.Context, path string) (Snapshot, error) {
	p, err := ParsePath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	return h.load(p.String())
}

func (h *Hub) load(path string) (Snapshot, error) {
	v, ok, err := h.kv.Get(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !ok {
		return Snapshot{Path: path}, nil
	}
	return Snapshot{Path: path, Exists: true, Value: json.RawMessage(v)}, nil
}

// Write stores value at path and publishes it to the path's subscribers.
func (h *Hub) Write(ctx context.Context, path string, value json.RawMessage) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	key := p.String()
	snap := Snapshot{Path: key}
	if bytes.Equal(compact.Bytes(), []byte("null")) {
		err = h.kv.Delete(key)
	} else {
		snap.Exists = true
		snap.Value = json.RawMessage(compact.Bytes())
		err = h.kv.Set(key, compact.String())
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	subs := h.subs[key]
	for _, s := range subs {
		s.offer(snap)
	}
	if h.metrics != nil && len(subs) > 0 {
		h.metrics.Published(len(subs))
	}
	h.logger.Debug("store write", "path", key, "bytes", compact.Len(), "subscribers", len(subs))
	return nil
}

// Subscribe registers fn for path. The current value is delivered first.
func (h *Hub) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	key := p.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	current, err := h.load(key)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := newSubscriber(fn)
	if h.subs[key] == nil {
		h.subs[key] = make(map[string]*subscriber)
	}
	h.subs[key][id] = s
	s.offer(current)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		s.run()
	}()
	if h.metrics != nil {
		h.metrics.SubscriberAdded()
	}

	var once sync.Once
	remove := func() {
		once.Do(func() { h.remove(key, id) })
	}
	stopWatch := context.AfterFunc(ctx, remove)
	return func() {
		stopWatch()
		remove()
	}, nil
}

func (h *Hub) remove(key, id string) {
	h.mu.Lock()
	s, ok := h.subs[key][id]
	if ok {
		delete(h.subs[key], id)
		if len(h.subs[key]) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()

	if ok {
		s.stop()
		if h.metrics != nil {
			h.metrics.SubscriberRemoved()
		}
	}
}

// Close ends every subscription and waits for their goroutines. Later
// calls fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var stopping []*subscriber
	for key, subs := range h.subs {
		for _, s := range subs {
			stopping = append(stopping, s)
		}
		delete(h.subs, key)
	}
	h.mu.Unlock()

	for _, s := range stopping {
		s.stop()
		if h.metrics != nil {
			h.metrics.SubscriberRemoved()
		}
	}
	h.wg.Wait()
	return nil
}

// subscriber delivers the latest offered snapshot to fn on its own
// goroutine. Offers never block; an undelivered snapshot is replaced by a
// newer one.
type subscriber struct {
	fn   func(Snapshot)
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	latest *Snapshot
}

func newSubscriber(fn func(Snapshot)) *subscriber {
	return &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscriber) offer(snap Snapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		snap := s.latest
		s.latest = nil
		s.mu.Unlock()

		if snap != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(*snap)
		}
	}
}
