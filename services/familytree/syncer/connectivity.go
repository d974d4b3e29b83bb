// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Connectivity reports whether the remote store is reachable and announces
// transitions.
type Connectivity interface {
	Online() bool

	// Watch calls fn after every transition until stop is called.
	Watch(fn func(online bool)) (stop func())
}

// Switch is a Connectivity flipped by hand. The CLI uses it for --offline
// and tests use it to simulate outages.
//
// Thread Safety: safe for concurrent use. Watchers run on the goroutine
// that calls Set, outside the switch's lock.
type Switch struct {
	mu       sync.Mutex
	online   bool
	next     int
	watchers map[int]func(bool)
}

// NewSwitch returns a switch in the given state.
func NewSwitch(online bool) *Switch {
	return &Switch{online: online, watchers: make(map[int]func(bool))}
}

// Online implements Connectivity.
func (s *Switch) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set changes the state and notifies watchers when it differs.
func (s *Switch) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Watch implements Connectivity.
func (s *Switch) Watch(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Probe is a Connectivity driven by periodic health checks.
type Probe struct {
	*Switch

	url      string
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger
}

// NewProbe returns a probe for healthURL that starts offline until the
// first check.
func NewProbe(healthURL string, interval time.Duration, client *http.Client, logger *slog.Logger) *Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Probe{
		Switch:   NewSwitch(false),
		url:      healthURL,
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// Check performs one health check and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.check(ctx)
	if online != p.Online() {
		p.logger.Info("connectivity changed", slog.Bool("online", online))
	}
	p.Set(online)
	return online
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Run checks immediately and then once per interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
