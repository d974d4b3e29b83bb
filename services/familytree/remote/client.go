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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/telemetry"
)

// API routes served by Handlers.
const (
	DataRoute      = "/v1/data/"
	SubscribeRoute = "/v1/subscribe/"
)

// maxValueBytes bounds a single stored value.
const maxValueBytes = 8 << 20

// Client is a Store backed by a treestore server.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	token  func() string
	logger *slog.Logger
	retry  time.Duration

	wg sync.WaitGroup
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the source of the bearer token sent with every request.
func WithToken(token func() string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithClientLogger sets the client's logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithRetryDelay sets how long a dropped subscription waits before it
// reconnects.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retry = d }
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: websocket.DefaultDialer,
		token:  func() string { return "" },
		logger: slog.New(slog.DiscardHandler),
		retry:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// errorBody is the JSON error payload of the store server.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) url(route, path string) string {
	return c.base.String() + route + path
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	telemetry.InjectContext(ctx, req.Header)
	return req, nil
}

// Read fetches the value at path.
func (c *Client) Read(ctx context.Context, path string) (Snapshot, error) {
	const op = "remote.Read"
	p, err := ParsePath(path)
	if err != nil {
		return Snapshot{}, failure.New(failure.Validation, op, err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.url(DataRoute, p.String()), nil)
	if err != nil {
		return Snapshot{}, failure.New(failure.Validation, op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, failure.New(failure.Network, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, statusError(op, resp)
	}
	var snap Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxValueBytes+1024)).Decode(&snap); err != nil {
		return Snapshot{}, failure.New(failure.Network, op, fmt.Errorf("decode snapshot: %w", err))
	}
	snap.Path = p.String()
	return snap, nil
}

// Write replaces the value at path.
func (c *Client) Write(ctx context.Context, path string, value json.RawMessage) error {
	const op = "remote.Write"
	p, err := ParsePath(path)
	if err != nil {
		return failure.New(failure.Validation, op, err)
	}
	if !json.Valid(value) {
		return failure.New(failure.Validation, op, ErrInvalidValue)
	}

	req, err := c.newRequest(ctx, http.MethodPut, c.url(DataRoute, p.String()), bytes.NewReader(value))
	if err != nil {
		return failure.New(failure.Validation, op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return failure.New(failure.Network, op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	return nil
}

// Subscribe opens a websocket subscription to path. The first dial must
// succeed; later disconnects are retried until unsubscribe is called or
// ctx is done.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	const op = "remote.Subscribe"
	p, err := ParsePath(path)
	if err != nil {
		return nil, failure.New(failure.Validation, op, err)
	}

	conn, err := c.dial(ctx, p)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.follow(subCtx, p, conn, fn)
	}()
	return cancel, nil
}

func (c *Client) dial(ctx context.Context, p Path) (*websocket.Conn, error) {
	const op = "remote.Subscribe"

	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + SubscribeRoute + p.String()

	header := http.Header{}
	if tok := c.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	telemetry.InjectContext(ctx, header)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, statusError(op, resp)
		}
		return nil, failure.New(failure.Network, op, err)
	}
	conn.SetReadLimit(maxValueBytes + 1024)
	return conn, nil
}

// follow reads snapshots from conn until ctx ends, redialling after
// connection loss.
func (c *Client) follow(ctx context.Context, p Path, conn *websocket.Conn, fn func(Snapshot)) {
	for {
		cur := conn
		stop := context.AfterFunc(ctx, func() { cur.Close() })
		err := readSnapshots(cur, p, fn)
		stop()
		cur.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("subscription lost, reconnecting",
			"path", p.String(),
			"error", err,
			"retry_in", c.retry)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retry):
			}
			conn, err = c.dial(ctx, p)
			if err == nil {
				break
			}
			if failure.Is(err, failure.Auth) {
				c.logger.Error("subscription rejected", "path", p.String(), "error", err)
				return
			}
		}
	}
}

func readSnapshots(conn *websocket.Conn, p Path, fn func(Snapshot)) error {
	for {
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			return err
		}
		snap.Path = p.String()
		fn(snap)
	}
}

// Close waits for the goroutines of subscriptions that have already been
// unsubscribed or whose context is done.
func (c *Client) Close() error {
	c.wg.Wait()
	return nil
}

func statusError(op string, resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	err := fmt.Errorf("store returned %d: %s", resp.StatusCode, msg)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return failure.New(failure.Auth, op, err)
	case http.StatusForbidden:
		return failure.New(failure.Auth, op, errors.Join(ErrForbidden, err))
	case http.StatusBadRequest:
		return failure.New(failure.Validation, op, err)
	case http.StatusNotFound:
		return failure.New(failure.NotFound, op, err)
	default:
		return failure.New(failure.Network, op, err)
	}
}
