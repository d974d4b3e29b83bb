// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
)

// Authenticator is what the editor needs from the auth provider.
type Authenticator interface {
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, email, password string) error
	ResetPassword(ctx context.Context, email string) error
	CurrentUserID() string
	Logout(ctx context.Context) error
}

// Client is an Authenticator backed by a treestore server. The signed-in
// session is kept in a local store so it survives restarts.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	base  string
	http  *http.Client
	store localstore.Store
	key   string
	now   func() time.Time

	mu      sync.RWMutex
	session *Session
}

var _ Authenticator = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the server at baseURL that persists its
// session under sessionKey in store. A stored session is restored unless
// it has expired.
func NewClient(baseURL string, store localstore.Store, sessionKey string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:  u.String(),
		http:  &http.Client{Timeout: 30 * time.Second},
		store: store,
		key:   sessionKey,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.restore(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) restore() error {
	raw, ok, err := c.store.Get(c.key)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Expired(c.now()) {
		return c.store.Delete(c.key)
	}
	c.session = &s
	return nil
}

// Login implements Authenticator.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.signIn(ctx, "auth.Login", LoginRoute, email, password)
}

// Signup implements Authenticator. A new account is signed in.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	return c.signIn(ctx, "auth.Signup", SignupRoute, email, password)
}

// ResetPassword implements Authenticator by asking the server to mail a
// reset token.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.post(ctx, "auth.ResetPassword", ResetRoute, resetRequest{Email: email}, nil)
}

// ConfirmReset sets a new password with a mailed token.
func (c *Client) ConfirmReset(ctx context.Context, token, password string) error {
	return c.post(ctx, "auth.ConfirmReset", ResetConfirmRoute, resetConfirmRequest{Token: token, Password: password}, nil)
}

// CurrentUserID implements Authenticator. It is empty when signed out or
// when the session has expired.
func (c *Client) CurrentUserID() string {
	s := c.current()
	if s == nil {
		return ""
	}
	return s.UserID
}

// CurrentEmail returns the signed-in address, or "".
func (c *Client) CurrentEmail() string {
	s := c.current()
	if s == nil {
		return ""
	}
	return s.Email
}

// Token returns the bearer token for the remote store, or "".
func (c *Client) Token() string {
	s := c.current()
	if s == nil {
		return ""
	}
	return s.Token
}

// Logout implements Authenticator. The stored session is removed.
func (c *Client) Logout(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	if err := c.store.Delete(c.key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (c *Client) current() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil || c.session.Expired(c.now()) {
		return nil
	}
	return c.session
}

func (c *Client) signIn(ctx context.Context, op, route, email, password string) error {
	var s Session
	if err := c.post(ctx, op, route, credentialsRequest{Email: email, Password: password}, &s); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(c.key, string(raw)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.session = &s
	return nil
}

func (c *Client) post(ctx context.Context, op, route string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+route, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return failure.New(failure.Network, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Code != "" {
			return codeErr(op, e.Code)
		}
		return failure.New(failure.Network, op, fmt.Errorf("auth server returned %d: %s", resp.StatusCode, e.Error))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return failure.New(failure.Network, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
