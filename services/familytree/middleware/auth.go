// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the gin middleware of the store server.
//
// # Authentication Flow
//
//	Request
//	   │
//	   ▼
//	Authenticate / Optional
//	   │
//	   ├─► token from "Authorization: Bearer <token>"
//	   │
//	   ├─► verifier.Verify(ctx, token)
//	   │
//	   └─► Identity stored in the gin context
//	           │
//	           ▼
//	       Handler (reads it with GetIdentity)
//
// Authenticate rejects requests without a valid token. Optional lets
// anonymous requests through but still rejects a token that fails
// verification, so a stale session is reported instead of silently
// downgraded.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrUnauthorized is returned by verifiers for missing, expired or
// malformed tokens.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller.
type Identity struct {
	// UserID scopes the caller's tree path. Never empty.
	UserID string `json:"userId"`

	Email string `json:"email,omitempty"`
}

// Verifier validates session tokens.
//
// Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

const identityKey = "familytree_identity"

// SetIdentity stores id in the request context.
func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(identityKey, id)
}

// GetIdentity returns the caller's identity, or nil for anonymous
// requests.
func GetIdentity(c *gin.Context) *Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}

// UserID returns the caller's user id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	if id := GetIdentity(c); id != nil {
		return id.UserID
	}
	return ""
}

// Authenticate requires a valid bearer token.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abortUnauthorized(c, "missing token")
			return
		}
		if !verify(c, v, token) {
			return
		}
		c.Next()
	}
}

// Optional verifies a bearer token when one is present.
func Optional(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractBearerToken(c); token != "" && !verify(c, v, token) {
			return
		}
		c.Next()
	}
}

func verify(c *gin.Context, v Verifier, token string) bool {
	id, err := v.Verify(c.Request.Context(), token)
	if err != nil || id == nil || id.UserID == "" {
		if err != nil && !errors.Is(err, ErrUnauthorized) {
			abortUnauthorized(c, "authentication failed")
			return false
		}
		abortUnauthorized(c, "unauthorized")
		return false
	}
	SetIdentity(c, id)
	return true
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// extractBearerToken returns the token of an "Authorization: Bearer"
// header, or "". The scheme is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
