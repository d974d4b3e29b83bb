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
	"context"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"

	"github.com/AleutianAI/familytree/services/familytree/middleware"
)

const tokenIssuer = "treestore"

// claims are the session token claims. Subject is the user id.
type claims struct {
	Email string `json:"email"`
	jwt.StandardClaims
}

// TokenIssuer signs and verifies HS256 session tokens. The signing key is
// kept sealed in a memguard enclave and only opened for the duration of a
// sign or verify.
//
// Thread Safety: safe for concurrent use.
type TokenIssuer struct {
	key *memguard.Enclave
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer seals key, which is wiped, and returns an issuer whose
// tokens live for ttl. A nil or empty key selects a random 32-byte key,
// which invalidates all sessions on restart.
func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	var enclave *memguard.Enclave
	if len(key) == 0 {
		enclave = memguard.NewEnclaveRandom(32)
	} else {
		enclave = memguard.NewEnclave(key)
	}
	return &TokenIssuer{key: enclave, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for the user and its expiry time.
func (t *TokenIssuer) Issue(userID, email string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: exp.Unix(),
		},
	})

	buf, err := t.key.Open()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("open signing key: %w", err)
	}
	defer buf.Destroy()

	signed, err := token.SignedString(buf.Bytes())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify implements middleware.Verifier.
func (t *TokenIssuer) Verify(_ context.Context, token string) (*middleware.Identity, error) {
	buf, err := t.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open signing key: %w", err)
	}
	defer buf.Destroy()

	var c claims
	parser := &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	parsed, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return buf.Bytes(), nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", middleware.ErrUnauthorized, err)
	}
	if c.Issuer != tokenIssuer || c.Subject == "" {
		return nil, fmt.Errorf("%w: unexpected claims", middleware.ErrUnauthorized)
	}
	return &middleware.Identity{UserID: c.Subject, Email: c.Email}, nil
}
