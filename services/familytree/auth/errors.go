// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth signs users in and scopes their tree path.
//
// The server side is Service: bcrypt credentials in badger, HS256 session
// tokens whose signing key lives in a memguard enclave, per-address login
// rate limiting and mailed password reset tokens. Handlers exposes it over
// gin.
//
// The editor side is Client, an Authenticator that talks to Handlers and
// keeps the signed-in session in local storage so that a restarted CLI
// stays signed in.
//
// Failures carry a stable code such as "auth/wrong-password". Message
// turns any error into the sentence shown to the user.
package auth

import (
	"errors"

	"github.com/AleutianAI/familytree/services/familytree/failure"
)

// Error codes. The first four are the ones users meet in normal use.
const (
	CodeInvalidEmail      = "auth/invalid-email"
	CodeUserNotFound      = "auth/user-not-found"
	CodeWrongPassword     = "auth/wrong-password"
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeWeakPassword      = "auth/weak-password"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeInvalidActionCode = "auth/invalid-action-code"
	CodeSessionExpired    = "auth/session-expired"
)

// GenericMessage is shown for errors without a mapped code.
const GenericMessage = "An unexpected error occurred. Please try again."

var messages = map[string]string{
	CodeInvalidEmail:      "The email address is not valid.",
	CodeUserNotFound:      "No user found with this email.",
	CodeWrongPassword:     "Incorrect password. Please try again.",
	CodeEmailInUse:        "This email is already registered.",
	CodeWeakPassword:      "Password must be at least 6 characters.",
	CodeTooManyRequests:   "Too many attempts. Please wait a minute and try again.",
	CodeInvalidActionCode: "This reset link is invalid or has expired.",
	CodeSessionExpired:    "Your session has expired. Please sign in again.",
}

// Error is an auth failure with a stable code.
type Error struct {
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Code returns the auth code in err's chain, or "".
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Message returns the user-facing sentence for err.
func Message(err error) string {
	if msg, ok := messages[Code(err)]; ok {
		return msg
	}
	return GenericMessage
}

func codeErr(op, code string) error {
	return failure.New(failure.Auth, op, &Error{Code: code})
}
