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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/familytree/services/familytree/middleware"
)

// API routes served by Handlers.
const (
	SignupRoute       = "/v1/auth/signup"
	LoginRoute        = "/v1/auth/login"
	ResetRoute        = "/v1/auth/reset"
	ResetConfirmRoute = "/v1/auth/reset/confirm"
	MeRoute           = "/v1/auth/me"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type resetRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetConfirmRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// errorResponse is the JSON error payload. Code is set for auth failures.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handlers serves a Service over HTTP.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers returns handlers for svc.
func NewHandlers(svc *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{svc: svc, logger: logger}
}

// Signup handles POST /v1/auth/signup.
func (h *Handlers) Signup(c *gin.Context) {
	var req credentialsRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.svc.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, "signup", err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// Login handles POST /v1/auth/login.
func (h *Handlers) Login(c *gin.Context) {
	var req credentialsRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Reset handles POST /v1/auth/reset.
func (h *Handlers) Reset(c *gin.Context) {
	var req resetRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.RequestReset(c.Request.Context(), req.Email); err != nil {
		h.fail(c, "reset", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetConfirm handles POST /v1/auth/reset/confirm.
func (h *Handlers) ResetConfirm(c *gin.Context) {
	var req resetConfirmRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ConfirmReset(c.Request.Context(), req.Token, req.Password); err != nil {
		h.fail(c, "reset_confirm", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /v1/auth/me. It must run behind middleware.Authenticate.
func (h *Handlers) Me(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if id == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, id)
}

// Register mounts the public routes on g and /me behind Authenticate.
func (h *Handlers) Register(g gin.IRoutes) {
	g.POST(SignupRoute, h.Signup)
	g.POST(LoginRoute, h.Login)
	g.POST(ResetRoute, h.Reset)
	g.POST(ResetConfirmRoute, h.ResetConfirm)
	g.GET(MeRoute, middleware.Authenticate(h.svc), h.Me)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	code := Code(err)
	if code == "" {
		h.logger.Error("auth request failed", "op", op, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: GenericMessage})
		return
	}
	h.logger.Info("auth request refused", "op", op, "code", code)
	c.AbortWithStatusJSON(statusFor(code), errorResponse{Error: Message(err), Code: code})
}

func statusFor(code string) int {
	switch code {
	case CodeInvalidEmail, CodeWeakPassword, CodeInvalidActionCode:
		return http.StatusBadRequest
	case CodeUserNotFound:
		return http.StatusNotFound
	case CodeWrongPassword, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeEmailInUse:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}
