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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/mailer"
	"github.com/AleutianAI/familytree/services/familytree/middleware"
	"github.com/AleutianAI/familytree/services/familytree/observability"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

const (
	userPrefix  = "auth/user/"
	resetPrefix = "auth/reset/"

	limiterCacheSize = 4096
)

// Session is a signed-in user.
type Session struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type user struct {
	ID      string    `json:"id"`
	Email   string    `json:"email"`
	Hash    []byte    `json:"hash"`
	Created time.Time `json:"created"`
}

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	// ResetTTL is how long a mailed reset token stays valid.
	ResetTTL time.Duration

	// LoginRate is the sustained number of login attempts per minute
	// allowed for one address, LoginBurst the burst on top of it.
	LoginRate  float64
	LoginBurst int

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service owns the credential database and issues sessions.
//
// Description:
//
//	Users are keyed by lower-cased email under "auth/user/". Reset tokens
//	live under "auth/reset/" with a badger TTL so expired ones disappear
//	on their own.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	db       *localstore.DB
	issuer   *TokenIssuer
	mail     mailer.Sender
	cfg      ServiceConfig
	limiters *lru.Cache[string, *rate.Limiter]
	validate *validator.Validate
	metrics  *observability.StoreMetrics
	logger   *slog.Logger
}

// NewService builds a Service. metrics may be nil.
func NewService(db *localstore.DB, issuer *TokenIssuer, mail mailer.Sender, cfg ServiceConfig, metrics *observability.StoreMetrics, logger *slog.Logger) (*Service, error) {
	if db == nil || issuer == nil || mail == nil {
		return nil, errors.New("auth: db, issuer and mailer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 5
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 5
	}
	limiters, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create limiter cache: %w", err)
	}
	return &Service{
		db:       db,
		issuer:   issuer,
		mail:     mail,
		cfg:      cfg,
		limiters: limiters,
		validate: validator.New(),
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "auth")),
	}, nil
}

// Verify implements middleware.Verifier using the service's issuer.
func (s *Service) Verify(ctx context.Context, token string) (*middleware.Identity, error) {
	return s.issuer.Verify(ctx, token)
}

// Signup registers a new user and signs them in.
func (s *Service) Signup(ctx context.Context, email, password string) (Session, error) {
	const op = "auth.Signup"
	email, err := s.checkEmail(op, email)
	if err != nil {
		s.record("signup", err)
		return Session{}, err
	}
	if len(password) < MinPasswordLength {
		err := codeErr(op, CodeWeakPassword)
		s.record("signup", err)
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := user{ID: uuid.NewString(), Email: email, Hash: hash, Created: time.Now().UTC()}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		_, exists, err := localstore.GetValue(txn, []byte(userPrefix+email))
		if err != nil {
			return err
		}
		if exists {
			return codeErr(op, CodeEmailInUse)
		}
		raw, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return txn.Set([]byte(userPrefix+email), raw)
	})
	if err != nil {
		s.record("signup", err)
		return Session{}, err
	}
	s.logger.Info("user registered", slog.String("user_id", u.ID))
	s.record("signup", nil)
	return s.session(u)
}

// Login checks the password and returns a fresh session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	const op = "auth.Login"
	email, err := s.checkEmail(op, email)
	if err != nil {
		s.record("login", err)
		return Session{}, err
	}
	if !s.limiter(email).Allow() {
		err := codeErr(op, CodeTooManyRequests)
		s.record("login", err)
		return Session{}, err
	}
	u, err := s.lookup(ctx, op, email)
	if err != nil {
		s.record("login", err)
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			err = codeErr(op, CodeWrongPassword)
		}
		s.record("login", err)
		return Session{}, err
	}
	s.record("login", nil)
	return s.session(u)
}

// RequestReset mails a single-use reset token to a registered address.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	const op = "auth.RequestReset"
	email, err := s.checkEmail(op, email)
	if err != nil {
		s.record("reset", err)
		return err
	}
	if _, err := s.lookup(ctx, op, email); err != nil {
		s.record("reset", err)
		return err
	}
	token := uuid.NewString()
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(resetPrefix+token), []byte(email)).WithTTL(s.cfg.ResetTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	msg := mailer.Message{
		To:      email,
		Subject: "Reset your family tree password",
		Body: fmt.Sprintf("Someone asked to reset the password for %s.\n\n"+
			"Run:\n\n    familytree reset --token %s\n\n"+
			"The token expires in %s. If this was not you, ignore this message.\n",
			email, token, s.cfg.ResetTTL),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.record("reset", err)
		return fmt.Errorf("send reset mail: %w", err)
	}
	s.record("reset", nil)
	return nil
}

// ConfirmReset consumes a reset token and sets a new password.
func (s *Service) ConfirmReset(ctx context.Context, token, password string) error {
	const op = "auth.ConfirmReset"
	if len(password) < MinPasswordLength {
		err := codeErr(op, CodeWeakPassword)
		s.record("reset_confirm", err)
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		email, ok, err := localstore.GetValue(txn, []byte(resetPrefix+token))
		if err != nil {
			return err
		}
		if !ok || token == "" {
			return codeErr(op, CodeInvalidActionCode)
		}
		raw, ok, err := localstore.GetValue(txn, []byte(userPrefix+string(email)))
		if err != nil {
			return err
		}
		if !ok {
			return codeErr(op, CodeUserNotFound)
		}
		var u user
		if err := json.Unmarshal(raw, &u); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		u.Hash = hash
		if raw, err = json.Marshal(u); err != nil {
			return err
		}
		if err := txn.Set([]byte(userPrefix+u.Email), raw); err != nil {
			return err
		}
		return txn.Delete([]byte(resetPrefix + token))
	})
	s.record("reset_confirm", err)
	return err
}

func (s *Service) checkEmail(op, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", codeErr(op, CodeInvalidEmail)
	}
	return email, nil
}

func (s *Service) lookup(ctx context.Context, op, email string) (user, error) {
	var u user
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		raw, ok, err := localstore.GetValue(txn, []byte(userPrefix+email))
		if err != nil {
			return err
		}
		if !ok {
			return codeErr(op, CodeUserNotFound)
		}
		return json.Unmarshal(raw, &u)
	})
	return u, err
}

func (s *Service) session(u user) (Session, error) {
	token, exp, err := s.issuer.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: u.ID, Email: u.Email, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) limiter(email string) *rate.Limiter {
	if l, ok := s.limiters.Get(email); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.LoginRate/60), s.cfg.LoginBurst)
	if prev, ok, _ := s.limiters.PeekOrAdd(email, l); ok {
		return prev
	}
	return l
}

func (s *Service) record(action string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = Code(err)
		if result == "" {
			result = "error"
		}
	}
	s.metrics.Auth(action, result)
}
