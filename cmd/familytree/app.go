// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/familytree/pkg/logging"
	"github.com/AleutianAI/familytree/pkg/ux"
	"github.com/AleutianAI/familytree/services/familytree/auth"
	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/editor"
	"github.com/AleutianAI/familytree/services/familytree/locale"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/observability"
	"github.com/AleutianAI/familytree/services/familytree/remote"
	"github.com/AleutianAI/familytree/services/familytree/routes"
	"github.com/AleutianAI/familytree/services/familytree/syncer"
	"github.com/AleutianAI/familytree/services/familytree/telemetry"
)

var errNotSignedIn = errors.New("not signed in; run familytree login")

// app holds everything one command invocation needs. Fields past auth
// are only set by openSession.
type app struct {
	cfg     *config.Config
	logs    *logging.Logger
	logger  *slog.Logger
	out     *ux.Printer
	local   localstore.Closer
	store   *remote.Client
	auth    *auth.Client
	net     syncer.Connectivity
	probe   *syncer.Probe
	catalog *locale.Catalog
	text    *locale.Bundle

	coord   *syncer.Coordinator
	session *editor.Session

	stopTelemetry func(context.Context) error
}

// openApp wires storage, the store client and authentication. It does
// not load the tree.
func openApp(ctx context.Context, cfg *config.Config, out *ux.Printer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	switch {
	case flags.verbose:
		level = logging.LevelDebug
	case cfg.Logging.Dir == "" && level < logging.LevelWarn:
		// Without a log file only warnings reach the console.
		level = logging.LevelWarn
	}
	logs := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "familytree",
		JSON:    cfg.Logging.JSON,
		Quiet:   !flags.verbose && cfg.Logging.Dir != "",
	})
	a := &app{cfg: cfg, logs: logs, logger: logs.Slog(), out: out}

	tcfg := telemetry.DefaultConfig("familytree")
	tcfg.TraceExporter = cfg.Telemetry.Exporter
	if cfg.Telemetry.Endpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	}
	if a.stopTelemetry, err = telemetry.Init(ctx, tcfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if a.local, err = localstore.Open(localstore.Backend(cfg.Local.Backend), cfg.Local.Dir, a.logger); err != nil {
		a.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Store.Timeout}
	if a.auth, err = auth.NewClient(cfg.Store.URL, a.local, cfg.Keys.Session, auth.WithHTTPClient(httpClient)); err != nil {
		a.Close()
		return nil, err
	}
	a.store, err = remote.NewClient(cfg.Store.URL,
		remote.WithHTTPClient(httpClient),
		remote.WithToken(a.auth.Token),
		remote.WithClientLogger(a.logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	switch {
	case cfg.Store.Offline || flags.offline:
		a.net = syncer.NewSwitch(false)
	case cfg.Store.ProbeInterval <= 0:
		a.net = syncer.NewSwitch(true)
	default:
		a.probe = syncer.NewProbe(strings.TrimRight(cfg.Store.URL, "/")+routes.HealthRoute,
			cfg.Store.ProbeInterval, httpClient, a.logger)
		a.net = a.probe
	}

	if a.catalog, err = locale.NewCatalog(a.store, a.local, cfg.Keys, cfg.Locale, a.logger); err != nil {
		a.Close()
		return nil, err
	}
	a.text = locale.Defaults(cfg.Locale.Default)
	return a, nil
}

// loadText resolves the translation bundle, honoring --lang. With
// connectivity switched off the built-in texts are used.
func (a *app) loadText(ctx context.Context) {
	if !a.net.Online() && a.probe == nil {
		return
	}
	if flags.lang != "" {
		a.text = a.catalog.Load(ctx, flags.lang)
		return
	}
	a.text = a.catalog.Current(ctx)
}

// openSession checks connectivity, resolves the starting tree and builds
// the editor session on top of openApp's wiring.
func (a *app) openSession(ctx context.Context) error {
	coord, err := syncer.New(syncer.Options{
		Keys:       a.cfg.Keys,
		Local:      a.local,
		Remote:     a.store,
		UserID:     a.auth.CurrentUserID,
		Net:        a.net,
		Timeout:    a.cfg.Store.Timeout,
		OnPushDone: a.pushDone,
		Metrics:    observability.NewSyncMetrics(prometheus.NewRegistry()),
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	a.coord = coord

	// The coordinator flushes a pending offline change when the first
	// check finds the server, so it must exist before the check.
	if a.probe != nil {
		a.probe.Check(ctx)
	}
	a.loadText(ctx)
	if !a.net.Online() {
		a.out.Warning(a.text.T(locale.OfflineNotice))
	}

	forest, err := editor.NewResolver(a.store, a.local, a.cfg.Keys, a.net, a.logger).
		Resolve(ctx, a.auth.CurrentUserID())
	if err != nil {
		return err
	}
	a.session = editor.NewSession(forest, coord, a.auth, a.logger)
	return nil
}

func (a *app) pushDone(res syncer.Result) {
	if res.Err != nil {
		a.logger.Warn("push failed", slog.String("path", res.Path), slog.String("error", res.Err.Error()))
		return
	}
	a.logger.Debug("pushed", slog.String("path", res.Path), slog.Int("bytes", res.Bytes), slog.Duration("elapsed", res.Elapsed))
}

// reportPending tells the user when changes are waiting for the server.
func (a *app) reportPending() {
	if a.coord != nil && a.coord.Pending() {
		a.out.Muted(a.text.T(locale.PendingNotice))
	}
}

// Close waits for in-flight pushes and releases everything openApp and
// openSession acquired. Safe on a partially built app.
func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.coord != nil {
		if err := a.coord.Close(); err != nil {
			a.logger.Warn("sync shutdown", slog.String("error", err.Error()))
		}
		a.reportPending()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.logger.Warn("close local store", slog.String("error", err.Error()))
		}
	}
	if a.stopTelemetry != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.stopTelemetry(sctx)
	}
	_ = a.logs.Close()
}

// requireUser fails commands that only make sense when signed in.
func (a *app) requireUser() error {
	if a.auth.CurrentUserID() == "" {
		return errNotSignedIn
	}
	return nil
}
