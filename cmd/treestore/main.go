// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command treestore serves family trees, translation bundles and
// accounts to familytree editors.
//
// # Configuration
//
// treestore reads the same YAML file as the editor (see config.Load) and
// uses its server, logging and telemetry sections. FAMILYTREE_* variables
// override the file; FAMILYTREE_TOKEN_SECRET sets the session signing key.
// Without it a random key is generated and sessions end on restart.
//
// # Usage
//
//	go build -o treestore ./cmd/treestore
//	./treestore --config ./familytree.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/familytree/pkg/logging"
	"github.com/AleutianAI/familytree/services/familytree/auth"
	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/locale"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/mailer"
	"github.com/AleutianAI/familytree/services/familytree/observability"
	"github.com/AleutianAI/familytree/services/familytree/remote"
	"github.com/AleutianAI/familytree/services/familytree/routes"
	"github.com/AleutianAI/familytree/services/familytree/telemetry"
)

const serviceName = "treestore"

func main() {
	configPath := flag.String("config", "", "path to familytree.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("treestore: %v", err)
	}
}

func run(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logs := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: serviceName,
		JSON:    cfg.Logging.JSON,
	})
	defer logs.Close()
	logger := logs.Slog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tcfg := telemetry.DefaultConfig(serviceName)
	tcfg.TraceExporter = cfg.Telemetry.Exporter
	if cfg.Telemetry.Endpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	}
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	dbCfg := localstore.DefaultConfig(filepath.Join(cfg.Server.DataDir, "treestore"))
	dbCfg.Logger = logger
	db, err := localstore.OpenDB(dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := observability.NewStoreMetrics(reg)
	hub := remote.NewHub(localstore.NewBadger(db, "remote/"),
		remote.WithHubLogger(logger),
		remote.WithHubMetrics(metrics),
	)
	defer hub.Close()

	if cfg.Server.LocaleDir != "" {
		n, err := locale.Seed(ctx, hub, cfg.Server.LocaleDir)
		if err != nil {
			return err
		}
		logger.Info("seeded translation bundles", "count", n, "dir", cfg.Server.LocaleDir)
	}

	authSvc, err := auth.NewService(db,
		auth.NewTokenIssuer([]byte(os.Getenv("FAMILYTREE_TOKEN_SECRET")), cfg.Server.TokenTTL),
		newSender(cfg.Server.SMTP, logger),
		auth.ServiceConfig{
			ResetTTL:   cfg.Server.ResetTTL,
			LoginRate:  cfg.Server.LoginRate,
			LoginBurst: cfg.Server.LoginBurst,
		},
		metrics, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, routes.Deps{
		ServiceName:    serviceName,
		Store:          hub,
		Auth:           authSvc,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("treestore listening", "addr", cfg.Server.Addr, "data_dir", cfg.Server.DataDir)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newSender mails through SMTP when a host is configured and logs reset
// messages otherwise.
func newSender(cfg config.SMTPConfig, logger *slog.Logger) mailer.Sender {
	if cfg.Host == "" {
		logger.Warn("no SMTP host configured; password reset mail will be logged")
		return mailer.Log{Logger: logger}
	}
	s, err := mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		TLS:      cfg.TLS,
	})
	if err != nil {
		logger.Error("SMTP setup failed; falling back to logging reset mail", "error", err)
		return mailer.Log{Logger: logger}
	}
	return s
}
