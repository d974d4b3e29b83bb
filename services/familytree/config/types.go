// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the YAML configuration shared by the familytree CLI
// and the treestore server.
//
// The file lives at ~/.familytree/familytree.yaml and is created with
// defaults on first run. FAMILYTREE_* environment variables override
// individual fields after the file is read.
package config

import "time"

// CurrentConfigVersion is written into new config files.
const CurrentConfigVersion = "1"

// Config is the complete configuration.
type Config struct {
	Meta      Meta            `yaml:"meta"`
	Store     StoreConfig     `yaml:"store"`
	Local     LocalConfig     `yaml:"local"`
	Keys      StorageKeys     `yaml:"keys"`
	Locale    LocaleConfig    `yaml:"locale"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Backup    BackupConfig    `yaml:"backup"`
	Server    ServerConfig    `yaml:"server"`
}

// Meta records the file format version.
type Meta struct {
	Version string `yaml:"version"`
}

// StoreConfig locates the remote tree store.
type StoreConfig struct {
	// URL is the base URL of the treestore server.
	URL string `yaml:"url" validate:"required,url"`

	// Offline starts the editor with connectivity switched off.
	Offline bool `yaml:"offline"`

	// ProbeInterval is how often connectivity is checked. Zero disables
	// probing and leaves the editor online.
	ProbeInterval time.Duration `yaml:"probe_interval" validate:"gte=0"`

	// Timeout bounds each request to the store.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// LocalConfig selects local durable storage.
type LocalConfig struct {
	Backend string `yaml:"backend" validate:"oneof=badger bolt memory"`

	// Dir holds local databases. Empty means the config directory.
	Dir string `yaml:"dir"`
}

// StorageKeys names the local storage keys. They are configurable so
// that several editors can share one store.
type StorageKeys struct {
	Tree               string `yaml:"tree" validate:"required"`
	PendingSync        string `yaml:"pending_sync" validate:"required"`
	TranslationsPrefix string `yaml:"translations_prefix" validate:"required"`
	DefaultLocale      string `yaml:"default_locale" validate:"required"`
	Session            string `yaml:"session" validate:"required"`
}

// Translations returns the key holding the cached bundle for lang.
func (k StorageKeys) Translations(lang string) string {
	return k.TranslationsPrefix + lang
}

// DefaultStorageKeys returns the key names used by the web editor.
func DefaultStorageKeys() StorageKeys {
	return StorageKeys{
		Tree:               "familyTree",
		PendingSync:        "pendingSync",
		TranslationsPrefix: "translations_",
		DefaultLocale:      "defaultLocale",
		Session:            "session",
	}
}

// LocaleConfig controls translation bundles.
type LocaleConfig struct {
	Default   string `yaml:"default" validate:"required"`
	CacheSize int    `yaml:"cache_size" validate:"gte=1"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	// Exporter is none, stdout or otlp.
	Exporter string `yaml:"exporter" validate:"oneof=none stdout otlp"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint" validate:"required_if=Exporter otlp"`
}

// BackupConfig configures tree backups to Google Cloud Storage.
type BackupConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// Credentials is a service account key file. Empty uses application
	// default credentials.
	Credentials string `yaml:"credentials"`
}

// ServerConfig is read by treestore only.
type ServerConfig struct {
	Addr    string `yaml:"addr" validate:"required"`
	DataDir string `yaml:"data_dir"`

	// TokenTTL is the lifetime of a session token.
	TokenTTL time.Duration `yaml:"token_ttl" validate:"gt=0"`

	// ResetTTL is the lifetime of a password reset token.
	ResetTTL time.Duration `yaml:"reset_ttl" validate:"gt=0"`

	// LoginRate is the sustained number of login attempts per minute
	// allowed for one e-mail address.
	LoginRate  float64 `yaml:"login_rate" validate:"gt=0"`
	LoginBurst int     `yaml:"login_burst" validate:"gte=1"`

	// LocaleDir holds <lang>.yaml bundles seeded into the store at start.
	LocaleDir string `yaml:"locale_dir"`

	SMTP SMTPConfig `yaml:"smtp"`
}

// SMTPConfig configures password reset mail. An empty Host logs reset
// links instead of mailing them.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from" validate:"omitempty,email"`
	TLS      bool   `yaml:"tls"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Meta: Meta{Version: CurrentConfigVersion},
		Store: StoreConfig{
			URL:           "http://localhost:8420",
			ProbeInterval: 15 * time.Second,
			Timeout:       10 * time.Second,
		},
		Local:     LocalConfig{Backend: "badger"},
		Keys:      DefaultStorageKeys(),
		Locale:    LocaleConfig{Default: "en", CacheSize: 8},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{Exporter: "none"},
		Server: ServerConfig{
			Addr:       ":8420",
			TokenTTL:   24 * time.Hour,
			ResetTTL:   time.Hour,
			LoginRate:  5,
			LoginBurst: 5,
			SMTP:       SMTPConfig{Port: 587},
		},
	}
}
