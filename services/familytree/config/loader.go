// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FAMILYTREE_"

var validate = validator.New()

// DefaultPath returns ~/.familytree/familytree.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".familytree", "familytree.yaml"), nil
}

// Load reads the config at path, creating it with defaults when missing.
// An empty path means DefaultPath. Relative directories in the result are
// resolved against the config file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg.Local.Dir = resolve(dir, cfg.Local.Dir)
	cfg.Server.DataDir = resolve(dir, cfg.Server.DataDir)
	if cfg.Server.LocaleDir != "" {
		cfg.Server.LocaleDir = resolve(dir, cfg.Server.LocaleDir)
	}
	return cfg, nil
}

// Parse decodes data over the defaults, applies environment overrides
// from lookup and validates the result.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config: %w", err)
	}
	if lookup != nil {
		if err := applyEnv(&cfg, lookup); err != nil {
			return nil, err
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	str("STORE_URL", &cfg.Store.URL)
	str("LOCAL_BACKEND", &cfg.Local.Backend)
	str("LOCAL_DIR", &cfg.Local.Dir)
	str("LOCALE", &cfg.Locale.Default)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("TELEMETRY_EXPORTER", &cfg.Telemetry.Exporter)
	str("OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("BACKUP_BUCKET", &cfg.Backup.Bucket)
	str("SERVER_ADDR", &cfg.Server.Addr)
	str("DATA_DIR", &cfg.Server.DataDir)
	str("SMTP_HOST", &cfg.Server.SMTP.Host)
	str("SMTP_USERNAME", &cfg.Server.SMTP.Username)
	str("SMTP_PASSWORD", &cfg.Server.SMTP.Password)

	if v, ok := lookup(envPrefix + "OFFLINE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sOFFLINE: %w", envPrefix, err)
		}
		cfg.Store.Offline = b
	}
	return nil
}

func resolve(base, dir string) string {
	if dir == "" {
		return base
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
