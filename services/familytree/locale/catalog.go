// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locale

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/remote"
)

// Reader is the part of remote.Store a Catalog needs.
type Reader interface {
	Read(ctx context.Context, path string) (remote.Snapshot, error)
}

// Catalog resolves bundles in three tiers: an in-memory LRU, the store's
// locale/{lang} path, and the copy saved in local storage by the last
// successful fetch.
//
// Thread Safety: safe for concurrent use.
type Catalog struct {
	remote   Reader
	local    localstore.Store
	keys     config.StorageKeys
	fallback string
	cache    *lru.Cache[string, *Bundle]
	logger   *slog.Logger
}

// NewCatalog builds a catalog. fallback is the language used when no
// preference has been saved.
func NewCatalog(r Reader, local localstore.Store, keys config.StorageKeys, cfg config.LocaleConfig, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 8
	}
	cache, err := lru.New[string, *Bundle](size)
	if err != nil {
		return nil, fmt.Errorf("create bundle cache: %w", err)
	}
	fallback := cfg.Default
	if fallback == "" {
		fallback = "en"
	}
	return &Catalog{
		remote:   r,
		local:    local,
		keys:     keys,
		fallback: fallback,
		cache:    cache,
		logger:   logger.With(slog.String("component", "locale")),
	}, nil
}

// Load returns the bundle for lang. It never fails: when neither the store
// nor local storage has the bundle, the built-in defaults are returned.
func (c *Catalog) Load(ctx context.Context, lang string) *Bundle {
	if b, ok := c.cache.Get(lang); ok {
		return b
	}
	if b, err := c.fetch(ctx, lang); err == nil && b != nil {
		c.cache.Add(lang, b)
		return b
	} else if err != nil {
		c.logger.Warn("failed to load translations", slog.String("lang", lang), slog.String("error", err.Error()))
	}
	if b := c.saved(lang); b != nil {
		return b
	}
	return Defaults(lang)
}

// Current loads the bundle for the preferred language.
func (c *Catalog) Current(ctx context.Context) *Bundle {
	return c.Load(ctx, c.Preferred())
}

// Preferred returns the saved language preference or the configured
// default.
func (c *Catalog) Preferred() string {
	lang, ok, err := c.local.Get(c.keys.DefaultLocale)
	if err != nil || !ok || lang == "" {
		return c.fallback
	}
	return lang
}

// SetPreferred saves lang as the preferred language.
func (c *Catalog) SetPreferred(lang string) error {
	if _, err := remote.ParsePath(remote.LocalePath(lang)); err != nil {
		return fmt.Errorf("invalid language %q: %w", lang, err)
	}
	return c.local.Set(c.keys.DefaultLocale, lang)
}

func (c *Catalog) fetch(ctx context.Context, lang string) (*Bundle, error) {
	if c.remote == nil {
		return nil, nil
	}
	snap, err := c.remote.Read(ctx, remote.LocalePath(lang))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, nil
	}
	b, err := ParseJSON(lang, snap.Value)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	if err := c.local.Set(c.keys.Translations(lang), string(raw)); err != nil {
		c.logger.Warn("failed to cache translations", slog.String("lang", lang), slog.String("error", err.Error()))
	}
	return b, nil
}

func (c *Catalog) saved(lang string) *Bundle {
	raw, ok, err := c.local.Get(c.keys.Translations(lang))
	if err != nil || !ok {
		return nil
	}
	b, err := ParseJSON(lang, []byte(raw))
	if err != nil {
		return nil
	}
	return b
}

// Writer is the part of remote.Store Seed needs.
type Writer interface {
	Write(ctx context.Context, path string, value json.RawMessage) error
}

// Seed writes every bundle in dir to locale/{lang}. It returns the number
// of bundles written.
func Seed(ctx context.Context, w Writer, dir string) (int, error) {
	bundles, err := ReadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, b := range bundles {
		raw, err := json.Marshal(b)
		if err != nil {
			return 0, err
		}
		if err := w.Write(ctx, remote.LocalePath(b.Lang()), raw); err != nil {
			return 0, fmt.Errorf("seed %s: %w", b.Lang(), err)
		}
	}
	return len(bundles), nil
}
