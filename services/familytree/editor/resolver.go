// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/familytree/services/familytree/codec"
	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/localstore"
	"github.com/AleutianAI/familytree/services/familytree/remote"
	"github.com/AleutianAI/familytree/services/familytree/syncer"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

// Resolver loads the tree a session starts with.
//
// Description:
//
//	Signed in and online, the tree is read from trees/{userId}. A user
//	without a stored tree gets the default single-person tree, which is
//	written to the store before it is returned. A pending local change
//	wins over the store copy, since the store has not seen it yet.
//	Offline, signed out or after a failed read, the local copy is used,
//	and without one the default tree.
//
//	Concurrent resolves for the same user share one store round trip.
//	Each caller still receives its own decoded forest.
//
// Thread Safety: safe for concurrent use.
type Resolver struct {
	store  remote.Store
	local  localstore.Store
	keys   config.StorageKeys
	net    syncer.Connectivity
	now    func() time.Time
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver builds a resolver. net may be nil, meaning always online.
func NewResolver(store remote.Store, local localstore.Store, keys config.StorageKeys, net syncer.Connectivity, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		store:  store,
		local:  local,
		keys:   keys,
		net:    net,
		now:    time.Now,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// Resolve returns the starting tree for userID, which may be empty.
func (r *Resolver) Resolve(ctx context.Context, userID string) (tree.Forest, error) {
	if userID == "" || (r.net != nil && !r.net.Online()) {
		return r.fromLocal()
	}
	if pending, _ := localstore.GetFlag(r.local, r.keys.PendingSync); pending {
		if f, ok := r.localCopy(); ok {
			return f, nil
		}
	}

	v, err, shared := r.group.Do(userID, func() (interface{}, error) {
		return r.fetch(ctx, userID)
	})
	if err != nil {
		if failure.Is(err, failure.Network) {
			r.logger.Warn("store unreachable, using local tree", slog.String("error", err.Error()))
			return r.fromLocal()
		}
		return nil, err
	}
	if shared {
		r.logger.Debug("resolve coalesced", slog.String("user_id", userID))
	}
	return codec.Unmarshal(v.([]byte))
}

// fetch reads the user's tree, bootstrapping it when absent, and returns
// its JSON encoding.
func (r *Resolver) fetch(ctx context.Context, userID string) ([]byte, error) {
	path := remote.TreePath(userID)
	snap, err := r.store.Read(ctx, path)
	if err != nil {
		if failure.KindOf(err) == failure.Unknown {
			err = failure.New(failure.Network, "editor.Resolve", err)
		}
		return nil, err
	}
	if snap.Exists && len(snap.Value) > 0 && string(snap.Value) != "null" {
		return snap.Value, nil
	}

	data, err := codec.Marshal(tree.DefaultForest(r.now()))
	if err != nil {
		return nil, err
	}
	if err := r.store.Write(ctx, path, data); err != nil {
		if failure.KindOf(err) == failure.Unknown {
			err = failure.New(failure.Network, "editor.Resolve", err)
		}
		return nil, fmt.Errorf("bootstrap tree: %w", err)
	}
	r.logger.Info("bootstrapped default tree", slog.String("path", path))
	return data, nil
}

func (r *Resolver) fromLocal() (tree.Forest, error) {
	if f, ok := r.localCopy(); ok {
		return f, nil
	}
	return tree.DefaultForest(r.now()), nil
}

func (r *Resolver) localCopy() (tree.Forest, bool) {
	raw, ok, err := r.local.Get(r.keys.Tree)
	if err != nil || !ok {
		return nil, false
	}
	f, err := codec.Unmarshal([]byte(raw))
	if err != nil || len(f) == 0 {
		return nil, false
	}
	return f, true
}
