// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package localstore provides the local durable key-value storage that
// holds the working tree, the pending-sync flag, cached translations and
// the signed-in session.
//
// Every backend is synchronous and last-write-wins: a Set is visible to the
// next Get as soon as it returns. Three backends exist:
//
//	Badger  - default, on disk under the config directory
//	Bolt    - single-file alternative
//	Memory  - tests and --ephemeral runs
package localstore

import (
	"errors"
	"strconv"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("local store is closed")

// Store is string key-value storage.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// GetFlag reads a boolean flag stored as "true". Missing keys and any
// other value read as false.
func GetFlag(s Store, key string) (bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

// SetFlag stores "true" under key when on is set and removes key otherwise.
func SetFlag(s Store, key string, on bool) error {
	if on {
		return s.Set(key, "true")
	}
	return s.Delete(key)
}

// Memory is a Store held in a map. The zero value is ready to use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
