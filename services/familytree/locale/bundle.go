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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle is the set of strings for one language.
type Bundle struct {
	lang   string
	values [keyCount]string
}

// Defaults returns a bundle that only has the built-in texts.
func Defaults(lang string) *Bundle {
	return &Bundle{lang: lang}
}

// FromMap builds a bundle from raw entries. Unknown names and empty values
// are ignored.
func FromMap(lang string, m map[string]string) *Bundle {
	b := Defaults(lang)
	for name, text := range m {
		if k, ok := ParseKey(name); ok && text != "" {
			b.values[k] = text
		}
	}
	return b
}

// ParseJSON builds a bundle from a JSON object. Non-string members are
// ignored.
func ParseJSON(lang string, data []byte) (*Bundle, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", lang, err)
	}
	m := make(map[string]string, len(raw))
	for name, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			m[name] = s
		}
	}
	return FromMap(lang, m), nil
}

// Lang returns the bundle's language code.
func (b *Bundle) Lang() string {
	return b.lang
}

// T returns the text for k, falling back to the default.
func (b *Bundle) T(k Key) string {
	if k < 0 || k >= keyCount {
		return ""
	}
	if b != nil && b.values[k] != "" {
		return b.values[k]
	}
	return keys[k].text
}

// Tf formats the text for k with args.
func (b *Bundle) Tf(k Key, args ...any) string {
	return fmt.Sprintf(b.T(k), args...)
}

// Map returns the bundle's overrides by key name.
func (b *Bundle) Map() map[string]string {
	m := make(map[string]string)
	for i, v := range b.values {
		if v != "" {
			m[keys[i].name] = v
		}
	}
	return m
}

// MarshalJSON writes the overrides as a flat object.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Map())
}

// ReadYAML reads a flat name: text YAML bundle.
func ReadYAML(lang string, r io.Reader) (*Bundle, error) {
	var m map[string]string
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse bundle %s: %w", lang, err)
	}
	return FromMap(lang, m), nil
}

// ReadDir loads every <lang>.yaml file in dir, sorted by language.
func ReadDir(dir string) ([]*Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read locale dir: %w", err)
	}
	var out []*Bundle
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		lang := strings.TrimSuffix(name, ext)
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("open bundle %s: %w", lang, err)
		}
		b, err := ReadYAML(lang, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lang < out[j].lang })
	return out, nil
}
