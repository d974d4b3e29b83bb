// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch imports tree files dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ImportFunc imports the file at path.
type ImportFunc func(path string) error

// Options configures an ImportWatcher.
type Options struct {
	// Debounce is how long a file must stay quiet before it is imported.
	// Editors and copies write in several steps. Default 200ms.
	Debounce time.Duration

	// Pattern is the glob a file name must match. Default "*.json".
	Pattern string

	Logger *slog.Logger
}

// ImportWatcher calls an ImportFunc for every matching file created or
// written in a directory, once the file has settled.
//
// Thread Safety: safe for concurrent use. The ImportFunc is called from a
// single goroutine.
type ImportWatcher struct {
	dir     string
	fn      ImportFunc
	opts    Options
	watcher *fsnotify.Watcher

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	started  bool
	imported int
}

// New creates a watcher for dir. Call Start to begin.
func New(dir string, fn ImportFunc, opts Options) (*ImportWatcher, error) {
	if fn == nil {
		return nil, errors.New("watch: import func is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.json"
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("watch: bad pattern %q: %w", opts.Pattern, err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &ImportWatcher{
		dir:     dir,
		fn:      fn,
		opts:    opts,
		watcher: w,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the directory is registered.
func (w *ImportWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.started = true

	paths := make(chan string, 64)
	w.wg.Add(2)
	go w.events(ctx, paths)
	go w.debounce(ctx, paths)
	return nil
}

// Stop stops watching and waits for the goroutines to exit.
func (w *ImportWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
	w.wg.Wait()
}

// Imported returns the number of successful imports.
func (w *ImportWatcher) Imported() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.imported
}

func (w *ImportWatcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ok, _ := filepath.Match(w.opts.Pattern, base)
	return ok
}

func (w *ImportWatcher) events(ctx context.Context, out chan<- string) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(ev.Name) {
				continue
			}
			select {
			case out <- ev.Name:
			default:
				w.opts.Logger.Warn("import queue full, event dropped", slog.String("path", ev.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// debounce imports each path once it has been quiet for the debounce
// window.
func (w *ImportWatcher) debounce(ctx context.Context, in <-chan string) {
	defer w.wg.Done()
	due := make(map[string]time.Time)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case p := <-in:
			due[p] = time.Now().Add(w.opts.Debounce)
			timer.Reset(w.opts.Debounce)
		case now := <-timer.C:
			var next time.Time
			for p, at := range due {
				if !now.Before(at) {
					delete(due, p)
					w.run(p)
					continue
				}
				if next.IsZero() || at.Before(next) {
					next = at
				}
			}
			if !next.IsZero() {
				timer.Reset(time.Until(next))
			}
		}
	}
}

func (w *ImportWatcher) run(path string) {
	if err := w.fn(path); err != nil {
		w.opts.Logger.Warn("import failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	w.mu.Lock()
	w.imported++
	w.mu.Unlock()
	w.opts.Logger.Info("imported", slog.String("path", path))
}
