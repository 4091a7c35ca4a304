// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a config file must be quiet before reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(*Config)
	onError  func(error)

	mu      sync.Mutex
	pending time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Watch starts watching path. onChange receives each successfully loaded
// config; onError (optional) receives load failures. The directory is
// watched so editors that replace the file are handled.
func Watch(path string, debounce time.Duration, onChange func(*Config), onError func(error)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     abs,
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
	}
	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()
	return w, nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) processPending() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case now := <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if !due {
				continue
			}
			cfg, err := LoadFromPath(w.path)
			if err != nil {
				w.report(err)
				continue
			}
			if w.onChange != nil {
				w.onChange(cfg)
			}
		}
	}
}

func (w *Watcher) report(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// Close stops watching and waits for the watcher goroutines to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
