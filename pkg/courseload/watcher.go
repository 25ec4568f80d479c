// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package courseload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/courseware-labs/tally/pkg/storage"
)

// defaultDebounce collapses editor save bursts into one reload.
const defaultDebounce = 300 * time.Millisecond

// Watcher reloads course definition files when they change on disk and
// reseeds the stores with the updated definitions.
type Watcher struct {
	loader   *Loader
	entities storage.EntityWriter
	events   EventSink
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	watcher *fsnotify.Watcher

	// OnReload, when set, is called after each successful reseed.
	OnReload func(path string)
}

// NewWatcher creates a watcher seeding into the given stores. events may
// be nil if fixtures should not be replayed on reload.
func NewWatcher(loader *Loader, entities storage.EntityWriter, events EventSink, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		loader:   loader,
		entities: entities,
		events:   events,
		logger:   logger,
		debounce: defaultDebounce,
		timers:   make(map[string]*time.Timer),
		watcher:  fsw,
	}, nil
}

// Watch adds a directory of course YAML files to the watch set.
func (w *Watcher) Watch(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Info("Watching course directory", zap.String("dir", dir))
	return nil
}

// Run processes filesystem events until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isCourseFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

// schedule (re)arms the per-file debounce timer.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.reload(ctx, path)
	})
}

func (w *Watcher) reload(ctx context.Context, path string) {
	course, err := w.loader.LoadFile(path)
	if err != nil {
		w.logger.Warn("Skipping invalid course file",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	if err := w.loader.Seed(ctx, course, w.entities, w.events); err != nil {
		w.logger.Error("Failed to reseed course",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	w.logger.Info("Reloaded course file", zap.String("path", path))
	if w.OnReload != nil {
		w.OnReload(path)
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func isCourseFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
