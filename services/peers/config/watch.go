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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// VocabStore publishes the effective vocabulary: embedded defaults plus
// an optional operator override file that can change while the service
// runs.
//
// Description:
//
//	Readers call Current on every decomposition, so swaps must be cheap
//	and race-free; the store keeps one immutable *Vocab behind an atomic
//	pointer and replaces the whole value on reload. A broken override
//	file keeps the previous vocabulary in place.
//
// Thread Safety: VocabStore is safe for concurrent use.
type VocabStore struct {
	current atomic.Pointer[Vocab]
}

// NewVocabStore returns a store seeded with the embedded vocabulary.
func NewVocabStore() *VocabStore {
	s := &VocabStore{}
	s.current.Store(MustLoadVocab())
	return s
}

// Current returns the effective vocabulary. The returned value must not
// be mutated.
func (s *VocabStore) Current() *Vocab {
	return s.current.Load()
}

// ApplyOverrides layers the override file at path onto the embedded
// vocabulary and publishes the result.
func (s *VocabStore) ApplyOverrides(path string) error {
	override, err := parseVocabFile(path)
	if err != nil {
		return err
	}
	next := merged(MustLoadVocab(), override)
	s.current.Store(next)
	slog.Info("Vocabulary overrides applied",
		slog.String("path", path),
		slog.Int("company_aliases", len(next.CompanyAliases)),
		slog.Int("parameter_patterns", len(next.ParameterPatterns)),
	)
	return nil
}

// Watch applies the override file now and re-applies it whenever it
// changes, until ctx is cancelled.
//
// Description:
//
//	Watches the file's directory rather than the file itself so editors
//	and config-map style atomic renames (write temp, rename over) are
//	picked up. Reload failures are logged and skipped; the last good
//	vocabulary stays active.
//
// Inputs:
//   - ctx: Cancels the watch loop.
//   - path: The override YAML file.
//
// Outputs:
//   - error: Non-nil only when the watcher cannot be established.
func (s *VocabStore) Watch(ctx context.Context, path string) error {
	if err := s.ApplyOverrides(path); err != nil {
		// Missing file at startup is tolerated; it may appear later.
		slog.Warn("Vocabulary overrides not loaded at startup",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := s.ApplyOverrides(path); err != nil {
					slog.Warn("Vocabulary override reload failed, keeping previous",
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Vocabulary watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
