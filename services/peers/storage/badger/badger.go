// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps BadgerDB with the lifecycle pieces the embedding
// cache needs: slog-backed logging, a value-log GC loop, and transaction
// helpers that respect context cancellation.
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// Config controls how a Badger database is opened.
//
// Description:
//
//	The zero value is not usable; build one with DefaultConfig or
//	InMemoryConfig and adjust fields as needed.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is true.
	Path string

	// InMemory opens a database that never touches disk. Used by tests
	// and by deployments that only want a per-process vector cache.
	InMemory bool

	// SyncWrites forces fsync on every write. Cached embeddings are
	// recomputable, so this defaults to false.
	SyncWrites bool

	// GCInterval is how often the value-log GC runs. Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the reclaim threshold passed to RunValueLogGC.
	GCDiscardRatio float64

	// Logger receives Badger's internal log lines. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns an on-disk configuration suited to cache data.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     false,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for an ephemeral database.
func InMemoryConfig() Config {
	return Config{
		InMemory:       true,
		GCInterval:     0, // nothing on disk to reclaim
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts slog to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf("badger: "+format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf("badger: "+format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf("badger: "+format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf("badger: "+format, args...))
}

// DB wraps a Badger database together with its GC loop.
//
// Thread Safety: DB is safe for concurrent use; Badger transactions
// provide snapshot isolation.
type DB struct {
	db       *dgbadger.DB
	logger   *slog.Logger
	path     string
	inMemory bool

	gcStop     chan struct{}
	gcDone     chan struct{}
	gcInterval time.Duration
	gcRatio    float64

	closeOnce sync.Once
	closeErr  error
}

// Open opens (or creates) a Badger database per cfg and starts the GC
// loop when configured.
//
// Outputs:
//   - *DB: The opened database.
//   - error: Non-nil when the directory cannot be created or Badger
//     fails to open (e.g. another process holds the lock).
func Open(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts dgbadger.Options
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger: path is required for on-disk database")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("badger: creating directory %s: %w", cfg.Path, err)
		}
		opts = dgbadger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(badgerLogger{logger: logger})

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: opening database: %w", err)
	}

	d := &DB{
		db:         db,
		logger:     logger,
		path:       cfg.Path,
		inMemory:   cfg.InMemory,
		gcInterval: cfg.GCInterval,
		gcRatio:    cfg.GCDiscardRatio,
	}

	if !cfg.InMemory && cfg.GCInterval > 0 {
		d.gcStop = make(chan struct{})
		d.gcDone = make(chan struct{})
		go d.runGC()
	}

	logger.Info("BadgerDB opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
	)
	return d, nil
}

// runGC periodically reclaims value-log space. Badger returns ErrNoRewrite
// when there is nothing to collect, which is not an error.
func (d *DB) runGC() {
	defer close(d.gcDone)
	ticker := time.NewTicker(d.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.gcStop:
			return
		case <-ticker.C:
			for {
				err := d.db.RunValueLogGC(d.gcRatio)
				if err == dgbadger.ErrNoRewrite {
					break
				}
				if err != nil {
					d.logger.Warn("badger: value log GC failed", slog.String("error", err.Error()))
					break
				}
				// a rewrite happened; try again in case more space is reclaimable
			}
		}
	}
}

// Close stops the GC loop and closes the underlying database. Safe to
// call more than once.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		if d.gcStop != nil {
			close(d.gcStop)
			<-d.gcDone
		}
		d.closeErr = d.db.Close()
		if d.closeErr != nil {
			d.logger.Error("BadgerDB close failed", slog.String("error", d.closeErr.Error()))
		}
	})
	return d.closeErr
}

// Path returns the on-disk directory, or "" for in-memory databases.
func (d *DB) Path() string { return d.path }

// InMemory reports whether the database lives only in process memory.
func (d *DB) InMemory() bool { return d.inMemory }

// WithTxn runs fn inside a read-write transaction and commits it when fn
// returns nil.
//
// Inputs:
//   - ctx: Checked before starting; Badger transactions themselves are
//     not cancellable mid-flight.
//   - fn: Receives the live transaction. Returning an error discards it.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("badger: committing transaction: %w", err)
	}
	return nil
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := d.db.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}
