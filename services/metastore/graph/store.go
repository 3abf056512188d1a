// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	storage "github.com/metastorehq/metastore/services/metastore/storage/badger"
)

// Store is the entity graph store. It owns the underlying BadgerDB and
// hands out transactional views of the graph.
//
// Thread Safety: Store is safe for concurrent use. Each View/Update
// call runs in its own Badger transaction; Update surfaces
// ErrWriteConflict when two transactions raced on the same keys.
type Store struct {
	db  *storage.DB
	log *slog.Logger
}

// Open opens (or creates) a graph store with the given storage
// configuration.
//
// Outputs:
//
//	*Store - The opened store. Caller must Close() it.
//	error - Non-nil if the underlying database cannot be opened.
func Open(cfg storage.Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory(log *slog.Logger) (*Store, error) {
	return Open(storage.InMemoryConfig(), log)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(*Txn) error) error {
	return s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		return fn(&Txn{txn: txn})
	})
}

// Update runs fn inside a read-write transaction and commits on nil
// return. A commit-time conflict with a concurrent transaction is
// returned as ErrWriteConflict.
func (s *Store) Update(ctx context.Context, fn func(*Txn) error) error {
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return fn(&Txn{txn: txn})
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	return err
}
