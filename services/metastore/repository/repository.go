// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package repository implements the generic versioned-entity engine:
// retrieval with version/status/date filters, the create/update/delete
// save dispatch, full history reconstruction, and the audit trail. One
// engine instance serves one entity type via its Domain hooks.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/metastorehq/metastore/services/metastore/cache"
	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// Repository is the versioned-entity engine for one aggregate type.
//
// Thread Safety: safe for concurrent use. Mutating operations run inside
// graph.Store.Update transactions; concurrent writers touching the same
// root are serialized by the store's conflict detection and the loser
// receives ErrConcurrentUpdate.
type Repository[A Aggregate] struct {
	store  *graph.Store
	domain Domain[A]
	items  *cache.ItemCache
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Repository. Options are non-generic so a single
// option value can configure repositories of different aggregate types.
type Option func(*settings)

type settings struct {
	cache *cache.ItemCache
	log   *slog.Logger
	now   func() time.Time
}

// WithCache installs a read cache. Entries are purged per entity type on
// every save, so one cache may be shared across repositories.
func WithCache(c *cache.ItemCache) Option {
	return func(s *settings) { s.cache = c }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithClock overrides the time source. Used by tests to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// New constructs a repository over the given store and domain hooks.
func New[A Aggregate](store *graph.Store, domain Domain[A], opts ...Option) *Repository[A] {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return &Repository[A]{
		store:  store,
		domain: domain,
		items:  s.cache,
		log:    s.log,
		now:    s.now,
	}
}

// Store exposes the underlying graph store, mainly for callers that
// need to compose multi-repository transactions.
func (r *Repository[A]) Store() *graph.Store { return r.store }

func (r *Repository[A]) rootLabel() string { return r.domain.TypeName() + "Root" }

func (r *Repository[A]) deletedRootLabel() string { return "Deleted" + r.domain.TypeName() + "Root" }

func (r *Repository[A]) valueLabel() string { return r.domain.TypeName() + "Value" }

// WithView runs fn inside a read-only transaction.
func (r *Repository[A]) WithView(ctx context.Context, fn func(txn *graph.Txn) error) error {
	return r.store.View(ctx, fn)
}

// WithUpdate runs fn inside a read-write transaction. A commit-time
// write conflict is reported as ErrConcurrentUpdate: the retrieved
// state was stale by commit, and the caller decides whether to retry.
func (r *Repository[A]) WithUpdate(ctx context.Context, fn func(txn *graph.Txn) error) error {
	err := r.store.Update(ctx, fn)
	if errors.Is(err, graph.ErrWriteConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return err
}

// EnsureLibrary creates the node for a library if it does not exist.
// An existing node keeps its stored flags regardless of what the
// caller passes. Library nodes are keyed by name and shared by every
// entity type.
func (r *Repository[A]) EnsureLibrary(txn *graph.Txn, lib versioning.Library) error {
	if !lib.Defined() {
		return fmt.Errorf("ensure library: empty name")
	}
	if _, err := txn.GetNode("library_" + lib.Name); err == nil {
		return nil
	} else if !errors.Is(err, graph.ErrNodeNotFound) {
		return err
	}
	node := graph.Node{
		ID:     "library_" + lib.Name,
		Labels: []string{LabelLibrary},
		Props: graph.Properties{
			PropName:       lib.Name,
			PropIsEditable: strconv.FormatBool(lib.IsEditable),
		},
	}
	if err := txn.PutNode(node); err != nil {
		return fmt.Errorf("ensure library %q: %w", lib.Name, err)
	}
	return nil
}

func (r *Repository[A]) libraryNode(txn *graph.Txn, name string) (graph.Node, error) {
	node, err := txn.GetNode("library_" + name)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return graph.Node{}, fmt.Errorf("library %q: %w", name, ErrNotFound)
		}
		return graph.Node{}, err
	}
	return node, nil
}
