// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// ListOption narrows a FindAll listing.
type ListOption func(*listQuery)

type listQuery struct {
	status    versioning.Status
	hasStatus bool
	library   string
}

// InStatus restricts the listing to entities whose listed version is in
// the given status.
func InStatus(status versioning.Status) ListOption {
	return func(q *listQuery) {
		q.status = status
		q.hasStatus = true
	}
}

// InLibrary restricts the listing to entities owned by the named
// library.
func InLibrary(name string) ListOption {
	return func(q *listQuery) { q.library = name }
}

// FindAll lists one current version per live entity of the repository's
// type, newest uid first. With a status filter the listed version is
// that status's current one; entities without a version in the status
// are skipped.
func (r *Repository[A]) FindAll(ctx context.Context, txn *graph.Txn, opts ...ListOption) ([]ReadOnly[A], error) {
	var q listQuery
	for _, opt := range opts {
		opt(&q)
	}

	roots, err := txn.NodesByLabel(r.rootLabel())
	if err != nil {
		return nil, err
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID > roots[j].ID })

	out := make([]ReadOnly[A], 0, len(roots))
	for _, root := range roots {
		library, err := r.libraryOf(txn, root)
		if err != nil {
			return nil, err
		}
		if q.library != "" && library.Name != q.library {
			continue
		}

		var value graph.Node
		var meta versioning.Metadata
		if q.hasStatus {
			value, meta, err = r.findByStatus(txn, root, q.status)
		} else {
			value, meta, err = r.findLatest(txn, root)
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}

		item, err := r.domain.BuildAggregate(root, value, meta, library)
		if err != nil {
			return nil, err
		}
		out = append(out, ReadOnly[A]{Item: item})
	}
	return out, nil
}

// UIDByName finds the entity whose current value carries the given
// name. Returns ErrNotFound when no live entity matches.
func (r *Repository[A]) UIDByName(ctx context.Context, txn *graph.Txn, name string) (string, error) {
	roots, err := txn.NodesByLabel(r.rootLabel())
	if err != nil {
		return "", err
	}
	for _, root := range roots {
		value, err := r.pointerTarget(txn, root, EdgeLatest)
		if err != nil {
			continue
		}
		if value.Props[PropName] == name {
			return root.ID, nil
		}
	}
	return "", fmt.Errorf("%s named %q: %w", r.domain.TypeName(), name, ErrNotFound)
}

// ExistsByName reports whether a live entity currently carries the
// given name.
func (r *Repository[A]) ExistsByName(ctx context.Context, txn *graph.Txn, name string) (bool, error) {
	_, err := r.UIDByName(ctx, txn, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FinalVersionExists reports whether the entity has ever been approved.
// An unknown uid is ErrNotFound, so "never approved" stays
// distinguishable from "does not exist".
func (r *Repository[A]) FinalVersionExists(ctx context.Context, txn *graph.Txn, uid string) (bool, error) {
	root, err := txn.GetNode(uid)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return false, fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
		}
		return false, err
	}
	if !root.HasLabel(r.rootLabel()) && !root.HasLabel(r.deletedRootLabel()) {
		return false, fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
	}
	return r.finalVersionExists(txn, root)
}
