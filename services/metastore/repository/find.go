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
	"time"

	"github.com/metastorehq/metastore/services/metastore/cache"
	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// FindOption narrows a FindByUID lookup. With no options the latest
// version wins regardless of status.
type FindOption func(*findQuery)

type findQuery struct {
	version   string
	status    versioning.Status
	hasStatus bool
	atDate    time.Time
	hasDate   bool
}

// AtVersion selects one exact version number, e.g. "1.2".
func AtVersion(version string) FindOption {
	return func(q *findQuery) { q.version = version }
}

// WithStatus selects the latest version in the given status.
func WithStatus(status versioning.Status) FindOption {
	return func(q *findQuery) {
		q.status = status
		q.hasStatus = true
	}
}

// AtDate selects the version that was current at the given instant.
// May be combined with WithStatus, but not with AtVersion.
func AtDate(at time.Time) FindOption {
	return func(q *findQuery) {
		q.atDate = at
		q.hasDate = true
	}
}

func (q *findQuery) cacheKey(typ, uid string) cache.Key {
	k := cache.Key{Type: typ, UID: uid, Version: q.version}
	if q.hasStatus {
		k.Status = q.status.String()
	}
	if q.hasDate {
		k.AtDate = q.atDate.UTC().Format(time.RFC3339Nano)
	}
	return k
}

// FindByUID retrieves a read-only view of the aggregate identified by
// uid, narrowed by the given options. It dispatches on the filter
// combination: no filter follows the latest pointer, a status filter
// follows that status's pointer, a date filter scans version edges, and
// a version filter matches version numbers exactly.
//
// Outputs: the aggregate, or ErrNotFound when the uid is unknown, the
// root is soft-deleted, or no version satisfies the filters.
// ErrUnsupported is returned for a version filter combined with a date
// filter.
func (r *Repository[A]) FindByUID(ctx context.Context, txn *graph.Txn, uid string, opts ...FindOption) (ReadOnly[A], error) {
	var q findQuery
	for _, opt := range opts {
		opt(&q)
	}
	if q.version != "" && q.hasDate {
		return ReadOnly[A]{}, fmt.Errorf("%w: version and date filters are mutually exclusive", ErrUnsupported)
	}

	key := q.cacheKey(r.domain.TypeName(), uid)
	if r.items != nil {
		if hit, ok := r.items.Get(ctx, key); ok {
			if item, ok := hit.(A); ok {
				return ReadOnly[A]{Item: r.domain.Clone(item)}, nil
			}
		}
	}

	root, library, err := r.rootAndLibrary(txn, uid)
	if err != nil {
		return ReadOnly[A]{}, err
	}

	var value graph.Node
	var meta versioning.Metadata
	switch {
	case q.version != "":
		value, meta, err = r.findAtVersion(txn, root, &q)
	case q.hasDate:
		value, meta, err = r.findAtDate(txn, root, &q)
	case q.hasStatus:
		value, meta, err = r.findByStatus(txn, root, q.status)
	default:
		value, meta, err = r.findLatest(txn, root)
	}
	if err != nil {
		return ReadOnly[A]{}, err
	}

	item, err := r.domain.BuildAggregate(root, value, meta, library)
	if err != nil {
		return ReadOnly[A]{}, fmt.Errorf("build %s %s: %w", r.domain.TypeName(), uid, err)
	}
	if r.items != nil {
		r.items.Put(ctx, key, r.domain.Clone(item))
	}
	return ReadOnly[A]{Item: item}, nil
}

// FindByUIDForUpdate retrieves the latest version of the aggregate with
// write intent: the root node is registered in the transaction's read
// and write sets, so a concurrent save of the same entity between this
// read and commit fails the commit. The result carries the closure
// Save needs to compute deltas. The cache is bypassed in both
// directions.
func (r *Repository[A]) FindByUIDForUpdate(ctx context.Context, txn *graph.Txn, uid string) (*Editable[A], error) {
	root, library, err := r.rootAndLibrary(txn, uid)
	if err != nil {
		return nil, err
	}
	if err := txn.TouchNode(root.ID); err != nil {
		return nil, fmt.Errorf("arm write guard for %s: %w", uid, err)
	}

	value, meta, err := r.findLatest(txn, root)
	if err != nil {
		return nil, err
	}
	item, err := r.domain.BuildAggregate(root, value, meta, library)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", r.domain.TypeName(), uid, err)
	}
	return &Editable[A]{
		Item: item,
		closure: &closure[A]{
			root:     root,
			value:    value,
			library:  library,
			previous: r.domain.Clone(item),
		},
	}, nil
}

// rootAndLibrary resolves the live root node for uid and its owning
// library. Soft-deleted roots no longer carry the live root label and
// read as ErrNotFound.
func (r *Repository[A]) rootAndLibrary(txn *graph.Txn, uid string) (graph.Node, versioning.Library, error) {
	root, err := txn.GetNode(uid)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return graph.Node{}, versioning.Library{}, fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
		}
		return graph.Node{}, versioning.Library{}, err
	}
	if !root.HasLabel(r.rootLabel()) {
		return graph.Node{}, versioning.Library{}, fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
	}
	library, err := r.libraryOf(txn, root)
	if err != nil {
		return graph.Node{}, versioning.Library{}, err
	}
	return root, library, nil
}

func (r *Repository[A]) libraryOf(txn *graph.Txn, root graph.Node) (versioning.Library, error) {
	edges, err := txn.OutEdges(root.ID, EdgeHasLibrary)
	if err != nil {
		return versioning.Library{}, err
	}
	if len(edges) == 0 {
		return versioning.Library{}, nil
	}
	node, err := txn.GetNode(edges[0].To)
	if err != nil {
		return versioning.Library{}, fmt.Errorf("library of %s: %w", root.ID, err)
	}
	return libraryFromNode(node), nil
}

// findLatest follows the LATEST pointer and picks its current version
// edge.
func (r *Repository[A]) findLatest(txn *graph.Txn, root graph.Node) (graph.Node, versioning.Metadata, error) {
	value, err := r.pointerTarget(txn, root, EdgeLatest)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	meta, err := r.latestVersionMeta(txn, root, value)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	return value, meta, nil
}

// findByStatus follows the status pointer. Pointers can go stale when a
// writer died between edge rewrites, so a pointer whose version edge no
// longer matches the requested status falls back to a scan over all
// version edges in that status.
func (r *Repository[A]) findByStatus(txn *graph.Txn, root graph.Node, status versioning.Status) (graph.Node, versioning.Metadata, error) {
	value, err := r.pointerTarget(txn, root, pointerEdgeType(status))
	if err == nil {
		meta, metaErr := r.statusVersionMeta(txn, root, value, status)
		if metaErr == nil {
			return value, meta, nil
		}
		r.log.Warn("stale status pointer, falling back to version scan",
			"type", r.domain.TypeName(), "uid", root.ID, "status", status.String())
	} else if !errors.Is(err, ErrNotFound) {
		return graph.Node{}, versioning.Metadata{}, err
	}
	return r.scanForStatus(txn, root, status)
}

// statusVersionMeta resolves the representative version edge in a given
// status between a root and the value its status pointer targets.
func (r *Repository[A]) statusVersionMeta(txn *graph.Txn, root, value graph.Node, status versioning.Status) (versioning.Metadata, error) {
	edges, err := txn.EdgesBetween(root.ID, value.ID, EdgeHasVersion)
	if err != nil {
		return versioning.Metadata{}, err
	}
	var metas []versioning.Metadata
	for _, e := range edges {
		meta, err := metadataFromEdge(e)
		if err != nil || meta.Status != status {
			continue
		}
		metas = append(metas, meta)
	}
	if len(metas) == 0 {
		return versioning.Metadata{}, fmt.Errorf("%s %s has no %s edge to %s: %w",
			r.domain.TypeName(), root.ID, status.String(), value.ID, ErrNotFound)
	}
	pick, anomaly := versioning.LatestIn(metas)
	if anomaly {
		r.log.Warn("multiple open version edges in one status",
			"type", r.domain.TypeName(), "uid", root.ID, "status", status.String())
	}
	return metas[pick], nil
}

// scanForStatus picks the current version in a status from the raw
// version edges: the open edge if one exists, otherwise the one closed
// last.
func (r *Repository[A]) scanForStatus(txn *graph.Txn, root graph.Node, status versioning.Status) (graph.Node, versioning.Metadata, error) {
	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	best := -1
	var bestMeta versioning.Metadata
	for i, e := range edges {
		meta, err := metadataFromEdge(e)
		if err != nil || meta.Status != status {
			continue
		}
		switch {
		case best == -1:
			best = i
			bestMeta = meta
		case meta.Open() && !bestMeta.Open():
			best = i
			bestMeta = meta
		case meta.Open() == bestMeta.Open() && laterEnd(meta, bestMeta):
			best = i
			bestMeta = meta
		}
	}
	if best == -1 {
		return graph.Node{}, versioning.Metadata{}, fmt.Errorf("%s %s has no %s version: %w",
			r.domain.TypeName(), root.ID, status.String(), ErrNotFound)
	}
	value, err := txn.GetNode(edges[best].To)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	return value, bestMeta, nil
}

func laterEnd(a, b versioning.Metadata) bool {
	if a.EndDate == nil || b.EndDate == nil {
		return a.StartDate.After(b.StartDate)
	}
	return a.EndDate.After(*b.EndDate)
}

// findAtDate picks the version whose validity started most recently at
// or before the requested instant, optionally restricted to a status.
func (r *Repository[A]) findAtDate(txn *graph.Txn, root graph.Node, q *findQuery) (graph.Node, versioning.Metadata, error) {
	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	best := -1
	var bestMeta versioning.Metadata
	for i, e := range edges {
		meta, err := metadataFromEdge(e)
		if err != nil {
			continue
		}
		if meta.StartDate.After(q.atDate) {
			continue
		}
		if q.hasStatus && meta.Status != q.status {
			continue
		}
		if best == -1 || meta.StartDate.After(bestMeta.StartDate) {
			best = i
			bestMeta = meta
		}
	}
	if best == -1 {
		return graph.Node{}, versioning.Metadata{}, fmt.Errorf("%s %s has no version at %s: %w",
			r.domain.TypeName(), root.ID, q.atDate.Format(time.RFC3339), ErrNotFound)
	}
	value, err := txn.GetNode(edges[best].To)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	return value, bestMeta, nil
}

// findAtVersion matches one exact version number. A version number can
// have several edges when an aggregate bounced between statuses without
// renumbering, so the representative edge is chosen the same way the
// latest pointer is resolved.
func (r *Repository[A]) findAtVersion(txn *graph.Txn, root graph.Node, q *findQuery) (graph.Node, versioning.Metadata, error) {
	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	var metas []versioning.Metadata
	var idx []int
	for i, e := range edges {
		meta, err := metadataFromEdge(e)
		if err != nil || meta.Version() != q.version {
			continue
		}
		metas = append(metas, meta)
		idx = append(idx, i)
	}
	if len(metas) == 0 {
		return graph.Node{}, versioning.Metadata{}, fmt.Errorf("%s %s has no version %s: %w",
			r.domain.TypeName(), root.ID, q.version, ErrNotFound)
	}
	pick, anomaly := versioning.LatestIn(metas)
	if anomaly {
		r.log.Warn("multiple open edges for one version",
			"type", r.domain.TypeName(), "uid", root.ID, "version", q.version)
	}
	meta := metas[pick]
	if q.hasStatus && meta.Status != q.status {
		return graph.Node{}, versioning.Metadata{}, fmt.Errorf("%s %s version %s is %s, not %s: %w",
			r.domain.TypeName(), root.ID, q.version, meta.Status.String(), q.status.String(), ErrNotFound)
	}
	value, err := txn.GetNode(edges[idx[pick]].To)
	if err != nil {
		return graph.Node{}, versioning.Metadata{}, err
	}
	return value, meta, nil
}

// pointerTarget resolves a pointer edge to its value node. Missing
// pointers read as ErrNotFound.
func (r *Repository[A]) pointerTarget(txn *graph.Txn, root graph.Node, edgeType string) (graph.Node, error) {
	edges, err := txn.OutEdges(root.ID, edgeType)
	if err != nil {
		return graph.Node{}, err
	}
	if len(edges) == 0 {
		return graph.Node{}, fmt.Errorf("%s %s has no %s pointer: %w",
			r.domain.TypeName(), root.ID, edgeType, ErrNotFound)
	}
	return txn.GetNode(edges[0].To)
}

// latestVersionMeta resolves the representative version edge between a
// root and one of its value nodes. More than one open edge is an
// invariant violation from an interrupted writer and is logged; reads
// still proceed with the most recently started edge.
func (r *Repository[A]) latestVersionMeta(txn *graph.Txn, root graph.Node, value graph.Node) (versioning.Metadata, error) {
	edges, err := txn.EdgesBetween(root.ID, value.ID, EdgeHasVersion)
	if err != nil {
		return versioning.Metadata{}, err
	}
	var metas []versioning.Metadata
	for _, e := range edges {
		meta, err := metadataFromEdge(e)
		if err != nil {
			r.log.Warn("skipping malformed version edge",
				"type", r.domain.TypeName(), "uid", root.ID, "edge", e.ID, "error", err)
			continue
		}
		metas = append(metas, meta)
	}
	if len(metas) == 0 {
		return versioning.Metadata{}, fmt.Errorf("%s %s has no version edge to %s: %w",
			r.domain.TypeName(), root.ID, value.ID, ErrNotFound)
	}
	pick, anomaly := versioning.LatestIn(metas)
	if anomaly {
		r.log.Warn("multiple open version edges",
			"type", r.domain.TypeName(), "uid", root.ID, "value", value.ID)
	}
	return metas[pick], nil
}
