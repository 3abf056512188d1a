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
	"strconv"

	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// HistoryRow is one version in an entity's reconstructed history: the
// merged field view plus the raw pieces it was built from.
type HistoryRow struct {
	Fields graph.Properties
	Value  graph.Node
	Edge   graph.Edge
	Meta   versioning.Metadata
}

// VersionHistory reconstructs the complete version history of an
// entity, one row per version edge, newest first. Rows merge value
// content with edge metadata and library attribution; value nodes
// shared by several versions appear once per edge.
//
// The history of soft-deleted entities stays reachable here even though
// regular lookups miss them.
func (r *Repository[A]) VersionHistory(ctx context.Context, txn *graph.Txn, uid string) ([]HistoryRow, error) {
	root, library, err := r.historyRoot(txn, uid)
	if err != nil {
		return nil, err
	}

	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("%s %s has no versions: %w", r.domain.TypeName(), uid, ErrNotFound)
	}

	values := map[string]graph.Node{}
	rows := make([]HistoryRow, 0, len(edges))
	for _, edge := range edges {
		value, ok := values[edge.To]
		if !ok {
			value, err = txn.GetNode(edge.To)
			if err != nil {
				if errors.Is(err, graph.ErrNodeNotFound) {
					r.log.Warn("version edge to missing value node",
						"type", r.domain.TypeName(), "uid", uid, "value", edge.To)
					continue
				}
				return nil, err
			}
			values[edge.To] = value
		}
		meta, err := metadataFromEdge(edge)
		if err != nil {
			r.log.Warn("skipping malformed version edge",
				"type", r.domain.TypeName(), "uid", uid, "edge", edge.ID, "error", err)
			continue
		}

		fields := value.Props.Clone()
		for k, v := range edge.Props {
			fields[k] = v
		}
		if library.Defined() {
			fields[PropLibraryName] = library.Name
			fields[PropLibraryEditable] = strconv.FormatBool(library.IsEditable)
		}
		rows = append(rows, HistoryRow{Fields: fields, Value: value, Edge: edge, Meta: meta})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Meta.StartDate.Equal(rows[j].Meta.StartDate) {
			return rows[i].Meta.StartDate.After(rows[j].Meta.StartDate)
		}
		return versioning.CompareVersions(rows[i].Meta.Version(), rows[j].Meta.Version()) > 0
	})
	return rows, nil
}

// AllVersions rebuilds every version of the entity as a read-only
// aggregate, newest first.
func (r *Repository[A]) AllVersions(ctx context.Context, txn *graph.Txn, uid string) ([]ReadOnly[A], error) {
	root, library, err := r.historyRoot(txn, uid)
	if err != nil {
		return nil, err
	}
	rows, err := r.VersionHistory(ctx, txn, uid)
	if err != nil {
		return nil, err
	}
	out := make([]ReadOnly[A], 0, len(rows))
	for _, row := range rows {
		item, err := r.domain.BuildAggregate(root, row.Value, row.Meta, library)
		if err != nil {
			return nil, fmt.Errorf("build %s %s version %s: %w",
				r.domain.TypeName(), uid, row.Meta.Version(), err)
		}
		out = append(out, ReadOnly[A]{Item: item})
	}
	return out, nil
}

// RetrieveAuditTrail pages over every version of every entity of this
// type, newest change first. page is 1-based; pageSize 0 disables
// paging. When withTotal is set the second return is the unpaged row
// count, otherwise it is 0.
func (r *Repository[A]) RetrieveAuditTrail(ctx context.Context, txn *graph.Txn, page, pageSize int, withTotal bool) ([]ReadOnly[A], int, error) {
	if page < 1 || pageSize < 0 {
		return nil, 0, fmt.Errorf("%w: page must be >= 1 and page size >= 0", ErrUnsupported)
	}

	type entry struct {
		item ReadOnly[A]
		meta versioning.Metadata
	}
	var all []entry

	for _, label := range []string{r.rootLabel(), r.deletedRootLabel()} {
		roots, err := txn.NodesByLabel(label)
		if err != nil {
			return nil, 0, err
		}
		for _, root := range roots {
			versions, err := r.AllVersions(ctx, txn, root.ID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, 0, err
			}
			for _, v := range versions {
				all = append(all, entry{item: v, meta: v.Item.Metadata()})
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].meta.StartDate.Equal(all[j].meta.StartDate) {
			return all[i].meta.StartDate.After(all[j].meta.StartDate)
		}
		return versioning.CompareVersions(all[i].meta.Version(), all[j].meta.Version()) > 0
	})

	total := 0
	if withTotal {
		total = len(all)
	}

	if pageSize > 0 {
		start := (page - 1) * pageSize
		if start >= len(all) {
			return []ReadOnly[A]{}, total, nil
		}
		end := start + pageSize
		if end > len(all) {
			end = len(all)
		}
		all = all[start:end]
	}

	out := make([]ReadOnly[A], 0, len(all))
	for _, e := range all {
		out = append(out, e.item)
	}
	return out, total, nil
}

// historyRoot resolves a root node for history purposes, accepting both
// live and soft-deleted entities.
func (r *Repository[A]) historyRoot(txn *graph.Txn, uid string) (graph.Node, versioning.Library, error) {
	root, err := txn.GetNode(uid)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return graph.Node{}, versioning.Library{}, fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
		}
		return graph.Node{}, versioning.Library{}, err
	}
	if !root.HasLabel(r.rootLabel()) && !root.HasLabel(r.deletedRootLabel()) {
		return graph.Node{}, versioning.Library{}, fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
	}
	library, err := r.libraryOf(txn, root)
	if err != nil {
		return graph.Node{}, versioning.Library{}, err
	}
	return root, library, nil
}
