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

	"github.com/google/uuid"

	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// Save persists an editable aggregate, dispatching on its state: a
// soft-deleted aggregate is tombstoned, one retrieved for update is
// diffed against its closure, and one never persisted is created.
// Whatever the path, every cached entry of this entity type is purged
// so subsequent reads cannot observe pre-save state.
//
// After a successful save the closure is refreshed, so the same
// Editable can be mutated and saved again within the transaction.
func (r *Repository[A]) Save(ctx context.Context, txn *graph.Txn, e *Editable[A]) error {
	if r.items != nil {
		defer r.items.PurgeType(r.domain.TypeName())
	}
	switch {
	case e.Item.IsDeleted():
		return r.softDelete(txn, e)
	case e.closure != nil:
		return r.update(txn, e)
	default:
		return r.create(txn, e)
	}
}

// create writes the root/value pair: the version edge, the latest
// pointer, the status pointer, and the library link, then hands off to
// the domain for cross references.
//
// A pre-assigned uid may target a root that already carries a version
// chain (re-creation after a soft delete or an undone removal). The
// value is then resolved against that chain and the pointers are
// rebuilt, so a re-create never accumulates duplicate value nodes or a
// second pointer of any type.
func (r *Repository[A]) create(txn *graph.Txn, e *Editable[A]) error {
	item := e.Item
	uid := item.UID()
	if uid == "" {
		uid = r.domain.TypeName() + "_" + uuid.NewString()
		if err := item.AssignUID(uid); err != nil {
			return fmt.Errorf("assign uid: %w", err)
		}
	}

	root := graph.Node{
		ID:     uid,
		Labels: []string{r.rootLabel()},
		Props:  graph.Properties{PropUID: uid},
	}
	if err := txn.PutNode(root); err != nil {
		return fmt.Errorf("create %s root: %w", r.domain.TypeName(), err)
	}

	value, err := r.getOrCreateValue(txn, root, item)
	if err != nil {
		return err
	}

	meta := item.Metadata()
	// Whatever is still open on a pre-existing chain ends where the new
	// edition begins.
	open, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return err
	}
	for _, edge := range open {
		if _, ok := edge.Props[PropEndDate]; ok {
			continue
		}
		edge.Props.SetTime(PropEndDate, meta.StartDate)
		if err := txn.UpdateEdge(edge); err != nil {
			return fmt.Errorf("close version edge %s: %w", edge.ID, err)
		}
	}
	if err := r.recreatePointer(txn, root, value, meta); err != nil {
		return err
	}
	if err := r.repointLatest(txn, root, value); err != nil {
		return err
	}

	library := item.Library()
	if library.Defined() {
		if err := r.relinkLibrary(txn, root, library); err != nil {
			return err
		}
	}

	if err := r.domain.PersistCrossReferences(txn, item, root, value); err != nil {
		return fmt.Errorf("persist cross references: %w", err)
	}

	e.closure = &closure[A]{root: root, value: value, library: library, previous: r.domain.Clone(item)}
	return nil
}

// update diffs the aggregate against its retrieval closure. Content
// changes while still in Draft amend the current version in place with
// a fresh value node; any metadata change rewrites the status pointer
// and closes superseded version edges.
func (r *Repository[A]) update(txn *graph.Txn, e *Editable[A]) error {
	item := e.Item
	cl := e.closure
	meta := item.Metadata()
	prevMeta := cl.previous.Metadata()

	root := cl.root
	value := cl.value

	if item.Library().Name != cl.library.Name {
		if err := r.relinkLibrary(txn, root, item.Library()); err != nil {
			return err
		}
	}

	// Content may only be amended in place while the version stays in
	// Draft; approved content is immutable and changes surface through
	// new versions instead.
	changesPossible := prevMeta.Status == versioning.StatusDraft && meta.Status == versioning.StatusDraft
	dataChanged := false
	if changesPossible && r.domain.HasContentChanged(item, value) {
		newValue, err := r.getOrCreateValue(txn, root, item)
		if err != nil {
			return err
		}
		if newValue.ID != value.ID {
			if err := r.repointLatest(txn, root, newValue); err != nil {
				return err
			}
			value = newValue
		}
		dataChanged = true
	}

	if dataChanged || !meta.Equal(prevMeta) {
		if err := r.recreatePointer(txn, root, value, meta); err != nil {
			return err
		}
		if err := r.closePreviousVersions(txn, root, meta); err != nil {
			return err
		}
	}

	if err := r.domain.PersistCrossReferences(txn, item, root, value); err != nil {
		return fmt.Errorf("persist cross references: %w", err)
	}

	e.closure = &closure[A]{root: root, value: value, library: item.Library(), previous: r.domain.Clone(item)}
	return nil
}

// recreatePointer moves the status pointer for meta.Status to value and
// rewrites the version edge: the open edge between root and value (if
// any) is closed at the new version's start, then a fresh open edge
// carrying meta is added alongside the pointer.
func (r *Repository[A]) recreatePointer(txn *graph.Txn, root, value graph.Node, meta versioning.Metadata) error {
	pointerType := pointerEdgeType(meta.Status)
	pointers, err := txn.OutEdges(root.ID, pointerType)
	if err != nil {
		return err
	}
	for _, p := range pointers {
		if err := txn.RemoveEdge(p); err != nil {
			return fmt.Errorf("remove stale %s pointer: %w", pointerType, err)
		}
	}

	between, err := txn.EdgesBetween(root.ID, value.ID, EdgeHasVersion)
	if err != nil {
		return err
	}
	for _, edge := range between {
		if _, ok := edge.Props[PropEndDate]; ok {
			continue
		}
		edge.Props.SetTime(PropEndDate, meta.StartDate)
		if err := txn.UpdateEdge(edge); err != nil {
			return fmt.Errorf("close version edge %s: %w", edge.ID, err)
		}
	}

	if _, err := txn.AddEdge(graph.Edge{
		Type: EdgeHasVersion, From: root.ID, To: value.ID, Props: metadataToProps(meta),
	}); err != nil {
		return fmt.Errorf("add version edge: %w", err)
	}
	if _, err := txn.AddEdge(graph.Edge{Type: pointerType, From: root.ID, To: value.ID}); err != nil {
		return fmt.Errorf("add %s pointer: %w", pointerType, err)
	}
	return nil
}

// closePreviousVersions ends every still-open version edge that does
// not carry the new version number. Only one version of an entity is
// current at a time.
func (r *Repository[A]) closePreviousVersions(txn *graph.Txn, root graph.Node, meta versioning.Metadata) error {
	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if edge.Props[PropVersion] == meta.Version() {
			continue
		}
		if _, ok := edge.Props[PropEndDate]; ok {
			continue
		}
		edge.Props.SetTime(PropEndDate, meta.StartDate)
		if err := txn.UpdateEdge(edge); err != nil {
			return fmt.Errorf("close previous version edge %s: %w", edge.ID, err)
		}
	}
	return nil
}

// repointLatest moves the LATEST pointer to a new value node.
func (r *Repository[A]) repointLatest(txn *graph.Txn, root, value graph.Node) error {
	pointers, err := txn.OutEdges(root.ID, EdgeLatest)
	if err != nil {
		return err
	}
	for _, p := range pointers {
		if err := txn.RemoveEdge(p); err != nil {
			return fmt.Errorf("remove latest pointer: %w", err)
		}
	}
	if _, err := txn.AddEdge(graph.Edge{Type: EdgeLatest, From: root.ID, To: value.ID}); err != nil {
		return fmt.Errorf("add latest pointer: %w", err)
	}
	return nil
}

// getOrCreateValue deduplicates value nodes: if any existing version of
// the entity already carries identical content, that node is reused and
// the history converges on it instead of accumulating byte-equal
// copies.
func (r *Repository[A]) getOrCreateValue(txn *graph.Txn, root graph.Node, item A) (graph.Node, error) {
	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return graph.Node{}, err
	}
	seen := map[string]bool{}
	for _, edge := range edges {
		if seen[edge.To] {
			continue
		}
		seen[edge.To] = true
		node, err := txn.GetNode(edge.To)
		if err != nil {
			if errors.Is(err, graph.ErrNodeNotFound) {
				continue
			}
			return graph.Node{}, err
		}
		if node.Props[PropName] == item.Name() && !r.domain.HasContentChanged(item, node) {
			return node, nil
		}
	}
	return r.newValueNode(txn, item)
}

func (r *Repository[A]) newValueNode(txn *graph.Txn, item A) (graph.Node, error) {
	props := r.domain.ValueProperties(item)
	if props == nil {
		props = graph.Properties{}
	}
	if _, ok := props[PropName]; !ok {
		props[PropName] = item.Name()
	}
	value := graph.Node{
		ID:     r.domain.TypeName() + "Value_" + uuid.NewString(),
		Labels: []string{r.valueLabel()},
		Props:  props,
	}
	if err := txn.PutNode(value); err != nil {
		return graph.Node{}, fmt.Errorf("create %s value: %w", r.domain.TypeName(), err)
	}
	return value, nil
}

// relinkLibrary points the root at the named library. The stored
// library node decides editability; the flag carried on the aggregate
// is caller input and is ignored.
func (r *Repository[A]) relinkLibrary(txn *graph.Txn, root graph.Node, lib versioning.Library) error {
	libNode, err := r.libraryNode(txn, lib.Name)
	if err != nil {
		return err
	}
	if stored := libraryFromNode(libNode); !stored.IsEditable {
		return fmt.Errorf("link library %q: %w", stored.Name, versioning.ErrNonEditableLibrary)
	}
	edges, err := txn.OutEdges(root.ID, EdgeHasLibrary)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if err := txn.RemoveEdge(e); err != nil {
			return fmt.Errorf("unlink library: %w", err)
		}
	}
	if _, err := txn.AddEdge(graph.Edge{Type: EdgeHasLibrary, From: root.ID, To: libNode.ID}); err != nil {
		return fmt.Errorf("relink library: %w", err)
	}
	return nil
}

// softDelete tombstones an entity that never reached Final: the root
// swaps its live label for the deleted one, so regular lookups miss it
// while the node and its full edge history stay in place.
func (r *Repository[A]) softDelete(txn *graph.Txn, e *Editable[A]) error {
	uid := e.Item.UID()
	root, err := txn.GetNode(uid)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
		}
		return err
	}
	if !root.HasLabel(r.rootLabel()) {
		return fmt.Errorf("%s %s: %w", r.domain.TypeName(), uid, ErrNotFound)
	}

	final, err := r.finalVersionExists(txn, root)
	if err != nil {
		return err
	}
	if final {
		return fmt.Errorf("delete %s %s: %w", r.domain.TypeName(), uid, versioning.ErrHasFinalVersion)
	}

	root.RemoveLabel(r.rootLabel())
	root.AddLabel(r.deletedRootLabel())
	if err := txn.PutNode(root); err != nil {
		return fmt.Errorf("tombstone %s %s: %w", r.domain.TypeName(), uid, err)
	}

	now := r.now()
	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if _, ok := edge.Props[PropEndDate]; ok {
			continue
		}
		edge.Props.SetTime(PropEndDate, now)
		if err := txn.UpdateEdge(edge); err != nil {
			return fmt.Errorf("close version edge on delete: %w", err)
		}
	}
	return nil
}

func (r *Repository[A]) finalVersionExists(txn *graph.Txn, root graph.Node) (bool, error) {
	pointers, err := txn.OutEdges(root.ID, EdgeLatestFinal)
	if err != nil {
		return false, err
	}
	if len(pointers) > 0 {
		return true, nil
	}
	edges, err := txn.OutEdges(root.ID, EdgeHasVersion)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		if edge.Props[PropStatus] == versioning.StatusFinal.String() {
			return true, nil
		}
	}
	return false, nil
}
