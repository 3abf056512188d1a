// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"fmt"
	"time"

	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// BasicItem is the simplest aggregate the engine can manage: identity,
// lifecycle, and a name. It doubles as the embedding template for
// richer aggregates and backs the CLI's generic entity commands.
type BasicItem struct {
	versioning.Item

	name string
}

// NewBasicItem starts a new named entity at version 0.1 Draft.
func NewBasicItem(name string, library versioning.Library, author string, now time.Time) (*BasicItem, error) {
	base, err := versioning.NewItem(library, author, now)
	if err != nil {
		return nil, err
	}
	return &BasicItem{Item: base, name: name}, nil
}

func (b *BasicItem) Name() string { return b.name }

// Rename changes the entity's content. Whether the change lands as an
// in-place Draft amendment or requires a new version is the engine's
// call at save time.
func (b *BasicItem) Rename(name string) { b.name = name }

// BasicDomain adapts BasicItem to the engine for an arbitrary entity
// type name.
type BasicDomain struct {
	// Type is the entity type name, e.g. "ActivityTemplate".
	Type string
}

func (d BasicDomain) TypeName() string { return d.Type }

func (d BasicDomain) BuildAggregate(root, value graph.Node, meta versioning.Metadata, library versioning.Library) (*BasicItem, error) {
	uid := root.Props[PropUID]
	if uid == "" {
		uid = root.ID
	}
	name, ok := value.Props[PropName]
	if !ok {
		return nil, fmt.Errorf("value node %s has no name property", value.ID)
	}
	return &BasicItem{
		Item: versioning.ItemFromRepository(uid, library, meta),
		name: name,
	}, nil
}

func (d BasicDomain) ValueProperties(a *BasicItem) graph.Properties {
	return graph.Properties{PropName: a.Name()}
}

func (d BasicDomain) HasContentChanged(a *BasicItem, value graph.Node) bool {
	return a.Name() != value.Props[PropName]
}

func (d BasicDomain) Clone(a *BasicItem) *BasicItem {
	clone := *a
	return &clone
}

func (d BasicDomain) PersistCrossReferences(txn *graph.Txn, a *BasicItem, root, value graph.Node) error {
	return nil
}
