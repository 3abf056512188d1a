// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// Aggregate is the in-memory composite the engine hands to and receives
// from callers: permanent identity, owning library, current version
// metadata, and at least a name as content. Domain aggregates satisfy
// it by embedding versioning.Item.
type Aggregate interface {
	UID() string
	AssignUID(uid string) error
	Library() versioning.Library
	Metadata() versioning.Metadata
	IsDeleted() bool
	Name() string
}

// Domain is the hook set a concrete repository supplies to specialize
// the generic engine for one entity type. Roughly forty repositories in
// a full deployment are thin Domain implementations around this engine.
type Domain[A Aggregate] interface {
	// TypeName is the entity type, e.g. "ActivityTemplate". Root nodes
	// carry the label "<TypeName>Root", value nodes "<TypeName>Value".
	TypeName() string

	// BuildAggregate reconstitutes an aggregate from stored state.
	BuildAggregate(root, value graph.Node, meta versioning.Metadata, library versioning.Library) (A, error)

	// ValueProperties returns the domain properties persisted on a value
	// node. The engine adds the name property if absent.
	ValueProperties(a A) graph.Properties

	// HasContentChanged reports whether the aggregate's content differs
	// from a stored value node. The base rule compares names; domains
	// with richer content override with deeper comparisons.
	HasContentChanged(a A, value graph.Node) bool

	// Clone returns a deep copy of the aggregate, used for the update
	// closure snapshot and for cache isolation.
	Clone(a A) A

	// PersistCrossReferences writes domain-specific relationships of the
	// aggregate (template parameters, codelist memberships, ...). Called
	// last in create and update. May be a no-op.
	PersistCrossReferences(txn *graph.Txn, a A, root, value graph.Node) error
}

// ReadOnly wraps an aggregate retrieved without for-update intent.
// There is no Save accepting it: saving a peeked-at aggregate is a
// compile error, not a runtime surprise.
type ReadOnly[A Aggregate] struct {
	Item A
}

// closure is the snapshot taken by FindByUIDForUpdate and consumed by
// Save to compute what changed.
type closure[A Aggregate] struct {
	root     graph.Node
	value    graph.Node
	library  versioning.Library
	previous A
}

// Editable wraps an aggregate that may be passed to Save. Instances
// come from FindByUIDForUpdate (update/delete flows) or NewEditable
// (create flow).
type Editable[A Aggregate] struct {
	Item A

	closure *closure[A]
}

// NewEditable wraps a freshly constructed aggregate for its first Save.
func NewEditable[A Aggregate](item A) *Editable[A] {
	return &Editable[A]{Item: item}
}
