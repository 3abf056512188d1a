// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "errors"

// Sentinel errors for the graph store.
var (
	// ErrNodeNotFound indicates a lookup of a node id that does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound indicates a lookup of an edge that does not exist.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrWriteConflict indicates that a concurrent transaction wrote a
	// key this transaction read. The whole transaction should be retried
	// by the caller.
	ErrWriteConflict = errors.New("transaction write conflict")

	// ErrInvalidID indicates a node or label identifier containing the
	// key separator.
	ErrInvalidID = errors.New("identifier must not contain ':'")
)
