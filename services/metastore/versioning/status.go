// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package versioning implements the version chain model for metastore
// entities: the Draft/Final/Retired state machine, version metadata,
// numeric version ordering, and the pure derivations used by the
// repository engine to pick the current version edge out of a chain.
//
// Every versioned entity is an append-only chain of (value, metadata)
// pairs. The types in this package are value objects: they are copied,
// never mutated in place, and every state transition returns a fresh
// Metadata instead of changing the receiver.
package versioning

import "fmt"

// Status is the lifecycle state of one version of an entity.
//
// The set is closed: Draft, Final, Retired. All switches on Status in
// this module are exhaustive, so adding a state is a compile-visible
// change rather than a silently ignored string.
type Status uint8

const (
	// StatusDraft is a work-in-progress version. Only drafts accept
	// content edits.
	StatusDraft Status = iota

	// StatusFinal is an approved, immutable version.
	StatusFinal

	// StatusRetired is a final version that has been taken out of use.
	StatusRetired
)

// statusNames holds the persisted representation of each status.
// These strings appear on version edges in the graph and must not
// change without a data migration.
var statusNames = [...]string{
	StatusDraft:   "Draft",
	StatusFinal:   "Final",
	StatusRetired: "Retired",
}

// String returns the persisted name of the status.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the three defined statuses.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusFinal || s == StatusRetired
}

// ParseStatus converts a persisted status name back to a Status.
//
// Outputs:
//
//	Status - The parsed status.
//	error - Non-nil if name is not one of Draft, Final, Retired.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return Status(s), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}
