// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package versioning

import "errors"

// Sentinel errors for the version state machine. All of them are
// business-rule violations: the caller did something the lifecycle
// forbids, and retrying the same call will fail the same way.
var (
	// ErrIllegalTransition indicates a status change the state machine
	// does not allow (e.g. approving a Final version).
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrNonEditableLibrary indicates an attempt to create or edit an
	// item owned by a library whose is_editable flag is false.
	ErrNonEditableLibrary = errors.New("library is not editable")

	// ErrDeleted indicates an operation on a soft-deleted item.
	ErrDeleted = errors.New("item has been deleted")

	// ErrHasFinalVersion indicates a soft delete of an item that has
	// been approved at least once. Approved items are permanent.
	ErrHasFinalVersion = errors.New("item has a final version")

	// ErrUIDAlreadySet indicates an attempt to overwrite an assigned uid.
	ErrUIDAlreadySet = errors.New("uid is already set")
)
