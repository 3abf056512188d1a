// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"errors"

	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// Sentinel errors of the repository engine. Together with the
// business-rule errors from the versioning package they form the full
// error taxonomy:
//
//   - ErrNotFound: missing identity or version; recoverable by the caller.
//   - versioning.Err* (see IsBusinessRule): rule violations; rejected,
//     retrying the same call fails the same way.
//   - ErrConcurrentUpdate: optimistic guard conflict; the caller should
//     retry the whole read-modify-write transaction.
//   - ErrUnsupported: programmer error (illegal filter combination,
//     invalid pagination); not retryable.
//
// The engine never swallows or retries any of these; it returns
// immediately and lets the service layer decide.
var (
	// ErrNotFound indicates that no root, version or library matched the
	// lookup.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentUpdate indicates that a concurrent transaction won a
	// write-write race on the same root. Retry the whole workflow.
	ErrConcurrentUpdate = errors.New("concurrent update detected")

	// ErrUnsupported indicates an illegal combination of arguments.
	ErrUnsupported = errors.New("unsupported operation")
)

// IsBusinessRule reports whether err is a business-rule violation
// (as opposed to a missing resource, a conflict, or a caller bug).
// Business-rule failures must not be retried.
func IsBusinessRule(err error) bool {
	return errors.Is(err, versioning.ErrNonEditableLibrary) ||
		errors.Is(err, versioning.ErrHasFinalVersion) ||
		errors.Is(err, versioning.ErrIllegalTransition) ||
		errors.Is(err, versioning.ErrDeleted)
}
