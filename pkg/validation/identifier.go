// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for values that end up
// inside storage keys.
//
// Node IDs, labels, and edge types are encoded into the key space with
// ':' as the field separator, so user-provided identifiers must be
// checked before they reach the storage layer. Using these validators
// at the outer surface keeps key injection out of the engine.
package validation

import (
	"fmt"
	"regexp"
)

// typeNamePattern matches entity type names: CamelCase identifiers
// like "ActivityTemplate", up to 64 characters.
var typeNamePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]{0,63}$`)

// libraryNamePattern matches library names: a letter followed by
// letters, digits, spaces, hyphens, or underscores, up to 64
// characters.
var libraryNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 _\-]{0,63}$`)

// uidPattern matches entity identifiers as the engine mints them:
// "<TypeName>_<uuid>", with a permissive tail for externally assigned
// identifiers. Colons are excluded.
var uidPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,127}$`)

// ValidateTypeName validates an entity type name.
//
// Valid names start with an uppercase letter and contain only letters
// and digits, e.g. "ActivityTemplate", "Codelist". Returns an error
// describing the constraint otherwise.
func ValidateTypeName(name string) error {
	if name == "" {
		return fmt.Errorf("entity type must not be empty")
	}
	if !typeNamePattern.MatchString(name) {
		return fmt.Errorf("invalid entity type %q: must start with an uppercase letter and contain only letters and digits (max 64)", name)
	}
	return nil
}

// ValidateLibraryName validates a library name such as "Sponsor" or
// "CDISC CT".
func ValidateLibraryName(name string) error {
	if name == "" {
		return fmt.Errorf("library name must not be empty")
	}
	if !libraryNamePattern.MatchString(name) {
		return fmt.Errorf("invalid library name %q: must start with a letter and contain only letters, digits, spaces, '-' or '_' (max 64)", name)
	}
	return nil
}

// ValidateUID validates an entity identifier.
func ValidateUID(uid string) error {
	if uid == "" {
		return fmt.Errorf("uid must not be empty")
	}
	if !uidPattern.MatchString(uid) {
		return fmt.Errorf("invalid uid %q: must contain only letters, digits, '-' or '_' (max 128)", uid)
	}
	return nil
}
