// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package versioning

// Library is the grouping and ownership entity for versioned items.
// Items linked to a library with IsEditable false can be read but not
// created or edited.
type Library struct {
	Name       string
	IsEditable bool
}

// Defined reports whether the library reference is set. Some item
// types are not owned by any library; they carry a zero Library.
func (l Library) Defined() bool {
	return l.Name != ""
}
