// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"fmt"
	"strconv"

	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

// Edge vocabulary of the versioned layout. A root points at each value
// through one HAS_VERSION edge per version, plus up to four shortcut
// pointers for O(1) lookup of the current version per status group.
const (
	EdgeHasVersion    = "HAS_VERSION"
	EdgeLatest        = "LATEST"
	EdgeLatestDraft   = "LATEST_DRAFT"
	EdgeLatestFinal   = "LATEST_FINAL"
	EdgeLatestRetired = "LATEST_RETIRED"
	EdgeHasLibrary    = "HAS_LIBRARY"
)

// LabelLibrary is the node label of library nodes.
const LabelLibrary = "Library"

// Property names used on nodes and version edges.
const (
	PropUID               = "uid"
	PropName              = "name"
	PropVersion           = "version"
	PropStatus            = "status"
	PropStartDate         = "start_date"
	PropEndDate           = "end_date"
	PropAuthor            = "author"
	PropChangeDescription = "change_description"
	PropIsEditable        = "is_editable"
	PropLibraryName       = "library_name"
	PropLibraryEditable   = "library_is_editable"
)

// pointerEdgeType maps a status to its shortcut edge type.
func pointerEdgeType(s versioning.Status) string {
	switch s {
	case versioning.StatusDraft:
		return EdgeLatestDraft
	case versioning.StatusFinal:
		return EdgeLatestFinal
	case versioning.StatusRetired:
		return EdgeLatestRetired
	}
	panic(fmt.Sprintf("unknown status %v", s))
}

// metadataToProps encodes version metadata as HAS_VERSION edge
// properties.
func metadataToProps(m versioning.Metadata) graph.Properties {
	p := graph.Properties{
		PropVersion:           m.Version(),
		PropStatus:            m.Status.String(),
		PropAuthor:            m.Author,
		PropChangeDescription: m.ChangeDescription,
	}
	p.SetTime(PropStartDate, m.StartDate)
	if m.EndDate != nil {
		p.SetTime(PropEndDate, *m.EndDate)
	}
	return p
}

// metadataFromEdge decodes a HAS_VERSION edge back into metadata.
func metadataFromEdge(e graph.Edge) (versioning.Metadata, error) {
	major, minor, err := versioning.ParseVersion(e.Props[PropVersion])
	if err != nil {
		return versioning.Metadata{}, fmt.Errorf("edge %s: %w", e.ID, err)
	}
	status, err := versioning.ParseStatus(e.Props[PropStatus])
	if err != nil {
		return versioning.Metadata{}, fmt.Errorf("edge %s: %w", e.ID, err)
	}
	start, ok := e.Props.Time(PropStartDate)
	if !ok {
		return versioning.Metadata{}, fmt.Errorf("edge %s: missing start date", e.ID)
	}
	meta := versioning.Metadata{
		Major:             major,
		Minor:             minor,
		Status:            status,
		Author:            e.Props[PropAuthor],
		ChangeDescription: e.Props[PropChangeDescription],
		StartDate:         start,
	}
	if endDate, ok := e.Props.Time(PropEndDate); ok {
		meta.EndDate = &endDate
	}
	return meta, nil
}

// libraryFromNode decodes a Library node.
func libraryFromNode(n graph.Node) versioning.Library {
	editable, _ := strconv.ParseBool(n.Props[PropIsEditable])
	return versioning.Library{
		Name:       n.Props[PropName],
		IsEditable: editable,
	}
}
