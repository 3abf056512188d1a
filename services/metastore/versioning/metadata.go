// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package versioning

import (
	"fmt"
	"time"
)

// Metadata describes one version of an entity: its number, status,
// author and validity window. It maps one-to-one onto a HAS_VERSION
// edge in the graph.
//
// Metadata is a value object. Transition methods (NextDraft, NextFinal,
// NextRetired) return a new Metadata and never modify the receiver.
// An EndDate of nil means the version is still open for its status
// group.
type Metadata struct {
	Major int
	Minor int

	Status            Status
	Author            string
	ChangeDescription string

	StartDate time.Time
	EndDate   *time.Time
}

// Change-description labels stamped by the standard lifecycle actions.
const (
	InitialVersionLabel     = "Initial version"
	NewDraftLabel           = "New draft created"
	ApprovedVersionLabel    = "Approved version"
	RetiredVersionLabel     = "Inactivated version"
	ReactivatedVersionLabel = "Reactivated version"
)

// InitialMetadata returns the metadata of a freshly created item:
// version 0.1, Draft, open-ended, starting at now.
func InitialMetadata(author string, now time.Time) Metadata {
	return Metadata{
		Major:             0,
		Minor:             1,
		Status:            StatusDraft,
		Author:            author,
		ChangeDescription: InitialVersionLabel,
		StartDate:         now,
	}
}

// MetadataFromRepository reconstitutes metadata read back from the
// store, validating the version number shape.
//
// Outputs:
//
//	Metadata - The reconstituted value.
//	error - Non-nil if major/minor are negative or both zero.
func MetadataFromRepository(
	major, minor int,
	status Status,
	author, changeDescription string,
	startDate time.Time,
	endDate *time.Time,
) (Metadata, error) {
	if major < 0 || minor < 0 {
		return Metadata{}, fmt.Errorf("negative version component %d.%d", major, minor)
	}
	if major == 0 && minor == 0 {
		return Metadata{}, fmt.Errorf("version 0.0 is not a valid version")
	}
	if !status.Valid() {
		return Metadata{}, fmt.Errorf("invalid status %v", status)
	}
	return Metadata{
		Major:             major,
		Minor:             minor,
		Status:            status,
		Author:            author,
		ChangeDescription: changeDescription,
		StartDate:         startDate,
		EndDate:           endDate,
	}, nil
}

// Version renders the version number as "major.minor".
func (m Metadata) Version() string {
	return fmt.Sprintf("%d.%d", m.Major, m.Minor)
}

// Open reports whether the version is still open (no end date).
func (m Metadata) Open() bool {
	return m.EndDate == nil
}

// Equal reports whether two metadata values describe the same version
// record. EndDate pointers are compared by the instant they reference.
func (m Metadata) Equal(o Metadata) bool {
	if m.Major != o.Major || m.Minor != o.Minor ||
		m.Status != o.Status || m.Author != o.Author ||
		m.ChangeDescription != o.ChangeDescription ||
		!m.StartDate.Equal(o.StartDate) {
		return false
	}
	switch {
	case m.EndDate == nil && o.EndDate == nil:
		return true
	case m.EndDate == nil || o.EndDate == nil:
		return false
	default:
		return m.EndDate.Equal(*o.EndDate)
	}
}

// nextNumber computes the version number that a transition to target
// produces. The table is the heart of the version math:
//
//	Draft   -> Final    major+1, minor 0   (approval)
//	Draft   -> Draft    minor+1            (draft iteration)
//	Final   -> Draft    minor 1            (new draft from final)
//	Retired -> Draft    minor 1
//	Final   -> Final    major+1
//	Retired -> Retired  major+1
//	Retired -> Final    unchanged          (reactivation keeps the number)
func (m Metadata) nextNumber(target Status) (major, minor int) {
	major, minor = m.Major, m.Minor
	switch {
	case m.Status == StatusDraft && target == StatusFinal:
		major, minor = major+1, 0
	case m.Status == StatusDraft && target == StatusDraft:
		minor++
	case (m.Status == StatusFinal || m.Status == StatusRetired) && target == StatusDraft:
		minor = 1
	case m.Status == StatusRetired && target == StatusRetired:
		major++
	case m.Status == StatusFinal && target == StatusFinal:
		major++
	}
	return major, minor
}

// next builds the successor metadata for a transition to target.
func (m Metadata) next(target Status, author, changeDescription string, now time.Time) Metadata {
	major, minor := m.nextNumber(target)
	return Metadata{
		Major:             major,
		Minor:             minor,
		Status:            target,
		Author:            author,
		ChangeDescription: changeDescription,
		StartDate:         now,
	}
}

// NextDraft returns the metadata of a new draft version. Allowed from
// Draft (iteration) and Final (new draft from an approved version).
func (m Metadata) NextDraft(author, changeDescription string, now time.Time) (Metadata, error) {
	switch m.Status {
	case StatusDraft, StatusFinal:
		return m.next(StatusDraft, author, changeDescription, now), nil
	case StatusRetired:
		return Metadata{}, fmt.Errorf("%w: cannot create draft from %s", ErrIllegalTransition, m.Status)
	}
	return Metadata{}, fmt.Errorf("%w: unknown status %v", ErrIllegalTransition, m.Status)
}

// NextFinal returns the metadata of an approved version. Allowed from
// Draft (approval, bumps the major number) and Retired (reactivation,
// keeps the number).
func (m Metadata) NextFinal(author, changeDescription string, now time.Time) (Metadata, error) {
	switch m.Status {
	case StatusDraft, StatusRetired:
		return m.next(StatusFinal, author, changeDescription, now), nil
	case StatusFinal:
		return Metadata{}, fmt.Errorf("%w: version is already final", ErrIllegalTransition)
	}
	return Metadata{}, fmt.Errorf("%w: unknown status %v", ErrIllegalTransition, m.Status)
}

// NextRetired returns the metadata of a retired version. Only a Final
// version can be retired.
func (m Metadata) NextRetired(author, changeDescription string, now time.Time) (Metadata, error) {
	switch m.Status {
	case StatusFinal:
		return m.next(StatusRetired, author, changeDescription, now), nil
	case StatusDraft, StatusRetired:
		return Metadata{}, fmt.Errorf("%w: cannot retire a %s version", ErrIllegalTransition, m.Status)
	}
	return Metadata{}, fmt.Errorf("%w: unknown status %v", ErrIllegalTransition, m.Status)
}
