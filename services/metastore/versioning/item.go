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

// Item is the embeddable base of every versioned aggregate. It carries
// the permanent identity (uid), the owning library, the metadata of the
// version currently held in memory, and the soft-delete flag.
//
// Domain aggregates embed Item and add their content fields. The
// lifecycle actions (Approve, Inactivate, Reactivate, NewVersion,
// EditDraft, SoftDelete) mutate only the metadata; persisting the
// result is the repository's job.
//
// Item is not safe for concurrent use. An aggregate belongs to one
// request at a time; cross-request conflicts are detected by the
// repository's write guard, not by locking here.
type Item struct {
	uid     string
	library Library
	meta    Metadata
	deleted bool
}

// NewItem starts the lifecycle of a fresh aggregate: version 0.1,
// Draft, no uid yet (the repository assigns one on create).
//
// Outputs:
//
//	Item - The initial state.
//	error - ErrNonEditableLibrary if the owning library is locked.
func NewItem(library Library, author string, now time.Time) (Item, error) {
	if library.Defined() && !library.IsEditable {
		return Item{}, fmt.Errorf("%w: %q", ErrNonEditableLibrary, library.Name)
	}
	return Item{
		library: library,
		meta:    InitialMetadata(author, now),
	}, nil
}

// ItemFromRepository reconstitutes an aggregate base from stored state.
func ItemFromRepository(uid string, library Library, meta Metadata) Item {
	return Item{uid: uid, library: library, meta: meta}
}

// UID returns the permanent identity, or "" before the first save.
func (it *Item) UID() string { return it.uid }

// AssignUID sets the identity allocated on first save. The uid is
// write-once.
func (it *Item) AssignUID(uid string) error {
	if it.uid != "" {
		return fmt.Errorf("%w: %q", ErrUIDAlreadySet, it.uid)
	}
	it.uid = uid
	return nil
}

// Library returns the owning library reference.
func (it *Item) Library() Library { return it.library }

// Relink changes the owning library. The editability of the target
// library is verified by the repository at save time.
func (it *Item) Relink(library Library) { it.library = library }

// Metadata returns the version metadata currently held in memory.
func (it *Item) Metadata() Metadata { return it.meta }

// SetMetadata replaces the version metadata. Intended for domain
// repositories reconstituting state; lifecycle changes should go
// through the action methods.
func (it *Item) SetMetadata(meta Metadata) { it.meta = meta }

// IsDeleted reports whether SoftDelete has been called.
func (it *Item) IsDeleted() bool { return it.deleted }

func (it *Item) guardAction() error {
	if it.deleted {
		return ErrDeleted
	}
	if it.library.Defined() && !it.library.IsEditable {
		return fmt.Errorf("%w: %q", ErrNonEditableLibrary, it.library.Name)
	}
	return nil
}

// Approve promotes the current Draft to Final, bumping the major
// version and resetting minor to zero.
func (it *Item) Approve(author, changeDescription string, now time.Time) error {
	if err := it.guardAction(); err != nil {
		return err
	}
	if it.meta.Status != StatusDraft {
		return fmt.Errorf("%w: only a draft can be approved", ErrIllegalTransition)
	}
	if changeDescription == "" {
		changeDescription = ApprovedVersionLabel
	}
	meta, err := it.meta.NextFinal(author, changeDescription, now)
	if err != nil {
		return err
	}
	it.meta = meta
	return nil
}

// Inactivate retires the current Final version.
func (it *Item) Inactivate(author, changeDescription string, now time.Time) error {
	if err := it.guardAction(); err != nil {
		return err
	}
	if changeDescription == "" {
		changeDescription = RetiredVersionLabel
	}
	meta, err := it.meta.NextRetired(author, changeDescription, now)
	if err != nil {
		return err
	}
	it.meta = meta
	return nil
}

// Reactivate brings a Retired version back to Final, keeping the
// version number.
func (it *Item) Reactivate(author, changeDescription string, now time.Time) error {
	if err := it.guardAction(); err != nil {
		return err
	}
	if it.meta.Status != StatusRetired {
		return fmt.Errorf("%w: only a retired version can be reactivated", ErrIllegalTransition)
	}
	if changeDescription == "" {
		changeDescription = ReactivatedVersionLabel
	}
	meta, err := it.meta.NextFinal(author, changeDescription, now)
	if err != nil {
		return err
	}
	it.meta = meta
	return nil
}

// NewVersion starts a new Draft from the current Final version.
func (it *Item) NewVersion(author, changeDescription string, now time.Time) error {
	if err := it.guardAction(); err != nil {
		return err
	}
	if it.meta.Status != StatusFinal {
		return fmt.Errorf("%w: a new draft can only be created from a final version", ErrIllegalTransition)
	}
	if changeDescription == "" {
		changeDescription = NewDraftLabel
	}
	meta, err := it.meta.NextDraft(author, changeDescription, now)
	if err != nil {
		return err
	}
	it.meta = meta
	return nil
}

// EditDraft records a content edit of the current Draft, advancing the
// minor version. Domain aggregates call this after changing content.
func (it *Item) EditDraft(author, changeDescription string, now time.Time) error {
	if err := it.guardAction(); err != nil {
		return err
	}
	if it.meta.Status != StatusDraft {
		return fmt.Errorf("%w: item is not in draft status", ErrIllegalTransition)
	}
	meta, err := it.meta.NextDraft(author, changeDescription, now)
	if err != nil {
		return err
	}
	it.meta = meta
	return nil
}

// SoftDelete marks the item for deletion on the next save. Only items
// that were never approved (major version 0) can be deleted; history
// of approved items is permanent.
func (it *Item) SoftDelete() error {
	if it.meta.Major != 0 {
		return fmt.Errorf("%w: cannot delete %q", ErrHasFinalVersion, it.uid)
	}
	it.deleted = true
	return nil
}
