// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/repository"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

func TestVersionHistory(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Temperature")

	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.EditDraft("bob", "clarified", clk.Now()))
		e.Item.Rename("Body Temperature")
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.Approve("carol", "approved", clk.Now()))
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		rows, err := repo.VersionHistory(ctx, txn, uid)
		require.NoError(t, err)
		require.Len(t, rows, 3)

		// Newest first: 1.0 Final, 0.2 Draft, 0.1 Draft.
		assert.Equal(t, "1.0", rows[0].Meta.Version())
		assert.Equal(t, versioning.StatusFinal, rows[0].Meta.Status)
		assert.Nil(t, rows[0].Meta.EndDate, "current version edge stays open")
		assert.Equal(t, "0.2", rows[1].Meta.Version())
		assert.NotNil(t, rows[1].Meta.EndDate)
		assert.Equal(t, "0.1", rows[2].Meta.Version())
		assert.Equal(t, "Temperature", rows[2].Fields["name"])

		// Merged rows carry content, metadata, and attribution together.
		assert.Equal(t, "Body Temperature", rows[0].Fields["name"])
		assert.Equal(t, "carol", rows[0].Fields["author"])
		assert.Equal(t, "Sponsor", rows[0].Fields["library_name"])

		versions, err := repo.AllVersions(ctx, txn, uid)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, "1.0", versions[0].Item.Metadata().Version())
		assert.Equal(t, "Temperature", versions[2].Item.Name())
		return nil
	})
	require.NoError(t, err)
}

func TestVersionHistoryUnknownUID(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.WithView(context.Background(), func(txn *graph.Txn) error {
		_, err := repo.VersionHistory(context.Background(), txn, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestRetrieveAuditTrail(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()

	first := createItem(t, repo, clk, "One")
	second := createItem(t, repo, clk, "Two")

	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, first)
		require.NoError(t, err)
		require.NoError(t, e.Item.EditDraft("bob", "rework", clk.Now()))
		e.Item.Rename("One Revised")
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	// Tombstoned entities still contribute their versions.
	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, second)
		require.NoError(t, err)
		require.NoError(t, e.Item.SoftDelete())
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		all, total, err := repo.RetrieveAuditTrail(ctx, txn, 1, 0, true)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, all, 3)
		assert.Equal(t, "0.2", all[0].Item.Metadata().Version())
		assert.Equal(t, first, all[0].Item.UID())

		page1, total, err := repo.RetrieveAuditTrail(ctx, txn, 1, 2, true)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, page1, 2)

		page2, _, err := repo.RetrieveAuditTrail(ctx, txn, 2, 2, false)
		require.NoError(t, err)
		assert.Len(t, page2, 1)

		empty, _, err := repo.RetrieveAuditTrail(ctx, txn, 5, 2, false)
		require.NoError(t, err)
		assert.Empty(t, empty)

		_, _, err = repo.RetrieveAuditTrail(ctx, txn, 0, 2, false)
		assert.ErrorIs(t, err, repository.ErrUnsupported)
		return nil
	})
	require.NoError(t, err)
}
