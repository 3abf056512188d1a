// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastorehq/metastore/services/metastore/cache"
	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/repository"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

var sponsor = versioning.Library{Name: "Sponsor", IsEditable: true}

// fakeClock hands out strictly increasing timestamps so version start
// dates never collide within a test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRepo(t *testing.T, opts ...repository.Option) (*repository.Repository[*repository.BasicItem], *fakeClock) {
	t.Helper()
	store, err := graph.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := newFakeClock()
	opts = append(opts, repository.WithClock(clk.Now))
	repo := repository.New[*repository.BasicItem](store, repository.BasicDomain{Type: "ActivityTemplate"}, opts...)

	err = repo.WithUpdate(context.Background(), func(txn *graph.Txn) error {
		return repo.EnsureLibrary(txn, sponsor)
	})
	require.NoError(t, err)
	return repo, clk
}

func createItem(t *testing.T, repo *repository.Repository[*repository.BasicItem], clk *fakeClock, name string) string {
	t.Helper()
	item, err := repository.NewBasicItem(name, sponsor, "alice", clk.Now())
	require.NoError(t, err)

	editable := repository.NewEditable(item)
	err = repo.WithUpdate(context.Background(), func(txn *graph.Txn) error {
		return repo.Save(context.Background(), txn, editable)
	})
	require.NoError(t, err)
	require.NotEmpty(t, editable.Item.UID())
	return editable.Item.UID()
}

func TestCreateAndFind(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Blood Pressure")

	err := repo.WithView(ctx, func(txn *graph.Txn) error {
		got, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "Blood Pressure", got.Item.Name())
		assert.Equal(t, "0.1", got.Item.Metadata().Version())
		assert.Equal(t, versioning.StatusDraft, got.Item.Metadata().Status)
		assert.Equal(t, "Sponsor", got.Item.Library().Name)

		_, err = repo.FindByUID(ctx, txn, "no_such_uid")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		final, err := repo.FinalVersionExists(ctx, txn, uid)
		require.NoError(t, err)
		assert.False(t, final)

		_, err = repo.FinalVersionExists(ctx, txn, "no_such_uid")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestNonEditableLibraryRejected(t *testing.T) {
	_, err := repository.NewBasicItem("X", versioning.Library{Name: "CDISC", IsEditable: false}, "alice", time.Now())
	assert.ErrorIs(t, err, versioning.ErrNonEditableLibrary)
}

func TestLifecycleWalk(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Blood Pressure")

	// Amend the draft: the content change lands on a fresh value node
	// and the version advances to 0.2.
	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.EditDraft("bob", "fixed name", clk.Now()))
		e.Item.Rename("Systolic Blood Pressure")
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	// Approve: 1.0 Final.
	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.Approve("carol", "approved", clk.Now()))
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	// New draft on top of the approved version: 1.1 Draft.
	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.NewVersion("dave", "next round", clk.Now()))
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		latest, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "1.1", latest.Item.Metadata().Version())
		assert.Equal(t, versioning.StatusDraft, latest.Item.Metadata().Status)

		final, err := repo.FindByUID(ctx, txn, uid, repository.WithStatus(versioning.StatusFinal))
		require.NoError(t, err)
		assert.Equal(t, "1.0", final.Item.Metadata().Version())
		assert.Equal(t, "Systolic Blood Pressure", final.Item.Name())

		old, err := repo.FindByUID(ctx, txn, uid, repository.AtVersion("0.1"))
		require.NoError(t, err)
		assert.Equal(t, "Blood Pressure", old.Item.Name())

		_, err = repo.FindByUID(ctx, txn, uid, repository.AtVersion("9.9"))
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = repo.FindByUID(ctx, txn, uid, repository.AtVersion("1.0"), repository.AtDate(clk.Now()))
		assert.ErrorIs(t, err, repository.ErrUnsupported)

		_, err = repo.FindByUID(ctx, txn, uid, repository.WithStatus(versioning.StatusRetired))
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestFindAtDate(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Heart Rate")

	between := clk.Now()

	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.EditDraft("bob", "reworded", clk.Now()))
		e.Item.Rename("Resting Heart Rate")
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		got, err := repo.FindByUID(ctx, txn, uid, repository.AtDate(between))
		require.NoError(t, err)
		assert.Equal(t, "0.1", got.Item.Metadata().Version())
		assert.Equal(t, "Heart Rate", got.Item.Name())

		now, err := repo.FindByUID(ctx, txn, uid, repository.AtDate(clk.Now()))
		require.NoError(t, err)
		assert.Equal(t, "0.2", now.Item.Metadata().Version())

		_, err = repo.FindByUID(ctx, txn, uid, repository.AtDate(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestConcurrentUpdateConflict(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Weight")

	var barrier sync.WaitGroup
	barrier.Add(2)
	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
				e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
				if err != nil {
					return err
				}
				barrier.Done()
				barrier.Wait()
				if err := e.Item.EditDraft("eve", "racing", clk.Now()); err != nil {
					return err
				}
				return repo.Save(ctx, txn, e)
			})
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, repository.ErrConcurrentUpdate)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts, "exactly one writer must lose")

	err := repo.WithView(ctx, func(txn *graph.Txn) error {
		got, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "0.2", got.Item.Metadata().Version())
		return nil
	})
	require.NoError(t, err)
}

func TestSoftDelete(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Scratch Entity")

	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.SoftDelete())
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		_, err := repo.FindByUID(ctx, txn, uid)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		// The audit trail still reaches tombstoned entities.
		rows, err := repo.VersionHistory(ctx, txn, uid)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.NotNil(t, rows[0].Meta.EndDate)
		return nil
	})
	require.NoError(t, err)
}

func TestSoftDeleteRejectedAfterApproval(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Approved Entity")

	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.Approve("carol", "approved", clk.Now()))
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		deleteErr := e.Item.SoftDelete()
		assert.ErrorIs(t, deleteErr, versioning.ErrHasFinalVersion)
		assert.True(t, repository.IsBusinessRule(deleteErr))

		final, err := repo.FinalVersionExists(ctx, txn, uid)
		require.NoError(t, err)
		assert.True(t, final)
		return nil
	})
	require.NoError(t, err)
}

func TestValueDeduplication(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Alpha")

	rename := func(name string) {
		err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
			e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
			require.NoError(t, err)
			require.NoError(t, e.Item.EditDraft("bob", "rename", clk.Now()))
			e.Item.Rename(name)
			return repo.Save(ctx, txn, e)
		})
		require.NoError(t, err)
	}
	rename("Beta")
	rename("Alpha")

	err := repo.WithView(ctx, func(txn *graph.Txn) error {
		rows, err := repo.VersionHistory(ctx, txn, uid)
		require.NoError(t, err)
		require.Len(t, rows, 3)

		distinct := map[string]bool{}
		for _, row := range rows {
			distinct[row.Value.ID] = true
		}
		assert.Len(t, distinct, 2, "returning to previous content must reuse its value node")

		got, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "Alpha", got.Item.Name())
		assert.Equal(t, "0.3", got.Item.Metadata().Version())
		return nil
	})
	require.NoError(t, err)
}

func TestRecreateReusesExistingChain(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Alpha")

	// A second aggregate saved under the same uid must converge on the
	// existing chain instead of minting a parallel one.
	item, err := repository.NewBasicItem("Alpha", sponsor, "bob", clk.Now())
	require.NoError(t, err)
	require.NoError(t, item.AssignUID(uid))
	editable := repository.NewEditable(item)
	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		return repo.Save(ctx, txn, editable)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		rows, err := repo.VersionHistory(ctx, txn, uid)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Nil(t, rows[0].Meta.EndDate, "the new edition stays open")
		assert.NotNil(t, rows[1].Meta.EndDate, "the superseded edition is closed")
		assert.Equal(t, rows[0].Value.ID, rows[1].Value.ID, "identical content must reuse the value node")

		latest, err := txn.OutEdges(uid, repository.EdgeLatest)
		require.NoError(t, err)
		assert.Len(t, latest, 1)
		drafts, err := txn.OutEdges(uid, repository.EdgeLatestDraft)
		require.NoError(t, err)
		assert.Len(t, drafts, 1)
		links, err := txn.OutEdges(uid, repository.EdgeHasLibrary)
		require.NoError(t, err)
		assert.Len(t, links, 1)

		got, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "Alpha", got.Item.Name())
		assert.Equal(t, "0.1", got.Item.Metadata().Version())
		return nil
	})
	require.NoError(t, err)
}

func TestRecreateRevivesTombstonedEntity(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Scratch Entity")

	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.SoftDelete())
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	item, err := repository.NewBasicItem("Scratch Entity", sponsor, "bob", clk.Now())
	require.NoError(t, err)
	require.NoError(t, item.AssignUID(uid))
	editable := repository.NewEditable(item)
	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		return repo.Save(ctx, txn, editable)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		got, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "Scratch Entity", got.Item.Name())
		assert.Equal(t, versioning.StatusDraft, got.Item.Metadata().Status)

		rows, err := repo.VersionHistory(ctx, txn, uid)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, rows[0].Value.ID, rows[1].Value.ID)

		latest, err := txn.OutEdges(uid, repository.EdgeLatest)
		require.NoError(t, err)
		assert.Len(t, latest, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestLibraryMoveChecksStoredFlag(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	locked := versioning.Library{Name: "Locked", IsEditable: false}
	partner := versioning.Library{Name: "Partner", IsEditable: true}
	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		if err := repo.EnsureLibrary(txn, locked); err != nil {
			return err
		}
		return repo.EnsureLibrary(txn, partner)
	})
	require.NoError(t, err)
	uid := createItem(t, repo, clk, "Wandering Entity")

	// A forged flag on the aggregate must not beat the stored node.
	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		e.Item.Relink(versioning.Library{Name: "Locked", IsEditable: true})
		return repo.Save(ctx, txn, e)
	})
	assert.ErrorIs(t, err, versioning.ErrNonEditableLibrary)

	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		e.Item.Relink(partner)
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		got, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "Partner", got.Item.Library().Name)
		return nil
	})
	require.NoError(t, err)
}

func TestEnsureLibraryKeepsStoredFlags(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		if err := repo.EnsureLibrary(txn, versioning.Library{Name: "Locked", IsEditable: false}); err != nil {
			return err
		}
		// A later call with different flags leaves the node alone.
		return repo.EnsureLibrary(txn, versioning.Library{Name: "Locked", IsEditable: true})
	})
	require.NoError(t, err)

	item, err := repository.NewBasicItem("Sneaky Entity", versioning.Library{Name: "Locked", IsEditable: true}, "mallory", clk.Now())
	require.NoError(t, err)
	editable := repository.NewEditable(item)
	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		return repo.Save(ctx, txn, editable)
	})
	assert.ErrorIs(t, err, versioning.ErrNonEditableLibrary)
}

func TestCachePurgedOnSave(t *testing.T) {
	c := cache.New(cache.Options{MaxEntries: 100, TTL: time.Hour})
	repo, clk := newTestRepo(t, repository.WithCache(c))
	ctx := context.Background()
	uid := createItem(t, repo, clk, "Cached Entity")

	err := repo.WithView(ctx, func(txn *graph.Txn) error {
		_, err := repo.FindByUID(ctx, txn, uid)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
		require.NoError(t, err)
		require.NoError(t, e.Item.EditDraft("bob", "rename", clk.Now()))
		e.Item.Rename("Refreshed Entity")
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len(), "save must purge the entity type")

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		got, err := repo.FindByUID(ctx, txn, uid)
		require.NoError(t, err)
		assert.Equal(t, "Refreshed Entity", got.Item.Name())
		return nil
	})
	require.NoError(t, err)
}

func TestFindAll(t *testing.T) {
	repo, clk := newTestRepo(t)
	ctx := context.Background()
	first := createItem(t, repo, clk, "First")
	second := createItem(t, repo, clk, "Second")

	err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
		e, err := repo.FindByUIDForUpdate(ctx, txn, second)
		require.NoError(t, err)
		require.NoError(t, e.Item.Approve("carol", "approved", clk.Now()))
		return repo.Save(ctx, txn, e)
	})
	require.NoError(t, err)

	err = repo.WithView(ctx, func(txn *graph.Txn) error {
		all, err := repo.FindAll(ctx, txn)
		require.NoError(t, err)
		require.Len(t, all, 2)

		finals, err := repo.FindAll(ctx, txn, repository.InStatus(versioning.StatusFinal))
		require.NoError(t, err)
		require.Len(t, finals, 1)
		assert.Equal(t, second, finals[0].Item.UID())

		none, err := repo.FindAll(ctx, txn, repository.InLibrary("Elsewhere"))
		require.NoError(t, err)
		assert.Empty(t, none)

		gotUID, err := repo.UIDByName(ctx, txn, "First")
		require.NoError(t, err)
		assert.Equal(t, first, gotUID)

		exists, err := repo.ExistsByName(ctx, txn, "No Such Name")
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	})
	require.NoError(t, err)
}
