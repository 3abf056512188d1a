// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestNodeRoundTrip verifies node CRUD and the label index.
func TestNodeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := Node{
		ID:     "Item_000001",
		Labels: []string{"ItemRoot"},
		Props:  Properties{"uid": "Item_000001"},
	}
	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		return txn.PutNode(n)
	}))

	require.NoError(t, s.View(ctx, func(txn *Txn) error {
		got, err := txn.GetNode("Item_000001")
		require.NoError(t, err)
		assert.Equal(t, n.Props, got.Props)
		assert.True(t, got.HasLabel("ItemRoot"))

		byLabel, err := txn.NodesByLabel("ItemRoot")
		require.NoError(t, err)
		require.Len(t, byLabel, 1)
		assert.Equal(t, "Item_000001", byLabel[0].ID)

		_, err = txn.GetNode("missing")
		assert.ErrorIs(t, err, ErrNodeNotFound)
		return nil
	}))
}

// TestRelabelMovesIndexEntries verifies that rewriting a node with
// different labels reconciles the label index.
func TestRelabelMovesIndexEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := Node{ID: "a", Labels: []string{"ItemRoot"}, Props: Properties{}}
	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		return txn.PutNode(n)
	}))

	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		got, err := txn.GetNode("a")
		require.NoError(t, err)
		got.RemoveLabel("ItemRoot")
		got.AddLabel("DeletedItemRoot")
		return txn.PutNode(got)
	}))

	require.NoError(t, s.View(ctx, func(txn *Txn) error {
		live, err := txn.NodesByLabel("ItemRoot")
		require.NoError(t, err)
		assert.Empty(t, live)

		deleted, err := txn.NodesByLabel("DeletedItemRoot")
		require.NoError(t, err)
		assert.Len(t, deleted, 1)
		return nil
	}))
}

// TestEdges verifies edge CRUD and directional scans.
func TestEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		for _, id := range []string{"root", "v1", "v2"} {
			if err := txn.PutNode(Node{ID: id, Labels: []string{"N"}, Props: Properties{}}); err != nil {
				return err
			}
		}
		if _, err := txn.AddEdge(Edge{Type: "HAS_VERSION", From: "root", To: "v1", Props: Properties{"version": "0.1"}}); err != nil {
			return err
		}
		if _, err := txn.AddEdge(Edge{Type: "HAS_VERSION", From: "root", To: "v2", Props: Properties{"version": "0.2"}}); err != nil {
			return err
		}
		_, err := txn.AddEdge(Edge{Type: "LATEST", From: "root", To: "v2", Props: Properties{}})
		return err
	}))

	require.NoError(t, s.View(ctx, func(txn *Txn) error {
		versions, err := txn.OutEdges("root", "HAS_VERSION")
		require.NoError(t, err)
		assert.Len(t, versions, 2)

		all, err := txn.OutEdges("root")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		in, err := txn.InEdges("v2")
		require.NoError(t, err)
		assert.Len(t, in, 2)

		between, err := txn.EdgesBetween("root", "v1", "HAS_VERSION")
		require.NoError(t, err)
		require.Len(t, between, 1)
		assert.Equal(t, "0.1", between[0].Props["version"])
		return nil
	}))

	// Update an edge property, then remove the pointer edge.
	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		between, err := txn.EdgesBetween("root", "v1", "HAS_VERSION")
		require.NoError(t, err)
		e := between[0]
		e.Props.SetTime("end_date", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
		if err := txn.UpdateEdge(e); err != nil {
			return err
		}

		pointers, err := txn.OutEdges("root", "LATEST")
		require.NoError(t, err)
		return txn.RemoveEdge(pointers[0])
	}))

	require.NoError(t, s.View(ctx, func(txn *Txn) error {
		between, err := txn.EdgesBetween("root", "v1", "HAS_VERSION")
		require.NoError(t, err)
		_, ok := between[0].Props.Time("end_date")
		assert.True(t, ok)

		pointers, err := txn.OutEdges("root", "LATEST")
		require.NoError(t, err)
		assert.Empty(t, pointers)
		return nil
	}))
}

// TestInvalidIDRejected verifies the key-separator guard.
func TestInvalidIDRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(context.Background(), func(txn *Txn) error {
		return txn.PutNode(Node{ID: "a:b", Props: Properties{}})
	})
	assert.ErrorIs(t, err, ErrInvalidID)
}

// TestUpdateConflict verifies that racing transactions on the same node
// surface ErrWriteConflict.
func TestUpdateConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		return txn.PutNode(Node{ID: "shared", Labels: []string{"N"}, Props: Properties{}})
	}))

	var barrier sync.WaitGroup
	barrier.Add(2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Update(ctx, func(txn *Txn) error {
				if err := txn.TouchNode("shared"); err != nil {
					return err
				}
				// Both transactions hold the touch before either commits.
				barrier.Done()
				barrier.Wait()
				return nil
			})
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrWriteConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts, "exactly one transaction should lose")
}

// TestDeleteNode verifies node removal cleans the label index.
func TestDeleteNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		return txn.PutNode(Node{ID: "gone", Labels: []string{"Tmp"}, Props: Properties{}})
	}))
	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		return txn.DeleteNode("gone")
	}))

	require.NoError(t, s.View(ctx, func(txn *Txn) error {
		_, err := txn.GetNode("gone")
		assert.ErrorIs(t, err, ErrNodeNotFound)

		byLabel, err := txn.NodesByLabel("Tmp")
		require.NoError(t, err)
		assert.Empty(t, byLabel)
		return nil
	}))
}

// TestNodeByLabelProperty verifies property lookup within a label.
func TestNodeByLabelProperty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		if err := txn.PutNode(Node{ID: "lib_a", Labels: []string{"Library"}, Props: Properties{"name": "Sponsor"}}); err != nil {
			return err
		}
		return txn.PutNode(Node{ID: "lib_b", Labels: []string{"Library"}, Props: Properties{"name": "CDISC"}})
	}))

	require.NoError(t, s.View(ctx, func(txn *Txn) error {
		n, ok, err := txn.NodeByLabelProperty("Library", "name", "CDISC")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "lib_b", n.ID)

		_, ok, err = txn.NodeByLabelProperty("Library", "name", "Nope")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}
