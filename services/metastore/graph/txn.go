// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Txn is one transactional view of the graph. All reads see the
// transaction's snapshot plus its own pending writes; writes become
// visible to others only on commit.
//
// Txn is not safe for concurrent use; a transaction belongs to one
// goroutine.
type Txn struct {
	txn *badgerdb.Txn
}

func nodeKey(id string) []byte { return []byte("n:" + id) }

func labelKey(label, id string) []byte { return []byte("l:" + label + ":" + id) }

func labelPrefix(label string) []byte { return []byte("l:" + label + ":") }

func edgeKey(from, typ, id string) []byte { return []byte("e:" + from + ":" + typ + ":" + id) }

func edgePrefix(from, typ string) []byte { return []byte("e:" + from + ":" + typ + ":") }

func edgeAllPrefix(from string) []byte { return []byte("e:" + from + ":") }

func revKey(to, typ, id string) []byte { return []byte("r:" + to + ":" + typ + ":" + id) }

func revPrefix(to, typ string) []byte { return []byte("r:" + to + ":" + typ + ":") }

func revAllPrefix(to string) []byte { return []byte("r:" + to + ":") }

func checkID(id string) error {
	if id == "" || strings.Contains(id, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// PutNode writes a node, replacing any previous record with the same id
// and reconciling the label index.
func (t *Txn) PutNode(n Node) error {
	if err := checkID(n.ID); err != nil {
		return err
	}
	for _, l := range n.Labels {
		if err := checkID(l); err != nil {
			return err
		}
	}

	// Drop index entries for labels the node no longer carries.
	if old, err := t.GetNode(n.ID); err == nil {
		for _, l := range old.Labels {
			if !n.HasLabel(l) {
				if err := t.txn.Delete(labelKey(l, n.ID)); err != nil {
					return fmt.Errorf("drop label index %s: %w", l, err)
				}
			}
		}
	} else if !errors.Is(err, ErrNodeNotFound) {
		return err
	}

	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	if err := t.txn.Set(nodeKey(n.ID), raw); err != nil {
		return fmt.Errorf("write node %s: %w", n.ID, err)
	}
	for _, l := range n.Labels {
		if err := t.txn.Set(labelKey(l, n.ID), nil); err != nil {
			return fmt.Errorf("write label index %s: %w", l, err)
		}
	}
	return nil
}

// GetNode reads a node by id.
func (t *Txn) GetNode(id string) (Node, error) {
	item, err := t.txn.Get(nodeKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err != nil {
		return Node{}, fmt.Errorf("read node %s: %w", id, err)
	}
	var n Node
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &n)
	}); err != nil {
		return Node{}, fmt.Errorf("decode node %s: %w", id, err)
	}
	return n, nil
}

// TouchNode rewrites a node unchanged. The rewrite puts the node's key
// into this transaction's read and write sets, so any concurrent
// transaction doing the same surfaces a conflict at commit. This is the
// primitive behind the repository's optimistic write guard.
func (t *Txn) TouchNode(id string) error {
	item, err := t.txn.Get(nodeKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read node %s: %w", id, err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("read node %s: %w", id, err)
	}
	if err := t.txn.Set(nodeKey(id), raw); err != nil {
		return fmt.Errorf("touch node %s: %w", id, err)
	}
	return nil
}

// DeleteNode removes a node and its label index entries. Edges are the
// caller's responsibility.
func (t *Txn) DeleteNode(id string) error {
	n, err := t.GetNode(id)
	if err != nil {
		return err
	}
	for _, l := range n.Labels {
		if err := t.txn.Delete(labelKey(l, id)); err != nil {
			return fmt.Errorf("drop label index %s: %w", l, err)
		}
	}
	if err := t.txn.Delete(nodeKey(id)); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

// NodesByLabel returns every node carrying the given label, ordered by
// node id.
func (t *Txn) NodesByLabel(label string) ([]Node, error) {
	ids, err := t.scanSuffixes(labelPrefix(label))
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		n, err := t.GetNode(id)
		if err != nil {
			// Index entry without a node record; skip rather than fail
			// the whole scan.
			if errors.Is(err, ErrNodeNotFound) {
				continue
			}
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// NodeByLabelProperty returns the first node with the given label whose
// property matches value.
//
// Outputs:
//
//	Node - The matching node.
//	bool - False if no node matched.
//	error - Non-nil on storage failure.
func (t *Txn) NodeByLabelProperty(label, key, value string) (Node, bool, error) {
	nodes, err := t.NodesByLabel(label)
	if err != nil {
		return Node{}, false, err
	}
	for _, n := range nodes {
		if n.Props[key] == value {
			return n, true, nil
		}
	}
	return Node{}, false, nil
}

// AddEdge writes a new edge, assigning an id if the edge has none.
func (t *Txn) AddEdge(e Edge) (Edge, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := t.writeEdge(e); err != nil {
		return Edge{}, err
	}
	return e, nil
}

// UpdateEdge rewrites an existing edge's properties. The endpoints and
// type are part of the edge's identity and must not change.
func (t *Txn) UpdateEdge(e Edge) error {
	if e.ID == "" {
		return fmt.Errorf("%w: edge has no id", ErrEdgeNotFound)
	}
	if _, err := t.txn.Get(edgeKey(e.From, e.Type, e.ID)); errors.Is(err, badgerdb.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, e.ID)
	} else if err != nil {
		return fmt.Errorf("read edge %s: %w", e.ID, err)
	}
	return t.writeEdge(e)
}

func (t *Txn) writeEdge(e Edge) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode edge %s: %w", e.ID, err)
	}
	key := edgeKey(e.From, e.Type, e.ID)
	if err := t.txn.Set(key, raw); err != nil {
		return fmt.Errorf("write edge %s: %w", e.ID, err)
	}
	if err := t.txn.Set(revKey(e.To, e.Type, e.ID), key); err != nil {
		return fmt.Errorf("write edge index %s: %w", e.ID, err)
	}
	return nil
}

// RemoveEdge deletes an edge and its reverse index entry.
func (t *Txn) RemoveEdge(e Edge) error {
	if err := t.txn.Delete(edgeKey(e.From, e.Type, e.ID)); err != nil {
		return fmt.Errorf("delete edge %s: %w", e.ID, err)
	}
	if err := t.txn.Delete(revKey(e.To, e.Type, e.ID)); err != nil {
		return fmt.Errorf("delete edge index %s: %w", e.ID, err)
	}
	return nil
}

// OutEdges returns the outgoing edges of a node, optionally filtered to
// the given edge types, ordered by edge id within each type.
func (t *Txn) OutEdges(from string, types ...string) ([]Edge, error) {
	prefixes := make([][]byte, 0, len(types))
	if len(types) == 0 {
		prefixes = append(prefixes, edgeAllPrefix(from))
	} else {
		for _, typ := range types {
			prefixes = append(prefixes, edgePrefix(from, typ))
		}
	}

	var edges []Edge
	for _, prefix := range prefixes {
		if err := t.scanValues(prefix, func(val []byte) error {
			var e Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode edge: %w", err)
			}
			edges = append(edges, e)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

// InEdges returns the incoming edges of a node, optionally filtered to
// the given edge types.
func (t *Txn) InEdges(to string, types ...string) ([]Edge, error) {
	prefixes := make([][]byte, 0, len(types))
	if len(types) == 0 {
		prefixes = append(prefixes, revAllPrefix(to))
	} else {
		for _, typ := range types {
			prefixes = append(prefixes, revPrefix(to, typ))
		}
	}

	var edges []Edge
	for _, prefix := range prefixes {
		if err := t.scanValues(prefix, func(val []byte) error {
			item, err := t.txn.Get(val)
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				// Dangling reverse entry; tolerate.
				return nil
			}
			if err != nil {
				return fmt.Errorf("read edge by index: %w", err)
			}
			return item.Value(func(raw []byte) error {
				var e Edge
				if err := json.Unmarshal(raw, &e); err != nil {
					return fmt.Errorf("decode edge: %w", err)
				}
				edges = append(edges, e)
				return nil
			})
		}); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

// EdgesBetween returns the edges of the given type from one node to
// another.
func (t *Txn) EdgesBetween(from, to, typ string) ([]Edge, error) {
	all, err := t.OutEdges(from, typ)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out, nil
}

// scanSuffixes collects the key part after prefix for every key with
// that prefix.
func (t *Txn) scanSuffixes(prefix []byte) ([]string, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		out = append(out, string(key[len(prefix):]))
	}
	return out, nil
}

// scanValues calls fn with the value of every key under prefix.
func (t *Txn) scanValues(prefix []byte, fn func(val []byte) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
