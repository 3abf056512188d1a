// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph implements the entity graph store the versioning engine
// runs on: labelled nodes, typed edges between them, and pattern
// queries (by label, by property, by edge type), all inside BadgerDB
// transactions.
//
// The store is deliberately small. It knows nothing about versioning;
// the repository package defines the node labels and edge vocabulary it
// needs and drives this package through plain CRUD and scans.
//
// Layout in Badger:
//
//	n:<id>                 node record (JSON)
//	l:<label>:<id>         label index entry
//	e:<from>:<type>:<id>   edge record (JSON)
//	r:<to>:<type>:<id>     reverse edge index -> edge key
//
// Node and label identifiers must not contain ':'.
package graph

import (
	"sort"
	"time"
)

// Properties is the property bag carried by nodes and edges. Values
// are strings; timestamps are stored as RFC 3339 with nanoseconds.
type Properties map[string]string

// timeLayout is the persisted timestamp format.
const timeLayout = time.RFC3339Nano

// SetTime stores a timestamp property.
func (p Properties) SetTime(key string, t time.Time) {
	p[key] = t.UTC().Format(timeLayout)
}

// Time reads a timestamp property.
//
// Outputs:
//
//	time.Time - The parsed instant.
//	bool - False if the property is absent or malformed.
func (p Properties) Time(key string) (time.Time, bool) {
	raw, ok := p[key]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns an independent copy of the property bag.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Node is a labelled record in the graph. Nodes are value snapshots:
// mutate a copy and write it back with PutNode.
type Node struct {
	ID     string     `json:"id"`
	Labels []string   `json:"labels"`
	Props  Properties `json:"props"`
}

// HasLabel reports whether the node carries the given label.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AddLabel adds a label if not already present.
func (n *Node) AddLabel(label string) {
	if !n.HasLabel(label) {
		n.Labels = append(n.Labels, label)
		sort.Strings(n.Labels)
	}
}

// RemoveLabel removes a label if present.
func (n *Node) RemoveLabel(label string) {
	out := n.Labels[:0]
	for _, l := range n.Labels {
		if l != label {
			out = append(out, l)
		}
	}
	n.Labels = out
}

// Edge is a typed, directed connection between two nodes. Multiple
// edges of the same type may exist between the same pair of nodes;
// each carries its own ID and properties.
type Edge struct {
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	From  string     `json:"from"`
	To    string     `json:"to"`
	Props Properties `json:"props"`
}
