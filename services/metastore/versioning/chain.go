// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package versioning

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVersion splits a "major.minor" version string into its numeric
// components.
func ParseVersion(v string) (major, minor int, err error) {
	head, tail, ok := strings.Cut(v, ".")
	if !ok {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	major, err = strconv.Atoi(head)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q: %w", v, err)
	}
	minor, err = strconv.Atoi(tail)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q: %w", v, err)
	}
	return major, minor, nil
}

// CompareVersions orders two "major.minor" strings numerically,
// comparing major then minor as integers, so "0.9" < "0.10".
// Malformed versions sort before well-formed ones.
//
// Outputs:
//
//	int - Negative if a < b, zero if equal, positive if a > b.
func CompareVersions(a, b string) int {
	aMajor, aMinor, aErr := ParseVersion(a)
	bMajor, bMinor, bErr := ParseVersion(b)
	switch {
	case aErr != nil && bErr != nil:
		return strings.Compare(a, b)
	case aErr != nil:
		return -1
	case bErr != nil:
		return 1
	}
	if aMajor != bMajor {
		return aMajor - bMajor
	}
	return aMinor - bMinor
}

// MaxVersion returns the numerically highest version string among the
// given metadata, or "" if the slice is empty.
func MaxVersion(metas []Metadata) string {
	highest := ""
	for i, m := range metas {
		if i == 0 || CompareVersions(m.Version(), highest) > 0 {
			highest = m.Version()
		}
	}
	return highest
}

// LatestIn picks the current edge out of a set of version metadata that
// share the same highest version number:
//
//  1. exactly one open edge (nil end date) -> that edge;
//  2. more than one open edge (a chain anomaly the caller should log)
//     -> the open edge with the latest start date;
//  3. no open edge -> the edge with the latest end date.
//
// Outputs:
//
//	int - Index of the chosen element, or -1 for an empty slice.
//	bool - True if more than one edge was open (anomaly).
func LatestIn(metas []Metadata) (int, bool) {
	if len(metas) == 0 {
		return -1, false
	}
	if len(metas) == 1 {
		return 0, false
	}

	open := make([]int, 0, len(metas))
	for i, m := range metas {
		if m.Open() {
			open = append(open, i)
		}
	}

	switch len(open) {
	case 1:
		return open[0], false
	case 0:
		best := 0
		for i := 1; i < len(metas); i++ {
			b, c := metas[best].EndDate, metas[i].EndDate
			if b == nil || (c != nil && c.After(*b)) {
				best = i
			}
		}
		return best, false
	default:
		best := open[0]
		for _, i := range open[1:] {
			if metas[i].StartDate.After(metas[best].StartDate) {
				best = i
			}
		}
		return best, true
	}
}
