// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package versioning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestCompareVersions verifies numeric, not lexicographic, ordering.
func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int // sign only
	}{
		{"0.9", "0.10", -1},
		{"0.10", "0.9", 1},
		{"1.0", "1.0", 0},
		{"2.0", "1.9", 1},
		{"10.0", "9.0", 1},
		{"garbage", "0.1", -1},
	}
	for _, tt := range tests {
		got := CompareVersions(tt.a, tt.b)
		switch {
		case tt.want < 0:
			assert.Negative(t, got, "%s vs %s", tt.a, tt.b)
		case tt.want > 0:
			assert.Positive(t, got, "%s vs %s", tt.a, tt.b)
		default:
			assert.Zero(t, got, "%s vs %s", tt.a, tt.b)
		}
	}
}

// TestMaxVersion picks the numerically highest version.
func TestMaxVersion(t *testing.T) {
	metas := []Metadata{
		{Major: 0, Minor: 9},
		{Major: 0, Minor: 10},
		{Major: 0, Minor: 2},
	}
	assert.Equal(t, "0.10", MaxVersion(metas))
	assert.Equal(t, "", MaxVersion(nil))
}

// TestLatestIn exercises the open/closed selection rules.
func TestLatestIn(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end1 := start.Add(1 * time.Hour)
	end2 := start.Add(2 * time.Hour)

	t.Run("single edge", func(t *testing.T) {
		i, anomaly := LatestIn([]Metadata{{StartDate: start}})
		assert.Equal(t, 0, i)
		assert.False(t, anomaly)
	})

	t.Run("one open edge wins", func(t *testing.T) {
		metas := []Metadata{
			{StartDate: start, EndDate: &end1},
			{StartDate: start.Add(time.Minute)},
		}
		i, anomaly := LatestIn(metas)
		assert.Equal(t, 1, i)
		assert.False(t, anomaly)
	})

	t.Run("two open edges is an anomaly, latest start wins", func(t *testing.T) {
		metas := []Metadata{
			{StartDate: start},
			{StartDate: start.Add(time.Minute)},
		}
		i, anomaly := LatestIn(metas)
		assert.Equal(t, 1, i)
		assert.True(t, anomaly)
	})

	t.Run("all closed, latest end wins", func(t *testing.T) {
		metas := []Metadata{
			{StartDate: start, EndDate: &end1},
			{StartDate: start, EndDate: &end2},
		}
		i, anomaly := LatestIn(metas)
		assert.Equal(t, 1, i)
		assert.False(t, anomaly)
	})

	t.Run("empty", func(t *testing.T) {
		i, _ := LatestIn(nil)
		assert.Equal(t, -1, i)
	})
}
