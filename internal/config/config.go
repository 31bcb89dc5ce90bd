// Copyright 2026 MillenniumDB Authors.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package config loads a database directory's tunables from an optional
// millenniumdb.yaml file, falling back to built-in defaults. Mirrors
// db/sync.go's definition.json/definition.yaml resolution: YAML decoded
// through a YAML->JSON->struct round trip rather than a native YAML
// struct-tag decoder.
package config

import (
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Tunables holds every knob a database directory may override. Zero
// values in the decoded file are left at their Default()-supplied
// values, never silently turned into zero.
type Tunables struct {
	// PageSize overrides the on-disk page size in bytes (spec §4.1).
	PageSize int `json:"pageSize,omitempty"`
	// BufferPoolFrames is the number of page frames the buffer pool
	// keeps resident (spec §4.1).
	BufferPoolFrames int `json:"bufferPoolFrames,omitempty"`
	// HashJoinMemoryBudget is a row-count budget for a hash join's build
	// side (spec §4.8). It is loaded and merged here only; HashJoin does
	// not read it and does not spill.
	HashJoinMemoryBudget int `json:"hashJoinMemoryBudget,omitempty"`
	// HashJoinBucketCount is a hash-join bucket count override. It is
	// loaded and merged here only; HashJoin does not read it and always
	// derives its bucket count from its inputs' row counts.
	HashJoinBucketCount int `json:"hashJoinBucketCount,omitempty"`
	// OrderByPageBudget is a row budget for OrderBy's in-memory sorted
	// runs (spec §4.10's external merge sort). It is loaded and merged
	// here only; OrderBy does not read it and sizes its runs from its own
	// RowsPerRun field.
	OrderByPageBudget int `json:"orderByPageBudget,omitempty"`
}

// Default returns the built-in tunables used when no millenniumdb.yaml is
// present, or when a present file leaves a field unset.
func Default() Tunables {
	return Tunables{
		PageSize:             4096,
		BufferPoolFrames:     256,
		HashJoinMemoryBudget: 1 << 20,
		HashJoinBucketCount:  0, // 0 means unset
		OrderByPageBudget:    4096 / 8,
	}
}

// Load reads dir/millenniumdb.yaml if present and overlays it onto
// Default(); a missing file is not an error.
func Load(dir string) (Tunables, error) {
	t := Default()

	path := filepath.Join(dir, "millenniumdb.yaml")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return Tunables{}, err
	}

	var overlay Tunables
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Tunables{}, err
	}
	applyOverlay(&t, overlay)
	return t, nil
}

func applyOverlay(t *Tunables, overlay Tunables) {
	if overlay.PageSize != 0 {
		t.PageSize = overlay.PageSize
	}
	if overlay.BufferPoolFrames != 0 {
		t.BufferPoolFrames = overlay.BufferPoolFrames
	}
	if overlay.HashJoinMemoryBudget != 0 {
		t.HashJoinMemoryBudget = overlay.HashJoinMemoryBudget
	}
	if overlay.HashJoinBucketCount != 0 {
		t.HashJoinBucketCount = overlay.HashJoinBucketCount
	}
	if overlay.OrderByPageBudget != 0 {
		t.OrderByPageBudget = overlay.OrderByPageBudget
	}
}
