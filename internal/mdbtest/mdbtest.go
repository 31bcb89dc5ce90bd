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

// Package mdbtest builds small on-disk test graphs for package tests,
// the way plan/plan_test.go and vm/sort_test.go build fixtures inline
// rather than through a testing framework (see SPEC_FULL.md's Test
// tooling section).
package mdbtest

import (
	"testing"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// OpenStore opens a fresh storage.Store rooted at a t.TempDir(),
// registering automatic cleanup.
func OpenStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.OpenStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("mdbtest: OpenStore: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Flush(s.CatalogPath())
	})
	return s
}

// Node is a convenience builder wrapping a freshly minted anonymous node
// identifier, for chaining label/property calls.
type Node struct {
	ID uint64
}

// NewNode mints a fresh anonymous node identifier (objid.PackAnonymous
// over the catalog's own anonymous-node counter, spec §4.2's "anonymous
// node" kind) and records it in the catalog.
func NewNode(t *testing.T, s *storage.Store) Node {
	t.Helper()
	anonID := s.Catalog.RecordNode(true)
	return Node{ID: uint64(objid.PackAnonymous(anonID))}
}

// WithLabel records labelID on n, failing the test on error.
func (n Node) WithLabel(t *testing.T, s *storage.Store, labelID uint64) Node {
	t.Helper()
	if err := s.InsertLabel(n.ID, labelID); err != nil {
		t.Fatalf("mdbtest: InsertLabel: %v", err)
	}
	return n
}

// WithProperty records a (key, value) pair on n, failing the test on
// error. value is an already-packed object identifier (see objid).
func (n Node) WithProperty(t *testing.T, s *storage.Store, key uint64, value uint64) Node {
	t.Helper()
	if err := s.InsertProperty(n.ID, key, value); err != nil {
		t.Fatalf("mdbtest: InsertProperty: %v", err)
	}
	return n
}

// Edge inserts a (from, to, typ) edge, failing the test on error, and
// returns the freshly assigned edge counter.
func Edge(t *testing.T, s *storage.Store, from, to Node, typ uint64) uint64 {
	t.Helper()
	counter, err := s.InsertEdge(from.ID, to.ID, typ)
	if err != nil {
		t.Fatalf("mdbtest: InsertEdge: %v", err)
	}
	return counter
}
