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

package storage

import "testing"

// TestFlushOrderLeavesIndexesAheadOfCatalog exercises spec §8 scenario S6:
// if the process stops after the index pages are durable but before the
// catalog is, reopening the same directory must still see a catalog that
// undercounts (never overcounts) what the indexes actually contain.
func TestFlushOrderLeavesIndexesAheadOfCatalog(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	const from, to, typ = uint64(1), uint64(2), uint64(9)
	if _, err := s.InsertEdge(from, to, typ); err != nil {
		t.Fatalf("InsertEdge: %v", err)
	}

	// Simulate a crash between the index flush and the catalog flush:
	// durable the pages and the object file, but never call Catalog.Flush.
	if err := s.Pool.Flush(); err != nil {
		t.Fatalf("Pool.Flush: %v", err)
	}
	if err := s.Objects.Sync(); err != nil {
		t.Fatalf("Objects.Sync: %v", err)
	}

	reopened, err := OpenStore(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	it, err := reopened.EdgesForward.GetRange([]uint64{from, typ, 0, 0}, []uint64{from, typ, ^uint64(0), ^uint64(0)})
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	defer it.Close()
	rec, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("expected the flushed edge to survive reopen: ok=%v err=%v", ok, err)
	}
	if rec[2] != to {
		t.Fatalf("got to=%d, want %d", rec[2], to)
	}

	// The catalog was never flushed, so the reopened store's counters must
	// still read as the pre-insert, empty state — never ahead of what the
	// indexes recorded. This is the invariant S6 asks for: a reader can
	// trust "catalog says N edges" to mean at least N are really indexed,
	// but never the reverse.
	if reopened.Catalog.Edges != 0 {
		t.Fatalf("catalog.Edges = %d, want 0 (catalog flush never happened)", reopened.Catalog.Edges)
	}

	// Now flush the catalog too and confirm a second reopen observes both
	// in agreement.
	if err := s.Catalog.Flush(s.CatalogPath()); err != nil {
		t.Fatalf("Catalog.Flush: %v", err)
	}
	final, err := OpenStore(dir, nil)
	if err != nil {
		t.Fatalf("final reopen: %v", err)
	}
	if final.Catalog.Edges != 1 {
		t.Fatalf("catalog.Edges = %d, want 1 after Flush", final.Catalog.Edges)
	}
}
