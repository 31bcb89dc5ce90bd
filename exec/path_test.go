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

package exec

import (
	"testing"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/pathauto"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// newChainGraph builds a -k-> b -k-> c, matching spec §8's S3 scenario,
// over a real forward/backward B+ tree pair.
func newChainGraph(t *testing.T) *EdgeIndex {
	t.Helper()
	dir := t.TempDir()
	fm, err := storage.NewFileManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	pool := storage.NewBufferPool(64, nil)
	fwd, err := storage.NewBPlusTree(fm, pool, 4, "fwd.dir", "fwd.leaf")
	if err != nil {
		t.Fatal(err)
	}
	bwd, err := storage.NewBPlusTree(fm, pool, 4, "bwd.dir", "bwd.leaf")
	if err != nil {
		t.Fatal(err)
	}
	const k = 5
	a, b, c := uint64(1), uint64(2), uint64(3)
	edges := []struct{ from, to, edgeID uint64 }{
		{a, b, 100},
		{b, c, 101},
	}
	for _, e := range edges {
		if err := fwd.Insert([]uint64{e.from, k, e.to, e.edgeID}); err != nil {
			t.Fatal(err)
		}
		if err := bwd.Insert([]uint64{e.to, k, e.from, e.edgeID}); err != nil {
			t.Fatal(err)
		}
	}
	return &EdgeIndex{Forward: fwd, Backward: bwd}
}

func kPlusAutomaton() *pathauto.Automaton {
	return pathauto.Compile(pathauto.Repeat{Child: pathauto.Atom{EdgeType: 5}, Min: 1, Max: -1})
}

func TestPathSearchEnumFromA(t *testing.T) {
	idx := newChainGraph(t)
	search := &PathSearch{
		Index:     idx,
		Automaton: kPlusAutomaton(),
		Arena:     &PathArena{},
		FromRole:  RoleConst,
		FromConst: objid.ID(1),
		ToRole:    RoleAssign,
		ToVar:     0,
		Mode:      PathModeEnum,
	}
	binding := Binding{objid.Null}
	if err := search.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	var got []objid.ID
	for {
		ok, err := search.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, binding[0])
	}
	if len(got) != 2 {
		t.Fatalf("expected {b, c} (2 nodes) reachable from a via k+, got %v", got)
	}
	seen := map[objid.ID]bool{}
	for _, g := range got {
		seen[g] = true
	}
	if !seen[objid.ID(2)] || !seen[objid.ID(3)] {
		t.Fatalf("expected b(2) and c(3) in result, got %v", got)
	}
}

func TestPathSearchEnumFromCIsEmpty(t *testing.T) {
	idx := newChainGraph(t)
	search := &PathSearch{
		Index:     idx,
		Automaton: kPlusAutomaton(),
		Arena:     &PathArena{},
		FromRole:  RoleConst,
		FromConst: objid.ID(3),
		ToRole:    RoleAssign,
		ToVar:     0,
		Mode:      PathModeEnum,
	}
	binding := Binding{objid.Null}
	if err := search.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	ok, err := search.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no k+ successors from c")
	}
}

func TestPathSearchCheckAToC(t *testing.T) {
	idx := newChainGraph(t)
	search := &PathSearch{
		Index:     idx,
		Automaton: kPlusAutomaton(),
		Arena:     &PathArena{},
		FromRole:  RoleConst,
		FromConst: objid.ID(1),
		ToRole:    RoleBound,
		ToVar:     0,
		Mode:      PathModeCheck,
	}
	binding := Binding{objid.ID(3)}
	if err := search.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	ok, err := search.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a to reach c via k+")
	}
}

func TestPathSearchShortestAToCHasLengthTwo(t *testing.T) {
	idx := newChainGraph(t)
	arena := &PathArena{}
	search := &PathSearch{
		Index:      idx,
		Automaton:  kPlusAutomaton(),
		Arena:      arena,
		FromRole:   RoleConst,
		FromConst:  objid.ID(1),
		ToRole:     RoleBound,
		ToVar:      0,
		Mode:       PathModeShortest,
		HasPathVar: true,
		PathVar:    1,
	}
	binding := Binding{objid.ID(3), objid.Null}
	if err := search.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	ok, err := search.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a shortest path from a to c")
	}
	pathIx, isPath := objid.PathIndex(binding[1])
	if !isPath {
		t.Fatal("expected a path object-id in PathVar")
	}
	chain := arena.Walk(int(pathIx))
	if len(chain) != 3 {
		t.Fatalf("expected a 3-node chain (a, b, c), got %d: %v", len(chain), chain)
	}
	if chain[0].Node != objid.ID(1) || chain[1].Node != objid.ID(2) || chain[2].Node != objid.ID(3) {
		t.Fatalf("expected chain a->b->c, got %v", chain)
	}
}
