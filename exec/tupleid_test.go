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
	"context"
	"testing"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

func newScanTree(t *testing.T, cols int) *storage.BPlusTree {
	t.Helper()
	dir := t.TempDir()
	fm, err := storage.NewFileManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	pool := storage.NewBufferPool(64, nil)
	tree, err := storage.NewBPlusTree(fm, pool, cols, "idx.dir", "idx.leaf")
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func qctx() *QueryContext { return &QueryContext{Ctx: context.Background()} }

func TestIndexScanConstBoundAssign(t *testing.T) {
	tree := newScanTree(t, 3)
	// column 0 is a type constant, column 1 is the "from" node, column 2
	// is the "to" node we want assigned.
	typeVal := uint64(7)
	for i := uint64(0); i < 5; i++ {
		if err := tree.Insert([]uint64{typeVal, 1, i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.Insert([]uint64{typeVal, 2, 99}); err != nil {
		t.Fatal(err)
	}

	scan := &IndexScan{
		Tree: tree,
		Cols: []ScanColumn{
			{Role: RoleConst, Const: objid.ID(typeVal)},
			{Role: RoleBound, Var: 0},
			{Role: RoleAssign, Var: 1},
		},
	}
	binding := Binding{objid.ID(1), objid.Null}
	if err := scan.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	var got []objid.ID
	for {
		ok, err := scan.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, binding[1])
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 matches for from=1, got %d: %v", len(got), got)
	}
	scan.Close()
}

// fakeOp is a minimal in-memory TupleIDOp driving a fixed set of rows for
// a single owned variable, used to exercise the join operators without
// needing a real index.
type fakeOp struct {
	owns []int
	rows []Binding
	pos  int
}

func (f *fakeOp) Begin(qc *QueryContext, binding Binding) error { f.pos = -1; return nil }
func (f *fakeOp) Next() (bool, error) {
	f.pos++
	if f.pos >= len(f.rows) {
		return false, nil
	}
	return true, nil
}
func (f *fakeOp) Reset() error { f.pos = -1; return nil }
func (f *fakeOp) AssignNulls(binding Binding) {
	for _, v := range f.owns {
		binding[v] = objid.Null
	}
}
func (f *fakeOp) Close() {}

// boundOp copies the current row for its owned variables into the shared
// binding on every Next, consuming bound values from the outer scope only
// for correlation checks in nested-loop tests.
type boundOp struct {
	fakeOp
	binding Binding
}

func (b *boundOp) Begin(qc *QueryContext, binding Binding) error {
	b.binding = binding
	b.pos = -1
	return nil
}
func (b *boundOp) Next() (bool, error) {
	b.pos++
	if b.pos >= len(b.rows) {
		return false, nil
	}
	row := b.rows[b.pos]
	for i, v := range b.owns {
		b.binding[v] = row[i]
	}
	return true, nil
}
func (b *boundOp) Reset() error { b.pos = -1; return nil }

func id(n uint64) objid.ID { return objid.ID(n) }

func TestNestedLoopJoinCrossProduct(t *testing.T) {
	left := &boundOp{fakeOp: fakeOp{owns: []int{0}, rows: []Binding{{id(1)}, {id(2)}}}}
	right := &boundOp{fakeOp: fakeOp{owns: []int{1}, rows: []Binding{{id(10)}, {id(11)}, {id(12)}}}}
	join := &NestedLoopJoin{Left: left, Right: right}
	binding := Binding{objid.Null, objid.Null}
	if err := join.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	count := 0
	for {
		ok, err := join.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 6 {
		t.Fatalf("expected 2*3=6 pairs, got %d", count)
	}
}

func TestLeftOuterJoinEmitsNullsOnNoMatch(t *testing.T) {
	left := &boundOp{fakeOp: fakeOp{owns: []int{0}, rows: []Binding{{id(1)}, {id(2)}}}}
	right := &boundOp{fakeOp: fakeOp{owns: []int{1}, rows: nil}}
	join := &LeftOuterJoin{Left: left, Right: right}
	binding := Binding{objid.Null, objid.ID(42)}
	if err := join.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	var seen []objid.ID
	for {
		ok, err := join.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		seen = append(seen, binding[1])
	}
	if len(seen) != 2 {
		t.Fatalf("expected one null-padded row per left tuple, got %d", len(seen))
	}
	for _, v := range seen {
		if v != objid.Null {
			t.Fatalf("expected null right binding, got %v", v)
		}
	}
}

func TestHashJoinMatchesOnCommonVar(t *testing.T) {
	// both sides write the join key into var 0 so CommonVars={0} compares
	// the same binding slot on each side.
	left := &boundOp{fakeOp: fakeOp{owns: []int{0}, rows: []Binding{{id(1)}, {id(2)}, {id(3)}}}}
	right := &boundOp{fakeOp: fakeOp{owns: []int{0}, rows: []Binding{{id(2)}, {id(3)}, {id(3)}}}}
	join := &HashJoin{Left: left, Right: right, CommonVars: []int{0}}
	binding := Binding{objid.Null}
	if err := join.Begin(qctx(), binding); err != nil {
		t.Fatal(err)
	}
	count := 0
	for {
		ok, err := join.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		count++
	}
	// value 2 matches once (1 left * 1 right), value 3 matches 1 left * 2
	// right = 2, value 1 has no right match.
	if count != 3 {
		t.Fatalf("expected 3 matching pairs, got %d", count)
	}
}
