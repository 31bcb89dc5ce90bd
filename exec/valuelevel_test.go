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
	"path/filepath"
	"testing"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// sliceRowOp is a minimal RowOp test double driving a fixed row set.
type sliceRowOp struct {
	rows []Binding
	pos  int
}

func (s *sliceRowOp) Begin(qc *QueryContext) error { s.pos = -1; return nil }
func (s *sliceRowOp) Next() (Binding, bool, error) {
	s.pos++
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	return s.rows[s.pos], true, nil
}
func (s *sliceRowOp) Close() {}

func drainRows(t *testing.T, op RowOp) []Binding {
	t.Helper()
	var out []Binding
	for {
		row, ok, err := op.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		out = append(out, row)
	}
	return out
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	dir := t.TempDir()
	of, err := storage.OpenObjectFile(filepath.Join(dir, "objects.dat"))
	if err != nil {
		t.Fatal(err)
	}
	fm, err := storage.NewFileManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	pool := storage.NewBufferPool(64, nil)
	hash, err := storage.OpenExtendibleHash(fm, pool, "hash.dir", "hash.buckets")
	if err != nil {
		t.Fatal(err)
	}
	return &Resolver{Objects: of, Hash: hash}
}

func qctxWithResolver(t *testing.T) *QueryContext {
	qc := qctx()
	qc.Resolver = newResolver(t)
	return qc
}

func TestProjectionSelectsVars(t *testing.T) {
	src := &sliceRowOp{rows: []Binding{{id(1), id(2), id(3)}, {id(4), id(5), id(6)}}}
	proj := &Projection{Input: src, Vars: []int{2, 0}}
	if err := proj.Begin(qctx()); err != nil {
		t.Fatal(err)
	}
	rows := drainRows(t, proj)
	if len(rows) != 2 || rows[0][0] != id(3) || rows[0][1] != id(1) {
		t.Fatalf("unexpected projection result: %v", rows)
	}
}

func TestDistinctHashDedups(t *testing.T) {
	src := &sliceRowOp{rows: []Binding{{id(1)}, {id(2)}, {id(1)}, {id(2)}, {id(3)}}}
	d := &DistinctHash{Input: src}
	if err := d.Begin(qctx()); err != nil {
		t.Fatal(err)
	}
	rows := drainRows(t, d)
	if len(rows) != 3 {
		t.Fatalf("expected 3 distinct rows, got %d: %v", len(rows), rows)
	}
}

func TestDistinctOrderedDedups(t *testing.T) {
	src := &sliceRowOp{rows: []Binding{{id(1)}, {id(1)}, {id(2)}, {id(2)}, {id(2)}, {id(3)}}}
	d := &DistinctOrdered{Input: src}
	if err := d.Begin(qctx()); err != nil {
		t.Fatal(err)
	}
	rows := drainRows(t, d)
	if len(rows) != 3 {
		t.Fatalf("expected 3 runs of distinct values, got %d: %v", len(rows), rows)
	}
}

func TestOrderBySortsAscendingAcrossSpilledRuns(t *testing.T) {
	// RowsPerRun=2 forces several small runs and an external merge for an
	// 7-row input, exercising the scratch-file spill/merge path.
	values := []uint64{7, 2, 9, 4, 1, 8, 3}
	var rows []Binding
	for _, v := range values {
		rows = append(rows, Binding{id(v)})
	}
	src := &sliceRowOp{rows: rows}
	ob := &OrderBy{
		Input:      src,
		Keys:       []OrderKey{{Col: 0}},
		ScratchDir: t.TempDir(),
		RowsPerRun: 2,
	}
	qc := qctxWithResolver(t)
	if err := ob.Begin(qc); err != nil {
		t.Fatal(err)
	}
	got := drainRows(t, ob)
	if len(got) != len(values) {
		t.Fatalf("expected %d rows back, got %d", len(values), len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1][0] > got[i][0] {
			t.Fatalf("output not sorted ascending: %v", got)
		}
	}
	if got[0][0] != id(1) || got[len(got)-1][0] != id(9) {
		t.Fatalf("unexpected sort bounds: %v", got)
	}
}

func TestOrderByDescending(t *testing.T) {
	src := &sliceRowOp{rows: []Binding{{id(1)}, {id(3)}, {id(2)}}}
	ob := &OrderBy{
		Input:      src,
		Keys:       []OrderKey{{Col: 0, Descending: true}},
		ScratchDir: t.TempDir(),
	}
	qc := qctxWithResolver(t)
	if err := ob.Begin(qc); err != nil {
		t.Fatal(err)
	}
	got := drainRows(t, ob)
	if got[0][0] != id(3) || got[1][0] != id(2) || got[2][0] != id(1) {
		t.Fatalf("expected descending order, got %v", got)
	}
}

func TestGroupByAggregates(t *testing.T) {
	// two groups keyed on column 0: group A={10,20}, group B={5}.
	a, err := objid.PackInt(10)
	if err != nil {
		t.Fatal(err)
	}
	b, err := objid.PackInt(20)
	if err != nil {
		t.Fatal(err)
	}
	c, err := objid.PackInt(5)
	if err != nil {
		t.Fatal(err)
	}
	groupA, groupB := id(1), id(2)
	rows := []Binding{
		{groupA, a},
		{groupA, b},
		{groupB, c},
	}
	src := &sliceRowOp{rows: rows}
	resolver := newResolver(t)
	gb := &GroupBy{
		Input:     src,
		GroupCols: []int{0},
		Aggregates: []Aggregate{
			{Kind: AggCount, Col: 1},
			{Kind: AggSum, Col: 1},
			{Kind: AggAvg, Col: 1},
			{Kind: AggMin, Col: 1},
			{Kind: AggMax, Col: 1},
		},
		Resolver: resolver,
	}
	qc := qctx()
	qc.Resolver = resolver
	if err := gb.Begin(qc); err != nil {
		t.Fatal(err)
	}
	got := drainRows(t, gb)
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
	byKey := map[objid.ID]Binding{}
	for _, row := range got {
		byKey[row[0]] = row
	}
	rowA, ok := byKey[groupA]
	if !ok {
		t.Fatalf("missing group A in result: %v", got)
	}
	countA, _ := objid.UnpackInt(rowA[1])
	if countA != 2 {
		t.Fatalf("expected count=2 for group A, got %d", countA)
	}
	sumA, _ := objid.UnpackInt(rowA[2])
	if sumA != 30 {
		t.Fatalf("expected sum=30 for group A, got %d", sumA)
	}
	avgA, _ := objid.UnpackFloat(rowA[3])
	if avgA != 15 {
		t.Fatalf("expected avg=15 for group A, got %v", avgA)
	}
	minA, _ := objid.UnpackInt(rowA[4])
	maxA, _ := objid.UnpackInt(rowA[5])
	if minA != 10 || maxA != 20 {
		t.Fatalf("expected min=10 max=20 for group A, got min=%d max=%d", minA, maxA)
	}
}

func TestGroupByCountDistinctAndGroupConcat(t *testing.T) {
	resolver := newResolver(t)
	s1, _ := objid.PackInlineString([]byte("a"), false)
	s2, _ := objid.PackInlineString([]byte("b"), false)
	s3, _ := objid.PackInlineString([]byte("a"), false)
	key := id(1)
	rows := []Binding{{key, s1}, {key, s2}, {key, s3}}
	src := &sliceRowOp{rows: rows}
	gb := &GroupBy{
		Input:     src,
		GroupCols: []int{0},
		Aggregates: []Aggregate{
			{Kind: AggCountDistinct, Col: 1},
			{Kind: AggGroupConcat, Col: 1},
			{Kind: AggSample, Col: 1},
		},
		Resolver: resolver,
	}
	qc := qctx()
	qc.Resolver = resolver
	if err := gb.Begin(qc); err != nil {
		t.Fatal(err)
	}
	got := drainRows(t, gb)
	if len(got) != 1 {
		t.Fatalf("expected 1 group, got %d", len(got))
	}
	row := got[0]
	distinctCount, _ := objid.UnpackInt(row[1])
	if distinctCount != 2 {
		t.Fatalf("expected 2 distinct values (a,b), got %d", distinctCount)
	}
	concatStr, err := decodeString(resolver, row[2])
	if err != nil {
		t.Fatal(err)
	}
	if concatStr != "a, b, a" {
		t.Fatalf("expected group_concat \"a, b, a\", got %q", concatStr)
	}
	sampleStr, err := decodeString(resolver, row[3])
	if err != nil {
		t.Fatal(err)
	}
	if sampleStr != "a" {
		t.Fatalf("expected deterministic first-seen sample \"a\", got %q", sampleStr)
	}
}

// TestInternStringDedupsExternStrings guards §4.3's "interned strings are
// immortal" contract: two calls interning the same too-long-to-inline
// string must return the same object identifier, so DISTINCT/GROUP BY over
// extern strings dedup on equal bytes rather than on accidental equal
// offsets.
func TestInternStringDedupsExternStrings(t *testing.T) {
	resolver := newResolver(t)
	const s = "a fairly long string that cannot be packed inline"

	id1, err := internString(resolver, s)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := internString(resolver, s)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("interning %q twice produced distinct ids %v != %v", s, id1, id2)
	}

	other, err := internString(resolver, s+" (and this one differs)")
	if err != nil {
		t.Fatal(err)
	}
	if other == id1 {
		t.Fatalf("distinct strings must not collide to the same id")
	}
}

func TestGroupByCountStarIncludesNulls(t *testing.T) {
	key := id(1)
	rows := []Binding{{key, objid.Null}, {key, id(7)}}
	src := &sliceRowOp{rows: rows}
	gb := &GroupBy{
		Input:     src,
		GroupCols: []int{0},
		Aggregates: []Aggregate{
			{Kind: AggCount, Col: -1},
			{Kind: AggCount, Col: 1},
		},
		Resolver: newResolver(t),
	}
	if err := gb.Begin(qctx()); err != nil {
		t.Fatal(err)
	}
	got := drainRows(t, gb)
	starCount, _ := objid.UnpackInt(got[0][1])
	colCount, _ := objid.UnpackInt(got[0][2])
	if starCount != 2 {
		t.Fatalf("expected COUNT(*)=2, got %d", starCount)
	}
	if colCount != 1 {
		t.Fatalf("expected COUNT(col)=1 (null excluded), got %d", colCount)
	}
}
