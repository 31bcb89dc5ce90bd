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

package planner

import (
	"testing"

	"github.com/wangTheTiger/MillenniumDB/exec"
	"github.com/wangTheTiger/MillenniumDB/internal/mdbtest"
	"github.com/wangTheTiger/MillenniumDB/logical"
	"github.com/wangTheTiger/MillenniumDB/objid"
)

const ageKey = uint64(1)

func packInt(t *testing.T, n int64) uint64 {
	t.Helper()
	id, err := objid.PackInt(n)
	if err != nil {
		t.Fatalf("PackInt(%d): %v", n, err)
	}
	return uint64(id)
}

func drain(t *testing.T, op exec.RowOp) []exec.Binding {
	t.Helper()
	qc := &exec.QueryContext{}
	if err := op.Begin(qc); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer op.Close()

	var rows []exec.Binding
	for {
		row, ok, err := op.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows
}

// TestPlanSelectPropertyLookup exercises spec §8 scenario S1: find every
// node whose `age` property equals 30.
func TestPlanSelectPropertyLookup(t *testing.T) {
	s := mdbtest.OpenStore(t)

	thirty := packInt(t, 30)
	twentyNine := packInt(t, 29)

	match := mdbtest.NewNode(t, s).WithProperty(t, s, ageKey, thirty)
	_ = mdbtest.NewNode(t, s).WithProperty(t, s, ageKey, twentyNine)

	v0 := logical.Var(0) // object
	v1 := logical.Var(1) // value, constrained to 30 via the atom's own const term

	pattern := &logical.BGP{
		Atoms: []logical.Atom{
			logical.Property{Object: logical.VarTerm(v0), KeyID: ageKey, Value: logical.VarTerm(v1)},
		},
	}
	where := &logical.Where{
		Filter: logical.FilterCompare{Op: logical.CmpEq, Left: logical.VarTerm(v1), Right: logical.ConstTerm(thirty)},
		Pattern: pattern,
	}
	sel := &logical.Select{Where: where, Projection: []logical.Var{v0}}

	op, width, err := Plan(s, sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if width != 1 {
		t.Fatalf("width = %d, want 1", width)
	}

	rows := drain(t, op)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %+v", len(rows), rows)
	}
	if rows[0][0] != objid.ID(match.ID) {
		t.Fatalf("got object %v, want %v", rows[0][0], match.ID)
	}
}

// TestPlanSelectEdgePattern exercises spec §8 scenario S2: a two-hop edge
// pattern joined on a shared variable.
func TestPlanSelectEdgePattern(t *testing.T) {
	s := mdbtest.OpenStore(t)
	const knows = uint64(10)

	a := mdbtest.NewNode(t, s)
	b := mdbtest.NewNode(t, s)
	c := mdbtest.NewNode(t, s)
	mdbtest.Edge(t, s, a, b, knows)
	mdbtest.Edge(t, s, b, c, knows)

	va, vb, vc := logical.Var(0), logical.Var(1), logical.Var(2)
	pattern := &logical.BGP{
		Atoms: []logical.Atom{
			logical.Edge{From: logical.VarTerm(va), To: logical.VarTerm(vb), TypeID: knows},
			logical.Edge{From: logical.VarTerm(vb), To: logical.VarTerm(vc), TypeID: knows},
		},
	}
	sel := &logical.Select{
		Where:      &logical.Where{Pattern: pattern},
		Projection: []logical.Var{va, vb, vc},
	}

	op, _, err := Plan(s, sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	rows := drain(t, op)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %+v", len(rows), rows)
	}
	got := rows[0]
	want := exec.Binding{objid.ID(a.ID), objid.ID(b.ID), objid.ID(c.ID)}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %v, want %v", got, want)
		}
	}
}

// TestPlanSelfReferenceEdge exercises the from=to self-loop routing
// (SPEC_FULL.md §C.2): an edge whose endpoints coincide must be found via
// EdgesSelfLoop without requiring a distinct second variable.
func TestPlanSelfReferenceEdge(t *testing.T) {
	s := mdbtest.OpenStore(t)
	const likes = uint64(20)

	a := mdbtest.NewNode(t, s)
	b := mdbtest.NewNode(t, s)
	mdbtest.Edge(t, s, a, a, likes)
	mdbtest.Edge(t, s, a, b, likes)

	v := logical.Var(0)
	pattern := &logical.BGP{
		Atoms: []logical.Atom{
			logical.Edge{From: logical.VarTerm(v), To: logical.VarTerm(v), TypeID: likes},
		},
	}
	sel := &logical.Select{
		Where:      &logical.Where{Pattern: pattern},
		Projection: []logical.Var{v},
	}

	op, _, err := Plan(s, sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	rows := drain(t, op)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %+v", len(rows), rows)
	}
	if rows[0][0] != objid.ID(a.ID) {
		t.Fatalf("got %v, want %v", rows[0][0], a.ID)
	}
}
