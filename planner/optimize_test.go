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

	"github.com/wangTheTiger/MillenniumDB/logical"
)

func TestOptimizeDedupesExactDuplicateAtoms(t *testing.T) {
	v := logical.Var(0)
	atom := logical.Label{Node: logical.VarTerm(v), LabelID: 7}
	b := &logical.BGP{Atoms: []logical.Atom{atom, atom}}

	got := Optimize(b)
	if len(got.Atoms) != 1 {
		t.Fatalf("got %d atoms, want 1: %+v", len(got.Atoms), got.Atoms)
	}
}

func TestOptimizeDropsOptionalAlreadyImpliedByParent(t *testing.T) {
	v := logical.Var(0)
	atom := logical.Label{Node: logical.VarTerm(v), LabelID: 7}
	b := &logical.BGP{
		Atoms:    []logical.Atom{atom},
		Optional: []*logical.BGP{{Atoms: []logical.Atom{atom}}},
	}

	got := Optimize(b)
	if len(got.Optional) != 0 {
		t.Fatalf("got %d optional children, want 0 (redundant): %+v", len(got.Optional), got.Optional)
	}
}

func TestOptimizeKeepsOptionalAddingNewAtoms(t *testing.T) {
	v0, v1 := logical.Var(0), logical.Var(1)
	required := logical.Label{Node: logical.VarTerm(v0), LabelID: 7}
	extra := logical.Label{Node: logical.VarTerm(v1), LabelID: 9}
	b := &logical.BGP{
		Atoms:    []logical.Atom{required},
		Optional: []*logical.BGP{{Atoms: []logical.Atom{required, extra}}},
	}

	got := Optimize(b)
	if len(got.Optional) != 1 {
		t.Fatalf("got %d optional children, want 1", len(got.Optional))
	}
	if len(got.Optional[0].Atoms) != 1 {
		t.Fatalf("optional child still carries the redundant atom: %+v", got.Optional[0].Atoms)
	}
	if got.Optional[0].Atoms[0] != logical.Atom(extra) {
		t.Fatalf("optional child kept the wrong atom: %+v", got.Optional[0].Atoms[0])
	}
}
