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

package pathauto

import "testing"

func TestCompileSingleAtom(t *testing.T) {
	a := Compile(Atom{EdgeType: 1})
	if a.StartIsFinal {
		t.Fatal("single atom must not accept the empty path")
	}
	out := a.Out(a.Start)
	found := false
	for _, tr := range out {
		if tr.EdgeType == 1 && !tr.Inverse {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a forward transition on edge type 1 out of start")
	}
}

func TestCompileStarAcceptsEmpty(t *testing.T) {
	a := Compile(Star{Child: Atom{EdgeType: 7}})
	if !a.StartIsFinal {
		t.Fatal("k* must accept the empty path")
	}
}

func TestCompileInverseTogglesDirection(t *testing.T) {
	a := Compile(Inverse{Child: Atom{EdgeType: 3}})
	out := a.Out(a.Start)
	found := false
	for _, tr := range out {
		if tr.EdgeType == 3 && tr.Inverse {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a reverse transition on edge type 3")
	}
}

func TestCompileInverseOfConcatReversesOrder(t *testing.T) {
	// ^(a.b) should behave like ^b.^a: starting state should offer a
	// reverse transition on b's type, not a's.
	e := Inverse{Child: Concat{Left: Atom{EdgeType: 1}, Right: Atom{EdgeType: 2}}}
	a := Compile(e)
	out := a.Out(a.Start)
	if len(out) != 1 || out[0].EdgeType != 2 || !out[0].Inverse {
		t.Fatalf("expected single reverse transition on edge type 2 first, got %+v", out)
	}
}

func TestDistanceToFinal(t *testing.T) {
	e := Concat{Left: Atom{EdgeType: 1}, Right: Atom{EdgeType: 2}}
	a := Compile(e)
	d := a.DistanceToFinal(a.Start)
	if d != 2 {
		t.Fatalf("DistanceToFinal(start) = %d, want 2", d)
	}
	for s := range a.Final {
		if a.DistanceToFinal(s) != 0 {
			t.Fatalf("DistanceToFinal(final state) = %d, want 0", a.DistanceToFinal(s))
		}
	}
}

func TestRepeatBounded(t *testing.T) {
	a := Compile(Repeat{Child: Atom{EdgeType: 9}, Min: 1, Max: 3})
	if a.StartIsFinal {
		t.Fatal("k{1,3} must not accept the empty path")
	}
}
