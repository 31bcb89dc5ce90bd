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

package logical

// Vars returns every distinct variable referenced by an atom.
func Vars(a Atom) []Var {
	var out []Var
	add := func(t Term) {
		if t.IsVar {
			out = append(out, t.V)
		}
	}
	switch v := a.(type) {
	case Label:
		add(v.Node)
	case Property:
		add(v.Object)
		add(v.Value)
	case Edge:
		add(v.From)
		add(v.To)
		if v.HasEdgeVar {
			out = append(out, v.EdgeVar)
		}
	case Path:
		add(v.From)
		add(v.To)
		if v.HasPathVar {
			out = append(out, v.PathVar)
		}
	case IsolatedVar:
		out = append(out, v.V)
	case IsolatedTerm:
		// no variable
	}
	return out
}

// IsSelfReference reports whether an Edge atom's From/To/type-constant
// terms repeat a variable or constant across positions. The planner routes
// the fromEqTo case to a self-reference side-index scan, and the other two
// to a forward scan plus an equality filter (SPEC_FULL.md §C.2).
func (e Edge) IsSelfReference() (fromEqTo, fromEqType, toEqType bool) {
	sameTerm := func(a, b Term) bool {
		if a.IsVar != b.IsVar {
			return false
		}
		if a.IsVar {
			return a.V == b.V
		}
		return a.Const == b.Const
	}
	typeTerm := ConstTerm(e.TypeID)
	return sameTerm(e.From, e.To), sameTerm(e.From, typeTerm), sameTerm(e.To, typeTerm)
}

// AllVars returns every distinct variable mentioned anywhere in the BGP,
// including nested Optional sub-patterns.
func AllVars(b *BGP) []Var {
	seen := make(map[Var]bool)
	var out []Var
	var walk func(*BGP)
	walk = func(b *BGP) {
		if b == nil {
			return
		}
		for _, a := range b.Atoms {
			for _, v := range Vars(a) {
				if !seen[v] {
					seen[v] = true
					out = append(out, v)
				}
			}
		}
		for _, opt := range b.Optional {
			walk(opt)
		}
	}
	walk(b)
	return out
}
