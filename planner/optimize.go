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

// Package planner turns a validated logical.BGP into a cost-based
// left-deep physical plan of exec operators (spec §4.9): an optimize pass
// that prunes redundant atoms and hoists optional blocks that add nothing
// new, followed by join-order search in joinorder.go.
package planner

import "github.com/wangTheTiger/MillenniumDB/logical"

// Optimize rewrites b: duplicate atoms (same assertion appearing twice)
// are collapsed to one, and Optional children whose atoms are already
// implied by an ancestor's required atoms are pruned down to whatever
// they add beyond that — "duplicate assignments detected by the union of
// already-bound variable ids" (spec §4.9's optimization pass).
//
// optimize's inherited argument carries the ancestor chain's atom keys down into nested
// Optional blocks; it is nil at the top-level call.
func Optimize(b *logical.BGP) *logical.BGP {
	return optimize(b, nil)
}

func optimize(b *logical.BGP, inherited map[string]bool) *logical.BGP {
	if b == nil {
		return nil
	}
	required := dedupeAtoms(b.Atoms)
	required = removeAtoms(required, inherited)

	keys := make(map[string]bool, len(inherited)+len(required))
	for k := range inherited {
		keys[k] = true
	}
	for _, a := range required {
		keys[atomKey(a)] = true
	}

	var kept []*logical.BGP
	for _, opt := range b.Optional {
		child := optimize(opt, keys)
		if child == nil {
			continue
		}
		if len(child.Atoms) == 0 && len(child.Optional) == 0 {
			// the optional block adds no new variable or constraint beyond
			// what the parent already guarantees: hoisting it away is a
			// no-op on the result set, so it is simply dropped.
			continue
		}
		kept = append(kept, child)
	}
	return &logical.BGP{Atoms: required, Optional: kept}
}

// dedupeAtoms removes exact-duplicate atoms, keeping first occurrence
// order (deterministic, matching the planner's own tie-break rule).
func dedupeAtoms(atoms []logical.Atom) []logical.Atom {
	seen := make(map[string]bool, len(atoms))
	out := make([]logical.Atom, 0, len(atoms))
	for _, a := range atoms {
		k := atomKey(a)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}

// removeAtoms drops any atom whose key is already present in keys.
func removeAtoms(atoms []logical.Atom, keys map[string]bool) []logical.Atom {
	if len(keys) == 0 {
		return atoms
	}
	out := atoms[:0:0]
	for _, a := range atoms {
		if keys[atomKey(a)] {
			continue
		}
		out = append(out, a)
	}
	return out
}

func termKey(t logical.Term) string {
	if t.IsVar {
		return "v" + itoa(int(t.V))
	}
	return "c" + uitoa(t.Const)
}

// atomKey is a canonical string identifying what an atom asserts, used
// both for within-BGP dedup and for the "already implied by an ancestor"
// check during optional hoisting.
func atomKey(a logical.Atom) string {
	switch v := a.(type) {
	case logical.Label:
		return "L|" + termKey(v.Node) + "|" + uitoa(v.LabelID)
	case logical.Property:
		return "P|" + termKey(v.Object) + "|" + uitoa(v.KeyID) + "|" + termKey(v.Value)
	case logical.Edge:
		k := "E|" + termKey(v.From) + "|" + termKey(v.To) + "|" + uitoa(v.TypeID)
		if v.HasEdgeVar {
			k += "|e" + itoa(int(v.EdgeVar))
		}
		return k
	case logical.Path:
		k := "PTH|" + termKey(v.From) + "|" + termKey(v.To) + "|" + itoa(int(v.Semantic)) + "|" + pointerKey(v.Automaton)
		if v.HasPathVar {
			k += "|p" + itoa(int(v.PathVar))
		}
		return k
	case logical.IsolatedVar:
		return "IV|" + itoa(int(v.V))
	case logical.IsolatedTerm:
		return "IT|" + uitoa(v.Const)
	default:
		return "?"
	}
}
