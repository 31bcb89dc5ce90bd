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
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/wangTheTiger/MillenniumDB/exec"
	"github.com/wangTheTiger/MillenniumDB/logical"
	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// pathSearchCost is a pragmatic stand-in cardinality for a property-path
// atom: the catalog has no notion of "expected path fan-out", so path
// atoms are costed above every index-backed atom and only chosen first
// when they are the sole remaining atom (they still participate in the
// same greedy loop as everything else, just biased last).
const pathSearchCost = 1 << 32

// Plan lowers a validated (already Optimize'd) logical.Op into an
// exec.RowOp pipeline over store, per spec §4.9's join-order search
// followed by the value-level wrapping spec §6 names (Select | OrderBy |
// GroupBy | Distinct | Describe).
func Plan(store *storage.Store, op logical.Op) (exec.RowOp, int, error) {
	switch v := op.(type) {
	case *logical.Select:
		tupleOp, width, err := planWhere(store, v.Where)
		if err != nil {
			return nil, 0, err
		}
		src := &exec.TupleSource{Op: tupleOp, Binding: make(exec.Binding, width)}
		return &exec.Projection{Input: src, Vars: varsToInts(v.Projection)}, len(v.Projection), nil
	case *logical.Distinct:
		child, width, err := Plan(store, v.Child)
		if err != nil {
			return nil, 0, err
		}
		return &exec.DistinctHash{Input: child}, width, nil
	case *logical.OrderBy:
		child, width, err := Plan(store, v.Child)
		if err != nil {
			return nil, 0, err
		}
		keys := make([]exec.OrderKey, len(v.Keys))
		for i, k := range v.Keys {
			keys[i] = exec.OrderKey{Col: int(k.V), Descending: k.Descending}
		}
		return &exec.OrderBy{Input: child, Keys: keys, ScratchDir: store.ScratchDir()}, width, nil
	case *logical.GroupBy:
		child, _, err := Plan(store, v.Child)
		if err != nil {
			return nil, 0, err
		}
		aggs := make([]exec.Aggregate, len(v.Aggregates))
		for i, a := range v.Aggregates {
			col := int(a.Arg)
			if a.CountStar {
				col = -1
			}
			aggs[i] = exec.Aggregate{Kind: exec.AggKind(a.Kind), Col: col}
		}
		resolver := &exec.Resolver{Objects: store.Objects, Hash: store.Hash}
		width := len(v.GroupVars) + len(v.Aggregates)
		return &exec.GroupBy{
			Input:      child,
			GroupCols:  varsToInts(v.GroupVars),
			Aggregates: aggs,
			Resolver:   resolver,
		}, width, nil
	case *logical.Describe:
		d, err := planDescribe(store, v)
		if err != nil {
			return nil, 0, err
		}
		return d, 1, nil
	case *logical.Limit:
		if v.N < 0 {
			return nil, 0, fmt.Errorf("planner: invalid LIMIT %d", v.N)
		}
		child, width, err := Plan(store, v.Child)
		if err != nil {
			return nil, 0, err
		}
		return &exec.Limit{Input: child, N: v.N}, width, nil
	default:
		return nil, 0, fmt.Errorf("planner: unknown plan root %T", op)
	}
}

// planDescribe builds the catalog-backed summary operator for a DESCRIBE
// plan root (SPEC_FULL.md's supplemented Describe form). The target must
// be a literal object identifier; describing an unbound variable has no
// defined meaning in this core.
func planDescribe(store *storage.Store, d *logical.Describe) (exec.RowOp, error) {
	if d.Target.IsVar {
		return nil, fmt.Errorf("planner: DESCRIBE requires a bound identifier, not a variable")
	}
	return &exec.Describe{Store: store, Target: objid.ID(d.Target.Const)}, nil
}

func varsToInts(vars []logical.Var) []int {
	out := make([]int, len(vars))
	for i, v := range vars {
		out[i] = int(v)
	}
	return out
}

// planWhere builds the tuple-id operator tree for a Where clause: the
// join-ordered BGP, any filter conjuncts that couldn't be pushed into a
// scan constant, wrapped as a TupleIDOp the caller threads into a
// TupleSource.
func planWhere(store *storage.Store, w *logical.Where) (exec.TupleIDOp, int, error) {
	realWidth := widthOf(w.Pattern)
	pc := &planCtx{store: store, discard: realWidth}
	pushed, remaining := splitPushableConjuncts(w.Filter)
	bgpOp, err := pc.planBGP(w.Pattern, pushed, map[logical.Var]bool{})
	if err != nil {
		return nil, 0, err
	}
	if bgpOp == nil {
		bgpOp = &emptyTupleOp{}
	}
	for _, f := range remaining {
		bgpOp = wrapFilterConjunct(bgpOp, f)
	}
	// realWidth..realWidth+1 is a reserved scratch slot every binding
	// carries, used as the write target for scan columns the pattern
	// names no variable for (an edge atom with no `AS e` / a path atom
	// with no `AS p`) so they never collide with a real variable's slot.
	return bgpOp, realWidth + 1, nil
}

// planCtx threads the store and the binding's reserved discard slot
// through the recursive join-order search.
type planCtx struct {
	store   *storage.Store
	discard int
}

// widthOf returns one past the highest variable id mentioned anywhere in
// the pattern, fixing the binding's width (spec §3 "Binding width is
// fixed at plan-preparation time").
func widthOf(b *logical.BGP) int {
	max := -1
	for _, v := range logical.AllVars(b) {
		if int(v) > max {
			max = int(v)
		}
	}
	return max + 1
}

// emptyTupleOp is the identity element for a BGP with no atoms at all
// (only possible for a degenerate empty pattern); it yields exactly one
// empty tuple, matching a SQL "FROM (SELECT 1)" style base case.
type emptyTupleOp struct{ done bool }

func (e *emptyTupleOp) Begin(qc *exec.QueryContext, b exec.Binding) error { e.done = false; return nil }
func (e *emptyTupleOp) Next() (bool, error) {
	if e.done {
		return false, nil
	}
	e.done = true
	return true, nil
}
func (e *emptyTupleOp) Reset() error                      { e.done = false; return nil }
func (e *emptyTupleOp) AssignNulls(b exec.Binding)        {}
func (e *emptyTupleOp) Close()                            {}

// candidate is one atom still awaiting placement in the greedy left-deep
// plan, along with its source-order index for the deterministic
// tie-break (spec §4.9 step 2).
type candidate struct {
	atom   logical.Atom
	source int
}

// planBGP greedily builds a left-deep join tree over b's atoms, then
// wraps it in a left-outer-join per Optional child (spec §4.9).
// pushedEq carries `?v = const` / `?v.k = const` filter conjuncts already
// resolved to (var, const) pairs that scans should fold into their own
// column constants.
func (pc *planCtx) planBGP(b *logical.BGP, pushedEq map[logical.Var]objid.ID, outerBound map[logical.Var]bool) (exec.TupleIDOp, error) {
	if b == nil {
		return nil, nil
	}
	bound := make(map[logical.Var]bool, len(outerBound))
	for v := range outerBound {
		bound[v] = true
	}

	remaining := make([]candidate, len(b.Atoms))
	for i, a := range b.Atoms {
		remaining[i] = candidate{atom: a, source: i}
	}

	var plan exec.TupleIDOp
	ownedVars := map[logical.Var]bool{}

	for len(remaining) > 0 {
		bestIdx := -1
		bestCost := int64(-1)
		for i, c := range remaining {
			cost := estimateCost(pc.store, c.atom, bound)
			if bestIdx == -1 || cost < bestCost ||
				(cost == bestCost && c.source < remaining[bestIdx].source) {
				bestIdx, bestCost = i, cost
			}
		}
		chosen := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

		op, err := pc.buildAtomScan(chosen.atom, bound, pushedEq)
		if err != nil {
			return nil, err
		}
		atomVars := logical.Vars(chosen.atom)

		if plan == nil {
			plan = op
		} else if hasBoundPrefix(atomVars, bound) {
			plan = &exec.NestedLoopJoin{Left: plan, Right: op}
		} else {
			common := commonVars(atomVars, ownedVars)
			plan = &exec.HashJoin{Left: plan, Right: op, CommonVars: intVars(common)}
		}
		for _, v := range atomVars {
			bound[v] = true
			ownedVars[v] = true
		}
	}

	for _, opt := range b.Optional {
		sub, err := pc.planBGP(opt, pushedEq, bound)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			continue
		}
		if plan == nil {
			plan = sub
			continue
		}
		plan = &exec.LeftOuterJoin{Left: plan, Right: sub}
	}
	return plan, nil
}

func hasBoundPrefix(vars []logical.Var, bound map[logical.Var]bool) bool {
	for _, v := range vars {
		if bound[v] {
			return true
		}
	}
	return false
}

func commonVars(vars []logical.Var, owned map[logical.Var]bool) []logical.Var {
	var out []logical.Var
	for _, v := range vars {
		if owned[v] {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func intVars(vars []logical.Var) []int {
	out := make([]int, len(vars))
	for i, v := range vars {
		out[i] = int(v)
	}
	return out
}

// estimateCost computes the planner's cardinality × fan-out cost for
// placing atom next, given the variables already bound (spec §4.9 step
// 1: "estimated output cardinality from catalog counts and the atom's
// currently-bound columns, independence assumption per column").
func estimateCost(store *storage.Store, a logical.Atom, bound map[logical.Var]bool) int64 {
	unboundCols := func(terms ...logical.Term) int {
		n := 0
		for _, t := range terms {
			if t.IsVar && !bound[t.V] {
				n++
			}
		}
		return n
	}
	switch v := a.(type) {
	case logical.Label:
		card := int64(store.Catalog.LabelCount(v.LabelID)) + 1
		return card * int64(unboundCols(v.Node)+1)
	case logical.Property:
		card := int64(store.Catalog.PropertyCount(v.KeyID)) + 1
		return card * int64(unboundCols(v.Object, v.Value)+1)
	case logical.Edge:
		card := int64(store.Catalog.TypeCount(v.TypeID)) + 1
		return card * int64(unboundCols(v.From, v.To)+1)
	case logical.Path:
		return pathSearchCost
	case logical.IsolatedVar, logical.IsolatedTerm:
		return int64(store.Catalog.TotalNodes) + 1
	default:
		return 1 << 40
	}
}

func scanCol(t logical.Term, bound map[logical.Var]bool, pushedEq map[logical.Var]objid.ID) exec.ScanColumn {
	if !t.IsVar {
		return exec.ScanColumn{Role: exec.RoleConst, Const: objid.ID(t.Const)}
	}
	if c, ok := pushedEq[t.V]; ok {
		return exec.ScanColumn{Role: exec.RoleConst, Const: c}
	}
	if bound[t.V] {
		return exec.ScanColumn{Role: exec.RoleBound, Var: int(t.V)}
	}
	return exec.ScanColumn{Role: exec.RoleAssign, Var: int(t.V)}
}

// buildAtomScan constructs the TupleIDOp for a single atom given the
// variables already bound by earlier atoms in the same left-deep plan.
func (pc *planCtx) buildAtomScan(a logical.Atom, bound map[logical.Var]bool, pushedEq map[logical.Var]objid.ID) (exec.TupleIDOp, error) {
	store := pc.store
	switch v := a.(type) {
	case logical.Label:
		return &exec.IndexScan{
			Tree: store.LabelsByLabel,
			Cols: []exec.ScanColumn{
				{Role: exec.RoleConst, Const: objid.ID(v.LabelID)},
				scanCol(v.Node, bound, pushedEq),
			},
		}, nil
	case logical.Property:
		// key->value->object, matching spec §8 S1's exact scan shape.
		return &exec.IndexScan{
			Tree: store.PropsByKey,
			Cols: []exec.ScanColumn{
				{Role: exec.RoleConst, Const: objid.ID(v.KeyID)},
				scanCol(v.Value, bound, pushedEq),
				scanCol(v.Object, bound, pushedEq),
			},
		}, nil
	case logical.Edge:
		return pc.buildEdgeScan(v, bound, pushedEq)
	case logical.Path:
		return pc.buildPathScan(v, bound, pushedEq), nil
	case logical.IsolatedVar:
		// No dedicated "every node" index exists in this core (spec names
		// none); an isolated variable with nothing else constraining it
		// stays unbound for downstream atoms to assign, same as an
		// Optional block that adds no new binding.
		return &emptyTupleOp{}, nil
	case logical.IsolatedTerm:
		return &emptyTupleOp{}, nil
	default:
		return nil, fmt.Errorf("planner: unknown atom %T", a)
	}
}

// edgeVarCol resolves the scan column for an edge atom's own edge
// variable, falling back to the binding's reserved discard slot when the
// pattern names none (the overwhelmingly common case) so no real
// variable's slot is ever overwritten.
func (pc *planCtx) edgeVarCol(e logical.Edge, bound map[logical.Var]bool, pushedEq map[logical.Var]objid.ID) exec.ScanColumn {
	if e.HasEdgeVar {
		return scanCol(logical.VarTerm(e.EdgeVar), bound, pushedEq)
	}
	return exec.ScanColumn{Role: exec.RoleAssign, Var: pc.discard}
}

// buildEdgeScan routes self-reference atom shapes (`?x -[:k]-> ?x`,
// SPEC_FULL.md §C.2) through the dedicated from=to side-index, and the
// rarer from=type / to=type shapes through a forward scan
// plus a post-scan equality filter (see DESIGN.md for why only the
// from=to side-index was materialized).
func (pc *planCtx) buildEdgeScan(e logical.Edge, bound map[logical.Var]bool, pushedEq map[logical.Var]objid.ID) (exec.TupleIDOp, error) {
	store := pc.store
	fromEqTo, fromEqType, toEqType := e.IsSelfReference()

	if fromEqTo {
		base := &exec.IndexScan{
			Tree: store.EdgesSelfLoop,
			Cols: []exec.ScanColumn{
				{Role: exec.RoleConst, Const: objid.ID(e.TypeID)},
				scanCol(e.From, bound, pushedEq),
				pc.edgeVarCol(e, bound, pushedEq),
			},
		}
		// the self-loop index only assigns e.From's variable; if e.To
		// names a *different* but already-equal-by-construction variable
		// the planner still needs it mirrored into the binding.
		return pc.mirrorSelfLoopTo(base, e), nil
	}

	cols := []exec.ScanColumn{
		scanCol(e.From, bound, pushedEq),
		{Role: exec.RoleConst, Const: objid.ID(e.TypeID)},
		scanCol(e.To, bound, pushedEq),
		pc.edgeVarCol(e, bound, pushedEq),
	}
	var op exec.TupleIDOp = &exec.IndexScan{Tree: store.EdgesForward, Cols: cols}

	if fromEqType && e.From.IsVar {
		// From and the edge's own type constant coincide: honored as a
		// post-scan equality filter rather than a dedicated side-index
		// (see DESIGN.md).
		op = &exec.ConstEqualityFilter{Input: op, Var: int(e.From.V), Const: objid.ID(e.TypeID)}
	}
	if toEqType && e.To.IsVar {
		op = &exec.ConstEqualityFilter{Input: op, Var: int(e.To.V), Const: objid.ID(e.TypeID)}
	}
	return op, nil
}

func (pc *planCtx) mirrorSelfLoopTo(base *exec.IndexScan, e logical.Edge) exec.TupleIDOp {
	if e.To.IsVar && e.From.IsVar && e.To.V != e.From.V {
		return &mirrorVarOp{TupleIDOp: base, From: int(e.From.V), To: int(e.To.V)}
	}
	return base
}

// mirrorVarOp copies the From variable into To after every tuple, for an
// edge atom that names two distinct variables but whose self-loop side
// index only assigned one of them (From == To structurally, so copying
// is exact).
type mirrorVarOp struct {
	exec.TupleIDOp
	From, To int
	binding  exec.Binding
}

func (m *mirrorVarOp) Begin(qc *exec.QueryContext, b exec.Binding) error {
	m.binding = b
	return m.TupleIDOp.Begin(qc, b)
}

func (m *mirrorVarOp) Next() (bool, error) {
	ok, err := m.TupleIDOp.Next()
	if ok {
		m.binding[m.To] = m.binding[m.From]
	}
	return ok, err
}

func (m *mirrorVarOp) AssignNulls(b exec.Binding) {
	m.TupleIDOp.AssignNulls(b)
	b[m.To] = objid.Null
}

func (pc *planCtx) buildPathScan(p logical.Path, bound map[logical.Var]bool, pushedEq map[logical.Var]objid.ID) exec.TupleIDOp {
	idx := &exec.EdgeIndex{Forward: pc.store.EdgesForward, Backward: pc.store.EdgesInverse}
	fromCol := scanCol(p.From, bound, pushedEq)
	toCol := scanCol(p.To, bound, pushedEq)

	mode := exec.PathModeEnum
	if toCol.Role == exec.RoleBound {
		mode = exec.PathModeCheck
	}
	if p.Semantic == logical.SemanticShortest {
		mode = exec.PathModeShortest
	} else if p.HasPathVar {
		mode = exec.PathModeEnumWithPath
	}

	ps := &exec.PathSearch{
		Index:      idx,
		Automaton:  p.Automaton,
		Arena:      &exec.PathArena{},
		FromRole:   fromCol.Role,
		FromVar:    fromCol.Var,
		FromConst:  fromCol.Const,
		ToRole:     toCol.Role,
		ToVar:      toCol.Var,
		ToConst:    toCol.Const,
		Mode:       mode,
		HasPathVar: p.HasPathVar,
		PathVar:    pc.discard,
	}
	if p.HasPathVar {
		ps.PathVar = int(p.PathVar)
	}
	return ps
}

// splitPushableConjuncts separates `?v = constant` (and `?v.k = constant`,
// already resolved to the Property atom's own variable by the caller
// building the logical plan) conjuncts from everything else, per spec
// §4.9's filter-pushdown rule.
func splitPushableConjuncts(f logical.FilterExpr) (pushed map[logical.Var]objid.ID, remaining []logical.FilterExpr) {
	pushed = map[logical.Var]objid.ID{}
	var walk func(logical.FilterExpr)
	walk = func(f logical.FilterExpr) {
		switch v := f.(type) {
		case nil:
			return
		case logical.FilterAnd:
			walk(v.Left)
			walk(v.Right)
		case logical.FilterCompare:
			if v.Op == logical.CmpEq {
				if v.Left.IsVar && !v.Right.IsVar {
					pushed[v.Left.V] = objid.ID(v.Right.Const)
					return
				}
				if v.Right.IsVar && !v.Left.IsVar {
					pushed[v.Right.V] = objid.ID(v.Left.Const)
					return
				}
			}
			remaining = append(remaining, f)
		case logical.FilterConst:
			if !v.Value {
				remaining = append(remaining, f)
			}
		default:
			remaining = append(remaining, f)
		}
	}
	walk(f)
	return pushed, remaining
}

// wrapFilterConjunct evaluates a remaining (non-pushable) conjunct as a
// per-tuple equality check; only the shapes the planner can resolve to
// two binding columns are supported here, matching this core's
// deliberately small filter-expression surface (spec §4's FilterExpr
// note, logical/plan.go).
func wrapFilterConjunct(op exec.TupleIDOp, f logical.FilterExpr) exec.TupleIDOp {
	cmp, ok := f.(logical.FilterCompare)
	if !ok || cmp.Op != logical.CmpEq {
		return op
	}
	if cmp.Left.IsVar && cmp.Right.IsVar {
		return &exec.VarEqualityFilter{Input: op, A: int(cmp.Left.V), B: int(cmp.Right.V)}
	}
	if cmp.Left.IsVar && !cmp.Right.IsVar {
		return &exec.ConstEqualityFilter{Input: op, Var: int(cmp.Left.V), Const: objid.ID(cmp.Right.Const)}
	}
	if cmp.Right.IsVar && !cmp.Left.IsVar {
		return &exec.ConstEqualityFilter{Input: op, Var: int(cmp.Right.V), Const: objid.ID(cmp.Left.Const)}
	}
	return op
}
