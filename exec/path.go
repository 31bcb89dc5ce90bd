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
	"container/heap"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/pathauto"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// EdgeIndex exposes the two ordered indexes a property-path search needs to
// expand one product state: the forward index (from, type, to, edge) and
// the backward index (to, type, from, edge) (spec §3 "Edges are stored six
// ways").
type EdgeIndex struct {
	Forward  *storage.BPlusTree
	Backward *storage.BPlusTree
}

// Neighbors returns every node reachable from node by crossing one edge of
// the given type in the given direction (inverse = traverse the edge
// backward).
func (idx *EdgeIndex) Neighbors(node objid.ID, edgeType uint64, inverse bool) ([]objid.ID, error) {
	tree := idx.Forward
	if inverse {
		tree = idx.Backward
	}
	lo := []uint64{uint64(node), edgeType, 0, 0}
	hi := []uint64{uint64(node), edgeType, ^uint64(0), ^uint64(0)}
	it, err := tree.GetRange(lo, hi)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []objid.ID
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, objid.ID(rec[2]))
	}
	return out, nil
}

// PathSearchMode selects one of the four evaluation strategies of spec
// §4.7.
type PathSearchMode int

const (
	// PathModeCheck succeeds iff the bound target is reachable; emits at
	// most one (already fully bound) tuple.
	PathModeCheck PathSearchMode = iota
	// PathModeEnum emits each distinct reachable node once, in BFS order.
	PathModeEnum
	// PathModeEnumWithPath is PathModeEnum plus a materialized path-id per
	// emitted node.
	PathModeEnumWithPath
	// PathModeShortest runs an A*-guided search and emits one shortest
	// accepting path per reachable target (or the single bound target, if
	// one is given).
	PathModeShortest
)

// productState is the property-path search-space vertex: an automaton
// state paired with a graph node (spec §9 glossary "Product state").
type productState struct {
	state pathauto.State
	node  objid.ID
}

// pathArenaEntry is one link of a materialized-path chain (spec §3
// "Materialized path", §9 "Cyclic references in path-search chains"):
// predecessor is a stable index into the owning arena, never a pointer, so
// the chain survives independent of visited-set growth.
type pathArenaEntry struct {
	state       pathauto.State
	node        objid.ID
	predecessor int // -1 for the start of the chain
	edgeType    uint64
	inverse     bool
	hasEdge     bool
}

// PathArena owns every materialized-path chain produced by one query's
// path operators; it outlives the visited sets that built it, for the
// duration of result-tuple emission (spec §3 "Lifecycles").
type PathArena struct {
	entries []pathArenaEntry
}

func (a *PathArena) push(e pathArenaEntry) int {
	a.entries = append(a.entries, e)
	return len(a.entries) - 1
}

// Walk reconstructs the node/edge-type/direction chain from the start of
// the path up to (and including) the arena entry at index idx, in
// traversal order.
func (a *PathArena) Walk(idx int) []struct {
	Node     objid.ID
	EdgeType uint64
	Inverse  bool
	HasEdge  bool
} {
	type link = struct {
		Node     objid.ID
		EdgeType uint64
		Inverse  bool
		HasEdge  bool
	}
	var chain []link
	for idx != -1 {
		e := a.entries[idx]
		chain = append(chain, link{Node: e.node, EdgeType: e.edgeType, Inverse: e.inverse, HasEdge: e.hasEdge})
		idx = e.predecessor
	}
	// reverse into start->end order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// pathMatch is one result row produced by a path search: the reached node
// and, when requested, the arena index of its materialized chain.
type pathMatch struct {
	target  objid.ID
	arenaIx int
	hasPath bool
}

// PathSearch evaluates a property-path constraint between From and To
// using one of the four modes of spec §4.7. It implements TupleIDOp so it
// composes with the tuple-id operator tree like any join.
type PathSearch struct {
	Index     *EdgeIndex
	Automaton *pathauto.Automaton
	Arena     *PathArena

	FromRole  ColumnRole // RoleConst or RoleBound
	FromVar   int
	FromConst objid.ID

	// ToRole is RoleBound for Check mode (the target is given and must be
	// confirmed reachable) or RoleAssign for the three enumeration modes.
	ToRole  ColumnRole
	ToVar   int
	ToConst objid.ID

	Mode       PathSearchMode
	PathVar    int
	HasPathVar bool

	qc      *QueryContext
	binding Binding
	matches []pathMatch
	pos     int
}

func (p *PathSearch) startNode() objid.ID {
	if p.FromRole == RoleConst {
		return p.FromConst
	}
	return p.binding[p.FromVar]
}

func (p *PathSearch) boundTarget() (objid.ID, bool) {
	if p.ToRole != RoleBound {
		return objid.Null, false
	}
	return p.binding[p.ToVar], true
}

func (p *PathSearch) Begin(qc *QueryContext, binding Binding) error {
	p.qc, p.binding = qc, binding
	return p.run()
}

func (p *PathSearch) run() error {
	p.matches = nil
	p.pos = 0
	start := p.startNode()
	switch p.Mode {
	case PathModeCheck:
		return p.runCheck(start)
	case PathModeEnum:
		return p.runEnum(start, false)
	case PathModeEnumWithPath:
		return p.runEnum(start, true)
	case PathModeShortest:
		return p.runShortest(start)
	}
	return nil
}

// initialStates returns the epsilon closure of the automaton's start
// state, plus StartIsFinal's implication that the empty path already
// accepts at the start node.
func (p *PathSearch) initialStates() []pathauto.State {
	closure := p.Automaton.EpsilonClosure(p.Automaton.Start)
	out := make([]pathauto.State, 0, len(closure))
	for s := range closure {
		out = append(out, s)
	}
	return out
}

func (p *PathSearch) anyAccepting(states []pathauto.State) bool {
	for _, s := range states {
		if p.Automaton.IsFinal(s) {
			return true
		}
	}
	return false
}

// expand returns every product state reachable from (s, node) by crossing
// exactly one graph edge that matches a transition out of s, with the
// destination's epsilon closure folded in.
func (p *PathSearch) expand(s pathauto.State, node objid.ID) ([]productState, error) {
	var out []productState
	for _, tr := range p.Automaton.Out(s) {
		if tr.Epsilon {
			continue
		}
		neighbors, err := p.Index.Neighbors(node, tr.EdgeType, tr.Inverse)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			for cs := range p.Automaton.EpsilonClosure(tr.To) {
				out = append(out, productState{state: cs, node: n})
			}
		}
	}
	return out, nil
}

// runCheck performs BFS over the product space until it finds the bound
// target in an accepting state, or exhausts the reachable set (spec §4.7
// mode 1).
func (p *PathSearch) runCheck(start objid.ID) error {
	target, ok := p.boundTarget()
	if !ok {
		return nil
	}
	visited := map[productState]bool{}
	var queue []productState
	for _, s := range p.initialStates() {
		ps := productState{state: s, node: start}
		if !visited[ps] {
			visited[ps] = true
			queue = append(queue, ps)
		}
	}
	found := false
	for len(queue) > 0 && !found {
		if p.qc.Interrupted() {
			return ErrInterrupted
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.node == target && p.Automaton.IsFinal(cur.state) {
			found = true
			break
		}
		next, err := p.expand(cur.state, cur.node)
		if err != nil {
			return err
		}
		for _, ps := range next {
			if !visited[ps] {
				visited[ps] = true
				queue = append(queue, ps)
			}
		}
	}
	if found || (start == target && p.Automaton.StartIsFinal) {
		p.matches = []pathMatch{{target: target}}
	}
	return nil
}

// runEnum performs BFS from the bound start node, emitting each distinct
// node reached in an accepting product state exactly once (spec §4.7
// modes 2 and 3). withPath additionally records predecessor links in the
// arena.
func (p *PathSearch) runEnum(start objid.ID, withPath bool) error {
	visited := map[productState]bool{}
	emitted := map[objid.ID]bool{}
	type queued struct {
		ps      productState
		arenaIx int
	}
	var queue []queued
	push := func(ps productState, pred int, tr pathauto.Transition, hasEdge bool) {
		if visited[ps] {
			return
		}
		visited[ps] = true
		ix := -1
		if withPath {
			ix = p.Arena.push(pathArenaEntry{state: ps.state, node: ps.node, predecessor: pred, edgeType: tr.EdgeType, inverse: tr.Inverse, hasEdge: hasEdge})
		}
		queue = append(queue, queued{ps: ps, arenaIx: ix})
	}
	if p.Automaton.StartIsFinal && !emitted[start] {
		emitted[start] = true
		ix := -1
		if withPath {
			ix = p.Arena.push(pathArenaEntry{node: start, predecessor: -1})
		}
		p.matches = append(p.matches, pathMatch{target: start, arenaIx: ix, hasPath: withPath})
	}
	for _, s := range p.initialStates() {
		push(productState{state: s, node: start}, -1, pathauto.Transition{}, false)
	}
	for len(queue) > 0 {
		if p.qc.Interrupted() {
			return ErrInterrupted
		}
		cur := queue[0]
		queue = queue[1:]
		if p.Automaton.IsFinal(cur.ps.state) && !emitted[cur.ps.node] {
			emitted[cur.ps.node] = true
			p.matches = append(p.matches, pathMatch{target: cur.ps.node, arenaIx: cur.arenaIx, hasPath: withPath})
		}
		for _, tr := range p.Automaton.Out(cur.ps.state) {
			if tr.Epsilon {
				continue
			}
			neighbors, err := p.Index.Neighbors(cur.ps.node, tr.EdgeType, tr.Inverse)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				for cs := range p.Automaton.EpsilonClosure(tr.To) {
					push(productState{state: cs, node: n}, cur.arenaIx, tr, true)
				}
			}
		}
	}
	return nil
}

// astarItem is one entry of the A* frontier; astarQueue implements
// container/heap.Interface directly over a slice, following the shape of
// the teacher's own internal/sort/ktop.go (see DESIGN.md).
type astarItem struct {
	ps      productState
	g       int
	h       int
	arenaIx int
	seq     int // insertion order, for the deterministic tie-break
}

type astarQueue []astarItem

func (q astarQueue) Len() int { return len(q) }
func (q astarQueue) Less(i, j int) bool {
	fi, fj := q[i].g+q[i].h, q[j].g+q[j].h
	if fi != fj {
		return fi < fj
	}
	return q[i].seq < q[j].seq
}
func (q astarQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *astarQueue) Push(x any)        { *q = append(*q, x.(astarItem)) }
func (q *astarQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// runShortest runs an A*-guided search keyed on g + distance-to-final,
// with deterministic insertion-order tie-break, producing one shortest
// accepting path per reachable target (or just the bound target, when one
// is given) (spec §4.7 mode 4).
func (p *PathSearch) runShortest(start objid.ID) error {
	target, hasTarget := p.boundTarget()
	// closed marks a product state as expanded (popped), not merely
	// generated (pushed): with a consistent heuristic, the first *pop* of
	// a state carries its optimal g, but a state can legitimately be
	// pushed more than once before that happens (once per predecessor
	// that reaches it before it's expanded). Gating on push instead of
	// pop can strand a cheaper path behind an already-visited, but not
	// yet finalized, state.
	closed := map[productState]bool{}
	finalized := map[objid.ID]bool{}
	q := &astarQueue{}
	heap.Init(q)
	seq := 0
	push := func(ps productState, g, pred int, tr pathauto.Transition, hasEdge bool) {
		if closed[ps] {
			return
		}
		h := p.Automaton.DistanceToFinal(ps.state)
		if h < 0 {
			return // automaton state cannot reach an accepting state
		}
		ix := p.Arena.push(pathArenaEntry{state: ps.state, node: ps.node, predecessor: pred, edgeType: tr.EdgeType, inverse: tr.Inverse, hasEdge: hasEdge})
		heap.Push(q, astarItem{ps: ps, g: g, h: h, arenaIx: ix, seq: seq})
		seq++
	}
	if p.Automaton.StartIsFinal {
		finalized[start] = true
		if !hasTarget || start == target {
			ix := p.Arena.push(pathArenaEntry{node: start, predecessor: -1})
			p.matches = append(p.matches, pathMatch{target: start, arenaIx: ix, hasPath: true})
			if hasTarget {
				return nil
			}
		}
	}
	for _, s := range p.initialStates() {
		push(productState{state: s, node: start}, 0, -1, pathauto.Transition{}, false)
	}
	for q.Len() > 0 {
		if p.qc.Interrupted() {
			return ErrInterrupted
		}
		cur := heap.Pop(q).(astarItem)
		if closed[cur.ps] {
			continue
		}
		closed[cur.ps] = true
		if p.Automaton.IsFinal(cur.ps.state) && !finalized[cur.ps.node] {
			finalized[cur.ps.node] = true
			if !hasTarget || cur.ps.node == target {
				p.matches = append(p.matches, pathMatch{target: cur.ps.node, arenaIx: cur.arenaIx, hasPath: true})
				if hasTarget {
					return nil
				}
			}
		}
		for _, tr := range p.Automaton.Out(cur.ps.state) {
			if tr.Epsilon {
				continue
			}
			neighbors, err := p.Index.Neighbors(cur.ps.node, tr.EdgeType, tr.Inverse)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				for cs := range p.Automaton.EpsilonClosure(tr.To) {
					push(productState{state: cs, node: n}, cur.g+1, cur.arenaIx, tr, true)
				}
			}
		}
	}
	return nil
}

func (p *PathSearch) Next() (bool, error) {
	if p.pos >= len(p.matches) {
		return false, nil
	}
	m := p.matches[p.pos]
	p.pos++
	if p.ToRole == RoleAssign {
		p.binding[p.ToVar] = m.target
	}
	if p.HasPathVar {
		if m.hasPath {
			p.binding[p.PathVar] = objid.PackPath(uint64(m.arenaIx))
		} else {
			p.binding[p.PathVar] = objid.Null
		}
	}
	return true, nil
}

func (p *PathSearch) Reset() error { return p.run() }

func (p *PathSearch) AssignNulls(binding Binding) {
	if p.ToRole == RoleAssign {
		binding[p.ToVar] = objid.Null
	}
	if p.HasPathVar {
		binding[p.PathVar] = objid.Null
	}
}

func (p *PathSearch) Close() {}
