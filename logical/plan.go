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

// Package logical models the validated logical plan the planner consumes:
// a root labeled Select, OrderBy, GroupBy, Distinct, or Describe over a
// Where(filter, basic-graph-pattern), per spec §6's operator contract.
//
// This module does not include a parser (deliberately out of scope, spec
// §1): callers build a logical.Op tree directly, the same way an embedder
// that already has its own surface syntax would after validating it.
//
// Dispatch is visitor-style, following sneller's plan.Op interface and
// plan/pir's tagged-sum Step shape (see DESIGN.md): a tagged sum over
// operator variants with an Accept method rather than dynamic downcasts
// scattered through the planner and executor.
package logical

import "github.com/wangTheTiger/MillenniumDB/pathauto"

// Var is a pattern variable, identified by a dense small integer assigned
// at plan-preparation time; binding width is fixed once every Var in a
// plan has been numbered (spec §3 "Binding width is fixed at
// plan-preparation time").
type Var int

// Term is either a pattern variable or a constant object identifier
// (encoded form deferred to the caller — this package only needs to know
// whether a term is bound-by-pattern or supplied literally).
type Term struct {
	IsVar bool
	V     Var
	// Const carries an already-packed object identifier when IsVar is
	// false; callers in this core pass objid.ID values encoded as uint64
	// to avoid an import cycle with the objid package from this leaf
	// package (logical only needs to move the value around, not interpret
	// it).
	Const uint64
}

// VarTerm returns a Term referencing variable v.
func VarTerm(v Var) Term { return Term{IsVar: true, V: v} }

// ConstTerm returns a Term carrying a literal packed object identifier.
func ConstTerm(id uint64) Term { return Term{IsVar: false, Const: id} }

// Atom is one conjunct of a basic graph pattern.
type Atom interface{ isAtom() }

// Label asserts that Node carries LabelID.
type Label struct {
	Node    Term
	LabelID uint64
}

// Property asserts that Object has property KeyID with value Value.
type Property struct {
	Object Term
	KeyID  uint64
	Value  Term
}

// Edge asserts a directed typed edge From -[TypeID]-> To, optionally
// binding the edge's own identifier to EdgeVar (EdgeVar is only
// meaningful when HasEdgeVar is true).
type Edge struct {
	From, To  Term
	TypeID    uint64
	EdgeVar   Var
	HasEdgeVar bool
}

// PathSemantic selects how a Path atom is evaluated.
type PathSemantic int

const (
	// SemanticAny and SemanticAll are planned identically: the search mode
	// follows from whether To is bound and whether a path variable is
	// requested, not from the choice between these two values.
	SemanticAny PathSemantic = iota
	SemanticAll
	// SemanticShortest requests the one shortest accepting path (A* mode,
	// spec §4.7 mode 4); not named in the external operator contract but
	// required to express the S3 A* scenario (spec §8).
	SemanticShortest
)

// Path asserts a property-path reachability constraint between From and
// To, binding the (optionally materialized) path to PathVar.
type Path struct {
	From, To   Term
	PathVar    Var
	HasPathVar bool
	Semantic   PathSemantic
	Automaton  *pathauto.Automaton
}

// IsolatedVar asserts only that V is a node (no further constraint); used
// for patterns like a bare "?x" with no edges.
type IsolatedVar struct{ V Var }

// IsolatedTerm asserts that a constant term is present as a node with no
// further constraint.
type IsolatedTerm struct{ Const uint64 }

func (Label) isAtom()        {}
func (Property) isAtom()     {}
func (Edge) isAtom()         {}
func (Path) isAtom()         {}
func (IsolatedVar) isAtom()  {}
func (IsolatedTerm) isAtom() {}

// BGP is a basic graph pattern: a conjunction of atoms plus a list of
// child Optional sub-patterns (spec §6).
type BGP struct {
	Atoms    []Atom
	Optional []*BGP
}

// FilterExpr is the (deliberately small) WHERE-clause expression tree this
// core needs to push constant-equality conjuncts into index scans (spec
// §4.9) and to evaluate whatever is left as a filter wrapping the plan
// root. Full expression evaluation (arithmetic, builtin calls, ...) is the
// external query language's concern; this core only needs boolean
// combinators and term comparisons.
type FilterExpr interface{ isFilter() }

type FilterConst struct{ Value bool }
type FilterAnd struct{ Left, Right FilterExpr }
type FilterOr struct{ Left, Right FilterExpr }
type FilterNot struct{ Child FilterExpr }

type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// FilterCompare compares two terms; a term with a Property path (Object,
// Key) reads as the spec's "?v.k = constant" shape — modeled here by
// having the planner resolve Left via a Property atom already present in
// the BGP rather than embedding nested property access in the expression
// tree itself.
type FilterCompare struct {
	Op          CompareOp
	Left, Right Term
}

func (FilterConst) isFilter()   {}
func (FilterAnd) isFilter()     {}
func (FilterOr) isFilter()      {}
func (FilterNot) isFilter()     {}
func (FilterCompare) isFilter() {}

// Where bundles a filter expression and a basic graph pattern, the base
// every plan root is built over (spec §6).
type Where struct {
	Filter  FilterExpr
	Pattern *BGP
}

// Op is a node in the logical plan tree: Select, OrderBy, GroupBy,
// Distinct, Limit, or Describe.
type Op interface {
	// Input returns the child Op, or nil for a terminal (Select, Describe).
	Input() Op
	Accept(v Visitor)
}

// Visitor dispatches over the six plan-root variants, per the
// visitor-style polymorphism design note (spec §9).
type Visitor interface {
	VisitSelect(*Select)
	VisitOrderBy(*OrderBy)
	VisitGroupBy(*GroupBy)
	VisitDistinct(*Distinct)
	VisitDescribe(*Describe)
	VisitLimit(*Limit)
}

// Select is the terminal plan root: project Vars out of Where's bindings.
type Select struct {
	Where      *Where
	Projection []Var
}

func (s *Select) Input() Op        { return nil }
func (s *Select) Accept(v Visitor) { v.VisitSelect(s) }

// OrderKey is one ORDER BY column.
type OrderKey struct {
	V          Var
	Descending bool
}

// OrderBy sorts Child's output by Keys.
type OrderBy struct {
	Child Op
	Keys  []OrderKey
}

func (o *OrderBy) Input() Op        { return o.Child }
func (o *OrderBy) Accept(v Visitor) { v.VisitOrderBy(o) }

// AggregateKind names one of the supported aggregate functions (spec
// §4.10).
type AggregateKind int

const (
	AggCount AggregateKind = iota
	AggCountDistinct
	AggSum
	AggAvg
	AggMin
	AggMax
	AggGroupConcat
	AggSample
)

// Aggregate is one SELECT-list aggregate computed per group.
type Aggregate struct {
	Kind AggregateKind
	Arg  Var // ignored (COUNT(*) semantics) when CountStar is true
	CountStar bool
	Result Var
}

// GroupBy partitions Child's output by GroupVars and computes Aggregates
// per group.
type GroupBy struct {
	Child      Op
	GroupVars  []Var
	Aggregates []Aggregate
}

func (g *GroupBy) Input() Op        { return g.Child }
func (g *GroupBy) Accept(v Visitor) { v.VisitGroupBy(g) }

// Distinct removes duplicate projected tuples from Child's output.
type Distinct struct {
	Child Op
}

func (d *Distinct) Input() Op        { return d.Child }
func (d *Distinct) Accept(v Visitor) { v.VisitDistinct(d) }

// Limit caps Child's output at N rows (spec §4.10, §8 S4); invalid N
// (negative) is a query-semantic error surfaced at plan time, not here.
type Limit struct {
	Child Op
	N     int
}

func (l *Limit) Input() Op        { return l.Child }
func (l *Limit) Accept(v Visitor) { v.VisitLimit(l) }

// Describe is the metadata-only plan root added by SPEC_FULL.md §C.1: given
// a single bound node term, it yields the labels and property keys set on
// that node (no catalog counts).
type Describe struct {
	Target Term
}

func (d *Describe) Input() Op        { return nil }
func (d *Describe) Accept(v Visitor) { v.VisitDescribe(d) }

// WhereOf returns the Where node under op, walking through OrderBy/
// GroupBy/Distinct wrappers down to the terminal Select (Describe has no
// Where and returns nil).
func WhereOf(op Op) *Where {
	for op != nil {
		if sel, ok := op.(*Select); ok {
			return sel.Where
		}
		op = op.Input()
	}
	return nil
}
