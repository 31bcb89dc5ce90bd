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

import "github.com/wangTheTiger/MillenniumDB/objid"

// VarEqualityFilter wraps a TupleIDOp and only accepts tuples where two
// owned variables hold equal values. Used by the planner for
// variable-equals-variable filter conjuncts (spec §4.9's "remaining conjuncts become a filter wrapping
// the root", applied inline to a single atom instead of the whole plan).
type VarEqualityFilter struct {
	Input  TupleIDOp
	A, B   int
	binding Binding
}

func (f *VarEqualityFilter) Begin(qc *QueryContext, binding Binding) error {
	f.binding = binding
	return f.Input.Begin(qc, binding)
}

func (f *VarEqualityFilter) Next() (bool, error) {
	for {
		ok, err := f.Input.Next()
		if err != nil || !ok {
			return false, err
		}
		if f.binding[f.A] == f.binding[f.B] {
			return true, nil
		}
	}
}

func (f *VarEqualityFilter) Reset() error { return f.Input.Reset() }
func (f *VarEqualityFilter) AssignNulls(b Binding) { f.Input.AssignNulls(b) }
func (f *VarEqualityFilter) Close() { f.Input.Close() }

// ConstEqualityFilter accepts tuples where owned variable Var equals the
// fixed object identifier Const (used for the from=type and to=type
// self-reference shapes, and for filter conjuncts the planner could not
// push into a scan's own column constant).
type ConstEqualityFilter struct {
	Input TupleIDOp
	Var   int
	Const objid.ID

	binding Binding
}

func (f *ConstEqualityFilter) Begin(qc *QueryContext, binding Binding) error {
	f.binding = binding
	return f.Input.Begin(qc, binding)
}

func (f *ConstEqualityFilter) Next() (bool, error) {
	for {
		ok, err := f.Input.Next()
		if err != nil || !ok {
			return false, err
		}
		if f.binding[f.Var] == f.Const {
			return true, nil
		}
	}
}

func (f *ConstEqualityFilter) Reset() error { return f.Input.Reset() }
func (f *ConstEqualityFilter) AssignNulls(b Binding) { f.Input.AssignNulls(b) }
func (f *ConstEqualityFilter) Close() { f.Input.Close() }
