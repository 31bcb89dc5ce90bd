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

// Package exec implements the pull-based execution operators: tuple-id
// iterators over fixed-width rows of encoded object identifiers (index
// scan, nested-loop join, hash join, left-outer join), the property-path
// search operators built on top of them, and the value-level operators
// (projection, distinct, order-by, group-by) that decode object
// identifiers into values only on demand.
//
// The operator contract — begin/next/reset/assign-nulls writing into a
// shared binding vector — follows spec §4.8; the bucketed hash-table idiom
// is grounded on sneller's vm/hash_aggregate.go build/probe shape (see
// DESIGN.md).
package exec

import (
	"context"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// Binding is a dense array indexed by variable id holding object
// identifiers; objid.Null denotes unbound (spec §3).
type Binding []objid.ID

// Clone returns an independent copy of b.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	copy(out, b)
	return out
}

// Resolver resolves an extern-kind object identifier to its underlying
// bytes, used by the codec's Compare and by value-level decoding. Hash
// dedups newly interned strings against ones already stored (§4.3); it may
// be nil for a Resolver that only ever decodes (never interns).
type Resolver struct {
	Objects *storage.ObjectFile
	Hash    *storage.ExtendibleHash
}

// Resolve returns the bytes referenced by an extern string/IRI id.
func (r *Resolver) Resolve(id objid.ID) ([]byte, error) {
	off, ok := objid.ExternOffset(id)
	if !ok {
		return nil, nil
	}
	return r.Objects.Read(off)
}

// QueryContext threads the per-query interruption flag and diagnostic
// logger through the operator tree (spec §5 "Cancellation").
type QueryContext struct {
	Ctx      context.Context
	Resolver *Resolver
	Log      storage.Logger
}

// Interrupted reports whether the query has been asked to stop; operators
// check this between tuples and unwind, unpinning every held page (spec
// §5, §7 "Interruption").
func (qc *QueryContext) Interrupted() bool {
	if qc.Ctx == nil {
		return false
	}
	select {
	case <-qc.Ctx.Done():
		return true
	default:
		return false
	}
}

// ErrInterrupted is returned by operators when QueryContext.Interrupted()
// becomes true mid-iteration.
var ErrInterrupted = errInterrupted{}

type errInterrupted struct{}

func (errInterrupted) Error() string { return "exec: query interrupted" }

// TupleIDOp is the common contract for every tuple-id operator (spec
// §4.8): begin, next, reset, and assign-nulls, all writing into a shared
// Binding.
type TupleIDOp interface {
	// Begin prepares the operator against the current outer binding.
	Begin(qc *QueryContext, binding Binding) error
	// Next advances to the next matching tuple, writing into binding.
	// Returns false when exhausted.
	Next() (bool, error)
	// Reset restarts the operator against the (possibly updated) current
	// binding without releasing its child operators.
	Reset() error
	// AssignNulls writes objid.Null into every variable this subtree owns
	// (used by left-outer-join's no-match branch).
	AssignNulls(binding Binding)
	// Close releases any pinned pages or open iterators.
	Close()
}
