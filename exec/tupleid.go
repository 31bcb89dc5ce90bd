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
	"encoding/binary"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// ColumnRole says how an index-scan column is driven.
type ColumnRole int

const (
	RoleConst ColumnRole = iota
	RoleBound
	RoleAssign
)

// ScanColumn describes one column of an IndexScan's underlying B+ tree.
type ScanColumn struct {
	Role  ColumnRole
	Var   int // meaningful when Role != RoleConst
	Const objid.ID
}

// IndexScan drives an N-column B+ tree range scan, constructing [lo, hi]
// from constant/bound columns and [0, MAX] on assign columns, per spec
// §4.8.
type IndexScan struct {
	Tree *storage.BPlusTree
	Cols []ScanColumn

	binding Binding
	it      *storage.RangeIter
	qc      *QueryContext
}

func (s *IndexScan) bounds() (lo, hi []uint64) {
	lo = make([]uint64, len(s.Cols))
	hi = make([]uint64, len(s.Cols))
	for i, c := range s.Cols {
		switch c.Role {
		case RoleConst:
			lo[i] = uint64(c.Const)
			hi[i] = uint64(c.Const)
		case RoleBound:
			v := uint64(s.binding[c.Var])
			lo[i] = v
			hi[i] = v
		case RoleAssign:
			lo[i] = 0
			hi[i] = ^uint64(0)
		}
	}
	return
}

func (s *IndexScan) Begin(qc *QueryContext, binding Binding) error {
	s.qc = qc
	s.binding = binding
	return s.openRange()
}

func (s *IndexScan) openRange() error {
	if s.it != nil {
		s.it.Close()
		s.it = nil
	}
	lo, hi := s.bounds()
	it, err := s.Tree.GetRange(lo, hi)
	if err != nil {
		return err
	}
	s.it = it
	return nil
}

func (s *IndexScan) Next() (bool, error) {
	for {
		if s.qc.Interrupted() {
			return false, ErrInterrupted
		}
		rec, ok, err := s.it.Next()
		if err != nil || !ok {
			return false, err
		}
		if !s.matches(rec) {
			continue
		}
		for i, c := range s.Cols {
			if c.Role == RoleAssign {
				s.binding[c.Var] = objid.ID(rec[i])
			}
		}
		return true, nil
	}
}

// matches re-checks every RoleConst/RoleBound column against the actual
// record. GetRange's composite-key comparison only guarantees the tuple
// falls lexicographically between lo and hi; when an earlier column in
// the scan's own order is a RoleAssign wildcard, a later RoleConst or
// RoleBound column stops being a true per-column filter (the earlier
// wildcard already decided the tuple was in range), so it must be
// verified here instead.
func (s *IndexScan) matches(rec []uint64) bool {
	for i, c := range s.Cols {
		switch c.Role {
		case RoleConst:
			if rec[i] != uint64(c.Const) {
				return false
			}
		case RoleBound:
			if rec[i] != uint64(s.binding[c.Var]) {
				return false
			}
		}
	}
	return true
}

func (s *IndexScan) Reset() error { return s.openRange() }

func (s *IndexScan) AssignNulls(binding Binding) {
	for _, c := range s.Cols {
		if c.Role == RoleAssign {
			binding[c.Var] = objid.Null
		}
	}
}

func (s *IndexScan) Close() {
	if s.it != nil {
		s.it.Close()
		s.it = nil
	}
}

// NestedLoopJoin pulls Left; for each left tuple it resets Right (carrying
// the current binding) and emits the concatenation of every right match
// (spec §4.8).
type NestedLoopJoin struct {
	Left, Right TupleIDOp

	qc      *QueryContext
	binding Binding
	leftOK  bool
}

func (j *NestedLoopJoin) Begin(qc *QueryContext, binding Binding) error {
	j.qc, j.binding = qc, binding
	if err := j.Left.Begin(qc, binding); err != nil {
		return err
	}
	ok, err := j.Left.Next()
	if err != nil {
		return err
	}
	j.leftOK = ok
	if !ok {
		return nil
	}
	return j.Right.Begin(qc, binding)
}

func (j *NestedLoopJoin) Next() (bool, error) {
	for j.leftOK {
		if j.qc.Interrupted() {
			return false, ErrInterrupted
		}
		ok, err := j.Right.Next()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		ok, err = j.Left.Next()
		if err != nil {
			return false, err
		}
		j.leftOK = ok
		if !ok {
			return false, nil
		}
		if err := j.Right.Reset(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (j *NestedLoopJoin) Reset() error {
	if err := j.Left.Reset(); err != nil {
		return err
	}
	ok, err := j.Left.Next()
	if err != nil {
		return err
	}
	j.leftOK = ok
	if !ok {
		return nil
	}
	return j.Right.Reset()
}

func (j *NestedLoopJoin) AssignNulls(binding Binding) {
	j.Left.AssignNulls(binding)
	j.Right.AssignNulls(binding)
}

func (j *NestedLoopJoin) Close() {
	j.Left.Close()
	j.Right.Close()
}

// LeftOuterJoin pulls Left; for each left tuple, if any right tuple
// matches it emits concatenations, otherwise it emits the left tuple with
// Right's variables assigned to null (spec §4.8, §8 property 7).
type LeftOuterJoin struct {
	Left, Right TupleIDOp

	qc         *QueryContext
	binding    Binding
	leftOK     bool
	rightMatch bool
	emitNulls  bool
}

func (j *LeftOuterJoin) Begin(qc *QueryContext, binding Binding) error {
	j.qc, j.binding = qc, binding
	if err := j.Left.Begin(qc, binding); err != nil {
		return err
	}
	ok, err := j.Left.Next()
	if err != nil {
		return err
	}
	j.leftOK = ok
	if !ok {
		return nil
	}
	return j.beginRightForCurrentLeft()
}

func (j *LeftOuterJoin) beginRightForCurrentLeft() error {
	if err := j.Right.Begin(j.qc, j.binding); err != nil {
		return err
	}
	j.rightMatch = false
	j.emitNulls = false
	return nil
}

func (j *LeftOuterJoin) Next() (bool, error) {
	for j.leftOK {
		if j.qc.Interrupted() {
			return false, ErrInterrupted
		}
		if j.emitNulls {
			j.emitNulls = false
			if err := j.advanceLeft(); err != nil {
				return false, err
			}
			continue
		}
		ok, err := j.Right.Next()
		if err != nil {
			return false, err
		}
		if ok {
			j.rightMatch = true
			return true, nil
		}
		if !j.rightMatch {
			j.Right.AssignNulls(j.binding)
			j.emitNulls = true
			return true, nil
		}
		if err := j.advanceLeft(); err != nil {
			return false, err
		}
		if !j.leftOK {
			return false, nil
		}
	}
	return false, nil
}

func (j *LeftOuterJoin) advanceLeft() error {
	ok, err := j.Left.Next()
	if err != nil {
		return err
	}
	j.leftOK = ok
	if !ok {
		return nil
	}
	return j.beginRightForCurrentLeft()
}

func (j *LeftOuterJoin) Reset() error {
	if err := j.Left.Reset(); err != nil {
		return err
	}
	ok, err := j.Left.Next()
	if err != nil {
		return err
	}
	j.leftOK = ok
	if !ok {
		return nil
	}
	return j.beginRightForCurrentLeft()
}

func (j *LeftOuterJoin) AssignNulls(binding Binding) {
	j.Left.AssignNulls(binding)
	j.Right.AssignNulls(binding)
}

func (j *LeftOuterJoin) Close() {
	j.Left.Close()
	j.Right.Close()
}

// hashJoinThreshold is the row count of a bucket's smaller side at or above
// which the bucket's probe uses a secondary in-memory hash instead of a
// nested-loop scan (spec §4.8).
const hashJoinThreshold = 8

// HashJoin materializes both sides in-memory into bucketed multimaps keyed
// on CommonVars. Per bucket, the smaller side gets a secondary hash when
// the bucket is at or above hashJoinThreshold, else both sides are
// compared with a nested loop. Bucket selection uses the low log2(B) bits
// of siphash over the common columns (spec names "MurmurHash" descriptively;
// see DESIGN.md for why siphash substitutes it).
type HashJoin struct {
	Left, Right TupleIDOp
	CommonVars  []int

	qc         *QueryContext
	outer      Binding
	leftRows   []Binding
	rightRows  []Binding
	buckets    map[uint64]*hjBucket
	bucketMask uint64

	// iteration state
	bucketOrder []uint64
	bucketPos   int
	matches     []Binding
	matchPos    int
}

type hjBucket struct {
	left, right []int // indices into leftRows/rightRows
}

func (j *HashJoin) Begin(qc *QueryContext, binding Binding) error {
	j.qc, j.outer = qc, binding
	var err error
	j.leftRows, err = materialize(qc, j.Left, binding)
	if err != nil {
		return err
	}
	j.rightRows, err = materialize(qc, j.Right, binding)
	if err != nil {
		return err
	}
	j.buildBuckets()
	j.bucketPos = -1
	j.matches = nil
	j.matchPos = 0
	return nil
}

func materialize(qc *QueryContext, op TupleIDOp, outer Binding) ([]Binding, error) {
	work := outer.Clone()
	if err := op.Begin(qc, work); err != nil {
		return nil, err
	}
	var rows []Binding
	for {
		ok, err := op.Next()
		if err != nil {
			op.Close()
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, work.Clone())
	}
	op.Close()
	return rows, nil
}

func bucketCountFor(n int) uint64 {
	c := uint64(1)
	for c < uint64(n/4+1) {
		c <<= 1
	}
	if c == 0 {
		c = 1
	}
	return c
}

func (j *HashJoin) commonHash(b Binding) uint64 {
	buf := make([]byte, 8*len(j.CommonVars))
	for i, v := range j.CommonVars {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], uint64(b[v]))
	}
	return storage.Hash64(buf)
}

func (j *HashJoin) buildBuckets() {
	n := len(j.leftRows)
	if len(j.rightRows) > n {
		n = len(j.rightRows)
	}
	bc := bucketCountFor(n)
	j.bucketMask = bc - 1
	j.buckets = make(map[uint64]*hjBucket)
	for i, row := range j.leftRows {
		h := j.commonHash(row) & j.bucketMask
		b := j.buckets[h]
		if b == nil {
			b = &hjBucket{}
			j.buckets[h] = b
		}
		b.left = append(b.left, i)
	}
	for i, row := range j.rightRows {
		h := j.commonHash(row) & j.bucketMask
		b := j.buckets[h]
		if b == nil {
			b = &hjBucket{}
			j.buckets[h] = b
		}
		b.right = append(b.right, i)
	}
	j.bucketOrder = nil
	for h := range j.buckets {
		j.bucketOrder = append(j.bucketOrder, h)
	}
	// deterministic iteration order by bucket id.
	for i := 1; i < len(j.bucketOrder); i++ {
		for k := i; k > 0 && j.bucketOrder[k-1] > j.bucketOrder[k]; k-- {
			j.bucketOrder[k-1], j.bucketOrder[k] = j.bucketOrder[k], j.bucketOrder[k-1]
		}
	}
}

func commonKey(b Binding, vars []int) string {
	buf := make([]byte, 8*len(vars))
	for i, v := range vars {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], uint64(b[v]))
	}
	return string(buf)
}

// fillBucketMatches computes every (left,right) pair for the bucket at
// j.bucketOrder[j.bucketPos], honoring the secondary-hash/nested-loop
// choice, and stores the flattened match list for Next to drain.
func (j *HashJoin) fillBucketMatches() {
	bucket := j.buckets[j.bucketOrder[j.bucketPos]]
	lrows := make([]Binding, len(bucket.left))
	for i, idx := range bucket.left {
		lrows[i] = j.leftRows[idx]
	}
	rrows := make([]Binding, len(bucket.right))
	for i, idx := range bucket.right {
		rrows[i] = j.rightRows[idx]
	}
	j.matches = j.matches[:0]
	j.matchPos = 0
	if len(lrows) == 0 || len(rrows) == 0 {
		return
	}
	useSecondaryOnLeft := len(lrows) <= len(rrows)
	small, large := lrows, rrows
	if !useSecondaryOnLeft {
		small, large = rrows, lrows
	}
	if len(small) >= hashJoinThreshold {
		idx := make(map[string][]int, len(small))
		for i, row := range small {
			k := commonKey(row, j.CommonVars)
			idx[k] = append(idx[k], i)
		}
		for _, lrow := range large {
			k := commonKey(lrow, j.CommonVars)
			for _, si := range idx[k] {
				if useSecondaryOnLeft {
					j.appendMatch(small[si], lrow)
				} else {
					j.appendMatch(lrow, small[si])
				}
			}
		}
		return
	}
	// nested-loop within the bucket: left bucket order, then right.
	for _, lrow := range lrows {
		for _, rrow := range rrows {
			if commonKey(lrow, j.CommonVars) == commonKey(rrow, j.CommonVars) {
				j.appendMatch(lrow, rrow)
			}
		}
	}
}

func (j *HashJoin) appendMatch(left, right Binding) {
	merged := left.Clone()
	for i, v := range right {
		if v != objid.Null && merged[i] == objid.Null {
			merged[i] = v
		}
	}
	j.matches = append(j.matches, merged)
}

func (j *HashJoin) Next() (bool, error) {
	if j.qc.Interrupted() {
		return false, ErrInterrupted
	}
	for {
		if j.matchPos < len(j.matches) {
			copy(j.outer, j.matches[j.matchPos])
			j.matchPos++
			return true, nil
		}
		j.bucketPos++
		if j.bucketPos >= len(j.bucketOrder) {
			return false, nil
		}
		j.fillBucketMatches()
	}
}

func (j *HashJoin) Reset() error {
	j.bucketPos = -1
	j.matches = nil
	j.matchPos = 0
	return nil
}

func (j *HashJoin) AssignNulls(binding Binding) {
	j.Left.AssignNulls(binding)
	j.Right.AssignNulls(binding)
}

func (j *HashJoin) Close() {
	j.Left.Close()
	j.Right.Close()
}
