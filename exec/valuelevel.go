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
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/klauspost/compress/s2"
	"golang.org/x/exp/slices"

	"github.com/wangTheTiger/MillenniumDB/objid"
)

// RowOp is the value-level operator contract: begin/next/close over fully
// materialized Binding rows (no shared-vector aliasing, unlike TupleIDOp),
// since projection, distinct, sort, and group-by all need to retain rows
// across calls (spec §4.10).
type RowOp interface {
	Begin(qc *QueryContext) error
	Next() (Binding, bool, error)
	Close()
}

// TupleSource adapts a TupleIDOp into a RowOp, snapshotting the shared
// binding vector into an owned copy after each tuple.
type TupleSource struct {
	Op      TupleIDOp
	Binding Binding

	qc *QueryContext
}

func (s *TupleSource) Begin(qc *QueryContext) error {
	s.qc = qc
	return s.Op.Begin(qc, s.Binding)
}

func (s *TupleSource) Next() (Binding, bool, error) {
	ok, err := s.Op.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	return s.Binding.Clone(), true, nil
}

func (s *TupleSource) Close() { s.Op.Close() }

// Projection copies the selected variables from each input row into the
// result tuple (spec §4.10).
type Projection struct {
	Input RowOp
	Vars  []int
}

func (p *Projection) Begin(qc *QueryContext) error { return p.Input.Begin(qc) }

func (p *Projection) Next() (Binding, bool, error) {
	row, ok, err := p.Input.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make(Binding, len(p.Vars))
	for i, v := range p.Vars {
		out[i] = row[v]
	}
	return out, true, nil
}

func (p *Projection) Close() { p.Input.Close() }

// Limit passes through at most N rows from Input, then reports exhausted
// without ever calling Input.Next() again (spec §4.10, §8 S4).
type Limit struct {
	Input RowOp
	N     int

	emitted int
}

func (l *Limit) Begin(qc *QueryContext) error {
	l.emitted = 0
	return l.Input.Begin(qc)
}

func (l *Limit) Next() (Binding, bool, error) {
	if l.emitted >= l.N {
		return nil, false, nil
	}
	row, ok, err := l.Input.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	l.emitted++
	return row, true, nil
}

func (l *Limit) Close() { l.Input.Close() }

func rowKey(row Binding) string {
	buf := make([]byte, 8*len(row))
	for i, v := range row {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], uint64(v))
	}
	return string(buf)
}

// DistinctHash removes duplicates via an open-addressed (Go map) table
// keyed on the tuple bytes; used when no ordering is known (spec §4.10).
type DistinctHash struct {
	Input RowOp
	seen  map[string]bool
}

func (d *DistinctHash) Begin(qc *QueryContext) error {
	d.seen = make(map[string]bool)
	return d.Input.Begin(qc)
}

func (d *DistinctHash) Next() (Binding, bool, error) {
	for {
		row, ok, err := d.Input.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		k := rowKey(row)
		if d.seen[k] {
			continue
		}
		d.seen[k] = true
		return row, true, nil
	}
}

func (d *DistinctHash) Close() { d.Input.Close() }

// DistinctOrdered emits a tuple iff it differs from the previous one;
// valid only when Input is already sorted on the projection columns
// (spec §4.10).
type DistinctOrdered struct {
	Input    RowOp
	prev     Binding
	havePrev bool
}

func (d *DistinctOrdered) Begin(qc *QueryContext) error {
	d.havePrev = false
	return d.Input.Begin(qc)
}

func (d *DistinctOrdered) Next() (Binding, bool, error) {
	for {
		row, ok, err := d.Input.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		if d.havePrev && bindingEqual(d.prev, row) {
			continue
		}
		d.prev = row
		d.havePrev = true
		return row, true, nil
	}
}

func (d *DistinctOrdered) Close() { d.Input.Close() }

func bindingEqual(a, b Binding) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OrderKey is one ORDER BY column: the binding column index plus a
// direction flag. Comparators are built as a small table over OrderKeys
// rather than a captured closure, keeping the quicksort hot path
// branch-predictable (spec §9 "Comparator closures").
type OrderKey struct {
	Col        int
	Descending bool
}

type rowComparator struct {
	keys     []OrderKey
	resolver *Resolver
}

// less reports whether a sorts before b, resolving extern-string columns
// through the comparator's Resolver when a raw uint64 compare isn't
// sufficient to order them correctly (objid.Compare, spec §3 "total
// ordering across kinds").
func (c *rowComparator) less(a, b Binding) (bool, error) {
	for _, k := range c.keys {
		va, vb := a[k.Col], b[k.Col]
		if va == vb {
			continue
		}
		cmp, err := objid.Compare(va, vb, c.resolver.Resolve)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			continue
		}
		if k.Descending {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
	return false, nil
}

// quicksortRows sorts rows in place using a randomized pivot, following
// spec §4.10's "randomized-pivot quicksort with a caller-supplied
// comparator" over the table in cmp.
func quicksortRows(rows []Binding, cmp *rowComparator) error {
	var qsErr error
	var qs func(lo, hi int)
	qs = func(lo, hi int) {
		if qsErr != nil || hi-lo < 2 {
			return
		}
		pivotIdx := lo + rand.Intn(hi-lo)
		rows[pivotIdx], rows[hi-1] = rows[hi-1], rows[pivotIdx]
		pivot := rows[hi-1]
		store := lo
		for i := lo; i < hi-1; i++ {
			less, err := cmp.less(rows[i], pivot)
			if err != nil {
				qsErr = err
				return
			}
			if less {
				rows[i], rows[store] = rows[store], rows[i]
				store++
			}
		}
		rows[store], rows[hi-1] = rows[hi-1], rows[store]
		qs(lo, store)
		qs(store+1, hi)
	}
	qs(0, len(rows))
	return qsErr
}

func mergeSortedRows(a, b []Binding, cmp *rowComparator) ([]Binding, error) {
	out := make([]Binding, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		less, err := cmp.less(b[j], a[i])
		if err != nil {
			return nil, err
		}
		if less {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out, nil
}

// writeRun serializes rows (each of the given column width) and writes
// them s2-compressed to path, following the teacher's own compr package's
// use of klauspost/compress/s2 for spill data.
func writeRun(path string, rows []Binding, width int) error {
	raw := make([]byte, 16+len(rows)*width*8)
	binary.LittleEndian.PutUint64(raw[0:8], uint64(len(rows)))
	binary.LittleEndian.PutUint64(raw[8:16], uint64(width))
	for i, row := range rows {
		for j, v := range row {
			off := 16 + (i*width+j)*8
			binary.LittleEndian.PutUint64(raw[off:off+8], uint64(v))
		}
	}
	compressed := s2.Encode(nil, raw)
	return os.WriteFile(path, compressed, 0o644)
}

func readRun(path string) ([]Binding, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, err
	}
	numRows := binary.LittleEndian.Uint64(raw[0:8])
	width := int(binary.LittleEndian.Uint64(raw[8:16]))
	rows := make([]Binding, numRows)
	for i := range rows {
		row := make(Binding, width)
		for j := range row {
			off := 16 + (i*width+j)*8
			row[j] = objid.ID(binary.LittleEndian.Uint64(raw[off : off+8]))
		}
		rows[i] = row
	}
	return rows, nil
}

// OrderBy implements the external merge-sort of spec §4.10: runs of up to
// RowsPerRun tuples are quicksorted and (when more than one run is
// needed) spilled to uuid-named scratch files under ScratchDir, then
// ping-pong merged pairwise, doubling run length, until one run remains.
type OrderBy struct {
	Input      RowOp
	Keys       []OrderKey
	ScratchDir string
	RowsPerRun int // defaults to a page's worth of 8-byte columns if zero

	qc     *QueryContext
	cmp    *rowComparator
	sorted []Binding
	pos    int
	width  int
}

const defaultColumnsPerRow = 4

func (o *OrderBy) runCapacity() int {
	if o.RowsPerRun > 0 {
		return o.RowsPerRun
	}
	width := o.width
	if width == 0 {
		width = defaultColumnsPerRow
	}
	n := 4096 / (width * 8) // rows of width uint64 columns in one 4096-byte page
	if n < 2 {
		n = 2
	}
	return n
}

func (o *OrderBy) Begin(qc *QueryContext) error {
	o.qc = qc
	o.cmp = &rowComparator{keys: o.Keys, resolver: qc.Resolver}
	if err := o.Input.Begin(qc); err != nil {
		return err
	}

	var runFiles []string
	var buf []Binding
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := quicksortRows(buf, o.cmp); err != nil {
			return err
		}
		if len(runFiles) == 0 && o.sorted == nil {
			// first run: keep it in memory optimistically.
			o.sorted = buf
			buf = nil
			return nil
		}
		if o.sorted != nil {
			// a second run arrived: spill the in-memory run too, so every
			// run goes through the same merge path.
			name := filepath.Join(o.ScratchDir, uuid.New().String()+".run")
			if err := writeRun(name, o.sorted, o.width); err != nil {
				return err
			}
			runFiles = append(runFiles, name)
			o.sorted = nil
		}
		name := filepath.Join(o.ScratchDir, uuid.New().String()+".run")
		if err := writeRun(name, buf, o.width); err != nil {
			return err
		}
		runFiles = append(runFiles, name)
		buf = nil
		return nil
	}

	capacity := o.runCapacity()
	for {
		if o.qc.Interrupted() {
			return ErrInterrupted
		}
		row, ok, err := o.Input.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if o.width == 0 {
			o.width = len(row)
			capacity = o.runCapacity()
		}
		buf = append(buf, row)
		if len(buf) >= capacity {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if len(runFiles) > 0 {
		for len(runFiles) > 1 {
			var next []string
			for i := 0; i+1 < len(runFiles); i += 2 {
				a, err := readRun(runFiles[i])
				if err != nil {
					return err
				}
				b, err := readRun(runFiles[i+1])
				if err != nil {
					return err
				}
				merged, err := mergeSortedRows(a, b, o.cmp)
				if err != nil {
					return err
				}
				name := filepath.Join(o.ScratchDir, uuid.New().String()+".run")
				if err := writeRun(name, merged, o.width); err != nil {
					return err
				}
				_ = os.Remove(runFiles[i])
				_ = os.Remove(runFiles[i+1])
				next = append(next, name)
			}
			if len(runFiles)%2 == 1 {
				next = append(next, runFiles[len(runFiles)-1])
			}
			runFiles = next
		}
		final, err := readRun(runFiles[0])
		if err != nil {
			return err
		}
		_ = os.Remove(runFiles[0])
		o.sorted = final
	}
	if o.sorted == nil {
		o.sorted = []Binding{}
	}
	o.pos = 0
	return nil
}

func (o *OrderBy) Next() (Binding, bool, error) {
	if o.pos >= len(o.sorted) {
		return nil, false, nil
	}
	row := o.sorted[o.pos]
	o.pos++
	return row, true, nil
}

func (o *OrderBy) Close() { o.Input.Close() }

// AggKind names one of the aggregate functions of spec §4.10.
type AggKind int

const (
	AggCount AggKind = iota
	AggCountDistinct
	AggSum
	AggAvg
	AggMin
	AggMax
	AggGroupConcat
	AggSample
)

// Aggregate is one SELECT-list aggregate; Col is -1 for COUNT(*).
type Aggregate struct {
	Kind AggKind
	Col  int
}

type groupState struct {
	key          Binding
	counts       []int64
	sums         []float64
	sumIsFloat   []bool
	mins, maxs   []objid.ID
	haveMinMax   []bool
	distinctSets []map[objid.ID]bool
	concatParts  [][]string
	samples      []objid.ID
	sampleSet    []bool
}

func newGroupState(key Binding, n int) *groupState {
	g := &groupState{
		key:          key,
		counts:       make([]int64, n),
		sums:         make([]float64, n),
		sumIsFloat:   make([]bool, n),
		mins:         make([]objid.ID, n),
		maxs:         make([]objid.ID, n),
		haveMinMax:   make([]bool, n),
		distinctSets: make([]map[objid.ID]bool, n),
		concatParts:  make([][]string, n),
		samples:      make([]objid.ID, n),
		sampleSet:    make([]bool, n),
	}
	for i := range g.distinctSets {
		g.distinctSets[i] = make(map[objid.ID]bool)
	}
	return g
}

// GroupBy partitions incoming rows by GroupCols and computes Aggregates
// per group (spec §4.10). It eagerly consumes its whole input on Begin:
// grouping is a barrier operator regardless of whether the child happens
// to already be sorted on the grouping columns.
type GroupBy struct {
	Input      RowOp
	GroupCols  []int
	Aggregates []Aggregate
	Resolver   *Resolver

	groups []*groupState
	index  map[string]int
	pos    int
}

func (gb *GroupBy) Begin(qc *QueryContext) error {
	if err := gb.Input.Begin(qc); err != nil {
		return err
	}
	gb.groups = nil
	gb.index = make(map[string]int)
	gb.pos = 0
	for {
		if qc.Interrupted() {
			return ErrInterrupted
		}
		row, ok, err := gb.Input.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key := make(Binding, len(gb.GroupCols))
		for i, c := range gb.GroupCols {
			key[i] = row[c]
		}
		k := rowKey(key)
		idx, ok := gb.index[k]
		if !ok {
			idx = len(gb.groups)
			gb.groups = append(gb.groups, newGroupState(key, len(gb.Aggregates)))
			gb.index[k] = idx
		}
		if err := gb.accumulate(gb.groups[idx], row); err != nil {
			return err
		}
	}
	return nil
}

func (gb *GroupBy) accumulate(g *groupState, row Binding) error {
	for i, agg := range gb.Aggregates {
		var val objid.ID = objid.Null
		if agg.Col >= 0 {
			val = row[agg.Col]
		}
		switch agg.Kind {
		case AggCount:
			if agg.Col < 0 || val != objid.Null {
				g.counts[i]++
			}
		case AggCountDistinct:
			if val != objid.Null {
				g.distinctSets[i][val] = true
			}
		case AggSum, AggAvg:
			if val != objid.Null {
				f, isFloat, ok := numericValue(val)
				if ok {
					g.sums[i] += f
					g.counts[i]++
					if isFloat {
						g.sumIsFloat[i] = true
					}
				}
			}
		case AggMin:
			if val != objid.Null {
				if !g.haveMinMax[i] {
					g.mins[i], g.haveMinMax[i] = val, true
				} else {
					cmp, err := objid.Compare(val, g.mins[i], gb.Resolver.Resolve)
					if err != nil {
						return err
					}
					if cmp < 0 {
						g.mins[i] = val
					}
				}
			}
		case AggMax:
			if val != objid.Null {
				if !g.haveMinMax[i] {
					g.maxs[i], g.haveMinMax[i] = val, true
				} else {
					cmp, err := objid.Compare(val, g.maxs[i], gb.Resolver.Resolve)
					if err != nil {
						return err
					}
					if cmp > 0 {
						g.maxs[i] = val
					}
				}
			}
		case AggGroupConcat:
			if val != objid.Null {
				s, err := decodeString(gb.Resolver, val)
				if err != nil {
					return err
				}
				g.concatParts[i] = append(g.concatParts[i], s)
			}
		case AggSample:
			if val != objid.Null && !g.sampleSet[i] {
				g.samples[i], g.sampleSet[i] = val, true
			}
		}
	}
	return nil
}

// Next finalizes and emits one group per call: the grouping columns
// followed by one value per aggregate.
func (gb *GroupBy) Next() (Binding, bool, error) {
	if gb.pos >= len(gb.groups) {
		return nil, false, nil
	}
	g := gb.groups[gb.pos]
	gb.pos++
	out := slices.Clone(g.key)
	for i, agg := range gb.Aggregates {
		var v objid.ID
		switch agg.Kind {
		case AggCount:
			id, err := objid.PackInt(g.counts[i])
			if err != nil {
				return nil, false, err
			}
			v = id
		case AggCountDistinct:
			id, err := objid.PackInt(int64(len(g.distinctSets[i])))
			if err != nil {
				return nil, false, err
			}
			v = id
		case AggSum:
			if g.counts[i] == 0 {
				v = objid.Null
			} else if g.sumIsFloat[i] {
				v = objid.PackFloat(g.sums[i])
			} else {
				id, err := objid.PackInt(int64(g.sums[i]))
				if err != nil {
					return nil, false, err
				}
				v = id
			}
		case AggAvg:
			if g.counts[i] == 0 {
				v = objid.Null
			} else {
				v = objid.PackFloat(g.sums[i] / float64(g.counts[i]))
			}
		case AggMin:
			if g.haveMinMax[i] {
				v = g.mins[i]
			} else {
				v = objid.Null
			}
		case AggMax:
			if g.haveMinMax[i] {
				v = g.maxs[i]
			} else {
				v = objid.Null
			}
		case AggGroupConcat:
			joined := joinStrings(g.concatParts[i], ", ")
			id, err := internString(gb.Resolver, joined)
			if err != nil {
				return nil, false, err
			}
			v = id
		case AggSample:
			if g.sampleSet[i] {
				v = g.samples[i]
			} else {
				v = objid.Null
			}
		}
		out = append(out, v)
	}
	return out, true, nil
}

func (gb *GroupBy) Close() { gb.Input.Close() }

func joinStrings(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += sep + p
	}
	return out
}

func numericValue(id objid.ID) (value float64, isFloat bool, ok bool) {
	if f, ok2 := objid.UnpackFloat(id); ok2 {
		return f, true, true
	}
	if n, ok2 := objid.UnpackInt(id); ok2 {
		return float64(n), false, true
	}
	return 0, false, false
}

// decodeString renders id as a string for GROUP_CONCAT, decoding inline
// and extern strings and falling back to a literal rendering for scalar
// kinds (spec §4.10 "decodes non-encoded kinds lazily").
func decodeString(r *Resolver, id objid.ID) (string, error) {
	if b, ok := objid.UnpackInlineString(id); ok {
		return string(b), nil
	}
	if off, ok := objid.ExternOffset(id); ok {
		b, err := r.Objects.Read(off)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if n, ok := objid.UnpackInt(id); ok {
		return strconv.FormatInt(n, 10), nil
	}
	if f, ok := objid.UnpackFloat(id); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	if b, ok := objid.UnpackBool(id); ok {
		return strconv.FormatBool(b), nil
	}
	return "", nil
}

// internString stores s as an inline or extern string object identifier.
// Strings too long to inline are deduplicated through the store's
// extendible hash (§4.3 "interned strings are immortal"): identical bytes
// always resolve to the same object-file offset, rather than appending a
// fresh copy on every call.
func internString(r *Resolver, s string) (objid.ID, error) {
	if id, ok := objid.PackInlineString([]byte(s), false); ok {
		return id, nil
	}
	key := []byte(s)
	alloc := func() (uint64, error) { return r.Objects.Append(key) }
	off, _, err := r.Hash.Intern(key, true, alloc)
	if err != nil {
		return objid.Null, err
	}
	return objid.PackExternString(off, false), nil
}
