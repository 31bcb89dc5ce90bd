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

package storage

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"
)

// Catalog is the small on-disk table of cardinalities described in spec
// §4.5 / §6. It is loaded in full on startup, mutated under catalogMu on
// every insert, and flushed in full on shutdown (spec §5 "Catalog
// counters are updated under the catalog mutex").
//
// Binary format (little-endian), per spec §6: a single "graph" record
// (this core manages one graph per database directory, but the format
// keeps the spec's graph_count/name framing so a future multi-graph
// catalog file is a pure append):
//
//	uint32 graph_count            (always 1 for this core)
//	uint32 name_len; name_len bytes
//	six uint64 counters:          total_nodes, anonymous_nodes, edges,
//	                               selfref_from_eq_to, selfref_from_eq_type,
//	                               selfref_to_eq_type
//	four length-prefixed (uint64 id, uint64 count) tables, in order:
//	                               per-label, per-property-key, per-edge-type,
//	                               and a singleton table {0: selfref_all_equal}
//	                               (kept as a table rather than a seventh
//	                               scalar so the literal "four tables"
//	                               framing in spec §6 is satisfied exactly)
type Catalog struct {
	mu sync.Mutex

	Name string

	TotalNodes      uint64
	AnonymousNodes  uint64
	Edges           uint64
	SelfRefFromToEq uint64
	SelfRefFromType uint64
	SelfRefToType   uint64
	SelfRefAllEqual uint64

	PerLabel    map[uint64]uint64
	PerProperty map[uint64]uint64
	PerType     map[uint64]uint64
}

// NewCatalog returns an empty catalog named name.
func NewCatalog(name string) *Catalog {
	return &Catalog{
		Name:        name,
		PerLabel:    make(map[uint64]uint64),
		PerProperty: make(map[uint64]uint64),
		PerType:     make(map[uint64]uint64),
	}
}

// LoadCatalog reads catalog.dat; a missing file yields a fresh empty
// catalog (first-run case).
func LoadCatalog(path string, name string) (*Catalog, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewCatalog(name), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var graphCount uint32
	if err := binary.Read(r, binary.LittleEndian, &graphCount); err != nil {
		return nil, err
	}
	c := NewCatalog(name)
	if graphCount == 0 {
		return c, nil
	}
	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, err
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, err
	}
	c.Name = string(nameBuf)

	counters := make([]*uint64, 6)
	counters[0] = &c.TotalNodes
	counters[1] = &c.AnonymousNodes
	counters[2] = &c.Edges
	counters[3] = &c.SelfRefFromToEq
	counters[4] = &c.SelfRefFromType
	counters[5] = &c.SelfRefToType
	for _, cp := range counters {
		if err := binary.Read(r, binary.LittleEndian, cp); err != nil {
			return nil, err
		}
	}

	tables := []*map[uint64]uint64{&c.PerLabel, &c.PerProperty, &c.PerType}
	for _, tbl := range tables {
		m, err := readCountTable(r)
		if err != nil {
			return nil, err
		}
		*tbl = m
	}
	allEqual, err := readCountTable(r)
	if err != nil {
		return nil, err
	}
	c.SelfRefAllEqual = allEqual[0]
	return c, nil
}

func readCountTable(r io.Reader) (map[uint64]uint64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	m := make(map[uint64]uint64, n)
	for i := uint32(0); i < n; i++ {
		var id, count uint64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		m[id] = count
	}
	return m, nil
}

func writeCountTable(w io.Writer, m map[uint64]uint64) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m))); err != nil {
		return err
	}
	for id, count := range m {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, count); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the catalog to path atomically (write to a temp file, then
// rename), so a crash mid-write never leaves a half-written catalog.dat
// (spec §8 scenario S6).
func (c *Catalog) Flush(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, uint32(1)); err != nil {
		f.Close()
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Name))); err != nil {
		f.Close()
		return err
	}
	if _, err := w.WriteString(c.Name); err != nil {
		f.Close()
		return err
	}
	counters := []uint64{
		c.TotalNodes, c.AnonymousNodes, c.Edges,
		c.SelfRefFromToEq, c.SelfRefFromType, c.SelfRefToType,
	}
	for _, v := range counters {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			f.Close()
			return err
		}
	}
	for _, tbl := range []map[uint64]uint64{c.PerLabel, c.PerProperty, c.PerType} {
		if err := writeCountTable(w, tbl); err != nil {
			f.Close()
			return err
		}
	}
	if err := writeCountTable(w, map[uint64]uint64{0: c.SelfRefAllEqual}); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RecordNode increments the total and (if anonymous) anonymous-node
// counters and returns the newly allocated anonymous-node counter value
// when isAnonymous is true (SPEC_FULL.md §C.4: the anonymous-id counter
// is the persisted AnonymousNodes field itself).
func (c *Catalog) RecordNode(isAnonymous bool) (anonID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TotalNodes++
	if isAnonymous {
		c.AnonymousNodes++
		return c.AnonymousNodes
	}
	return 0
}

// RecordLabel increments the per-label count for labelID.
func (c *Catalog) RecordLabel(labelID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PerLabel[labelID]++
}

// RecordProperty increments the per-property-key count for keyID.
func (c *Catalog) RecordProperty(keyID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PerProperty[keyID]++
}

// RecordEdge increments the edge count, per-type count, and every
// self-reference counter whose equality predicate holds on (from, to,
// typ), per spec §3 invariant 2.
func (c *Catalog) RecordEdge(typeID uint64, from, to, typ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Edges++
	c.PerType[typeID]++
	fromEqTo := from == to
	fromEqType := from == typ
	toEqType := to == typ
	if fromEqTo {
		c.SelfRefFromToEq++
	}
	if fromEqType {
		c.SelfRefFromType++
	}
	if toEqType {
		c.SelfRefToType++
	}
	if fromEqTo && fromEqType && toEqType {
		c.SelfRefAllEqual++
	}
}

// LabelCount returns the catalog's count for labelID (cardinality
// estimate consumed by the planner).
func (c *Catalog) LabelCount(labelID uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PerLabel[labelID]
}

// PropertyCount returns the catalog's count for a property key.
func (c *Catalog) PropertyCount(keyID uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PerProperty[keyID]
}

// TypeCount returns the catalog's count for an edge type.
func (c *Catalog) TypeCount(typeID uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PerType[typeID]
}
