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

import "encoding/binary"

// edgeMask extracts the 56-bit counter from a packed edge object
// identifier, per spec §3 invariant 2 ("stored ... at offset
// e & 0x00FF_FFFF_FFFF_FFFF").
const edgeMask = 0x00FF_FFFF_FFFF_FFFF

// RandomAccessTable is a fixed-width record-by-offset store, used for the
// edge table keyed by edge identifier (spec §3, §4.1 "Random-access
// table").
type RandomAccessTable struct {
	file       *File
	pool       *BufferPool
	recSize    int // bytes per record; recSize*n must divide PageSize-friendly
	recsPerPg  int
}

// NewRandomAccessTable opens (creating if necessary) a fixed-width table
// where each record holds ncols uint64 columns.
func NewRandomAccessTable(fm *FileManager, pool *BufferPool, name string, ncols int) (*RandomAccessTable, error) {
	f, err := fm.Open(name)
	if err != nil {
		return nil, err
	}
	recSize := ncols * 8
	recsPerPg := UsablePageSize / recSize
	return &RandomAccessTable{file: f, pool: pool, recSize: recSize, recsPerPg: recsPerPg}, nil
}

func (t *RandomAccessTable) locate(counter uint64) (pno uint32, off int) {
	idx := counter & edgeMask
	pno = uint32(idx / uint64(t.recsPerPg))
	off = int(idx%uint64(t.recsPerPg)) * t.recSize
	return
}

// Put writes cols at the slot addressed by counter, growing the file with
// zero-initialized pages as needed.
func (t *RandomAccessTable) Put(counter uint64, cols []uint64) error {
	pno, off := t.locate(counter)
	for t.file.NumPages() <= pno {
		p, err := t.pool.AppendPage(t.file)
		if err != nil {
			return err
		}
		t.pool.Unpin(p)
	}
	p, err := t.pool.GetPage(t.file, pno)
	if err != nil {
		return err
	}
	b := p.Bytes()
	for i, c := range cols {
		binary.LittleEndian.PutUint64(b[off+i*8:off+i*8+8], c)
	}
	p.MarkDirty()
	t.pool.Unpin(p)
	return nil
}

// Get reads ncols columns back from the slot addressed by counter.
func (t *RandomAccessTable) Get(counter uint64, ncols int) ([]uint64, error) {
	pno, off := t.locate(counter)
	if t.file.NumPages() <= pno {
		return make([]uint64, ncols), nil
	}
	p, err := t.pool.GetPage(t.file, pno)
	if err != nil {
		return nil, err
	}
	defer t.pool.Unpin(p)
	b := p.Bytes()
	out := make([]uint64, ncols)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[off+i*8 : off+i*8+8])
	}
	return out, nil
}
