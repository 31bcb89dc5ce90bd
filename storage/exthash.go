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
	"encoding/binary"
	"sync"

	"github.com/dchest/siphash"
)

// hashKey0/hashKey1 are the fixed siphash keys used for string interning
// and hash-join bucketing; siphash stands in for the spec's descriptive
// "murmur3" (see DESIGN.md / SPEC_FULL.md §B — no murmur3 implementation
// exists anywhere in the retrieval pack).
const (
	hashKey0 = 0x5151c2a46fd064df
	hashKey1 = 0x93cce76bb9f2e01f
)

// Hash64 is the seeded hash used throughout the storage and execution
// layers for bucketing.
func Hash64(b []byte) uint64 {
	return siphash.Hash(hashKey0, hashKey1, b)
}

const bucketEntrySize = 16 // siphash(8) + id(8)
const bucketHeaderSize = 8 // count(4) + localDepth(4)
const bucketCapacity = (UsablePageSize - bucketHeaderSize) / bucketEntrySize

type bucketEntry struct {
	hash uint64
	id   uint64
}

// ExtendibleHash maps interned byte strings to 64-bit object identifiers
// via directory doubling. The directory (bucket-page-number per slot, plus
// each bucket's local depth) is kept in memory for speed and persisted to
// the directory file in full after every split; bucket contents live in
// buffer-pool-managed pages.
type ExtendibleHash struct {
	mu          sync.Mutex
	dirFile     *File
	bucketFile  *File
	pool        *BufferPool
	globalDepth uint32
	directory   []uint32 // slot -> bucket page number
	localDepth  []uint32 // bucket page number -> local depth (indexed by allocation order)
	numBuckets  uint32
}

// OpenExtendibleHash opens or creates the directory+bucket pair of files.
func OpenExtendibleHash(fm *FileManager, pool *BufferPool, dirName, bucketName string) (*ExtendibleHash, error) {
	dirFile, err := fm.Open(dirName)
	if err != nil {
		return nil, err
	}
	bucketFile, err := fm.Open(bucketName)
	if err != nil {
		return nil, err
	}
	h := &ExtendibleHash{dirFile: dirFile, bucketFile: bucketFile, pool: pool}
	if dirFile.NumPages() == 0 {
		if err := h.initEmpty(); err != nil {
			return nil, err
		}
	} else {
		if err := h.load(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *ExtendibleHash) initEmpty() error {
	h.globalDepth = 1
	h.directory = []uint32{0, 1}
	h.localDepth = []uint32{1, 1}
	h.numBuckets = 2
	for i := uint32(0); i < 2; i++ {
		if _, err := h.allocBucketPage(1); err != nil {
			return err
		}
	}
	return h.flushDirectory()
}

func (h *ExtendibleHash) allocBucketPage(localDepth uint32) (uint32, error) {
	p, err := h.pool.AppendPage(h.bucketFile)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(p.Bytes()[0:4], 0)
	binary.LittleEndian.PutUint32(p.Bytes()[4:8], localDepth)
	p.MarkDirty()
	pno := p.PageNumber()
	h.pool.Unpin(p)
	return pno, nil
}

func (h *ExtendibleHash) slot(hash uint64) uint32 {
	mask := uint64(1)<<h.globalDepth - 1
	return uint32(hash & mask)
}

func (h *ExtendibleHash) readBucket(pno uint32) (count uint32, depth uint32, entries []bucketEntry, page *Page, err error) {
	page, err = h.pool.GetPage(h.bucketFile, pno)
	if err != nil {
		return
	}
	b := page.Bytes()
	count = binary.LittleEndian.Uint32(b[0:4])
	depth = binary.LittleEndian.Uint32(b[4:8])
	entries = make([]bucketEntry, count)
	for i := uint32(0); i < count; i++ {
		off := bucketHeaderSize + int(i)*bucketEntrySize
		entries[i] = bucketEntry{
			hash: binary.LittleEndian.Uint64(b[off : off+8]),
			id:   binary.LittleEndian.Uint64(b[off+8 : off+16]),
		}
	}
	return
}

func writeBucket(page *Page, depth uint32, entries []bucketEntry) {
	b := page.Bytes()
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(entries)))
	binary.LittleEndian.PutUint32(b[4:8], depth)
	for i, e := range entries {
		off := bucketHeaderSize + i*bucketEntrySize
		binary.LittleEndian.PutUint64(b[off:off+8], e.hash)
		binary.LittleEndian.PutUint64(b[off+8:off+16], e.id)
	}
	page.MarkDirty()
}

// Lookup returns the id for key if present.
func (h *ExtendibleHash) Lookup(key []byte) (id uint64, found bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hv := Hash64(key)
	pno := h.directory[h.slot(hv)]
	_, _, entries, page, err := h.readBucket(pno)
	if err != nil {
		return 0, false, err
	}
	defer h.pool.Unpin(page)
	for _, e := range entries {
		if e.hash == hv {
			return e.id, true, nil
		}
	}
	return 0, false, nil
}

// Insert adds key -> id, splitting and doubling the directory as needed.
func (h *ExtendibleHash) Insert(key []byte, id uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	hv := Hash64(key)
	return h.insertHash(hv, id)
}

func (h *ExtendibleHash) insertHash(hv, id uint64) error {
	slotIdx := h.slot(hv)
	pno := h.directory[slotIdx]
	_, depth, entries, page, err := h.readBucket(pno)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.hash == hv {
			h.pool.Unpin(page)
			return nil // already interned
		}
	}
	if len(entries) < bucketCapacity {
		entries = append(entries, bucketEntry{hash: hv, id: id})
		writeBucket(page, depth, entries)
		h.pool.Unpin(page)
		return nil
	}
	h.pool.Unpin(page)
	if err := h.split(pno, slotIdx, depth, entries); err != nil {
		return err
	}
	return h.insertHash(hv, id)
}

func (h *ExtendibleHash) split(pno uint32, slotIdx uint32, depth uint32, entries []bucketEntry) error {
	if depth == h.globalDepth {
		h.doubleDirectory()
	}
	newDepth := depth + 1
	newPno, err := h.allocBucketPage(newDepth)
	if err != nil {
		return err
	}
	oldPage, err := h.pool.GetPage(h.bucketFile, pno)
	if err != nil {
		return err
	}
	newPage, err := h.pool.GetPage(h.bucketFile, newPno)
	if err != nil {
		h.pool.Unpin(oldPage)
		return err
	}
	bit := uint64(1) << depth
	var kept, moved []bucketEntry
	for _, e := range entries {
		if e.hash&bit == 0 {
			kept = append(kept, e)
		} else {
			moved = append(moved, e)
		}
	}
	writeBucket(oldPage, newDepth, kept)
	writeBucket(newPage, newDepth, moved)
	h.pool.Unpin(oldPage)
	h.pool.Unpin(newPage)

	// repoint every directory slot that mapped to pno and has its new bit
	// set over to newPno.
	mask := uint64(1)<<h.globalDepth - 1
	for s := range h.directory {
		if h.directory[s] != pno {
			continue
		}
		if uint64(s)&mask&bit != 0 {
			h.directory[s] = newPno
		}
	}
	return h.flushDirectory()
}

func (h *ExtendibleHash) doubleDirectory() {
	old := h.directory
	h.directory = make([]uint32, len(old)*2)
	copy(h.directory, old)
	copy(h.directory[len(old):], old)
	h.globalDepth++
}

func (h *ExtendibleHash) flushDirectory() error {
	entriesPerPage := UsablePageSize / 4
	need := (len(h.directory) + entriesPerPage - 1) / entriesPerPage
	if need == 0 {
		need = 1
	}
	for uint32(need) > h.dirFile.NumPages() {
		if _, err := h.pool.AppendPage(h.dirFile); err != nil {
			return err
		}
	}
	idx := 0
	for pno := 0; pno < need; pno++ {
		p, err := h.pool.GetPage(h.dirFile, uint32(pno))
		if err != nil {
			return err
		}
		b := p.Bytes()
		if pno == 0 {
			binary.LittleEndian.PutUint32(b[0:4], h.globalDepth)
			binary.LittleEndian.PutUint32(b[4:8], uint32(len(h.directory)))
			idx = 0
			for off := 8; off+4 <= UsablePageSize && idx < len(h.directory); off += 4 {
				binary.LittleEndian.PutUint32(b[off:off+4], h.directory[idx])
				idx++
			}
		} else {
			for off := 0; off+4 <= UsablePageSize && idx < len(h.directory); off += 4 {
				binary.LittleEndian.PutUint32(b[off:off+4], h.directory[idx])
				idx++
			}
		}
		p.MarkDirty()
		h.pool.Unpin(p)
	}
	return nil
}

func (h *ExtendibleHash) load() error {
	p0, err := h.pool.GetPage(h.dirFile, 0)
	if err != nil {
		return err
	}
	b := p0.Bytes()
	h.globalDepth = binary.LittleEndian.Uint32(b[0:4])
	total := int(binary.LittleEndian.Uint32(b[4:8]))
	h.directory = make([]uint32, total)
	idx := 0
	for off := 8; off+4 <= UsablePageSize && idx < total; off += 4 {
		h.directory[idx] = binary.LittleEndian.Uint32(b[off : off+4])
		idx++
	}
	h.pool.Unpin(p0)
	npgs := h.dirFile.NumPages()
	for pno := uint32(1); pno < npgs && idx < total; pno++ {
		p, err := h.pool.GetPage(h.dirFile, pno)
		if err != nil {
			return err
		}
		b := p.Bytes()
		for off := 0; off+4 <= UsablePageSize && idx < total; off += 4 {
			h.directory[idx] = binary.LittleEndian.Uint32(b[off : off+4])
			idx++
		}
		h.pool.Unpin(p)
	}
	maxPno := uint32(0)
	for _, pno := range h.directory {
		if pno > maxPno {
			maxPno = pno
		}
	}
	h.numBuckets = maxPno + 1
	return nil
}

// Intern returns the not-found sentinel id (0 with a "found" bool of
// false) when insert is false and the string is absent; otherwise it
// inserts (if needed) and returns the id stored for key. The caller is
// responsible for allocating ids (e.g. object-file offsets) before
// calling Insert directly; Intern is the convenience wrapper tying lookup
// and on-demand insert together for string interning.
func (h *ExtendibleHash) Intern(key []byte, insert bool, alloc func() (uint64, error)) (id uint64, found bool, err error) {
	id, found, err = h.Lookup(key)
	if err != nil || found || !insert {
		return
	}
	id, err = alloc()
	if err != nil {
		return 0, false, err
	}
	if err = h.Insert(key, id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}
