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
	"fmt"
)

// noChild marks an absent child pointer / next-leaf pointer.
const noChild = 0xFFFFFFFF

// BPlusTree is a generic N-column B+ tree: every leaf record is N uint64
// columns, directory pages hold up to mDir separator keys (each N uint64
// columns) and mDir+1 child pointers. Directory and leaf pages live in
// separate files; page 0 of the directory file is always the root, and
// its reserved header field records the tree's current height so callers
// never need to track it themselves across process restarts.
type BPlusTree struct {
	n          int
	dirFile    *File
	leafFile   *File
	pool       *BufferPool
	mDir       int
	mLeaf      int
	keyBytes   int
	dirRecSize int
}

// NewBPlusTree opens (initializing if empty) an N-column B+ tree index
// over the given directory and leaf files.
func NewBPlusTree(fm *FileManager, pool *BufferPool, n int, dirName, leafName string) (*BPlusTree, error) {
	dirFile, err := fm.Open(dirName)
	if err != nil {
		return nil, err
	}
	leafFile, err := fm.Open(leafName)
	if err != nil {
		return nil, err
	}
	keyBytes := n * 8
	// directory capacity: header(8) + mDir*keyBytes + (mDir+1)*4 <= UsablePageSize
	mDir := (UsablePageSize - 8 - 4) / (keyBytes + 4)
	if mDir < 2 {
		mDir = 2
	}
	mLeaf := (UsablePageSize - 8) / keyBytes
	if mLeaf < 2 {
		mLeaf = 2
	}
	t := &BPlusTree{
		n: n, dirFile: dirFile, leafFile: leafFile, pool: pool,
		mDir: mDir, mLeaf: mLeaf, keyBytes: keyBytes,
	}
	if dirFile.NumPages() == 0 {
		if err := t.initEmpty(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *BPlusTree) initEmpty() error {
	leaf, err := t.pool.AppendPage(t.leafFile)
	if err != nil {
		return err
	}
	t.writeLeaf(leaf, nil, noChild)
	t.pool.Unpin(leaf)

	root, err := t.pool.AppendPage(t.dirFile)
	if err != nil {
		return err
	}
	t.writeDir(root, 1, nil, []uint32{0})
	t.pool.Unpin(root)
	return nil
}

// -- page encode/decode --

type dirPage struct {
	height   uint32
	keys     [][]uint64
	children []uint32
}

func (t *BPlusTree) readDir(pno uint32) (*dirPage, *Page, error) {
	p, err := t.pool.GetPage(t.dirFile, pno)
	if err != nil {
		return nil, nil, err
	}
	b := p.Bytes()
	count := binary.LittleEndian.Uint32(b[0:4])
	height := binary.LittleEndian.Uint32(b[4:8])
	dp := &dirPage{height: height}
	off := 8
	dp.keys = make([][]uint64, count)
	dp.children = make([]uint32, count+1)
	for i := uint32(0); i < count; i++ {
		key := make([]uint64, t.n)
		for c := 0; c < t.n; c++ {
			key[c] = binary.LittleEndian.Uint64(b[off : off+8])
			off += 8
		}
		dp.keys[i] = key
		dp.children[i] = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}
	dp.children[count] = binary.LittleEndian.Uint32(b[off : off+4])
	return dp, p, nil
}

func (t *BPlusTree) writeDir(p *Page, height uint32, keys [][]uint64, children []uint32) {
	b := p.Bytes()
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(keys)))
	binary.LittleEndian.PutUint32(b[4:8], height)
	off := 8
	for i, key := range keys {
		for _, c := range key {
			binary.LittleEndian.PutUint64(b[off:off+8], c)
			off += 8
		}
		binary.LittleEndian.PutUint32(b[off:off+4], children[i])
		off += 4
	}
	binary.LittleEndian.PutUint32(b[off:off+4], children[len(keys)])
	p.MarkDirty()
}

type leafPage struct {
	records  [][]uint64
	nextLeaf uint32
}

func (t *BPlusTree) readLeaf(pno uint32) (*leafPage, *Page, error) {
	p, err := t.pool.GetPage(t.leafFile, pno)
	if err != nil {
		return nil, nil, err
	}
	b := p.Bytes()
	count := binary.LittleEndian.Uint32(b[0:4])
	next := binary.LittleEndian.Uint32(b[4:8])
	lp := &leafPage{nextLeaf: next, records: make([][]uint64, count)}
	off := 8
	for i := uint32(0); i < count; i++ {
		rec := make([]uint64, t.n)
		for c := 0; c < t.n; c++ {
			rec[c] = binary.LittleEndian.Uint64(b[off : off+8])
			off += 8
		}
		lp.records[i] = rec
	}
	return lp, p, nil
}

func (t *BPlusTree) writeLeaf(p *Page, records [][]uint64, next uint32) {
	b := p.Bytes()
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(records)))
	binary.LittleEndian.PutUint32(b[4:8], next)
	off := 8
	for _, rec := range records {
		for _, c := range rec {
			binary.LittleEndian.PutUint64(b[off:off+8], c)
			off += 8
		}
	}
	p.MarkDirty()
}

// -- key helpers --

func compareKeys(a, b []uint64) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// childIndex returns the child slot to descend into for key search,
// treating separators[i] as the smallest key present in children[i+1].
func childIndex(seps [][]uint64, search []uint64) int {
	lo, hi := 0, len(seps)
	for lo < hi {
		mid := (lo + hi) / 2
		if compareKeys(search, seps[mid]) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Insert adds rec (a multiset insert: duplicate records are allowed and
// stored as distinct entries, per spec §8 property 2).
func (t *BPlusTree) Insert(rec []uint64) error {
	if len(rec) != t.n {
		return fmt.Errorf("bptree: record has %d columns, want %d", len(rec), t.n)
	}
	root, rootPage, err := t.readDir(0)
	if err != nil {
		return err
	}
	if len(root.keys) == t.mDir {
		if err := t.splitRoot(root, rootPage); err != nil {
			return err
		}
		root, rootPage, err = t.readDir(0)
		if err != nil {
			return err
		}
	}
	err = t.insertNonFull(0, root, rootPage, rec)
	return err
}

// splitRoot grows the tree by one level: the current root's content is
// copied to a fresh directory page, which becomes the sole child of a
// brand-new root written in place at page 0 (kept fixed per spec §4.4).
func (t *BPlusTree) splitRoot(root *dirPage, rootPage *Page) error {
	copyPage, err := t.pool.AppendPage(t.dirFile)
	if err != nil {
		return err
	}
	t.writeDir(copyPage, root.height, root.keys, root.children)
	copyPno := copyPage.PageNumber()
	t.pool.Unpin(copyPage)
	t.pool.Unpin(rootPage)

	copyDp, copyP, err := t.readDir(copyPno)
	if err != nil {
		return err
	}
	midKey, rightPno, err := t.splitDirNode(copyDp, copyP, root.height)
	if err != nil {
		return err
	}
	newRootP, err := t.pool.GetPage(t.dirFile, 0)
	if err != nil {
		return err
	}
	t.writeDir(newRootP, root.height+1, [][]uint64{midKey}, []uint32{copyPno, rightPno})
	t.pool.Unpin(newRootP)
	return nil
}

// splitDirNode splits the (full) directory page represented by dp/page in
// place: the left half stays at dp's page number, the right half is
// written to a newly allocated page, and the middle separator key is
// returned along with the new page's number for the caller to insert into
// the parent.
func (t *BPlusTree) splitDirNode(dp *dirPage, page *Page, height uint32) (midKey []uint64, rightPno uint32, err error) {
	mid := len(dp.keys) / 2
	midKey = dp.keys[mid]
	leftKeys, rightKeys := dp.keys[:mid], dp.keys[mid+1:]
	leftChildren, rightChildren := dp.children[:mid+1], dp.children[mid+1:]

	rightPage, err := t.pool.AppendPage(t.dirFile)
	if err != nil {
		return nil, 0, err
	}
	t.writeDir(rightPage, height, rightKeys, rightChildren)
	rightPno = rightPage.PageNumber()
	t.pool.Unpin(rightPage)

	t.writeDir(page, height, leftKeys, leftChildren)
	t.pool.Unpin(page)
	return midKey, rightPno, nil
}

// splitLeafNode splits a full leaf, returning the separator key (the
// first key of the new right leaf) and the new leaf's page number.
func (t *BPlusTree) splitLeafNode(lp *leafPage, page *Page, pno uint32) (sepKey []uint64, rightPno uint32, err error) {
	mid := len(lp.records) / 2
	leftRecs, rightRecs := lp.records[:mid], lp.records[mid:]

	rightPage, err := t.pool.AppendPage(t.leafFile)
	if err != nil {
		return nil, 0, err
	}
	rightPno = rightPage.PageNumber()
	t.writeLeaf(rightPage, rightRecs, lp.nextLeaf)
	t.pool.Unpin(rightPage)

	t.writeLeaf(page, leftRecs, rightPno)
	t.pool.Unpin(page)
	return rightRecs[0], rightPno, nil
}

func insertKeyChild(seps [][]uint64, children []uint32, idx int, key []uint64, child uint32) ([][]uint64, []uint32) {
	newSeps := make([][]uint64, 0, len(seps)+1)
	newSeps = append(newSeps, seps[:idx]...)
	newSeps = append(newSeps, key)
	newSeps = append(newSeps, seps[idx:]...)

	newChildren := make([]uint32, 0, len(children)+1)
	newChildren = append(newChildren, children[:idx+1]...)
	newChildren = append(newChildren, child)
	newChildren = append(newChildren, children[idx+1:]...)
	return newSeps, newChildren
}

func insertRecordSorted(recs [][]uint64, rec []uint64) [][]uint64 {
	idx := 0
	for idx < len(recs) && compareKeys(recs[idx], rec) <= 0 {
		idx++
	}
	out := make([][]uint64, 0, len(recs)+1)
	out = append(out, recs[:idx]...)
	out = append(out, rec)
	out = append(out, recs[idx:]...)
	return out
}

// insertNonFull inserts rec into the subtree rooted at pno/dp, assuming dp
// itself is guaranteed to have room for one more separator (pre-split by
// the caller, or the root just split above).
func (t *BPlusTree) insertNonFull(pno uint32, dp *dirPage, page *Page, rec []uint64) error {
	idx := childIndex(dp.keys, rec)
	if dp.height == 1 {
		leafPno := dp.children[idx]
		lp, lpage, err := t.readLeaf(leafPno)
		if err != nil {
			t.pool.Unpin(page)
			return err
		}
		if len(lp.records) == t.mLeaf {
			sepKey, rightPno, err := t.splitLeafNode(lp, lpage, leafPno)
			if err != nil {
				t.pool.Unpin(page)
				return err
			}
			newSeps, newChildren := insertKeyChild(dp.keys, dp.children, idx, sepKey, rightPno)
			t.writeDir(page, dp.height, newSeps, newChildren)
			dp.keys, dp.children = newSeps, newChildren
			if compareKeys(rec, sepKey) >= 0 {
				idx++
			}
			leafPno = dp.children[idx]
			lp, lpage, err = t.readLeaf(leafPno)
			if err != nil {
				t.pool.Unpin(page)
				return err
			}
		}
		lp.records = insertRecordSorted(lp.records, rec)
		t.writeLeaf(lpage, lp.records, lp.nextLeaf)
		t.pool.Unpin(lpage)
		t.pool.Unpin(page)
		return nil
	}

	childPno := dp.children[idx]
	cdp, cpage, err := t.readDir(childPno)
	if err != nil {
		t.pool.Unpin(page)
		return err
	}
	if len(cdp.keys) == t.mDir {
		midKey, rightPno, err := t.splitDirNode(cdp, cpage, cdp.height)
		if err != nil {
			t.pool.Unpin(page)
			return err
		}
		newSeps, newChildren := insertKeyChild(dp.keys, dp.children, idx, midKey, rightPno)
		t.writeDir(page, dp.height, newSeps, newChildren)
		dp.keys, dp.children = newSeps, newChildren
		if compareKeys(rec, midKey) >= 0 {
			idx++
		}
		childPno = dp.children[idx]
		cdp, cpage, err = t.readDir(childPno)
		if err != nil {
			t.pool.Unpin(page)
			return err
		}
	}
	t.pool.Unpin(page)
	return t.insertNonFull(childPno, cdp, cpage, rec)
}

// RangeIter streams records in key order within [lo, hi] (inclusive),
// following leaf sibling pointers. The caller must call Close when done.
type RangeIter struct {
	t       *BPlusTree
	hi      []uint64
	records [][]uint64
	idx     int
	nextPno uint32
	page    *Page
	done    bool
}

// GetRange locates the first leaf key >= lo and streams in ascending key
// order until the first key > hi.
func (t *BPlusTree) GetRange(lo, hi []uint64) (*RangeIter, error) {
	pno := uint32(0)
	dp, page, err := t.readDir(pno)
	if err != nil {
		return nil, err
	}
	for dp.height > 1 {
		idx := childIndex(dp.keys, lo)
		childPno := dp.children[idx]
		t.pool.Unpin(page)
		dp, page, err = t.readDir(childPno)
		if err != nil {
			return nil, err
		}
	}
	idx := childIndex(dp.keys, lo)
	leafPno := dp.children[idx]
	t.pool.Unpin(page)

	lp, lpage, err := t.readLeaf(leafPno)
	if err != nil {
		return nil, err
	}
	start := 0
	for start < len(lp.records) && compareKeys(lp.records[start], lo) < 0 {
		start++
	}
	it := &RangeIter{t: t, hi: hi, records: lp.records[start:], nextPno: lp.nextLeaf, page: lpage}
	return it, nil
}

// Next advances the iterator and returns false when exhausted. The
// returned slice is a borrowed reference valid only until the next call
// to Next or Close.
func (it *RangeIter) Next() ([]uint64, bool, error) {
	if it.done {
		return nil, false, nil
	}
	for it.idx >= len(it.records) {
		if it.nextPno == noChild {
			it.done = true
			if it.page != nil {
				it.t.pool.Unpin(it.page)
				it.page = nil
			}
			return nil, false, nil
		}
		t := it.t
		if it.page != nil {
			t.pool.Unpin(it.page)
		}
		lp, lpage, err := t.readLeaf(it.nextPno)
		if err != nil {
			return nil, false, err
		}
		it.records = lp.records
		it.nextPno = lp.nextLeaf
		it.page = lpage
		it.idx = 0
	}
	rec := it.records[it.idx]
	if compareKeys(rec, it.hi) > 0 {
		it.done = true
		it.t.pool.Unpin(it.page)
		it.page = nil
		return nil, false, nil
	}
	it.idx++
	return rec, true, nil
}

// Close releases any pinned page the iterator is holding; safe to call
// after exhaustion or on early abandonment (spec §5 "Cancellation").
func (it *RangeIter) Close() {
	if it.page != nil {
		it.t.pool.Unpin(it.page)
		it.page = nil
	}
	it.done = true
}
