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

// Package storage implements the paged-file substrate: a pinning buffer
// pool over fixed-size pages, an append-only object file for long strings,
// an extendible hash directory for string interning, an N-column B+ tree
// index, a fixed-width random-access table, and the on-disk catalog.
package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sys/unix"
)

// PageSize is the canonical page size used by every paged file. It must be
// a power of two.
const PageSize = 4096

// checksumSize is the number of trailing bytes of each page reserved for a
// truncated blake2b-256 checksum; the remaining bytes are usable payload.
const checksumSize = 8

// UsablePageSize is the number of payload bytes available per page once the
// trailing checksum is carved out.
const UsablePageSize = PageSize - checksumSize

// Logger is the ambient diagnostic sink threaded through the storage layer.
// The zero value logs nothing.
type Logger func(format string, args ...any)

func (l Logger) logf(format string, args ...any) {
	if l != nil {
		l(format, args...)
	}
}

// ErrCorrupt is returned when a page's checksum does not match its content,
// i.e. the spec's "Logic (inconsistent page metadata)" error kind.
var ErrCorrupt = errors.New("storage: page checksum mismatch")

// ErrNoFreeFrame is returned when the buffer pool cannot find any
// unpinned frame to evict; the spec calls this a fatal error.
var ErrNoFreeFrame = errors.New("storage: no unpinned frame available for eviction")

// File is a single paged file managed by a FileManager.
type File struct {
	id   int
	name string
	f    *os.File
	mu   sync.Mutex // serializes length changes
	npgs uint32
}

// FileManager opens and creates the paged files that make up a database
// directory.
type FileManager struct {
	dir   string
	mu    sync.Mutex
	files map[string]*File
	next  int
	log   Logger
}

// NewFileManager opens (creating if necessary) a database directory.
func NewFileManager(dir string, log Logger) (*FileManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileManager{dir: dir, files: make(map[string]*File), log: log}, nil
}

// Open returns the named paged file, creating it on first use.
func (fm *FileManager) Open(name string) (*File, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if f, ok := fm.files[name]; ok {
		return f, nil
	}
	path := filepath.Join(fm.dir, name)
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := osf.Stat()
	if err != nil {
		osf.Close()
		return nil, err
	}
	npgs := uint32(fi.Size() / PageSize)
	f := &File{id: fm.next, name: name, f: osf, npgs: npgs}
	fm.next++
	fm.files[name] = f
	return f, nil
}

// Remove evicts all of this file's pages from every buffer pool that is
// told about it (the caller must also call pool.ForgetFile) and deletes
// the backing file.
func (fm *FileManager) Remove(name string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	f, ok := fm.files[name]
	if !ok {
		return nil
	}
	delete(fm.files, name)
	f.f.Close()
	return os.Remove(filepath.Join(fm.dir, name))
}

// NumPages returns the current page count of the file.
func (f *File) NumPages() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.npgs
}

func (f *File) readPage(pno uint32, buf []byte) error {
	_, err := f.f.ReadAt(buf, int64(pno)*PageSize)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (f *File) writePage(pno uint32, buf []byte) error {
	_, err := f.f.WriteAt(buf, int64(pno)*PageSize)
	return err
}

// growBy appends n zero-initialized pages and best-effort preallocates the
// space with Fallocate, following the teacher's platform-conditional use of
// golang.org/x/sys for file-growth hints; Fallocate failures are ignored
// since the Truncate below still establishes the pages.
func (f *File) growBy(n uint32) (first uint32, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	first = f.npgs
	newSize := int64(first+n) * PageSize
	_ = unix.Fallocate(int(f.f.Fd()), 0, int64(first)*PageSize, int64(n)*PageSize)
	if err := f.f.Truncate(newSize); err != nil {
		return 0, err
	}
	f.npgs += n
	return first, nil
}

// Page is a pinned, buffer-pool-resident page.
type Page struct {
	file  *File
	pno   uint32
	data  []byte // full PageSize bytes, data[:UsablePageSize] is payload
	dirty bool
}

// Bytes returns the usable payload of the page. Mutations are visible to
// other pinners of the same frame and are written back on flush once the
// page is marked dirty via MarkDirty.
func (p *Page) Bytes() []byte { return p.data[:UsablePageSize] }

// MarkDirty flags the page for flush.
func (p *Page) MarkDirty() { p.dirty = true }

// PageNumber returns this page's page number within its file.
func (p *Page) PageNumber() uint32 { return p.pno }

func computeChecksum(data []byte) [checksumSize]byte {
	full := blake2b.Sum256(data[:UsablePageSize])
	var out [checksumSize]byte
	copy(out[:], full[:checksumSize])
	return out
}

func verifyChecksum(data []byte) bool {
	want := computeChecksum(data)
	return string(want[:]) == string(data[UsablePageSize:PageSize])
}

func stampChecksum(data []byte) {
	sum := computeChecksum(data)
	copy(data[UsablePageSize:PageSize], sum[:])
}

// frameKey identifies a buffer pool slot by file and page number.
type frameKey struct {
	fileID int
	pno    uint32
}

type frame struct {
	key   frameKey
	file  *File
	data  []byte
	pin   int32
	dirty bool
	ref   bool
	valid bool
}

// BufferPool is a fixed-size pinning buffer pool with clock-sweep
// eviction, following the pin-count/dirty-flag/eviction shape used by
// simple pager implementations (see DESIGN.md).
type BufferPool struct {
	mu     sync.Mutex
	frames []frame
	index  map[frameKey]int
	clock  int
	log    Logger
}

// NewBufferPool creates a pool with nframes page slots.
func NewBufferPool(nframes int, log Logger) *BufferPool {
	return &BufferPool{
		frames: make([]frame, nframes),
		index:  make(map[frameKey]int, nframes),
		log:    log,
	}
}

// GetPage pins and returns the slot holding (file, pno), reading from disk
// on miss.
func (bp *BufferPool) GetPage(file *File, pno uint32) (*Page, error) {
	bp.mu.Lock()
	key := frameKey{file.id, pno}
	if idx, ok := bp.index[key]; ok {
		fr := &bp.frames[idx]
		fr.pin++
		fr.ref = true
		bp.mu.Unlock()
		return &Page{file: file, pno: pno, data: fr.data}, nil
	}
	idx, err := bp.evictLocked()
	if err != nil {
		bp.mu.Unlock()
		return nil, err
	}
	fr := &bp.frames[idx]
	if fr.data == nil {
		fr.data = make([]byte, PageSize)
	}
	bp.mu.Unlock()

	// I/O proceeds unlocked once the slot is claimed; the slot is not yet
	// indexed so no other caller can observe it mid-read.
	if err := file.readPage(pno, fr.data); err != nil {
		bp.mu.Lock()
		fr.valid = false
		bp.mu.Unlock()
		return nil, err
	}
	if isZero(fr.data) {
		// freshly-allocated page: no checksum to verify yet.
	} else if !verifyChecksum(fr.data) {
		bp.log.logf("storage: checksum mismatch file=%s page=%d", file.name, pno)
		return nil, fmt.Errorf("%w: file=%s page=%d", ErrCorrupt, file.name, pno)
	}

	bp.mu.Lock()
	fr.key = key
	fr.file = file
	fr.pin = 1
	fr.dirty = false
	fr.ref = true
	fr.valid = true
	bp.index[key] = idx
	bp.mu.Unlock()
	return &Page{file: file, pno: pno, data: fr.data}, nil
}

// AppendPage allocates the next sequential page (zero-initialized) and
// returns it pinned.
func (bp *BufferPool) AppendPage(file *File) (*Page, error) {
	pno, err := file.growBy(1)
	if err != nil {
		return nil, err
	}
	return bp.GetPage(file, pno)
}

// Unpin decrements the pin count of the page's frame; reaching zero does
// not evict.
func (bp *BufferPool) Unpin(p *Page) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	idx, ok := bp.index[frameKey{p.file.id, p.pno}]
	if !ok {
		return
	}
	fr := &bp.frames[idx]
	if p.dirty {
		fr.dirty = true
	}
	if fr.pin > 0 {
		fr.pin--
	}
}

// evictLocked finds a free or evictable slot. Caller holds bp.mu.
func (bp *BufferPool) evictLocked() (int, error) {
	for i := range bp.frames {
		if !bp.frames[i].valid {
			return i, nil
		}
	}
	n := len(bp.frames)
	for tries := 0; tries < 2*n+1; tries++ {
		idx := bp.clock
		bp.clock = (bp.clock + 1) % n
		fr := &bp.frames[idx]
		if fr.pin != 0 {
			continue
		}
		if fr.ref {
			fr.ref = false
			continue
		}
		if fr.dirty {
			if err := bp.flushFrameLocked(fr); err != nil {
				return 0, err
			}
		}
		delete(bp.index, fr.key)
		fr.valid = false
		return idx, nil
	}
	return 0, ErrNoFreeFrame
}

func (bp *BufferPool) flushFrameLocked(fr *frame) error {
	stampChecksum(fr.data)
	if err := fr.file.writePage(fr.key.pno, fr.data); err != nil {
		return err
	}
	fr.dirty = false
	return nil
}

// Flush writes every dirty page and clears their dirty flags.
func (bp *BufferPool) Flush() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for i := range bp.frames {
		fr := &bp.frames[i]
		if fr.valid && fr.dirty {
			if err := bp.flushFrameLocked(fr); err != nil {
				return err
			}
		}
	}
	return nil
}

// ForgetFile evicts all of file's pages from the pool without flushing
// (callers pair it with FileManager.Remove, which does not call it).
func (bp *BufferPool) ForgetFile(file *File) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for i := range bp.frames {
		fr := &bp.frames[i]
		if fr.valid && fr.key.fileID == file.id {
			delete(bp.index, fr.key)
			fr.valid = false
			fr.dirty = false
		}
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// randomName returns a short random hex string, used for scratch-file
// naming when a caller doesn't want uuid's dash formatting (kept separate
// from the google/uuid-based naming in exec so storage has no dependency
// on exec's scratch-space policy).
func randomName() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%x", b[:])
}
