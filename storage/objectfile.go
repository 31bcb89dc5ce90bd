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
	"os"
)

// ObjectFile is the append-only byte-addressed store for long strings and
// IRIs that don't fit the object identifier's inline payload. Each record
// is a uint32 length prefix followed by the raw bytes.
type ObjectFile struct {
	f      *os.File
	offset uint64
}

// OpenObjectFile opens (creating if necessary) the append-only object file
// at path.
func OpenObjectFile(path string) (*ObjectFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ObjectFile{f: f, offset: uint64(fi.Size())}, nil
}

// Append writes b to the end of the file and returns the offset at which
// it was written (the value stored as the payload of an extern-kind
// object identifier).
func (o *ObjectFile) Append(b []byte) (uint64, error) {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	off := o.offset
	if _, err := o.f.WriteAt(hdr[:], int64(off)); err != nil {
		return 0, err
	}
	if _, err := o.f.WriteAt(b, int64(off)+4); err != nil {
		return 0, err
	}
	o.offset += uint64(4 + len(b))
	return off, nil
}

// Read returns the bytes previously written with Append at offset off.
func (o *ObjectFile) Read(off uint64) ([]byte, error) {
	var hdr [4]byte
	if _, err := o.f.ReadAt(hdr[:], int64(off)); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := o.f.ReadAt(buf, int64(off)+4); err != nil {
			return nil, fmt.Errorf("objectfile: read at %d: %w", off, err)
		}
	}
	return buf, nil
}

// Close closes the underlying file.
func (o *ObjectFile) Close() error { return o.f.Close() }

// Sync flushes the append-only file to stable storage; readers only ever
// see a stable prefix (spec §5, "Shared-resource policy").
func (o *ObjectFile) Sync() error { return o.f.Sync() }
