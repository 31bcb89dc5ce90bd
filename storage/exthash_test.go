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
	"fmt"
	"testing"
)

func newTestHash(t *testing.T) *ExtendibleHash {
	t.Helper()
	dir := t.TempDir()
	fm, err := NewFileManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	pool := NewBufferPool(64, nil)
	h, err := OpenExtendibleHash(fm, pool, "hash.dir", "hash.buckets")
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestExtendibleHashInsertLookup(t *testing.T) {
	h := newTestHash(t)
	for i := 0; i < 2000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		if err := h.Insert(key, uint64(i)); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		id, found, err := h.Lookup(key)
		if err != nil {
			t.Fatal(err)
		}
		if !found || id != uint64(i) {
			t.Fatalf("Lookup(%q) = %d, %v; want %d, true", key, id, found, i)
		}
	}
	if _, found, err := h.Lookup([]byte("absent")); err != nil || found {
		t.Fatalf("expected absent key to be not found, got found=%v err=%v", found, err)
	}
}

func TestExtendibleHashIntern(t *testing.T) {
	h := newTestHash(t)
	next := uint64(1)
	alloc := func() (uint64, error) {
		id := next
		next++
		return id, nil
	}
	id1, found, err := h.Intern([]byte("hello"), true, alloc)
	if err != nil || !found {
		t.Fatalf("Intern insert: %v %v", found, err)
	}
	id2, found, err := h.Intern([]byte("hello"), true, alloc)
	if err != nil || !found || id1 != id2 {
		t.Fatalf("Intern idempotent: id1=%d id2=%d found=%v err=%v", id1, id2, found, err)
	}
	_, found, err = h.Intern([]byte("world"), false, alloc)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected not-found for absent key with insert=false")
	}
}
