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
	"os"
	"path/filepath"
)

// Store bundles every on-disk structure that makes up one database
// directory, per spec §6's "On-disk layout": the buffer pool and file
// manager, the object file, the catalog, and the index trees edges,
// labels, and properties are stored in (spec §3, "stored bidirectionally"
// / "stored six ways" — this core keeps the two edge orders the planner
// and path search actually scan, rather than all six, see DESIGN.md).
type Store struct {
	dir string

	Files *FileManager
	Pool  *BufferPool
	Objects *ObjectFile
	Hash    *ExtendibleHash
	Catalog *Catalog

	// Edges, keyed (from, type, to, edge) and (to, type, from, edge) — the
	// two orders forward/inverse edge atoms and path expansion scan (spec
	// §4.7's "scan type→from→to→edge" / "to→type→from→edge").
	EdgesForward *BPlusTree
	EdgesInverse *BPlusTree
	EdgeTable    *RandomAccessTable

	// EdgesSelfLoop is the from=to self-reference side-index (spec §3's
	// "edges whose endpoints coincide"), keyed (type, node, edge); it
	// exists purely to accelerate the `?x -[:k]-> ?x` atom shape
	// (SPEC_FULL.md §C.2) instead of a forward scan plus an equality
	// filter. The other two side-indexes (from=type, to=type) are not
	// materialized — see DESIGN.md for why a post-scan equality filter
	// covers them instead.
	EdgesSelfLoop *BPlusTree

	// Labels, stored bidirectionally: label->node answers "every node
	// with label L"; node->label answers "does node N have label L".
	LabelsByLabel *BPlusTree
	LabelsByNode  *BPlusTree

	// Properties, stored bidirectionally: key->value->object answers
	// "every object with key=value" (S1's scan shape); object->key->value
	// answers "the value of key K on object O".
	PropsByKey    *BPlusTree
	PropsByObject *BPlusTree
}

// OpenStore opens (creating if necessary) every file that makes up the
// database directory dir.
func OpenStore(dir string, log Logger) (*Store, error) {
	fm, err := NewFileManager(dir, log)
	if err != nil {
		return nil, err
	}
	pool := NewBufferPool(256, log)

	objects, err := OpenObjectFile(filepath.Join(dir, "objects.dat"))
	if err != nil {
		return nil, err
	}
	hash, err := OpenExtendibleHash(fm, pool, "hash_id.dir", "hash_id.buckets")
	if err != nil {
		return nil, err
	}
	catalog, err := LoadCatalog(filepath.Join(dir, "catalog.dat"), "default")
	if err != nil {
		return nil, err
	}

	edgesFwd, err := NewBPlusTree(fm, pool, 4, "edges_fwd.dir", "edges_fwd.leaf")
	if err != nil {
		return nil, err
	}
	edgesInv, err := NewBPlusTree(fm, pool, 4, "edges_inv.dir", "edges_inv.leaf")
	if err != nil {
		return nil, err
	}
	edgeTable, err := NewRandomAccessTable(fm, pool, "edges.table", 3)
	if err != nil {
		return nil, err
	}
	edgesSelfLoop, err := NewBPlusTree(fm, pool, 3, "edges_selfloop.dir", "edges_selfloop.leaf")
	if err != nil {
		return nil, err
	}

	labelsByLabel, err := NewBPlusTree(fm, pool, 2, "labels_by_label.dir", "labels_by_label.leaf")
	if err != nil {
		return nil, err
	}
	labelsByNode, err := NewBPlusTree(fm, pool, 2, "labels_by_node.dir", "labels_by_node.leaf")
	if err != nil {
		return nil, err
	}

	propsByKey, err := NewBPlusTree(fm, pool, 3, "props_by_key.dir", "props_by_key.leaf")
	if err != nil {
		return nil, err
	}
	propsByObject, err := NewBPlusTree(fm, pool, 3, "props_by_object.dir", "props_by_object.leaf")
	if err != nil {
		return nil, err
	}

	scratch := filepath.Join(dir, "scratch")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, err
	}

	return &Store{
		dir:           dir,
		Files:         fm,
		Pool:          pool,
		Objects:       objects,
		Hash:          hash,
		Catalog:       catalog,
		EdgesForward:  edgesFwd,
		EdgesInverse:  edgesInv,
		EdgeTable:     edgeTable,
		EdgesSelfLoop: edgesSelfLoop,
		LabelsByLabel: labelsByLabel,
		LabelsByNode:  labelsByNode,
		PropsByKey:    propsByKey,
		PropsByObject: propsByObject,
	}, nil
}

// ScratchDir returns the directory external operators (OrderBy's run
// spilling) may use for temporary files, cleared independently of the
// database's own pages.
func (s *Store) ScratchDir() string { return filepath.Join(s.dir, "scratch") }

// CatalogPath returns the path Flush persists the catalog to.
func (s *Store) CatalogPath() string { return filepath.Join(s.dir, "catalog.dat") }

// InsertEdge records a new edge (from, to, typ) with a freshly assigned
// counter, writing all derived indexes and the catalog (spec §3 invariant
// 2: "all four forward indexes contain the corresponding 4-tuple").
func (s *Store) InsertEdge(from, to, typ uint64) (counter uint64, err error) {
	counter = s.Catalog.Edges + 1
	if err := s.EdgeTable.Put(counter, []uint64{from, to, typ}); err != nil {
		return 0, err
	}
	if err := s.EdgesForward.Insert([]uint64{from, typ, to, counter}); err != nil {
		return 0, err
	}
	if err := s.EdgesInverse.Insert([]uint64{to, typ, from, counter}); err != nil {
		return 0, err
	}
	if from == to {
		if err := s.EdgesSelfLoop.Insert([]uint64{typ, from, counter}); err != nil {
			return 0, err
		}
	}
	s.Catalog.RecordEdge(typ, from, to, typ)
	return counter, nil
}

// InsertLabel records node carrying labelID in both label indexes.
func (s *Store) InsertLabel(node, labelID uint64) error {
	if err := s.LabelsByLabel.Insert([]uint64{labelID, node}); err != nil {
		return err
	}
	if err := s.LabelsByNode.Insert([]uint64{node, labelID}); err != nil {
		return err
	}
	s.Catalog.RecordLabel(labelID)
	return nil
}

// InsertProperty records a (object, key, value) triple in both property
// indexes.
func (s *Store) InsertProperty(object, key, value uint64) error {
	if err := s.PropsByKey.Insert([]uint64{key, value, object}); err != nil {
		return err
	}
	if err := s.PropsByObject.Insert([]uint64{object, key, value}); err != nil {
		return err
	}
	s.Catalog.RecordProperty(key)
	return nil
}

// Flush persists every dirty page, the object file, and the catalog, in
// the order spec §8 scenario S6 requires: edge indexes before the catalog
// acknowledges the new edge count.
func (s *Store) Flush(catalogPath string) error {
	if err := s.Pool.Flush(); err != nil {
		return err
	}
	if err := s.Objects.Sync(); err != nil {
		return err
	}
	return s.Catalog.Flush(catalogPath)
}
