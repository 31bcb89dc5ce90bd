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
	"strconv"

	"github.com/wangTheTiger/MillenniumDB/objid"
	"github.com/wangTheTiger/MillenniumDB/storage"
)

// Describe is a value-level operator that, given a single bound node id,
// emits a one-row summary of that node: every label it carries and every
// property key set on it, as label and key ids. No catalog counts are
// included. It is the plan root for the `DESCRIBE` form this core
// supplements beyond the distilled pattern-matching surface.
type Describe struct {
	Store  *storage.Store
	Target objid.ID

	emitted bool
	row     Binding
}

func (d *Describe) Begin(qc *QueryContext) error {
	d.emitted = false

	labels, err := d.labelsOf()
	if err != nil {
		return err
	}
	keys, err := d.propertyKeysOf()
	if err != nil {
		return err
	}

	summary := "labels=[" + joinStrings(labels, ", ") + "] keys=[" + joinStrings(keys, ", ") + "]"
	id, err := internString(&Resolver{Objects: d.Store.Objects, Hash: d.Store.Hash}, summary)
	if err != nil {
		return err
	}
	d.row = Binding{id}
	return nil
}

func (d *Describe) labelsOf() ([]string, error) {
	node := uint64(d.Target)
	it, err := d.Store.LabelsByNode.GetRange([]uint64{node, 0}, []uint64{node, ^uint64(0)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []string
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, strconv.FormatUint(rec[1], 10))
	}
	return out, nil
}

func (d *Describe) propertyKeysOf() ([]string, error) {
	obj := uint64(d.Target)
	it, err := d.Store.PropsByObject.GetRange([]uint64{obj, 0, 0}, []uint64{obj, ^uint64(0), ^uint64(0)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []string
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, strconv.FormatUint(rec[1], 10))
	}
	return out, nil
}

func (d *Describe) Next() (Binding, bool, error) {
	if d.emitted {
		return nil, false, nil
	}
	d.emitted = true
	return d.row, true, nil
}

func (d *Describe) Close() {}
