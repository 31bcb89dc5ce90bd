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

package exec_test

import (
	"strings"
	"testing"

	"github.com/wangTheTiger/MillenniumDB/exec"
	"github.com/wangTheTiger/MillenniumDB/internal/mdbtest"
	"github.com/wangTheTiger/MillenniumDB/objid"
)

func TestDescribeEmitsLabelsAndPropertyKeys(t *testing.T) {
	s := mdbtest.OpenStore(t)
	const (
		personLabel = uint64(1)
		ageKey      = uint64(2)
	)
	n := mdbtest.NewNode(t, s).WithLabel(t, s, personLabel).WithProperty(t, s, ageKey, 30)

	d := &exec.Describe{Store: s, Target: objid.ID(n.ID)}
	if err := d.Begin(&exec.QueryContext{}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer d.Close()

	row, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if len(row) != 1 {
		t.Fatalf("got %d columns, want 1", len(row))
	}

	resolver := &exec.Resolver{Objects: s.Objects}
	summary, ok := objid.UnpackInlineString(row[0])
	if !ok {
		// the summary overflowed the inline budget; fall back to the
		// extern path rather than fail the test on string length.
		b, err := resolver.Resolve(row[0])
		if err != nil || b == nil {
			t.Fatalf("resolving extern summary: ok=%v err=%v", b != nil, err)
		}
		summary = b
	}
	if !strings.Contains(string(summary), "labels=[1]") || !strings.Contains(string(summary), "keys=[2]") {
		t.Fatalf("summary = %q, want labels=[1] and keys=[2]", summary)
	}

	_, ok2, err := d.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if ok2 {
		t.Fatal("Describe should emit exactly one row")
	}
}
