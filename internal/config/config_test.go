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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Default() {
		t.Fatalf("got %+v, want defaults %+v", got, Default())
	}
}

func TestLoadOverlaysOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	content := "bufferPoolFrames: 512\nhashJoinBucketCount: 1024\n"
	if err := os.WriteFile(filepath.Join(dir, "millenniumdb.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.BufferPoolFrames = 512
	want.HashJoinBucketCount = 1024
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "millenniumdb.yaml"), []byte("pageSize: [not, a, number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error decoding malformed YAML")
	}
}
