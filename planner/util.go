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

package planner

import (
	"fmt"
	"strconv"

	"github.com/wangTheTiger/MillenniumDB/pathauto"
)

func itoa(n int) string    { return strconv.Itoa(n) }
func uitoa(n uint64) string { return strconv.FormatUint(n, 10) }

// pointerKey gives two atoms referencing the same compiled automaton
// (pointer identity, not structural equality) the same key — compiling a
// property-path expression twice from the same source text is outside
// this package's concern, so identity is the only sound comparison here.
func pointerKey(a *pathauto.Automaton) string { return fmt.Sprintf("%p", a) }
