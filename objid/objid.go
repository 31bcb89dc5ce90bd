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

// Package objid implements the tagged 64-bit object-identifier encoding
// that every graph value (interned string, inlined string, integer, float,
// bool, anonymous node, edge handle, materialized path) is reduced to
// before it reaches the storage or execution layers.
//
// The high byte of the word is a type tag; the remaining 56 bits carry
// either an inline payload or an offset into external storage (the object
// file, the edge table, or the path arena).
package objid

import (
	"fmt"
	"math"
)

// ID is a packed object identifier.
type ID uint64

const (
	tagShift  = 56
	valueMask = (uint64(1) << tagShift) - 1 // low 56 bits
	maxInt56  = int64(1)<<55 - 1
	minInt56  = -maxInt56 - 1
)

// Kind identifies the type tag carried in the high byte of an ID.
type Kind uint8

const (
	KindNull Kind = iota
	KindNotFound
	KindStringInlined
	KindStringExtern
	KindIRIInlined
	KindIRIExtern
	KindPositiveInt
	KindNegativeInt
	KindFloat
	KindBool
	KindAnonymous
	KindEdge
	KindPath
	KindDateTime
	KindDecimalInlined
	KindDecimalExtern
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNotFound:
		return "not-found"
	case KindStringInlined:
		return "string-inlined"
	case KindStringExtern:
		return "string-extern"
	case KindIRIInlined:
		return "iri-inlined"
	case KindIRIExtern:
		return "iri-extern"
	case KindPositiveInt:
		return "positive-int"
	case KindNegativeInt:
		return "negative-int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindAnonymous:
		return "anonymous"
	case KindEdge:
		return "edge"
	case KindPath:
		return "path"
	case KindDateTime:
		return "datetime"
	case KindDecimalInlined:
		return "decimal-inlined"
	case KindDecimalExtern:
		return "decimal-extern"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Null is the reserved word denoting "unbound".
const Null ID = ID(uint64(KindNull) << tagShift)

// NotFound is the reserved word denoting "no such interned value".
const NotFound ID = ID(uint64(KindNotFound) << tagShift)

// Kind returns the type tag of id.
func (id ID) Kind() Kind {
	return Kind(uint64(id) >> tagShift)
}

// Payload returns the low 56 bits of id.
func (id ID) Payload() uint64 {
	return uint64(id) & valueMask
}

func build(k Kind, payload uint64) ID {
	return ID(uint64(k)<<tagShift | (payload & valueMask))
}

// OverflowError is returned by PackInt when a value does not fit the
// 56-bit payload.
type OverflowError struct {
	Value int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("objid: integer magnitude %d exceeds 56-bit payload", e.Value)
}

// PackInt encodes a signed integer bounded to 56 bits, sign-magnitude:
// positives store |n| directly, negatives store ~n&mask so that descending
// unsigned order of the negative tag corresponds to ascending signed order.
func PackInt(n int64) (ID, error) {
	if n > maxInt56 || n < minInt56 {
		return Null, &OverflowError{Value: n}
	}
	if n >= 0 {
		return build(KindPositiveInt, uint64(n)), nil
	}
	return build(KindNegativeInt, uint64(^n)&valueMask), nil
}

// UnpackInt decodes an integer packed by PackInt.
func UnpackInt(id ID) (int64, bool) {
	switch id.Kind() {
	case KindPositiveInt:
		return int64(id.Payload()), true
	case KindNegativeInt:
		return ^int64(id.Payload()), true
	default:
		return 0, false
	}
}

// PackFloat stores the IEEE-754 little-endian bit pattern in the low 32
// bits, matching a single-precision encoding budget within the 56-bit
// payload (the upper 24 payload bits are left zero).
func PackFloat(f float64) ID {
	bits := uint64(math.Float32bits(float32(f)))
	return build(KindFloat, bits)
}

// UnpackFloat decodes a value packed by PackFloat.
func UnpackFloat(id ID) (float64, bool) {
	if id.Kind() != KindFloat {
		return 0, false
	}
	return float64(math.Float32frombits(uint32(id.Payload()))), true
}

// PackBool encodes a boolean.
func PackBool(b bool) ID {
	if b {
		return build(KindBool, 1)
	}
	return build(KindBool, 0)
}

// UnpackBool decodes a value packed by PackBool.
func UnpackBool(id ID) (bool, bool) {
	if id.Kind() != KindBool {
		return false, false
	}
	return id.Payload() != 0, true
}

// maxInlineLen is the maximum byte length of a string that can be packed
// inline in the 56-bit payload: 6 content bytes (48 bits) plus one length
// byte (8 bits) that never overlaps a content byte.
const maxInlineLen = 6

// PackInlineString packs a short string (<=6 bytes), high-to-low,
// left-aligned within the payload, so comparison of two inlined strings of
// equal semantics reduces to unsigned 64-bit comparison. The length is
// recorded in the low byte of the payload, which the 6-byte cap leaves
// entirely free of content bytes.
func PackInlineString(s []byte, iri bool) (ID, bool) {
	if len(s) > maxInlineLen {
		return Null, false
	}
	var payload uint64
	for i, b := range s {
		shift := tagShift - 8 - 8*i
		payload |= uint64(b) << uint(shift)
	}
	payload |= uint64(len(s))
	k := KindStringInlined
	if iri {
		k = KindIRIInlined
	}
	return build(k, payload), true
}

// UnpackInlineString decodes a value packed by PackInlineString.
func UnpackInlineString(id ID) ([]byte, bool) {
	k := id.Kind()
	if k != KindStringInlined && k != KindIRIInlined {
		return nil, false
	}
	payload := id.Payload()
	n := int(payload & 0xFF)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		shift := tagShift - 8 - 8*i
		out[i] = byte((payload >> uint(shift)) & 0xFF)
	}
	return out, true
}

// PackExternString packs a reference to a string living at the given
// object-file offset.
func PackExternString(offset uint64, iri bool) ID {
	k := KindStringExtern
	if iri {
		k = KindIRIExtern
	}
	return build(k, offset)
}

// ExternOffset returns the object-file offset carried by an extern-kind id.
func ExternOffset(id ID) (uint64, bool) {
	switch id.Kind() {
	case KindStringExtern, KindIRIExtern, KindDecimalExtern:
		return id.Payload(), true
	default:
		return 0, false
	}
}

// PackAnonymous packs an anonymous-node counter value.
func PackAnonymous(counter uint64) ID {
	return build(KindAnonymous, counter)
}

// PackEdge packs a monotonically assigned 56-bit edge identifier.
func PackEdge(counter uint64) ID {
	return build(KindEdge, counter)
}

// EdgeCounter extracts the counter from an edge-kind id.
func EdgeCounter(id ID) (uint64, bool) {
	if id.Kind() != KindEdge {
		return 0, false
	}
	return id.Payload(), true
}

// PackPath packs a reference to a materialized-path arena entry.
func PackPath(pathIndex uint64) ID {
	return build(KindPath, pathIndex)
}

// PathIndex extracts the arena index from a path-kind id.
func PathIndex(id ID) (uint64, bool) {
	if id.Kind() != KindPath {
		return 0, false
	}
	return id.Payload(), true
}

// IsNull reports whether id is the reserved "unbound" word.
func IsNull(id ID) bool { return id == Null }

// IsNotFound reports whether id is the reserved "no such value" word.
func IsNotFound(id ID) bool { return id == NotFound }

// kindOrder fixes the total order used for comparisons across distinct
// kinds: numeric kinds are adjacent so that within-kind comparisons stay
// meaningful, and null/not-found sort below everything else.
var kindOrder = map[Kind]int{
	KindNull:           0,
	KindNotFound:       1,
	KindBool:           2,
	KindNegativeInt:    3,
	KindPositiveInt:    4,
	KindFloat:          5,
	KindDecimalInlined: 6,
	KindDecimalExtern:  6,
	KindStringInlined:  7,
	KindStringExtern:   7,
	KindIRIInlined:     8,
	KindIRIExtern:      8,
	KindDateTime:       9,
	KindAnonymous:      10,
	KindEdge:           11,
	KindPath:           12,
}

// Compare defines the total order over object identifiers used by indexes,
// order-by, and group-by. Same-kind comparisons compare within-kind
// (numeric kinds by value, strings lexicographically by decoded bytes);
// mixed-kind comparisons fall back to the fixed kindOrder table.
func Compare(a, b ID, resolve func(ID) ([]byte, error)) (int, error) {
	ka, kb := a.Kind(), b.Kind()
	if ka == kb {
		switch ka {
		case KindPositiveInt, KindNegativeInt:
			va, _ := UnpackInt(a)
			vb, _ := UnpackInt(b)
			return cmpInt64(va, vb), nil
		case KindFloat:
			va, _ := UnpackFloat(a)
			vb, _ := UnpackFloat(b)
			return cmpFloat64(va, vb), nil
		case KindBool:
			va, _ := UnpackBool(a)
			vb, _ := UnpackBool(b)
			return cmpBool(va, vb), nil
		case KindStringInlined, KindIRIInlined, KindStringExtern, KindIRIExtern,
			KindDecimalInlined, KindDecimalExtern:
			sa, err := resolveBytes(a, resolve)
			if err != nil {
				return 0, err
			}
			sb, err := resolveBytes(b, resolve)
			if err != nil {
				return 0, err
			}
			return cmpBytes(sa, sb), nil
		default:
			return cmpUint64(uint64(a), uint64(b)), nil
		}
	}
	oa, ob := kindOrder[ka], kindOrder[kb]
	// numeric kinds (bool, positive/negative int, float) interleave by value even
	// though their tags differ, so mixed numeric comparisons still compare
	// numerically rather than by tag order.
	if isNumeric(ka) && isNumeric(kb) {
		fa, okA := numericValue(a)
		fb, okB := numericValue(b)
		if okA && okB {
			return cmpFloat64(fa, fb), nil
		}
	}
	return cmpInt64(int64(oa), int64(ob)), nil
}

func isNumeric(k Kind) bool {
	switch k {
	case KindBool, KindPositiveInt, KindNegativeInt, KindFloat:
		return true
	default:
		return false
	}
}

func numericValue(id ID) (float64, bool) {
	switch id.Kind() {
	case KindPositiveInt, KindNegativeInt:
		v, ok := UnpackInt(id)
		return float64(v), ok
	case KindFloat:
		return UnpackFloat(id)
	case KindBool:
		v, ok := UnpackBool(id)
		if !ok {
			return 0, false
		}
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func resolveBytes(id ID, resolve func(ID) ([]byte, error)) ([]byte, error) {
	if b, ok := UnpackInlineString(id); ok {
		return b, nil
	}
	return resolve(id)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func cmpBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt64(int64(len(a)), int64(len(b)))
}
