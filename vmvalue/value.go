// Package vmvalue is the VM's runtime value model: an immutable,
// structurally-shared representation of everything a graph node can
// produce or consume (spec.md §3, component C5). Every composite value
// — Map, List, Table, Set — is path-copying, so holding a reference to
// an intermediate result never pins more than the nodes that changed.
package vmvalue

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dchest/siphash"

	"github.com/muskanmahajan37/RefineDB/ir"
	"github.com/muskanmahajan37/RefineDB/pathwalker"
)

// Kind discriminates the closed Value sum.
type Kind int

const (
	KNull Kind = iota
	KBool
	KInt64
	KDouble
	KString
	KBytes
	KMap
	KList
	KTable
	KSet
)

// Value is the VM's tagged-union runtime value. Zero value is an
// untyped Null. Values are always handled by pointer so composite
// values (Map/List/Table/Set) can be shared structurally without
// copying their payload.
type Value struct {
	kind Kind

	b  bool
	i  int64
	d  uint64 // raw IEEE-754 bit pattern
	s  string
	by []byte

	m   *Map
	l   *List
	t   *Table
	set *Set

	// nullType records the type a Null value was produced as, so an
	// optional-chaining short-circuit still carries enough information
	// for the type checker's declared-output-type bookkeeping even
	// though the value itself carries no data (spec.md §4.5).
	nullType *ir.VmType
}

// Table is a value of a named record type, either backed by storage
// (Resident, positioned by a PathWalker) or held purely in memory
// (Fresh, built by BuildTable from a literal Map). Exactly one of
// Resident/Fresh is non-nil.
type Table struct {
	TypeName string
	Resident *pathwalker.Walker
	Fresh    *Map
}

// Set is a value of a set-of-named-record-type, either backed by
// storage (Resident, positioned by a PathWalker's SetView) or held
// purely in memory (Fresh, built by BuildSet from a literal List of
// Table values). Exactly one of Resident/Fresh is non-nil.
//
// Reduce and GetSetElement reject a Fresh set with spec.md §6's
// FreshTableOrSetNotSupported; InsertIntoSet/DeleteFromSet reject it as
// IncompatibleFieldAndValueType. An enclosing InsertIntoTable accepts
// only an empty Fresh set for a set-typed field and writes nothing for
// it; a non-empty one is NotImplemented. Members reach storage only
// through InsertIntoSet on a Resident set.
type Set struct {
	MemberTypeName string
	Resident       *pathwalker.SetView
	Fresh          *List
}

func NewNull() *Value                 { return &Value{kind: KNull} }
func NewTypedNull(t *ir.VmType) *Value { return &Value{kind: KNull, nullType: t} }
func NewBool(b bool) *Value            { return &Value{kind: KBool, b: b} }
func NewInt64(i int64) *Value          { return &Value{kind: KInt64, i: i} }
func NewString(s string) *Value        { return &Value{kind: KString, s: s} }
func NewBytes(b []byte) *Value         { return &Value{kind: KBytes, by: append([]byte{}, b...)} }

// NewDouble wraps a float64 by its raw bit pattern, matching the plan's
// "raw 64-bit pattern for determinism" treatment of doubles (spec.md §3).
func NewDouble(f float64) *Value { return &Value{kind: KDouble, d: math.Float64bits(f)} }

func NewMapValue(m *Map) *Value   { return &Value{kind: KMap, m: m} }
func NewListValue(l *List) *Value { return &Value{kind: KList, l: l} }

func NewResidentTable(typeName string, w *pathwalker.Walker) *Value {
	return &Value{kind: KTable, t: &Table{TypeName: typeName, Resident: w}}
}

func NewFreshTable(typeName string, fields *Map) *Value {
	return &Value{kind: KTable, t: &Table{TypeName: typeName, Fresh: fields}}
}

func NewResidentSet(memberType string, sv *pathwalker.SetView) *Value {
	return &Value{kind: KSet, set: &Set{MemberTypeName: memberType, Resident: sv}}
}

func NewFreshSet(memberType string, l *List) *Value {
	return &Value{kind: KSet, set: &Set{MemberTypeName: memberType, Fresh: l}}
}

func (v *Value) Kind() Kind { return v.kind }
func (v *Value) IsNull() bool { return v.kind == KNull }

// NullType returns the declared type of a typed Null, or nil if none was
// recorded.
func (v *Value) NullType() *ir.VmType { return v.nullType }

func (v *Value) Bool() bool     { return v.b }
func (v *Value) Int64() int64   { return v.i }
func (v *Value) Double() float64 { return math.Float64frombits(v.d) }
func (v *Value) DoubleBits() uint64 { return v.d }
func (v *Value) Str() string    { return v.s }
func (v *Value) Bytes() []byte  { return v.by }
func (v *Value) Map() *Map      { return v.m }
func (v *Value) List() *List    { return v.l }
func (v *Value) Table() *Table  { return v.t }
func (v *Value) Set() *Set      { return v.set }

// PrimaryKeyValue converts an Int64/Double/String/Bytes/Bool value into
// the pathwalker.Value shape EncodePrimaryKey needs, bridging the two
// packages' independently-defined primitive payloads (pathwalker sits
// below vmvalue in the import graph and cannot know about Value).
func (v *Value) PrimaryKeyValue() pathwalker.Value {
	switch v.kind {
	case KInt64:
		return pathwalker.Value{Int64: v.i}
	case KDouble:
		return pathwalker.Value{Double: v.d}
	case KString:
		return pathwalker.Value{Str: v.s}
	case KBytes:
		return pathwalker.Value{Bytes: v.by}
	case KBool:
		return pathwalker.Value{Bool: v.b}
	default:
		panic("vmvalue: PrimaryKeyValue called on a non-primitive value")
	}
}

// String renders a debug form, never used for hashing or equality.
func (v *Value) String() string {
	switch v.kind {
	case KNull:
		return "null"
	case KBool:
		return fmt.Sprintf("%t", v.b)
	case KInt64:
		return fmt.Sprintf("%d", v.i)
	case KDouble:
		return fmt.Sprintf("%g", v.Double())
	case KString:
		return fmt.Sprintf("%q", v.s)
	case KBytes:
		return fmt.Sprintf("bytes(%x)", v.by)
	case KMap:
		return "map"
	case KList:
		return fmt.Sprintf("list(%d)", v.l.Len())
	case KTable:
		return "table<" + v.t.TypeName + ">"
	case KSet:
		return "set<" + v.set.MemberTypeName + ">"
	default:
		return "<invalid value>"
	}
}

// Equal is deep structural equality over primitives, Map and List.
// Resident Table/Set values compare by the KV prefix they are
// positioned at (the same row, not merely equal contents); Fresh
// Table/Set values compare by contents. A Resident value never equals a
// Fresh one even with identical field values, mirroring how the
// executor's Eq op treats storage identity as part of a table's
// identity (spec.md §4.3).
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KNull:
		return true
	case KBool:
		return a.b == b.b
	case KInt64:
		return a.i == b.i
	case KDouble:
		return a.d == b.d
	case KString:
		return a.s == b.s
	case KBytes:
		return string(a.by) == string(b.by)
	case KMap:
		return mapEqual(a.m, b.m)
	case KList:
		return listEqual(a.l, b.l)
	case KTable:
		return tableEqual(a.t, b.t)
	case KSet:
		return setEqual(a.set, b.set)
	default:
		return false
	}
}

func mapEqual(a, b *Map) bool {
	if a.Len() != b.Len() {
		return false
	}
	eq := true
	a.Iter(func(k string, av *Value) bool {
		bv, ok := b.Get(k)
		if !ok || !Equal(av, bv) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

func listEqual(a, b *List) bool {
	if a.Len() != b.Len() {
		return false
	}
	as, bs := a.Slice(), b.Slice()
	for i := range as {
		if !Equal(as[i], bs[i]) {
			return false
		}
	}
	return true
}

func tableEqual(a, b *Table) bool {
	if a.TypeName != b.TypeName {
		return false
	}
	if (a.Resident == nil) != (b.Resident == nil) {
		return false
	}
	if a.Resident != nil {
		return string(a.Resident.Prefix()) == string(b.Resident.Prefix())
	}
	return mapEqual(a.Fresh, b.Fresh)
}

func setEqual(a, b *Set) bool {
	if a.MemberTypeName != b.MemberTypeName {
		return false
	}
	if (a.Resident == nil) != (b.Resident == nil) {
		return false
	}
	if a.Resident != nil {
		return string(a.Resident.Prefix()) == string(b.Resident.Prefix())
	}
	return listEqual(a.Fresh, b.Fresh)
}

// Hash computes a SipHash-based digest of a value's structure: primitives
// hash their raw
// bytes, composites hash their elements' digests in a stable order so
// two structurally-equal values always hash equal. Equal does not use it.
func Hash(v *Value) uint64 {
	h := newHasher()
	hashInto(h, v)
	return h.sum()
}

type hasher struct{ acc uint64 }

func newHasher() *hasher { return &hasher{} }

func (h *hasher) write(b []byte) {
	h.acc ^= siphash.Hash(sipK0, sipK1^h.acc, b)
}

func (h *hasher) sum() uint64 { return h.acc }

func hashInto(h *hasher, v *Value) {
	var tag [1]byte
	tag[0] = byte(v.kind)
	h.write(tag[:])
	switch v.kind {
	case KNull:
	case KBool:
		if v.b {
			h.write([]byte{1})
		} else {
			h.write([]byte{0})
		}
	case KInt64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v.i))
		h.write(buf[:])
	case KDouble:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v.d)
		h.write(buf[:])
	case KString:
		h.write([]byte(v.s))
	case KBytes:
		h.write(v.by)
	case KMap:
		v.m.Iter(func(k string, mv *Value) bool {
			h.write([]byte(k))
			hashInto(h, mv)
			return true
		})
	case KList:
		v.l.Iter(func(lv *Value) bool {
			hashInto(h, lv)
			return true
		})
	case KTable:
		h.write([]byte(v.t.TypeName))
		if v.t.Resident != nil {
			h.write(v.t.Resident.Prefix())
		} else {
			v.t.Fresh.Iter(func(k string, fv *Value) bool {
				h.write([]byte(k))
				hashInto(h, fv)
				return true
			})
		}
	case KSet:
		h.write([]byte(v.set.MemberTypeName))
		if v.set.Resident != nil {
			h.write(v.set.Resident.Prefix())
		} else {
			v.set.Fresh.Iter(func(ev *Value) bool {
				hashInto(h, ev)
				return true
			})
		}
	}
}
