// Package ir defines the query script bytecode: TwScript/TwGraph, the
// closed operation set, and the VmType system the type checker annotates
// nodes with (spec.md §4.3, §4.4, component C6). The human-readable
// planner that compiles path expressions into this bytecode is a
// collaborator, not part of this package (spec.md §1).
package ir

import (
	"fmt"

	"github.com/muskanmahajan37/RefineDB/schema"
)

// TypeKind discriminates the VmType sum.
type TypeKind int

const (
	TNull TypeKind = iota
	TBool
	TPrimitive
	TOneOf
	TMap
	TList
	TTable
	TSet
)

// VmType is the type-checker's result type for a node, and the element
// type stored in a Script's shared types pool. Two VmType values that
// describe the same shape should be pointer-deduplicated into the pool
// when a script is built, but equality is always structural (Equal).
type VmType struct {
	Kind         TypeKind
	Prim         schema.Primitive     // TPrimitive
	TypeName     string               // TTable: the named record type
	Elem         *VmType              // TList, TSet
	Fields       map[string]*VmType   // TMap: field name -> field type
	Alternatives []*VmType            // TOneOf
}

func NewNullType() *VmType  { return &VmType{Kind: TNull} }
func NewBoolType() *VmType  { return &VmType{Kind: TBool} }
func NewPrimitiveType(p schema.Primitive) *VmType {
	return &VmType{Kind: TPrimitive, Prim: p}
}
func NewTableType(typeName string) *VmType { return &VmType{Kind: TTable, TypeName: typeName} }
func NewListType(elem *VmType) *VmType     { return &VmType{Kind: TList, Elem: elem} }
func NewSetType(elem *VmType) *VmType      { return &VmType{Kind: TSet, Elem: elem} }
func NewMapType(fields map[string]*VmType) *VmType {
	return &VmType{Kind: TMap, Fields: fields}
}

// NewOneOf flattens any nested OneOf alternatives and de-duplicates by
// structural equality, matching the covariance rule's "OneOf matching up
// to element-set equality" (spec.md §4.4).
func NewOneOf(alts ...*VmType) *VmType {
	var flat []*VmType
	for _, a := range alts {
		if a.Kind == TOneOf {
			flat = append(flat, a.Alternatives...)
		} else {
			flat = append(flat, a)
		}
	}
	var out []*VmType
	for _, a := range flat {
		dup := false
		for _, o := range out {
			if o.Equal(a) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, a)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return &VmType{Kind: TOneOf, Alternatives: out}
}

// NewOptional is sugar for NewOneOf(inner, Null) — the shape an Optional
// schema field or an optional-chained node's declared type takes.
func NewOptional(inner *VmType) *VmType {
	return NewOneOf(inner, NewNullType())
}

func (t *VmType) String() string {
	if t == nil {
		return "<nil type>"
	}
	switch t.Kind {
	case TNull:
		return "Null"
	case TBool:
		return "Bool"
	case TPrimitive:
		return t.Prim.String()
	case TTable:
		return "Table<" + t.TypeName + ">"
	case TList:
		return "List<" + t.Elem.String() + ">"
	case TSet:
		return "Set<" + t.Elem.String() + ">"
	case TMap:
		return "Map{...}"
	case TOneOf:
		s := "OneOf("
		for i, a := range t.Alternatives {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		return s + ")"
	default:
		return fmt.Sprintf("<invalid type kind %d>", t.Kind)
	}
}

// Equal is structural equality, used for covariance and OneOf
// deduplication — never pointer identity (spec.md §4.4).
func (t *VmType) Equal(o *VmType) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TNull, TBool:
		return true
	case TPrimitive:
		return t.Prim == o.Prim
	case TTable:
		return t.TypeName == o.TypeName
	case TList, TSet:
		return t.Elem.Equal(o.Elem)
	case TMap:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for k, v := range t.Fields {
			ov, ok := o.Fields[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	case TOneOf:
		if len(t.Alternatives) != len(o.Alternatives) {
			return false
		}
		for _, a := range t.Alternatives {
			found := false
			for _, b := range o.Alternatives {
				if a.Equal(b) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return false
}

// Covariant reports whether a value of type `have` may flow where `want`
// is declared, per spec.md §4.4:
//
//	A <- B holds if A == B, or A == OneOf(...) containing a covariant
//	match for B (also matching OneOf up to element-set equality), or
//	both are Map with keys(A) ⊆ keys(B) and covariant field types.
func Covariant(want, have *VmType) bool {
	if want == nil || have == nil {
		return want == have
	}
	if want.Equal(have) {
		return true
	}
	if want.Kind == TOneOf {
		if have.Kind == TOneOf {
			for _, h := range have.Alternatives {
				if !covariantAny(want.Alternatives, h) {
					return false
				}
			}
			return true
		}
		return covariantAny(want.Alternatives, have)
	}
	if want.Kind == TMap && have.Kind == TMap {
		for k, wv := range want.Fields {
			hv, ok := have.Fields[k]
			if !ok || !Covariant(wv, hv) {
				return false
			}
		}
		return true
	}
	return false
}

func covariantAny(alts []*VmType, have *VmType) bool {
	for _, a := range alts {
		if Covariant(a, have) {
			return true
		}
	}
	return false
}
