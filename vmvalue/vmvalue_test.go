package vmvalue

import (
	"testing"

	"github.com/muskanmahajan37/RefineDB/ir"
	"github.com/muskanmahajan37/RefineDB/schema"
)

func TestMapInsertIsStructurallyShared(t *testing.T) {
	m1 := NewMap().Insert("a", NewInt64(1))
	m2 := m1.Insert("b", NewInt64(2))
	if _, ok := m1.Get("b"); ok {
		t.Fatalf("m1 must be unaffected by a mutation derived from it")
	}
	if v, ok := m2.Get("a"); !ok || v.Int64() != 1 {
		t.Fatalf("m2 should retain m1's entries")
	}
	if m1.Len() != 1 || m2.Len() != 2 {
		t.Fatalf("unexpected lengths: m1=%d m2=%d", m1.Len(), m2.Len())
	}
}

func TestMapDeleteAndReinsert(t *testing.T) {
	m := NewMap()
	for i, k := range []string{"x", "y", "z", "w", "q"} {
		m = m.Insert(k, NewInt64(int64(i)))
	}
	m2 := m.Delete("y")
	if _, ok := m2.Get("y"); ok {
		t.Fatalf("expected y to be deleted")
	}
	if m2.Len() != 4 {
		t.Fatalf("expected length 4, got %d", m2.Len())
	}
	if _, ok := m.Get("y"); !ok {
		t.Fatalf("original map must be unaffected by Delete")
	}
}

func TestMapIterOrderIsSorted(t *testing.T) {
	m := NewMap().Insert("c", NewInt64(3)).Insert("a", NewInt64(1)).Insert("b", NewInt64(2))
	var order []string
	m.Iter(func(k string, v *Value) bool {
		order = append(order, k)
		return true
	})
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expected sorted iteration order, got %v", order)
	}
}

func TestListPrependPopHead(t *testing.T) {
	l := NewList().Prepend(NewInt64(1)).Prepend(NewInt64(2))
	head, ok := l.Head()
	if !ok || head.Int64() != 2 {
		t.Fatalf("expected head 2")
	}
	v, rest, ok := l.Pop()
	if !ok || v.Int64() != 2 {
		t.Fatalf("expected popped value 2")
	}
	if rest.Len() != 1 {
		t.Fatalf("expected remaining length 1, got %d", rest.Len())
	}
	if l.Len() != 2 {
		t.Fatalf("original list must be unaffected by Pop, got len %d", l.Len())
	}
}

func TestEqualPrimitivesAndComposites(t *testing.T) {
	a := NewMapValue(NewMap().Insert("x", NewInt64(1)))
	b := NewMapValue(NewMap().Insert("x", NewInt64(1)))
	c := NewMapValue(NewMap().Insert("x", NewInt64(2)))
	if !Equal(a, b) {
		t.Fatalf("expected structurally equal maps to compare equal")
	}
	if Equal(a, c) {
		t.Fatalf("expected differing maps to compare unequal")
	}
}

func TestHashStableForEqualValues(t *testing.T) {
	a := NewListValue(FromSlice([]*Value{NewInt64(1), NewString("hi")}))
	b := NewListValue(FromSlice([]*Value{NewInt64(1), NewString("hi")}))
	if Hash(a) != Hash(b) {
		t.Fatalf("expected equal values to hash equal")
	}
}

func TestTypedNullCarriesDeclaredType(t *testing.T) {
	want := ir.NewOptional(ir.NewPrimitiveType(schema.Int64))
	n := NewTypedNull(want)
	if !n.IsNull() {
		t.Fatalf("expected IsNull")
	}
	if n.NullType() != want {
		t.Fatalf("expected NullType to round-trip the declared type")
	}
}
