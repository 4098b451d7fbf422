package vmvalue

// List is an immutable singly-linked persistent list: Prepend, Pop and
// Head are all O(1) and share every node with the list they were derived
// from, matching the PrependToList/PopFromList/ListHead bytecode ops
// (spec.md §4.3) directly.
type List struct {
	head *listNode
	size int
}

type listNode struct {
	val  *Value
	next *listNode
}

// NewList returns the empty list.
func NewList() *List { return &List{} }

// Len returns the number of elements.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return l.size
}

// Prepend returns a new List with val as the new head.
func (l *List) Prepend(val *Value) *List {
	var head *listNode
	size := 0
	if l != nil {
		head = l.head
		size = l.size
	}
	return &List{head: &listNode{val: val, next: head}, size: size + 1}
}

// Head returns the first element and whether the list is non-empty.
func (l *List) Head() (*Value, bool) {
	if l == nil || l.head == nil {
		return nil, false
	}
	return l.head.val, true
}

// Pop returns the first element, the remaining list, and whether the
// list was non-empty.
func (l *List) Pop() (*Value, *List, bool) {
	if l == nil || l.head == nil {
		return nil, l, false
	}
	return l.head.val, &List{head: l.head.next, size: l.size - 1}, true
}

// Iter walks elements head to tail, stopping early if fn returns false.
func (l *List) Iter(fn func(*Value) bool) bool {
	if l == nil {
		return true
	}
	for n := l.head; n != nil; n = n.next {
		if !fn(n.val) {
			return false
		}
	}
	return true
}

// Slice materializes the list into a plain slice in head-to-tail order,
// used by Reduce to iterate a List (spec.md §4.5) and by list equality.
func (l *List) Slice() []*Value {
	out := make([]*Value, 0, l.Len())
	l.Iter(func(v *Value) bool {
		out = append(out, v)
		return true
	})
	return out
}

// FromSlice builds a List from a plain slice, preserving order (the
// first element of vs becomes the head).
func FromSlice(vs []*Value) *List {
	l := NewList()
	for i := len(vs) - 1; i >= 0; i-- {
		l = l.Prepend(vs[i])
	}
	return l
}
