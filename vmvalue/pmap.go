package vmvalue

import "github.com/dchest/siphash"

// Map is an immutable, structurally-shared string-keyed map — a treap
// keyed by field name, with node priority derived from a SipHash of the
// key so the tree shape is deterministic across runs without needing a
// random source at insert time. Every mutation returns a new Map sharing
// every untouched subtree with its parent, the same path-copying
// discipline spec.md §3 requires of the whole value model.
type Map struct {
	root *mapNode
	size int
}

type mapNode struct {
	key      string
	val      *Value
	priority uint64
	left     *mapNode
	right    *mapNode
}

// sipK0/sipK1 are fixed SipHash keys: priorities only need good
// distribution for treap balance, not cryptographic unpredictability, so
// a program-wide constant keeps tree shape reproducible across runs
// (useful for golden-output tests over scripts that build map literals).
const sipK0, sipK1 = 0, 0

func mapPriority(key string) uint64 {
	return siphash.Hash(sipK0, sipK1, []byte(key))
}

// NewMap returns the empty map.
func NewMap() *Map { return &Map{} }

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return m.size
}

// Get returns the value at key and whether it was present.
func (m *Map) Get(key string) (*Value, bool) {
	if m == nil {
		return nil, false
	}
	n := m.root
	for n != nil {
		switch {
		case key == n.key:
			return n.val, true
		case key < n.key:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil, false
}

// Insert returns a new Map with key bound to val, replacing any prior
// binding. The receiver is left unmodified.
func (m *Map) Insert(key string, val *Value) *Map {
	had := false
	if m != nil {
		if _, ok := m.Get(key); ok {
			had = true
		}
	}
	var root *mapNode
	if m != nil {
		root = m.root
	}
	newRoot := mapInsert(root, key, val, mapPriority(key))
	size := 0
	if m != nil {
		size = m.size
	}
	if !had {
		size++
	}
	return &Map{root: newRoot, size: size}
}

// Delete returns a new Map with key removed, or the same contents if key
// was absent.
func (m *Map) Delete(key string) *Map {
	if m == nil {
		return NewMap()
	}
	if _, ok := m.Get(key); !ok {
		return m
	}
	return &Map{root: mapDelete(m.root, key), size: m.size - 1}
}

// Iter walks entries in ascending key order, stopping early if fn
// returns false. Ascending order keeps iteration deterministic for
// anything downstream that hashes or serializes a Fresh table's fields.
func (m *Map) Iter(fn func(key string, val *Value) bool) bool {
	if m == nil {
		return true
	}
	return mapIter(m.root, fn)
}

func mapIter(n *mapNode, fn func(string, *Value) bool) bool {
	if n == nil {
		return true
	}
	if !mapIter(n.left, fn) {
		return false
	}
	if !fn(n.key, n.val) {
		return false
	}
	return mapIter(n.right, fn)
}

func mapInsert(n *mapNode, key string, val *Value, priority uint64) *mapNode {
	if n == nil {
		return &mapNode{key: key, val: val, priority: priority}
	}
	if key == n.key {
		return &mapNode{key: key, val: val, priority: n.priority, left: n.left, right: n.right}
	}
	if key < n.key {
		left := mapInsert(n.left, key, val, priority)
		out := &mapNode{key: n.key, val: n.val, priority: n.priority, left: left, right: n.right}
		if left.priority > out.priority {
			return mapRotateRight(out)
		}
		return out
	}
	right := mapInsert(n.right, key, val, priority)
	out := &mapNode{key: n.key, val: n.val, priority: n.priority, left: n.left, right: right}
	if right.priority > out.priority {
		return mapRotateLeft(out)
	}
	return out
}

func mapRotateRight(n *mapNode) *mapNode {
	l := n.left
	nn := &mapNode{key: n.key, val: n.val, priority: n.priority, left: l.right, right: n.right}
	return &mapNode{key: l.key, val: l.val, priority: l.priority, left: l.left, right: nn}
}

func mapRotateLeft(n *mapNode) *mapNode {
	r := n.right
	nn := &mapNode{key: n.key, val: n.val, priority: n.priority, left: n.left, right: r.left}
	return &mapNode{key: r.key, val: r.val, priority: r.priority, left: nn, right: r.right}
}

func mapDelete(n *mapNode, key string) *mapNode {
	if n == nil {
		return nil
	}
	if key < n.key {
		return &mapNode{key: n.key, val: n.val, priority: n.priority, left: mapDelete(n.left, key), right: n.right}
	}
	if key > n.key {
		return &mapNode{key: n.key, val: n.val, priority: n.priority, left: n.left, right: mapDelete(n.right, key)}
	}
	return mapMerge(n.left, n.right)
}

func mapMerge(a, b *mapNode) *mapNode {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.priority > b.priority {
		return &mapNode{key: a.key, val: a.val, priority: a.priority, left: a.left, right: mapMerge(a.right, b)}
	}
	return &mapNode{key: b.key, val: b.val, priority: b.priority, left: mapMerge(a, b.left), right: b.right}
}
