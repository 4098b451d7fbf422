// Package pathwalker derives concrete KV byte keys from a storage-plan
// location plus runtime discriminators (spec.md §4.2, component C4).
package pathwalker

import (
	"fmt"

	"github.com/muskanmahajan37/RefineDB/storageplan"
)

const (
	fastScanTag byte = 0x00
	dataTag     byte = 0x01
)

// ErrPathIntegrity reports a structural inconsistency a Walker's
// traversal hits in the plan. A field lookup on a leaf, a packed subtree
// or a missing child is returned as an error, which the executor surfaces
// as PathIntegrityFailure (spec.md §6). A subspace_reference whose key
// was never assigned on the current path is not returned: enter panics
// with an *ErrPathIntegrity.
type ErrPathIntegrity struct{ Reason string }

func (e *ErrPathIntegrity) Error() string { return "path integrity failure: " + e.Reason }

// frame records the node and absolute key-prefix in effect at the point a
// non-flattened named node was entered, so a later subspace_reference back
// to that same storage key can resolve transparently (spec.md §4.2).
type frame struct {
	node   *storageplan.Node
	prefix []byte
}

// Walker is an immutable cursor: every navigation method returns a new
// Walker rather than mutating the receiver, consistent with the VM's
// structurally-shared value model (spec.md §3).
type Walker struct {
	plan   *storageplan.Plan
	node   *storageplan.Node
	prefix []byte
	frames map[storageplan.Key]frame
}

// Root returns a Walker positioned at the named export.
func Root(plan *storageplan.Plan, export string) (*Walker, error) {
	node, ok := plan.Roots[export]
	if !ok {
		return nil, &ErrPathIntegrity{Reason: fmt.Sprintf("no such export %q", export)}
	}
	w := &Walker{plan: plan, frames: map[storageplan.Key]frame{}}
	return w.enter(node), nil
}

// enter normalizes arrival at node n: subspace references are resolved
// transparently by jumping to the recorded frame; non-flattened nodes
// append their own key to the prefix and register a frame so a deeper
// back-edge can find them again; flattened nodes contribute nothing.
func (w *Walker) enter(n *storageplan.Node) *Walker {
	if n.SubspaceReference {
		fr, ok := w.frames[n.Key]
		if !ok {
			panic(&ErrPathIntegrity{Reason: fmt.Sprintf("subspace_reference to unassigned key %v", n.Key)})
		}
		return &Walker{plan: w.plan, node: fr.node, prefix: fr.prefix, frames: w.frames}
	}
	if n.Flattened {
		return &Walker{plan: w.plan, node: n, prefix: w.prefix, frames: w.frames}
	}
	prefix := make([]byte, 0, len(w.prefix)+storageplan.KeyLen)
	prefix = append(prefix, w.prefix...)
	prefix = append(prefix, n.Key[:]...)
	frames := make(map[storageplan.Key]frame, len(w.frames)+1)
	for k, v := range w.frames {
		frames[k] = v
	}
	frames[n.Key] = frame{node: n, prefix: prefix}
	return &Walker{plan: w.plan, node: n, prefix: prefix, frames: frames}
}

// DescendField moves to a named child field. Returns ErrPathIntegrity if
// the current position is a leaf, packed subtree, or has no such field —
// these are schema/plan mismatches the type checker should have already
// ruled out for any script that reached execution.
func (w *Walker) DescendField(name string) (*Walker, error) {
	if w.node == nil {
		return nil, &ErrPathIntegrity{Reason: "descend on an unrooted walker"}
	}
	if w.node.Packed {
		return nil, &ErrPathIntegrity{Reason: fmt.Sprintf("field %q: packed fields are not yet supported for individual addressing", name)}
	}
	child, ok := w.node.Children[name]
	if !ok {
		return nil, &ErrPathIntegrity{Reason: fmt.Sprintf("no such field %q", name)}
	}
	return w.enter(child), nil
}

// IsPacked reports whether the current position is a packed leaf.
func (w *Walker) IsPacked() bool { return w.node.Packed }

// IsSet reports whether the current position is a set field.
func (w *Walker) IsSet() bool { return w.node != nil && w.node.Set != nil }

// Key returns the concrete KV key for the current position, valid for
// primitive leaves and packed subtrees (anything with no children/set).
func (w *Walker) Key() []byte {
	return append([]byte{}, w.prefix...)
}

// Prefix returns the absolute byte prefix of the current position
// regardless of node shape — unlike Key, valid at any position including
// named-type nodes with children. Used to compare two Resident table
// positions for identity (the same row) without caring whether that
// position happens to be individually addressable as a leaf key.
func (w *Walker) Prefix() []byte {
	return append([]byte{}, w.prefix...)
}

// SetView exposes the two subspaces a set node defines (spec.md §4.2).
type SetView struct {
	plan   *storageplan.Plan
	elem   *storageplan.Node
	base   []byte
	frames map[storageplan.Key]frame
}

// EnterSet switches from a set-typed field position into its SetView.
func (w *Walker) EnterSet() (*SetView, error) {
	if w.node == nil || w.node.Set == nil {
		return nil, &ErrPathIntegrity{Reason: "not a set position"}
	}
	return &SetView{plan: w.plan, elem: w.node.Set, base: w.prefix, frames: w.frames}, nil
}

// FastScanPrefix returns the membership-index subspace: primary_key_bytes
// -> empty value, used purely for existence checks.
func (s *SetView) FastScanPrefix() []byte {
	return append(append([]byte{}, s.base...), fastScanTag)
}

// DataPrefix returns the child-field-data subspace shared by every
// member: primary_key_bytes · 0x00 · inner_path.
func (s *SetView) DataPrefix() []byte {
	return append(append([]byte{}, s.base...), dataTag)
}

// Prefix returns the set field's own absolute byte prefix, the parent of
// both FastScanPrefix and DataPrefix — used to compare two Resident set
// positions for identity.
func (s *SetView) Prefix() []byte {
	return append([]byte{}, s.base...)
}

// EndKeyExclusive computes the exclusive upper bound for a delete_range
// or scan_keys call covering exactly the bytes produced by prefix and no
// sibling subspace, per spec.md §4.2's "last_byte += 1" rule.
func EndKeyExclusive(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	// All 0xFF: there is no finite successor: the range extends to the
	// end of the keyspace. Returning the prefix itself extended by a byte
	// that can never appear keeps the range well-formed (empty suffix >
	// any possible key with this all-0xFF prefix is unreachable in
	// practice because storage keys are fixed-width).
	return append(end, 0x00)
}

// Member returns a Walker positioned at one set element, selected by its
// already-encoded primary-key bytes (see pk.go).
func (s *SetView) Member(primaryKeyBytes []byte) *Walker {
	base := s.DataPrefix()
	prefix := make([]byte, 0, len(base)+len(primaryKeyBytes)+1)
	prefix = append(prefix, base...)
	prefix = append(prefix, primaryKeyBytes...)
	prefix = append(prefix, 0x00)
	w := &Walker{plan: s.plan, prefix: prefix, frames: s.frames}
	return w.enter(s.elem)
}
