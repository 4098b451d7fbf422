package storageplan

import (
	"crypto/rand"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/muskanmahajan37/RefineDB/schema"
)

// ErrCode enumerates planner error kinds (spec.md §4.1 "Errors", §7).
type ErrCode int

const (
	// InternalErr is an unexpected planner failure.
	InternalErr ErrCode = iota
	// MissingTypeErr indicates a Named reference could not be resolved.
	MissingTypeErr
)

// Error is the error type returned by the planner. Structural anomalies
// found in the *old* plan during migration are never surfaced this way —
// per spec.md §7 they are logged and the old point is dropped.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("storageplan error (code %d): %s", e.Code, e.Message) }

func missingTypeError(name string) *Error {
	return &Error{Code: MissingTypeErr, Message: fmt.Sprintf("missing type: %s", name)}
}

// Planner builds a new Plan from a schema, optionally migrating storage
// keys from an old (plan, schema) pair (spec.md §4.1). It is deterministic
// given a fixed clock and random source, which tests may override.
type Planner struct {
	Log  logrus.FieldLogger
	Now  func() time.Time
	Rand func([]byte) (int, error)
}

// NewPlanner returns a Planner wired to the real clock and crypto/rand.
// crypto/rand is used deliberately rather than a third-party RNG: the
// requirement is a cryptographically unpredictable 6-byte tail so two
// planners minting keys at the same millisecond never collide, and the
// standard library already provides exactly that guarantee — no library
// in the retrieval pack improves on it for this narrow a need.
func NewPlanner(log logrus.FieldLogger) *Planner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Planner{Log: log, Now: time.Now, Rand: rand.Read}
}

// state threads the "used" key set and recursion-stack bookkeeping through
// one Generate call. subspacesAssigned, like the stack map generateField
// threads through its recursion, is keyed by the pointer identity of a *schema.FieldType node (spec.md §9): the same
// Named("T") occurrence is treated as recursive at one call site and not
// at another, so structural equality would be wrong here.
type state struct {
	p                 *Planner
	oldSchema         *schema.CompiledSchema
	used              map[Key]bool
	subspacesAssigned map[*schema.FieldType]Key
}

func (s *state) mintKey(reuse Key, reuseOK bool) Key {
	if reuseOK {
		s.used[reuse] = true
		return reuse
	}
	for {
		millis := s.p.Now().UnixMilli()
		var tail [6]byte
		if _, err := s.p.Rand(tail[:]); err != nil {
			// crypto/rand failing is a fatal environment error, not a
			// recoverable planner condition.
			panic(errors.Wrap(err, "storageplan: reading randomness"))
		}
		k := newKeyFromParts(millis, tail)
		if !s.used[k] {
			s.used[k] = true
			return k
		}
	}
}

// Generate builds a new Plan for newSchema. If oldPlan/oldSchema are
// non-nil, storage keys are carried over from compatible old locations
// (spec.md §4.1 steps 2-4). Pass nil, nil for a from-scratch plan.
func Generate(oldPlan *Plan, oldSchema *schema.CompiledSchema, newSchema *schema.CompiledSchema, planner *Planner) (*Plan, error) {
	if planner == nil {
		planner = NewPlanner(nil)
	}
	used := map[Key]bool{}
	if oldPlan != nil {
		for _, k := range oldPlan.AllKeys() {
			used[k] = true
		}
	}
	st := &state{
		p:                 planner,
		oldSchema:         oldSchema,
		used:              used,
		subspacesAssigned: map[*schema.FieldType]Key{},
	}

	plan := NewPlan()
	// Deterministic iteration order over exports so diagnostics and any
	// incidental key-minting order are reproducible across runs with the
	// same rand/clock source.
	names := make([]string, 0, len(newSchema.Exports))
	for name := range newSchema.Exports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := newSchema.Exports[name]
		var old *oldTreePoint
		if oldPlan != nil && oldSchema != nil {
			if oldField, ok := oldSchema.Exports[name]; ok {
				if node, ok := oldPlan.Roots[name]; ok {
					old = &oldTreePoint{name: name, ty: oldField, node: node}
					old = old.validateType(st, field, nil)
				}
			}
		}
		node, err := st.generateField(newSchema, field, nil, old, map[*schema.FieldType]bool{})
		if err != nil {
			return nil, err
		}
		plan.Roots[name] = node
	}
	return plan, nil
}

// oldTreePoint is the candidate node in the old plan a recursive call
// carries along, per spec.md §4.1 step 4.
type oldTreePoint struct {
	name string
	ty   *schema.FieldType
	node *Node
}

func (o *oldTreePoint) reduceOptional() *oldTreePoint {
	if o == nil {
		return nil
	}
	if o.ty.Kind == schema.KindOptional {
		cp := *o
		cp.ty = o.ty.Inner
		return &cp
	}
	return o
}

func (o *oldTreePoint) reduceSet(st *state) *oldTreePoint {
	if o == nil {
		return nil
	}
	if o.ty.Kind != schema.KindSet {
		st.p.Log.Warnf("field `%s` becomes a set - previous value will not be preserved", o.name)
		return nil
	}
	if o.node.Set == nil {
		st.p.Log.Errorf("inconsistency detected: node for set field `%s` has no Set subtree - dropping", o.name)
		return nil
	}
	cp := *o
	cp.ty = o.ty.Member
	cp.node = o.node.Set
	return &cp
}

// validateType checks the old point's type against what's now expected,
// allowing the mandatory-to-optional widening spec.md §4.1 step 4
// describes, and dropping the point (with a log) on any other mismatch.
func (o *oldTreePoint) validateType(st *state, expected *schema.FieldType, expectedAnnotations []schema.Annotation) *oldTreePoint {
	if o == nil {
		return nil
	}
	if !sameFieldShape(o.ty, expected) {
		if expected.Kind == schema.KindOptional && sameFieldShape(o.ty, expected.Inner) {
			// mandatory -> optional widening is allowed.
		} else {
			st.p.Log.Warnf("field `%s` had type `%s` but new type is `%s` - previous value will not be preserved", o.name, o.ty, expected)
			return nil
		}
	}
	oldPacked := o.node.Packed
	newPacked := schema.IsPacked(expectedAnnotations)
	if oldPacked != newPacked {
		st.p.Log.Warnf("field `%s` packed-ness changed - previous value will not be preserved", o.name)
		return nil
	}
	return o
}

// sameFieldShape compares two FieldTypes structurally (kind, primitive,
// type name) — intentionally NOT pointer identity, since the old and new
// FieldType trees are different schema versions entirely.
func sameFieldShape(a, b *schema.FieldType) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case schema.KindPrimitive:
		return a.Prim == b.Prim
	case schema.KindNamed:
		return a.TypeName == b.TypeName
	case schema.KindSet:
		return sameFieldShape(a.Member, b.Member)
	case schema.KindOptional:
		return sameFieldShape(a.Inner, b.Inner)
	}
	return false
}

func (o *oldTreePoint) storageKey() (Key, bool) {
	if o == nil {
		return Key{}, false
	}
	if o.node.Flattened || o.node.SubspaceReference || o.node.Key.IsZero() {
		return Key{}, false
	}
	return o.node.Key, true
}

// resolveSubfield honours @rename_from: if name isn't present in the old
// node's children but some annotation on the *new* field names it as a
// rename target, the old child is looked up under the prior name instead.
func (o *oldTreePoint) resolveSubfield(st *state, name string, newAnnotations []schema.Annotation) *oldTreePoint {
	if o == nil {
		return nil
	}
	oldRT, ok := st.oldSchema.Resolve(typeNameOf(o.ty))
	if !ok {
		return nil
	}
	lookupName := name
	if prev, has := schema.RenameFrom(newAnnotations); has {
		if _, exists := oldRT.FieldByName(name); !exists {
			lookupName = prev
		}
	}
	childNode, ok := o.node.Children[lookupName]
	if !ok {
		return nil
	}
	oldField, ok := oldRT.FieldByName(lookupName)
	if !ok {
		return nil
	}
	return &oldTreePoint{name: lookupName, ty: oldField.Type, node: childNode}
}

func typeNameOf(t *schema.FieldType) string {
	if t == nil || t.Kind != schema.KindNamed {
		return ""
	}
	return t.TypeName
}

// generateField is the recursive descent of spec.md §4.1 step 3.
// stack tracks, by FieldType pointer identity, which Named occurrences
// are currently being expanded on this call chain — the cycle detector.
func (st *state) generateField(sch *schema.CompiledSchema, field *schema.FieldType, annotations []schema.Annotation, old *oldTreePoint, stack map[*schema.FieldType]bool) (*Node, error) {
	switch field.Kind {
	case schema.KindOptional:
		return st.generateField(sch, field.Inner, annotations, old.reduceOptional(), stack)

	case schema.KindPrimitive:
		key, ok := old.storageKey()
		k := st.mintKey(key, ok)
		return &Node{Key: k}, nil

	case schema.KindSet:
		innerOld := old.reduceSet(st)
		innerOld = innerOld.validateType(st, field.Member, annotations)
		inner, err := st.generateField(sch, field.Member, annotations, innerOld, stack)
		if err != nil {
			return nil, err
		}
		key, ok := old.storageKey()
		k := st.mintKey(key, ok)
		return &Node{Key: k, Set: inner}, nil

	case schema.KindNamed:
		if schema.IsPacked(annotations) {
			key, ok := old.storageKey()
			k := st.mintKey(key, ok)
			return &Node{Key: k, Packed: true}, nil
		}

		if stack[field] {
			// Back-edge: this occurrence closes a cycle. Reuse the key
			// already assigned to the enclosing occurrence.
			k, ok := st.subspacesAssigned[field]
			if !ok {
				return nil, errors.New("storageplan: internal error, recursive occurrence has no assigned key")
			}
			return &Node{Key: k, SubspaceReference: true}, nil
		}

		rt, ok := sch.Resolve(field.TypeName)
		if !ok {
			return nil, missingTypeError(field.TypeName)
		}

		key, hasOld := old.storageKey()
		k := st.mintKey(key, hasOld)
		st.subspacesAssigned[field] = k
		stack[field] = true

		children := map[string]*Node{}
		recursive := false
		for _, f := range rt.Fields {
			var childOld *oldTreePoint
			if old != nil {
				childOld = old.resolveSubfield(st, f.Name, f.Annotations)
				childOld = childOld.validateType(st, f.Type, f.Annotations)
			}
			child, err := st.generateField(sch, f.Type, f.Annotations, childOld, stack)
			if err != nil {
				delete(stack, field)
				return nil, err
			}
			if nodeIsOrContainsSubspaceRef(child, k) {
				recursive = true
			}
			children[f.Name] = child
		}
		delete(stack, field)
		delete(st.subspacesAssigned, field)

		return &Node{
			Key:       k,
			Flattened: !recursive,
			Children:  children,
		}, nil
	}
	return nil, errors.Errorf("storageplan: unknown field type kind %d", field.Kind)
}

// nodeIsOrContainsSubspaceRef reports whether n, or any node below it
// (children and set elements, at any depth), is a subspace reference back
// to key k — used to
// decide whether the enclosing named node participates in a cycle and
// must therefore NOT be flattened.
func nodeIsOrContainsSubspaceRef(n *Node, k Key) bool {
	if n.SubspaceReference && n.Key == k {
		return true
	}
	if n.Set != nil && nodeIsOrContainsSubspaceRef(n.Set, k) {
		return true
	}
	for _, c := range n.Children {
		if nodeIsOrContainsSubspaceRef(c, k) {
			return true
		}
	}
	return false
}
