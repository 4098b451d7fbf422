// Package schema provides a read-only projection over a compiled record
// schema: named types, their ordered fields, field annotations and the set
// of exported roots. It is the collaborator described in spec.md §1 as
// "CompiledSchema view" (component C1) — the schema grammar/compiler that
// produces this structure is out of scope here; this package only defines
// the shape the rest of the core consumes.
package schema

import "fmt"

// Primitive is a closed enumeration of leaf value kinds.
type Primitive int

const (
	Int64 Primitive = iota
	Double
	String
	Bytes
	Bool
)

func (p Primitive) String() string {
	switch p {
	case Int64:
		return "int64"
	case Double:
		return "double"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("primitive(%d)", int(p))
	}
}

// FieldTypeKind discriminates the closed FieldType sum.
type FieldTypeKind int

const (
	KindPrimitive FieldTypeKind = iota
	KindNamed
	KindSet
	KindOptional
)

// FieldType is the closed sum described in spec.md §3: Primitive(p),
// Named(type_name), Set(member) or Optional(inner).
//
// FieldType values that occur syntactically in the schema are allocated
// once and never copied — their pointer identity is the cycle-detection
// key used by the storage planner (spec.md §9's "pointer identity used as
// a set key" design note). Callers must never synthesize a FieldType by
// value; always take the address of a node owned by a CompiledSchema.
type FieldType struct {
	Kind      FieldTypeKind
	Prim      Primitive  // valid when Kind == KindPrimitive
	TypeName  string     // valid when Kind == KindNamed
	Member    *FieldType // valid when Kind == KindSet
	Inner     *FieldType // valid when Kind == KindOptional
}

func (t *FieldType) String() string {
	switch t.Kind {
	case KindPrimitive:
		return t.Prim.String()
	case KindNamed:
		return t.TypeName
	case KindSet:
		return "set<" + t.Member.String() + ">"
	case KindOptional:
		return t.Inner.String() + "?"
	default:
		return "<invalid field type>"
	}
}

// AnnotationKind enumerates the closed set of field annotations.
type AnnotationKind int

const (
	AnnotationPrimary AnnotationKind = iota
	AnnotationPacked
	AnnotationRenameFrom
)

// Annotation attaches metadata to a field. RenameFrom is only valid when
// Kind == AnnotationRenameFrom and carries the prior field name.
type Annotation struct {
	Kind       AnnotationKind
	RenameFrom string
}

func IsPacked(annotations []Annotation) bool {
	for _, a := range annotations {
		if a.Kind == AnnotationPacked {
			return true
		}
	}
	return false
}

func IsPrimary(annotations []Annotation) bool {
	for _, a := range annotations {
		if a.Kind == AnnotationPrimary {
			return true
		}
	}
	return false
}

// RenameFrom returns the prior field name an @rename_from annotation
// records, and whether one was present.
func RenameFrom(annotations []Annotation) (string, bool) {
	for _, a := range annotations {
		if a.Kind == AnnotationRenameFrom {
			return a.RenameFrom, true
		}
	}
	return "", false
}

// Field is one entry of a named record type's ordered field map: a type
// plus its annotations.
type Field struct {
	Name        string
	Type        *FieldType
	Annotations []Annotation
}

// RecordType is a named record type: an ordered mapping from field name to
// (FieldType, annotations). Fields keep their declaration order; the
// storage planner visits them in that order and keys each plan node's
// children by field name.
type RecordType struct {
	Name   string
	Fields []Field
}

// FieldByName returns the field with the given name, honoring no alias
// resolution — that is the planner's job via @rename_from.
func (r *RecordType) FieldByName(name string) (*Field, bool) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// PrimaryField returns the @primary field of a record type that is a set
// member, per spec.md §3's invariant that a set member carries exactly
// one @primary primitive field.
func (r *RecordType) PrimaryField() (*Field, bool) {
	for i := range r.Fields {
		if IsPrimary(r.Fields[i].Annotations) {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// CompiledSchema is a read-only projection of named types, fields,
// annotations and exports, as produced by the (out of scope) schema
// compiler. It is the input to the storage planner and type checker.
type CompiledSchema struct {
	// Types maps a type name to its definition. Every Named(x) FieldType
	// reachable from an export must resolve here or the planner reports
	// MissingType.
	Types map[string]*RecordType

	// Exports maps an export name to its root field type. Export roots may
	// be primitives, named types, optional types or sets — unlike regular
	// fields, which only occur inside a RecordType.
	Exports map[string]*FieldType
}

// NewCompiledSchema returns an empty, ready-to-populate schema view.
func NewCompiledSchema() *CompiledSchema {
	return &CompiledSchema{
		Types:   map[string]*RecordType{},
		Exports: map[string]*FieldType{},
	}
}

// Resolve looks up a named type, mirroring the MissingType error surfaced
// by the planner (spec.md §4.1) when it cannot.
func (s *CompiledSchema) Resolve(name string) (*RecordType, bool) {
	t, ok := s.Types[name]
	return t, ok
}
