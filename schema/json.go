package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// The schema grammar/compiler itself is out of scope (see the package
// doc comment) — but something has to hand a CompiledSchema to the CLI
// and to tests without every caller hand-building RecordType literals.
// This file is that something: a small, human-editable JSON rendering
// of the same shape, the way a teacher's embedded config objects are
// usually just json.Unmarshal'd into plain structs (cmd/internal/env
// binds flags the same way, one layer up, via viper).

type jsonFieldType struct {
	Kind     string         `json:"kind"`
	Prim     string         `json:"prim,omitempty"`
	TypeName string         `json:"type_name,omitempty"`
	Member   *jsonFieldType `json:"member,omitempty"`
	Inner    *jsonFieldType `json:"inner,omitempty"`
}

type jsonField struct {
	Name       string         `json:"name"`
	Type       *jsonFieldType `json:"type"`
	Primary    bool           `json:"primary,omitempty"`
	Packed     bool           `json:"packed,omitempty"`
	RenameFrom string         `json:"rename_from,omitempty"`
}

type jsonRecordType struct {
	Name   string      `json:"name"`
	Fields []jsonField `json:"fields"`
}

type jsonSchema struct {
	Types   []jsonRecordType          `json:"types"`
	Exports map[string]*jsonFieldType `json:"exports"`
}

func primitiveFromString(s string) (Primitive, error) {
	switch s {
	case "int64":
		return Int64, nil
	case "double":
		return Double, nil
	case "string":
		return String, nil
	case "bytes":
		return Bytes, nil
	case "bool":
		return Bool, nil
	default:
		return 0, fmt.Errorf("schema: unknown primitive %q", s)
	}
}

// fieldTypeFromJSON allocates one fresh *FieldType per call, honoring the
// "take the address of a node owned by a CompiledSchema" invariant every
// syntactic occurrence in the source satisfies.
func fieldTypeFromJSON(j *jsonFieldType) (*FieldType, error) {
	if j == nil {
		return nil, fmt.Errorf("schema: nil field type")
	}
	switch j.Kind {
	case "primitive":
		p, err := primitiveFromString(j.Prim)
		if err != nil {
			return nil, err
		}
		return &FieldType{Kind: KindPrimitive, Prim: p}, nil
	case "named":
		if j.TypeName == "" {
			return nil, fmt.Errorf("schema: named field type missing type_name")
		}
		return &FieldType{Kind: KindNamed, TypeName: j.TypeName}, nil
	case "set":
		member, err := fieldTypeFromJSON(j.Member)
		if err != nil {
			return nil, err
		}
		return &FieldType{Kind: KindSet, Member: member}, nil
	case "optional":
		inner, err := fieldTypeFromJSON(j.Inner)
		if err != nil {
			return nil, err
		}
		return &FieldType{Kind: KindOptional, Inner: inner}, nil
	default:
		return nil, fmt.Errorf("schema: unknown field type kind %q", j.Kind)
	}
}

// LoadJSON parses a jsonSchema document into a CompiledSchema.
func LoadJSON(data []byte) (*CompiledSchema, error) {
	var doc jsonSchema
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	s := NewCompiledSchema()
	for _, jt := range doc.Types {
		rt := &RecordType{Name: jt.Name}
		for _, jf := range jt.Fields {
			ft, err := fieldTypeFromJSON(jf.Type)
			if err != nil {
				return nil, fmt.Errorf("schema: type %q field %q: %w", jt.Name, jf.Name, err)
			}
			var annotations []Annotation
			if jf.Primary {
				annotations = append(annotations, Annotation{Kind: AnnotationPrimary})
			}
			if jf.Packed {
				annotations = append(annotations, Annotation{Kind: AnnotationPacked})
			}
			if jf.RenameFrom != "" {
				annotations = append(annotations, Annotation{Kind: AnnotationRenameFrom, RenameFrom: jf.RenameFrom})
			}
			rt.Fields = append(rt.Fields, Field{Name: jf.Name, Type: ft, Annotations: annotations})
		}
		s.Types[jt.Name] = rt
	}
	for name, jf := range doc.Exports {
		ft, err := fieldTypeFromJSON(jf)
		if err != nil {
			return nil, fmt.Errorf("schema: export %q: %w", name, err)
		}
		s.Exports[name] = ft
	}
	return s, nil
}

// LoadJSONFile reads and parses a schema document from path.
func LoadJSONFile(path string) (*CompiledSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return LoadJSON(data)
}
