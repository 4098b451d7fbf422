// Package typecheck computes a VmType for every node of an ir.Graph in a
// single forward pass, in topological order (spec.md §4.4, component
// C7). The covariance rule is checked for every precondition and for each
// graph's output against its declared output type; GetField, ListHead and
// GetSetElement also reject an operand of the wrong shape. Other ops'
// operands are not checked (Add/Sub take the first operand's type,
// InsertIntoMap the map's), so a mismatch there surfaces only when the
// executor runs the script.
package typecheck

import (
	"fmt"

	"github.com/muskanmahajan37/RefineDB/ir"
	"github.com/muskanmahajan37/RefineDB/schema"
)

// Error reports a single type-checking failure, naming the graph and
// node index so a caller can map it back to source.
type Error struct {
	Graph string
	Node  int
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("typecheck: graph %q node %d: %s", e.Graph, e.Node, e.Msg)
}

// Check type-checks every graph in the script against sch and annotates
// each node's Out field with its inferred result type (mutating the
// script in place, the same way the planner mutates nodes in place while
// building a plan). Graphs are checked in the order they appear; Call/
// Reduce references to a later-declared graph are resolved by index, not
// by requiring declaration order.
func Check(s *ir.Script, sch *schema.CompiledSchema) error {
	for i := range s.Graphs {
		if err := checkGraph(s, sch, &s.Graphs[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkGraph(s *ir.Script, sch *schema.CompiledSchema, g *ir.Graph) error {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		t, err := nodeType(s, sch, g, n, i)
		if err != nil {
			return err
		}
		n.Out = registerType(s, t)
	}
	if g.Output >= 0 {
		want := g.OutputType
		have := g.Nodes[g.Output].Out
		if want >= 0 && !ir.Covariant(s.Types[want], s.Types[have]) {
			return &Error{Graph: g.Name, Node: g.Output, Msg: fmt.Sprintf(
				"graph output type %s is not covariant with declared output type %s",
				s.Types[have], s.Types[want])}
		}
	}
	for _, idx := range g.Effects {
		if idx < 0 || idx >= len(g.Nodes) {
			return &Error{Graph: g.Name, Node: idx, Msg: "effect node index out of range"}
		}
	}
	return nil
}

// registerType finds or appends t in the script's shared types pool, so
// repeated identical types across nodes share one *VmType the way the
// storage plan shares keys across migrations.
func registerType(s *ir.Script, t *ir.VmType) int {
	for i, existing := range s.Types {
		if existing.Equal(t) {
			return i
		}
	}
	s.Types = append(s.Types, t)
	return len(s.Types) - 1
}

func operandType(s *ir.Script, g *ir.Graph, idx int) *ir.VmType {
	return s.Types[g.Nodes[idx].Out]
}

func checkPrecondition(s *ir.Script, g *ir.Graph, n *ir.Node) error {
	if n.Precondition < 0 {
		return nil
	}
	pt := operandType(s, g, n.Precondition)
	want := ir.NewOneOf(ir.NewBoolType(), ir.NewNullType())
	if !ir.Covariant(want, pt) {
		return fmt.Errorf("precondition type %s must resolve to Bool or OneOf(Null, Bool)", pt)
	}
	return nil
}

func nodeType(s *ir.Script, sch *schema.CompiledSchema, g *ir.Graph, n *ir.Node, idx int) (*ir.VmType, error) {
	if err := checkPrecondition(s, g, n); err != nil {
		return nil, &Error{Graph: g.Name, Node: idx, Msg: err.Error()}
	}
	switch n.Op {
	case ir.OpLoadParam:
		if n.ParamIndex < 0 || n.ParamIndex >= len(g.ParamTypes) {
			return nil, &Error{Graph: g.Name, Node: idx, Msg: "param index out of range"}
		}
		return s.Types[g.ParamTypes[n.ParamIndex]], nil

	case ir.OpLoadConst:
		return constType(s.Consts[n.ConstIndex]), nil

	case ir.OpCreateMap:
		fields := map[string]*ir.VmType{}
		for i, in := range n.In {
			name := s.Idents[n.FieldIdents[i]]
			fields[name] = operandType(s, g, in)
		}
		return ir.NewMapType(fields), nil

	case ir.OpCreateList:
		var elem *ir.VmType
		for _, in := range n.In {
			et := operandType(s, g, in)
			if elem == nil {
				elem = et
			} else if !elem.Equal(et) {
				elem = ir.NewOneOf(elem, et)
			}
		}
		if elem == nil {
			elem = ir.NewNullType()
		}
		return ir.NewListType(elem), nil

	case ir.OpNop:
		if len(n.In) == 0 {
			return ir.NewNullType(), nil
		}
		return operandType(s, g, n.In[0]), nil

	case ir.OpBuildTable:
		return maybeOptional(n, ir.NewTableType(s.Idents[n.Ident])), nil

	case ir.OpBuildSet:
		return maybeOptional(n, ir.NewSetType(ir.NewTableType(s.Idents[n.Ident]))), nil

	case ir.OpInsertIntoMap:
		return operandType(s, g, n.In[0]), nil

	case ir.OpDeleteFromMap:
		return operandType(s, g, n.In[0]), nil

	case ir.OpPrependToList:
		return operandType(s, g, n.In[1]), nil

	case ir.OpPopFromList:
		lt := operandType(s, g, n.In[0])
		return ir.NewOptional(lt), nil

	case ir.OpListHead:
		lt := operandType(s, g, n.In[0])
		if lt.Kind != ir.TList {
			return nil, &Error{Graph: g.Name, Node: idx, Msg: "ListHead requires a List operand"}
		}
		return ir.NewOptional(lt.Elem), nil

	case ir.OpGetField:
		bt := operandType(s, g, n.In[0])
		ft, err := fieldType(sch, bt, s.Idents[n.Ident])
		if err != nil {
			return nil, &Error{Graph: g.Name, Node: idx, Msg: err.Error()}
		}
		return maybeOptional(n, ft), nil

	case ir.OpGetSetElement:
		st := operandType(s, g, n.In[0])
		if st.Kind != ir.TSet {
			return nil, &Error{Graph: g.Name, Node: idx, Msg: "GetSetElement requires a Set operand"}
		}
		return ir.NewOptional(st.Elem), nil

	case ir.OpInsertIntoTable, ir.OpInsertIntoSet, ir.OpDeleteFromTable, ir.OpDeleteFromSet:
		return ir.NewNullType(), nil

	case ir.OpEq, ir.OpNe, ir.OpAnd, ir.OpOr, ir.OpNot:
		return ir.NewBoolType(), nil

	case ir.OpIsPresent, ir.OpIsNull:
		return ir.NewBoolType(), nil

	case ir.OpUnwrapOptional:
		t := operandType(s, g, n.In[0])
		return unwrapOptional(t), nil

	case ir.OpAdd, ir.OpSub:
		lt := operandType(s, g, n.In[0])
		return lt, nil

	case ir.OpSelect:
		a := operandType(s, g, n.In[0])
		b := operandType(s, g, n.In[1])
		if a.Equal(b) {
			return a, nil
		}
		return ir.NewOneOf(a, b), nil

	case ir.OpCall:
		if n.Subgraph < 0 || n.Subgraph >= len(s.Graphs) {
			return nil, &Error{Graph: g.Name, Node: idx, Msg: "subgraph index out of range"}
		}
		callee := &s.Graphs[n.Subgraph]
		if callee.OutputType < 0 {
			return ir.NewNullType(), nil
		}
		return s.Types[callee.OutputType], nil

	case ir.OpReduce:
		if n.Subgraph < 0 || n.Subgraph >= len(s.Graphs) {
			return nil, &Error{Graph: g.Name, Node: idx, Msg: "subgraph index out of range"}
		}
		callee := &s.Graphs[n.Subgraph]
		if callee.OutputType < 0 {
			return ir.NewNullType(), nil
		}
		return s.Types[callee.OutputType], nil

	case ir.OpThrow:
		return ir.NewNullType(), nil

	case ir.OpFilterSet:
		return nil, &Error{Graph: g.Name, Node: idx, Msg: "FilterSet is reserved and has no executor support"}

	default:
		return nil, &Error{Graph: g.Name, Node: idx, Msg: fmt.Sprintf("unknown op %v", n.Op)}
	}
}

func maybeOptional(n *ir.Node, t *ir.VmType) *ir.VmType {
	if n.Optional {
		return ir.NewOptional(t)
	}
	return t
}

func unwrapOptional(t *ir.VmType) *ir.VmType {
	if t.Kind != ir.TOneOf {
		return t
	}
	var rest []*ir.VmType
	for _, a := range t.Alternatives {
		if a.Kind != ir.TNull {
			rest = append(rest, a)
		}
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return ir.NewOneOf(rest...)
}

func constType(c ir.Const) *ir.VmType {
	switch c.Kind {
	case ir.CNull:
		return ir.NewNullType()
	case ir.CBool:
		return ir.NewBoolType()
	case ir.CInt64:
		return ir.NewPrimitiveType(schema.Int64)
	case ir.CDouble:
		return ir.NewPrimitiveType(schema.Double)
	case ir.CString:
		return ir.NewPrimitiveType(schema.String)
	case ir.CBytes:
		return ir.NewPrimitiveType(schema.Bytes)
	default:
		return ir.NewNullType()
	}
}

// fieldType looks up a named field's type within a Map or Table-shaped
// base type. Map literals carry their field types directly; Table values
// are resolved against the compiled schema's record type definitions,
// converting each schema.FieldType into the equivalent ir.VmType shape.
func fieldType(sch *schema.CompiledSchema, base *ir.VmType, field string) (*ir.VmType, error) {
	switch base.Kind {
	case ir.TMap:
		ft, ok := base.Fields[field]
		if !ok {
			return nil, fmt.Errorf("no such field %q", field)
		}
		return ft, nil
	case ir.TOneOf:
		for _, alt := range base.Alternatives {
			if alt.Kind == ir.TMap || alt.Kind == ir.TTable {
				return fieldType(sch, alt, field)
			}
		}
		return nil, fmt.Errorf("GetField on OneOf with no Map/Table alternative")
	case ir.TTable:
		rt, ok := sch.Resolve(base.TypeName)
		if !ok {
			return nil, fmt.Errorf("unknown record type %q", base.TypeName)
		}
		f, ok := rt.FieldByName(field)
		if !ok {
			return nil, fmt.Errorf("no such field %q on type %q", field, base.TypeName)
		}
		if schema.IsPacked(f.Annotations) {
			return nil, fmt.Errorf("field %q: packed fields are not yet supported for individual addressing", field)
		}
		return fieldTypeFromSchema(f.Type), nil
	default:
		return nil, fmt.Errorf("GetField requires a Map or Table operand, got %s", base)
	}
}

// fieldTypeFromSchema converts a schema.FieldType into the VmType shape
// the type checker reasons about.
func fieldTypeFromSchema(t *schema.FieldType) *ir.VmType {
	switch t.Kind {
	case schema.KindPrimitive:
		return ir.NewPrimitiveType(t.Prim)
	case schema.KindNamed:
		return ir.NewTableType(t.TypeName)
	case schema.KindSet:
		return ir.NewSetType(fieldTypeFromSchema(t.Member))
	case schema.KindOptional:
		return ir.NewOptional(fieldTypeFromSchema(t.Inner))
	default:
		return ir.NewNullType()
	}
}
