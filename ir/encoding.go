package ir

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/muskanmahajan37/RefineDB/schema"
)

// wire mirrors Script/Graph/Node/VmType/Const as plain structs msgpack can
// round-trip without custom codecs, keeping the on-disk format
// self-describing rather than inventing a bespoke binary layout (spec.md §6).

type wireType struct {
	Kind         TypeKind
	Prim         schema.Primitive
	TypeName     string
	Elem         *wireType
	Fields       map[string]*wireType
	Alternatives []*wireType
}

func toWireType(t *VmType) *wireType {
	if t == nil {
		return nil
	}
	w := &wireType{Kind: t.Kind, Prim: t.Prim, TypeName: t.TypeName}
	if t.Elem != nil {
		w.Elem = toWireType(t.Elem)
	}
	if t.Fields != nil {
		w.Fields = make(map[string]*wireType, len(t.Fields))
		for k, v := range t.Fields {
			w.Fields[k] = toWireType(v)
		}
	}
	for _, a := range t.Alternatives {
		w.Alternatives = append(w.Alternatives, toWireType(a))
	}
	return w
}

func fromWireType(w *wireType) *VmType {
	if w == nil {
		return nil
	}
	t := &VmType{Kind: w.Kind, Prim: w.Prim, TypeName: w.TypeName}
	if w.Elem != nil {
		t.Elem = fromWireType(w.Elem)
	}
	if w.Fields != nil {
		t.Fields = make(map[string]*VmType, len(w.Fields))
		for k, v := range w.Fields {
			t.Fields[k] = fromWireType(v)
		}
	}
	for _, a := range w.Alternatives {
		t.Alternatives = append(t.Alternatives, fromWireType(a))
	}
	return t
}

type wireNode struct {
	Op           Op
	In           []int
	Out          int
	Precondition int
	Optional     bool
	Ident        int
	ConstIndex   int
	ParamIndex   int
	Subgraph     int
	HasRange     bool
	FieldIdents  []int
}

type wireGraph struct {
	Name       string
	Exported   bool
	Nodes      []wireNode
	ParamTypes []int
	OutputType int
	Output     int
	Effects    []int
}

type wireScript struct {
	Graphs []wireGraph
	Entry  int
	Consts []Const
	Idents []string
	Types  []*wireType
}

// Marshal renders a Script as MessagePack bytes.
func Marshal(s *Script) ([]byte, error) {
	ws := wireScript{Entry: s.Entry, Consts: s.Consts, Idents: s.Idents}
	for _, t := range s.Types {
		ws.Types = append(ws.Types, toWireType(t))
	}
	for _, g := range s.Graphs {
		wg := wireGraph{
			Name: g.Name, Exported: g.Exported,
			ParamTypes: g.ParamTypes, OutputType: g.OutputType,
			Output: g.Output, Effects: g.Effects,
		}
		for _, n := range g.Nodes {
			wg.Nodes = append(wg.Nodes, wireNode{
				Op: n.Op, In: n.In, Out: n.Out, Precondition: n.Precondition,
				Optional: n.Optional, Ident: n.Ident, ConstIndex: n.ConstIndex,
				ParamIndex: n.ParamIndex, Subgraph: n.Subgraph, HasRange: n.HasRange,
				FieldIdents: n.FieldIdents,
			})
		}
		ws.Graphs = append(ws.Graphs, wg)
	}
	return msgpack.Marshal(&ws)
}

// Unmarshal parses MessagePack bytes produced by Marshal back into a Script.
func Unmarshal(data []byte) (*Script, error) {
	var ws wireScript
	if err := msgpack.Unmarshal(data, &ws); err != nil {
		return nil, err
	}
	s := &Script{Entry: ws.Entry, Consts: ws.Consts, Idents: ws.Idents}
	for _, t := range ws.Types {
		s.Types = append(s.Types, fromWireType(t))
	}
	for _, wg := range ws.Graphs {
		g := Graph{
			Name: wg.Name, Exported: wg.Exported,
			ParamTypes: wg.ParamTypes, OutputType: wg.OutputType,
			Output: wg.Output, Effects: wg.Effects,
		}
		for _, wn := range wg.Nodes {
			g.Nodes = append(g.Nodes, Node{
				Op: wn.Op, In: wn.In, Out: wn.Out, Precondition: wn.Precondition,
				Optional: wn.Optional, Ident: wn.Ident, ConstIndex: wn.ConstIndex,
				ParamIndex: wn.ParamIndex, Subgraph: wn.Subgraph, HasRange: wn.HasRange,
				FieldIdents: wn.FieldIdents,
			})
		}
		s.Graphs = append(s.Graphs, g)
	}
	return s, nil
}
