package ir

import "fmt"

// Node is one operation in a TwGraph: a typed vertex whose In edges name
// the indices of the nodes it consumes (spec.md §4.3). Graphs are kept
// topologically sorted so that for every node, every entry of In and the
// Precondition index (if any) is strictly less than the node's own index
// — Validate enforces this rather than a general DAG walk.
type Node struct {
	Op  Op
	In  []int // operand node indices, in operand order
	Out int   // declared result type, index into Script.Types; -1 if not yet type-checked

	Precondition int // node index gating this node's fire rule; -1 if none
	Optional     bool // true if this node is reached through optional chaining and
	// should short-circuit to a typed Null instead of firing when any
	// operand resolves to Null (spec.md §4.5)

	Ident      int // index into Script.Idents; used by GetField/InsertIntoMap/
	// DeleteFromMap's target field, or the
	// BuildTable/BuildSet named type; -1 if unused
	ConstIndex int // LoadConst: index into Script.Consts
	ParamIndex int // LoadParam: index of the graph's declared parameter
	Subgraph   int // Call/Reduce: index into Script.Graphs of the called graph; -1 if unused
	HasRange   bool // Reduce: whether a [start, end) range bound operand follows the
	// collection operand in In, restricting the reduction to a subspan
	// (spec.md §4.5)

	FieldIdents []int // CreateMap only: Idents index for each entry of In, in the
	// same order, naming the field each value operand is inserted under
}

// IsSelect reports whether this node is a Select node, which the
// executor must fire at most once regardless of how many of its
// candidate operands become ready (spec.md §4.5's BothSelectCandidatesFired).
func (n *Node) IsSelect() bool { return n.Op == OpSelect }

// Graph is one TwGraph: a named, possibly-exported dataflow subprogram.
// The entry graph plus any graph reachable from it via Call/Reduce make
// up a runnable TwScript.
type Graph struct {
	Name     string
	Exported bool

	Nodes []Node

	ParamTypes []int // Script.Types indices, in declared parameter order
	OutputType int    // Script.Types index of the graph's result type; -1 if the
	// graph has no output node (pure side-effect graph)
	Output int // node index whose value is the graph's result; -1 if none

	Effects []int // node indices with KV side effects, executed for their effect
	// alone even if nothing downstream consumes their result (spec.md §4.5)
}

// Validate checks the structural invariants the executor relies on
// without re-deriving them at run time: topological order, in-bounds
// operand/precondition/subgraph references, and per-op arity. This is
// the stack-balance-style sanity check the original bytecode interpreter
// this package's design was informed by performs once at load time
// rather than on every execution.
func (g *Graph) Validate(script *Script) error {
	n := len(g.Nodes)
	for i := range g.Nodes {
		node := &g.Nodes[i]
		for _, in := range node.In {
			if in < 0 || in >= i {
				return fmt.Errorf("ir: graph %q node %d (%s): operand %d is not a prior node", g.Name, i, node.Op, in)
			}
		}
		if node.Precondition >= i {
			return fmt.Errorf("ir: graph %q node %d (%s): precondition %d is not a prior node", g.Name, i, node.Op, node.Precondition)
		}
		if arity, ok := fixedArity[node.Op]; ok && len(node.In) != arity {
			return fmt.Errorf("ir: graph %q node %d (%s): expected %d operands, got %d", g.Name, i, node.Op, arity, len(node.In))
		}
		switch node.Op {
		case OpLoadConst:
			if node.ConstIndex < 0 || node.ConstIndex >= len(script.Consts) {
				return fmt.Errorf("ir: graph %q node %d: const index %d out of range", g.Name, i, node.ConstIndex)
			}
		case OpLoadParam:
			if node.ParamIndex < 0 || node.ParamIndex >= len(g.ParamTypes) {
				return fmt.Errorf("ir: graph %q node %d: param index %d out of range", g.Name, i, node.ParamIndex)
			}
		case OpCall, OpReduce:
			if node.Subgraph < 0 || node.Subgraph >= len(script.Graphs) {
				return fmt.Errorf("ir: graph %q node %d: subgraph index %d out of range", g.Name, i, node.Subgraph)
			}
			if node.Op == OpReduce {
				want := 3
				if node.HasRange {
					want = 5
				}
				if len(node.In) != want {
					return fmt.Errorf("ir: graph %q node %d: Reduce expected %d operands (param, acc, collection%s), got %d", g.Name, i, want, rangeSuffix(node.HasRange), len(node.In))
				}
			}
		case OpGetField, OpInsertIntoMap, OpDeleteFromMap, OpBuildTable, OpBuildSet:
			if node.Ident < 0 || node.Ident >= len(script.Idents) {
				return fmt.Errorf("ir: graph %q node %d: ident index %d out of range", g.Name, i, node.Ident)
			}
		}
	}
	if g.Output >= n {
		return fmt.Errorf("ir: graph %q: output node %d out of range", g.Name, g.Output)
	}
	for _, e := range g.Effects {
		if e < 0 || e >= n {
			return fmt.Errorf("ir: graph %q: effect node %d out of range", g.Name, e)
		}
	}
	return nil
}

func rangeSuffix(hasRange bool) string {
	if hasRange {
		return ", start, end"
	}
	return ""
}

// Const is a literal value held in a Script's shared consts pool. Only
// primitive shapes are representable here: composite literals are built
// at run time from CreateMap/CreateList nodes feeding BuildTable/BuildSet
// (spec.md §4.3), so the consts pool never needs to nest.
type ConstKind int

const (
	CNull ConstKind = iota
	CBool
	CInt64
	CDouble
	CString
	CBytes
)

type Const struct {
	Kind   ConstKind
	Bool   bool
	Int64  int64
	Double uint64 // raw IEEE-754 bit pattern
	Str    string
	Bytes  []byte
}

// Script is a complete TwScript: every graph reachable from Entry, plus
// the shared pools every node indexes into (spec.md §4.3's "shared
// constant and type pools" to keep encoded scripts compact).
type Script struct {
	Graphs []Graph
	Entry  int

	Consts []Const
	Idents []string
	Types  []*VmType
}

// Validate runs Graph.Validate over every graph and checks Entry is in range.
func (s *Script) Validate() error {
	if s.Entry < 0 || s.Entry >= len(s.Graphs) {
		return fmt.Errorf("ir: entry graph index %d out of range", s.Entry)
	}
	for i := range s.Graphs {
		if err := s.Graphs[i].Validate(s); err != nil {
			return err
		}
	}
	return nil
}

// GraphByName looks up an exported graph by name, used by the executor
// to resolve a caller-requested entry point distinct from Entry.
func (s *Script) GraphByName(name string) (int, bool) {
	for i := range s.Graphs {
		if s.Graphs[i].Name == name {
			return i, true
		}
	}
	return 0, false
}
