package storageplan

import "github.com/vmihailenco/msgpack/v5"

// A Plan is a durable artifact: once generated it must outlive the
// process, so later runs (and later re-generations, for the carry-over
// logic in Generate) can see the keys already in use. wireNode/wirePlan
// mirror ir's own wire-struct approach for Script (ir/encoding.go) —
// plain structs msgpack round-trips without custom codecs — applied here
// to Plan instead.

type wireNode struct {
	Key               Key
	Flattened         bool
	SubspaceReference bool
	Packed            bool
	Set               *wireNode
	Children          map[string]*wireNode
}

type wirePlan struct {
	Roots map[string]*wireNode
}

func toWireNode(n *Node) *wireNode {
	if n == nil {
		return nil
	}
	w := &wireNode{
		Key:               n.Key,
		Flattened:         n.Flattened,
		SubspaceReference: n.SubspaceReference,
		Packed:            n.Packed,
		Set:               toWireNode(n.Set),
	}
	if len(n.Children) > 0 {
		w.Children = make(map[string]*wireNode, len(n.Children))
		for name, child := range n.Children {
			w.Children[name] = toWireNode(child)
		}
	}
	return w
}

func fromWireNode(w *wireNode) *Node {
	if w == nil {
		return nil
	}
	n := &Node{
		Key:               w.Key,
		Flattened:         w.Flattened,
		SubspaceReference: w.SubspaceReference,
		Packed:            w.Packed,
		Set:               fromWireNode(w.Set),
	}
	if len(w.Children) > 0 {
		n.Children = make(map[string]*Node, len(w.Children))
		for name, child := range w.Children {
			n.Children[name] = fromWireNode(child)
		}
	}
	return n
}

// Marshal renders a Plan as MessagePack bytes.
func Marshal(p *Plan) ([]byte, error) {
	wp := wirePlan{Roots: make(map[string]*wireNode, len(p.Roots))}
	for name, node := range p.Roots {
		wp.Roots[name] = toWireNode(node)
	}
	return msgpack.Marshal(&wp)
}

// Unmarshal parses MessagePack bytes produced by Marshal back into a Plan.
func Unmarshal(data []byte) (*Plan, error) {
	var wp wirePlan
	if err := msgpack.Unmarshal(data, &wp); err != nil {
		return nil, err
	}
	p := NewPlan()
	for name, node := range wp.Roots {
		p.Roots[name] = fromWireNode(node)
	}
	return p, nil
}
