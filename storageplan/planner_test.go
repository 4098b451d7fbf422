package storageplan

import (
	"testing"

	"github.com/muskanmahajan37/RefineDB/schema"
)

func itemSchema() *schema.CompiledSchema {
	s := schema.NewCompiledSchema()
	item := &schema.RecordType{
		Name: "Item",
		Fields: []schema.Field{
			{Name: "a", Type: &schema.FieldType{Kind: schema.KindPrimitive, Prim: schema.Int64}},
			{Name: "b", Type: &schema.FieldType{Kind: schema.KindPrimitive, Prim: schema.String}},
		},
	}
	s.Types["Item"] = item
	s.Exports["item"] = &schema.FieldType{Kind: schema.KindNamed, TypeName: "Item"}
	return s
}

func TestGenerateUniqueKeys(t *testing.T) {
	s := itemSchema()
	plan, err := Generate(nil, nil, s, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	keys := plan.AllKeys()
	seen := map[Key]bool{}
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %v", k)
		}
		seen[k] = true
	}
	if len(keys) != 3 { // Item node + field a + field b
		t.Fatalf("expected 3 keys, got %d: %v", len(keys), keys)
	}
}

func TestGenerateMissingType(t *testing.T) {
	s := schema.NewCompiledSchema()
	s.Exports["item"] = &schema.FieldType{Kind: schema.KindNamed, TypeName: "Item"}
	_, err := Generate(nil, nil, s, nil)
	perr, ok := err.(*Error)
	if !ok || perr.Code != MissingTypeErr {
		t.Fatalf("expected MissingTypeErr, got %v", err)
	}
}

func TestGenerateReusesKeysAcrossMigration(t *testing.T) {
	s := itemSchema()
	plan1, err := Generate(nil, nil, s, nil)
	if err != nil {
		t.Fatalf("Generate 1: %v", err)
	}
	// Same schema identity (field names/shape unchanged) -> every key must
	// be reused verbatim (spec.md §8 invariant).
	s2 := itemSchema()
	plan2, err := Generate(plan1, s, s2, nil)
	if err != nil {
		t.Fatalf("Generate 2: %v", err)
	}
	if plan1.Roots["item"].Key != plan2.Roots["item"].Key {
		t.Fatalf("expected Item node key to be reused")
	}
	if plan1.Roots["item"].Children["a"].Key != plan2.Roots["item"].Children["a"].Key {
		t.Fatalf("expected field `a` key to be reused")
	}
	if plan1.Roots["item"].Children["b"].Key != plan2.Roots["item"].Children["b"].Key {
		t.Fatalf("expected field `b` key to be reused")
	}
}

func TestGenerateDropsRemovedField(t *testing.T) {
	s := itemSchema()
	plan1, _ := Generate(nil, nil, s, nil)

	s2 := schema.NewCompiledSchema()
	s2.Types["Item"] = &schema.RecordType{
		Name: "Item",
		Fields: []schema.Field{
			{Name: "a", Type: &schema.FieldType{Kind: schema.KindPrimitive, Prim: schema.Int64}},
		},
	}
	s2.Exports["item"] = &schema.FieldType{Kind: schema.KindNamed, TypeName: "Item"}

	plan2, err := Generate(plan1, s, s2, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, ok := plan2.Roots["item"].Children["b"]; ok {
		t.Fatalf("expected field `b` to be dropped")
	}
	if plan1.Roots["item"].Children["a"].Key != plan2.Roots["item"].Children["a"].Key {
		t.Fatalf("expected field `a` key to be reused despite sibling removal")
	}
}

// TestGenerateRecursiveSchema exercises spec.md §8 scenario 6: a
// self-referential BinaryTree-shaped type. The recursive occurrence must
// be a subspace_reference sharing the enclosing node's key, the enclosing
// node must not be flattened, and leaf fields still mint their own keys.
// The export's FieldType is a different occurrence from the `left`/`right`
// fields' shared selfTy, so the cycle closes one level down: the export's
// `left` child is the first expansion of selfTy and thus the enclosing node.
func TestGenerateRecursiveSchema(t *testing.T) {
	s := schema.NewCompiledSchema()
	tree := &schema.RecordType{Name: "BinaryTree"}
	selfTy := &schema.FieldType{Kind: schema.KindNamed, TypeName: "BinaryTree"}
	tree.Fields = []schema.Field{
		{Name: "left", Type: &schema.FieldType{Kind: schema.KindOptional, Inner: selfTy}},
		{Name: "right", Type: &schema.FieldType{Kind: schema.KindOptional, Inner: selfTy}},
		{Name: "value", Type: &schema.FieldType{Kind: schema.KindOptional, Inner: &schema.FieldType{Kind: schema.KindPrimitive, Prim: schema.Int64}}},
	}
	s.Types["BinaryTree"] = tree
	s.Exports["data"] = &schema.FieldType{Kind: schema.KindNamed, TypeName: "BinaryTree"}

	plan, err := Generate(nil, nil, s, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	enclosing := plan.Roots["data"].Children["left"]
	if enclosing.Flattened || enclosing.SubspaceReference {
		t.Fatalf("recursive BinaryTree occurrence must be a non-flattened named node")
	}
	left := enclosing.Children["left"]
	if !left.SubspaceReference {
		t.Fatalf("expected `left` to be a subspace_reference back-edge")
	}
	if left.Key != enclosing.Key {
		t.Fatalf("expected `left` back-edge key (%v) to equal enclosing node key (%v)", left.Key, enclosing.Key)
	}
	right := enclosing.Children["right"]
	if !right.SubspaceReference || right.Key != enclosing.Key {
		t.Fatalf("expected `right` to be a subspace_reference to the same key")
	}
	value := enclosing.Children["value"]
	if value.Key.IsZero() || value.Key == enclosing.Key {
		t.Fatalf("expected `value` leaf to have its own fresh key")
	}
}
