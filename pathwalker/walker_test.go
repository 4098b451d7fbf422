package pathwalker

import (
	"bytes"
	"testing"

	"github.com/muskanmahajan37/RefineDB/schema"
	"github.com/muskanmahajan37/RefineDB/storageplan"
)

func key(b byte) storageplan.Key {
	var k storageplan.Key
	k[storageplan.KeyLen-1] = b
	return k
}

func TestDescendFieldAppendsNonFlattenedKeyOnly(t *testing.T) {
	plan := storageplan.NewPlan()
	plan.Roots["item"] = &storageplan.Node{
		Key:       key(1),
		Flattened: true, // root Item, non-recursive: shares the (empty) parent prefix
		Children: map[string]*storageplan.Node{
			"a": {Key: key(2)},
		},
	}
	w, err := Root(plan, "item")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	wa, err := w.DescendField("a")
	if err != nil {
		t.Fatalf("DescendField: %v", err)
	}
	if got, want := wa.Key(), key(2)[:]; !bytes.Equal(got, want) {
		t.Fatalf("Key() = %x, want %x", got, want)
	}
}

func TestSubspaceReferenceAliasesEnclosingPrefix(t *testing.T) {
	root := &storageplan.Node{
		Key:       key(9),
		Flattened: false, // recursive: contributes its own key
		Children:  map[string]*storageplan.Node{},
	}
	root.Children["left"] = &storageplan.Node{Key: key(9), SubspaceReference: true}
	root.Children["value"] = &storageplan.Node{Key: key(3)}

	plan := storageplan.NewPlan()
	plan.Roots["data"] = root

	w, err := Root(plan, "data")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	wLeft, err := w.DescendField("left")
	if err != nil {
		t.Fatalf("DescendField(left): %v", err)
	}
	// Following the back-edge must land on the exact same node/prefix as
	// the root itself, so .left.left.value resolves identically to
	// .value (spec.md §4.2's "traversal follows the reference
	// transparently").
	wLeftLeftValue, err := wLeft.DescendField("left")
	if err != nil {
		t.Fatalf("DescendField(left.left): %v", err)
	}
	wLeftLeftValue, err = wLeftLeftValue.DescendField("value")
	if err != nil {
		t.Fatalf("DescendField(value): %v", err)
	}
	wValue, err := w.DescendField("value")
	if err != nil {
		t.Fatalf("DescendField(value): %v", err)
	}
	if !bytes.Equal(wLeftLeftValue.Key(), wValue.Key()) {
		t.Fatalf("expected .left.left.value and .value to alias the same key, got %x vs %x", wLeftLeftValue.Key(), wValue.Key())
	}
}

func TestSetDataPrefixDeleteRangeCoversOnlyOneSet(t *testing.T) {
	plan := storageplan.NewPlan()
	elem := &storageplan.Node{
		Key:       key(5),
		Flattened: true,
		Children: map[string]*storageplan.Node{
			"name": {Key: key(6)},
		},
	}
	setNode := &storageplan.Node{Key: key(4), Set: elem}
	sibling := &storageplan.Node{Key: key(7)}
	plan.Roots["items"] = setNode
	plan.Roots["sibling"] = sibling

	w, err := Root(plan, "items")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	sv, err := w.EnterSet()
	if err != nil {
		t.Fatalf("EnterSet: %v", err)
	}
	dataPrefix := sv.DataPrefix()
	end := EndKeyExclusive(dataPrefix)

	siblingWalker, _ := Root(plan, "sibling")
	siblingKey := siblingWalker.Key()

	if bytes.Compare(siblingKey, dataPrefix) >= 0 && bytes.Compare(siblingKey, end) < 0 {
		t.Fatalf("sibling key %x falls inside [%x, %x) — delete_range would clobber it", siblingKey, dataPrefix, end)
	}

	pk := EncodePrimaryKey(schema.String, Value{Str: "test_id"})
	member := sv.Member(pk)
	memberName, err := member.DescendField("name")
	if err != nil {
		t.Fatalf("DescendField(name): %v", err)
	}
	nameKey := memberName.Key()
	if bytes.Compare(nameKey, dataPrefix) < 0 || bytes.Compare(nameKey, end) >= 0 {
		t.Fatalf("member field key %x not within [%x, %x)", nameKey, dataPrefix, end)
	}
}
