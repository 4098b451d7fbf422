package storageplan

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	s := itemSchema()
	plan, err := Generate(nil, nil, s, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	data, err := Marshal(plan)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	wantKeys, gotKeys := plan.AllKeys(), got.AllKeys()
	if len(wantKeys) != len(gotKeys) {
		t.Fatalf("expected %d keys after round trip, got %d", len(wantKeys), len(gotKeys))
	}

	root, ok := got.Roots["item"]
	if !ok {
		t.Fatalf("expected export %q to survive round trip", "item")
	}
	if root.Flattened != plan.Roots["item"].Flattened {
		t.Fatalf("Flattened flag did not survive round trip")
	}
	if _, ok := root.Children["a"]; !ok {
		t.Fatalf("expected child field %q to survive round trip", "a")
	}
}
