package schema

import "testing"

func TestRecordTypePrimaryField(t *testing.T) {
	for _, tc := range []struct {
		note    string
		fields  []Field
		wantOK  bool
		wantIdx int
	}{
		{
			note: "single primary",
			fields: []Field{
				{Name: "id", Type: &FieldType{Kind: KindPrimitive, Prim: String}, Annotations: []Annotation{{Kind: AnnotationPrimary}}},
				{Name: "name", Type: &FieldType{Kind: KindPrimitive, Prim: String}},
			},
			wantOK:  true,
			wantIdx: 0,
		},
		{
			note: "no primary",
			fields: []Field{
				{Name: "name", Type: &FieldType{Kind: KindPrimitive, Prim: String}},
			},
			wantOK: false,
		},
	} {
		t.Run(tc.note, func(t *testing.T) {
			r := &RecordType{Name: "Item", Fields: tc.fields}
			f, ok := r.PrimaryField()
			if ok != tc.wantOK {
				t.Fatalf("PrimaryField() ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && f.Name != tc.fields[tc.wantIdx].Name {
				t.Fatalf("PrimaryField() = %v, want %v", f.Name, tc.fields[tc.wantIdx].Name)
			}
		})
	}
}

func TestFieldTypeIdentityIsPointer(t *testing.T) {
	// Two distinct occurrences of the same named type must be distinct
	// identities; the planner relies on this to detect cycles (spec.md §9).
	a := &FieldType{Kind: KindNamed, TypeName: "Item"}
	b := &FieldType{Kind: KindNamed, TypeName: "Item"}
	if a == b {
		t.Fatalf("expected distinct FieldType occurrences to have distinct pointer identity")
	}
}

func TestRenameFrom(t *testing.T) {
	annotations := []Annotation{{Kind: AnnotationRenameFrom, RenameFrom: "old_name"}}
	prev, ok := RenameFrom(annotations)
	if !ok || prev != "old_name" {
		t.Fatalf("RenameFrom() = (%q, %v), want (%q, true)", prev, ok, "old_name")
	}
	if _, ok := RenameFrom(nil); ok {
		t.Fatalf("RenameFrom(nil) = ok, want !ok")
	}
}
