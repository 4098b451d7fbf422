package exec

import (
	"context"
	"testing"
	"time"

	"github.com/muskanmahajan37/RefineDB/ir"
	"github.com/muskanmahajan37/RefineDB/kv/codec"
	"github.com/muskanmahajan37/RefineDB/kv/memkv"
	"github.com/muskanmahajan37/RefineDB/logging"
	"github.com/muskanmahajan37/RefineDB/pathwalker"
	"github.com/muskanmahajan37/RefineDB/schema"
	"github.com/muskanmahajan37/RefineDB/storageplan"
	"github.com/muskanmahajan37/RefineDB/vmvalue"
)

func itemSchema() *schema.CompiledSchema {
	s := schema.NewCompiledSchema()
	s.Types["Item"] = &schema.RecordType{
		Name: "Item",
		Fields: []schema.Field{
			{Name: "a", Type: &schema.FieldType{Kind: schema.KindPrimitive, Prim: schema.Int64}},
		},
	}
	s.Exports["item"] = &schema.FieldType{Kind: schema.KindNamed, TypeName: "Item"}
	return s
}

func packedSchema() *schema.CompiledSchema {
	s := schema.NewCompiledSchema()
	s.Types["Item"] = &schema.RecordType{
		Name: "Item",
		Fields: []schema.Field{
			{Name: "blob", Type: &schema.FieldType{Kind: schema.KindNamed, TypeName: "Blob"},
				Annotations: []schema.Annotation{{Kind: schema.AnnotationPacked}}},
		},
	}
	s.Types["Blob"] = &schema.RecordType{Name: "Blob"}
	s.Exports["item"] = &schema.FieldType{Kind: schema.KindNamed, TypeName: "Item"}
	return s
}

func setSchema() *schema.CompiledSchema {
	s := schema.NewCompiledSchema()
	s.Types["Member"] = &schema.RecordType{
		Name: "Member",
		Fields: []schema.Field{
			{Name: "id", Type: &schema.FieldType{Kind: schema.KindPrimitive, Prim: schema.Int64},
				Annotations: []schema.Annotation{{Kind: schema.AnnotationPrimary}}},
		},
	}
	s.Types["Item"] = &schema.RecordType{
		Name: "Item",
		Fields: []schema.Field{
			{Name: "members", Type: &schema.FieldType{
				Kind: schema.KindSet,
				Member: &schema.FieldType{Kind: schema.KindNamed, TypeName: "Member"},
			}},
		},
	}
	s.Exports["item"] = &schema.FieldType{Kind: schema.KindNamed, TypeName: "Item"}
	return s
}

func rootTableValue(t *testing.T, plan *storageplan.Plan, typeName, export string) *vmvalue.Value {
	t.Helper()
	w, err := pathwalker.Root(plan, export)
	if err != nil {
		t.Fatalf("pathwalker.Root: %v", err)
	}
	return vmvalue.NewResidentTable(typeName, w)
}

func singleGraphScript(g ir.Graph, idents []string) *ir.Script {
	return &ir.Script{Graphs: []ir.Graph{g}, Entry: 0, Idents: idents}
}

func newExecTestVM(t *testing.T, sch *schema.CompiledSchema, script *ir.Script) (*VM, *storageplan.Plan) {
	t.Helper()
	plan, err := storageplan.Generate(nil, nil, sch, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	store := memkv.NewStore()
	return NewVM(sch, plan, script, store, logging.NewNoOpLogger()), plan
}

func TestExecuteAddConcatenatesStrings(t *testing.T) {
	sch := schema.NewCompiledSchema()
	g := ir.Graph{
		Name: "concat", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadConst, ConstIndex: 0, Precondition: -1},
			{Op: ir.OpLoadConst, ConstIndex: 1, Precondition: -1},
			{Op: ir.OpAdd, In: []int{0, 1}, Precondition: -1},
		},
		Output: 2,
	}
	script := &ir.Script{
		Graphs: []ir.Graph{g},
		Entry:  0,
		Consts: []ir.Const{{Kind: ir.CString, Str: "foo"}, {Kind: ir.CString, Str: "bar"}},
	}
	vm, _ := newExecTestVM(t, sch, script)
	ex := NewExecutor(vm)
	out, err := ex.Execute(context.Background(), "concat", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Kind() != vmvalue.KString || out.Str() != "foobar" {
		t.Fatalf("expected String(\"foobar\"), got %v", out)
	}
}

func TestExecuteSimplePointGet(t *testing.T) {
	sch := itemSchema()
	g := ir.Graph{
		Name: "getA", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},
			{Op: ir.OpGetField, In: []int{0}, Ident: 0, Precondition: -1},
		},
		Output: 1,
	}
	script := singleGraphScript(g, []string{"a"})
	vm, plan := newExecTestVM(t, sch, script)

	w, err := pathwalker.Root(plan, "item")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	leaf, err := w.DescendField("a")
	if err != nil {
		t.Fatalf("DescendField: %v", err)
	}
	raw, _ := codec.EncodeInt64(42)
	ctx := context.Background()
	txn, _ := vm.Store.Begin(ctx)
	if err := txn.Put(ctx, leaf.Key(), raw); err != nil {
		t.Fatalf("seed Put: %v", err)
	}
	if err := vm.Store.Commit(ctx, txn); err != nil {
		t.Fatalf("seed Commit: %v", err)
	}

	ex := NewExecutor(vm)
	out, err := ex.Execute(ctx, "getA", []*vmvalue.Value{rootTableValue(t, plan, "Item", "item")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Kind() != vmvalue.KInt64 || out.Int64() != 42 {
		t.Fatalf("expected Int64(42), got %v", out)
	}
}

func TestExecuteNopPassesInputThrough(t *testing.T) {
	sch := itemSchema()
	g := ir.Graph{
		Name: "nop", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadConst, ConstIndex: 0, Precondition: -1},
			{Op: ir.OpNop, In: []int{0}, Precondition: -1},
		},
		Output: 1,
	}
	script := &ir.Script{
		Graphs: []ir.Graph{g},
		Entry:  0,
		Consts: []ir.Const{{Kind: ir.CInt64, Int64: 7}},
	}
	vm, _ := newExecTestVM(t, sch, script)
	ex := NewExecutor(vm)
	out, err := ex.Execute(context.Background(), "nop", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Kind() != vmvalue.KInt64 || out.Int64() != 7 {
		t.Fatalf("expected Int64(7) passed through Nop, got %v", out)
	}
}

func TestExecuteGetFieldOnPackedFieldFailsWithPathIntegrity(t *testing.T) {
	sch := packedSchema()
	g := ir.Graph{
		Name: "getBlob", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},
			{Op: ir.OpGetField, In: []int{0}, Ident: 0, Precondition: -1},
		},
		Output: 1,
	}
	script := singleGraphScript(g, []string{"blob"})
	vm, plan := newExecTestVM(t, sch, script)

	ex := NewExecutor(vm)
	_, err := ex.Execute(context.Background(), "getBlob", []*vmvalue.Value{rootTableValue(t, plan, "Item", "item")})
	if err == nil {
		t.Fatal("expected an error reading a packed field")
	}
	if !IsCode(err, PathIntegrityFailure) {
		t.Fatalf("expected PathIntegrityFailure, got %v", err)
	}
}

func TestSetInsertGetDeleteRoundTrip(t *testing.T) {
	sch := setSchema()

	// addMember: LoadConst(7) -> CreateMap{id: 7} -> BuildTable(Member);
	// LoadParam(0) -> GetField(members); InsertIntoSet(set, member) as effect.
	addGraph := ir.Graph{
		Name: "addMember", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadConst, ConstIndex: 0, Precondition: -1},                          // 0: 7
			{Op: ir.OpCreateMap, In: []int{0}, FieldIdents: []int{0}, Precondition: -1},     // 1: {id: 7}
			{Op: ir.OpBuildTable, In: []int{1}, Ident: 1, Precondition: -1},                 // 2: Member{id:7}
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},                           // 3: item
			{Op: ir.OpGetField, In: []int{3}, Ident: 2, Precondition: -1},                   // 4: item.members
			{Op: ir.OpInsertIntoSet, In: []int{4, 2}, Precondition: -1},                     // 5
		},
		Output:  -1,
		Effects: []int{5},
	}

	getGraph := ir.Graph{
		Name: "getMember", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},         // 0: item
			{Op: ir.OpGetField, In: []int{0}, Ident: 2, Precondition: -1}, // 1: item.members
			{Op: ir.OpLoadConst, ConstIndex: 0, Precondition: -1},         // 2: 7
			{Op: ir.OpGetSetElement, In: []int{1, 2}, Precondition: -1},   // 3
		},
		Output: 3,
	}

	removeGraph := ir.Graph{
		Name: "removeMember", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},         // 0: item
			{Op: ir.OpGetField, In: []int{0}, Ident: 2, Precondition: -1}, // 1: item.members
			{Op: ir.OpLoadConst, ConstIndex: 0, Precondition: -1},         // 2: 7
			{Op: ir.OpDeleteFromSet, In: []int{1, 2}, Precondition: -1},   // 3
		},
		Output:  -1,
		Effects: []int{3},
	}

	script := &ir.Script{
		Graphs: []ir.Graph{addGraph, getGraph, removeGraph},
		Entry:  0,
		Idents: []string{"id", "Member", "members"},
		Consts: []ir.Const{{Kind: ir.CInt64, Int64: 7}},
	}

	vm, plan := newExecTestVM(t, sch, script)
	ex := NewExecutor(vm)
	ctx := context.Background()

	itemParam := func() *vmvalue.Value {
		w, err := pathwalker.Root(plan, "item")
		if err != nil {
			t.Fatalf("Root: %v", err)
		}
		return vmvalue.NewResidentTable("Item", w)
	}

	if _, err := ex.Execute(ctx, "addMember", []*vmvalue.Value{itemParam()}); err != nil {
		t.Fatalf("addMember: %v", err)
	}

	got, err := ex.Execute(ctx, "getMember", []*vmvalue.Value{itemParam()})
	if err != nil {
		t.Fatalf("getMember: %v", err)
	}
	if got.Kind() != vmvalue.KTable || got.Table().Resident == nil {
		t.Fatalf("expected a Resident Table member, got %v", got)
	}

	if _, err := ex.Execute(ctx, "removeMember", []*vmvalue.Value{itemParam()}); err != nil {
		t.Fatalf("removeMember: %v", err)
	}

	gone, err := ex.Execute(ctx, "getMember", []*vmvalue.Value{itemParam()})
	if err != nil {
		t.Fatalf("getMember after delete: %v", err)
	}
	if !gone.IsNull() {
		t.Fatalf("expected Null after DeleteFromSet, got %v", gone)
	}
}

func TestReduceSumsAList(t *testing.T) {
	// sumGraph(param, acc, elem) = acc + elem; param is unused here, only
	// threaded through because spec.md §4.5 invokes every Reduce subgraph
	// as (subgraph_param, acc, member).
	sumGraph := ir.Graph{
		Name: "sum",
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},
			{Op: ir.OpLoadParam, ParamIndex: 1, Precondition: -1},
			{Op: ir.OpLoadParam, ParamIndex: 2, Precondition: -1},
			{Op: ir.OpAdd, In: []int{1, 2}, Precondition: -1},
		},
		Output: 3,
	}
	// entry(list) = Reduce(param=0, acc=0, list, sum)
	entryGraph := ir.Graph{
		Name: "total", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},
			{Op: ir.OpLoadConst, ConstIndex: 0, Precondition: -1},
			{Op: ir.OpReduce, In: []int{1, 1, 0}, Subgraph: 1, Precondition: -1},
		},
		Output: 2,
	}
	script := &ir.Script{
		Graphs: []ir.Graph{entryGraph, sumGraph},
		Entry:  0,
		Consts: []ir.Const{{Kind: ir.CInt64, Int64: 0}},
	}
	sch := schema.NewCompiledSchema()
	vm, _ := newExecTestVM(t, sch, script)
	ex := NewExecutor(vm)

	list := vmvalue.FromSlice([]*vmvalue.Value{vmvalue.NewInt64(1), vmvalue.NewInt64(2), vmvalue.NewInt64(3)})
	out, err := ex.Execute(context.Background(), "total", []*vmvalue.Value{vmvalue.NewListValue(list)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Kind() != vmvalue.KInt64 || out.Int64() != 6 {
		t.Fatalf("expected Int64(6), got %v", out)
	}
}

func TestReduceOverSetScansOnlyPrimaryKeyRange(t *testing.T) {
	sch := setSchema()

	// addMember(item, id) = InsertIntoSet(item.members, Member{id})
	addGraph := ir.Graph{
		Name: "addMember", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},                       // 0: item
			{Op: ir.OpLoadParam, ParamIndex: 1, Precondition: -1},                       // 1: id
			{Op: ir.OpCreateMap, In: []int{1}, FieldIdents: []int{0}, Precondition: -1}, // 2: {id: id}
			{Op: ir.OpBuildTable, In: []int{2}, Ident: 1, Precondition: -1},             // 3: Member{id}
			{Op: ir.OpGetField, In: []int{0}, Ident: 2, Precondition: -1},               // 4: item.members
			{Op: ir.OpInsertIntoSet, In: []int{4, 3}, Precondition: -1},                 // 5
		},
		Output:  -1,
		Effects: []int{5},
	}

	// sumIds(param, acc, member) = acc + member.id
	sumIdsGraph := ir.Graph{
		Name: "sumIds",
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},         // 0: param (unused)
			{Op: ir.OpLoadParam, ParamIndex: 1, Precondition: -1},         // 1: acc
			{Op: ir.OpLoadParam, ParamIndex: 2, Precondition: -1},         // 2: member
			{Op: ir.OpGetField, In: []int{2}, Ident: 0, Precondition: -1}, // 3: member.id
			{Op: ir.OpAdd, In: []int{1, 3}, Precondition: -1},             // 4
		},
		Output: 4,
	}

	// sumRange(item) = Reduce(param=0, acc=0, item.members[2, 4), sumIds)
	sumRangeGraph := ir.Graph{
		Name: "sumRange", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},         // 0: item
			{Op: ir.OpGetField, In: []int{0}, Ident: 2, Precondition: -1}, // 1: item.members
			{Op: ir.OpLoadConst, ConstIndex: 0, Precondition: -1},         // 2: 0 (acc init, also unused param)
			{Op: ir.OpLoadConst, ConstIndex: 1, Precondition: -1},         // 3: 2 (range start)
			{Op: ir.OpLoadConst, ConstIndex: 2, Precondition: -1},         // 4: 4 (range end)
			{Op: ir.OpReduce, In: []int{2, 2, 1, 3, 4}, Subgraph: 1, HasRange: true, Precondition: -1}, // 5
		},
		Output: 5,
	}

	script := &ir.Script{
		Graphs: []ir.Graph{addGraph, sumIdsGraph, sumRangeGraph},
		Entry:  0,
		Idents: []string{"id", "Member", "members"},
		Consts: []ir.Const{{Kind: ir.CInt64, Int64: 0}, {Kind: ir.CInt64, Int64: 2}, {Kind: ir.CInt64, Int64: 4}},
	}

	vm, plan := newExecTestVM(t, sch, script)
	ex := NewExecutor(vm)
	ctx := context.Background()

	itemParam := func() *vmvalue.Value {
		w, err := pathwalker.Root(plan, "item")
		if err != nil {
			t.Fatalf("Root: %v", err)
		}
		return vmvalue.NewResidentTable("Item", w)
	}

	for _, id := range []int64{1, 2, 3, 4, 5} {
		if _, err := ex.Execute(ctx, "addMember", []*vmvalue.Value{itemParam(), vmvalue.NewInt64(id)}); err != nil {
			t.Fatalf("addMember(%d): %v", id, err)
		}
	}

	out, err := ex.Execute(ctx, "sumRange", []*vmvalue.Value{itemParam()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// [2, 4) covers ids 2 and 3 only; ids 1, 4, 5 must not be touched.
	if out.Kind() != vmvalue.KInt64 || out.Int64() != 5 {
		t.Fatalf("expected Int64(5) summing ids in [2,4), got %v", out)
	}
}

func TestExecuteRetriesOnConflictThenSucceeds(t *testing.T) {
	sch := itemSchema()
	g := ir.Graph{
		Name: "getA", Exported: true,
		Nodes: []ir.Node{
			{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1},
			{Op: ir.OpGetField, In: []int{0}, Ident: 0, Precondition: -1},
		},
		Output: 1,
	}
	script := singleGraphScript(g, []string{"a"})

	plan, err := storageplan.Generate(nil, nil, sch, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	conflicting := memkv.NewConflictingStore(3)
	vm := NewVM(sch, plan, script, conflicting, logging.NewNoOpLogger())

	w, _ := pathwalker.Root(plan, "item")
	leaf, _ := w.DescendField("a")
	raw, _ := codec.EncodeInt64(9)
	ctx := context.Background()
	txn, _ := conflicting.Store.Begin(ctx)
	txn.Put(ctx, leaf.Key(), raw)
	conflicting.Store.Commit(ctx, txn)
	conflicting.Attempts = 0 // don't count the seed commit against the injected failures

	ex := NewExecutor(vm)
	sleeps := 0
	ex.SetSleepFn(func(time.Duration) { sleeps++ })

	out, err := ex.Execute(ctx, "getA", []*vmvalue.Value{rootTableValue(t, plan, "Item", "item")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Int64() != 9 {
		t.Fatalf("expected Int64(9), got %v", out)
	}
	if sleeps != 3 {
		t.Fatalf("expected 3 retry sleeps, got %d", sleeps)
	}
	if conflicting.Attempts != 4 {
		t.Fatalf("expected 4 commit attempts, got %d", conflicting.Attempts)
	}
}

func TestExecuteConflictAfterRetriesExhausted(t *testing.T) {
	sch := itemSchema()
	g := ir.Graph{
		Name: "noop", Exported: true,
		Nodes:  []ir.Node{{Op: ir.OpLoadParam, ParamIndex: 0, Precondition: -1}},
		Output: 0,
	}
	script := singleGraphScript(g, nil)
	plan, _ := storageplan.Generate(nil, nil, sch, nil)
	conflicting := memkv.NewConflictingStore(MaxCommitAttempts + 5)
	vm := NewVM(sch, plan, script, conflicting, logging.NewNoOpLogger())

	ex := NewExecutor(vm)
	ex.SetSleepFn(func(time.Duration) {})
	_, err := ex.Execute(context.Background(), "noop", []*vmvalue.Value{vmvalue.NewNull()})
	if !IsCode(err, ConflictAfterRetries) {
		t.Fatalf("expected ConflictAfterRetries, got %v", err)
	}
}
