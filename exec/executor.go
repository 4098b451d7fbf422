package exec

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/muskanmahajan37/RefineDB/ir"
	"github.com/muskanmahajan37/RefineDB/kv"
	"github.com/muskanmahajan37/RefineDB/kv/codec"
	"github.com/muskanmahajan37/RefineDB/pathwalker"
	"github.com/muskanmahajan37/RefineDB/schema"
	"github.com/muskanmahajan37/RefineDB/vmvalue"
)

// MaxCommitAttempts bounds the optimistic-retry loop a single Execute
// call drives (spec.md §4.5).
const MaxCommitAttempts = 10

// MaxRecursionDepth bounds nested Call/Reduce subgraph invocations
// within one Execute call, catching a runaway recursive schema/script
// before it exhausts the goroutine stack (spec.md §6).
const MaxRecursionDepth = 128

// Executor runs one named graph of a Script to completion, making up to
// MaxCommitAttempts commit attempts in total, with a randomized backoff
// after each attempt that ends in a KV commit conflict.
type Executor struct {
	vm      *VM
	sleepFn func(time.Duration)
}

// NewExecutor returns an Executor backed by vm, sleeping for real
// between retries.
func NewExecutor(vm *VM) *Executor {
	return &Executor{vm: vm, sleepFn: time.Sleep}
}

// SetSleepFn overrides the retry backoff's sleep function, letting
// tests exercise the retry loop without real wall-clock delay.
func (e *Executor) SetSleepFn(fn func(time.Duration)) { e.sleepFn = fn }

// Execute runs the named exported graph with the given parameters
// inside a fresh KV transaction, committing and retrying on conflict.
func (e *Executor) Execute(ctx context.Context, graphName string, params []*vmvalue.Value) (*vmvalue.Value, error) {
	gi, ok := e.vm.Script.GraphByName(graphName)
	if !ok {
		return nil, &Error{Code: TypeNotFound, Message: fmt.Sprintf("no such graph %q", graphName)}
	}

	var lastErr error
	for attempt := 0; attempt < MaxCommitAttempts; attempt++ {
		txn, err := e.vm.Store.Begin(ctx)
		if err != nil {
			return nil, mapTxnErr(err)
		}

		r := &run{vm: e.vm, txn: txn}
		fr := newFrame(&e.vm.Script.Graphs[gi], params)
		out, err := r.evalGraph(ctx, fr)
		if err != nil {
			e.vm.Store.Discard(ctx, txn)
			return nil, err
		}

		err = e.vm.Store.Commit(ctx, txn)
		if err == nil {
			commitAttemptsTotal.WithLabelValues("ok").Inc()
			attemptsPerExecute.Observe(float64(attempt + 1))
			return out, nil
		}
		e.vm.Store.Discard(ctx, txn)
		if !kv.IsConflict(err) {
			commitAttemptsTotal.WithLabelValues("error").Inc()
			return nil, mapTxnErr(err)
		}
		commitAttemptsTotal.WithLabelValues("conflict").Inc()
		lastErr = err
		e.vm.Log.WithFields(map[string]interface{}{"graph": graphName, "attempt": attempt}).Warn("exec: commit conflict, retrying")
		e.sleepFn(time.Duration(1+rand.Intn(20)) * time.Millisecond)
	}
	attemptsPerExecute.Observe(MaxCommitAttempts)
	return nil, &Error{Code: ConflictAfterRetries, Message: fmt.Sprintf(
		"exec: graph %q did not commit after %d attempts: %v", graphName, MaxCommitAttempts, lastErr)}
}

// run is the state shared by every frame of a single Execute attempt:
// the transaction every resident read/write goes through, and the
// recursion depth counter Call/Reduce share across nested subgraphs.
type run struct {
	vm    *VM
	txn   kv.Transaction
	depth int
}

// frame is one graph invocation's per-node memoization table. A fresh
// frame is built for every Call/Reduce subgraph invocation so Select's
// single-fire bookkeeping and ordinary shared-subexpression memoization
// never leak across call boundaries (spec.md §4.5).
type frame struct {
	graph  *ir.Graph
	params []*vmvalue.Value
	values []*vmvalue.Value
	done   []bool
}

func newFrame(g *ir.Graph, params []*vmvalue.Value) *frame {
	return &frame{
		graph:  g,
		params: params,
		values: make([]*vmvalue.Value, len(g.Nodes)),
		done:   make([]bool, len(g.Nodes)),
	}
}

// evalGraph forces the graph's output node (if any) plus every
// declared effect node, so a side-effecting node with nothing
// downstream consuming its result still fires (spec.md §4.5).
func (r *run) evalGraph(ctx context.Context, fr *frame) (*vmvalue.Value, error) {
	out := vmvalue.NewNull()
	if fr.graph.Output >= 0 {
		v, err := r.evalNode(ctx, fr, fr.graph.Output)
		if err != nil {
			return nil, err
		}
		out = v
	}
	for _, eff := range fr.graph.Effects {
		if _, err := r.evalNode(ctx, fr, eff); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) evalNode(ctx context.Context, fr *frame, idx int) (*vmvalue.Value, error) {
	if fr.done[idx] {
		return fr.values[idx], nil
	}
	n := &fr.graph.Nodes[idx]

	if n.Precondition >= 0 {
		pv, err := r.evalNode(ctx, fr, n.Precondition)
		if err != nil {
			return nil, err
		}
		if !truthy(pv) {
			v := vmvalue.NewTypedNull(nil)
			fr.values[idx] = v
			fr.done[idx] = true
			return v, nil
		}
	}

	v, err := r.fireNode(ctx, fr, n, idx)
	if err != nil {
		return nil, err
	}
	fr.values[idx] = v
	fr.done[idx] = true
	return v, nil
}

func truthy(v *vmvalue.Value) bool {
	return !v.IsNull() && v.Bool()
}

// fireNode evaluates a node's operands (Select excepted, which must
// short-circuit rather than force both candidates) and applies the
// node's operation to them.
func (r *run) fireNode(ctx context.Context, fr *frame, n *ir.Node, idx int) (*vmvalue.Value, error) {
	if n.Op == ir.OpSelect {
		return r.evalSelect(ctx, fr, n)
	}

	ops := make([]*vmvalue.Value, len(n.In))
	for i, in := range n.In {
		v, err := r.evalNode(ctx, fr, in)
		if err != nil {
			return nil, err
		}
		ops[i] = v
	}
	if n.Optional && n.Op != ir.OpReduce {
		for _, v := range ops {
			if v.IsNull() {
				return vmvalue.NewTypedNull(nil), nil
			}
		}
	}

	s := r.vm.Script
	switch n.Op {
	case ir.OpLoadParam:
		if n.ParamIndex < 0 || n.ParamIndex >= len(fr.params) {
			return nil, &Error{Code: MissingField, Message: "param index out of range"}
		}
		return fr.params[n.ParamIndex], nil

	case ir.OpLoadConst:
		return constValue(s.Consts[n.ConstIndex]), nil

	case ir.OpCreateMap:
		m := vmvalue.NewMap()
		for i, v := range ops {
			name := s.Idents[n.FieldIdents[i]]
			m = m.Insert(name, v)
		}
		return vmvalue.NewMapValue(m), nil

	case ir.OpCreateList:
		return vmvalue.NewListValue(vmvalue.FromSlice(ops)), nil

	case ir.OpNop:
		if len(ops) > 0 {
			return ops[0], nil
		}
		return vmvalue.NewTypedNull(nil), nil

	case ir.OpBuildTable:
		if ops[0].Kind() != vmvalue.KMap {
			return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "BuildTable requires a Map operand"}
		}
		return vmvalue.NewFreshTable(s.Idents[n.Ident], ops[0].Map()), nil

	case ir.OpBuildSet:
		if ops[0].Kind() != vmvalue.KList {
			return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "BuildSet requires a List operand"}
		}
		return vmvalue.NewFreshSet(s.Idents[n.Ident], ops[0].List()), nil

	case ir.OpInsertIntoMap:
		if ops[0].Kind() != vmvalue.KMap {
			return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "InsertIntoMap requires a Map operand"}
		}
		return vmvalue.NewMapValue(ops[0].Map().Insert(s.Idents[n.Ident], ops[1])), nil

	case ir.OpDeleteFromMap:
		if ops[0].Kind() != vmvalue.KMap {
			return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "DeleteFromMap requires a Map operand"}
		}
		return vmvalue.NewMapValue(ops[0].Map().Delete(s.Idents[n.Ident])), nil

	case ir.OpPrependToList:
		if ops[0].Kind() != vmvalue.KList {
			return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "PrependToList requires a List operand"}
		}
		return vmvalue.NewListValue(ops[0].List().Prepend(ops[1])), nil

	case ir.OpPopFromList:
		if ops[0].Kind() != vmvalue.KList {
			return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "PopFromList requires a List operand"}
		}
		_, rest, ok := ops[0].List().Pop()
		if !ok {
			return vmvalue.NewTypedNull(nil), nil
		}
		return vmvalue.NewListValue(rest), nil

	case ir.OpListHead:
		if ops[0].Kind() != vmvalue.KList {
			return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "ListHead requires a List operand"}
		}
		head, ok := ops[0].List().Head()
		if !ok {
			return vmvalue.NewTypedNull(nil), nil
		}
		return head, nil

	case ir.OpGetField:
		return r.getField(ctx, ops[0], s.Idents[n.Ident])

	case ir.OpGetSetElement:
		return r.getSetElement(ctx, ops[0], ops[1])

	case ir.OpInsertIntoTable:
		if err := r.insertIntoTable(ctx, ops[0], ops[1]); err != nil {
			return nil, err
		}
		return vmvalue.NewNull(), nil

	case ir.OpInsertIntoSet:
		if err := r.insertIntoSet(ctx, ops[0], ops[1]); err != nil {
			return nil, err
		}
		return vmvalue.NewNull(), nil

	case ir.OpDeleteFromTable:
		if err := r.deleteTable(ctx, ops[0]); err != nil {
			return nil, err
		}
		return vmvalue.NewNull(), nil

	case ir.OpDeleteFromSet:
		if err := r.deleteFromSet(ctx, ops[0], ops[1]); err != nil {
			return nil, err
		}
		return vmvalue.NewNull(), nil

	case ir.OpEq:
		return vmvalue.NewBool(vmvalue.Equal(ops[0], ops[1])), nil

	case ir.OpNe:
		return vmvalue.NewBool(!vmvalue.Equal(ops[0], ops[1])), nil

	case ir.OpAnd:
		return vmvalue.NewBool(truthy(ops[0]) && truthy(ops[1])), nil

	case ir.OpOr:
		return vmvalue.NewBool(truthy(ops[0]) || truthy(ops[1])), nil

	case ir.OpNot:
		return vmvalue.NewBool(!truthy(ops[0])), nil

	case ir.OpIsPresent:
		return vmvalue.NewBool(!ops[0].IsNull()), nil

	case ir.OpIsNull:
		return vmvalue.NewBool(ops[0].IsNull()), nil

	case ir.OpUnwrapOptional:
		if ops[0].IsNull() {
			return nil, &Error{Code: NullUnwrapped, Message: "UnwrapOptional applied to Null"}
		}
		return ops[0], nil

	case ir.OpAdd:
		if ops[0].Kind() == vmvalue.KString && ops[1].Kind() == vmvalue.KString {
			return vmvalue.NewString(ops[0].Str() + ops[1].Str()), nil
		}
		return arith(ops[0], ops[1], func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })

	case ir.OpSub:
		return arith(ops[0], ops[1], func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })

	case ir.OpCall:
		return r.callSubgraph(ctx, n.Subgraph, ops)

	case ir.OpReduce:
		return r.evalReduce(ctx, n, ops)

	case ir.OpThrow:
		if ops[0].IsNull() {
			return nil, &Error{Code: ScriptThrownNull, Message: "script threw Null"}
		}
		return nil, &Error{Code: ScriptThrownError, Message: ops[0].String()}

	case ir.OpFilterSet:
		return nil, &Error{Code: NotImplemented, Message: "FilterSet is reserved and has no executor support"}

	default:
		return nil, &Error{Code: NotImplemented, Message: fmt.Sprintf("unhandled op %v", n.Op)}
	}
}

// evalSelect fires at most one of its two candidates per spec.md §4.5's
// lazy-optional-chaining semantics: evaluate the first candidate, and
// only evaluate the second if the first resolved to Null. If some other
// consumer already forced both candidates to non-null values before
// Select itself ran — meaning both sides of the choice fired, which the
// single-fire contract forbids — that is reported as
// BothSelectCandidatesFired rather than silently picking one.
func (r *run) evalSelect(ctx context.Context, fr *frame, n *ir.Node) (*vmvalue.Value, error) {
	aIdx, bIdx := n.In[0], n.In[1]
	if fr.done[aIdx] && fr.done[bIdx] {
		av, bv := fr.values[aIdx], fr.values[bIdx]
		if !av.IsNull() && !bv.IsNull() {
			return nil, &Error{Code: BothSelectCandidatesFired, Message: "both Select candidates were already forced to non-null values"}
		}
	}
	av, err := r.evalNode(ctx, fr, aIdx)
	if err != nil {
		return nil, err
	}
	if !av.IsNull() {
		return av, nil
	}
	return r.evalNode(ctx, fr, bIdx)
}

func (r *run) callSubgraph(ctx context.Context, subgraph int, params []*vmvalue.Value) (*vmvalue.Value, error) {
	if r.depth+1 > MaxRecursionDepth {
		return nil, &Error{Code: MaxRecursionDepthExceeded, Message: fmt.Sprintf("recursion depth exceeded %d", MaxRecursionDepth)}
	}
	g := &r.vm.Script.Graphs[subgraph]
	fr := newFrame(g, params)
	r.depth++
	out, err := r.evalGraph(ctx, fr)
	r.depth--
	return out, err
}

// evalReduce folds a subgraph of shape (param, accumulator, element) ->
// accumulator over a List or Resident Set (spec.md §4.5). The collection
// input is the one place Reduce handles null explicitly rather than via
// the generic optional-chaining flag (which it disables on the
// accumulator input): a null collection short-circuits to a typed null.
// Fresh Sets cannot be scanned this way (spec.md §6's
// FreshTableOrSetNotSupported).
func (r *run) evalReduce(ctx context.Context, n *ir.Node, ops []*vmvalue.Value) (*vmvalue.Value, error) {
	param, acc, coll := ops[0], ops[1], ops[2]
	if coll.IsNull() {
		return vmvalue.NewTypedNull(nil), nil
	}

	var items []*vmvalue.Value
	switch coll.Kind() {
	case vmvalue.KList:
		items = coll.List().Slice()

	case vmvalue.KSet:
		set := coll.Set()
		if set.Fresh != nil {
			return nil, &Error{Code: FreshTableOrSetNotSupported, Message: "Reduce cannot scan a Fresh set"}
		}
		var rangeStart, rangeEnd *vmvalue.Value
		if n.HasRange {
			rangeStart, rangeEnd = ops[3], ops[4]
		}
		var err error
		items, err = r.scanResidentSetRange(ctx, set.Resident, set.MemberTypeName, rangeStart, rangeEnd)
		if err != nil {
			return nil, err
		}

	default:
		return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "Reduce requires a List or Set operand"}
	}

	if r.depth+1 > MaxRecursionDepth {
		return nil, &Error{Code: MaxRecursionDepthExceeded, Message: fmt.Sprintf("recursion depth exceeded %d", MaxRecursionDepth)}
	}
	for _, member := range items {
		out, err := r.callSubgraph(ctx, n.Subgraph, []*vmvalue.Value{param, acc, member})
		if err != nil {
			return nil, err
		}
		acc = out
		if acc.IsNull() {
			return acc, nil
		}
	}
	return acc, nil
}

// scanResidentSetRange enumerates a Resident set's membership index,
// restricted to [start, end) when rangeStart/rangeEnd are given, and
// returns one Resident Table value per member in ascending primary-key
// order. Bounds are primary-key primitives (each independently
// nullable): a null start means "from the beginning", a null end means
// "to the end of the subspace" (spec.md §4.5, §4.2's
// EndKeyExclusive rule).
func (r *run) scanResidentSetRange(ctx context.Context, sv *pathwalker.SetView, memberType string, rangeStart, rangeEnd *vmvalue.Value) ([]*vmvalue.Value, error) {
	fsPrefix := sv.FastScanPrefix()
	if rangeStart == nil && rangeEnd == nil {
		kvs, err := r.txn.ScanPrefix(ctx, fsPrefix)
		if err != nil {
			return nil, mapTxnErr(err)
		}
		return residentMembers(sv, memberType, fsPrefix, kvs), nil
	}

	rt, ok := r.vm.Schema.Resolve(memberType)
	if !ok {
		return nil, &Error{Code: TypeNotFound, Message: fmt.Sprintf("unknown record type %q", memberType)}
	}
	pf, ok := rt.PrimaryField()
	if !ok {
		return nil, &Error{Code: MissingPrimaryKey, Message: fmt.Sprintf("type %q has no @primary field", memberType)}
	}

	start := append([]byte{}, fsPrefix...)
	if rangeStart != nil && !rangeStart.IsNull() {
		start = append(start, pathwalker.EncodePrimaryKey(pf.Type.Prim, rangeStart.PrimaryKeyValue())...)
	}
	end := pathwalker.EndKeyExclusive(fsPrefix)
	if rangeEnd != nil && !rangeEnd.IsNull() {
		end = append(append([]byte{}, fsPrefix...), pathwalker.EncodePrimaryKey(pf.Type.Prim, rangeEnd.PrimaryKeyValue())...)
	}

	kvs, err := r.txn.Scan(ctx, start, end)
	if err != nil {
		return nil, mapTxnErr(err)
	}
	return residentMembers(sv, memberType, fsPrefix, kvs), nil
}

func residentMembers(sv *pathwalker.SetView, memberType string, fsPrefix []byte, kvs []kv.KeyValue) []*vmvalue.Value {
	out := make([]*vmvalue.Value, 0, len(kvs))
	for _, e := range kvs {
		pk := e.Key[len(fsPrefix):]
		out = append(out, vmvalue.NewResidentTable(memberType, sv.Member(pk)))
	}
	return out
}

func constValue(c ir.Const) *vmvalue.Value {
	switch c.Kind {
	case ir.CNull:
		return vmvalue.NewNull()
	case ir.CBool:
		return vmvalue.NewBool(c.Bool)
	case ir.CInt64:
		return vmvalue.NewInt64(c.Int64)
	case ir.CDouble:
		return vmvalue.NewDouble(math.Float64frombits(c.Double))
	case ir.CString:
		return vmvalue.NewString(c.Str)
	case ir.CBytes:
		return vmvalue.NewBytes(c.Bytes)
	default:
		return vmvalue.NewNull()
	}
}

func arith(a, b *vmvalue.Value, intOp func(int64, int64) int64, floatOp func(float64, float64) float64) (*vmvalue.Value, error) {
	if a.Kind() != b.Kind() {
		return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "arithmetic operands must share a kind"}
	}
	switch a.Kind() {
	case vmvalue.KInt64:
		return vmvalue.NewInt64(intOp(a.Int64(), b.Int64())), nil
	case vmvalue.KDouble:
		return vmvalue.NewDouble(floatOp(a.Double(), b.Double())), nil
	default:
		return nil, &Error{Code: IncompatibleFieldAndValueType, Message: "arithmetic requires Int64 or Double operands"}
	}
}

func valueFromDecoded(d codec.Decoded) *vmvalue.Value {
	switch d.Kind {
	case schema.Int64:
		return vmvalue.NewInt64(d.Int64)
	case schema.Double:
		return vmvalue.NewDouble(d.Double)
	case schema.String:
		return vmvalue.NewString(d.Str)
	case schema.Bytes:
		return vmvalue.NewBytes(d.Bytes)
	case schema.Bool:
		return vmvalue.NewBool(d.Bool)
	default:
		return vmvalue.NewNull()
	}
}
