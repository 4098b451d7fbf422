package exec

import (
	"context"
	"fmt"

	"github.com/muskanmahajan37/RefineDB/kv/codec"
	"github.com/muskanmahajan37/RefineDB/pathwalker"
	"github.com/muskanmahajan37/RefineDB/schema"
	"github.com/muskanmahajan37/RefineDB/vmvalue"
)

// insertIntoTable writes a Fresh table's field values at a Resident
// table's position. position is a Resident Table value naming where
// to write (reached by a prior GetField/GetSetElement chain); fields
// is a Fresh Table carrying the literal values to write.
func (r *run) insertIntoTable(ctx context.Context, position, fields *vmvalue.Value) error {
	if position.Kind() != vmvalue.KTable || position.Table().Resident == nil {
		return &Error{Code: IncompatibleFieldAndValueType, Message: "InsertIntoTable requires a Resident Table target position"}
	}
	if fields.Kind() != vmvalue.KTable || fields.Table().Fresh == nil {
		return &Error{Code: IncompatibleFieldAndValueType, Message: "InsertIntoTable requires a Fresh Table value"}
	}
	pt, ft := position.Table(), fields.Table()
	if pt.TypeName != ft.TypeName {
		return &Error{Code: IncompatibleFieldAndValueType, Message: fmt.Sprintf("cannot insert %q value at %q position", ft.TypeName, pt.TypeName)}
	}
	return r.writeFields(ctx, pt.TypeName, pt.Resident, ft.Fresh)
}

// writeFields writes every field of typeName's record shape under w,
// sourcing each value from fields. A field absent from fields is
// skipped if optional (its storage is left as it is), or reported
// MissingField if required.
func (r *run) writeFields(ctx context.Context, typeName string, w *pathwalker.Walker, fields *vmvalue.Map) error {
	rt, ok := r.vm.Schema.Resolve(typeName)
	if !ok {
		return &Error{Code: TypeNotFound, Message: fmt.Sprintf("unknown record type %q", typeName)}
	}
	for i := range rt.Fields {
		f := &rt.Fields[i]
		fv, ok := fields.Get(f.Name)
		if !ok {
			if f.Type.Kind == schema.KindOptional {
				continue
			}
			return &Error{Code: MissingField, Message: fmt.Sprintf("missing required field %q of type %q", f.Name, typeName)}
		}
		child, err := w.DescendField(f.Name)
		if err != nil {
			return &Error{Code: PathIntegrityFailure, Message: err.Error()}
		}
		if err := r.writeTyped(ctx, f.Type, child, fv); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) writeTyped(ctx context.Context, ft *schema.FieldType, w *pathwalker.Walker, v *vmvalue.Value) error {
	switch ft.Kind {
	case schema.KindPrimitive:
		return r.putPrimitiveLeaf(ctx, ft.Prim, w, v)

	case schema.KindNamed:
		if v.Kind() != vmvalue.KTable || v.Table().Fresh == nil {
			return &Error{Code: IncompatibleFieldAndValueType, Message: fmt.Sprintf("field of type %q requires a Fresh Table value", ft.TypeName)}
		}
		return r.writeFields(ctx, ft.TypeName, w, v.Table().Fresh)

	case schema.KindSet:
		if v.Kind() != vmvalue.KSet {
			return &Error{Code: IncompatibleFieldAndValueType, Message: "set-typed field requires a Set value"}
		}
		if v.Set().Fresh != nil && v.Set().Fresh.Len() > 0 {
			return &Error{Code: NotImplemented, Message: "non-empty inline set literals must be populated via InsertIntoSet, one member at a time"}
		}
		return nil

	case schema.KindOptional:
		if v.IsNull() {
			return r.deleteLeaf(ctx, ft.Inner, w)
		}
		return r.writeTyped(ctx, ft.Inner, w, v)

	default:
		return &Error{Code: IncompatibleFieldAndValueType, Message: "unknown field type kind"}
	}
}

func (r *run) putPrimitiveLeaf(ctx context.Context, prim schema.Primitive, w *pathwalker.Walker, v *vmvalue.Value) error {
	if v.Kind() == vmvalue.KNull {
		return mapTxnErr(r.txn.Delete(ctx, w.Key()))
	}
	var raw []byte
	var err error
	switch prim {
	case schema.Int64:
		raw, err = codec.EncodeInt64(v.Int64())
	case schema.Double:
		raw, err = codec.EncodeDouble(v.DoubleBits())
	case schema.String:
		raw, err = codec.EncodeString(v.Str())
	case schema.Bytes:
		raw, err = codec.EncodeBytes(v.Bytes())
	case schema.Bool:
		raw, err = codec.EncodeBool(v.Bool())
	default:
		return &Error{Code: IncompatibleFieldAndValueType, Message: "unknown primitive kind"}
	}
	if err != nil {
		return &Error{Code: IncompatibleFieldAndValueType, Message: err.Error()}
	}
	return mapTxnErr(r.txn.Put(ctx, w.Key(), raw))
}

// deleteLeaf clears an optional field that was assigned Null: a
// primitive leaf's key is deleted outright; a Named or Set subtree's
// entire prefix range is cleared.
func (r *run) deleteLeaf(ctx context.Context, ft *schema.FieldType, w *pathwalker.Walker) error {
	switch ft.Kind {
	case schema.KindPrimitive:
		return mapTxnErr(r.txn.Delete(ctx, w.Key()))
	case schema.KindNamed:
		prefix := w.Prefix()
		return mapTxnErr(r.txn.DeleteRange(ctx, prefix, pathwalker.EndKeyExclusive(prefix)))
	case schema.KindSet:
		sv, err := w.EnterSet()
		if err != nil {
			return &Error{Code: PathIntegrityFailure, Message: err.Error()}
		}
		prefix := sv.Prefix()
		return mapTxnErr(r.txn.DeleteRange(ctx, prefix, pathwalker.EndKeyExclusive(prefix)))
	default:
		return &Error{Code: IncompatibleFieldAndValueType, Message: "unknown field type kind"}
	}
}

// insertIntoSet adds one Fresh table value as a member of a Resident
// set, keyed by its @primary field.
func (r *run) insertIntoSet(ctx context.Context, setVal, elem *vmvalue.Value) error {
	if setVal.Kind() != vmvalue.KSet || setVal.Set().Resident == nil {
		return &Error{Code: IncompatibleFieldAndValueType, Message: "InsertIntoSet requires a Resident Set operand"}
	}
	if elem.Kind() != vmvalue.KTable || elem.Table().Fresh == nil {
		return &Error{Code: IncompatibleFieldAndValueType, Message: "InsertIntoSet requires a Fresh Table member value"}
	}
	set := setVal.Set()
	rt, ok := r.vm.Schema.Resolve(set.MemberTypeName)
	if !ok {
		return &Error{Code: TypeNotFound, Message: fmt.Sprintf("unknown record type %q", set.MemberTypeName)}
	}
	pf, ok := rt.PrimaryField()
	if !ok {
		return &Error{Code: MissingPrimaryKey, Message: fmt.Sprintf("type %q has no @primary field", set.MemberTypeName)}
	}
	pkv, ok := elem.Table().Fresh.Get(pf.Name)
	if !ok {
		return &Error{Code: MissingPrimaryKey, Message: fmt.Sprintf("member value has no %q field", pf.Name)}
	}
	pkBytes := pathwalker.EncodePrimaryKey(pf.Type.Prim, pkv.PrimaryKeyValue())
	marker := append(append([]byte{}, set.Resident.FastScanPrefix()...), pkBytes...)
	if err := r.txn.Put(ctx, marker, []byte{}); err != nil {
		return mapTxnErr(err)
	}
	return r.writeFields(ctx, set.MemberTypeName, set.Resident.Member(pkBytes), elem.Table().Fresh)
}

// deleteFromSet removes one member of a Resident set by primary key,
// clearing both its membership marker and its data subspace.
func (r *run) deleteFromSet(ctx context.Context, setVal, pk *vmvalue.Value) error {
	if setVal.Kind() != vmvalue.KSet || setVal.Set().Resident == nil {
		return &Error{Code: IncompatibleFieldAndValueType, Message: "DeleteFromSet requires a Resident Set operand"}
	}
	set := setVal.Set()
	rt, ok := r.vm.Schema.Resolve(set.MemberTypeName)
	if !ok {
		return &Error{Code: TypeNotFound, Message: fmt.Sprintf("unknown record type %q", set.MemberTypeName)}
	}
	pf, ok := rt.PrimaryField()
	if !ok {
		return &Error{Code: MissingPrimaryKey, Message: fmt.Sprintf("type %q has no @primary field", set.MemberTypeName)}
	}
	pkBytes := pathwalker.EncodePrimaryKey(pf.Type.Prim, pk.PrimaryKeyValue())
	marker := append(append([]byte{}, set.Resident.FastScanPrefix()...), pkBytes...)
	if err := r.txn.Delete(ctx, marker); err != nil {
		return mapTxnErr(err)
	}
	w := set.Resident.Member(pkBytes)
	prefix := w.Prefix()
	return mapTxnErr(r.txn.DeleteRange(ctx, prefix, pathwalker.EndKeyExclusive(prefix)))
}

// deleteTable clears a Resident table's entire prefix subtree.
func (r *run) deleteTable(ctx context.Context, v *vmvalue.Value) error {
	if v.Kind() != vmvalue.KTable || v.Table().Resident == nil {
		return &Error{Code: IncompatibleFieldAndValueType, Message: "DeleteFromTable requires a Resident Table operand"}
	}
	prefix := v.Table().Resident.Prefix()
	return mapTxnErr(r.txn.DeleteRange(ctx, prefix, pathwalker.EndKeyExclusive(prefix)))
}
