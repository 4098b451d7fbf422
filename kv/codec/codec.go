// Package codec encodes and decodes the primitive values stored at a
// leaf key using MessagePack, the wire format spec.md §6 names for
// values at rest. Keys are never run through this codec — their bytes
// are order-preserving encodings produced by pathwalker.EncodePrimaryKey
// or plain prefix concatenation; only the value half of a KV pair is
// MessagePack.
package codec

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/muskanmahajan37/RefineDB/schema"
)

// wireValue is the on-disk shape for a single primitive leaf value. Only
// one field is populated, selected by Kind; msgpack omits the empty ones
// from the encoded map thanks to omitempty so the typical encoded value
// is a one-entry map plus the kind tag.
type wireValue struct {
	Kind  schema.Primitive `msgpack:"k"`
	I     int64            `msgpack:"i,omitempty"`
	D     uint64           `msgpack:"d,omitempty"`
	S     string           `msgpack:"s,omitempty"`
	B     []byte           `msgpack:"b,omitempty"`
	Bool  bool             `msgpack:"o,omitempty"`
}

// EncodeInt64 etc. are the concrete constructors a caller reaches for
// once it already knows which primitive kind it has (the common case,
// since a leaf's kind is fixed by the schema/storage plan it belongs to).

func EncodeInt64(v int64) ([]byte, error) {
	return msgpack.Marshal(&wireValue{Kind: schema.Int64, I: v})
}

func EncodeDouble(bits uint64) ([]byte, error) {
	return msgpack.Marshal(&wireValue{Kind: schema.Double, D: bits})
}

func EncodeString(v string) ([]byte, error) {
	return msgpack.Marshal(&wireValue{Kind: schema.String, S: v})
}

func EncodeBytes(v []byte) ([]byte, error) {
	return msgpack.Marshal(&wireValue{Kind: schema.Bytes, B: v})
}

func EncodeBool(v bool) ([]byte, error) {
	return msgpack.Marshal(&wireValue{Kind: schema.Bool, Bool: v})
}

// Decoded is the result of decoding a leaf value without knowing its
// kind ahead of time (e.g. a generic dump/debug tool).
type Decoded struct {
	Kind   schema.Primitive
	Int64  int64
	Double float64
	Str    string
	Bytes  []byte
	Bool   bool
}

// Decode parses a MessagePack-encoded leaf value produced by one of the
// Encode* functions.
func Decode(data []byte) (Decoded, error) {
	var w wireValue
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Decoded{}, fmt.Errorf("codec: decode leaf value: %w", err)
	}
	switch w.Kind {
	case schema.Int64:
		return Decoded{Kind: w.Kind, Int64: w.I}, nil
	case schema.Double:
		return Decoded{Kind: w.Kind, Double: math.Float64frombits(w.D)}, nil
	case schema.String:
		return Decoded{Kind: w.Kind, Str: w.S}, nil
	case schema.Bytes:
		return Decoded{Kind: w.Kind, Bytes: w.B}, nil
	case schema.Bool:
		return Decoded{Kind: w.Kind, Bool: w.Bool}, nil
	default:
		return Decoded{}, fmt.Errorf("codec: unknown primitive kind %d", w.Kind)
	}
}
