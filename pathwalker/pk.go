package pathwalker

import (
	"encoding/binary"

	"github.com/muskanmahajan37/RefineDB/schema"
)

// EncodePrimaryKey renders a primitive primary-key value as an
// order-preserving byte sequence: the encoding must sort in the KV's
// byte-lexicographic order exactly as the original values compare
// (spec.md §4.2, "the only sort-sensitive encoding").
//
// Signed 64-bit integers flip the sign bit of their big-endian two's
// complement form, which is a simpler presentation of the same
// order-preserving trick spec.md's zig-zag-prefix description aims for
// (documented as a deliberate simplification in DESIGN.md). Strings are
// escaped so an embedded 0x00 byte cannot be confused with the
// terminator appended by the caller when splicing primary-key bytes into
// a set's data prefix.
func EncodePrimaryKey(p schema.Primitive, v Value) []byte {
	switch p {
	case schema.Int64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v.Int64)^(1<<63))
		return buf[:]
	case schema.Double:
		// Raw 64-bit IEEE-754 pattern per spec.md §3 ("stored as raw
		// 64-bit pattern for determinism"); sign-bit flip alone isn't
		// order-preserving for floats (it needs the full-bits flip for
		// negative values), so flip all bits when negative and only the
		// sign bit when non-negative.
		bits := v.Double
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], bits)
		return buf[:]
	case schema.String:
		return escapeTerminated([]byte(v.Str))
	case schema.Bytes:
		return escapeTerminated(v.Bytes)
	case schema.Bool:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	default:
		panic("pathwalker: unknown primitive kind")
	}
}

// Value is the minimal primitive payload EncodePrimaryKey needs; it
// mirrors the primitive variants a vmvalue.Value can hold without this
// package importing vmvalue (pathwalker sits below vmvalue in the import
// graph: vmvalue.Resident holds a *pathwalker.Walker, not the reverse).
type Value struct {
	Int64  int64
	Double uint64
	Str    string
	Bytes  []byte
	Bool   bool
}

// escapeTerminated replaces every 0x00 byte with 0x00 0xFF and appends a
// 0x00 0x00 terminator, the standard order-preserving encoding for
// variable-length byte strings (no encoded string is ever a prefix of
// another distinct string's encoding).
func escapeTerminated(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	for _, c := range b {
		if c == 0x00 {
			out = append(out, 0x00, 0xFF)
		} else {
			out = append(out, c)
		}
	}
	return append(out, 0x00, 0x00)
}
