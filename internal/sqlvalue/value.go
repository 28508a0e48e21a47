package sqlvalue

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is the runtime tagged scalar every expression evaluates to.
// Cross-kind comparison is a programmer error and panics, mirroring the
// source language's unchecked-enum-match behaviour at this boundary: a
// compiled expression tree is type-checked before evaluation, so a
// mismatch here means the compiler let an invalid comparison through.
type Value struct {
	kind DataKind
	i    int64
	f    float64
	b    bool
	s    string
	bin  []byte

	// forState/forSortState back the unexported iterator-state kinds used
	// only by the evaluator's FOR / FOR..SORT loops; never produced by SQL
	// expressions directly.
	forState     interface{}
	forSortState interface{}
	isFor        bool
	isForSort    bool
}

func Int(v int64) Value      { return Value{kind: KindInt, i: v} }
func Float(v float64) Value  { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value      { return Value{kind: KindBool, b: v} }
func Str(v string) Value     { return Value{kind: KindString, s: v} }
func Binary(v []byte) Value  { return Value{kind: KindBinary, bin: v} }

// ForValue wraps an opaque FOR-loop iterator state (defined by package
// sqleval) as a Value local variable can hold.
func ForValue(state interface{}) Value { return Value{isFor: true, forState: state} }

// ForSortValue wraps an opaque sorted-FOR iterator state.
func ForSortValue(state interface{}) Value { return Value{isForSort: true, forSortState: state} }

func (v Value) Kind() DataKind { return v.kind }
func (v Value) IsFor() bool    { return v.isFor }
func (v Value) IsForSort() bool { return v.isForSort }
func (v Value) ForState() interface{}     { return v.forState }
func (v Value) ForSortState() interface{} { return v.forSortState }

// Int returns the wrapped integer, panicking if this Value is not an Int.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		panic("sqlvalue: Int() on non-int Value")
	}
	return v.i
}

// Float returns the wrapped float, panicking if this Value is not a Float.
func (v Value) Float() float64 {
	if v.kind != KindFloat {
		panic("sqlvalue: Float() on non-float Value")
	}
	return v.f
}

// BoolVal returns the wrapped bool, panicking if this Value is not a Bool.
func (v Value) BoolVal() bool {
	if v.kind != KindBool {
		panic("sqlvalue: BoolVal() on non-bool Value")
	}
	return v.b
}

// Str renders any Value kind as a string (used by STR-like coercions and
// diagnostics); Binary renders as hex.
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%v", v.f)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindBinary:
		return fmt.Sprintf("%x", v.bin)
	default:
		panic("sqlvalue: Str() not implemented for this kind")
	}
}

// Bin returns a Value coerced to its binary representation.
func (v Value) Bin() []byte {
	switch v.kind {
	case KindBinary:
		return v.bin
	case KindString:
		return []byte(v.s)
	case KindFloat:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.f))
		return buf
	case KindInt:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v.i))
		return buf
	default:
		panic("sqlvalue: Bin() not implemented for this kind")
	}
}

// Compare orders two Values of the same kind; cross-kind comparison
// panics, matching the source semantics (the type checker never lets a
// cross-kind comparison reach evaluation).
func (v Value) Compare(other Value) int {
	if v.kind != other.kind {
		panic("sqlvalue: cannot compare values of different kinds")
	}
	switch v.kind {
	case KindString:
		switch {
		case v.s < other.s:
			return -1
		case v.s > other.s:
			return 1
		default:
			return 0
		}
	case KindInt:
		switch {
		case v.i < other.i:
			return -1
		case v.i > other.i:
			return 1
		default:
			return 0
		}
	case KindFloat:
		switch {
		case v.f < other.f:
			return -1
		case v.f > other.f:
			return 1
		default:
			return 0
		}
	case KindBinary:
		a, b := v.bin, other.bin
		for i := 0; i < len(a) && i < len(b); i++ {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
		switch {
		case len(a) < len(b):
			return -1
		case len(a) > len(b):
			return 1
		default:
			return 0
		}
	default:
		panic("sqlvalue: Compare not implemented for this kind")
	}
}

func (v Value) Equal(other Value) bool { return v.kind == other.kind && v.Compare(other) == 0 }

// Append concatenates val's string form onto a String Value in place.
func (v *Value) Append(val Value) {
	if v.kind != KindString {
		panic("sqlvalue: Append on non-string Value")
	}
	v.s += val.Str()
}

// Inc adds val (Int or Float) onto v (Int or Float) in place.
func (v *Value) Inc(val Value) {
	switch v.kind {
	case KindInt:
		v.i += val.Int()
	case KindFloat:
		v.f += val.Float()
	default:
		panic("sqlvalue: Inc on non-numeric Value")
	}
}

// Dec subtracts val from v in place.
func (v *Value) Dec(val Value) {
	switch v.kind {
	case KindInt:
		v.i -= val.Int()
	case KindFloat:
		v.f -= val.Float()
	default:
		panic("sqlvalue: Dec on non-numeric Value")
	}
}
