// Package metric defines the value tree used for iteration results and for
// the full output document of a benchmark run.
package metric

import "fmt"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindSequence
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a string, a number, a sequence of values or a map of values.
// The zero Value is invalid and encodes as JSON null.
type Value struct {
	kind Kind
	str  string
	num  float64
	seq  []Value
	m    *Map
}

// String returns a string Value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a numeric Value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Sequence returns a sequence Value holding vs.
func Sequence(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}

	return Value{kind: KindSequence, seq: vs}
}

// FromMap returns a map Value wrapping m. A nil m is treated as empty.
func FromMap(m *Map) Value {
	if m == nil {
		m = NewMap()
	}

	return Value{kind: KindMap, m: m}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind {
	return v.kind
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsSequence returns the elements held by v.
func (v Value) AsSequence() ([]Value, bool) {
	return v.seq, v.kind == KindSequence
}

// AsMap returns the map held by v.
func (v Value) AsMap() (*Map, bool) {
	return v.m, v.kind == KindMap
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindSequence:
		seq := make([]Value, len(v.seq))
		for i, e := range v.seq {
			seq[i] = e.Clone()
		}

		return Value{kind: KindSequence, seq: seq}
	case KindMap:
		return FromMap(v.m.Clone())
	default:
		return v
	}
}

func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("metric.String(%q)", v.str)
	case KindNumber:
		return fmt.Sprintf("metric.Number(%v)", v.num)
	case KindSequence:
		return fmt.Sprintf("metric.Sequence(%d items)", len(v.seq))
	case KindMap:
		return fmt.Sprintf("metric.Map(%d keys)", v.m.Len())
	default:
		return "metric.Value{}"
	}
}
