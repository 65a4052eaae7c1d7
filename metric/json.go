package metric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MarshalJSON encodes v without a type tag: strings as JSON strings, numbers
// as JSON numbers, sequences as arrays and maps as objects.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindSequence:
		var buf bytes.Buffer

		buf.WriteByte('[')

		for i, e := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}

			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}

			buf.Write(b)
		}

		buf.WriteByte(']')

		return buf.Bytes(), nil
	case KindMap:
		return v.m.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// MarshalJSON encodes m as a JSON object with keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	var err error

	i := 0
	m.Range(func(k string, v Value) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++

		var b []byte

		b, err = json.Marshal(k)
		if err != nil {
			return false
		}

		buf.Write(b)
		buf.WriteByte(':')

		b, err = v.MarshalJSON()
		if err != nil {
			err = fmt.Errorf("encode %q: %w", k, err)
			return false
		}

		buf.Write(b)

		return true
	})

	if err != nil {
		return nil, err
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes any JSON string, number, array or object. Booleans
// and null have no Value representation and are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := decoder{}.decode(data)
	if err != nil {
		return err
	}

	*v = decoded

	return nil
}

// UnmarshalJSON decodes a JSON object into m, replacing its contents and
// keeping the document's key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	obj, err := decoder{}.object(data)
	if err != nil {
		return err
	}

	*m = *obj

	return nil
}

// DecodeRecord decodes a JSON object written by another tool. Unlike
// UnmarshalJSON it accepts booleans, kept as the strings "true" and
// "false", and null, whose object members and array elements are dropped.
func DecodeRecord(data []byte) (*Map, error) {
	return decoder{lenient: true}.object(data)
}

type decoder struct {
	lenient bool
}

func (d decoder) decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := d.value(dec)
	if err != nil {
		return Value{}, err
	}

	if v.kind == KindInvalid {
		return Value{}, fmt.Errorf("unsupported JSON null")
	}

	return v, nil
}

func (d decoder) object(data []byte) (*Map, error) {
	decoded, err := d.decode(data)
	if err != nil {
		return nil, err
	}

	obj, ok := decoded.AsMap()
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", decoded.Kind())
	}

	return obj, nil
}

// value decodes the next JSON value. In lenient mode null yields the zero
// Value, which callers drop.
func (d decoder) value(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case string:
		return String(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", t, err)
		}

		return Number(n), nil
	case json.Delim:
		switch t {
		case '[':
			return d.sequence(dec)
		case '{':
			return d.members(dec)
		}

		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	case bool:
		if !d.lenient {
			return Value{}, fmt.Errorf("unsupported JSON boolean")
		}

		return String(strconv.FormatBool(t)), nil
	case nil:
		if !d.lenient {
			return Value{}, fmt.Errorf("unsupported JSON null")
		}

		return Value{}, nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

func (d decoder) sequence(dec *json.Decoder) (Value, error) {
	seq := []Value{}

	for dec.More() {
		e, err := d.value(dec)
		if err != nil {
			return Value{}, err
		}

		if e.kind != KindInvalid {
			seq = append(seq, e)
		}
	}

	// Closing bracket.
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}

	return Sequence(seq...), nil
}

func (d decoder) members(dec *json.Decoder) (Value, error) {
	m := NewMap()

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}

		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key %v is not a string", tok)
		}

		v, err := d.value(dec)
		if err != nil {
			return Value{}, fmt.Errorf("decode %q: %w", key, err)
		}

		if v.kind != KindInvalid {
			m.Set(key, v)
		}
	}

	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}

	return FromMap(m), nil
}
