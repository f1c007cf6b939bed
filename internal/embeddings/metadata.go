package embeddings

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the type held by a metadata Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
)

// Value is a tagged variant for metadata fields: string, number, boolean,
// or a nested mapping. It keeps the "arbitrary JSON document" flexibility of
// the JSONB column while staying type-safe on the Go side; arrays and nulls
// are not representable and are rejected on decode.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	m    Metadata
}

// Metadata is a schema-less key/value document attached to a record.
// A nil Metadata is stored as the empty document.
type Metadata map[string]Value

// String creates a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool creates a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Map creates a nested-mapping Value.
func Map(m Metadata) Value { return Value{kind: KindMap, m: m} }

// Kind returns the kind of the value. The zero Value has KindInvalid.
func (v Value) Kind() Kind { return v.kind }

// StringValue returns the string payload; ok is false for other kinds.
func (v Value) StringValue() (s string, ok bool) { return v.str, v.kind == KindString }

// NumberValue returns the numeric payload; ok is false for other kinds.
func (v Value) NumberValue() (f float64, ok bool) { return v.num, v.kind == KindNumber }

// BoolValue returns the boolean payload; ok is false for other kinds.
func (v Value) BoolValue() (b bool, ok bool) { return v.b, v.kind == KindBool }

// MapValue returns the nested mapping; ok is false for other kinds.
func (v Value) MapValue() (m Metadata, ok bool) { return v.m, v.kind == KindMap }

// MarshalJSON encodes the value as its plain JSON counterpart.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("%w: cannot marshal invalid value", ErrInvalidMetadata)
	}
}

// UnmarshalJSON decodes a plain JSON value into the variant. JSON arrays and
// nulls have no corresponding kind and produce ErrInvalidMetadata.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	decoded, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// fromAny converts a decoded JSON value into a Value.
func fromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case bool:
		return Bool(x), nil
	case map[string]any:
		m := make(Metadata, len(x))
		for k, elem := range x {
			val, err := fromAny(elem)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = val
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported JSON value %T", ErrInvalidMetadata, raw)
	}
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// marshalMetadata encodes metadata as the JSONB document stored in the
// database. Nil metadata becomes the empty document rather than SQL null.
func marshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}

// unmarshalMetadata decodes a JSONB document from the database.
func unmarshalMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if m == nil {
		m = Metadata{}
	}
	return m, nil
}
