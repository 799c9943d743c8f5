package property

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// refKey marks a reference when a Value is rendered as JSON.
const refKey = "$ref"

// MarshalJSON renders v as plain JSON. References are written as
// {"$ref": "resource.output"}. Map keys are emitted in sorted order so the
// encoding is canonical.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindReference:
		return json.Marshal(map[string]string{refKey: v.r.String()})
	case KindList:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("property: cannot marshal %s", v.kind)
}

// UnmarshalJSON parses plain JSON into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromJSON(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func fromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("property: parsing number %q: %w", x, err)
		}
		return Number(f), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	case []any:
		l := make([]Value, len(x))
		for i, e := range x {
			ev, err := fromJSON(e)
			if err != nil {
				return Value{}, err
			}
			l[i] = ev
		}
		return Value{kind: KindList, l: l}, nil
	case map[string]any:
		if len(x) == 1 {
			if s, ok := x[refKey].(string); ok {
				r, err := ParseReference(s)
				if err != nil {
					return Value{}, err
				}
				return RefValue(r), nil
			}
		}
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := fromJSON(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = ev
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fmt.Errorf("property: unsupported JSON value %T", raw)
}
