package property

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// FromCty converts a fully known cty value into a Value.
func FromCty(v cty.Value) (Value, error) {
	if v.IsNull() {
		return Null(), nil
	}
	if !v.IsWhollyKnown() {
		return Value{}, fmt.Errorf("property: value of type %s is not known", v.Type().FriendlyName())
	}
	v, _ = v.Unmark()
	t := v.Type()
	switch {
	case t.Equals(cty.String):
		return String(v.AsString()), nil
	case t.Equals(cty.Bool):
		return Bool(v.True()), nil
	case t.Equals(cty.Number):
		f, _ := v.AsBigFloat().Float64()
		return Number(f), nil
	case t.IsListType() || t.IsSetType() || t.IsTupleType():
		l := make([]Value, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			e, err := FromCty(ev)
			if err != nil {
				return Value{}, err
			}
			l = append(l, e)
		}
		return Value{kind: KindList, l: l}, nil
	case t.IsMapType() || t.IsObjectType():
		m := make(map[string]Value, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			e, err := FromCty(ev)
			if err != nil {
				return Value{}, err
			}
			m[k.AsString()] = e
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fmt.Errorf("property: unsupported cty type %s", t.FriendlyName())
}

// ToCty converts a resolved Value into cty. Lists become tuples and maps
// become objects so heterogeneous elements survive the conversion.
func ToCty(v Value) (cty.Value, error) {
	switch v.kind {
	case KindNull:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case KindBool:
		return cty.BoolVal(v.b), nil
	case KindNumber:
		return cty.NumberFloatVal(v.n), nil
	case KindString:
		return cty.StringVal(v.s), nil
	case KindList:
		if len(v.l) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(v.l))
		for i, e := range v.l {
			ce, err := ToCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ce
		}
		return cty.TupleVal(elems), nil
	case KindMap:
		if len(v.m) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(v.m))
		for k, e := range v.m {
			ce, err := ToCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = ce
		}
		return cty.ObjectVal(attrs), nil
	case KindReference:
		return cty.NilVal, fmt.Errorf("property: unresolved reference %s", v.r)
	}
	return cty.NilVal, fmt.Errorf("property: cannot convert %s", v.kind)
}

// BagToCty converts a resolved bag into a cty object.
func BagToCty(b Bag) (cty.Value, error) {
	return ToCty(Map(b))
}

// Conform checks that v is compatible with the cty type t. Null values and
// unresolved references always conform; object attributes not declared in
// t are ignored.
func Conform(v Value, t cty.Type, path string) error {
	if v.kind == KindNull || v.kind == KindReference || t.Equals(cty.DynamicPseudoType) {
		return nil
	}
	switch {
	case t.Equals(cty.String):
		if v.kind != KindString {
			return &SchemaMismatchError{Path: path, Expected: "string", Actual: v.kind}
		}
	case t.Equals(cty.Number):
		if v.kind != KindNumber {
			return &SchemaMismatchError{Path: path, Expected: "number", Actual: v.kind}
		}
	case t.Equals(cty.Bool):
		if v.kind != KindBool {
			return &SchemaMismatchError{Path: path, Expected: "bool", Actual: v.kind}
		}
	case t.IsListType() || t.IsSetType():
		if v.kind != KindList {
			return &SchemaMismatchError{Path: path, Expected: t.FriendlyName(), Actual: v.kind}
		}
		for i, e := range v.l {
			if err := Conform(e, t.ElementType(), indexPath(path, i)); err != nil {
				return err
			}
		}
	case t.IsMapType():
		if v.kind != KindMap {
			return &SchemaMismatchError{Path: path, Expected: t.FriendlyName(), Actual: v.kind}
		}
		for _, k := range sortedKeys(v.m) {
			if err := Conform(v.m[k], t.ElementType(), joinPath(path, k)); err != nil {
				return err
			}
		}
	case t.IsObjectType():
		if v.kind != KindMap {
			return &SchemaMismatchError{Path: path, Expected: "object", Actual: v.kind}
		}
		for name, at := range t.AttributeTypes() {
			e, ok := v.m[name]
			if !ok {
				continue
			}
			if err := Conform(e, at, joinPath(path, name)); err != nil {
				return err
			}
		}
	}
	return nil
}
