package property

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

var (
	valueType = reflect.TypeOf(Value{})
	enumType  = reflect.TypeOf((*Enum)(nil)).Elem()
	encType   = reflect.TypeOf((*propertyEncoder)(nil)).Elem()
	decType   = reflect.TypeOf((*propertyDecoder)(nil)).Elem()
)

// Encode converts a typed argument struct (or pointer to one) into a Bag.
//
// Fields are named by their `prop:"name"` tag, falling back to the field
// name with a lowercase first letter; `prop:"-"` skips a field. Nil
// pointers, slices, maps and unset Inputs are omitted. Non-pointer scalars
// are always written.
func Encode(args any) (Bag, error) {
	rv := reflect.ValueOf(args)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Bag{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("property: Encode expects a struct, got %s", rv.Type())
	}
	m, err := encodeStruct(rv, "")
	if err != nil {
		return nil, err
	}
	return Bag(m), nil
}

// Decode fills the struct pointed to by out from bag. Keys with no
// matching field are ignored; absent or null keys leave the field at its
// zero value.
func Decode(bag Bag, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("property: Decode expects a non-nil pointer")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("property: Decode expects a pointer to struct, got %s", rv.Type())
	}
	return decodeStruct(map[string]Value(bag), rv, "")
}

type fieldInfo struct {
	name  string
	index []int
}

var fieldCache sync.Map // reflect.Type -> []fieldInfo

func structFields(t reflect.Type) []fieldInfo {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldInfo)
	}
	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("prop")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = lowerFirst(f.Name)
		}
		fields = append(fields, fieldInfo{name: name, index: f.Index})
	}
	actual, _ := fieldCache.LoadOrStore(t, fields)
	return actual.([]fieldInfo)
}

func lowerFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func encodeStruct(rv reflect.Value, path string) (map[string]Value, error) {
	m := make(map[string]Value)
	for _, f := range structFields(rv.Type()) {
		fp := joinPath(path, f.name)
		v, ok, err := encodeValue(rv.FieldByIndex(f.index), fp)
		if err != nil {
			return nil, err
		}
		if ok {
			m[f.name] = v
		}
	}
	return m, nil
}

// encodeValue returns the encoded value and false when the value is unset.
func encodeValue(rv reflect.Value, path string) (Value, bool, error) {
	t := rv.Type()
	if t == valueType {
		v := rv.Interface().(Value)
		return v, !v.IsNull(), nil
	}
	if t.Kind() != reflect.Pointer && t.Implements(encType) {
		return rv.Interface().(propertyEncoder).encodeProperty(path)
	}
	if t.Kind() == reflect.String && t.Implements(enumType) {
		token := rv.String()
		if err := CheckEnum(path, token, rv.Interface().(Enum).EnumValues()); err != nil {
			return Value{}, false, err
		}
		return String(token), true, nil
	}

	switch t.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{}, false, nil
		}
		return encodeValue(rv.Elem(), path)
	case reflect.Bool:
		return Bool(rv.Bool()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(float64(rv.Uint())), true, nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), true, nil
	case reflect.String:
		return String(rv.String()), true, nil
	case reflect.Slice, reflect.Array:
		if t.Kind() == reflect.Slice && rv.IsNil() {
			return Value{}, false, nil
		}
		l := make([]Value, rv.Len())
		for i := range l {
			ev, _, err := encodeValue(rv.Index(i), indexPath(path, i))
			if err != nil {
				return Value{}, false, err
			}
			l[i] = ev
		}
		return Value{kind: KindList, l: l}, true, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return Value{}, false, fmt.Errorf("property %q: map keys must be strings, got %s", path, t.Key())
		}
		if rv.IsNil() {
			return Value{}, false, nil
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			ev, ok, err := encodeValue(iter.Value(), joinPath(path, k))
			if err != nil {
				return Value{}, false, err
			}
			if ok {
				m[k] = ev
			}
		}
		return Value{kind: KindMap, m: m}, true, nil
	case reflect.Struct:
		m, err := encodeStruct(rv, path)
		if err != nil {
			return Value{}, false, err
		}
		return Value{kind: KindMap, m: m}, true, nil
	}
	return Value{}, false, fmt.Errorf("property %q: unsupported Go type %s", path, t)
}

func decodeStruct(m map[string]Value, rv reflect.Value, path string) error {
	for _, f := range structFields(rv.Type()) {
		v, ok := m[f.name]
		if !ok || v.IsNull() {
			continue
		}
		if err := decodeValue(v, rv.FieldByIndex(f.index), joinPath(path, f.name)); err != nil {
			return err
		}
	}
	return nil
}

func decodeValue(v Value, rv reflect.Value, path string) error {
	t := rv.Type()
	if t == valueType {
		rv.Set(reflect.ValueOf(v))
		return nil
	}
	if reflect.PointerTo(t).Implements(decType) {
		return rv.Addr().Interface().(propertyDecoder).decodeProperty(v, path)
	}
	if t.Kind() == reflect.Pointer {
		if v.IsNull() {
			rv.Set(reflect.Zero(t))
			return nil
		}
		elem := reflect.New(t.Elem())
		if err := decodeValue(v, elem.Elem(), path); err != nil {
			return err
		}
		rv.Set(elem)
		return nil
	}
	if t.Kind() == reflect.String && t.Implements(enumType) {
		if v.Kind() != KindString {
			return &SchemaMismatchError{Path: path, Expected: "string", Actual: v.Kind()}
		}
		allowed := reflect.Zero(t).Interface().(Enum).EnumValues()
		if err := CheckEnum(path, v.s, allowed); err != nil {
			return err
		}
		rv.SetString(v.s)
		return nil
	}

	switch t.Kind() {
	case reflect.Bool:
		if v.kind != KindBool {
			return &SchemaMismatchError{Path: path, Expected: "bool", Actual: v.kind}
		}
		rv.SetBool(v.b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.kind != KindNumber || v.n != math.Trunc(v.n) {
			return &SchemaMismatchError{Path: path, Expected: "integer", Actual: v.kind}
		}
		if v.n < math.MinInt64 || v.n >= math.MaxInt64 || rv.OverflowInt(int64(v.n)) {
			return &SchemaMismatchError{Path: path, Expected: fmt.Sprintf("integer within %s range", t), Actual: v.kind}
		}
		rv.SetInt(int64(v.n))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.kind != KindNumber || v.n != math.Trunc(v.n) || v.n < 0 {
			return &SchemaMismatchError{Path: path, Expected: "unsigned integer", Actual: v.kind}
		}
		if v.n >= math.MaxUint64 || rv.OverflowUint(uint64(v.n)) {
			return &SchemaMismatchError{Path: path, Expected: fmt.Sprintf("integer within %s range", t), Actual: v.kind}
		}
		rv.SetUint(uint64(v.n))
	case reflect.Float32, reflect.Float64:
		if v.kind != KindNumber {
			return &SchemaMismatchError{Path: path, Expected: "number", Actual: v.kind}
		}
		rv.SetFloat(v.n)
	case reflect.String:
		if v.kind != KindString {
			return &SchemaMismatchError{Path: path, Expected: "string", Actual: v.kind}
		}
		rv.SetString(v.s)
	case reflect.Slice:
		if v.kind != KindList {
			return &SchemaMismatchError{Path: path, Expected: "list", Actual: v.kind}
		}
		s := reflect.MakeSlice(t, len(v.l), len(v.l))
		for i, e := range v.l {
			if err := decodeValue(e, s.Index(i), indexPath(path, i)); err != nil {
				return err
			}
		}
		rv.Set(s)
	case reflect.Map:
		if v.kind != KindMap {
			return &SchemaMismatchError{Path: path, Expected: "map", Actual: v.kind}
		}
		if t.Key().Kind() != reflect.String {
			return fmt.Errorf("property %q: map keys must be strings, got %s", path, t.Key())
		}
		m := reflect.MakeMapWithSize(t, len(v.m))
		for k, e := range v.m {
			ev := reflect.New(t.Elem()).Elem()
			if err := decodeValue(e, ev, joinPath(path, k)); err != nil {
				return err
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		rv.Set(m)
	case reflect.Struct:
		if v.kind != KindMap {
			return &SchemaMismatchError{Path: path, Expected: "object", Actual: v.kind}
		}
		return decodeStruct(v.m, rv, path)
	default:
		return fmt.Errorf("property %q: unsupported Go type %s", path, t)
	}
	return nil
}
