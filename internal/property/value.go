package property

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindReference:
		return "reference"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable property value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    map[string]Value
	r    Reference
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric value holding i.
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value. The elements are copied.
func List(elems ...Value) Value {
	l := make([]Value, len(elems))
	copy(l, elems)
	return Value{kind: KindList, l: l}
}

// Map returns a map value. The entries are copied.
func Map(entries map[string]Value) Value {
	m := make(map[string]Value, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Value{kind: KindMap, m: m}
}

// Ref returns a deferred reference to output on resource.
func Ref(resource, output string) Value {
	return Value{kind: KindReference, r: Reference{Resource: resource, Output: output}}
}

// RefValue wraps r as a Value.
func RefValue(r Reference) Value { return Value{kind: KindReference, r: r} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v. It panics if v is not a bool.
func (v Value) AsBool() bool {
	v.must(KindBool)
	return v.b
}

// AsNumber returns the number held by v. It panics if v is not a number.
func (v Value) AsNumber() float64 {
	v.must(KindNumber)
	return v.n
}

// AsString returns the string held by v. It panics if v is not a string.
func (v Value) AsString() string {
	v.must(KindString)
	return v.s
}

// AsList returns a copy of the elements of v. It panics if v is not a list.
func (v Value) AsList() []Value {
	v.must(KindList)
	l := make([]Value, len(v.l))
	copy(l, v.l)
	return l
}

// AsMap returns a copy of the entries of v. It panics if v is not a map.
func (v Value) AsMap() map[string]Value {
	v.must(KindMap)
	m := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		m[k] = e
	}
	return m
}

// AsReference returns the reference held by v. It panics if v is not a reference.
func (v Value) AsReference() Reference {
	v.must(KindReference)
	return v.r
}

// Len returns the number of list elements or map entries.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.l)
	case KindMap:
		return len(v.m)
	}
	return 0
}

// Index returns the i-th element of a list value.
func (v Value) Index(i int) Value {
	v.must(KindList)
	return v.l[i]
}

// Get returns the entry of a map value under key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	e, ok := v.m[key]
	return e, ok
}

func (v Value) must(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("property: value is %s, not %s", v.kind, k))
	}
}

// Equal reports whether v and o hold the same data.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindReference:
		return v.r == o.r
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// References returns every reference nested inside v, in traversal order.
func (v Value) References() []Reference {
	var refs []Reference
	v.walkRefs(func(r Reference) { refs = append(refs, r) })
	return refs
}

// IsResolved reports whether v contains no references.
func (v Value) IsResolved() bool {
	resolved := true
	v.walkRefs(func(Reference) { resolved = false })
	return resolved
}

func (v Value) walkRefs(fn func(Reference)) {
	switch v.kind {
	case KindReference:
		fn(v.r)
	case KindList:
		for _, e := range v.l {
			e.walkRefs(fn)
		}
	case KindMap:
		for _, k := range sortedKeys(v.m) {
			v.m[k].walkRefs(fn)
		}
	}
}

// Resolve returns a copy of v with every reference replaced by the value
// returned from lookup.
func (v Value) Resolve(lookup func(Reference) (Value, error)) (Value, error) {
	switch v.kind {
	case KindReference:
		return lookup(v.r)
	case KindList:
		l := make([]Value, len(v.l))
		for i, e := range v.l {
			r, err := e.Resolve(lookup)
			if err != nil {
				return Value{}, err
			}
			l[i] = r
		}
		return Value{kind: KindList, l: l}, nil
	case KindMap:
		m := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			r, err := e.Resolve(lookup)
			if err != nil {
				return Value{}, err
			}
			m[k] = r
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return v, nil
}

// String renders v compactly for logs.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(formatNumber(v.n))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindReference:
		sb.WriteString("${" + v.r.String() + "}")
	case KindList:
		sb.WriteByte('[')
		for i, e := range v.l {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		for i, k := range sortedKeys(v.m) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(" = ")
			v.m[k].format(sb)
		}
		sb.WriteByte('}')
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
