package property

import "reflect"

// Input is a typed argument that holds either a literal of type T or a
// reference to another resource's output. The zero Input is unset and is
// omitted when encoded.
type Input[T any] struct {
	set   bool
	value T
	ref   *Reference
}

// Set returns an Input holding the literal v.
func Set[T any](v T) Input[T] {
	return Input[T]{set: true, value: v}
}

// From returns an Input resolved later from r.
func From[T any](r Reference) Input[T] {
	return Input[T]{set: true, ref: &r}
}

// IsSet reports whether the input carries a literal or a reference.
func (in Input[T]) IsSet() bool { return in.set }

// Literal returns the literal value and whether one is held.
func (in Input[T]) Literal() (T, bool) {
	return in.value, in.set && in.ref == nil
}

// Reference returns the reference and whether one is held.
func (in Input[T]) Reference() (Reference, bool) {
	if in.ref == nil {
		return Reference{}, false
	}
	return *in.ref, true
}

func (in Input[T]) encodeProperty(path string) (Value, bool, error) {
	if !in.set {
		return Value{}, false, nil
	}
	if in.ref != nil {
		return RefValue(*in.ref), true, nil
	}
	v, ok, err := encodeValue(reflect.ValueOf(&in.value).Elem(), path)
	if err != nil || !ok {
		return v, ok, err
	}
	return v, true, nil
}

func (in *Input[T]) decodeProperty(v Value, path string) error {
	if v.Kind() == KindReference {
		r := v.AsReference()
		*in = Input[T]{set: true, ref: &r}
		return nil
	}
	var t T
	if err := decodeValue(v, reflect.ValueOf(&t).Elem(), path); err != nil {
		return err
	}
	*in = Input[T]{set: true, value: t}
	return nil
}

type propertyEncoder interface {
	encodeProperty(path string) (Value, bool, error)
}

type propertyDecoder interface {
	decodeProperty(v Value, path string) error
}
