// Package property defines the untyped property model exchanged with
// providers and the codec that maps typed Go argument structs onto it.
//
// A Value is a tagged union of null, bool, number, string, list, map and
// deferred reference. A Bag is the flat name->Value mapping that travels
// over the provider protocol and into durable state.
//
// Field presence is significant: an unset field (nil pointer, nil slice,
// nil map, zero Input) is omitted from the encoded Bag, while an explicitly
// empty value (pointer to "", empty non-nil slice) is kept.
package property
