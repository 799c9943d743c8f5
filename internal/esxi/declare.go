package esxi

import (
	"fmt"

	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/property"
)

// Declare encodes args and declares a managed resource on s.
func Declare(s *config.Stack, name string, args Args, opts ...config.Option) (*config.Handle, error) {
	bag, err := property.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", args.Type(), name, err)
	}
	return s.Resource(args.Type(), name, bag, opts...), nil
}

// Lookup encodes args and declares a lookup on s.
func Lookup(s *config.Stack, name string, args LookupArgs, opts ...config.Option) (*config.Handle, error) {
	bag, err := property.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", args.LookupType(), name, err)
	}
	return s.Data(args.LookupType(), name, bag, opts...), nil
}

// DecodeOutputs decodes a realized resource's outputs into T.
func DecodeOutputs[T any](outputs property.Bag) (*T, error) {
	out := new(T)
	if err := property.Decode(outputs, out); err != nil {
		return nil, err
	}
	return out, nil
}
