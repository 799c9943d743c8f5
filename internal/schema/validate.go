package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/specialistvlad/esxigrid/internal/property"
)

// CheckRequired reports every required input that is absent or null in bag.
// A deferred reference counts as present.
func (k *Kind) CheckRequired(bag property.Bag) error {
	var errs []error
	for _, in := range k.inputs {
		if in.Required && !bag.Has(in.Name) {
			errs = append(errs, &MissingRequiredFieldError{Kind: k.Type, Field: in.Name})
		}
	}
	return errors.Join(errs...)
}

// Validate checks bag against the kind: required inputs, value types and
// declared constraints. Values still holding references are only checked
// for presence. All violations are returned joined together.
func (k *Kind) Validate(bag property.Bag) error {
	var errs []error
	if err := k.CheckRequired(bag); err != nil {
		errs = append(errs, err)
	}
	for _, in := range k.inputs {
		v, ok := bag[in.Name]
		if !ok || v.IsNull() || v.Kind() == property.KindReference {
			continue
		}
		if err := property.Conform(v, in.Type, in.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := k.checkConstraints(in, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (k *Kind) checkConstraints(in *Input, v property.Value) error {
	switch v.Kind() {
	case property.KindString:
		s := v.AsString()
		if len(in.OneOf) > 0 {
			if in.AllowInteger {
				if _, err := strconv.Atoi(s); err == nil {
					return nil
				}
			}
			if err := property.CheckEnum(in.Name, s, in.OneOf); err != nil {
				return err
			}
		}
		if in.ForbidPrefix != "" && strings.HasPrefix(s, in.ForbidPrefix) {
			return &ValidationError{Kind: k.Type, Field: in.Name, Reason: fmt.Sprintf("cannot start with %q", in.ForbidPrefix)}
		}
	case property.KindNumber:
		n := v.AsNumber()
		if in.Min != nil && n < *in.Min {
			return &ValidationError{Kind: k.Type, Field: in.Name, Reason: fmt.Sprintf("must be at least %v, got %v", *in.Min, n)}
		}
		if in.Max != nil && n > *in.Max {
			return &ValidationError{Kind: k.Type, Field: in.Name, Reason: fmt.Sprintf("must be at most %v, got %v", *in.Max, n)}
		}
	case property.KindList:
		if in.MaxItems > 0 && v.Len() > in.MaxItems {
			return &ValidationError{Kind: k.Type, Field: in.Name, Reason: fmt.Sprintf("at most %d items allowed, got %d", in.MaxItems, v.Len())}
		}
		var errs []error
		for i := 0; i < v.Len(); i++ {
			item := v.Index(i)
			for _, key := range in.ItemRequired {
				if e, ok := item.Get(key); !ok || e.IsNull() {
					errs = append(errs, &MissingRequiredFieldError{Kind: k.Type, Field: fmt.Sprintf("%s[%d].%s", in.Name, i, key)})
				}
			}
		}
		return errors.Join(errs...)
	}
	return nil
}
