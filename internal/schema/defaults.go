package schema

import "github.com/specialistvlad/esxigrid/internal/property"

// ApplyDefaults returns a copy of bag with every declared default injected
// for inputs the caller omitted. Explicitly provided values, including
// explicit empties, are left untouched. The input bag is not modified.
func (k *Kind) ApplyDefaults(bag property.Bag) property.Bag {
	out := bag.Clone()
	if out == nil {
		out = property.Bag{}
	}
	for _, in := range k.inputs {
		if in.Default == nil {
			continue
		}
		if _, present := out[in.Name]; present {
			continue
		}
		out[in.Name] = *in.Default
	}
	return out
}

// Defaults returns the kind's default table as a bag.
func (k *Kind) Defaults() property.Bag {
	return k.ApplyDefaults(nil)
}
