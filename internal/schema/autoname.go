package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/specialistvlad/esxigrid/internal/property"
)

const autoNameSuffixLen = 7

// AssignName fills the auto-named property when the caller omitted it. A
// name recorded for the same resource in prior state wins; otherwise a name
// of the form "<logical>-<7 hex>" is generated. Kinds without auto-naming
// and bags that already carry a name are returned unchanged.
func (k *Kind) AssignName(logical string, bag, prior property.Bag) (property.Bag, error) {
	if k.AutoName == nil {
		return bag, nil
	}
	prop := k.AutoName.Property
	if _, present := bag[prop]; present {
		return bag, nil
	}

	out := bag.Clone()
	if out == nil {
		out = property.Bag{}
	}
	if v, ok := prior[prop]; ok && v.Kind() == property.KindString {
		out[prop] = v
		return out, nil
	}

	name, err := k.AutoName.generate(logical)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", k.Type, logical, err)
	}
	out[prop] = property.String(name)
	return out, nil
}

func (a *AutoName) generate(logical string) (string, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:autoNameSuffixLen]
	prefix := logical
	if room := a.MaxLength - autoNameSuffixLen - 1; len(prefix) > room {
		if room <= 0 {
			return "", fmt.Errorf("auto-name max length %d leaves no room for a prefix", a.MaxLength)
		}
		prefix = prefix[:room]
	}
	name := prefix + "-" + suffix
	if len(name) < a.MinLength {
		return "", fmt.Errorf("auto-name %q is shorter than the minimum length %d", name, a.MinLength)
	}
	return name, nil
}
