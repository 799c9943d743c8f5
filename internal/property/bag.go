package property

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Bag is the untyped name->value mapping exchanged with providers.
type Bag map[string]Value

// Clone returns a shallow copy of b. Values are immutable so this is a full copy in effect.
func (b Bag) Clone() Bag {
	if b == nil {
		return nil
	}
	c := make(Bag, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// Keys returns the keys of b in sorted order.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present with a non-null value.
func (b Bag) Has(key string) bool {
	v, ok := b[key]
	return ok && !v.IsNull()
}

// Equal reports whether b and o hold the same keys and values.
func (b Bag) Equal(o Bag) bool {
	if len(b) != len(o) {
		return false
	}
	for k, v := range b {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// References returns the distinct references held anywhere in b, ordered by key.
func (b Bag) References() []Reference {
	seen := make(map[Reference]struct{})
	var refs []Reference
	for _, k := range b.Keys() {
		for _, r := range b[k].References() {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			refs = append(refs, r)
		}
	}
	return refs
}

// IsResolved reports whether b contains no references.
func (b Bag) IsResolved() bool {
	for _, v := range b {
		if !v.IsResolved() {
			return false
		}
	}
	return true
}

// Resolve returns a copy of b with every reference replaced through lookup.
func (b Bag) Resolve(lookup func(Reference) (Value, error)) (Bag, error) {
	out := make(Bag, len(b))
	for k, v := range b {
		r, err := v.Resolve(lookup)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

// Hash returns a stable digest of b's canonical JSON encoding. Two bags
// have the same hash exactly when they are Equal.
func (b Bag) Hash() string {
	if b == nil {
		b = Bag{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		// Values are always encodable; keep the signature simple for callers.
		panic("property: hashing bag: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChangedKeys returns the keys whose values differ between olds and news,
// including keys present in only one of them.
func ChangedKeys(olds, news Bag) []string {
	var changed []string
	for k, v := range news {
		if ov, ok := olds[k]; !ok || !ov.Equal(v) {
			changed = append(changed, k)
		}
	}
	for k := range olds {
		if _, ok := news[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
