package schema

import (
	_ "embed"
	"sort"
	"sync"
)

//go:embed manifest/kinds.hcl
var builtinManifest []byte

// Table is an immutable set of kinds keyed by type name.
type Table struct {
	resources map[string]*Kind
	lookups   map[string]*Kind
}

// Builtin returns the table of ESXi kinds compiled into the binary. It is
// parsed once; later calls return the same table.
var Builtin = sync.OnceValue(func() *Table {
	t, err := Parse("kinds.hcl", builtinManifest)
	if err != nil {
		panic("schema: invalid builtin manifest: " + err.Error())
	}
	return t
})

// Resource returns the managed resource kind with the given type name.
func (t *Table) Resource(typ string) (*Kind, bool) {
	k, ok := t.resources[typ]
	return k, ok
}

// Lookup returns the data source kind with the given type name.
func (t *Table) Lookup(typ string) (*Kind, bool) {
	k, ok := t.lookups[typ]
	return k, ok
}

// ByToken finds a kind by its provider token.
func (t *Table) ByToken(token string) (*Kind, bool) {
	for _, k := range t.resources {
		if k.Token == token {
			return k, true
		}
	}
	for _, k := range t.lookups {
		if k.Token == token {
			return k, true
		}
	}
	return nil, false
}

// ResourceTypes returns the managed resource type names, sorted.
func (t *Table) ResourceTypes() []string {
	return sortedKeys(t.resources)
}

// LookupTypes returns the data source type names, sorted.
func (t *Table) LookupTypes() []string {
	return sortedKeys(t.lookups)
}

func sortedKeys(m map[string]*Kind) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
