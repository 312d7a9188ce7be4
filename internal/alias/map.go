// Package alias implements identity virtualization: generated artifacts
// address participants by stable spec-relative aliases, and this layer
// binds those aliases to concrete match-scoped participant ids so the
// generation layer never sees a real identifier.
package alias

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Map is an immutable bidirectional binding of aliases to concrete
// participant ids. Built once when a match is seated; ops and conditions
// are rewritten against it, never against raw ids.
type Map struct {
	byAlias map[string]string
	byID    map[string]string
}

// NewMap builds a map from alias to concrete-id bindings. Both sides must
// be unique.
func NewMap(bindings map[string]string) (Map, error) {
	m := Map{
		byAlias: make(map[string]string, len(bindings)),
		byID:    make(map[string]string, len(bindings)),
	}
	for _, a := range sortedKeys(bindings) {
		id := bindings[a]
		if a == "" || id == "" {
			return Map{}, fmt.Errorf("alias binding %q->%q: empty side", a, id)
		}
		if prev, dup := m.byID[id]; dup {
			return Map{}, fmt.Errorf("participant id %q bound to both %q and %q", id, prev, a)
		}
		m.byAlias[a] = id
		m.byID[id] = a
	}
	return m, nil
}

// Assign mints a concrete id for each alias using gen and returns the
// resulting map. Aliases are processed in sorted order so a deterministic
// generator yields a deterministic map.
func Assign(aliases []string, gen IDGenerator) (Map, error) {
	names := make([]string, len(aliases))
	copy(names, aliases)
	sort.Strings(names)

	bindings := make(map[string]string, len(names))
	for _, a := range names {
		if _, dup := bindings[a]; dup {
			return Map{}, fmt.Errorf("duplicate alias %q", a)
		}
		bindings[a] = gen.NewID()
	}
	return NewMap(bindings)
}

// Resolve returns the concrete id bound to an alias.
func (m Map) Resolve(alias string) (string, bool) {
	id, ok := m.byAlias[alias]
	return id, ok
}

// AliasFor returns the alias bound to a concrete id. Used when rendering
// state back into the generation layer's frame of reference.
func (m Map) AliasFor(id string) (string, bool) {
	a, ok := m.byID[id]
	return a, ok
}

// Aliases returns every bound alias in sorted order.
func (m Map) Aliases() []string {
	return sortedKeys(m.byAlias)
}

// IDs returns every bound concrete id, sorted by their alias. Wildcard
// expansion iterates this order so expansion cardinality and sequence are
// reproducible.
func (m Map) IDs() []string {
	out := make([]string, 0, len(m.byAlias))
	for _, a := range m.Aliases() {
		out = append(out, m.byAlias[a])
	}
	return out
}

// Len returns the number of bindings.
func (m Map) Len() int { return len(m.byAlias) }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IDGenerator mints concrete participant ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator mints UUIDv7 ids, time-ordered so journal rows for a
// match cluster on insert.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
