// Package typemap stores at most one value per Go type.
//
// Values are boxed behind a pointer owned by the map. Lookups are checked
// down-casts: asking for T returns the box stored under T's identity or
// nothing. Replacing a value writes through the existing box, so pointers
// handed out by Get stay valid until the entry is removed.
//
// A Map is not safe for concurrent mutation. The store only mutates it
// during plugin load and commit, both single-threaded phases; concurrent
// readers are fine while no writer runs.
package typemap

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ID identifies a state type. The zero ID names no type.
type ID struct {
	t reflect.Type
}

// IDOf returns the identity of T.
func IDOf[T any]() ID {
	return ID{t: reflect.TypeFor[T]()}
}

// Type returns the underlying reflect.Type, nil for the zero ID.
func (id ID) Type() reflect.Type { return id.t }

// IsZero reports whether id names no type.
func (id ID) IsZero() bool { return id.t == nil }

// String returns the package-qualified type name, e.g. "demo.Counter".
func (id ID) String() string {
	if id.t == nil {
		return "<none>"
	}
	return id.t.String()
}

// Map holds one boxed value per type. The zero Map is empty and ready to use.
type Map struct {
	entries map[ID]any
}

// New returns an empty Map.
func New() *Map {
	return &Map{entries: make(map[ID]any)}
}

// Insert stores v under T, returning the value it replaced.
func Insert[T any](m *Map, v T) (prev T, replaced bool) {
	id := IDOf[T]()
	if box, ok := m.entries[id]; ok {
		p := cast[T](id, box)
		prev = *p
		*p = v
		return prev, true
	}
	if m.entries == nil {
		m.entries = make(map[ID]any)
	}
	p := new(T)
	*p = v
	m.entries[id] = p
	return prev, false
}

// Get returns the box stored under T.
func Get[T any](m *Map) (*T, bool) {
	id := IDOf[T]()
	box, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return cast[T](id, box), true
}

// Remove deletes the entry for T and returns its value.
func Remove[T any](m *Map) (T, bool) {
	id := IDOf[T]()
	box, ok := m.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(m.entries, id)
	return *cast[T](id, box), true
}

// Contains reports whether T has an entry.
func Contains[T any](m *Map) bool {
	return m.Has(IDOf[T]())
}

// Has reports whether id has an entry.
func (m *Map) Has(id ID) bool {
	_, ok := m.entries[id]
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.entries) }

// IDs lists the stored identities ordered by type name.
func (m *Map) IDs() []ID {
	ids := make([]ID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}

// Clear drops every entry.
func (m *Map) Clear() {
	clear(m.entries)
}

// cast panics when a box does not hold the type it is filed under. Only a
// bug in this package can cause that.
func cast[T any](id ID, box any) *T {
	p, ok := box.(*T)
	if !ok {
		panic(fmt.Sprintf("typemap: entry for %s holds %T", id, box))
	}
	return p
}
