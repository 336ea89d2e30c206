package postgres

import (
	"reflect"

	"outofschool/internal/metadata"
)

// Entry is the tracking record of one attached entity instance.
type Entry struct {
	entity   any
	original any
	desc     *metadata.Entity
}

// Entity returns the tracked instance.
func (e *Entry) Entity() any { return e.entity }

// Descriptor returns the metadata of the tracked instance.
func (e *Entry) Descriptor() *metadata.Entity { return e.desc }

// OriginalEntity returns the snapshot taken at attach time or at the last accepted save.
func (e *Entry) OriginalEntity() any { return e.original }

// Original returns the snapshot value of a property.
func (e *Entry) Original(field string) any {
	f, ok := e.desc.Field(field)
	if !ok {
		return nil
	}
	return f.Get(e.original)
}

// Current returns the in-memory value of a property.
func (e *Entry) Current(field string) any {
	f, ok := e.desc.Field(field)
	if !ok {
		return nil
	}
	return f.Get(e.entity)
}

// IsModified reports whether any of fields differs from the snapshot.
// Without arguments every scalar property is compared.
func (e *Entry) IsModified(fields ...string) bool {
	if len(fields) == 0 {
		for _, f := range e.desc.Fields() {
			if f.Kind == metadata.KindScalar && !valuesEqual(f.Get(e.original), f.Get(e.entity)) {
				return true
			}
		}
		return false
	}

	for _, name := range fields {
		f, ok := e.desc.Field(name)
		if !ok {
			continue
		}
		if !valuesEqual(f.Get(e.original), f.Get(e.entity)) {
			return true
		}
	}
	return false
}

// ChangeTracker keeps a snapshot of every entity instance read or written
// through a session so that pending modifications can be diffed later.
// Snapshots are shallow copies: nested pointers are shared with the instance,
// related entities are tracked by their own entries.
type ChangeTracker struct {
	registry *metadata.Registry
	entries  map[any]*Entry
}

// NewChangeTracker creates an empty tracker over registry.
func NewChangeTracker(registry *metadata.Registry) *ChangeTracker {
	return &ChangeTracker{
		registry: registry,
		entries:  make(map[any]*Entry),
	}
}

// Attach starts tracking entity. An already tracked instance keeps its snapshot.
// Only non-nil pointers of registered types can be tracked.
func (t *ChangeTracker) Attach(entity any) (*Entry, bool) {
	if !isPointer(entity) {
		return nil, false
	}
	if entry, ok := t.entries[entity]; ok {
		return entry, true
	}

	desc, ok := t.registry.Lookup(entity)
	if !ok {
		return nil, false
	}
	original := snapshot(entity)
	if original == nil {
		return nil, false
	}

	entry := &Entry{entity: entity, original: original, desc: desc}
	t.entries[entity] = entry
	return entry, true
}

// Entry returns the tracking record of entity, if it is attached.
func (t *ChangeTracker) Entry(entity any) (*Entry, bool) {
	if entity == nil || !isPointer(entity) {
		return nil, false
	}
	entry, ok := t.entries[entity]
	return entry, ok
}

// AcceptChanges takes a fresh snapshot of entity, attaching it when needed.
func (t *ChangeTracker) AcceptChanges(entity any) {
	if entry, ok := t.Entry(entity); ok {
		entry.original = snapshot(entity)
		return
	}
	t.Attach(entity)
}

// Detach stops tracking entity.
func (t *ChangeTracker) Detach(entity any) {
	if !isPointer(entity) {
		return
	}
	delete(t.entries, entity)
}

// Len returns the number of tracked instances.
func (t *ChangeTracker) Len() int { return len(t.entries) }

// Clear drops every entry.
func (t *ChangeTracker) Clear() {
	t.entries = make(map[any]*Entry)
}

func isPointer(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Pointer
}

func snapshot(entity any) any {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil
	}
	clone := reflect.New(v.Elem().Type())
	clone.Elem().Set(v.Elem())
	return clone.Interface()
}

// valuesEqual compares property values, preferring a type's own Equal method
// (time.Time, decimal.Decimal) over deep equality.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Type() != bv.Type() {
		return false
	}
	if m := av.MethodByName("Equal"); m.IsValid() {
		mt := m.Type()
		if mt.NumIn() == 1 && mt.In(0) == av.Type() && mt.NumOut() == 1 && mt.Out(0).Kind() == reflect.Bool {
			return m.Call([]reflect.Value{bv})[0].Bool()
		}
	}
	return reflect.DeepEqual(a, b)
}
