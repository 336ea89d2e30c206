// Package metadata describes persisted entity types: their table, columns, key,
// navigation properties and string column limits. Descriptors are typed accessor
// tables built once at startup; nothing here touches the database.
package metadata

import (
	"reflect"
	"sort"
)

// FieldKind classifies a described property.
type FieldKind string

const (
	KindScalar     FieldKind = "scalar"
	KindReference  FieldKind = "reference"  // single-valued navigation
	KindCollection FieldKind = "collection" // collection-valued navigation
)

// Field describes one property of an entity.
type Field struct {
	// Name is the property name used by tracked-field declarations (e.g. "Title").
	Name string

	// Column is the mapped column; empty for navigations.
	Column string

	Kind FieldKind

	// Type is the declared Go type of the property.
	Type reflect.Type

	// MaxLength is the declared column limit for strings, 0 when unbounded.
	MaxLength int

	get func(any) any
}

// Get reads the property from entity.
func (f *Field) Get(entity any) any {
	return f.get(entity)
}

// Relation describes an eager-loadable navigation property.
type Relation struct {
	Field  *Field
	Target *Entity

	// ForeignKey lives on the owner for references and on the target for collections.
	ForeignKey string

	newSlice func() any
	each     func(slice any, fn func(item any))
	assign   func(owner any, related []any)
}

// NewSlice returns a pointer to an empty slice of the target type, ready for scanning.
func (r *Relation) NewSlice() any { return r.newSlice() }

// Each iterates over a slice produced by NewSlice.
func (r *Relation) Each(slice any, fn func(item any)) { r.each(slice, fn) }

// Assign stores related entities on owner. References take the first element or nil.
func (r *Relation) Assign(owner any, related []any) { r.assign(owner, related) }

// Entity is the descriptor of one entity type.
type Entity struct {
	Name  string
	Table string
	Key   *Field

	// SoftDeleteColumn is set for soft-deletable entities.
	SoftDeleteColumn string

	// VersionColumn is set for entities using optimistic locking.
	VersionColumn string

	goType    reflect.Type
	fields    []*Field
	byName    map[string]*Field
	byColumn  map[string]*Field
	relations map[string]*Relation
}

// Type returns the Go type instances of this entity have (usually a pointer).
func (e *Entity) Type() reflect.Type { return e.goType }

// Fields returns all properties in declaration order.
func (e *Entity) Fields() []*Field { return e.fields }

// Field looks up a property by name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// FieldByColumn looks up a scalar property by column.
func (e *Entity) FieldByColumn(column string) (*Field, bool) {
	f, ok := e.byColumn[column]
	return f, ok
}

// HasColumn reports whether column is mapped.
func (e *Entity) HasColumn(column string) bool {
	_, ok := e.byColumn[column]
	return ok
}

// Columns returns mapped columns in declaration order.
func (e *Entity) Columns() []string {
	cols := make([]string, 0, len(e.byColumn))
	for _, f := range e.fields {
		if f.Kind == KindScalar {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// Relation looks up a navigation by name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relations[name]
	return r, ok
}

// MaxLength returns the declared limit of a string property, 0 when unbounded or unknown.
func (e *Entity) MaxLength(field string) int {
	if f, ok := e.byName[field]; ok {
		return f.MaxLength
	}
	return 0
}

// Registry stores entity descriptors by name and Go type.
type Registry struct {
	byName map[string]*Entity
	byType map[reflect.Type]*Entity
}

// NewRegistry creates a registry holding entities.
func NewRegistry(entities ...*Entity) *Registry {
	r := &Registry{
		byName: make(map[string]*Entity),
		byType: make(map[reflect.Type]*Entity),
	}
	for _, e := range entities {
		r.Register(e)
	}
	return r
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(e *Entity) {
	r.byName[e.Name] = e
	r.byType[e.goType] = e
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Entity, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Lookup returns the descriptor for the dynamic type of entity.
func (r *Registry) Lookup(entity any) (*Entity, bool) {
	if entity == nil {
		return nil, false
	}
	e, ok := r.byType[reflect.TypeOf(entity)]
	return e, ok
}

// MaxLength returns the declared limit of a string column of a registered entity.
func (r *Registry) MaxLength(entityName, field string) int {
	if e, ok := r.byName[entityName]; ok {
		return e.MaxLength(field)
	}
	return 0
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []*Entity {
	list := make([]*Entity, 0, len(r.byName))
	for _, e := range r.byName {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
