package metadata

import (
	"fmt"
	"reflect"
)

// Builder assembles an Entity descriptor for entity type E (normally a pointer to a struct).
//
//	b := metadata.New[*Workshop]("Workshop", "workshops")
//	metadata.Key(b, "ID", "id", func(w *Workshop) id.ID { return w.ID })
//	metadata.Scalar(b, "Title", "title", func(w *Workshop) string { return w.Title }, metadata.MaxLength(60))
//	Descriptor = b.Build()
type Builder[E any] struct {
	e *Entity
}

// FieldOption customizes a scalar field.
type FieldOption func(*Field)

// MaxLength declares the column limit of a string field.
func MaxLength(n int) FieldOption {
	return func(f *Field) { f.MaxLength = n }
}

// New starts a descriptor for E stored in table.
func New[E any](name, table string) *Builder[E] {
	return &Builder[E]{e: &Entity{
		Name:      name,
		Table:     table,
		goType:    reflect.TypeFor[E](),
		byName:    make(map[string]*Field),
		byColumn:  make(map[string]*Field),
		relations: make(map[string]*Relation),
	}}
}

// SoftDelete marks column as the logical deletion flag. The column must be declared with Scalar.
func (b *Builder[E]) SoftDelete(column string) *Builder[E] {
	b.e.SoftDeleteColumn = column
	return b
}

// Versioned marks column as the optimistic locking counter. The column must be declared with Scalar.
func (b *Builder[E]) Versioned(column string) *Builder[E] {
	b.e.VersionColumn = column
	return b
}

// Build validates and returns the descriptor. It panics on declaration mistakes:
// descriptors are package-level values and a broken one is a programming error.
func (b *Builder[E]) Build() *Entity {
	e := b.e
	if e.Key == nil {
		panic(fmt.Sprintf("metadata: %s has no key", e.Name))
	}
	for _, col := range []string{e.SoftDeleteColumn, e.VersionColumn} {
		if col != "" && !e.HasColumn(col) {
			panic(fmt.Sprintf("metadata: %s marks undeclared column %q", e.Name, col))
		}
	}
	if missing := missingColumns(e.goType, e.Columns()); len(missing) > 0 {
		panic(fmt.Sprintf("metadata: %s declares columns without db tags: %v", e.Name, missing))
	}
	return e
}

func (b *Builder[E]) add(f *Field) {
	if _, dup := b.e.byName[f.Name]; dup {
		panic(fmt.Sprintf("metadata: %s declares %s twice", b.e.Name, f.Name))
	}
	b.e.fields = append(b.e.fields, f)
	b.e.byName[f.Name] = f
	if f.Column != "" {
		b.e.byColumn[f.Column] = f
	}
}

// Key declares the primary key property.
func Key[E any, K comparable](b *Builder[E], name, column string, get func(E) K) {
	f := scalarField(name, column, get)
	b.add(f)
	b.e.Key = f
}

// Scalar declares a mapped column property.
func Scalar[E, V any](b *Builder[E], name, column string, get func(E) V, opts ...FieldOption) {
	f := scalarField(name, column, get)
	for _, opt := range opts {
		opt(f)
	}
	b.add(f)
}

// BelongsTo declares a single-valued navigation whose foreign key column lives on E.
func BelongsTo[E, R any](b *Builder[E], name, fkColumn string, target *Entity, get func(E) R, set func(E, R)) {
	f := &Field{
		Name: name,
		Kind: KindReference,
		Type: reflect.TypeFor[R](),
		get:  func(x any) any { return normalize(get(x.(E))) },
	}
	b.add(f)
	b.e.relations[name] = &Relation{
		Field:      f,
		Target:     target,
		ForeignKey: fkColumn,
		newSlice:   func() any { return &[]R{} },
		each:       eachOf[R],
		assign: func(owner any, related []any) {
			var r R
			if len(related) > 0 {
				r = related[0].(R)
			}
			set(owner.(E), r)
		},
	}
}

// HasMany declares a collection navigation whose foreign key column lives on the target.
func HasMany[E, R any](b *Builder[E], name, fkColumn string, target *Entity, get func(E) []R, set func(E, []R)) {
	f := &Field{
		Name: name,
		Kind: KindCollection,
		Type: reflect.TypeFor[[]R](),
		get:  func(x any) any { return get(x.(E)) },
	}
	b.add(f)
	b.e.relations[name] = &Relation{
		Field:      f,
		Target:     target,
		ForeignKey: fkColumn,
		newSlice:   func() any { return &[]R{} },
		each:       eachOf[R],
		assign: func(owner any, related []any) {
			items := make([]R, 0, len(related))
			for _, r := range related {
				items = append(items, r.(R))
			}
			set(owner.(E), items)
		},
	}
}

func scalarField[E, V any](name, column string, get func(E) V) *Field {
	return &Field{
		Name:   name,
		Column: column,
		Kind:   KindScalar,
		Type:   reflect.TypeFor[V](),
		get:    func(x any) any { return normalize(get(x.(E))) },
	}
}

func eachOf[R any](slice any, fn func(item any)) {
	for _, item := range *slice.(*[]R) {
		fn(item)
	}
}

// normalize turns typed nil pointers into an untyped nil so callers can compare with nil.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	return v
}
