package filter

import (
	"fmt"

	"github.com/Masterminds/squirrel"
)

// Predicate is a boolean condition over rows of entity E. It is rendered lazily
// against the table reference the query binds it to, so it always stays
// translatable to SQL and is never evaluated in memory.
type Predicate[E any] func(ref string) squirrel.Sqlizer

// Rewrite conjoins extra onto original. A nil original yields extra unchanged.
// Both sides are rendered against the same table reference.
func Rewrite[E any](original, extra Predicate[E]) Predicate[E] {
	if original == nil {
		return extra
	}
	if extra == nil {
		return original
	}
	return func(ref string) squirrel.Sqlizer {
		return squirrel.And{original(ref), extra(ref)}
	}
}

// And conjoins all non-nil predicates. It returns nil when none are given.
func And[E any](preds ...Predicate[E]) Predicate[E] {
	var out Predicate[E]
	for _, p := range preds {
		out = Rewrite(out, p)
	}
	return out
}

// Or disjoins all non-nil predicates. It returns nil when none are given.
func Or[E any](preds ...Predicate[E]) Predicate[E] {
	var parts []Predicate[E]
	for _, p := range preds {
		if p != nil {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return func(ref string) squirrel.Sqlizer {
		or := make(squirrel.Or, 0, len(parts))
		for _, p := range parts {
			or = append(or, p(ref))
		}
		return or
	}
}

// Not negates p.
func Not[E any](p Predicate[E]) Predicate[E] {
	return func(ref string) squirrel.Sqlizer {
		return notExpr{p(ref)}
	}
}

// Raw wraps an already-built condition. It ignores the table reference, so
// columns inside it should not be ambiguous.
func Raw[E any](cond squirrel.Sqlizer) Predicate[E] {
	return func(string) squirrel.Sqlizer { return cond }
}

func Eq[E any](column string, value any) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.Eq{Qualify(ref, column): value} }
}

func NotEq[E any](column string, value any) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.NotEq{Qualify(ref, column): value} }
}

// In matches any of values; squirrel renders a slice value as IN (...).
func In[E any](column string, values any) Predicate[E] {
	return Eq[E](column, values)
}

func Gt[E any](column string, value any) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.Gt{Qualify(ref, column): value} }
}

func GtOrEq[E any](column string, value any) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.GtOrEq{Qualify(ref, column): value} }
}

func Lt[E any](column string, value any) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.Lt{Qualify(ref, column): value} }
}

func LtOrEq[E any](column string, value any) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.LtOrEq{Qualify(ref, column): value} }
}

func ILike[E any](column string, pattern string) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.ILike{Qualify(ref, column): pattern} }
}

func NotILike[E any](column string, pattern string) Predicate[E] {
	return func(ref string) squirrel.Sqlizer { return squirrel.NotILike{Qualify(ref, column): pattern} }
}

func IsNull[E any](column string) Predicate[E] {
	return Eq[E](column, nil)
}

func IsNotNull[E any](column string) Predicate[E] {
	return NotEq[E](column, nil)
}

// IsFalse matches rows where the boolean column is false; used for the "not deleted" overlay.
func IsFalse[E any](column string) Predicate[E] {
	return Eq[E](column, false)
}

// Qualify prefixes column with the table reference.
func Qualify(ref, column string) string {
	if ref == "" {
		return column
	}
	return ref + "." + column
}

// Render renders p against ref. A nil predicate renders as nil.
func Render[E any](p Predicate[E], ref string) squirrel.Sqlizer {
	if p == nil {
		return nil
	}
	return p(ref)
}

type notExpr struct {
	inner squirrel.Sqlizer
}

func (n notExpr) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("NOT (%s)", sql), args, nil
}
