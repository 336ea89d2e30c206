package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"outofschool/internal/core/apperror"
	"outofschool/internal/domain/filter"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/metadata"
)

// loadIncludes eager-loads every requested relation with one IN query per relation.
func (q Query[K, E]) loadIncludes(ctx context.Context, items []E, track bool) error {
	if len(items) == 0 || len(q.includes) == 0 {
		return nil
	}

	owners := make([]any, len(items))
	for i, item := range items {
		owners[i] = item
	}

	for _, name := range q.includes {
		rel, _ := q.repo.desc.Relation(name)
		if err := loadRelation(ctx, q.repo.session, q.repo.desc, rel, owners, track); err != nil {
			return err
		}
	}
	return nil
}

func loadRelation(ctx context.Context, s *postgres.Session, owner *metadata.Entity, rel *metadata.Relation, owners []any, track bool) error {
	var related []any

	switch rel.Field.Kind {
	case metadata.KindReference:
		fk, ok := owner.FieldByColumn(rel.ForeignKey)
		if !ok {
			return apperror.NewInternal(fmt.Errorf("%s.%s: foreign key %s is not mapped", owner.Name, rel.Field.Name, rel.ForeignKey))
		}

		var err error
		related, err = fetchRelated(ctx, s, rel, rel.Target.Key.Column, distinctKeys(owners, fk))
		if err != nil {
			return err
		}

		byKey := make(map[any]any, len(related))
		for _, item := range related {
			byKey[deref(rel.Target.Key.Get(item))] = item
		}
		for _, o := range owners {
			if item, ok := byKey[deref(fk.Get(o))]; ok {
				rel.Assign(o, []any{item})
			} else {
				rel.Assign(o, nil)
			}
		}

	case metadata.KindCollection:
		fk, ok := rel.Target.FieldByColumn(rel.ForeignKey)
		if !ok {
			return apperror.NewInternal(fmt.Errorf("%s.%s: foreign key %s is not mapped", rel.Target.Name, rel.Field.Name, rel.ForeignKey))
		}

		var err error
		related, err = fetchRelated(ctx, s, rel, rel.ForeignKey, distinctKeys(owners, owner.Key))
		if err != nil {
			return err
		}

		groups := make(map[any][]any)
		for _, item := range related {
			k := deref(fk.Get(item))
			groups[k] = append(groups[k], item)
		}
		for _, o := range owners {
			rel.Assign(o, groups[deref(owner.Key.Get(o))])
		}

	default:
		return apperror.NewValidation("not a relation").WithDetail("field", rel.Field.Name)
	}

	if track {
		for _, item := range related {
			s.Tracker().Attach(item)
		}
	}
	return nil
}

// fetchRelated selects target rows whose column is one of keys.
func fetchRelated(ctx context.Context, s *postgres.Session, rel *metadata.Relation, column string, keys []any) ([]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	target := rel.Target
	sql, args, err := psql.Select(target.Columns()...).
		From(target.Table).
		Where(squirrel.Eq{filter.Qualify(target.Table, column): keys}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build include query: %w", err)
	}

	slice := rel.NewSlice()
	if err := pgxscan.Select(ctx, s.Querier(ctx), slice, sql, args...); err != nil {
		return nil, postgres.TranslateError(target.Name, "select", err)
	}

	var out []any
	rel.Each(slice, func(item any) { out = append(out, item) })
	return out, nil
}

func distinctKeys(owners []any, f *metadata.Field) []any {
	seen := make(map[any]struct{}, len(owners))
	keys := make([]any, 0, len(owners))
	for _, o := range owners {
		k := deref(f.Get(o))
		if k == nil {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// deref unwraps pointer keys so *int64 and int64 index the same map slot.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}
