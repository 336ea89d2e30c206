package repo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/entity"
	"outofschool/internal/domain"
	"outofschool/internal/domain/filter"
	"outofschool/internal/infrastructure/storage/postgres"
)

// Query is a lazy, immutable read over one table. Every builder method returns
// a modified copy; SQL is rendered and executed only by List, First, Count and Any.
type Query[K comparable, E entity.Keyed[K]] struct {
	repo       *BaseRepo[K, E]
	where      filter.Predicate[E]
	orders     []domain.Order
	skip       int
	take       int
	includes   []string
	noTracking bool
	err        error
}

// Where conjoins p with the current condition. A nil p is ignored.
func (q Query[K, E]) Where(p filter.Predicate[E]) domain.Query[E] {
	q.where = filter.Rewrite(q.where, p)
	return q
}

// OrderBy appends ordering keys; the first key overall is the primary sort.
// Columns must be mapped by the entity.
func (q Query[K, E]) OrderBy(orders ...domain.Order) domain.Query[E] {
	for _, o := range orders {
		if !q.repo.desc.HasColumn(o.Column) {
			q.err = errors.Join(q.err, apperror.NewValidation("invalid order column").
				WithDetail("entity", q.repo.desc.Name).
				WithDetail("column", o.Column))
		}
		if o.Direction != domain.Ascending && o.Direction != domain.Descending {
			q.err = errors.Join(q.err, apperror.NewValidation("invalid sort direction").
				WithDetail("direction", o.Direction))
		}
	}
	q.orders = slices.Concat(q.orders, orders)
	return q
}

// Skip sets the number of rows to skip; n <= 0 means no skip.
func (q Query[K, E]) Skip(n int) domain.Query[E] {
	q.skip = max(n, 0)
	return q
}

// Take sets the maximum number of rows; n <= 0 means no limit.
func (q Query[K, E]) Take(n int) domain.Query[E] {
	q.take = max(n, 0)
	return q
}

// Include eager-loads the named relations of the entity.
func (q Query[K, E]) Include(relations ...string) domain.Query[E] {
	for _, name := range relations {
		if _, ok := q.repo.desc.Relation(name); !ok {
			q.err = errors.Join(q.err, apperror.NewValidation("unknown relation").
				WithDetail("entity", q.repo.desc.Name).
				WithDetail("relation", name))
		}
	}
	q.includes = slices.Concat(q.includes, relations)
	return q
}

// NoTracking keeps results and included relations out of the change tracker.
func (q Query[K, E]) NoTracking() domain.Query[E] {
	q.noTracking = true
	return q
}

// ToSql renders the SELECT statement.
func (q Query[K, E]) ToSql() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}

	desc := q.repo.desc
	b := q.filtered(psql.Select(desc.Columns()...).From(desc.Table))
	for _, o := range q.orders {
		b = b.OrderBy(o.Column + " " + string(o.Direction))
	}
	if q.take > 0 {
		b = b.Limit(uint64(q.take))
	}
	if q.skip > 0 {
		b = b.Offset(uint64(q.skip))
	}
	return b.ToSql()
}

// List executes the query.
func (q Query[K, E]) List(ctx context.Context) ([]E, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, q.buildErr(err)
	}

	var items []E
	if err := pgxscan.Select(ctx, q.repo.session.Querier(ctx), &items, sql, args...); err != nil {
		return nil, postgres.TranslateError(q.repo.desc.Name, "select", err)
	}

	track := !q.noTracking
	if err := q.loadIncludes(ctx, items, track); err != nil {
		return nil, err
	}
	if track {
		tracker := q.repo.session.Tracker()
		for _, item := range items {
			tracker.Attach(item)
		}
	}
	return items, nil
}

// First returns the first row, or the zero value when the query is empty.
func (q Query[K, E]) First(ctx context.Context) (E, error) {
	q.take = 1
	items, err := q.List(ctx)
	if err != nil || len(items) == 0 {
		var zero E
		return zero, err
	}
	return items[0], nil
}

// Count counts rows matching the condition; ordering and paging are ignored.
func (q Query[K, E]) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}

	sql, args, err := q.filtered(psql.Select("COUNT(*)").From(q.repo.desc.Table)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var n int64
	if err := q.repo.session.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, postgres.TranslateError(q.repo.desc.Name, "count", err)
	}
	return n, nil
}

// Any reports whether at least one row matches the condition.
func (q Query[K, E]) Any(ctx context.Context) (bool, error) {
	if q.err != nil {
		return false, q.err
	}

	sql, args, err := q.filtered(psql.Select("1").From(q.repo.desc.Table)).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = q.repo.session.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, postgres.TranslateError(q.repo.desc.Name, "exists", err)
	}
	return true, nil
}

func (q Query[K, E]) filtered(b squirrel.SelectBuilder) squirrel.SelectBuilder {
	if cond := filter.Render(q.where, q.repo.desc.Table); cond != nil {
		b = b.Where(cond)
	}
	return b
}

func (q Query[K, E]) buildErr(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return fmt.Errorf("build query: %w", err)
}
