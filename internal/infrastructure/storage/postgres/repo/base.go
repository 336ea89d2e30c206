// Package repo provides the generic PostgreSQL repositories: a base repository
// with a lazy query composer and a soft-delete decorator over it.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"outofschool/internal/core/apperror"
	appctx "outofschool/internal/core/context"
	"outofschool/internal/core/entity"
	"outofschool/internal/domain"
	"outofschool/internal/domain/filter"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/metadata"
)

// psql is the statement builder with PostgreSQL placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// BaseRepo implements domain.Repository for entities described by a metadata
// descriptor. E must be a pointer to the described struct.
//
// Every write goes through Session.SaveChanges, so writes staged in the session
// (audit records) are persisted atomically with it.
type BaseRepo[K comparable, E entity.Keyed[K]] struct {
	session *postgres.Session
	desc    *metadata.Entity
	now     func() time.Time
}

// NewBaseRepo creates a repository bound to session.
func NewBaseRepo[K comparable, E entity.Keyed[K]](session *postgres.Session, desc *metadata.Entity) *BaseRepo[K, E] {
	return &BaseRepo[K, E]{session: session, desc: desc, now: time.Now}
}

// Descriptor returns the entity metadata.
func (r *BaseRepo[K, E]) Descriptor() *metadata.Entity { return r.desc }

// Session returns the unit of work the repository writes through.
func (r *BaseRepo[K, E]) Session() *postgres.Session { return r.session }

// Create inserts e and scans the stored row back into it, so a key generated
// by the database becomes visible. A zero key is left to the column default.
func (r *BaseRepo[K, E]) Create(ctx context.Context, e E) (E, error) {
	if b, ok := any(e).(entity.BusinessEntity); ok {
		b.StampCreated(r.now().UTC(), appctx.GetUserID(ctx))
	}

	var zero K
	q := r.insert(e, e.GetID() == zero).
		Suffix("RETURNING " + strings.Join(r.desc.Columns(), ", "))

	sql, args, err := q.ToSql()
	if err != nil {
		return e, fmt.Errorf("build insert: %w", err)
	}

	err = r.session.SaveChanges(ctx, func(ctx context.Context) error {
		if err := pgxscan.Get(ctx, r.session.Querier(ctx), e, sql, args...); err != nil {
			return postgres.TranslateError(r.desc.Name, "insert", err)
		}
		return nil
	})
	if err != nil {
		return e, err
	}

	r.session.Accept(ctx, e)
	return e, nil
}

// CreateMany inserts es with one batch round trip. Entities are not re-read.
func (r *BaseRepo[K, E]) CreateMany(ctx context.Context, es []E) ([]E, error) {
	var zero K
	queries := make([]postgres.BatchQuery, 0, len(es))
	for _, e := range es {
		if b, ok := any(e).(entity.BusinessEntity); ok {
			b.StampCreated(r.now().UTC(), appctx.GetUserID(ctx))
		}
		bq, err := postgres.NewBatchQuery(r.insert(e, e.GetID() == zero))
		if err != nil {
			return es, fmt.Errorf("build insert: %w", err)
		}
		queries = append(queries, bq)
	}

	err := r.session.SaveChanges(ctx, func(ctx context.Context) error {
		if err := postgres.ExecuteBatch(ctx, r.session.Querier(ctx), queries); err != nil {
			return postgres.TranslateError(r.desc.Name, "insert", err)
		}
		return nil
	})
	if err != nil {
		return es, err
	}

	for _, e := range es {
		r.session.Accept(ctx, e)
	}
	return es, nil
}

// Update overwrites every mapped column of the row keyed by e. The deletion
// flag is only ever OR-ed in, so a deleted row stays deleted.
//
// Entities with a version column are updated only when the stored version
// matches. The incremented version is set on e right away, so a second Update
// in the same transaction sends the current one, and it is restored if the
// transaction rolls back.
func (r *BaseRepo[K, E]) Update(ctx context.Context, e E) (E, error) {
	key := r.desc.Key.Get(e)
	vc := r.desc.VersionColumn

	if err := r.stampModified(ctx, e, key); err != nil {
		return e, err
	}

	q := psql.Update(r.desc.Table)
	for _, f := range r.desc.Fields() {
		if f.Kind != metadata.KindScalar || f == r.desc.Key || f.Column == vc {
			continue
		}
		if f.Column == r.desc.SoftDeleteColumn {
			q = q.Set(f.Column, squirrel.Expr(f.Column+" OR ?", f.Get(e)))
			continue
		}
		q = q.Set(f.Column, f.Get(e))
	}
	q = q.Where(squirrel.Eq{r.desc.Key.Column: key})

	var versioned entity.Versioned
	if vc != "" {
		v, ok := any(e).(entity.Versioned)
		if !ok {
			return e, apperror.NewInternal(fmt.Errorf("%s has a version column but no version accessors", r.desc.Name))
		}
		versioned = v
		q = q.Set(vc, squirrel.Expr(vc+" + 1")).
			Where(squirrel.Eq{vc: v.GetVersion()}).
			Suffix("RETURNING " + vc)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return e, fmt.Errorf("build update: %w", err)
	}

	err = r.session.SaveChanges(ctx, func(ctx context.Context) error {
		querier := r.session.Querier(ctx)

		if versioned != nil {
			var next int
			if err := querier.QueryRow(ctx, sql, args...).Scan(&next); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperror.NewConcurrentModification(r.desc.Name, key)
				}
				return postgres.TranslateError(r.desc.Name, "update", err)
			}
			prev := versioned.GetVersion()
			versioned.SetVersion(next)
			r.session.TxManager().AfterRollback(ctx, func() { versioned.SetVersion(prev) })
			return nil
		}

		tag, err := querier.Exec(ctx, sql, args...)
		if err != nil {
			return postgres.TranslateError(r.desc.Name, "update", err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewConcurrentModification(r.desc.Name, key)
		}
		return nil
	})
	if err != nil {
		return e, err
	}

	r.session.Accept(ctx, e)
	return e, nil
}

// Delete physically removes the row keyed by e. System-protected entities are refused.
func (r *BaseRepo[K, E]) Delete(ctx context.Context, e E) error {
	key := r.desc.Key.Get(e)
	if b, ok := any(e).(entity.BusinessEntity); ok && b.IsSystemProtected() {
		return apperror.NewProtected(r.desc.Name, key)
	}

	sql, args, err := psql.Delete(r.desc.Table).
		Where(squirrel.Eq{r.desc.Key.Column: key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	err = r.session.SaveChanges(ctx, func(ctx context.Context) error {
		tag, err := r.session.Querier(ctx).Exec(ctx, sql, args...)
		if err != nil {
			return postgres.TranslateError(r.desc.Name, "delete", err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewConcurrentModification(r.desc.Name, key)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.session.Forget(ctx, e)
	return nil
}

// GetByID returns the row with the given key, or the zero value when there is none.
func (r *BaseRepo[K, E]) GetByID(ctx context.Context, key K) (E, error) {
	return r.Query().Where(r.byKey(key)).First(ctx)
}

// GetByIDWithDetails is GetByID with the named relations eager-loaded.
func (r *BaseRepo[K, E]) GetByIDWithDetails(ctx context.Context, key K, includes ...string) (E, error) {
	return r.Query().Where(r.byKey(key)).Include(includes...).First(ctx)
}

// ReadAndUpdateWith loads the row keyed by key, applies apply and updates it.
// A missing row is a concurrency error: it was removed since the caller saw it.
func (r *BaseRepo[K, E]) ReadAndUpdateWith(ctx context.Context, key K, apply func(E) E) (E, error) {
	return r.readAndUpdate(ctx, r.GetByID, key, apply)
}

func (r *BaseRepo[K, E]) readAndUpdate(ctx context.Context, load func(context.Context, K) (E, error), key K, apply func(E) E) (E, error) {
	current, err := load(ctx, key)
	if err != nil {
		return current, err
	}
	if isZero(current) {
		return current, apperror.NewConcurrentModification(r.desc.Name, key)
	}
	return r.Update(ctx, apply(current))
}

func (r *BaseRepo[K, E]) GetAll(ctx context.Context) ([]E, error) {
	return r.Query().List(ctx)
}

func (r *BaseRepo[K, E]) GetByFilter(ctx context.Context, where filter.Predicate[E], includes ...string) ([]E, error) {
	return r.Query().Where(where).Include(includes...).List(ctx)
}

func (r *BaseRepo[K, E]) GetByFilterNoTracking(where filter.Predicate[E], includes ...string) domain.Query[E] {
	return r.Query().Where(where).Include(includes...).NoTracking()
}

// Get builds a query from opts. Ordering keys apply in the given order.
func (r *BaseRepo[K, E]) Get(opts domain.QueryOptions[E]) domain.Query[E] {
	q := r.Query().
		Where(opts.Where).
		OrderBy(opts.OrderBy...).
		Skip(opts.Skip).
		Take(opts.Take).
		Include(opts.Includes...)
	if opts.NoTracking {
		q = q.NoTracking()
	}
	return q
}

func (r *BaseRepo[K, E]) Count(ctx context.Context, where filter.Predicate[E]) (int64, error) {
	return r.Query().Where(where).Count(ctx)
}

func (r *BaseRepo[K, E]) Any(ctx context.Context, where filter.Predicate[E]) (bool, error) {
	return r.Query().Where(where).Any(ctx)
}

// RunInTransaction runs fn in a transaction retried on transient faults.
func (r *BaseRepo[K, E]) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.session.TxManager().RunInTransaction(ctx, fn)
}

// Query starts an empty query over the table.
func (r *BaseRepo[K, E]) Query() domain.Query[E] {
	return Query[K, E]{repo: r}
}

// stampModified stamps business entities before an update. The first save of a
// deleted entity also stamps the deletion, and protected entities cannot be deleted.
func (r *BaseRepo[K, E]) stampModified(ctx context.Context, e E, key any) error {
	b, ok := any(e).(entity.BusinessEntity)
	if !ok {
		return nil
	}
	now, user := r.now().UTC(), appctx.GetUserID(ctx)

	if d, ok := any(e).(interface{ IsDeleted() bool }); ok && d.IsDeleted() {
		if b.IsSystemProtected() {
			return apperror.NewProtected(r.desc.Name, key)
		}
		if !b.DeleteStamped() {
			b.StampDeleted(now, user)
		}
	}
	b.StampModified(now, user)
	return nil
}

func (r *BaseRepo[K, E]) byKey(key K) filter.Predicate[E] {
	return filter.Eq[E](r.desc.Key.Column, key)
}

func (r *BaseRepo[K, E]) insert(e E, omitKey bool) squirrel.InsertBuilder {
	cols := make([]string, 0, len(r.desc.Fields()))
	vals := make([]any, 0, len(r.desc.Fields()))
	for _, f := range r.desc.Fields() {
		if f.Kind != metadata.KindScalar || (omitKey && f == r.desc.Key) {
			continue
		}
		cols = append(cols, f.Column)
		vals = append(vals, f.Get(e))
	}
	return psql.Insert(r.desc.Table).Columns(cols...).Values(vals...)
}

// isZero reports whether e is the zero entity (a nil pointer).
func isZero[E any](e E) bool {
	var zero E
	return any(e) == any(zero)
}
