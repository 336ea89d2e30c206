package repo

import (
	"context"
	"fmt"

	"outofschool/internal/core/entity"
	"outofschool/internal/domain"
	"outofschool/internal/domain/filter"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/metadata"
)

// SoftDeleteRepo decorates BaseRepo so that every read sees only rows whose
// deletion flag is false. Writes are inherited untouched: soft deletion is the
// caller marking the entity and calling Update.
type SoftDeleteRepo[K comparable, E entity.SoftDeletable[K]] struct {
	*BaseRepo[K, E]
	notDeleted filter.Predicate[E]
}

// NewSoftDeleteRepo creates a soft-delete repository. It panics when desc
// declares no soft-delete column.
func NewSoftDeleteRepo[K comparable, E entity.SoftDeletable[K]](session *postgres.Session, desc *metadata.Entity) *SoftDeleteRepo[K, E] {
	if desc.SoftDeleteColumn == "" {
		panic(fmt.Sprintf("repo: %s is not soft-deletable", desc.Name))
	}
	return &SoftDeleteRepo[K, E]{
		BaseRepo:   NewBaseRepo[K, E](session, desc),
		notDeleted: filter.IsFalse[E](desc.SoftDeleteColumn),
	}
}

// visible conjoins the "not deleted" condition onto p.
func (r *SoftDeleteRepo[K, E]) visible(p filter.Predicate[E]) filter.Predicate[E] {
	return filter.Rewrite(p, r.notDeleted)
}

// GetByID returns the zero value for missing and soft-deleted rows alike.
func (r *SoftDeleteRepo[K, E]) GetByID(ctx context.Context, key K) (E, error) {
	return r.BaseRepo.Query().Where(r.visible(r.byKey(key))).First(ctx)
}

func (r *SoftDeleteRepo[K, E]) GetByIDWithDetails(ctx context.Context, key K, includes ...string) (E, error) {
	return r.BaseRepo.Query().Where(r.visible(r.byKey(key))).Include(includes...).First(ctx)
}

// ReadAndUpdateWith treats a soft-deleted row like a missing one.
func (r *SoftDeleteRepo[K, E]) ReadAndUpdateWith(ctx context.Context, key K, apply func(E) E) (E, error) {
	return r.readAndUpdate(ctx, r.GetByID, key, apply)
}

func (r *SoftDeleteRepo[K, E]) GetAll(ctx context.Context) ([]E, error) {
	return r.BaseRepo.GetByFilter(ctx, r.notDeleted)
}

func (r *SoftDeleteRepo[K, E]) GetByFilter(ctx context.Context, where filter.Predicate[E], includes ...string) ([]E, error) {
	return r.BaseRepo.GetByFilter(ctx, r.visible(where), includes...)
}

func (r *SoftDeleteRepo[K, E]) GetByFilterNoTracking(where filter.Predicate[E], includes ...string) domain.Query[E] {
	return r.BaseRepo.GetByFilterNoTracking(r.visible(where), includes...)
}

func (r *SoftDeleteRepo[K, E]) Get(opts domain.QueryOptions[E]) domain.Query[E] {
	opts.Where = r.visible(opts.Where)
	return r.BaseRepo.Get(opts)
}

func (r *SoftDeleteRepo[K, E]) Count(ctx context.Context, where filter.Predicate[E]) (int64, error) {
	return r.BaseRepo.Count(ctx, r.visible(where))
}

func (r *SoftDeleteRepo[K, E]) Any(ctx context.Context, where filter.Predicate[E]) (bool, error) {
	return r.BaseRepo.Any(ctx, r.visible(where))
}

// Query starts a query that already excludes deleted rows.
func (r *SoftDeleteRepo[K, E]) Query() domain.Query[E] {
	return r.BaseRepo.Query().Where(r.notDeleted)
}
