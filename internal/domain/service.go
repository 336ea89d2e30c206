package domain

import (
	"context"
	"fmt"
	"reflect"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/entity"
	"outofschool/pkg/logger"
)

// CatalogEntity is what CatalogService manages: a validatable, soft-deletable record.
type CatalogEntity[K comparable] interface {
	entity.SoftDeletable[K]
	entity.Validatable
}

// ChangesRecorder stages changes log rows for the tracked properties of an
// entity modified since it was read. Implemented by changeslog.Service.
type ChangesRecorder interface {
	AddEntityChanges(ctx context.Context, entity any, userID string) (int, error)
}

// CatalogService provides business logic for catalog entities.
type CatalogService[K comparable, E CatalogEntity[K]] struct {
	repo    Repository[K, E]
	changes ChangesRecorder
	hooks   *HookRegistry[E]

	// entityName for error messages
	entityName string
}

// CatalogServiceConfig configures the catalog service.
type CatalogServiceConfig[K comparable, E CatalogEntity[K]] struct {
	Repo Repository[K, E]

	// Changes is optional; without it updates are not audited.
	Changes    ChangesRecorder
	EntityName string
}

// NewCatalogService creates a new catalog service.
func NewCatalogService[K comparable, E CatalogEntity[K]](cfg CatalogServiceConfig[K, E]) *CatalogService[K, E] {
	return &CatalogService[K, E]{
		repo:       cfg.Repo,
		changes:    cfg.Changes,
		hooks:      NewHookRegistry[E](),
		entityName: cfg.EntityName,
	}
}

// Hooks returns the hook registry for external registration.
func (s *CatalogService[K, E]) Hooks() *HookRegistry[E] {
	return s.hooks
}

func (s *CatalogService[K, E]) normalizeValidationErr(err error) error {
	if err == nil {
		return nil
	}
	// If entity already returns structured AppError, keep it.
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewValidation(err.Error())
}

func (s *CatalogService[K, E]) normalizeGetErr(err error, key K) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", s.entityName).WithDetail("id", key)
}

// Create validates and inserts e.
func (s *CatalogService[K, E]) Create(ctx context.Context, e E) (E, error) {
	if err := e.Validate(ctx); err != nil {
		return e, s.normalizeValidationErr(err)
	}

	if err := s.hooks.Run(ctx, BeforeCreate, e); err != nil {
		return e, err
	}

	created, err := s.repo.Create(ctx, e)
	if err != nil {
		return e, fmt.Errorf("create %s: %w", s.entityName, err)
	}

	// Entity is already stored; a failing after-hook is only logged.
	if err := s.hooks.Run(ctx, AfterCreate, created); err != nil {
		logger.Warn(ctx, "after-create hook failed", "entity", s.entityName, "error", err)
	}

	return created, nil
}

// GetByID returns the entity or a NOT_FOUND error.
func (s *CatalogService[K, E]) GetByID(ctx context.Context, key K) (E, error) {
	e, err := s.repo.GetByID(ctx, key)
	if err != nil {
		return e, s.normalizeGetErr(err, key)
	}
	if isNil(e) {
		return e, apperror.NewNotFound(s.entityName, key)
	}
	return e, nil
}

// Update validates e, logs its tracked changes and writes it, atomically.
func (s *CatalogService[K, E]) Update(ctx context.Context, e E) (E, error) {
	if err := e.Validate(ctx); err != nil {
		return e, s.normalizeValidationErr(err)
	}

	if err := s.hooks.Run(ctx, BeforeUpdate, e); err != nil {
		return e, err
	}

	if err := s.save(ctx, e); err != nil {
		return e, fmt.Errorf("update %s: %w", s.entityName, err)
	}

	if err := s.hooks.Run(ctx, AfterUpdate, e); err != nil {
		logger.Warn(ctx, "after-update hook failed", "entity", s.entityName, "error", err)
	}

	return e, nil
}

// Delete marks the entity deleted. The change is audited like any update.
func (s *CatalogService[K, E]) Delete(ctx context.Context, key K) error {
	e, err := s.GetByID(ctx, key)
	if err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, BeforeDelete, e); err != nil {
		return err
	}

	e.MarkDeleted()
	if err := s.save(ctx, e); err != nil {
		return fmt.Errorf("delete %s: %w", s.entityName, err)
	}

	if err := s.hooks.Run(ctx, AfterDelete, e); err != nil {
		logger.Warn(ctx, "after-delete hook failed", "entity", s.entityName, "error", err)
	}

	return nil
}

// List returns one page of entities together with the total match count.
func (s *CatalogService[K, E]) List(ctx context.Context, opts QueryOptions[E]) (ListResult[E], error) {
	total, err := s.repo.Count(ctx, opts.Where)
	if err != nil {
		return ListResult[E]{}, err
	}

	items, err := s.repo.Get(opts).List(ctx)
	if err != nil {
		return ListResult[E]{}, err
	}

	return ListResult[E]{
		Items:      items,
		TotalCount: total,
		Limit:      opts.Take,
		Offset:     opts.Skip,
	}, nil
}

// Exists reports whether a visible entity with key exists.
func (s *CatalogService[K, E]) Exists(ctx context.Context, key K) (bool, error) {
	e, err := s.repo.GetByID(ctx, key)
	if err != nil {
		return false, s.normalizeGetErr(err, key)
	}
	return !isNil(e), nil
}

// save records changes (when configured) and updates e in one transaction.
// The recorder runs inside the transaction so a retried attempt records again.
func (s *CatalogService[K, E]) save(ctx context.Context, e E) error {
	return s.repo.RunInTransaction(ctx, func(ctx context.Context) error {
		if s.changes != nil {
			if _, err := s.changes.AddEntityChanges(ctx, e, ""); err != nil {
				return err
			}
		}
		_, err := s.repo.Update(ctx, e)
		return err
	})
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
