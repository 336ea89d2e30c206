// Package domain provides core business logic interfaces and types.
package domain

import (
	"context"

	"outofschool/internal/core/entity"
	"outofschool/internal/domain/filter"
)

// --- Ordering & Paging ---

// SortDirection of one ordering key.
type SortDirection string

const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// Order is one (column, direction) ordering key.
type Order struct {
	Column    string
	Direction SortDirection
}

// Asc orders by column ascending.
func Asc(column string) Order { return Order{Column: column, Direction: Ascending} }

// Desc orders by column descending.
func Desc(column string) Order { return Order{Column: column, Direction: Descending} }

// QueryOptions is the general-purpose paging/sorting/filtering/including request.
// OrderBy is applied in input order: the first key is primary, each following
// key breaks ties of the previous ones. Skip and Take <= 0 mean "no skip" and
// "no limit".
type QueryOptions[E any] struct {
	Skip       int
	Take       int
	Includes   []string
	Where      filter.Predicate[E]
	OrderBy    []Order
	NoTracking bool
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Repository Interfaces ---

// Query is a lazy, composable read. Nothing touches storage until one of the
// terminal methods (List, First, Count, Any) runs.
type Query[E any] interface {
	// Where conjoins p with the current condition.
	Where(p filter.Predicate[E]) Query[E]

	// OrderBy appends ordering keys after the existing ones.
	OrderBy(orders ...Order) Query[E]

	Skip(n int) Query[E]
	Take(n int) Query[E]

	// Include eager-loads the named relations.
	Include(relations ...string) Query[E]

	// NoTracking excludes results from change tracking.
	NoTracking() Query[E]

	// ToSql renders the SELECT without executing it.
	ToSql() (string, []any, error)

	List(ctx context.Context) ([]E, error)

	// First returns the first row or the zero value when there is none.
	First(ctx context.Context) (E, error)

	// Count and Any ignore ordering and paging of the query.
	Count(ctx context.Context) (int64, error)
	Any(ctx context.Context) (bool, error)
}

// Repository is the generic data-access contract for entities keyed by K.
type Repository[K comparable, E entity.Keyed[K]] interface {
	// Create inserts one row and returns it as persisted, generated key included.
	Create(ctx context.Context, e E) (E, error)

	// CreateMany inserts all rows in one round trip. Inputs are returned unchanged.
	CreateMany(ctx context.Context, es []E) ([]E, error)

	// Update overwrites every mapped column of the row.
	Update(ctx context.Context, e E) (E, error)

	// Delete removes the row physically.
	Delete(ctx context.Context, e E) error

	// GetByID returns the zero value when no row matches.
	GetByID(ctx context.Context, key K) (E, error)

	// GetByIDWithDetails is GetByID with the named relations eager-loaded.
	GetByIDWithDetails(ctx context.Context, key K, includes ...string) (E, error)

	// ReadAndUpdateWith loads the row, lets apply change it and updates it.
	// A missing row fails with a concurrency error.
	ReadAndUpdateWith(ctx context.Context, key K, apply func(current E) E) (E, error)

	// GetAll reads the whole table; meant for small reference tables.
	GetAll(ctx context.Context) ([]E, error)

	GetByFilter(ctx context.Context, where filter.Predicate[E], includes ...string) ([]E, error)

	// GetByFilterNoTracking returns an untracked lazy query.
	GetByFilterNoTracking(where filter.Predicate[E], includes ...string) Query[E]

	// Get builds a lazy query from opts.
	Get(opts QueryOptions[E]) Query[E]

	// Count and Any run over the whole table when where is nil.
	Count(ctx context.Context, where filter.Predicate[E]) (int64, error)
	Any(ctx context.Context, where filter.Predicate[E]) (bool, error)

	// RunInTransaction runs fn in a transaction retried on transient faults.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Query starts an empty composable query.
	Query() Query[E]
}

// --- Hooks ---

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	AfterUpdate  HookEvent = "after_update"
	BeforeDelete HookEvent = "before_delete"
	AfterDelete  HookEvent = "after_delete"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event, stopping at the first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}
