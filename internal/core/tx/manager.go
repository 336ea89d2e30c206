// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back and the error returned.
	// If fn succeeds, the transaction is committed.
	//
	// The whole cycle may be retried on transient storage faults, so fn must not
	// have side effects outside the storage writes it performs.
	// Nested calls reuse the existing transaction from context and are not retried.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Run executes fn inside m and returns its result. The result of the last
// (committed) attempt wins when the transaction is retried.
func Run[T any](ctx context.Context, m Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := m.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := fn(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
