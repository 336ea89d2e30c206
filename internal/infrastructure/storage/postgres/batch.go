package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// NewBatchQuery renders a squirrel statement into a batch query.
func NewBatchQuery(b squirrel.Sqlizer) (BatchQuery, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return BatchQuery{}, err
	}
	return BatchQuery{SQL: sql, Args: args}, nil
}

// ExecuteBatch executes multiple queries in a single round-trip.
// Results are drained in queue order; the first failure is returned with its position.
func ExecuteBatch(ctx context.Context, q Querier, queries []BatchQuery) error {
	if len(queries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, bq := range queries {
		batch.Queue(bq.SQL, bq.Args...)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch query %d failed: %w", i, err)
		}
	}

	return results.Close()
}
