package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB begins fakeTx transactions and records them.
type fakeDB struct {
	Querier
	txs         []*fakeTx
	begun       []pgx.TxOptions
	beginErr    error
	rollbackErr error
}

func (d *fakeDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	d.begun = append(d.begun, opts)
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	tx := &fakeTx{rollbackErr: d.rollbackErr}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) commits() int {
	n := 0
	for _, tx := range d.txs {
		n += tx.committed
	}
	return n
}

// fakeTx overrides the pgx.Tx methods the manager and session use.
type fakeTx struct {
	pgx.Tx
	committed   int
	rolledBack  int
	rollbackErr error
	execs       []string
	batches     [][]string
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.NewCommandTag("SET"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack++
	return t.rollbackErr
}

func (t *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	var sqls []string
	for _, q := range b.QueuedQueries {
		sqls = append(sqls, q.SQL)
	}
	t.batches = append(t.batches, sqls)
	return &fakeBatchResults{}
}

type fakeBatchResults struct {
	pgx.BatchResults
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Close() error { return nil }
