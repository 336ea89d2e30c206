package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"outofschool/internal/infrastructure/storage/postgres"
)

// fakeDB hands out a single fakeTx per BeginTx and records every statement.
type fakeDB struct {
	postgres.Querier
	tag     string
	rowErr  error
	version int
	bump    bool // hand out version, version+1, ... on successive updates
	txs     []*fakeTx
}

// Query answers every read outside a transaction with no rows.
func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &emptyRows{}, nil
}

func (d *fakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{db: d}
	d.txs = append(d.txs, tx)
	return tx, nil
}

type fakeTx struct {
	pgx.Tx
	db         *fakeDB
	sqls       []string
	args       [][]any
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.sqls = append(t.sqls, sql)
	t.args = append(t.args, args)
	if len(t.sqls) == 1 {
		return pgconn.NewCommandTag("SET"), nil
	}
	return pgconn.NewCommandTag(t.db.tag), nil
}

func (t *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.sqls = append(t.sqls, sql)
	t.args = append(t.args, args)
	row := fakeRow{err: t.db.rowErr, version: t.db.version}
	if t.db.bump {
		t.db.version++
	}
	return row
}

func (t *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	for _, q := range b.QueuedQueries {
		t.sqls = append(t.sqls, q.SQL)
		t.args = append(t.args, q.Arguments)
	}
	return fakeBatchResults{}
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeRow struct {
	err     error
	version int
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int) = r.version
	return nil
}

type fakeBatchResults struct {
	pgx.BatchResults
}

func (fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (fakeBatchResults) Close() error { return nil }

type emptyRows struct {
	pgx.Rows
}

func (*emptyRows) Next() bool                                   { return false }
func (*emptyRows) Err() error                                   { return nil }
func (*emptyRows) Close()                                       {}
func (*emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (*emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
