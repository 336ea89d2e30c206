package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"outofschool/internal/core/tx"
	"outofschool/pkg/logger"
)

var tracer = otel.Tracer("outofschool/tx")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration

	// UseSavepoint creates savepoint for nested transactions
	UseSavepoint bool
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
		UseSavepoint:     false,
	}
}

// RetryPolicy bounds transient-fault retries of a whole transaction.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt; 1 disables retrying.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DB is a Querier that can start transactions. *pgxpool.Pool satisfies it.
type DB interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxManager manages database transactions with support for:
// - Nested transactions (with optional savepoints)
// - Statement timeout protection
// - Transient-fault retry of the outermost transaction
// - Distributed tracing integration
type TxManager struct {
	db    DB
	opts  TxOptions
	retry RetryPolicy
}

// NewTxManager creates a transaction manager over db.
func NewTxManager(db DB, opts TxOptions, retry RetryPolicy) *TxManager {
	return &TxManager{db: db, opts: opts, retry: retry}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx wraps pgx.Tx with metadata.
type Tx struct {
	pgx.Tx
	onCommit   []func()
	onRollback []func()
	staged     []BatchQuery
}

// txMark remembers how much a Tx had accumulated when a savepoint was taken.
type txMark struct {
	onCommit, onRollback, staged int
}

func (t *Tx) mark() txMark {
	return txMark{onCommit: len(t.onCommit), onRollback: len(t.onRollback), staged: len(t.staged)}
}

// undo runs the rollback hooks registered since m, newest first, and forgets
// everything accumulated since m.
func (t *Tx) undo(m txMark) {
	for i := len(t.onRollback) - 1; i >= m.onRollback; i-- {
		t.onRollback[i]()
	}
	t.onRollback = t.onRollback[:m.onRollback]
	t.onCommit = t.onCommit[:m.onCommit]
	if len(t.staged) > m.staged {
		t.staged = t.staged[:m.staged]
	}
}

// flushStaged sends the writes staged in this transaction as one batch.
func (t *Tx) flushStaged(ctx context.Context) error {
	staged := t.staged
	t.staged = nil
	if err := ExecuteBatch(ctx, t.Tx, staged); err != nil {
		return fmt.Errorf("flush staged writes: %w", err)
	}
	return nil
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it is reused and never retried on its own.
// Otherwise the whole begin/fn/commit cycle is retried on transient faults, so fn
// must not have side effects outside the database.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.opts, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if existing := m.GetTx(ctx); existing != nil {
		return m.handleNestedTransaction(ctx, existing, opts, fn)
	}

	attempt := 0
	op := func() error {
		attempt++
		err := m.startNewTransaction(ctx, attempt, opts, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "retrying transaction after transient fault",
			"attempt", attempt, "wait", wait, "error", err)
	}

	return backoff.RetryNotify(op, m.retry.backOff(ctx), notify)
}

// runOnce executes fn in the ambient transaction or in a new one that is not retried.
func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	if existing := m.GetTx(ctx); existing != nil {
		return fn(ctx)
	}
	return m.startNewTransaction(ctx, 1, m.opts, fn)
}

// startNewTransaction begins, runs and commits one transaction attempt.
func (m *TxManager) startNewTransaction(ctx context.Context, attempt int, opts TxOptions, fn func(ctx context.Context) error) (err error) {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
			attribute.Int("tx.attempt", attempt),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	pgTx, err := m.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	wrapped := &Tx{Tx: pgTx}
	txCtx := context.WithValue(ctx, txKey{}, wrapped)

	err = m.executeWithRollbackProtection(txCtx, pgTx, func(ctx context.Context) error {
		if opts.StatementTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())
			if _, err := pgTx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("set statement_timeout: %w", err)
			}
		}
		if err := fn(ctx); err != nil {
			return err
		}
		return wrapped.flushStaged(ctx)
	})
	if err != nil {
		wrapped.undo(txMark{})
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		wrapped.undo(txMark{})
		return fmt.Errorf("commit transaction: %w", err)
	}

	for _, hook := range wrapped.onCommit {
		hook()
	}
	return nil
}

// handleNestedTransaction manages nested transaction (reuses or creates savepoint).
func (m *TxManager) handleNestedTransaction(ctx context.Context, existing *Tx, opts TxOptions, fn func(ctx context.Context) error) error {
	if !opts.UseSavepoint {
		return fn(ctx)
	}

	savepointName := fmt.Sprintf("sp_%d", time.Now().UnixNano())
	if _, err := existing.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	mark := existing.mark()
	if err := fn(ctx); err != nil {
		existing.undo(mark)
		if _, rbErr := existing.Exec(context.Background(), "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", savepointName, "error", rbErr)
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}

	if _, err := existing.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// executeWithRollbackProtection runs fn and rolls back on error.
// A failed rollback is joined with the original error.
func (m *TxManager) executeWithRollbackProtection(ctx context.Context, pgTx pgx.Tx, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}

	// Background context so the rollback completes even after cancellation.
	if rbErr := pgTx.Rollback(context.Background()); rbErr != nil {
		logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
	}
	return err
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx
	}
	return nil
}

// GetQuerier returns the transaction if one is in ctx, otherwise the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx := m.GetTx(ctx); tx != nil {
		return tx.Tx
	}
	return m.db
}

// AfterCommit runs fn once the transaction in ctx commits, or immediately when there is none.
func (m *TxManager) AfterCommit(ctx context.Context, fn func()) {
	if tx := m.GetTx(ctx); tx != nil {
		tx.onCommit = append(tx.onCommit, fn)
		return
	}
	fn()
}

// AfterRollback runs fn if the transaction in ctx does not commit, or when the
// savepoint open at registration is rolled back. Without a transaction it does nothing.
func (m *TxManager) AfterRollback(ctx context.Context, fn func()) {
	if tx := m.GetTx(ctx); tx != nil {
		tx.onRollback = append(tx.onRollback, fn)
	}
}

// ReadOnly executes fn in a read-only repeatable-read transaction, so every
// statement in fn sees the same snapshot (a count and the page it describes).
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.opts
	opts.AccessMode = pgx.ReadOnly
	opts.IsolationLevel = pgx.RepeatableRead
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}

// IsTransient reports whether err is worth retrying the whole transaction for:
// serialization failures, deadlocks, connection exceptions, or errors pgx marks
// as safe to retry because nothing reached the server.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}
