package postgres

import (
	"context"

	"outofschool/internal/metadata"
)

// Session is the per-request unit of work shared by repositories: it carries the
// transaction manager, the entity metadata, the change tracker and writes staged
// to be flushed together with the next primary write.
//
// A Session is not safe for concurrent use; create one per logical request.
type Session struct {
	txm      *TxManager
	registry *metadata.Registry
	tracker  *ChangeTracker
	staged   []BatchQuery
}

// NewSession creates a session over txm for entities described by registry.
func NewSession(txm *TxManager, registry *metadata.Registry) *Session {
	return &Session{
		txm:      txm,
		registry: registry,
		tracker:  NewChangeTracker(registry),
	}
}

func (s *Session) TxManager() *TxManager               { return s.txm }
func (s *Session) Registry() *metadata.Registry        { return s.registry }
func (s *Session) Tracker() *ChangeTracker             { return s.tracker }
func (s *Session) Querier(ctx context.Context) Querier { return s.txm.GetQuerier(ctx) }

// Stage queues writes for the next SaveChanges. Inside a transaction they belong
// to that attempt: a rollback or a retry discards them, and a commit flushes
// whatever SaveChanges has not.
func (s *Session) Stage(ctx context.Context, queries ...BatchQuery) {
	if tx := s.ambient(ctx); tx != nil {
		tx.staged = append(tx.staged, queries...)
		return
	}
	s.staged = append(s.staged, queries...)
}

// Pending returns the number of writes staged in the scope of ctx.
func (s *Session) Pending(ctx context.Context) int {
	if tx := s.ambient(ctx); tx != nil {
		return len(tx.staged)
	}
	return len(s.staged)
}

// SaveChanges runs primary and then the staged writes in one transaction.
// Within an ambient transaction only the writes staged in it are flushed;
// otherwise a new, non-retried transaction takes the writes staged outside
// any transaction. Those are consumed whether or not the save succeeds.
func (s *Session) SaveChanges(ctx context.Context, primary func(ctx context.Context) error) error {
	if tx := s.ambient(ctx); tx != nil {
		if primary != nil {
			if err := primary(ctx); err != nil {
				return err
			}
		}
		return tx.flushStaged(ctx)
	}

	staged := s.staged
	s.staged = nil

	return s.txm.runOnce(ctx, func(ctx context.Context) error {
		if primary != nil {
			if err := primary(ctx); err != nil {
				return err
			}
		}
		tx := s.txm.GetTx(ctx)
		tx.staged = append(staged, tx.staged...)
		return tx.flushStaged(ctx)
	})
}

func (s *Session) ambient(ctx context.Context) *Tx {
	if s.txm == nil {
		return nil
	}
	return s.txm.GetTx(ctx)
}

// Accept re-snapshots entity once the surrounding transaction commits.
func (s *Session) Accept(ctx context.Context, entity any) {
	s.txm.AfterCommit(ctx, func() { s.tracker.AcceptChanges(entity) })
}

// Forget detaches entity once the surrounding transaction commits.
func (s *Session) Forget(ctx context.Context, entity any) {
	s.txm.AfterCommit(ctx, func() { s.tracker.Detach(entity) })
}
