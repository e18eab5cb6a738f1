package database

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"go.uber.org/zap"
)

// Session is one unit of work: every statement run through it shares a single transaction.
type Session struct {
	tx      *sql.Tx
	gateway *Gateway
	cancel  context.CancelFunc
	done    bool
}

// NewSession begins a transaction. The gateway's query timeout bounds the whole unit of work;
// when it expires the transaction is rolled back by the driver.
func (g *Gateway) NewSession(ctx context.Context) (*Session, error) {
	ctx, cancel := g.Bound(ctx)

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		cancel()

		return nil, errors.Wrap(errors.ErrCodeTransactionFailed, "failed to begin transaction", err)
	}

	return &Session{
		tx:      tx,
		gateway: g,
		cancel:  cancel,
		done:    false,
	}, nil
}

// WithSession runs fn inside a new session. It commits when fn returns nil and rolls back
// when fn returns an error or panics.
func (g *Gateway) WithSession(ctx context.Context, fn func(sess *Session) error) error {
	sess, err := g.NewSession(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = sess.Rollback()

			panic(r)
		}
	}()

	if err := fn(sess); err != nil {
		if rbErr := sess.Rollback(); rbErr != nil {
			g.logger.Warn("Rollback failed", zap.Error(rbErr))
		}

		return err
	}

	return sess.Commit()
}

// Commit makes the unit of work durable.
func (s *Session) Commit() error {
	if s.done {
		return errors.New(errors.ErrCodeTransactionFailed, "session already finished")
	}

	s.done = true
	defer s.cancel()

	if err := s.tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to commit transaction", err)
	}

	return nil
}

// Rollback discards the unit of work. Rolling back a finished session is a no-op.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}

	s.done = true
	defer s.cancel()

	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to roll back transaction", err)
	}

	return nil
}

func (s *Session) Runner() Runner {
	return s.tx
}

func (s *Session) Builder() squirrel.StatementBuilderType {
	return s.gateway.sq
}

func (s *Session) Dialect() Dialect {
	return s.gateway.dialect
}

// Bound returns ctx unchanged: the session's own deadline already covers its statements.
func (s *Session) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return ctx, func() {}
}

var _ Executor = (*Session)(nil)
