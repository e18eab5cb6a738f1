package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

// Store groups the repositories bound to one executor, either the gateway or a session.
type Store struct {
	Signals   *Signals
	Orders    *Orders
	Positions *Positions
}

func New(exec database.Executor) *Store {
	return &Store{
		Signals:   NewSignals(exec),
		Orders:    NewOrders(exec),
		Positions: NewPositions(exec),
	}
}

// nullable turns an empty option into a SQL NULL.
func nullable[T any](o optional.Option[T]) any {
	if o.IsSome() {
		return o.Unwrap()
	}

	return nil
}

func nullableTime(o optional.Option[time.Time]) any {
	if o.IsSome() {
		return o.Unwrap().UTC()
	}

	return nil
}

func fromNullString(v sql.NullString) optional.Option[string] {
	if v.Valid {
		return optional.Some(v.String)
	}

	return optional.None[string]()
}

func fromNullFloat(v sql.NullFloat64) optional.Option[float64] {
	if v.Valid {
		return optional.Some(v.Float64)
	}

	return optional.None[float64]()
}

func fromNullTime(v sql.NullTime) optional.Option[time.Time] {
	if v.Valid {
		return optional.Some(v.Time.UTC())
	}

	return optional.None[time.Time]()
}

// forUpdate makes a select lock the rows it reads until the session ends, where the backend supports it.
// DuckDB has no row locks and relies on the gateway's in-process lock.
func forUpdate(exec database.Executor, builder squirrel.SelectBuilder) squirrel.SelectBuilder {
	if exec.Dialect().LockingReads {
		return builder.Suffix("FOR UPDATE")
	}

	return builder
}

// exists checks for a row by primary key.
func exists(ctx context.Context, exec database.Executor, table, id string) (bool, error) {
	query, args, err := exec.Builder().
		Select("COUNT(*)").
		From(table).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	var count int
	if err := exec.Runner().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to look up %s %s", table, id)
	}

	return count > 0, nil
}

// execWrite runs a built statement and reports a missing row as DataNotFound.
func execWrite(ctx context.Context, exec database.Executor, table, id, query string, args []any) error {
	result, err := exec.Runner().ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeWriteFailed, err, "failed to write %s %s", table, id)
	}

	// MySQL reports zero affected rows when nothing changed, so confirm the row is really missing
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		found, err := exists(ctx, exec, table, id)
		if err != nil {
			return err
		}

		if !found {
			return errors.Newf(errors.ErrCodeDataNotFound, "%s %s not found", table, id)
		}
	}

	return nil
}
