package store

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

var signalColumns = []string{"id", "stock_symbol", "signal_type", "confidence", "signal_datetime"}

// SignalFilter narrows List. Zero values mean no filter.
type SignalFilter struct {
	Symbol string
	Type   types.SignalType
	Limit  uint64
}

// Signals persists trading signals. Signals are append only.
type Signals struct {
	exec database.Executor
}

func NewSignals(exec database.Executor) *Signals {
	return &Signals{exec: exec}
}

// Insert records a validated signal.
func (r *Signals) Insert(ctx context.Context, signal types.Signal) error {
	if err := signal.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	query, args, err := r.exec.Builder().
		Insert(database.TableSignals).
		Columns(signalColumns...).
		Values(signal.ID, signal.Symbol, string(signal.Type), signal.Confidence, signal.Timestamp.UTC()).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to build signal insert", err)
	}

	if _, err := r.exec.Runner().ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteFailed, err, "failed to insert signal %s", signal.ID)
	}

	return nil
}

// Get loads a signal by id.
func (r *Signals) Get(ctx context.Context, id string) (types.Signal, error) {
	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	query, args, err := r.exec.Builder().
		Select(signalColumns...).
		From(database.TableSignals).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return types.Signal{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build signal query", err)
	}

	signal, err := scanSignal(r.exec.Runner().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Signal{}, errors.Newf(errors.ErrCodeDataNotFound, "signal %s not found", id)
	}

	if err != nil {
		return types.Signal{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load signal %s", id)
	}

	return signal, nil
}

// List returns signals ordered by time, most recent last.
func (r *Signals) List(ctx context.Context, filter SignalFilter) ([]types.Signal, error) {
	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	builder := r.exec.Builder().
		Select(signalColumns...).
		From(database.TableSignals).
		OrderBy("signal_datetime ASC", "id ASC")

	if filter.Symbol != "" {
		builder = builder.Where(squirrel.Eq{"stock_symbol": filter.Symbol})
	}

	if filter.Type != "" {
		builder = builder.Where(squirrel.Eq{"signal_type": string(filter.Type)})
	}

	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build signal query", err)
	}

	rows, err := r.exec.Runner().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list signals", err)
	}
	defer rows.Close()

	signals := []types.Signal{}

	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan signal", err)
		}

		signals = append(signals, signal)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list signals", err)
	}

	return signals, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(row scanner) (types.Signal, error) {
	var (
		signal     types.Signal
		signalType string
		confidence sql.NullFloat64
	)

	if err := row.Scan(&signal.ID, &signal.Symbol, &signalType, &confidence, &signal.Timestamp); err != nil {
		return types.Signal{}, err
	}

	signal.Type = types.SignalType(signalType)
	signal.Confidence = confidence.Float64
	signal.Timestamp = signal.Timestamp.UTC()

	return signal, nil
}
