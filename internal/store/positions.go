package store

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

var positionColumns = []string{
	"id", "stock_symbol", "entry_order_id", "exit_order_id", "quantity", "entry_price", "exit_price",
	"entry_datetime", "exit_datetime", "status",
}

// Positions persists positions opened and closed by the lifecycle engine.
type Positions struct {
	exec database.Executor
}

func NewPositions(exec database.Executor) *Positions {
	return &Positions{exec: exec}
}

// Insert records a new position.
func (r *Positions) Insert(ctx context.Context, position types.Position) error {
	if err := position.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	query, args, err := r.exec.Builder().
		Insert(database.TablePositions).
		Columns(positionColumns...).
		Values(
			position.ID, position.Symbol, position.EntryOrderID, nullable(position.ExitOrderID),
			position.Quantity, position.EntryPrice, nullable(position.ExitPrice),
			position.EntryTime.UTC(), nullableTime(position.ExitTime), string(position.Status),
		).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to build position insert", err)
	}

	if _, err := r.exec.Runner().ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteFailed, err, "failed to insert position %s", position.ID)
	}

	return nil
}

// Update writes the exit group and status of an existing position.
func (r *Positions) Update(ctx context.Context, position types.Position) error {
	if err := position.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	query, args, err := r.exec.Builder().
		Update(database.TablePositions).
		Set("exit_order_id", nullable(position.ExitOrderID)).
		Set("exit_price", nullable(position.ExitPrice)).
		Set("exit_datetime", nullableTime(position.ExitTime)).
		Set("status", string(position.Status)).
		Where(squirrel.Eq{"id": position.ID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to build position update", err)
	}

	return execWrite(ctx, r.exec, database.TablePositions, position.ID, query, args)
}

// Get loads a position by id.
func (r *Positions) Get(ctx context.Context, id string) (types.Position, error) {
	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	query, args, err := r.exec.Builder().
		Select(positionColumns...).
		From(database.TablePositions).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return types.Position{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build position query", err)
	}

	position, err := scanPosition(r.exec.Runner().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Position{}, errors.Newf(errors.ErrCodeDataNotFound, "position %s not found", id)
	}

	if err != nil {
		return types.Position{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load position %s", id)
	}

	return position, nil
}

// FindOpen returns the open position of a symbol, if there is one.
func (r *Positions) FindOpen(ctx context.Context, symbol string) (optional.Option[types.Position], error) {
	return r.findOpen(ctx, symbol, false)
}

// LockOpen is FindOpen for a session that is about to change the symbol's position: the rows it
// reads stay locked until the session ends.
func (r *Positions) LockOpen(ctx context.Context, symbol string) (optional.Option[types.Position], error) {
	return r.findOpen(ctx, symbol, true)
}

func (r *Positions) findOpen(ctx context.Context, symbol string, lock bool) (optional.Option[types.Position], error) {
	positions, err := r.list(ctx, squirrel.Eq{
		"stock_symbol": symbol,
		"status":       string(types.PositionStatusOpen),
	}, lock)
	if err != nil {
		return optional.None[types.Position](), err
	}

	switch len(positions) {
	case 0:
		return optional.None[types.Position](), nil
	case 1:
		return optional.Some(positions[0]), nil
	default:
		return optional.None[types.Position](), errors.Newf(errors.ErrCodeQueryFailed,
			"symbol %s has %d open positions, at most one is allowed", symbol, len(positions))
	}
}

// FindByOrder returns the position an order opened or closed, if any.
func (r *Positions) FindByOrder(ctx context.Context, orderID string) (optional.Option[types.Position], error) {
	positions, err := r.list(ctx, squirrel.Or{
		squirrel.Eq{"entry_order_id": orderID},
		squirrel.Eq{"exit_order_id": orderID},
	}, false)
	if err != nil {
		return optional.None[types.Position](), err
	}

	if len(positions) == 0 {
		return optional.None[types.Position](), nil
	}

	return optional.Some(positions[0]), nil
}

// List returns positions in entry order, optionally only those in one status.
func (r *Positions) List(ctx context.Context, status optional.Option[types.PositionStatus]) ([]types.Position, error) {
	where := squirrel.Eq{}
	if status.IsSome() {
		where["status"] = string(status.Unwrap())
	}

	return r.list(ctx, where, false)
}

func (r *Positions) list(ctx context.Context, where squirrel.Sqlizer, lock bool) ([]types.Position, error) {
	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	builder := r.exec.Builder().
		Select(positionColumns...).
		From(database.TablePositions).
		Where(where).
		OrderBy("entry_datetime ASC", "id ASC")

	if lock {
		builder = forUpdate(r.exec, builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build position query", err)
	}

	rows, err := r.exec.Runner().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list positions", err)
	}
	defer rows.Close()

	positions := []types.Position{}

	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan position", err)
		}

		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list positions", err)
	}

	return positions, nil
}

func scanPosition(row scanner) (types.Position, error) {
	var (
		position    types.Position
		exitOrderID sql.NullString
		exitPrice   sql.NullFloat64
		exitTime    sql.NullTime
		status      string
	)

	err := row.Scan(
		&position.ID, &position.Symbol, &position.EntryOrderID, &exitOrderID, &position.Quantity,
		&position.EntryPrice, &exitPrice, &position.EntryTime, &exitTime, &status,
	)
	if err != nil {
		return types.Position{}, err
	}

	position.ExitOrderID = fromNullString(exitOrderID)
	position.ExitPrice = fromNullFloat(exitPrice)
	position.EntryTime = position.EntryTime.UTC()
	position.ExitTime = fromNullTime(exitTime)
	position.Status = types.PositionStatus(status)

	return position, nil
}
