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

var orderColumns = []string{
	"id", "signal_id", "stock_symbol", "order_type", "side", "quantity", "price", "status",
	"submission_datetime", "filled_datetime",
}

// Orders persists orders and their status changes.
type Orders struct {
	exec database.Executor
}

func NewOrders(exec database.Executor) *Orders {
	return &Orders{exec: exec}
}

// Insert records a new order.
func (r *Orders) Insert(ctx context.Context, order types.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	query, args, err := r.exec.Builder().
		Insert(database.TableOrders).
		Columns(orderColumns...).
		Values(
			order.ID, nullable(order.SignalID), order.Symbol, string(order.Type), string(order.Side),
			order.Quantity, nullable(order.Price), string(order.Status),
			order.SubmittedAt.UTC(), nullableTime(order.FilledAt),
		).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to build order insert", err)
	}

	if _, err := r.exec.Runner().ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteFailed, err, "failed to insert order %s", order.ID)
	}

	return nil
}

// Update writes the execution outcome of an existing order: status, price, quantity and fill time.
func (r *Orders) Update(ctx context.Context, order types.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	query, args, err := r.exec.Builder().
		Update(database.TableOrders).
		Set("quantity", order.Quantity).
		Set("price", nullable(order.Price)).
		Set("status", string(order.Status)).
		Set("filled_datetime", nullableTime(order.FilledAt)).
		Where(squirrel.Eq{"id": order.ID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to build order update", err)
	}

	return execWrite(ctx, r.exec, database.TableOrders, order.ID, query, args)
}

// Upsert inserts the order or, if it is already recorded and still PENDING, updates its execution
// outcome. A recorded order in a terminal status is never rewritten.
// Run it inside a session so the lookup and the write are one unit of work.
func (r *Orders) Upsert(ctx context.Context, order types.Order) error {
	stored, err := r.GetForUpdate(ctx, order.ID)
	if errors.HasCode(err, errors.ErrCodeDataNotFound) {
		return r.Insert(ctx, order)
	}

	if err != nil {
		return err
	}

	if stored.Status.IsTerminal() {
		return errors.Newf(errors.ErrCodeInvalidOrderState,
			"order %s is already %s and cannot be rewritten", order.ID, stored.Status)
	}

	return r.Update(ctx, order)
}

// UpdateStatus cancels or rejects a PENDING order. Fills go through the lifecycle engine.
func (r *Orders) UpdateStatus(ctx context.Context, id string, status types.OrderStatus) (types.Order, error) {
	order, err := r.Get(ctx, id)
	if err != nil {
		return types.Order{}, err
	}

	switch status {
	case types.OrderStatusCancelled:
		err = order.Cancel()
	case types.OrderStatusRejected:
		err = order.Reject()
	default:
		err = errors.Newf(errors.ErrCodeUnsupportedOperation,
			"order %s: status %s cannot be set directly", id, status)
	}

	if err != nil {
		return types.Order{}, err
	}

	if err := r.Update(ctx, order); err != nil {
		return types.Order{}, err
	}

	return order, nil
}

// Get loads an order by id.
func (r *Orders) Get(ctx context.Context, id string) (types.Order, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate loads an order and locks its row until the session ends.
func (r *Orders) GetForUpdate(ctx context.Context, id string) (types.Order, error) {
	return r.get(ctx, id, true)
}

func (r *Orders) get(ctx context.Context, id string, lock bool) (types.Order, error) {
	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	builder := r.exec.Builder().
		Select(orderColumns...).
		From(database.TableOrders).
		Where(squirrel.Eq{"id": id})

	if lock {
		builder = forUpdate(r.exec, builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return types.Order{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build order query", err)
	}

	order, err := scanOrder(r.exec.Runner().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Order{}, errors.Newf(errors.ErrCodeDataNotFound, "order %s not found", id)
	}

	if err != nil {
		return types.Order{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load order %s", id)
	}

	return order, nil
}

// ListBySymbol returns the orders of a symbol in submission order, optionally only those in one status.
func (r *Orders) ListBySymbol(ctx context.Context, symbol string, status optional.Option[types.OrderStatus]) ([]types.Order, error) {
	ctx, cancel := r.exec.Bound(ctx)
	defer cancel()

	builder := r.exec.Builder().
		Select(orderColumns...).
		From(database.TableOrders).
		Where(squirrel.Eq{"stock_symbol": symbol}).
		OrderBy("submission_datetime ASC", "id ASC")

	if status.IsSome() {
		builder = builder.Where(squirrel.Eq{"status": string(status.Unwrap())})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build order query", err)
	}

	rows, err := r.exec.Runner().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to list orders for %s", symbol)
	}
	defer rows.Close()

	orders := []types.Order{}

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order", err)
		}

		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to list orders for %s", symbol)
	}

	return orders, nil
}

func scanOrder(row scanner) (types.Order, error) {
	var (
		order     types.Order
		signalID  sql.NullString
		orderType string
		side      string
		price     sql.NullFloat64
		status    string
		filledAt  sql.NullTime
	)

	err := row.Scan(
		&order.ID, &signalID, &order.Symbol, &orderType, &side, &order.Quantity, &price, &status,
		&order.SubmittedAt, &filledAt,
	)
	if err != nil {
		return types.Order{}, err
	}

	order.SignalID = fromNullString(signalID)
	order.Type = types.OrderType(orderType)
	order.Side = types.OrderSide(side)
	order.Price = fromNullFloat(price)
	order.Status = types.OrderStatus(status)
	order.SubmittedAt = order.SubmittedAt.UTC()
	order.FilledAt = fromNullTime(filledAt)

	return order, nil
}
