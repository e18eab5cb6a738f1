package lifecycle

import (
	"context"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/store"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"go.uber.org/zap"
)

type Action string

const (
	// ActionOpened means a filled BUY opened a position.
	ActionOpened Action = "OPENED"
	// ActionClosed means a filled SELL closed the open position.
	ActionClosed Action = "CLOSED"
	// ActionIgnored means the fill was recorded but did not change any position.
	ActionIgnored Action = "IGNORED"
)

// Transition describes what a fill did to the symbol's position.
type Transition struct {
	Action Action
	Order  types.Order
	// Position is the opened or closed position. Empty when the fill was ignored.
	Position optional.Option[types.Position]
	// Reason explains an ignored fill.
	Reason string
}

// Engine turns filled orders into position changes.
//
// Per symbol the engine is either flat or holds exactly one long position. The state is always
// read from the database inside the same transaction that changes it. Concurrent fills of one
// symbol are serialized by the gateway's symbol lock in process and by locking reads on backends
// shared between processes.
type Engine struct {
	gateway *database.Gateway
	logger  *logger.Logger
}

func NewEngine(gateway *database.Gateway, log *logger.Logger) *Engine {
	return &Engine{
		gateway: gateway,
		logger:  log.Named("lifecycle"),
	}
}

// Submit records a new PENDING order.
func (e *Engine) Submit(ctx context.Context, req types.OrderRequest) (types.Order, error) {
	order, err := types.NewOrder(req)
	if err != nil {
		return types.Order{}, err
	}

	if err := store.NewOrders(e.gateway).Insert(ctx, order); err != nil {
		return types.Order{}, err
	}

	e.logger.Debug("Order submitted",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
	)

	return order, nil
}

// OnFilled records a FILLED order and applies it to the symbol's position:
// a BUY with no open position opens one, a SELL with an open position closes it,
// anything else is recorded and ignored.
//
// Reporting an already recorded fill again changes nothing. An order already recorded in a
// terminal status with a different outcome is refused.
func (e *Engine) OnFilled(ctx context.Context, order types.Order) (Transition, error) {
	if order.Status != types.OrderStatusFilled {
		return Transition{}, errors.Newf(errors.ErrCodeInvalidOrderState,
			"order %s is %s, only FILLED orders change positions", order.ID, order.Status)
	}

	if err := order.Validate(); err != nil {
		return Transition{}, err
	}

	unlock := e.gateway.Lock(order.Symbol)
	defer unlock()

	var transition Transition

	err := e.gateway.WithSession(ctx, func(sess *database.Session) error {
		st := store.New(sess)

		stored, err := st.Orders.GetForUpdate(ctx, order.ID)

		switch {
		case errors.HasCode(err, errors.ErrCodeDataNotFound):
			if err := st.Orders.Insert(ctx, order); err != nil {
				return err
			}
		case err != nil:
			return err
		case stored.Status == types.OrderStatusPending:
			if stored.Symbol != order.Symbol || stored.Side != order.Side {
				return errors.Newf(errors.ErrCodeInvalidFill,
					"fill for order %s reports %s %s, order is %s %s",
					order.ID, order.Side, order.Symbol, stored.Side, stored.Symbol)
			}

			if err := st.Orders.Update(ctx, order); err != nil {
				return err
			}
		case stored.SameExecution(order):
			transition = e.ignored(order, "fill was already recorded")

			return nil
		default:
			return errors.Newf(errors.ErrCodeInvalidOrderState,
				"order %s is already recorded as %s with a different outcome", order.ID, stored.Status)
		}

		transition, err = e.apply(ctx, st, order)

		return err
	})
	if err != nil {
		return Transition{}, err
	}

	e.logTransition(transition)

	return transition, nil
}

// ApplyFill fills the PENDING order named by the notification and applies it to the
// position in the same unit of work.
func (e *Engine) ApplyFill(ctx context.Context, fill types.FillNotification) (Transition, error) {
	if err := fill.Validate(); err != nil {
		return Transition{}, err
	}

	unlock := e.gateway.Lock(fill.Symbol)
	defer unlock()

	var transition Transition

	err := e.gateway.WithSession(ctx, func(sess *database.Session) error {
		st := store.New(sess)

		order, err := st.Orders.GetForUpdate(ctx, fill.OrderID)
		if err != nil {
			return err
		}

		if !fill.Matches(order) {
			return errors.Newf(errors.ErrCodeInvalidFill,
				"fill for order %s reports %s %s, order is %s %s",
				fill.OrderID, fill.Side, fill.Symbol, order.Side, order.Symbol)
		}

		if order.Status != types.OrderStatusPending {
			return errors.Newf(errors.ErrCodeInvalidOrderState,
				"order %s is already %s", order.ID, order.Status)
		}

		if err := order.Fill(fill.Price, fill.Quantity, fill.FilledAt); err != nil {
			return err
		}

		if err := st.Orders.Update(ctx, order); err != nil {
			return err
		}

		transition, err = e.apply(ctx, st, order)

		return err
	})
	if err != nil {
		return Transition{}, err
	}

	e.logTransition(transition)

	return transition, nil
}

// OpenPosition returns the open position of a symbol, if any.
func (e *Engine) OpenPosition(ctx context.Context, symbol string) (optional.Option[types.Position], error) {
	return store.NewPositions(e.gateway).FindOpen(ctx, symbol)
}

func (e *Engine) apply(ctx context.Context, st *store.Store, order types.Order) (Transition, error) {
	// an order is the entry or the exit of at most one position
	consumed, err := st.Positions.FindByOrder(ctx, order.ID)
	if err != nil {
		return Transition{}, err
	}

	if consumed.IsSome() {
		return e.ignored(order, "order already belongs to position "+consumed.Unwrap().ID), nil
	}

	open, err := st.Positions.LockOpen(ctx, order.Symbol)
	if err != nil {
		return Transition{}, err
	}

	switch {
	case order.Side == types.OrderSideBuy && open.IsNone():
		position, err := types.NewOpenPosition(order)
		if err != nil {
			return Transition{}, err
		}

		if err := st.Positions.Insert(ctx, position); err != nil {
			return Transition{}, err
		}

		return Transition{Action: ActionOpened, Order: order, Position: optional.Some(position), Reason: ""}, nil

	case order.Side == types.OrderSideSell && open.IsSome():
		position := open.Unwrap()
		if err := position.Close(order); err != nil {
			return Transition{}, err
		}

		if err := st.Positions.Update(ctx, position); err != nil {
			return Transition{}, err
		}

		return Transition{Action: ActionClosed, Order: order, Position: optional.Some(position), Reason: ""}, nil

	case order.Side == types.OrderSideBuy:
		return e.ignored(order, "a position is already open"), nil

	default:
		return e.ignored(order, "no open position to close"), nil
	}
}

func (e *Engine) ignored(order types.Order, reason string) Transition {
	return Transition{
		Action:   ActionIgnored,
		Order:    order,
		Position: optional.None[types.Position](),
		Reason:   reason,
	}
}

func (e *Engine) logTransition(t Transition) {
	fields := []zap.Field{
		zap.String("order_id", t.Order.ID),
		zap.String("symbol", t.Order.Symbol),
		zap.String("side", string(t.Order.Side)),
		zap.String("action", string(t.Action)),
	}

	if t.Position.IsSome() {
		position := t.Position.Unwrap()
		fields = append(fields, zap.String("position_id", position.ID))

		if pnl := position.RealizedPnL(); pnl.IsSome() {
			fields = append(fields, zap.Float64("pnl", pnl.Unwrap()))
		}
	}

	if t.Action == ActionIgnored {
		e.logger.Info("Fill ignored", append(fields, zap.String("reason", t.Reason))...)

		return
	}

	e.logger.Info("Position updated", fields...)
}
