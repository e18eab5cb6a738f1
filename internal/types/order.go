package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

type OrderType string

type OrderSide string

type OrderStatus string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further status change is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// OrderRequest carries what the execution side knows when it acts on a signal.
type OrderRequest struct {
	// SignalID links the order to the signal it was derived from, if any.
	SignalID optional.Option[string]
	Symbol   string
	Type     OrderType
	Side     OrderSide
	Quantity float64
	// Price is the limit/stop price. Market orders usually leave it empty until filled.
	Price optional.Option[float64]
	// SubmittedAt defaults to the current time when zero.
	SubmittedAt time.Time
}

// Order is an instruction derived from a signal together with its execution outcome.
type Order struct {
	ID       string                  `yaml:"id" json:"id" validate:"required,uuid"`
	SignalID optional.Option[string] `yaml:"signal_id" json:"signal_id"`
	Symbol   string                  `yaml:"symbol" json:"symbol" validate:"required,max=32"`
	Type     OrderType               `yaml:"order_type" json:"order_type" validate:"required,oneof=MARKET LIMIT STOP"`
	Side     OrderSide               `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Quantity float64                 `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// Price stays empty for market orders until the fill is reported.
	Price       optional.Option[float64] `yaml:"price" json:"price"`
	Status      OrderStatus              `yaml:"status" json:"status" validate:"required,oneof=PENDING FILLED CANCELLED REJECTED"`
	SubmittedAt time.Time                `yaml:"submitted_at" json:"submitted_at" validate:"required"`
	// FilledAt is set if and only if Status is FILLED.
	FilledAt optional.Option[time.Time] `yaml:"filled_at" json:"filled_at"`
}

// NewOrder creates a validated PENDING order with a fresh id.
func NewOrder(req OrderRequest) (Order, error) {
	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	order := Order{
		ID:          uuid.New().String(),
		SignalID:    req.SignalID,
		Symbol:      req.Symbol,
		Type:        req.Type,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Status:      OrderStatusPending,
		SubmittedAt: submittedAt.UTC(),
		FilledAt:    optional.None[time.Time](),
	}

	if err := order.Validate(); err != nil {
		return Order{}, err
	}

	return order, nil
}

// Validate validates the Order struct and its fill invariant.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	filled := o.Status == OrderStatusFilled
	if o.FilledAt.IsSome() != filled {
		return errors.Newf(errors.ErrCodeInvalidOrder,
			"order %s: fill time must be set if and only if status is FILLED (status=%s)", o.ID, o.Status)
	}

	if filled && o.Price.IsNone() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "order %s: filled order has no price", o.ID)
	}

	if o.Price.IsSome() && o.Price.Unwrap() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrder, "order %s: price must be positive", o.ID)
	}

	return nil
}

// Fill moves a PENDING order to FILLED with the executed price, quantity and time.
func (o *Order) Fill(price, quantity float64, filledAt time.Time) error {
	if o.Status != OrderStatusPending {
		return errors.Newf(errors.ErrCodeInvalidStatusChange,
			"order %s: cannot fill an order in status %s", o.ID, o.Status)
	}

	next := *o
	next.Status = OrderStatusFilled
	next.Price = optional.Some(price)
	next.Quantity = quantity
	next.FilledAt = optional.Some(filledAt.UTC())

	if err := next.Validate(); err != nil {
		return err
	}

	*o = next

	return nil
}

// Cancel moves a PENDING order to CANCELLED.
func (o *Order) Cancel() error {
	return o.terminate(OrderStatusCancelled)
}

// Reject moves a PENDING order to REJECTED.
func (o *Order) Reject() error {
	return o.terminate(OrderStatusRejected)
}

func (o *Order) terminate(status OrderStatus) error {
	if o.Status != OrderStatusPending {
		return errors.Newf(errors.ErrCodeInvalidStatusChange,
			"order %s: cannot move from %s to %s", o.ID, o.Status, status)
	}

	o.Status = status

	return nil
}

// SameExecution reports whether two records of one order agree on what was executed.
// Times are compared at microsecond precision, the finest every backend stores.
func (o *Order) SameExecution(other Order) bool {
	if o.ID != other.ID || o.Symbol != other.Symbol || o.Side != other.Side || o.Type != other.Type ||
		o.Status != other.Status || o.Quantity != other.Quantity {
		return false
	}

	if o.Price.IsSome() != other.Price.IsSome() || (o.Price.IsSome() && o.Price.Unwrap() != other.Price.Unwrap()) {
		return false
	}

	if o.FilledAt.IsSome() != other.FilledAt.IsSome() {
		return false
	}

	return o.FilledAt.IsNone() ||
		o.FilledAt.Unwrap().Truncate(time.Microsecond).Equal(other.FilledAt.Unwrap().Truncate(time.Microsecond))
}

// FillNotification is what the execution collaborator reports for a filled order.
type FillNotification struct {
	OrderID  string    `json:"order_id" validate:"required"`
	Symbol   string    `json:"symbol" validate:"required,max=32"`
	Side     OrderSide `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity float64   `json:"quantity" validate:"required,gt=0"`
	Price    float64   `json:"price" validate:"required,gt=0"`
	FilledAt time.Time `json:"filled_at" validate:"required"`
}

// Validate validates the FillNotification struct.
func (f *FillNotification) Validate() error {
	validate := validator.New()
	if err := validate.Struct(f); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFill, "invalid fill notification", err)
	}

	return nil
}

// Matches reports whether the fill describes the given order.
func (f *FillNotification) Matches(order Order) bool {
	return f.OrderID == order.ID && f.Symbol == order.Symbol && f.Side == order.Side
}
