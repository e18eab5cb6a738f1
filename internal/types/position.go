package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position is a holding opened by a filled BUY order and closed by a later filled SELL order.
// Only long positions are tracked.
type Position struct {
	ID           string                  `yaml:"id" json:"id" validate:"required,uuid"`
	Symbol       string                  `yaml:"symbol" json:"symbol" validate:"required,max=32"`
	EntryOrderID string                  `yaml:"entry_order_id" json:"entry_order_id" validate:"required"`
	ExitOrderID  optional.Option[string] `yaml:"exit_order_id" json:"exit_order_id"`
	Quantity     float64                 `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	EntryPrice   float64                 `yaml:"entry_price" json:"entry_price" validate:"required,gt=0"`
	// ExitPrice, ExitOrderID and ExitTime are set together when the position closes.
	ExitPrice optional.Option[float64]   `yaml:"exit_price" json:"exit_price"`
	EntryTime time.Time                  `yaml:"entry_time" json:"entry_time" validate:"required"`
	ExitTime  optional.Option[time.Time] `yaml:"exit_time" json:"exit_time"`
	Status    PositionStatus             `yaml:"status" json:"status" validate:"required,oneof=OPEN CLOSED"`
}

// NewOpenPosition opens a position from a filled BUY order.
func NewOpenPosition(entry Order) (Position, error) {
	if entry.Status != OrderStatusFilled {
		return Position{}, errors.Newf(errors.ErrCodeInvalidPosition,
			"order %s is %s, only filled orders open positions", entry.ID, entry.Status)
	}

	if entry.Side != OrderSideBuy {
		return Position{}, errors.Newf(errors.ErrCodeInvalidPosition,
			"order %s is a %s order, only BUY orders open positions", entry.ID, entry.Side)
	}

	position := Position{
		ID:           uuid.New().String(),
		Symbol:       entry.Symbol,
		EntryOrderID: entry.ID,
		ExitOrderID:  optional.None[string](),
		Quantity:     entry.Quantity,
		EntryPrice:   entry.Price.TakeOr(0),
		ExitPrice:    optional.None[float64](),
		EntryTime:    entry.FilledAt.TakeOr(time.Time{}),
		ExitTime:     optional.None[time.Time](),
		Status:       PositionStatusOpen,
	}

	if err := position.Validate(); err != nil {
		return Position{}, err
	}

	return position, nil
}

// Close sets the exit group from a filled SELL order and marks the position CLOSED.
// The position is left untouched when the exit is rejected.
func (p *Position) Close(exit Order) error {
	if p.Status != PositionStatusOpen {
		return errors.Newf(errors.ErrCodeInvalidPosition, "position %s is already %s", p.ID, p.Status)
	}

	if exit.Status != OrderStatusFilled || exit.Side != OrderSideSell {
		return errors.Newf(errors.ErrCodeInvalidPosition,
			"position %s can only be closed by a filled SELL order, got %s %s", p.ID, exit.Status, exit.Side)
	}

	if exit.Symbol != p.Symbol {
		return errors.Newf(errors.ErrCodeInvalidPosition,
			"position %s is for %s, exit order is for %s", p.ID, p.Symbol, exit.Symbol)
	}

	next := *p
	next.ExitOrderID = optional.Some(exit.ID)
	next.ExitPrice = exit.Price
	next.ExitTime = exit.FilledAt
	next.Status = PositionStatusClosed

	if err := next.Validate(); err != nil {
		return err
	}

	*p = next

	return nil
}

// Validate validates the Position struct and the exit group invariant.
func (p *Position) Validate() error {
	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPosition, "invalid position", err)
	}

	set := 0
	for _, isSome := range []bool{p.ExitOrderID.IsSome(), p.ExitPrice.IsSome(), p.ExitTime.IsSome()} {
		if isSome {
			set++
		}
	}

	if set != 0 && set != 3 {
		return errors.Newf(errors.ErrCodeInvalidPosition,
			"position %s: exit order, exit price and exit time must be set together", p.ID)
	}

	if (set == 3) != (p.Status == PositionStatusClosed) {
		return errors.Newf(errors.ErrCodeInvalidPosition,
			"position %s: status %s does not match its exit fields", p.ID, p.Status)
	}

	if p.ExitPrice.IsSome() && p.ExitPrice.Unwrap() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPosition, "position %s: exit price must be positive", p.ID)
	}

	return nil
}

// IsClosed reports whether the position has been closed.
func (p *Position) IsClosed() bool {
	return p.Status == PositionStatusClosed
}

// RealizedPnL returns (exit price - entry price) * quantity for a closed position.
// Open positions have no realized PnL.
func (p *Position) RealizedPnL() optional.Option[float64] {
	if !p.IsClosed() {
		return optional.None[float64]()
	}

	return optional.Some(CalculatePnL(p.EntryPrice, p.ExitPrice.Unwrap(), p.Quantity))
}

// CalculatePnL computes the long-only profit of a round trip using decimal arithmetic.
func CalculatePnL(entryPrice, exitPrice, quantity float64) float64 {
	pnl, _ := decimal.NewFromFloat(exitPrice).
		Sub(decimal.NewFromFloat(entryPrice)).
		Mul(decimal.NewFromFloat(quantity)).
		Float64()

	return pnl
}
