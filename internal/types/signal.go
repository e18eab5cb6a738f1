package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

type SignalType string

const (
	// SignalTypeBuy tells the execution side to enter a long position
	SignalTypeBuy SignalType = "BUY"
	// SignalTypeSell tells the execution side to exit the long position
	SignalTypeSell SignalType = "SELL"
	// SignalTypeHold is recorded for completeness and never produces an order
	SignalTypeHold SignalType = "HOLD"
)

// Signal is a directional trading hypothesis for a symbol at a point in time.
// Signals are immutable once recorded.
type Signal struct {
	ID     string     `yaml:"id" json:"id" validate:"required,uuid"`
	Symbol string     `yaml:"symbol" json:"symbol" validate:"required,max=32"`
	Type   SignalType `yaml:"signal_type" json:"signal_type" validate:"required,oneof=BUY SELL HOLD"`
	// Confidence is reported by the signal generator and is not range checked.
	Confidence float64   `yaml:"confidence" json:"confidence"`
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp" validate:"required"`
}

// NewSignal creates a validated signal with a fresh id.
// A zero timestamp defaults to the current time.
func NewSignal(symbol string, signalType SignalType, confidence float64, timestamp time.Time) (Signal, error) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	signal := Signal{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Type:       signalType,
		Confidence: confidence,
		Timestamp:  timestamp.UTC(),
	}

	if err := signal.Validate(); err != nil {
		return Signal{}, err
	}

	return signal, nil
}

// Validate validates the Signal struct.
func (s *Signal) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidSignal, "invalid signal", err)
	}

	return nil
}

// OrderSide returns the side an order acting on this signal takes.
// HOLD signals have no side.
func (s *Signal) OrderSide() (OrderSide, bool) {
	switch s.Type {
	case SignalTypeBuy:
		return OrderSideBuy, true
	case SignalTypeSell:
		return OrderSideSell, true
	default:
		return "", false
	}
}
