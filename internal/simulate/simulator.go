package simulate

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/lifecycle"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Config describes a mean reverting price ratio and how often it is sampled.
type Config struct {
	Symbol    string        `yaml:"symbol" json:"symbol" validate:"required,max=32"`
	Start     time.Time     `yaml:"start" json:"start" validate:"required"`
	Interval  time.Duration `yaml:"interval" json:"interval" validate:"gt=0"`
	Intervals int           `yaml:"intervals" json:"intervals" validate:"gt=0"`
	BasePrice float64       `yaml:"base_price" json:"base_price" validate:"gt=0"`
	// Spread is the maximum distance of a sampled price from BasePrice.
	Spread float64 `yaml:"spread" json:"spread" validate:"gt=0"`
	// Threshold is how far from BasePrice the price must move before a signal is emitted.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gte=0,ltfield=Spread"`
	// FillDelay separates the order submission from its fill.
	FillDelay time.Duration `yaml:"fill_delay" json:"fill_delay" validate:"gte=0"`
	Seed      int64         `yaml:"seed" json:"seed"`
}

// DefaultConfig simulates a year of 15 minute samples of the BTC/ETH ratio.
func DefaultConfig() Config {
	return Config{
		Symbol:    "BTC/ETH",
		Start:     time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Interval:  15 * time.Minute,
		Intervals: 50000,
		BasePrice: 15.0,
		Spread:    1.5,
		Threshold: 1.0,
		FillDelay: 2 * time.Second,
		Seed:      time.Now().UnixNano(),
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid simulation config", err)
	}

	return nil
}

// SignalRecorder persists generated signals.
type SignalRecorder interface {
	Insert(ctx context.Context, signal types.Signal) error
}

// OrderFlow submits orders and reports their fills.
type OrderFlow interface {
	Submit(ctx context.Context, req types.OrderRequest) (types.Order, error)
	ApplyFill(ctx context.Context, fill types.FillNotification) (lifecycle.Transition, error)
}

// Result counts what a simulation wrote.
type Result struct {
	Intervals int `json:"intervals"`
	Signals   int `json:"signals"`
	Opened    int `json:"opened"`
	Closed    int `json:"closed"`
	Ignored   int `json:"ignored"`
}

// Simulator fills the ledger with synthetic mean reversion trading.
// A price above BasePrice+Threshold emits a SELL signal, one below BasePrice-Threshold a BUY signal.
// Every signal becomes a market order that is filled FillDelay later at the sampled price.
type Simulator struct {
	signals  SignalRecorder
	orders   OrderFlow
	logger   *logger.Logger
	progress io.Writer
}

type Option func(*Simulator)

// WithProgress draws a progress bar to w.
func WithProgress(w io.Writer) Option {
	return func(s *Simulator) {
		s.progress = w
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Simulator) {
		s.logger = l.Named("simulate")
	}
}

func NewSimulator(signals SignalRecorder, orders OrderFlow, opts ...Option) *Simulator {
	s := &Simulator{
		signals:  signals,
		orders:   orders,
		logger:   logger.NewNopLogger(),
		progress: nil,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run walks cfg.Intervals samples starting at cfg.Start. It stops at the first error
// and returns what was written until then.
func (s *Simulator) Run(ctx context.Context, cfg Config) (Result, error) {
	result := Result{}

	if err := cfg.Validate(); err != nil {
		return result, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	var bar *progressbar.ProgressBar
	if s.progress != nil {
		bar = progressbar.NewOptions(cfg.Intervals,
			progressbar.OptionSetWriter(s.progress),
			progressbar.OptionSetDescription(fmt.Sprintf("Simulating %s", cfg.Symbol)),
			progressbar.OptionShowCount(),
		)
	}

	current := cfg.Start.UTC()

	for i := 0; i < cfg.Intervals; i++ {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(errors.ErrCodeTransactionFailed, "simulation cancelled", err)
		}

		price := roundTo(cfg.BasePrice+uniform(rng, -cfg.Spread, cfg.Spread), 3)

		if signalType, ok := classify(price, cfg); ok {
			transition, err := s.trade(ctx, rng, cfg, signalType, price, current)
			if err != nil {
				return result, err
			}

			result.Signals++

			switch transition.Action {
			case lifecycle.ActionOpened:
				result.Opened++
			case lifecycle.ActionClosed:
				result.Closed++
			case lifecycle.ActionIgnored:
				result.Ignored++
			}
		}

		result.Intervals++
		current = current.Add(cfg.Interval)

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	s.logger.Info("Simulation finished",
		zap.String("symbol", cfg.Symbol),
		zap.Int("intervals", result.Intervals),
		zap.Int("signals", result.Signals),
		zap.Int("closed", result.Closed),
	)

	return result, nil
}

func (s *Simulator) trade(ctx context.Context, rng *rand.Rand, cfg Config, signalType types.SignalType, price float64, at time.Time) (lifecycle.Transition, error) {
	signal, err := types.NewSignal(cfg.Symbol, signalType, roundTo(uniform(rng, 0.7, 0.95), 3), at)
	if err != nil {
		return lifecycle.Transition{}, err
	}

	if err := s.signals.Insert(ctx, signal); err != nil {
		return lifecycle.Transition{}, err
	}

	side, _ := signal.OrderSide()
	quantity := roundTo(uniform(rng, 0.5, 2.5), 3)

	order, err := s.orders.Submit(ctx, types.OrderRequest{
		SignalID:    optional.Some(signal.ID),
		Symbol:      cfg.Symbol,
		Type:        types.OrderTypeMarket,
		Side:        side,
		Quantity:    quantity,
		Price:       optional.None[float64](),
		SubmittedAt: at,
	})
	if err != nil {
		return lifecycle.Transition{}, err
	}

	return s.orders.ApplyFill(ctx, types.FillNotification{
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: quantity,
		Price:    price,
		FilledAt: at.Add(cfg.FillDelay),
	})
}

// classify maps a sampled price to the signal it triggers, if any.
func classify(price float64, cfg Config) (types.SignalType, bool) {
	switch {
	case price > cfg.BasePrice+cfg.Threshold:
		return types.SignalTypeSell, true
	case price < cfg.BasePrice-cfg.Threshold:
		return types.SignalTypeBuy, true
	default:
		return "", false
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func roundTo(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
