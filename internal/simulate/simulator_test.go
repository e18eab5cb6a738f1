package simulate

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/lifecycle"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/store"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SimulatorTestSuite struct {
	suite.Suite
	ctx     context.Context
	gateway *database.Gateway
	store   *store.Store
	sim     *Simulator
}

func TestSimulatorSuite(t *testing.T) {
	suite.Run(t, new(SimulatorTestSuite))
}

func (s *SimulatorTestSuite) SetupTest() {
	s.ctx = context.Background()

	gateway, err := database.Connect(s.ctx, "duckdb://")
	s.Require().NoError(err)
	s.Require().NoError(gateway.CreateSchema(s.ctx))

	s.gateway = gateway
	s.store = store.New(gateway)
	s.sim = NewSimulator(s.store.Signals, lifecycle.NewEngine(gateway, logger.NewNopLogger()))
}

func (s *SimulatorTestSuite) TearDownTest() {
	_ = s.gateway.Close()
}

func (s *SimulatorTestSuite) config() Config {
	cfg := DefaultConfig()
	cfg.Intervals = 300
	cfg.Seed = 7

	return cfg
}

func (s *SimulatorTestSuite) TestRunWritesConsistentLedger() {
	cfg := s.config()

	result, err := s.sim.Run(s.ctx, cfg)
	s.Require().NoError(err)

	s.Equal(cfg.Intervals, result.Intervals)
	s.Positive(result.Signals)
	s.Equal(result.Signals, result.Opened+result.Closed+result.Ignored)
	s.LessOrEqual(result.Opened-result.Closed, 1)

	signals, err := s.store.Signals.List(s.ctx, store.SignalFilter{Symbol: cfg.Symbol})
	s.Require().NoError(err)
	s.Len(signals, result.Signals)

	for _, signal := range signals {
		s.NotEqual(types.SignalTypeHold, signal.Type)
		s.GreaterOrEqual(signal.Confidence, 0.7)
		s.LessOrEqual(signal.Confidence, 0.95)
	}

	orders, err := s.store.Orders.ListBySymbol(s.ctx, cfg.Symbol, optional.Some(types.OrderStatusFilled))
	s.Require().NoError(err)
	s.Len(orders, result.Signals)

	for _, order := range orders {
		s.True(order.SignalID.IsSome())
		s.Equal(cfg.FillDelay, order.FilledAt.Unwrap().Sub(order.SubmittedAt))

		price := order.Price.Unwrap()
		if order.Side == types.OrderSideBuy {
			s.Less(price, cfg.BasePrice-cfg.Threshold)
		} else {
			s.Greater(price, cfg.BasePrice+cfg.Threshold)
		}
	}

	closed, err := s.store.Positions.List(s.ctx, optional.Some(types.PositionStatusClosed))
	s.Require().NoError(err)
	s.Len(closed, result.Closed)

	// every closed position bought low and sold high
	for _, position := range closed {
		s.Positive(position.RealizedPnL().Unwrap())
	}
}

func (s *SimulatorTestSuite) TestSameSeedSameResult() {
	cfg := s.config()

	first, err := s.sim.Run(s.ctx, cfg)
	s.Require().NoError(err)

	gateway, err := database.Connect(s.ctx, "duckdb://")
	s.Require().NoError(err)
	defer gateway.Close()
	s.Require().NoError(gateway.CreateSchema(s.ctx))

	other := NewSimulator(store.NewSignals(gateway), lifecycle.NewEngine(gateway, logger.NewNopLogger()))

	second, err := other.Run(s.ctx, cfg)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *SimulatorTestSuite) TestProgressIsWritten() {
	var out bytes.Buffer

	sim := NewSimulator(s.store.Signals, lifecycle.NewEngine(s.gateway, logger.NewNopLogger()),
		WithProgress(&out),
		WithLogger(logger.NewNopLogger()),
	)

	cfg := s.config()
	cfg.Intervals = 20

	_, err := sim.Run(s.ctx, cfg)
	s.Require().NoError(err)
	s.Contains(out.String(), "Simulating BTC/ETH")
}

func (s *SimulatorTestSuite) TestInvalidConfig() {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing symbol", mutate: func(c *Config) { c.Symbol = "" }},
		{name: "no intervals", mutate: func(c *Config) { c.Intervals = 0 }},
		{name: "zero interval", mutate: func(c *Config) { c.Interval = 0 }},
		{name: "threshold beyond spread", mutate: func(c *Config) { c.Threshold = 2 }},
		{name: "negative base price", mutate: func(c *Config) { c.BasePrice = -1 }},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			cfg := s.config()
			tt.mutate(&cfg)

			_, err := s.sim.Run(s.ctx, cfg)
			s.True(errors.IsValidationError(err))
		})
	}
}

func (s *SimulatorTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	result, err := s.sim.Run(ctx, s.config())
	s.Require().Error(err)
	s.Equal(0, result.Intervals)
}

type failingFlow struct{}

func (failingFlow) Submit(context.Context, types.OrderRequest) (types.Order, error) {
	return types.Order{}, errors.Wrap(errors.ErrCodeWriteFailed, "failed to insert order", stderrors.New("disk full"))
}

func (failingFlow) ApplyFill(context.Context, types.FillNotification) (lifecycle.Transition, error) {
	return lifecycle.Transition{}, nil
}

func (s *SimulatorTestSuite) TestWriteFailureStopsTheRun() {
	sim := NewSimulator(s.store.Signals, failingFlow{})

	result, err := sim.Run(s.ctx, s.config())
	s.True(errors.HasCode(err, errors.ErrCodeWriteFailed))
	s.Equal(0, result.Signals)
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		price    float64
		expected types.SignalType
		ok       bool
	}{
		{price: 16.2, expected: types.SignalTypeSell, ok: true},
		{price: 13.5, expected: types.SignalTypeBuy, ok: true},
		{price: 16.0, ok: false},
		{price: 14.0, ok: false},
		{price: 15.0, ok: false},
	}

	for _, tt := range tests {
		signalType, ok := classify(tt.price, cfg)
		assert.Equal(t, tt.ok, ok, "price %v", tt.price)
		assert.Equal(t, tt.expected, signalType, "price %v", tt.price)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, 2*time.Second, cfg.FillDelay)
}
