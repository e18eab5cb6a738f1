package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/store"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/mocks"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type EngineTestSuite struct {
	suite.Suite
	ctx     context.Context
	gateway *database.Gateway
	engine  *Engine
	store   *store.Store
	base    time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.base = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	gateway, err := database.Connect(s.ctx, "duckdb://", database.WithQueryTimeout(30*time.Second))
	s.Require().NoError(err)
	s.Require().NoError(gateway.CreateSchema(s.ctx))

	s.gateway = gateway
	s.engine = NewEngine(gateway, logger.NewNopLogger())
	s.store = store.New(gateway)
}

func (s *EngineTestSuite) TearDownTest() {
	_ = s.gateway.Close()
}

func (s *EngineTestSuite) filled(symbol string, side types.OrderSide, price, quantity float64, at time.Time) types.Order {
	order, err := types.NewOrder(types.OrderRequest{
		SignalID:    optional.None[string](),
		Symbol:      symbol,
		Type:        types.OrderTypeMarket,
		Side:        side,
		Quantity:    quantity,
		Price:       optional.None[float64](),
		SubmittedAt: at.Add(-2 * time.Second),
	})
	s.Require().NoError(err)
	s.Require().NoError(order.Fill(price, quantity, at))

	return order
}

func (s *EngineTestSuite) positions(status optional.Option[types.PositionStatus]) []types.Position {
	positions, err := s.store.Positions.List(s.ctx, status)
	s.Require().NoError(err)

	return positions
}

func (s *EngineTestSuite) TestBuyOpensAndSellCloses() {
	buy := s.filled("BTC/ETH", types.OrderSideBuy, 10.0, 1, s.base)

	transition, err := s.engine.OnFilled(s.ctx, buy)
	s.Require().NoError(err)
	s.Equal(ActionOpened, transition.Action)
	s.Equal(buy.ID, transition.Position.Unwrap().EntryOrderID)

	open, err := s.engine.OpenPosition(s.ctx, "BTC/ETH")
	s.Require().NoError(err)
	s.Require().True(open.IsSome())
	s.Equal(10.0, open.Unwrap().EntryPrice)

	sell := s.filled("BTC/ETH", types.OrderSideSell, 11.0, 1, s.base.Add(time.Hour))

	transition, err = s.engine.OnFilled(s.ctx, sell)
	s.Require().NoError(err)
	s.Equal(ActionClosed, transition.Action)

	closed := transition.Position.Unwrap()
	s.Equal(types.PositionStatusClosed, closed.Status)
	s.Equal(sell.ID, closed.ExitOrderID.Unwrap())
	s.Equal(11.0, closed.ExitPrice.Unwrap())
	s.InDelta(1.0, closed.RealizedPnL().Unwrap(), 1e-9)

	open, err = s.engine.OpenPosition(s.ctx, "BTC/ETH")
	s.Require().NoError(err)
	s.True(open.IsNone())

	// both orders were recorded with the position writes
	for _, id := range []string{buy.ID, sell.ID} {
		order, err := s.store.Orders.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(types.OrderStatusFilled, order.Status)
	}
}

func (s *EngineTestSuite) TestSecondBuyIsIgnored() {
	first := s.filled("BTC/ETH", types.OrderSideBuy, 10.0, 1, s.base)
	_, err := s.engine.OnFilled(s.ctx, first)
	s.Require().NoError(err)

	second := s.filled("BTC/ETH", types.OrderSideBuy, 9.5, 3, s.base.Add(time.Minute))
	transition, err := s.engine.OnFilled(s.ctx, second)
	s.Require().NoError(err)
	s.Equal(ActionIgnored, transition.Action)
	s.True(transition.Position.IsNone())
	s.NotEmpty(transition.Reason)

	positions := s.positions(optional.None[types.PositionStatus]())
	s.Require().Len(positions, 1)
	s.Equal(first.ID, positions[0].EntryOrderID)
	s.Equal(10.0, positions[0].EntryPrice)
	s.Equal(1.0, positions[0].Quantity)

	// the ignored order is still recorded
	_, err = s.store.Orders.Get(s.ctx, second.ID)
	s.NoError(err)
}

func (s *EngineTestSuite) TestSellWithoutPositionIsIgnored() {
	sell := s.filled("BTC/ETH", types.OrderSideSell, 10.0, 1, s.base)

	transition, err := s.engine.OnFilled(s.ctx, sell)
	s.Require().NoError(err)
	s.Equal(ActionIgnored, transition.Action)
	s.Empty(s.positions(optional.None[types.PositionStatus]()))
}

func (s *EngineTestSuite) TestNonFilledOrderIsRejected() {
	tests := []struct {
		name   string
		mutate func(o *types.Order) error
	}{
		{name: "pending", mutate: func(_ *types.Order) error { return nil }},
		{name: "cancelled", mutate: (*types.Order).Cancel},
		{name: "rejected", mutate: (*types.Order).Reject},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			order, err := types.NewOrder(types.OrderRequest{
				Symbol: "BTC/ETH", Type: types.OrderTypeMarket, Side: types.OrderSideBuy, Quantity: 1,
			})
			s.Require().NoError(err)
			s.Require().NoError(tt.mutate(&order))

			_, err = s.engine.OnFilled(s.ctx, order)
			s.Require().Error(err)
			s.True(errors.IsInvalidOrderStateError(err))

			_, err = s.store.Orders.Get(s.ctx, order.ID)
			s.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
			s.Empty(s.positions(optional.None[types.PositionStatus]()))
		})
	}
}

func (s *EngineTestSuite) TestApplyFill() {
	buy, err := s.engine.Submit(s.ctx, types.OrderRequest{
		Symbol: "BTC/ETH", Type: types.OrderTypeMarket, Side: types.OrderSideBuy, Quantity: 2, SubmittedAt: s.base,
	})
	s.Require().NoError(err)

	transition, err := s.engine.ApplyFill(s.ctx, types.FillNotification{
		OrderID:  buy.ID,
		Symbol:   "BTC/ETH",
		Side:     types.OrderSideBuy,
		Quantity: 1.5,
		Price:    14.2,
		FilledAt: s.base.Add(2 * time.Second),
	})
	s.Require().NoError(err)
	s.Equal(ActionOpened, transition.Action)
	s.Equal(1.5, transition.Position.Unwrap().Quantity)

	stored, err := s.store.Orders.Get(s.ctx, buy.ID)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, stored.Status)
	s.Equal(14.2, stored.Price.Unwrap())
	s.Equal(1.5, stored.Quantity)

	// a second report for the same order is refused and changes nothing
	_, err = s.engine.ApplyFill(s.ctx, types.FillNotification{
		OrderID: buy.ID, Symbol: "BTC/ETH", Side: types.OrderSideBuy, Quantity: 1, Price: 15, FilledAt: s.base,
	})
	s.True(errors.IsInvalidOrderStateError(err))
	s.Len(s.positions(optional.None[types.PositionStatus]()), 1)
}

func (s *EngineTestSuite) TestApplyFillErrors() {
	pending, err := s.engine.Submit(s.ctx, types.OrderRequest{
		Symbol: "BTC/ETH", Type: types.OrderTypeMarket, Side: types.OrderSideSell, Quantity: 1,
	})
	s.Require().NoError(err)

	cancelled, err := s.engine.Submit(s.ctx, types.OrderRequest{
		Symbol: "BTC/ETH", Type: types.OrderTypeMarket, Side: types.OrderSideBuy, Quantity: 1,
	})
	s.Require().NoError(err)
	_, err = s.store.Orders.UpdateStatus(s.ctx, cancelled.ID, types.OrderStatusCancelled)
	s.Require().NoError(err)

	tests := []struct {
		name  string
		fill  types.FillNotification
		check func(err error) bool
	}{
		{
			name: "unknown order",
			fill: types.FillNotification{
				OrderID: uuid.NewString(), Symbol: "BTC/ETH", Side: types.OrderSideSell, Quantity: 1, Price: 1, FilledAt: s.base,
			},
			check: func(err error) bool { return errors.HasCode(err, errors.ErrCodeDataNotFound) },
		},
		{
			name: "side mismatch",
			fill: types.FillNotification{
				OrderID: pending.ID, Symbol: "BTC/ETH", Side: types.OrderSideBuy, Quantity: 1, Price: 1, FilledAt: s.base,
			},
			check: func(err error) bool { return errors.HasCode(err, errors.ErrCodeInvalidFill) },
		},
		{
			name: "terminal order",
			fill: types.FillNotification{
				OrderID: cancelled.ID, Symbol: "BTC/ETH", Side: types.OrderSideBuy, Quantity: 1, Price: 1, FilledAt: s.base,
			},
			check: errors.IsInvalidOrderStateError,
		},
		{
			name:  "invalid notification",
			fill:  types.FillNotification{OrderID: pending.ID, Symbol: "BTC/ETH", Side: types.OrderSideSell},
			check: errors.IsValidationError,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.engine.ApplyFill(s.ctx, tt.fill)
			s.Require().Error(err)
			s.True(tt.check(err), err.Error())
		})
	}

	stored, err := s.store.Orders.Get(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusPending, stored.Status)
}

func (s *EngineTestSuite) TestSymbolsAreIndependent() {
	_, err := s.engine.OnFilled(s.ctx, s.filled("BTC/ETH", types.OrderSideBuy, 10, 1, s.base))
	s.Require().NoError(err)

	transition, err := s.engine.OnFilled(s.ctx, s.filled("SOL/ETH", types.OrderSideBuy, 2, 5, s.base))
	s.Require().NoError(err)
	s.Equal(ActionOpened, transition.Action)

	transition, err = s.engine.OnFilled(s.ctx, s.filled("SOL/ETH", types.OrderSideSell, 2.5, 5, s.base.Add(time.Hour)))
	s.Require().NoError(err)
	s.Equal(ActionClosed, transition.Action)

	open, err := s.engine.OpenPosition(s.ctx, "BTC/ETH")
	s.Require().NoError(err)
	s.True(open.IsSome())
}

// A random sequence of fills must keep at most one open position per symbol, every closed
// position must carry its full exit group, and the realized PnL must match a reference model.
func (s *EngineTestSuite) TestRandomFillSequences() {
	symbols := []string{"BTC/ETH", "SOL/ETH", "BNB/ETH"}

	config := mocks.DefaultConfig()
	config.Symbols = symbols
	config.StartTime = s.base
	config.Count = 200

	type model struct {
		open       bool
		entryPrice float64
		quantity   float64
	}

	models := map[string]*model{}
	for _, symbol := range symbols {
		models[symbol] = &model{}
	}

	expectedPnL := 0.0
	expectedClosed := 0

	for i, order := range mocks.NewDataGenerator(42).Generate(config) {
		transition, err := s.engine.OnFilled(s.ctx, order)
		s.Require().NoError(err)

		m := models[order.Symbol]
		price := order.Price.Unwrap()

		switch {
		case order.Side == types.OrderSideBuy && !m.open:
			s.Equal(ActionOpened, transition.Action)
			m.open, m.entryPrice, m.quantity = true, price, order.Quantity
		case order.Side == types.OrderSideSell && m.open:
			s.Equal(ActionClosed, transition.Action)
			expectedPnL += types.CalculatePnL(m.entryPrice, price, m.quantity)
			expectedClosed++
			m.open = false
		default:
			s.Equal(ActionIgnored, transition.Action, fmt.Sprintf("step %d", i))
		}
	}

	actualPnL := 0.0

	for _, position := range s.positions(optional.Some(types.PositionStatusClosed)) {
		s.NoError(position.Validate())
		s.True(position.ExitOrderID.IsSome())
		s.True(position.ExitPrice.IsSome())
		s.True(position.ExitTime.IsSome())
		s.False(position.ExitTime.Unwrap().Before(position.EntryTime))
		actualPnL += position.RealizedPnL().Unwrap()
	}

	s.Len(s.positions(optional.Some(types.PositionStatusClosed)), expectedClosed)
	s.InDelta(expectedPnL, actualPnL, 1e-6)

	for _, symbol := range symbols {
		open, err := s.engine.OpenPosition(s.ctx, symbol)
		s.Require().NoError(err)
		s.Equal(models[symbol].open, open.IsSome(), symbol)
	}
}

// Concurrent fills for the same symbol must never produce two open positions.
func (s *EngineTestSuite) TestConcurrentFillsOnOneSymbol() {
	const workers = 8

	var wg sync.WaitGroup

	errs := make(chan error, workers*2)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			at := s.base.Add(time.Duration(i) * time.Minute)
			buy := s.filled("BTC/ETH", types.OrderSideBuy, 10, 1, at)
			sell := s.filled("BTC/ETH", types.OrderSideSell, 11, 1, at.Add(time.Second))

			if _, err := s.engine.OnFilled(s.ctx, buy); err != nil {
				errs <- err
			}

			if _, err := s.engine.OnFilled(s.ctx, sell); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	s.LessOrEqual(len(s.positions(optional.Some(types.PositionStatusOpen))), 1)

	for _, position := range s.positions(optional.None[types.PositionStatus]()) {
		s.NoError(position.Validate())
	}
}

func (s *EngineTestSuite) TestReplayedSellDoesNotCloseLaterPosition() {
	buy := s.filled("BTC/ETH", types.OrderSideBuy, 10, 1, s.base)
	sell := s.filled("BTC/ETH", types.OrderSideSell, 11, 1, s.base.Add(time.Hour))
	reopen := s.filled("BTC/ETH", types.OrderSideBuy, 12, 1, s.base.Add(2*time.Hour))

	for _, order := range []types.Order{buy, sell, reopen} {
		_, err := s.engine.OnFilled(s.ctx, order)
		s.Require().NoError(err)
	}

	transition, err := s.engine.OnFilled(s.ctx, sell)
	s.Require().NoError(err)
	s.Equal(ActionIgnored, transition.Action)

	open, err := s.engine.OpenPosition(s.ctx, "BTC/ETH")
	s.Require().NoError(err)
	s.Require().True(open.IsSome())
	s.Equal(reopen.ID, open.Unwrap().EntryOrderID)

	closed := s.positions(optional.Some(types.PositionStatusClosed))
	s.Require().Len(closed, 1)
	s.Equal(sell.ID, closed[0].ExitOrderID.Unwrap())
}

func (s *EngineTestSuite) TestReplayedBuyDoesNotReopen() {
	buy := s.filled("BTC/ETH", types.OrderSideBuy, 10, 1, s.base)
	sell := s.filled("BTC/ETH", types.OrderSideSell, 11, 1, s.base.Add(time.Hour))

	for _, order := range []types.Order{buy, sell} {
		_, err := s.engine.OnFilled(s.ctx, order)
		s.Require().NoError(err)
	}

	transition, err := s.engine.OnFilled(s.ctx, buy)
	s.Require().NoError(err)
	s.Equal(ActionIgnored, transition.Action)
	s.Empty(s.positions(optional.Some(types.PositionStatusOpen)))
}

func (s *EngineTestSuite) TestReplayedFillWithChangedOutcomeIsRefused() {
	buy := s.filled("BTC/ETH", types.OrderSideBuy, 10, 1, s.base)
	_, err := s.engine.OnFilled(s.ctx, buy)
	s.Require().NoError(err)

	changed := buy
	changed.Price = optional.Some(99.0)
	changed.Quantity = 5

	_, err = s.engine.OnFilled(s.ctx, changed)
	s.True(errors.IsInvalidOrderStateError(err))

	stored, err := s.store.Orders.Get(s.ctx, buy.ID)
	s.Require().NoError(err)
	s.Equal(10.0, stored.Price.Unwrap())
	s.Equal(1.0, stored.Quantity)
}

func (s *EngineTestSuite) TestCancelledOrderCannotBeFilled() {
	order, err := s.engine.Submit(s.ctx, types.OrderRequest{
		SignalID:    optional.None[string](),
		Symbol:      "BTC/ETH",
		Type:        types.OrderTypeMarket,
		Side:        types.OrderSideBuy,
		Quantity:    1,
		Price:       optional.None[float64](),
		SubmittedAt: s.base,
	})
	s.Require().NoError(err)

	_, err = s.store.Orders.UpdateStatus(s.ctx, order.ID, types.OrderStatusCancelled)
	s.Require().NoError(err)

	s.Require().NoError(order.Fill(10, 1, s.base.Add(2*time.Second)))

	_, err = s.engine.OnFilled(s.ctx, order)
	s.True(errors.IsInvalidOrderStateError(err))
	s.Empty(s.positions(optional.None[types.PositionStatus]()))

	stored, err := s.store.Orders.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusCancelled, stored.Status)
}

func (s *EngineTestSuite) TestSubmittedOrderFilledThroughOnFilled() {
	order, err := s.engine.Submit(s.ctx, types.OrderRequest{
		SignalID:    optional.None[string](),
		Symbol:      "BTC/ETH",
		Type:        types.OrderTypeMarket,
		Side:        types.OrderSideBuy,
		Quantity:    1,
		Price:       optional.None[float64](),
		SubmittedAt: s.base,
	})
	s.Require().NoError(err)
	s.Require().NoError(order.Fill(10, 1, s.base.Add(2*time.Second)))

	transition, err := s.engine.OnFilled(s.ctx, order)
	s.Require().NoError(err)
	s.Equal(ActionOpened, transition.Action)

	stored, err := s.store.Orders.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, stored.Status)
}

// Engines built separately on one gateway, as the CLI does per command, share the symbol lock.
func (s *EngineTestSuite) TestEnginesSharingGatewayOpenOnePosition() {
	const rounds = 20

	for round := 0; round < rounds; round++ {
		symbol := fmt.Sprintf("PAIR%d/ETH", round)
		engines := []*Engine{
			NewEngine(s.gateway, logger.NewNopLogger()),
			NewEngine(s.gateway, logger.NewNopLogger()),
		}

		var wg sync.WaitGroup

		errs := make(chan error, len(engines))

		for i, engine := range engines {
			wg.Add(1)

			go func(engine *Engine, order types.Order) {
				defer wg.Done()

				if _, err := engine.OnFilled(s.ctx, order); err != nil {
					errs <- err
				}
			}(engine, s.filled(symbol, types.OrderSideBuy, 10, 1, s.base.Add(time.Duration(i)*time.Second)))
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			s.NoError(err)
		}

		open, err := engines[0].OpenPosition(s.ctx, symbol)
		s.Require().NoError(err, symbol)
		s.True(open.IsSome(), symbol)
	}

	s.Len(s.positions(optional.Some(types.PositionStatusOpen)), rounds)
}
