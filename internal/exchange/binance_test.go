package exchange

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/mux"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/config"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/lifecycle"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/store"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// mockBinanceClient implements BinanceClient
type mockBinanceClient struct {
	listTradesService *mockListTradesService
}

func (m *mockBinanceClient) NewListTradesService() ListTradesService {
	return m.listTradesService
}

// mockListTradesService implements ListTradesService
type mockListTradesService struct {
	trades    []*binance.TradeV3
	err       error
	symbol    string
	limit     int
	startTime int64
	endTime   int64
}

func (m *mockListTradesService) Symbol(symbol string) ListTradesService {
	m.symbol = symbol
	return m
}

func (m *mockListTradesService) Limit(limit int) ListTradesService {
	m.limit = limit
	return m
}

func (m *mockListTradesService) StartTime(startTime int64) ListTradesService {
	m.startTime = startTime
	return m
}

func (m *mockListTradesService) EndTime(endTime int64) ListTradesService {
	m.endTime = endTime
	return m
}

func (m *mockListTradesService) Do(_ context.Context) ([]*binance.TradeV3, error) {
	return m.trades, m.err
}

type BinanceImporterTestSuite struct {
	suite.Suite
	ctx      context.Context
	gateway  *database.Gateway
	service  *mockListTradesService
	importer *BinanceImporter
	base     time.Time
}

func TestBinanceImporterSuite(t *testing.T) {
	suite.Run(t, new(BinanceImporterTestSuite))
}

func (s *BinanceImporterTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	gateway, err := database.Connect(s.ctx, "duckdb://")
	s.Require().NoError(err)
	s.Require().NoError(gateway.CreateSchema(s.ctx))
	s.gateway = gateway

	s.service = &mockListTradesService{}
	s.importer = newBinanceImporterWithClient(
		&mockBinanceClient{listTradesService: s.service},
		lifecycle.NewEngine(gateway, logger.NewNopLogger()),
		store.NewOrders(gateway),
		logger.NewNopLogger(),
	)
}

func (s *BinanceImporterTestSuite) TearDownTest() {
	_ = s.gateway.Close()
}

func (s *BinanceImporterTestSuite) trade(id int64, isBuyer bool, price, qty string, at time.Time) *binance.TradeV3 {
	return &binance.TradeV3{
		ID:       id,
		Symbol:   "BTCETH",
		OrderID:  id * 10,
		Price:    price,
		Quantity: qty,
		Time:     at.UnixMilli(),
		IsBuyer:  isBuyer,
	}
}

func (s *BinanceImporterTestSuite) TestImportOpensAndClosesPositions() {
	// returned out of order on purpose
	s.service.trades = []*binance.TradeV3{
		s.trade(3, false, "14.9", "1", s.base.Add(3*time.Hour)),
		s.trade(1, true, "10", "1", s.base),
		s.trade(2, false, "11", "1", s.base.Add(time.Hour)),
		s.trade(4, false, "12", "1", s.base.Add(4*time.Hour)),
	}

	since := s.base.Add(-time.Hour)
	result, err := s.importer.Import(s.ctx, ImportRequest{Symbol: "BTC/ETH", Since: since, Limit: 500})
	s.Require().NoError(err)

	s.Equal(ImportResult{Fetched: 4, Skipped: 0, Opened: 1, Closed: 1, Ignored: 2}, result)
	s.Equal("BTCETH", s.service.symbol)
	s.Equal(500, s.service.limit)
	s.Equal(since.UnixMilli(), s.service.startTime)

	positions, err := store.NewPositions(s.gateway).List(s.ctx, optional.Some(types.PositionStatusClosed))
	s.Require().NoError(err)
	s.Require().Len(positions, 1)
	s.Equal(1.0, positions[0].RealizedPnL().Unwrap())
	s.Equal(TradeOrderID("BTCETH", 1), positions[0].EntryOrderID)
	s.Equal(TradeOrderID("BTCETH", 2), positions[0].ExitOrderID.Unwrap())
}

func (s *BinanceImporterTestSuite) TestReimportSkipsKnownTrades() {
	s.service.trades = []*binance.TradeV3{
		s.trade(1, true, "10", "1", s.base),
		s.trade(2, false, "11", "1", s.base.Add(time.Hour)),
	}

	_, err := s.importer.Import(s.ctx, ImportRequest{Symbol: "BTC/ETH"})
	s.Require().NoError(err)

	result, err := s.importer.Import(s.ctx, ImportRequest{Symbol: "BTC/ETH"})
	s.Require().NoError(err)
	s.Equal(ImportResult{Fetched: 2, Skipped: 2}, result)

	positions, err := store.NewPositions(s.gateway).List(s.ctx, optional.None[types.PositionStatus]())
	s.Require().NoError(err)
	s.Len(positions, 1)
}

func (s *BinanceImporterTestSuite) TestImportErrors() {
	tests := []struct {
		name  string
		req   ImportRequest
		setup func()
		check func(error) bool
	}{
		{
			name:  "missing symbol",
			req:   ImportRequest{},
			setup: func() {},
			check: errors.IsValidationError,
		},
		{
			name:  "limit too large",
			req:   ImportRequest{Symbol: "BTC/ETH", Limit: MaxTradesPerRequest + 1},
			setup: func() {},
			check: errors.IsValidationError,
		},
		{
			name: "exchange failure",
			req:  ImportRequest{Symbol: "BTC/ETH"},
			setup: func() {
				s.service.err = stderrors.New("503 service unavailable")
			},
			check: func(err error) bool { return errors.HasCode(err, errors.ErrCodeExchangeFailed) },
		},
		{
			name: "malformed price",
			req:  ImportRequest{Symbol: "BTC/ETH"},
			setup: func() {
				s.service.err = nil
				s.service.trades = []*binance.TradeV3{s.trade(1, true, "abc", "1", s.base)}
			},
			check: func(err error) bool { return errors.HasCode(err, errors.ErrCodeExchangeFailed) },
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			tt.setup()

			_, err := s.importer.Import(s.ctx, tt.req)
			s.Require().Error(err)
			s.True(tt.check(err), err.Error())
		})
	}
}

func (s *BinanceImporterTestSuite) TestNewBinanceImporterRequiresCredentials() {
	engine := lifecycle.NewEngine(s.gateway, logger.NewNopLogger())

	_, err := NewBinanceImporter(config.BinanceConfig{}, engine, store.NewOrders(s.gateway), logger.NewNopLogger())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	importer, err := NewBinanceImporter(config.BinanceConfig{
		ApiKey:     "key",
		SecretKey:  "secret",
		UseTestnet: false,
		BaseURL:    "http://127.0.0.1:1",
	}, engine, store.NewOrders(s.gateway), logger.NewNopLogger())
	s.Require().NoError(err)
	s.NotNil(importer)
}

// TestImportThroughBinanceClient drives the real client against a local myTrades endpoint.
func (s *BinanceImporterTestSuite) TestImportThroughBinanceClient() {
	var requested string

	router := mux.NewRouter()
	router.HandleFunc("/api/v3/myTrades", func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Query().Get("symbol")

		trades := []map[string]interface{}{
			{
				"symbol": "BTCETH", "id": 1, "orderId": 10, "price": "10.00000000", "qty": "2.00000000",
				"commission": "0", "commissionAsset": "ETH", "time": s.base.UnixMilli(),
				"isBuyer": true, "isMaker": false, "isBestMatch": true,
			},
			{
				"symbol": "BTCETH", "id": 2, "orderId": 20, "price": "10.50000000", "qty": "2.00000000",
				"commission": "0", "commissionAsset": "ETH", "time": s.base.Add(time.Hour).UnixMilli(),
				"isBuyer": false, "isMaker": false, "isBestMatch": true,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(trades)
	}).Methods("GET")

	server := httptest.NewServer(router)
	defer server.Close()

	importer, err := NewBinanceImporter(config.BinanceConfig{
		ApiKey:     "key",
		SecretKey:  "secret",
		UseTestnet: false,
		BaseURL:    server.URL,
	}, lifecycle.NewEngine(s.gateway, logger.NewNopLogger()), store.NewOrders(s.gateway), logger.NewNopLogger())
	s.Require().NoError(err)

	result, err := importer.Import(s.ctx, ImportRequest{Symbol: "BTC/ETH"})
	s.Require().NoError(err)
	s.Equal("BTCETH", requested)
	s.Equal(ImportResult{Fetched: 2, Opened: 1, Closed: 1}, result)

	positions, err := store.NewPositions(s.gateway).List(s.ctx, optional.Some(types.PositionStatusClosed))
	s.Require().NoError(err)
	s.Require().Len(positions, 1)
	s.InDelta(1.0, positions[0].RealizedPnL().Unwrap(), 1e-9)
}

func TestExchangeSymbol(t *testing.T) {
	assert.Equal(t, "BTCETH", ExchangeSymbol("BTC/ETH"))
	assert.Equal(t, "SOLUSDT", ExchangeSymbol("sol/usdt"))
	assert.Equal(t, "BNBETH", ExchangeSymbol("BNBETH"))
}

func TestTradeOrderIDIsStable(t *testing.T) {
	assert.Equal(t, TradeOrderID("BTCETH", 42), TradeOrderID("BTCETH", 42))
	assert.NotEqual(t, TradeOrderID("BTCETH", 42), TradeOrderID("BTCETH", 43))
	assert.NotEqual(t, TradeOrderID("BTCETH", 42), TradeOrderID("SOLETH", 42))
}
