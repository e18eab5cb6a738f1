package exchange

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/config"
	"github.com/rxtech-lab/pairs-ledger/internal/lifecycle"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"go.uber.org/zap"
)

// MaxTradesPerRequest is the largest page Binance returns from the account trade list.
const MaxTradesPerRequest = 1000

// tradeNamespace derives stable order ids from Binance trade ids, so a re-import finds the same orders.
var tradeNamespace = uuid.MustParse("6f1c7a52-3b0e-4c1d-9a57-1f2d8c0b4e61")

// ListTradesService interface for listing trades.
type ListTradesService interface {
	Symbol(symbol string) ListTradesService
	Limit(limit int) ListTradesService
	StartTime(startTime int64) ListTradesService
	EndTime(endTime int64) ListTradesService
	Do(ctx context.Context) ([]*binance.TradeV3, error)
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewListTradesService() ListTradesService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewListTradesService() ListTradesService {
	return &realListTradesService{service: r.client.NewListTradesService()}
}

type realListTradesService struct {
	service *binance.ListTradesService
}

func (s *realListTradesService) Symbol(symbol string) ListTradesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListTradesService) Limit(limit int) ListTradesService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realListTradesService) StartTime(startTime int64) ListTradesService {
	s.service = s.service.StartTime(startTime)

	return s
}

func (s *realListTradesService) EndTime(endTime int64) ListTradesService {
	s.service = s.service.EndTime(endTime)

	return s
}

func (s *realListTradesService) Do(ctx context.Context) ([]*binance.TradeV3, error) {
	return s.service.Do(ctx)
}

// FillRecorder applies filled orders to positions.
type FillRecorder interface {
	OnFilled(ctx context.Context, order types.Order) (lifecycle.Transition, error)
}

// OrderLookup finds orders that were already recorded.
type OrderLookup interface {
	Get(ctx context.Context, id string) (types.Order, error)
}

// ImportRequest selects the account trades to import.
type ImportRequest struct {
	// Symbol is the ledger symbol, e.g. BTC/ETH. The slash is dropped for Binance.
	Symbol string
	// Since skips trades executed before it. Zero imports from the oldest trade Binance returns.
	Since time.Time
	// Limit caps the number of trades fetched, at most MaxTradesPerRequest.
	Limit int
}

// ImportResult counts what happened to the fetched trades.
type ImportResult struct {
	Fetched int `json:"fetched"`
	Skipped int `json:"skipped"`
	Opened  int `json:"opened"`
	Closed  int `json:"closed"`
	Ignored int `json:"ignored"`
}

// BinanceImporter replays executed Binance trades into the ledger. It never places orders.
type BinanceImporter struct {
	client   BinanceClient
	recorder FillRecorder
	orders   OrderLookup
	logger   *logger.Logger
}

// NewBinanceImporter creates an importer for the account behind cfg.
// If cfg.UseTestnet is true, connects to Binance Testnet (https://testnet.binance.vision/).
// If cfg.BaseURL is set, it takes precedence over UseTestnet.
func NewBinanceImporter(cfg config.BinanceConfig, recorder FillRecorder, orders OrderLookup, log *logger.Logger) (*BinanceImporter, error) {
	if err := cfg.ValidateBinance(); err != nil {
		return nil, err
	}

	if cfg.UseTestnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(cfg.ApiKey, cfg.SecretKey)

	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return newBinanceImporterWithClient(&realBinanceClient{client: client}, recorder, orders, log), nil
}

// newBinanceImporterWithClient creates an importer with a custom client.
// This is used for testing with mock clients.
func newBinanceImporterWithClient(client BinanceClient, recorder FillRecorder, orders OrderLookup, log *logger.Logger) *BinanceImporter {
	return &BinanceImporter{
		client:   client,
		recorder: recorder,
		orders:   orders,
		logger:   log.Named("binance"),
	}
}

// Import fetches the account trades of a symbol and feeds each one to the lifecycle engine
// in execution order. Trades imported before are skipped.
func (b *BinanceImporter) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	var result ImportResult

	if req.Symbol == "" {
		return result, errors.New(errors.ErrCodeInvalidParameter, "symbol is required to import trades")
	}

	if req.Limit < 0 || req.Limit > MaxTradesPerRequest {
		return result, errors.Newf(errors.ErrCodeInvalidParameter,
			"limit must be between 0 and %d, got %d", MaxTradesPerRequest, req.Limit)
	}

	tradeService := b.client.NewListTradesService().Symbol(ExchangeSymbol(req.Symbol))

	if req.Limit > 0 {
		tradeService = tradeService.Limit(req.Limit)
	}

	if !req.Since.IsZero() {
		tradeService = tradeService.StartTime(req.Since.UnixMilli())
	}

	trades, err := tradeService.Do(ctx)
	if err != nil {
		return result, errors.Wrap(errors.ErrCodeExchangeFailed, "failed to get trades from Binance", err)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Time == trades[j].Time {
			return trades[i].ID < trades[j].ID
		}

		return trades[i].Time < trades[j].Time
	})

	result.Fetched = len(trades)

	for _, trade := range trades {
		order, err := convertBinanceTradeToOrder(trade, req.Symbol)
		if err != nil {
			return result, err
		}

		seen, err := b.alreadyImported(ctx, order.ID)
		if err != nil {
			return result, err
		}

		if seen {
			result.Skipped++

			continue
		}

		transition, err := b.recorder.OnFilled(ctx, order)
		if err != nil {
			return result, err
		}

		switch transition.Action {
		case lifecycle.ActionOpened:
			result.Opened++
		case lifecycle.ActionClosed:
			result.Closed++
		case lifecycle.ActionIgnored:
			result.Ignored++
		}
	}

	b.logger.Info("Binance trades imported",
		zap.String("symbol", req.Symbol),
		zap.Int("fetched", result.Fetched),
		zap.Int("skipped", result.Skipped),
		zap.Int("opened", result.Opened),
		zap.Int("closed", result.Closed),
		zap.Int("ignored", result.Ignored),
	)

	return result, nil
}

func (b *BinanceImporter) alreadyImported(ctx context.Context, orderID string) (bool, error) {
	_, err := b.orders.Get(ctx, orderID)
	if err == nil {
		return true, nil
	}

	if errors.HasCode(err, errors.ErrCodeDataNotFound) {
		return false, nil
	}

	return false, err
}

// ExchangeSymbol turns a ledger symbol such as BTC/ETH into the Binance symbol BTCETH.
func ExchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// TradeOrderID is the ledger order id of a Binance trade.
func TradeOrderID(exchangeSymbol string, tradeID int64) string {
	return uuid.NewSHA1(tradeNamespace, []byte("binance:"+exchangeSymbol+":"+strconv.FormatInt(tradeID, 10))).String()
}

// convertBinanceTradeToOrder converts a Binance trade to a FILLED market order.
func convertBinanceTradeToOrder(bt *binance.TradeV3, symbol string) (types.Order, error) {
	quantity, err := strconv.ParseFloat(bt.Quantity, 64)
	if err != nil {
		return types.Order{}, errors.Wrapf(errors.ErrCodeExchangeFailed, err, "trade %d has invalid quantity %q", bt.ID, bt.Quantity)
	}

	price, err := strconv.ParseFloat(bt.Price, 64)
	if err != nil {
		return types.Order{}, errors.Wrapf(errors.ErrCodeExchangeFailed, err, "trade %d has invalid price %q", bt.ID, bt.Price)
	}

	side := types.OrderSideSell
	if bt.IsBuyer {
		side = types.OrderSideBuy
	}

	executedAt := time.UnixMilli(bt.Time).UTC()

	order := types.Order{
		ID:          TradeOrderID(ExchangeSymbol(symbol), bt.ID),
		SignalID:    optional.None[string](),
		Symbol:      symbol,
		Type:        types.OrderTypeMarket,
		Side:        side,
		Quantity:    quantity,
		Price:       optional.Some(price),
		Status:      types.OrderStatusFilled,
		SubmittedAt: executedAt,
		FilledAt:    optional.Some(executedAt),
	}

	if err := order.Validate(); err != nil {
		return types.Order{}, errors.Wrapf(errors.ErrCodeExchangeFailed, err, "trade %d is not a valid fill", bt.ID)
	}

	return order, nil
}
