package analytics

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reporter answers the performance questions asked by the dashboard and the CLI.
// Every method takes an optional trailing window in days; None means the full history.
type Reporter interface {
	TradeHistory(ctx context.Context, days optional.Option[int]) ([]types.TradeRecord, error)
	TotalPnL(ctx context.Context, days optional.Option[int]) (float64, error)
	WinLossRatio(ctx context.Context, days optional.Option[int]) (types.WinLossRatio, error)
	CumulativeReturns(ctx context.Context, days optional.Option[int]) ([]types.ReturnPoint, error)
	Summary(ctx context.Context, days optional.Option[int]) (types.Summary, error)
}

// Engine runs the analytics queries over closed positions. Open positions are never reported.
type Engine struct {
	exec   database.Executor
	now    func() time.Time
	logger *logger.Logger
}

type Option func(*Engine)

// WithClock replaces the clock the trailing window is measured from.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l.Named("analytics")
	}
}

func NewEngine(exec database.Executor, opts ...Option) *Engine {
	e := &Engine{
		exec:   exec,
		now:    time.Now,
		logger: logger.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// closedPositions selects closed positions joined with their entry (e) and exit (x) orders,
// restricted to the window.
func (e *Engine) closedPositions(days optional.Option[int], columns ...string) (squirrel.SelectBuilder, error) {
	builder := e.exec.Builder().
		Select(columns...).
		From(database.TablePositions + " p").
		Join(database.TableOrders + " e ON e.id = p.entry_order_id").
		Join(database.TableOrders + " x ON x.id = p.exit_order_id").
		Where(squirrel.Eq{"p.status": string(types.PositionStatusClosed)})

	if days.IsSome() {
		n := days.Unwrap()
		if n < 0 {
			return builder, errors.Newf(errors.ErrCodeInvalidWindow, "window must not be negative, got %d days", n)
		}

		since := e.now().UTC().Add(-time.Duration(n) * 24 * time.Hour)
		builder = builder.Where(squirrel.GtOrEq{"p.exit_datetime": since})
	}

	return builder, nil
}

// TradeHistory lists closed positions in the window, oldest exit first.
func (e *Engine) TradeHistory(ctx context.Context, days optional.Option[int]) ([]types.TradeRecord, error) {
	builder, err := e.closedPositions(days,
		"p.id", "p.stock_symbol", "p.entry_datetime", "p.exit_datetime", "p.quantity", "e.price", "x.price")
	if err != nil {
		return nil, err
	}

	query, args, err := builder.OrderBy("p.exit_datetime ASC", "p.id ASC").ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trade history query", err)
	}

	ctx, cancel := e.exec.Bound(ctx)
	defer cancel()

	rows, err := e.exec.Runner().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to load trade history", err)
	}
	defer rows.Close()

	records := []types.TradeRecord{}

	for rows.Next() {
		var (
			record     types.TradeRecord
			entryPrice sql.NullFloat64
			exitPrice  sql.NullFloat64
		)

		err := rows.Scan(&record.PositionID, &record.Symbol, &record.EntryTime, &record.ExitTime,
			&record.Quantity, &entryPrice, &exitPrice)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade", err)
		}

		record.EntryTime = record.EntryTime.UTC()
		record.ExitTime = record.ExitTime.UTC()
		record.EntryPrice = entryPrice.Float64
		record.ExitPrice = exitPrice.Float64

		if entryPrice.Valid && exitPrice.Valid {
			record.PnL = types.CalculatePnL(record.EntryPrice, record.ExitPrice, record.Quantity)
		}

		record.DurationSeconds = record.ExitTime.Sub(record.EntryTime).Seconds()
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to load trade history", err)
	}

	return records, nil
}

// TotalPnL sums the realized PnL of closed positions in the window. An empty window sums to 0.
func (e *Engine) TotalPnL(ctx context.Context, days optional.Option[int]) (float64, error) {
	trades, err := e.TradeHistory(ctx, days)
	if err != nil {
		return 0, err
	}

	return Total(trades), nil
}

// Total sums the PnL of trades in decimal arithmetic.
func Total(trades []types.TradeRecord) float64 {
	total := decimal.Zero
	for _, trade := range trades {
		total = total.Add(decimal.NewFromFloat(trade.PnL))
	}

	sum, _ := total.Float64()

	return sum
}

// WinLossRatio counts winning and losing positions in the window. Break-even positions count as neither.
func (e *Engine) WinLossRatio(ctx context.Context, days optional.Option[int]) (types.WinLossRatio, error) {
	trades, err := e.TradeHistory(ctx, days)
	if err != nil {
		return types.WinLossRatio{}, err
	}

	return CountWinLoss(trades), nil
}

// CountWinLoss counts winning and losing trades.
func CountWinLoss(trades []types.TradeRecord) types.WinLossRatio {
	var wins, losses int

	for _, trade := range trades {
		switch {
		case trade.PnL > 0:
			wins++
		case trade.PnL < 0:
			losses++
		}
	}

	return NewWinLossRatio(wins, losses)
}

// NewWinLossRatio computes wins/(wins+losses) rounded to 3 decimals, or 0 without decided trades.
func NewWinLossRatio(wins, losses int) types.WinLossRatio {
	ratio := 0.0

	if total := wins + losses; total > 0 {
		ratio, _ = decimal.NewFromInt(int64(wins)).
			DivRound(decimal.NewFromInt(int64(total)), 3).
			Float64()
	}

	return types.WinLossRatio{
		Wins:   wins,
		Losses: losses,
		Ratio:  ratio,
	}
}

// CumulativeReturns returns the running realized PnL after each close in the window, oldest first.
// Each point is rounded to 2 decimals; the running sum itself is kept exact.
func (e *Engine) CumulativeReturns(ctx context.Context, days optional.Option[int]) ([]types.ReturnPoint, error) {
	trades, err := e.TradeHistory(ctx, days)
	if err != nil {
		return nil, err
	}

	return Accumulate(trades), nil
}

// Accumulate folds trades, already ordered by exit time, into cumulative return points.
func Accumulate(trades []types.TradeRecord) []types.ReturnPoint {
	points := make([]types.ReturnPoint, 0, len(trades))
	total := decimal.Zero

	for _, trade := range trades {
		total = total.Add(decimal.NewFromFloat(trade.PnL))
		rounded, _ := total.Round(2).Float64()

		points = append(points, types.ReturnPoint{
			Time:          trade.ExitTime,
			CumulativePnL: rounded,
		})
	}

	return points
}

// Summary runs every report over the same window. All results come from one read of the trade
// history, so they agree with each other even while positions are being closed.
func (e *Engine) Summary(ctx context.Context, days optional.Option[int]) (types.Summary, error) {
	trades, err := e.TradeHistory(ctx, days)
	if err != nil {
		return types.Summary{}, err
	}

	total := Total(trades)
	winLoss := CountWinLoss(trades)

	summary := types.Summary{
		Days:              nil,
		GeneratedAt:       e.now().UTC(),
		TotalPnL:          total,
		WinLoss:           winLoss,
		CumulativeReturns: Accumulate(trades),
		Trades:            trades,
	}

	if days.IsSome() {
		n := days.Unwrap()
		summary.Days = &n
	}

	e.logger.Debug("Summary computed",
		zap.Int("trades", len(trades)),
		zap.Float64("total_pnl", total),
		zap.Float64("win_ratio", winLoss.Ratio),
	)

	return summary, nil
}

var _ Reporter = (*Engine)(nil)
