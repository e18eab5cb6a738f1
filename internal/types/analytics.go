package types

import "time"

// TradeRecord is one closed round trip as reported by the trade history.
type TradeRecord struct {
	PositionID string    `yaml:"position_id" json:"position_id"`
	Symbol     string    `yaml:"symbol" json:"symbol"`
	EntryTime  time.Time `yaml:"entry_time" json:"entry_time"`
	ExitTime   time.Time `yaml:"exit_time" json:"exit_time"`
	Quantity   float64   `yaml:"quantity" json:"quantity"`
	EntryPrice float64   `yaml:"entry_price" json:"entry_price"`
	ExitPrice  float64   `yaml:"exit_price" json:"exit_price"`
	// PnL is computed from the entry and exit order prices.
	PnL             float64 `yaml:"pnl" json:"pnl"`
	DurationSeconds float64 `yaml:"duration_seconds" json:"duration_seconds"`
}

// WinLossRatio counts profitable and losing closed positions.
// Break-even positions count as neither.
type WinLossRatio struct {
	Wins   int `yaml:"wins" json:"wins"`
	Losses int `yaml:"losses" json:"losses"`
	// Ratio is wins/(wins+losses) rounded to 3 decimals, 0 when there are no decided trades.
	Ratio float64 `yaml:"ratio" json:"ratio"`
}

// ReturnPoint is the running realized PnL after a position closed.
type ReturnPoint struct {
	Time          time.Time `yaml:"time" json:"time"`
	CumulativePnL float64   `yaml:"cumulative_pnl" json:"cumulative_pnl"`
}

// Summary bundles every analytics result over the same window.
type Summary struct {
	// Days is the trailing window in days, nil for the full history.
	Days              *int          `yaml:"days" json:"days"`
	GeneratedAt       time.Time     `yaml:"generated_at" json:"generated_at"`
	TotalPnL          float64       `yaml:"total_pnl" json:"total_pnl"`
	WinLoss           WinLossRatio  `yaml:"win_loss" json:"win_loss"`
	CumulativeReturns []ReturnPoint `yaml:"cumulative_returns" json:"cumulative_returns"`
	Trades            []TradeRecord `yaml:"trades" json:"trades"`
}
