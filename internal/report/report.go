package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Printer writes analytics results to a terminal or as JSON.
type Printer struct {
	w      io.Writer
	format Format
}

func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// PnLReport is the JSON shape of a total PnL answer.
type PnLReport struct {
	Days     *int    `json:"days"`
	TotalPnL float64 `json:"total_pnl"`
}

func (p *Printer) Trades(trades []types.TradeRecord) error {
	if p.format == FormatJSON {
		return p.json(trades)
	}

	if len(trades) == 0 {
		return p.line(HelpStyle.Render("No closed trades"))
	}

	columns := []table.Column{
		{Title: "Symbol", Width: 10},
		{Title: "Entry", Width: 20},
		{Title: "Exit", Width: 20},
		{Title: "Qty", Width: 10},
		{Title: "Entry Px", Width: 10},
		{Title: "Exit Px", Width: 10},
		{Title: "PnL", Width: 14},
		{Title: "Held", Width: 12},
	}

	rows := make([]table.Row, 0, len(trades))
	for _, trade := range trades {
		rows = append(rows, table.Row{
			trade.Symbol,
			trade.EntryTime.Format(time.DateTime),
			trade.ExitTime.Format(time.DateTime),
			strconv.FormatFloat(trade.Quantity, 'f', -1, 64),
			strconv.FormatFloat(trade.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(trade.ExitPrice, 'f', -1, 64),
			FormatPnL(trade.PnL),
			(time.Duration(trade.DurationSeconds) * time.Second).String(),
		})
	}

	return p.line(renderTable(columns, rows))
}

func (p *Printer) TotalPnL(days optional.Option[int], total float64) error {
	if p.format == FormatJSON {
		return p.json(PnLReport{Days: daysPtr(days), TotalPnL: total})
	}

	return p.line(fmt.Sprintf("%s %s", TitleStyle.Render("Total PnL "+windowLabel(days)+":"), FormatPnL(total)))
}

func (p *Printer) WinLoss(days optional.Option[int], ratio types.WinLossRatio) error {
	if p.format == FormatJSON {
		return p.json(ratio)
	}

	columns := []table.Column{
		{Title: "Wins", Width: 8},
		{Title: "Losses", Width: 8},
		{Title: "Win Ratio", Width: 10},
	}

	rows := []table.Row{{
		strconv.Itoa(ratio.Wins),
		strconv.Itoa(ratio.Losses),
		strconv.FormatFloat(ratio.Ratio, 'f', 3, 64),
	}}

	return p.line(TitleStyle.Render("Win/loss "+windowLabel(days)) + "\n" + renderTable(columns, rows))
}

func (p *Printer) Returns(points []types.ReturnPoint) error {
	if p.format == FormatJSON {
		return p.json(points)
	}

	if len(points) == 0 {
		return p.line(HelpStyle.Render("No closed trades"))
	}

	columns := []table.Column{
		{Title: "Exit", Width: 20},
		{Title: "Cumulative PnL", Width: 16},
	}

	rows := make([]table.Row, 0, len(points))
	for _, point := range points {
		rows = append(rows, table.Row{
			point.Time.Format(time.DateTime),
			strconv.FormatFloat(point.CumulativePnL, 'f', 2, 64),
		})
	}

	return p.line(renderTable(columns, rows))
}

func (p *Printer) Summary(summary types.Summary) error {
	if p.format == FormatJSON {
		return p.json(summary)
	}

	days := optional.None[int]()
	if summary.Days != nil {
		days = optional.Some(*summary.Days)
	}

	if err := p.line(HelpStyle.Render("Generated " + summary.GeneratedAt.Format(time.RFC3339))); err != nil {
		return err
	}

	if err := p.TotalPnL(days, summary.TotalPnL); err != nil {
		return err
	}

	if err := p.WinLoss(days, summary.WinLoss); err != nil {
		return err
	}

	if err := p.line(TitleStyle.Render("Trades")); err != nil {
		return err
	}

	return p.Trades(summary.Trades)
}

// Value writes any other result, as indented JSON in JSON mode and with %v otherwise.
func (p *Printer) Value(v any) error {
	if p.format == FormatJSON {
		return p.json(v)
	}

	return p.line(fmt.Sprintf("%v", v))
}

func (p *Printer) json(v any) error {
	encoder := json.NewEncoder(p.w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to encode report", err)
	}

	return nil
}

func (p *Printer) line(s string) error {
	if _, err := fmt.Fprintln(p.w, s); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write report", err)
	}

	return nil
}

func windowLabel(days optional.Option[int]) string {
	if days.IsNone() {
		return "(all time)"
	}

	return fmt.Sprintf("(last %d days)", days.Unwrap())
}

func daysPtr(days optional.Option[int]) *int {
	if days.IsNone() {
		return nil
	}

	n := days.Unwrap()

	return &n
}
