package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"go.uber.org/zap"
)

const (
	TableSignals   = "signals"
	TableOrders    = "orders"
	TablePositions = "positions"
)

const openPositionIndex = "uq_positions_open_symbol"

type index struct {
	name    string
	table   string
	columns string
}

var secondaryIndexes = []index{
	{name: "idx_signals_symbol_datetime", table: TableSignals, columns: "stock_symbol, signal_datetime"},
	{name: "idx_orders_symbol_status", table: TableOrders, columns: "stock_symbol, status"},
	{name: "idx_positions_symbol_status", table: TablePositions, columns: "stock_symbol, status"},
	{name: "idx_positions_exit_datetime", table: TablePositions, columns: "exit_datetime"},
}

// SchemaStatements returns the DDL that creates the three ledger tables for a dialect.
// Every statement is idempotent.
func SchemaStatements(d Dialect) []string {
	signals := []string{
		fmt.Sprintf("id %s PRIMARY KEY", d.IDType),
		fmt.Sprintf("stock_symbol %s NOT NULL", d.SymbolType),
		fmt.Sprintf("signal_type %s NOT NULL", d.EnumType),
		fmt.Sprintf("confidence %s", d.FloatType),
		fmt.Sprintf("signal_datetime %s NOT NULL", d.TimeType),
	}

	orders := []string{
		fmt.Sprintf("id %s PRIMARY KEY", d.IDType),
		fmt.Sprintf("signal_id %s", d.IDType),
		fmt.Sprintf("stock_symbol %s NOT NULL", d.SymbolType),
		fmt.Sprintf("order_type %s NOT NULL", d.EnumType),
		fmt.Sprintf("side %s NOT NULL", d.EnumType),
		fmt.Sprintf("quantity %s NOT NULL", d.FloatType),
		fmt.Sprintf("price %s", d.FloatType),
		fmt.Sprintf("status %s NOT NULL", d.EnumType),
		fmt.Sprintf("submission_datetime %s NOT NULL", d.TimeType),
		fmt.Sprintf("filled_datetime %s", d.TimeType),
	}

	positions := []string{
		fmt.Sprintf("id %s PRIMARY KEY", d.IDType),
		fmt.Sprintf("stock_symbol %s NOT NULL", d.SymbolType),
		fmt.Sprintf("entry_order_id %s NOT NULL UNIQUE", d.IDType),
		fmt.Sprintf("exit_order_id %s", d.IDType),
		fmt.Sprintf("quantity %s NOT NULL", d.FloatType),
		fmt.Sprintf("entry_price %s NOT NULL", d.FloatType),
		fmt.Sprintf("exit_price %s", d.FloatType),
		fmt.Sprintf("entry_datetime %s NOT NULL", d.TimeType),
		fmt.Sprintf("exit_datetime %s", d.TimeType),
		fmt.Sprintf("status %s NOT NULL", d.EnumType),
	}

	// exit_order_id is written by UPDATE, which DuckDB refuses on indexed columns
	if d.SecondaryIndexes {
		positions = append(positions, "UNIQUE (exit_order_id)")
	}

	if d.ForeignKeys {
		positions = append(positions,
			fmt.Sprintf("FOREIGN KEY (entry_order_id) REFERENCES %s(id)", TableOrders),
			fmt.Sprintf("FOREIGN KEY (exit_order_id) REFERENCES %s(id)", TableOrders),
		)
	}

	columns := map[string][]string{
		TableSignals:   signals,
		TableOrders:    orders,
		TablePositions: positions,
	}

	if d.SecondaryIndexes && d.InlineIndexes {
		for _, idx := range secondaryIndexes {
			columns[idx.table] = append(columns[idx.table], fmt.Sprintf("INDEX %s (%s)", idx.name, idx.columns))
		}
	}

	statements := make([]string, 0, 4+len(secondaryIndexes))
	for _, table := range []string{TableSignals, TableOrders, TablePositions} {
		statements = append(statements, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
			table, strings.Join(columns[table], ",\n\t")))
	}

	if d.SecondaryIndexes && !d.InlineIndexes {
		for _, idx := range secondaryIndexes {
			statements = append(statements,
				fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns))
		}
	}

	// at most one OPEN position per symbol
	if d.PartialIndexes {
		statements = append(statements, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (stock_symbol) WHERE status = '%s'",
			openPositionIndex, TablePositions, types.PositionStatusOpen))
	}

	return statements
}

// CreateSchema creates any missing ledger table. Existing tables and rows are left alone.
func (g *Gateway) CreateSchema(ctx context.Context) error {
	ctx, cancel := g.Bound(ctx)
	defer cancel()

	for _, statement := range SchemaStatements(g.dialect) {
		if _, err := g.db.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(errors.ErrCodeSchemaFailed, "failed to create schema", err)
		}
	}

	g.logger.Info("Schema ready", zap.String("dialect", string(g.dialect.Name)))

	return nil
}

// DropSchema removes the ledger tables and every row in them. It is refused unless the
// gateway was opened with WithDestructiveOperations.
func (g *Gateway) DropSchema(ctx context.Context) error {
	if !g.allowDestructive {
		return errors.New(errors.ErrCodeDestructiveNotAllowed,
			"dropping the schema requires a gateway opened with destructive operations enabled")
	}

	ctx, cancel := g.Bound(ctx)
	defer cancel()

	// positions reference orders
	for _, table := range []string{TablePositions, TableOrders, TableSignals} {
		if _, err := g.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return errors.Wrapf(errors.ErrCodeSchemaFailed, err, "failed to drop table %s", table)
		}
	}

	g.logger.Warn("Schema dropped", zap.String("dialect", string(g.dialect.Name)))

	return nil
}
