package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

var exportOrder = map[string]string{
	database.TableSignals:   "signal_datetime",
	database.TableOrders:    "submission_datetime",
	database.TablePositions: "entry_datetime",
}

// Export copies the three ledger tables into <dir>/<table>.parquet and returns the written paths.
// Only DuckDB can write parquet files.
func Export(ctx context.Context, exec database.Executor, dir string) ([]string, error) {
	if exec.Dialect().Name != database.DialectDuckDB {
		return nil, errors.Newf(errors.ErrCodeUnsupportedOperation,
			"parquet export needs a duckdb database, connected to %s", exec.Dialect().Name)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeExportFailed, err, "failed to create export directory %s", dir)
	}

	ctx, cancel := exec.Bound(ctx)
	defer cancel()

	paths := make([]string, 0, len(exportOrder))

	for _, table := range []string{database.TableSignals, database.TableOrders, database.TablePositions} {
		path := filepath.Join(dir, table+".parquet")

		// COPY does not accept a bound parameter for the target file
		statement := fmt.Sprintf("COPY (SELECT * FROM %s ORDER BY %s ASC) TO '%s' (FORMAT PARQUET)",
			table, exportOrder[table], strings.ReplaceAll(path, "'", "''"))

		if _, err := exec.Runner().ExecContext(ctx, statement); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeExportFailed, err, "failed to export %s", table)
		}

		paths = append(paths, path)
	}

	return paths, nil
}
