package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom streams rows into table with COPY. table may be schema-qualified.
// Every row must carry one value per column; a short or long row is rejected
// before anything is sent so a bad metric batch never half-loads.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := checkRowWidth(table, columns, rows); err != nil {
		return 0, err
	}

	n, err := pool.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

func checkRowWidth(table string, columns []string, rows [][]any) error {
	for i, r := range rows {
		if len(r) != len(columns) {
			return eris.Errorf("db: %s row %d has %d values for %d columns", table, i, len(r), len(columns))
		}
	}
	return nil
}

// identifier splits "schema.table" into a pgx identifier.
func identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
