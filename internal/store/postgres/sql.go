package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lorebind/internal/store"
)

// RunSQL runs a read-only ad-hoc query inside a read-only transaction.
// Numeric parameter keys bind to $1, $2 ...; other keys bind to @name. The two
// styles cannot be mixed in one query.
func (c *Client) RunSQL(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if err := store.CheckReadOnly(query); err != nil {
		return nil, err
	}
	positional, named, err := store.QueryParams(params)
	if err != nil {
		return nil, err
	}
	var args []any
	switch {
	case len(named) > 0 && len(positional) > 0:
		return nil, fmt.Errorf("cannot mix positional and named parameters")
	case len(named) > 0:
		args = []any{pgx.NamedArgs(named)}
	default:
		args = positional
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("running sql: %w", err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collecting sql rows: %w", err)
	}
	if results == nil {
		results = []map[string]any{}
	}
	return results, nil
}
