package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lorebind/internal/store"
)

func (c *Client) UpsertBinding(ctx context.Context, b store.BindingInput) error {
	query := `
	INSERT INTO bindings (id, owner_id, book_id, scope, scope_id, display_order, enabled, role, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_id, book_id, scope, scope_id) DO UPDATE SET
		display_order = excluded.display_order,
		enabled = excluded.enabled,
		role = excluded.role
	`

	_, err := c.db.ExecContext(ctx, query,
		uuid.NewString(),
		b.OwnerID,
		b.BookID,
		string(b.Scope),
		b.ScopeID,
		b.DisplayOrder,
		b.Enabled,
		b.Role,
		c.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upserting binding: %w", err)
	}
	return nil
}

const bindingColumns = "id, owner_id, book_id, scope, scope_id, display_order, enabled, role, created_at"

func (c *Client) ListBindings(ctx context.Context, ownerID string, scope store.Scope, scopeID string) ([]store.Binding, error) {
	return c.queryBindings(ctx, `
	SELECT `+bindingColumns+` FROM bindings
	WHERE owner_id = ? AND scope = ? AND scope_id = ?
	ORDER BY display_order, created_at, id
	`, ownerID, string(scope), scopeID)
}

func (c *Client) ListAllBindings(ctx context.Context, ownerID string) ([]store.Binding, error) {
	return c.queryBindings(ctx, `
	SELECT `+bindingColumns+` FROM bindings
	WHERE owner_id = ?
	ORDER BY scope, scope_id, display_order, created_at, id
	`, ownerID)
}

func (c *Client) queryBindings(ctx context.Context, query string, args ...any) ([]store.Binding, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bindings: %w", err)
	}
	defer rows.Close()

	var bindings []store.Binding
	for rows.Next() {
		var b store.Binding
		var scope string
		var created int64
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.BookID, &scope, &b.ScopeID, &b.DisplayOrder, &b.Enabled, &b.Role, &created); err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}
		b.Scope = store.Scope(scope)
		b.CreatedAt = time.Unix(0, created).UTC()
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bindings: %w", err)
	}
	return bindings, nil
}
