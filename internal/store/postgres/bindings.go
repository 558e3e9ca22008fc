package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"lorebind/internal/store"
)

func (c *Client) UpsertBinding(ctx context.Context, b store.BindingInput) error {
	query := `
INSERT INTO bindings (id, owner_id, book_id, scope, scope_id, display_order, enabled, role)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (owner_id, book_id, scope, scope_id) DO UPDATE SET
    display_order = EXCLUDED.display_order,
    enabled = EXCLUDED.enabled,
    role = EXCLUDED.role
`
	_, err := c.pool.Exec(ctx, query,
		uuid.NewString(),
		b.OwnerID,
		b.BookID,
		string(b.Scope),
		b.ScopeID,
		b.DisplayOrder,
		b.Enabled,
		b.Role,
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
WHERE owner_id = $1 AND scope = $2 AND scope_id = $3
ORDER BY display_order, created_at, id
`, ownerID, string(scope), scopeID)
}

func (c *Client) ListAllBindings(ctx context.Context, ownerID string) ([]store.Binding, error) {
	return c.queryBindings(ctx, `
SELECT `+bindingColumns+` FROM bindings
WHERE owner_id = $1
ORDER BY scope, scope_id, display_order, created_at, id
`, ownerID)
}

func (c *Client) queryBindings(ctx context.Context, query string, args ...any) ([]store.Binding, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bindings: %w", err)
	}
	defer rows.Close()

	var bindings []store.Binding
	for rows.Next() {
		var b store.Binding
		var scope string
		var displayOrder int32
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.BookID, &scope, &b.ScopeID, &displayOrder, &b.Enabled, &b.Role, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}
		b.Scope = store.Scope(scope)
		b.DisplayOrder = int(displayOrder)
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bindings: %w", err)
	}
	return bindings, nil
}
