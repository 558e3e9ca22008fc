package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"lorebind/internal/store"
)

func (c *Client) ListTimedEffects(ctx context.Context, ownerID, chatID, branchID string) ([]store.TimedEffect, error) {
	rows, err := c.pool.Query(ctx, `
SELECT id, owner_id, chat_id, branch_id, entry_hash, effect_type, start_index, end_index, protected
FROM timed_effects
WHERE owner_id = $1 AND chat_id = $2 AND branch_id = $3
ORDER BY entry_hash, effect_type
`, ownerID, chatID, branchID)
	if err != nil {
		return nil, fmt.Errorf("listing timed effects: %w", err)
	}
	defer rows.Close()

	var effects []store.TimedEffect
	for rows.Next() {
		var e store.TimedEffect
		var effectType string
		var start, end int32
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.ChatID, &e.BranchID, &e.EntryHash, &effectType, &start, &end, &e.Protected); err != nil {
			return nil, fmt.Errorf("scanning timed effect: %w", err)
		}
		e.EffectType = store.EffectType(effectType)
		e.StartMessageIndex = int(start)
		e.EndMessageIndex = int(end)
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timed effects: %w", err)
	}
	return effects, nil
}

func (c *Client) DeleteTimedEffects(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.pool.Exec(ctx, "DELETE FROM timed_effects WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("deleting timed effects: %w", err)
	}
	return nil
}

func (c *Client) UpsertTimedEffect(ctx context.Context, e store.TimedEffectInput) error {
	_, err := c.pool.Exec(ctx, `
INSERT INTO timed_effects (id, owner_id, chat_id, branch_id, entry_hash, effect_type, start_index, end_index, protected)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (owner_id, chat_id, branch_id, entry_hash, effect_type) DO UPDATE SET
    start_index = EXCLUDED.start_index,
    end_index = EXCLUDED.end_index,
    protected = EXCLUDED.protected
`,
		uuid.NewString(),
		e.OwnerID,
		e.ChatID,
		e.BranchID,
		e.EntryHash,
		string(e.EffectType),
		e.StartMessageIndex,
		e.EndMessageIndex,
		e.Protected,
	)
	if err != nil {
		return fmt.Errorf("upserting timed effect: %w", err)
	}
	return nil
}
