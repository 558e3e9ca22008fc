package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lorebind/internal/store"
)

func (c *Client) ListTimedEffects(ctx context.Context, ownerID, chatID, branchID string) ([]store.TimedEffect, error) {
	rows, err := c.db.QueryContext(ctx, `
	SELECT id, owner_id, chat_id, branch_id, entry_hash, effect_type, start_index, end_index, protected
	FROM timed_effects
	WHERE owner_id = ? AND chat_id = ? AND branch_id = ?
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
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.ChatID, &e.BranchID, &e.EntryHash, &effectType,
			&e.StartMessageIndex, &e.EndMessageIndex, &e.Protected); err != nil {
			return nil, fmt.Errorf("scanning timed effect: %w", err)
		}
		e.EffectType = store.EffectType(effectType)
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
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM timed_effects WHERE id IN (%s)", strings.Join(placeholders, ", "))
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting timed effects: %w", err)
	}
	return nil
}

func (c *Client) UpsertTimedEffect(ctx context.Context, e store.TimedEffectInput) error {
	_, err := c.db.ExecContext(ctx, `
	INSERT INTO timed_effects (id, owner_id, chat_id, branch_id, entry_hash, effect_type, start_index, end_index, protected)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_id, chat_id, branch_id, entry_hash, effect_type) DO UPDATE SET
		start_index = excluded.start_index,
		end_index = excluded.end_index,
		protected = excluded.protected
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
