package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lorebind/internal/store"
)

func (c *Client) GetSettings(ctx context.Context, ownerID string) (map[string]any, error) {
	var payload []byte
	err := c.pool.QueryRow(ctx, "SELECT payload FROM settings WHERE owner_id = $1", ownerID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}

	settings := map[string]any{}
	if err := json.Unmarshal(payload, &settings); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	return settings, nil
}

func (c *Client) PutSettings(ctx context.Context, ownerID string, settings map[string]any) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	_, err = c.pool.Exec(ctx, `
INSERT INTO settings (owner_id, payload) VALUES ($1, $2::jsonb)
ON CONFLICT (owner_id) DO UPDATE SET payload = EXCLUDED.payload
`, ownerID, string(payload))
	if err != nil {
		return fmt.Errorf("putting settings: %w", err)
	}
	return nil
}

func (c *Client) UpsertChat(ctx context.Context, chat store.Chat) error {
	_, err := c.pool.Exec(ctx, `
INSERT INTO chats (id, owner_id, persona_id, entity_profile_id) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    owner_id = EXCLUDED.owner_id,
    persona_id = EXCLUDED.persona_id,
    entity_profile_id = EXCLUDED.entity_profile_id
`, chat.ID, chat.OwnerID, chat.PersonaID, chat.EntityProfileID)
	if err != nil {
		return fmt.Errorf("upserting chat: %w", err)
	}
	return nil
}

func (c *Client) GetChat(ctx context.Context, ownerID, chatID string) (*store.Chat, error) {
	var chat store.Chat
	err := c.pool.QueryRow(ctx,
		"SELECT id, owner_id, persona_id, entity_profile_id FROM chats WHERE owner_id = $1 AND id = $2",
		ownerID, chatID,
	).Scan(&chat.ID, &chat.OwnerID, &chat.PersonaID, &chat.EntityProfileID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting chat: %w", err)
	}
	return &chat, nil
}

func (c *Client) UpsertBranch(ctx context.Context, b store.Branch) error {
	_, err := c.pool.Exec(ctx, `
INSERT INTO branches (chat_id, id, name) VALUES ($1, $2, $3)
ON CONFLICT (chat_id, id) DO UPDATE SET name = EXCLUDED.name
`, b.ChatID, b.ID, b.Name)
	if err != nil {
		return fmt.Errorf("upserting branch: %w", err)
	}
	return nil
}

func (c *Client) GetBranch(ctx context.Context, chatID, branchID string) (*store.Branch, error) {
	var b store.Branch
	err := c.pool.QueryRow(ctx,
		"SELECT chat_id, id, name FROM branches WHERE chat_id = $1 AND id = $2",
		chatID, branchID,
	).Scan(&b.ChatID, &b.ID, &b.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting branch: %w", err)
	}
	return &b, nil
}
