package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	// A multi-statement Exec runs in one implicit transaction.
	ddl := `
CREATE TABLE IF NOT EXISTS books (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    name            TEXT NOT NULL,
    name_normalized TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    source_hash     TEXT NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_book_owner_name UNIQUE (owner_id, name_normalized)
);

CREATE TABLE IF NOT EXISTS entries (
    book_id     TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    uid         INTEGER NOT NULL,
    hash        TEXT NOT NULL,
    source_file TEXT NOT NULL DEFAULT '',
    payload     JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (book_id, uid)
);

CREATE TABLE IF NOT EXISTS bindings (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    book_id       TEXT NOT NULL,
    scope         TEXT NOT NULL,
    scope_id      TEXT NOT NULL DEFAULT '',
    display_order INTEGER NOT NULL DEFAULT 0,
    enabled       BOOLEAN NOT NULL DEFAULT TRUE,
    role          TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    CONSTRAINT uq_binding UNIQUE (owner_id, book_id, scope, scope_id)
);

CREATE TABLE IF NOT EXISTS settings (
    owner_id TEXT PRIMARY KEY,
    payload  JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS chats (
    id                TEXT PRIMARY KEY,
    owner_id          TEXT NOT NULL,
    persona_id        TEXT NOT NULL DEFAULT '',
    entity_profile_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS branches (
    chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
    id      TEXT NOT NULL,
    name    TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (chat_id, id)
);

CREATE TABLE IF NOT EXISTS timed_effects (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    chat_id     TEXT NOT NULL,
    branch_id   TEXT NOT NULL,
    entry_hash  TEXT NOT NULL,
    effect_type TEXT NOT NULL,
    start_index INTEGER NOT NULL,
    end_index   INTEGER NOT NULL,
    protected   BOOLEAN NOT NULL DEFAULT FALSE,
    CONSTRAINT uq_timed_effect UNIQUE (owner_id, chat_id, branch_id, entry_hash, effect_type)
);

CREATE INDEX IF NOT EXISTS idx_books_owner ON books (owner_id);
CREATE INDEX IF NOT EXISTS idx_bindings_scope ON bindings (owner_id, scope, scope_id);
CREATE INDEX IF NOT EXISTS idx_bindings_book ON bindings (book_id);
CREATE INDEX IF NOT EXISTS idx_timed_effects_branch ON timed_effects (owner_id, chat_id, branch_id);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
