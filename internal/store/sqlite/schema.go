package sqlite

import (
	"context"
	"fmt"
	"strings"
)

const ddl = `
CREATE TABLE IF NOT EXISTS books (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	name            TEXT NOT NULL,
	name_normalized TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	source_hash     TEXT NOT NULL DEFAULT '',
	updated_at      INTEGER NOT NULL,
	CONSTRAINT uq_book_owner_name UNIQUE (owner_id, name_normalized)
);

CREATE TABLE IF NOT EXISTS entries (
	book_id     TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	uid         INTEGER NOT NULL,
	hash        TEXT NOT NULL,
	source_file TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (book_id, uid)
);

CREATE TABLE IF NOT EXISTS bindings (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	book_id       TEXT NOT NULL,
	scope         TEXT NOT NULL,
	scope_id      TEXT NOT NULL DEFAULT '',
	display_order INTEGER NOT NULL DEFAULT 0,
	enabled       INTEGER NOT NULL DEFAULT 1,
	role          TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	CONSTRAINT uq_binding UNIQUE (owner_id, book_id, scope, scope_id)
);

CREATE TABLE IF NOT EXISTS settings (
	owner_id TEXT PRIMARY KEY,
	payload  TEXT NOT NULL DEFAULT '{}'
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
	protected   INTEGER NOT NULL DEFAULT 0,
	CONSTRAINT uq_timed_effect UNIQUE (owner_id, chat_id, branch_id, entry_hash, effect_type)
);

CREATE INDEX IF NOT EXISTS idx_books_owner ON books (owner_id);
CREATE INDEX IF NOT EXISTS idx_bindings_scope ON bindings (owner_id, scope, scope_id);
CREATE INDEX IF NOT EXISTS idx_bindings_book ON bindings (book_id);
CREATE INDEX IF NOT EXISTS idx_timed_effects_branch ON timed_effects (owner_id, chat_id, branch_id);
`

func (c *Client) EnsureSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}
	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
