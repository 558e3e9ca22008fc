package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lorebind/internal/store"
)

func (c *Client) UpsertBook(ctx context.Context, b store.BookInput) (string, error) {
	query := `
INSERT INTO books (id, owner_id, name, name_normalized, description, source_hash, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (owner_id, name_normalized) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    source_hash = EXCLUDED.source_hash,
    updated_at = now()
RETURNING id
`
	var id string
	err := c.pool.QueryRow(ctx, query,
		uuid.NewString(),
		b.OwnerID,
		b.Name,
		store.NormalizeName(b.Name),
		b.Description,
		b.SourceHash,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting book: %w", err)
	}
	return id, nil
}

const bookColumns = `
    b.id, b.owner_id, b.name, b.description, b.source_hash, b.updated_at,
    (SELECT COUNT(*) FROM entries e WHERE e.book_id = b.id)
`

func (c *Client) GetBook(ctx context.Context, ownerID, bookID string) (*store.Book, error) {
	row := c.pool.QueryRow(ctx,
		"SELECT "+bookColumns+" FROM books b WHERE b.owner_id = $1 AND b.id = $2",
		ownerID, bookID,
	)
	book, err := scanBook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	return book, nil
}

func (c *Client) ListBooks(ctx context.Context, ownerID string) ([]store.Book, error) {
	rows, err := c.pool.Query(ctx,
		"SELECT "+bookColumns+" FROM books b WHERE b.owner_id = $1 ORDER BY b.name_normalized",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []store.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating books: %w", err)
	}
	return books, nil
}

func scanBook(row pgx.Row) (*store.Book, error) {
	var b store.Book
	var count int64
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Description, &b.SourceHash, &b.UpdatedAt, &count); err != nil {
		return nil, err
	}
	b.EntryCount = int(count)
	return &b, nil
}

// GetBookHashes maps normalized book names to their last ingested source hash.
func (c *Client) GetBookHashes(ctx context.Context, ownerID string) (map[string]string, error) {
	rows, err := c.pool.Query(ctx,
		"SELECT name_normalized, source_hash FROM books WHERE owner_id = $1",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query book hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, fmt.Errorf("scanning book hash: %w", err)
		}
		hashes[name] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating book hashes: %w", err)
	}
	return hashes, nil
}

// RemoveStaleBooks deletes the owner's books whose names are not in
// currentNames, along with their entries and bindings. An empty list removes
// nothing.
func (c *Client) RemoveStaleBooks(ctx context.Context, ownerID string, currentNames []string) (int64, error) {
	if len(currentNames) == 0 {
		return 0, nil
	}
	names := make([]string, len(currentNames))
	for i, name := range currentNames {
		names[i] = store.NormalizeName(name)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stale := "SELECT id FROM books WHERE owner_id = $1 AND NOT (name_normalized = ANY($2))"
	if _, err := tx.Exec(ctx, "DELETE FROM bindings WHERE book_id IN ("+stale+")", ownerID, names); err != nil {
		return 0, fmt.Errorf("removing stale bindings: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM books WHERE id IN ("+stale+")", ownerID, names)
	if err != nil {
		return 0, fmt.Errorf("removing stale books: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing stale book removal: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (c *Client) ReplaceEntries(ctx context.Context, bookID string, entries []store.EntryRecord) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM entries WHERE book_id = $1", bookID); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshaling entry %d: %w", e.UID, err)
		}
		batch.Queue(
			"INSERT INTO entries (book_id, uid, hash, source_file, payload) VALUES ($1, $2, $3, $4, $5::jsonb)",
			bookID, e.UID, e.Hash, e.SourceFile, string(payload),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing entries: %w", err)
	}
	return nil
}

func (c *Client) ListEntries(ctx context.Context, bookID string) ([]store.EntryRecord, error) {
	rows, err := c.pool.Query(ctx,
		"SELECT book_id, uid, hash, source_file, payload FROM entries WHERE book_id = $1 ORDER BY uid",
		bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []store.EntryRecord
	for rows.Next() {
		var e store.EntryRecord
		var payload []byte
		if err := rows.Scan(&e.BookID, &e.UID, &e.Hash, &e.SourceFile, &payload); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling entry %d: %w", e.UID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}
