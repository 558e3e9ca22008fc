package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lorebind/internal/store"
)

func (c *Client) UpsertBook(ctx context.Context, b store.BookInput) (string, error) {
	query := `
	INSERT INTO books (id, owner_id, name, name_normalized, description, source_hash, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_id, name_normalized) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		source_hash = excluded.source_hash,
		updated_at = excluded.updated_at
	RETURNING id
	`

	var id string
	err := c.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		b.OwnerID,
		b.Name,
		store.NormalizeName(b.Name),
		b.Description,
		b.SourceHash,
		c.timestamp(),
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
	row := c.db.QueryRowContext(ctx,
		"SELECT "+bookColumns+" FROM books b WHERE b.owner_id = ? AND b.id = ?",
		ownerID, bookID,
	)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	return book, nil
}

func (c *Client) ListBooks(ctx context.Context, ownerID string) ([]store.Book, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT "+bookColumns+" FROM books b WHERE b.owner_id = ? ORDER BY b.name_normalized",
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*store.Book, error) {
	var b store.Book
	var updated int64
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Description, &b.SourceHash, &updated, &b.EntryCount); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Unix(0, updated).UTC()
	return &b, nil
}

// GetBookHashes maps normalized book names to their last ingested source hash.
func (c *Client) GetBookHashes(ctx context.Context, ownerID string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name_normalized, source_hash FROM books WHERE owner_id = ?",
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

	placeholders := make([]string, len(currentNames))
	args := make([]any, len(currentNames)+1)
	args[0] = ownerID
	for i, name := range currentNames {
		placeholders[i] = "?"
		args[i+1] = store.NormalizeName(name)
	}
	stale := fmt.Sprintf(
		"SELECT id FROM books WHERE owner_id = ? AND name_normalized NOT IN (%s)",
		strings.Join(placeholders, ", "),
	)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM bindings WHERE book_id IN ("+stale+")", args...); err != nil {
		return 0, fmt.Errorf("removing stale bindings: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM books WHERE id IN ("+stale+")", args...)
	if err != nil {
		return 0, fmt.Errorf("removing stale books: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing stale book removal: %w", err)
	}
	return affected, nil
}

func (c *Client) ReplaceEntries(ctx context.Context, bookID string, entries []store.EntryRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE book_id = ?", bookID); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entries (book_id, uid, hash, source_file, payload) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing entry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshaling entry %d: %w", e.UID, err)
		}
		if _, err := stmt.ExecContext(ctx, bookID, e.UID, e.Hash, e.SourceFile, string(payload)); err != nil {
			return fmt.Errorf("inserting entry %d: %w", e.UID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entries: %w", err)
	}
	return nil
}

func (c *Client) ListEntries(ctx context.Context, bookID string) ([]store.EntryRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT book_id, uid, hash, source_file, payload FROM entries WHERE book_id = ? ORDER BY uid",
		bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []store.EntryRecord
	for rows.Next() {
		var e store.EntryRecord
		var payload string
		if err := rows.Scan(&e.BookID, &e.UID, &e.Hash, &e.SourceFile, &payload); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling entry %d: %w", e.UID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}
