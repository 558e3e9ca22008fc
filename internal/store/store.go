package store

import (
	"context"
	"strings"
)

// Store persists books, bindings, settings, chats and timed effects for the
// resolver. Lookups of missing rows return nil without an error.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	UpsertBook(ctx context.Context, b BookInput) (string, error)
	GetBook(ctx context.Context, ownerID, bookID string) (*Book, error)
	ListBooks(ctx context.Context, ownerID string) ([]Book, error)
	GetBookHashes(ctx context.Context, ownerID string) (map[string]string, error)
	RemoveStaleBooks(ctx context.Context, ownerID string, currentNames []string) (int64, error)

	ReplaceEntries(ctx context.Context, bookID string, entries []EntryRecord) error
	ListEntries(ctx context.Context, bookID string) ([]EntryRecord, error)

	UpsertBinding(ctx context.Context, b BindingInput) error
	ListBindings(ctx context.Context, ownerID string, scope Scope, scopeID string) ([]Binding, error)
	ListAllBindings(ctx context.Context, ownerID string) ([]Binding, error)

	GetSettings(ctx context.Context, ownerID string) (map[string]any, error)
	PutSettings(ctx context.Context, ownerID string, settings map[string]any) error

	UpsertChat(ctx context.Context, c Chat) error
	GetChat(ctx context.Context, ownerID, chatID string) (*Chat, error)
	UpsertBranch(ctx context.Context, b Branch) error
	GetBranch(ctx context.Context, chatID, branchID string) (*Branch, error)

	ListTimedEffects(ctx context.Context, ownerID, chatID, branchID string) ([]TimedEffect, error)
	DeleteTimedEffects(ctx context.Context, ids []string) error
	UpsertTimedEffect(ctx context.Context, e TimedEffectInput) error

	RunSQL(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// NormalizeName is the case-insensitive key books are unique by.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
