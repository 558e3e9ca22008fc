package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"lorebind/internal/store"
	"lorebind/internal/timed"
	"lorebind/internal/worldinfo"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, "sqlite://"+filepath.Join(t.TempDir(), "lorebind.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })
	if err := c.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return c
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	c := newTestClient(t)
	if err := c.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestBooksAndEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	id, err := c.UpsertBook(ctx, store.BookInput{OwnerID: "local", Name: "Bestiary", SourceHash: "h1"})
	if err != nil {
		t.Fatalf("upserting book: %v", err)
	}
	again, err := c.UpsertBook(ctx, store.BookInput{OwnerID: "local", Name: "bestiary ", Description: "Beasts", SourceHash: "h2"})
	if err != nil {
		t.Fatalf("re-upserting book: %v", err)
	}
	if again != id {
		t.Fatalf("expected stable id %q, got %q", id, again)
	}

	entries := []store.EntryRecord{
		{UID: 2, Hash: "b", SourceFile: "wyrm.md", Payload: map[string]any{"uid": float64(2), "key": []any{"wyrm"}}},
		{UID: 1, Hash: "a", SourceFile: "dragon.md", Payload: map[string]any{"uid": float64(1), "content": "Dragons."}},
	}
	if err := c.ReplaceEntries(ctx, id, entries); err != nil {
		t.Fatalf("replacing entries: %v", err)
	}
	got, err := c.ListEntries(ctx, id)
	if err != nil {
		t.Fatalf("listing entries: %v", err)
	}
	want := []store.EntryRecord{
		{BookID: id, UID: 1, Hash: "a", SourceFile: "dragon.md", Payload: map[string]any{"uid": float64(1), "content": "Dragons."}},
		{BookID: id, UID: 2, Hash: "b", SourceFile: "wyrm.md", Payload: map[string]any{"uid": float64(2), "key": []any{"wyrm"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	book, err := c.GetBook(ctx, "local", id)
	if err != nil {
		t.Fatalf("getting book: %v", err)
	}
	if book == nil || book.Name != "bestiary " || book.Description != "Beasts" || book.SourceHash != "h2" || book.EntryCount != 2 {
		t.Fatalf("unexpected book: %+v", book)
	}

	missing, err := c.GetBook(ctx, "someone-else", id)
	if err != nil || missing != nil {
		t.Fatalf("expected nil book for another owner, got %+v, %v", missing, err)
	}

	hashes, err := c.GetBookHashes(ctx, "local")
	if err != nil {
		t.Fatalf("getting hashes: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"bestiary": "h2"}, hashes); diff != "" {
		t.Fatalf("hashes mismatch:\n%s", diff)
	}
}

func TestRemoveStaleBooks(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	keep, _ := c.UpsertBook(ctx, store.BookInput{OwnerID: "local", Name: "Keep"})
	drop, _ := c.UpsertBook(ctx, store.BookInput{OwnerID: "local", Name: "Drop"})
	if err := c.ReplaceEntries(ctx, drop, []store.EntryRecord{{UID: 1, Hash: "x", Payload: map[string]any{}}}); err != nil {
		t.Fatalf("replacing entries: %v", err)
	}
	for _, bookID := range []string{keep, drop} {
		if err := c.UpsertBinding(ctx, store.BindingInput{OwnerID: "local", BookID: bookID, Scope: store.ScopeGlobal, Enabled: true}); err != nil {
			t.Fatalf("upserting binding: %v", err)
		}
	}

	if n, err := c.RemoveStaleBooks(ctx, "local", nil); err != nil || n != 0 {
		t.Fatalf("expected empty list to remove nothing, got %d, %v", n, err)
	}

	n, err := c.RemoveStaleBooks(ctx, "local", []string{"KEEP"})
	if err != nil {
		t.Fatalf("removing stale books: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed book, got %d", n)
	}

	books, err := c.ListBooks(ctx, "local")
	if err != nil {
		t.Fatalf("listing books: %v", err)
	}
	if len(books) != 1 || books[0].ID != keep {
		t.Fatalf("unexpected books: %+v", books)
	}
	entries, err := c.ListEntries(ctx, drop)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected entries to cascade, got %d, %v", len(entries), err)
	}
	bindings, err := c.ListAllBindings(ctx, "local")
	if err != nil || len(bindings) != 1 || bindings[0].BookID != keep {
		t.Fatalf("expected only the kept binding, got %+v, %v", bindings, err)
	}
}

func TestBindings(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	inputs := []store.BindingInput{
		{OwnerID: "local", BookID: "b2", Scope: store.ScopeChat, ScopeID: "chat-1", DisplayOrder: 2, Enabled: true},
		{OwnerID: "local", BookID: "b1", Scope: store.ScopeChat, ScopeID: "chat-1", DisplayOrder: 1, Enabled: false, Role: "lore"},
		{OwnerID: "local", BookID: "b3", Scope: store.ScopeChat, ScopeID: "chat-2", Enabled: true},
	}
	for _, in := range inputs {
		if err := c.UpsertBinding(ctx, in); err != nil {
			t.Fatalf("upserting binding: %v", err)
		}
	}
	if err := c.UpsertBinding(ctx, store.BindingInput{OwnerID: "local", BookID: "b2", Scope: store.ScopeChat, ScopeID: "chat-1", DisplayOrder: 0, Enabled: true}); err != nil {
		t.Fatalf("re-upserting binding: %v", err)
	}

	got, err := c.ListBindings(ctx, "local", store.ScopeChat, "chat-1")
	if err != nil {
		t.Fatalf("listing bindings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(got))
	}
	if got[0].BookID != "b2" || got[0].DisplayOrder != 0 || !got[0].Enabled {
		t.Fatalf("unexpected first binding: %+v", got[0])
	}
	if got[1].BookID != "b1" || got[1].Enabled || got[1].Role != "lore" {
		t.Fatalf("unexpected second binding: %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() || got[0].ID == "" {
		t.Fatalf("expected id and created_at to be populated")
	}
}

func TestSettingsChatsAndBranches(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	settings, err := c.GetSettings(ctx, "local")
	if err != nil || settings != nil {
		t.Fatalf("expected no settings, got %v, %v", settings, err)
	}
	if err := c.PutSettings(ctx, "local", map[string]any{"scanDepth": 3}); err != nil {
		t.Fatalf("putting settings: %v", err)
	}
	if err := c.PutSettings(ctx, "local", map[string]any{"scanDepth": 5}); err != nil {
		t.Fatalf("replacing settings: %v", err)
	}
	settings, err = c.GetSettings(ctx, "local")
	if err != nil {
		t.Fatalf("getting settings: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"scanDepth": float64(5)}, settings); diff != "" {
		t.Fatalf("settings mismatch:\n%s", diff)
	}

	chat := store.Chat{ID: "chat-1", OwnerID: "local", PersonaID: "p1", EntityProfileID: "e1"}
	if err := c.UpsertChat(ctx, chat); err != nil {
		t.Fatalf("upserting chat: %v", err)
	}
	gotChat, err := c.GetChat(ctx, "local", "chat-1")
	if err != nil {
		t.Fatalf("getting chat: %v", err)
	}
	if diff := cmp.Diff(&chat, gotChat); diff != "" {
		t.Fatalf("chat mismatch:\n%s", diff)
	}
	if missing, err := c.GetChat(ctx, "local", "nope"); err != nil || missing != nil {
		t.Fatalf("expected missing chat, got %+v, %v", missing, err)
	}

	if err := c.UpsertBranch(ctx, store.Branch{ChatID: "chat-1", ID: "main"}); err != nil {
		t.Fatalf("upserting branch: %v", err)
	}
	branch, err := c.GetBranch(ctx, "chat-1", "main")
	if err != nil || branch == nil || branch.ID != "main" {
		t.Fatalf("unexpected branch %+v, %v", branch, err)
	}
	if missing, err := c.GetBranch(ctx, "chat-1", "alt"); err != nil || missing != nil {
		t.Fatalf("expected missing branch, got %+v, %v", missing, err)
	}
}

func TestTimedEffects(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	in := store.TimedEffectInput{
		OwnerID: "local", ChatID: "chat-1", BranchID: "main", EntryHash: "h1",
		EffectType: store.EffectSticky, StartMessageIndex: 3, EndMessageIndex: 5,
	}
	if err := c.UpsertTimedEffect(ctx, in); err != nil {
		t.Fatalf("upserting effect: %v", err)
	}
	in.EndMessageIndex = 7
	in.Protected = true
	if err := c.UpsertTimedEffect(ctx, in); err != nil {
		t.Fatalf("re-upserting effect: %v", err)
	}
	cooldown := in
	cooldown.EffectType = store.EffectCooldown
	if err := c.UpsertTimedEffect(ctx, cooldown); err != nil {
		t.Fatalf("upserting cooldown: %v", err)
	}

	effects, err := c.ListTimedEffects(ctx, "local", "chat-1", "main")
	if err != nil {
		t.Fatalf("listing effects: %v", err)
	}
	if len(effects) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(effects))
	}
	sticky := effects[1]
	if sticky.EffectType != store.EffectSticky || sticky.EndMessageIndex != 7 || !sticky.Protected {
		t.Fatalf("unexpected sticky effect: %+v", sticky)
	}

	other, err := c.ListTimedEffects(ctx, "local", "chat-1", "alt")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected branch isolation, got %+v, %v", other, err)
	}

	if err := c.DeleteTimedEffects(ctx, []string{effects[0].ID}); err != nil {
		t.Fatalf("deleting effects: %v", err)
	}
	if err := c.DeleteTimedEffects(ctx, nil); err != nil {
		t.Fatalf("deleting nothing: %v", err)
	}
	effects, err = c.ListTimedEffects(ctx, "local", "chat-1", "main")
	if err != nil || len(effects) != 1 || effects[0].EffectType != store.EffectSticky {
		t.Fatalf("unexpected effects after delete: %+v, %v", effects, err)
	}
}

func TestRunSQL(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	if _, err := c.UpsertBook(ctx, store.BookInput{OwnerID: "local", Name: "Bestiary"}); err != nil {
		t.Fatalf("upserting book: %v", err)
	}

	rows, err := c.RunSQL(ctx, "SELECT name FROM books WHERE owner_id = ?", map[string]any{"1": "local"})
	if err != nil {
		t.Fatalf("running sql: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Bestiary" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestRunSQLNamedAndReadOnly(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	if _, err := c.UpsertBook(ctx, store.BookInput{OwnerID: "local", Name: "Bestiary"}); err != nil {
		t.Fatalf("upserting book: %v", err)
	}

	rows, err := c.RunSQL(ctx, "SELECT name FROM books WHERE owner_id = :owner", map[string]any{"owner": "local"})
	if err != nil {
		t.Fatalf("running sql: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Bestiary" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	if _, err := c.RunSQL(ctx, "DELETE FROM books", nil); err == nil {
		t.Fatalf("expected write to be rejected")
	}
	books, err := c.ListBooks(ctx, "local")
	if err != nil || len(books) != 1 {
		t.Fatalf("expected book to survive, got %v %v", books, err)
	}
}

func TestTimedHandoffPersists(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	e := worldinfo.PrepareEntry("book-1", "Bestiary", worldinfo.NormalizeEntry(map[string]any{
		"uid": 1, "key": "dragon", "sticky": 2, "cooldown": 2,
	}))
	byHash := map[string]*worldinfo.PreparedEntry{e.Hash: e}
	load := func(index int) timed.State {
		t.Helper()
		state, err := timed.Load(ctx, c, timed.LoadParams{
			OwnerID: "local", ChatID: "chat-1", BranchID: "main",
			MessageIndex: index, EntriesByHash: byHash,
		})
		if err != nil {
			t.Fatalf("loading at %d: %v", index, err)
		}
		return state
	}

	if _, err := timed.Apply(ctx, c, timed.ApplyParams{
		OwnerID: "local", ChatID: "chat-1", BranchID: "main",
		MessageIndex: 10, Activated: []*worldinfo.PreparedEntry{e}, State: load(10),
	}); err != nil {
		t.Fatalf("applying: %v", err)
	}

	if state := load(13); !state.ActiveCooldown[e.Hash] || state.HandedOff != 1 {
		t.Fatalf("expected handoff at 13, got %+v", state)
	}
	rows, err := c.ListTimedEffects(ctx, "local", "chat-1", "main")
	if err != nil {
		t.Fatalf("listing effects: %v", err)
	}
	if len(rows) != 1 || rows[0].EffectType != store.EffectCooldown || rows[0].StartMessageIndex != 13 || rows[0].EndMessageIndex != 15 {
		t.Fatalf("expected one cooldown [13,15], got %+v", rows)
	}
	if !load(14).ActiveCooldown[e.Hash] {
		t.Fatalf("expected entry cooling down at 14")
	}
}
