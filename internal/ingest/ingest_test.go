package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"lorebind/internal/config"
	"lorebind/internal/store"
	"lorebind/internal/worldinfo"
)

type mockStore struct {
	ensureCalled bool
	settings     map[string]any
	bookHashes   map[string]string
	books        []store.BookInput
	entries      map[string][]store.EntryRecord
	bindings     []store.BindingInput
	removeNames  []string
	removed      int64
	failBook     string
}

func (m *mockStore) EnsureSchema(ctx context.Context) error {
	m.ensureCalled = true
	return nil
}

func (m *mockStore) PutSettings(ctx context.Context, ownerID string, settings map[string]any) error {
	m.settings = settings
	return nil
}

func (m *mockStore) GetBookHashes(ctx context.Context, ownerID string) (map[string]string, error) {
	if m.bookHashes == nil {
		return map[string]string{}, nil
	}
	return m.bookHashes, nil
}

func (m *mockStore) UpsertBook(ctx context.Context, b store.BookInput) (string, error) {
	if b.Name == m.failBook {
		return "", errors.New("forced error")
	}
	m.books = append(m.books, b)
	return "id-" + store.NormalizeName(b.Name), nil
}

func (m *mockStore) ReplaceEntries(ctx context.Context, bookID string, entries []store.EntryRecord) error {
	if m.entries == nil {
		m.entries = map[string][]store.EntryRecord{}
	}
	m.entries[bookID] = entries
	return nil
}

func (m *mockStore) UpsertBinding(ctx context.Context, b store.BindingInput) error {
	m.bindings = append(m.bindings, b)
	return nil
}

func (m *mockStore) RemoveStaleBooks(ctx context.Context, ownerID string, currentNames []string) (int64, error) {
	m.removeNames = currentNames
	return m.removed, nil
}

func lorePath(parts ...string) string {
	return filepath.Join(append([]string{"testdata", "lore"}, parts...)...)
}

func testProjectConfig(t *testing.T) *config.ProjectConfig {
	t.Helper()
	enabled := false
	return &config.ProjectConfig{
		Project:  "test",
		Version:  1,
		Owner:    "local",
		Database: config.DatabaseConfig{DSN: "sqlite://:memory:"},
		Exclude:  []string{lorePath("bestiary", "drafts")},
		Books: []config.Book{
			{
				Name:  "Bestiary",
				Paths: []string{lorePath("bestiary")},
				Bindings: []config.Binding{
					{Scope: store.ScopeGlobal},
					{Scope: store.ScopeChat, ScopeID: "chat-1", DisplayOrder: 3, Enabled: &enabled},
				},
			},
			{
				Name:     "Places",
				Paths:    []string{lorePath("places")},
				Bindings: []config.Binding{{Scope: store.ScopePersona, ScopeID: "alice"}},
			},
		},
	}
}

func TestRun_BasicIngestion(t *testing.T) {
	cfg := testProjectConfig(t)
	db := &mockStore{removed: 2}

	result, err := Run(context.Background(), cfg, db, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !db.ensureCalled {
		t.Fatalf("expected ensure schema")
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.BooksUpserted != 2 || result.EntriesUpserted != 3 || result.BindingsUpserted != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.FilesSkipped != 1 {
		t.Fatalf("expected the README to be skipped, got %d", result.FilesSkipped)
	}
	if result.BooksRemoved != 2 {
		t.Fatalf("expected removed count from store, got %d", result.BooksRemoved)
	}
	if !reflect.DeepEqual(db.removeNames, []string{"Bestiary", "Places"}) {
		t.Fatalf("unexpected current names: %v", db.removeNames)
	}

	bestiary := db.entries["id-bestiary"]
	if len(bestiary) != 2 {
		t.Fatalf("expected 2 bestiary entries, got %d", len(bestiary))
	}
	for _, rec := range bestiary {
		if rec.UID == 9 {
			t.Fatalf("expected excluded draft to be skipped")
		}
		entry := worldinfo.NormalizeEntry(rec.Payload)
		if rec.Hash != worldinfo.EntryHash("id-bestiary", entry) {
			t.Fatalf("entry %d: hash does not match its payload", rec.UID)
		}
	}
	dragon := worldinfo.NormalizeEntry(bestiary[0].Payload)
	if dragon.Comment != "Dragons" || dragon.Content != "Dragons are ancient." || dragon.Order != 120 {
		t.Fatalf("unexpected dragon entry: %+v", dragon)
	}
}

func TestRun_Bindings(t *testing.T) {
	db := &mockStore{}
	if _, err := Run(context.Background(), testProjectConfig(t), db, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []store.BindingInput{
		{OwnerID: "local", BookID: "id-bestiary", Scope: store.ScopeGlobal, Enabled: true},
		{OwnerID: "local", BookID: "id-bestiary", Scope: store.ScopeChat, ScopeID: "chat-1", DisplayOrder: 3, Enabled: false},
		{OwnerID: "local", BookID: "id-places", Scope: store.ScopePersona, ScopeID: "alice", Enabled: true},
	}
	if !reflect.DeepEqual(db.bindings, want) {
		t.Fatalf("unexpected bindings:\n%+v", db.bindings)
	}
}

func TestRun_Settings(t *testing.T) {
	cfg := testProjectConfig(t)
	cfg.Settings = map[string]any{"scanDepth": 5, "minActivations": 2, "maxRecursionSteps": 3}
	db := &mockStore{}
	if _, err := Run(context.Background(), cfg, db, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	settings := worldinfo.NormalizeSettings(db.settings)
	if settings.ScanDepth != 5 || settings.MinActivations != 2 || settings.MaxRecursionSteps != 0 {
		t.Fatalf("expected normalized settings stored, got %+v", settings)
	}
}

func TestRun_DuplicateUIDKeepsStoredBook(t *testing.T) {
	cfg := testProjectConfig(t)
	cfg.Books = append(cfg.Books, config.Book{Name: "Broken", Paths: []string{lorePath("broken")}})
	db := &mockStore{}

	result, err := Run(context.Background(), cfg, db, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one duplicate uid error, got %v", result.Errors)
	}
	if _, ok := db.entries["id-broken"]; ok {
		t.Fatalf("expected broken book not to be written")
	}
	for _, b := range db.books {
		if b.Name == "Broken" {
			t.Fatalf("expected broken book not to be upserted")
		}
	}
	if result.BooksUpserted != 2 {
		t.Fatalf("expected the other books to be ingested, got %d", result.BooksUpserted)
	}
}

func TestRun_ContinuesOnError(t *testing.T) {
	db := &mockStore{failBook: "Bestiary"}
	result, err := Run(context.Background(), testProjectConfig(t), db, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Errors) != 1 || result.BooksUpserted != 1 {
		t.Fatalf("expected one error and one book, got %+v", result)
	}
}

func TestRun_IncrementalSkip(t *testing.T) {
	cfg := testProjectConfig(t)
	files, err := walkMarkdownFiles(cfg.Books[0].Paths, cfg.Exclude)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	hash, err := computeBookHash(files)
	if err != nil {
		t.Fatalf("compute hash: %v", err)
	}
	db := &mockStore{bookHashes: map[string]string{"bestiary": hash}}

	result, err := Run(context.Background(), cfg, db, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.BooksSkipped != 1 || result.BooksUpserted != 1 {
		t.Fatalf("expected bestiary skipped, got %+v", result)
	}
	if _, ok := db.entries["id-bestiary"]; ok {
		t.Fatalf("expected bestiary entries untouched")
	}
	if result.BindingsUpserted != 3 {
		t.Fatalf("expected bindings refreshed for skipped books, got %d", result.BindingsUpserted)
	}

	full := &mockStore{bookHashes: map[string]string{"bestiary": hash}}
	result, err = Run(context.Background(), cfg, full, Options{Full: true})
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	if result.BooksSkipped != 0 || len(full.entries["id-bestiary"]) != 2 {
		t.Fatalf("expected full mode to rewrite bestiary, got %+v", result)
	}
}

func TestComputeBookHash(t *testing.T) {
	a := lorePath("bestiary", "dragon.md")
	b := lorePath("bestiary", "griffin.md")

	ab, err := computeBookHash([]string{a, b})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	again, _ := computeBookHash([]string{a, b})
	onlyA, _ := computeBookHash([]string{a})
	if ab != again {
		t.Fatalf("expected stable hash")
	}
	if ab == onlyA {
		t.Fatalf("expected removing a file to change the hash")
	}
	if _, err := computeBookHash([]string{lorePath("missing.md")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestIsExcluded(t *testing.T) {
	excludes := []string{filepath.Clean("lore/drafts")}
	cases := map[string]bool{
		"lore/drafts":          true,
		"lore/drafts/a.md":     true,
		"lore/drafts-old/a.md": false,
		"lore/a.md":            false,
	}
	for path, want := range cases {
		if got := isExcluded(filepath.FromSlash(path), excludes); got != want {
			t.Fatalf("%s: expected %v, got %v", path, want, got)
		}
	}
}
