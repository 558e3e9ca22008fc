package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lorebind/internal/config"
	"lorebind/internal/parser"
	"lorebind/internal/store"
	"lorebind/internal/worldinfo"
)

type Store interface {
	EnsureSchema(ctx context.Context) error
	PutSettings(ctx context.Context, ownerID string, settings map[string]any) error
	GetBookHashes(ctx context.Context, ownerID string) (map[string]string, error)
	UpsertBook(ctx context.Context, b store.BookInput) (string, error)
	ReplaceEntries(ctx context.Context, bookID string, entries []store.EntryRecord) error
	UpsertBinding(ctx context.Context, b store.BindingInput) error
	RemoveStaleBooks(ctx context.Context, ownerID string, currentNames []string) (int64, error)
}

type Result struct {
	BooksUpserted    int
	BooksSkipped     int
	BooksRemoved     int
	EntriesUpserted  int
	BindingsUpserted int
	FilesSkipped     int
	Errors           []error
}

type Options struct {
	// Full rewrites every book even when its files are unchanged.
	Full   bool
	Logger *zap.Logger
}

type parsedEntry struct {
	entry worldinfo.Entry
	path  string
}

func Run(ctx context.Context, cfg *config.ProjectConfig, db Store, options Options) (*Result, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	if cfg.Settings != nil {
		settings := worldinfo.NormalizeSettings(cfg.Settings)
		if err := db.PutSettings(ctx, cfg.Owner, settings.ToMap()); err != nil {
			return nil, fmt.Errorf("storing settings: %w", err)
		}
	}

	existingHashes := map[string]string{}
	if !options.Full {
		var err error
		existingHashes, err = db.GetBookHashes(ctx, cfg.Owner)
		if err != nil {
			return nil, fmt.Errorf("get book hashes: %w", err)
		}
	}

	result := &Result{}
	names := make([]string, 0, len(cfg.Books))
	for _, book := range cfg.Books {
		names = append(names, book.Name)
		log := logger.With(zap.String("book", book.Name))

		files, err := walkMarkdownFiles(book.Paths, cfg.Exclude)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("walking files for book %s: %w", book.Name, err))
			continue
		}
		hash, err := computeBookHash(files)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("hashing book %s: %w", book.Name, err))
			continue
		}
		unchanged := existingHashes[store.NormalizeName(book.Name)] == hash

		var entries []parsedEntry
		if !unchanged {
			var skipped int
			var errs []error
			entries, skipped, errs = parseBook(files)
			result.FilesSkipped += skipped
			if len(errs) > 0 {
				// keep the stored entries rather than writing a partial book
				result.Errors = append(result.Errors, errs...)
				log.Warn("book not updated", zap.Int("errors", len(errs)))
				continue
			}
		}

		bookID, err := db.UpsertBook(ctx, store.BookInput{
			OwnerID:     cfg.Owner,
			Name:        book.Name,
			Description: book.Description,
			SourceHash:  hash,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("upserting book %s: %w", book.Name, err))
			continue
		}

		if unchanged {
			result.BooksSkipped++
			log.Debug("book unchanged")
		} else {
			records := make([]store.EntryRecord, 0, len(entries))
			for _, p := range entries {
				records = append(records, store.EntryRecord{
					BookID:     bookID,
					UID:        p.entry.UID,
					Hash:       worldinfo.EntryHash(bookID, p.entry),
					SourceFile: p.path,
					Payload:    p.entry.ToMap(),
				})
			}
			if err := db.ReplaceEntries(ctx, bookID, records); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("replacing entries for %s: %w", book.Name, err))
				continue
			}
			result.BooksUpserted++
			result.EntriesUpserted += len(records)
			log.Info("book ingested", zap.Int("entries", len(records)), zap.Int("files", len(files)))
		}

		for _, b := range book.Bindings {
			err := db.UpsertBinding(ctx, store.BindingInput{
				OwnerID:      cfg.Owner,
				BookID:       bookID,
				Scope:        b.Scope,
				ScopeID:      b.ScopeID,
				DisplayOrder: b.DisplayOrder,
				Enabled:      b.IsEnabled(),
				Role:         b.Role,
			})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("upserting %s binding for %s: %w", b.Scope, book.Name, err))
				continue
			}
			result.BindingsUpserted++
		}
	}

	removed, err := db.RemoveStaleBooks(ctx, cfg.Owner, names)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("removing stale books: %w", err))
	} else {
		result.BooksRemoved = int(removed)
	}

	logger.Info("ingest finished",
		zap.Int("books_upserted", result.BooksUpserted),
		zap.Int("books_skipped", result.BooksSkipped),
		zap.Int("books_removed", result.BooksRemoved),
		zap.Int("entries", result.EntriesUpserted),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// parseBook parses and normalizes every file of a book. Files without
// frontmatter are skipped as notes; a uid used twice is an error.
func parseBook(files []string) ([]parsedEntry, int, []error) {
	var (
		entries []parsedEntry
		skipped int
		errs    []error
	)
	seen := make(map[int]string)
	for _, path := range files {
		doc, err := parser.ParseFile(path)
		if err != nil {
			if errors.Is(err, parser.ErrNoFrontmatter) {
				skipped++
				continue
			}
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, err))
			continue
		}
		if first, ok := seen[doc.UID]; ok {
			errs = append(errs, fmt.Errorf("duplicate uid %d in %s (first used in %s)", doc.UID, path, first))
			continue
		}
		seen[doc.UID] = path
		entries = append(entries, parsedEntry{entry: worldinfo.NormalizeEntry(doc.Fields), path: path})
	}
	return entries, skipped, errs
}

func walkMarkdownFiles(roots []string, excludes []string) ([]string, error) {
	excluded := make([]string, 0, len(excludes))
	for _, path := range excludes {
		if path == "" {
			continue
		}
		excluded = append(excluded, filepath.Clean(path))
	}

	var files []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				return nil
			}
			if isExcluded(path, excluded) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isExcluded(path string, excludes []string) bool {
	clean := filepath.Clean(path)
	for _, exclude := range excludes {
		if exclude == clean || strings.HasPrefix(clean, exclude+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func computeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// computeBookHash changes whenever a file is added, removed, renamed or edited.
func computeBookHash(files []string) (string, error) {
	h := sha256.New()
	for _, path := range files {
		fileHash, err := computeHash(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%s\n", filepath.ToSlash(path), fileHash)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
