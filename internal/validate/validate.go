package validate

import (
	"context"
	"fmt"
	"strings"

	"lorebind/internal/store"
	"lorebind/internal/worldinfo"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeInvalidRegex          = "invalid_regex_key"
	codeNoPrimaryKeys         = "no_primary_keys"
	codeConflictingDecorators = "conflicting_decorators"
	codeEmptyContent          = "empty_content"
	codeMultipleOverrides     = "group_multiple_overrides"
	codeZeroGroupWeight       = "zero_group_weight"
	codeDanglingBinding       = "dangling_binding"
)

type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Book     string   `json:"book,omitempty"`
	UID      *int     `json:"uid,omitempty"`
	FilePath string   `json:"filePath,omitempty"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

type Store interface {
	ListBooks(ctx context.Context, ownerID string) ([]store.Book, error)
	ListEntries(ctx context.Context, bookID string) ([]store.EntryRecord, error)
	ListAllBindings(ctx context.Context, ownerID string) ([]store.Binding, error)
}

type member struct {
	entry *worldinfo.PreparedEntry
	file  string
}

// Run checks the owner's stored books and bindings. Group checks span every
// book, since groups are resolved across all books bound to a turn.
func Run(ctx context.Context, db Store, ownerID string) (*Report, error) {
	if db == nil {
		return nil, fmt.Errorf("store is required")
	}

	issues := make([]Issue, 0)

	books, err := db.ListBooks(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	bookIDs := make(map[string]bool, len(books))
	groups := make(map[string][]member)
	var groupOrder []string
	for _, book := range books {
		bookIDs[book.ID] = true
		records, err := db.ListEntries(ctx, book.ID)
		if err != nil {
			return nil, fmt.Errorf("list entries for %s: %w", book.Name, err)
		}
		for _, rec := range records {
			entry := worldinfo.PrepareEntry(book.ID, book.Name, worldinfo.NormalizeEntry(rec.Payload))
			issues = append(issues, validateEntry(entry, rec.SourceFile)...)
			for _, name := range worldinfo.SplitGroups(entry.Group) {
				if _, ok := groups[name]; !ok {
					groupOrder = append(groupOrder, name)
				}
				groups[name] = append(groups[name], member{entry: entry, file: rec.SourceFile})
			}
		}
	}

	for _, name := range groupOrder {
		issues = append(issues, validateGroup(name, groups[name])...)
	}

	bindings, err := db.ListAllBindings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	for _, b := range bindings {
		if bookIDs[b.BookID] {
			continue
		}
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     codeDanglingBinding,
			Message:  fmt.Sprintf("%s binding %q points at missing book %s", b.Scope, b.ScopeID, b.BookID),
		})
	}

	return &Report{Issues: issues}, nil
}

func validateEntry(entry *worldinfo.PreparedEntry, file string) []Issue {
	var issues []Issue
	add := func(severity Severity, code, message string) {
		issues = append(issues, entryIssue(entry, file, severity, code, message))
	}

	for _, key := range append(append([]string{}, entry.Key...), entry.KeySecondary...) {
		if err := worldinfo.CompileKey(key); err != nil {
			add(SeverityWarn, codeInvalidRegex, fmt.Sprintf("key %q never matches: %v", key, err))
		}
	}
	if !entry.Constant && !entry.Decorators.Activate && !hasPrimaryKey(entry.Key) {
		add(SeverityWarn, codeNoPrimaryKeys, "entry has no primary keys and can never activate by matching")
	}
	if entry.Decorators.Activate && entry.Decorators.DontActivate {
		add(SeverityWarn, codeConflictingDecorators, "entry declares both @@activate and @@dont_activate")
	}
	if strings.TrimSpace(entry.Content) == "" {
		add(SeverityWarn, codeEmptyContent, "entry has no content and is never inserted")
	}
	return issues
}

func validateGroup(name string, members []member) []Issue {
	var issues []Issue

	topOrder, overrides := 0, []member(nil)
	for _, m := range members {
		if !m.entry.GroupOverride {
			continue
		}
		switch {
		case len(overrides) == 0 || m.entry.Order > topOrder:
			topOrder, overrides = m.entry.Order, []member{m}
		case m.entry.Order == topOrder:
			overrides = append(overrides, m)
		}
	}
	if len(overrides) > 1 {
		for _, m := range overrides {
			issues = append(issues, entryIssue(m.entry, m.file, SeverityWarn, codeMultipleOverrides,
				fmt.Sprintf("group %q has %d override members at order %d; the first in scan order wins", name, len(overrides), topOrder)))
		}
	}

	total := 0
	for _, m := range members {
		total += m.entry.GroupWeight
	}
	if total == 0 {
		first := members[0]
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Code:     codeZeroGroupWeight,
			Message:  fmt.Sprintf("group %q members all have zero weight; the first member always wins", name),
			Book:     first.entry.BookName,
		})
	}
	return issues
}

func entryIssue(entry *worldinfo.PreparedEntry, file string, severity Severity, code, message string) Issue {
	uid := entry.UID
	return Issue{
		Severity: severity,
		Code:     code,
		Message:  message,
		Book:     entry.BookName,
		UID:      &uid,
		FilePath: file,
	}
}

func hasPrimaryKey(keys []string) bool {
	for _, key := range keys {
		if strings.TrimSpace(key) != "" {
			return true
		}
	}
	return false
}
