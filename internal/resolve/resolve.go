// Package resolve composes binding resolution, entry preparation, the
// activation scan and timed-effect bookkeeping into one call per chat turn.
package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lorebind/internal/binding"
	"lorebind/internal/store"
	"lorebind/internal/timed"
	"lorebind/internal/worldinfo"
)

// Store is the slice of persistence a resolution needs.
type Store interface {
	timed.Repository
	binding.Lister
	GetChat(ctx context.Context, ownerID, chatID string) (*store.Chat, error)
	GetBranch(ctx context.Context, chatID, branchID string) (*store.Branch, error)
	GetSettings(ctx context.Context, ownerID string) (map[string]any, error)
	GetBook(ctx context.Context, ownerID, bookID string) (*store.Book, error)
	ListEntries(ctx context.Context, bookID string) ([]store.EntryRecord, error)
}

type Request struct {
	OwnerID  string
	ChatID   string
	BranchID string
	// History is ordered oldest first.
	History []worldinfo.Message
	// MessageIndex < 0 means len(History).
	MessageIndex int
	ScanSeed     string
	Trigger      worldinfo.Trigger
	DryRun       bool
	Character    worldinfo.CharacterContext
	// Settings replaces the owner's stored settings when set.
	Settings *worldinfo.Settings
	// Roll overrides the probability draw; nil keeps scans reproducible.
	Roll func(entry *worldinfo.PreparedEntry, pass int) float64
}

type Result struct {
	worldinfo.PromptOutput
	ActivatedEntries []*worldinfo.PreparedEntry `json:"activatedEntries"`
	Debug            worldinfo.Debug            `json:"debug"`
}

type Service struct {
	store    Store
	bindings *binding.Resolver
	logger   *zap.Logger
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		bindings: binding.NewResolver(st),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve runs one world-info resolution. A missing chat or branch yields an
// empty result carrying a warning; only store failures are errors.
func (s *Service) Resolve(ctx context.Context, req Request) (*Result, error) {
	chat, err := s.store.GetChat(ctx, req.OwnerID, req.ChatID)
	if err != nil {
		return nil, fmt.Errorf("loading chat: %w", err)
	}
	if chat == nil {
		return warningResult("chat not found: " + req.ChatID), nil
	}
	branch, err := s.store.GetBranch(ctx, chat.ID, req.BranchID)
	if err != nil {
		return nil, fmt.Errorf("loading branch: %w", err)
	}
	if branch == nil {
		return warningResult("branch not found: " + req.BranchID), nil
	}

	settings, err := s.settings(ctx, req)
	if err != nil {
		return nil, err
	}

	messageIndex := req.MessageIndex
	if messageIndex < 0 {
		messageIndex = len(req.History)
	}
	seed := req.ScanSeed
	if seed == "" {
		seed = fmt.Sprintf("%s:%s:%d", chat.ID, branch.ID, messageIndex)
	}

	books, err := s.bindings.ResolveBooks(ctx, binding.Scope{
		OwnerID:         req.OwnerID,
		ChatID:          chat.ID,
		PersonaID:       chat.PersonaID,
		EntityProfileID: chat.EntityProfileID,
	}, settings.CharacterStrategy)
	if err != nil {
		return nil, fmt.Errorf("resolving books: %w", err)
	}

	warnings := []string{}
	entries, err := s.prepare(ctx, req.OwnerID, books, &warnings)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]*worldinfo.PreparedEntry, len(entries))
	for _, e := range entries {
		byHash[e.Hash] = e
	}

	state, err := timed.Load(ctx, s.store, timed.LoadParams{
		OwnerID:       req.OwnerID,
		ChatID:        chat.ID,
		BranchID:      branch.ID,
		MessageIndex:  messageIndex,
		EntriesByHash: byHash,
		DryRun:        req.DryRun,
	})
	if err != nil {
		return nil, err
	}

	scan := worldinfo.Scan(worldinfo.ScanInput{
		Entries:        entries,
		Settings:       settings,
		History:        req.History,
		MessageIndex:   messageIndex,
		ScanSeed:       seed,
		Trigger:        req.Trigger,
		ActiveSticky:   state.ActiveSticky,
		ActiveCooldown: state.ActiveCooldown,
		Character:      req.Character,
		Roll:           req.Roll,
	})
	scan.Debug.Warnings = append(warnings, scan.Debug.Warnings...)

	written, err := timed.Apply(ctx, s.store, timed.ApplyParams{
		OwnerID:      req.OwnerID,
		ChatID:       chat.ID,
		BranchID:     branch.ID,
		MessageIndex: messageIndex,
		Activated:    scan.Activated,
		State:        state,
		DryRun:       req.DryRun,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("resolved world info",
		zap.String("chat", chat.ID),
		zap.String("branch", branch.ID),
		zap.Int("message_index", messageIndex),
		zap.Int("books", len(books)),
		zap.Int("entries", len(entries)),
		zap.Int("activated", len(scan.Activated)),
		zap.Int("passes", scan.Debug.Passes),
		zap.Int("effects_removed", state.Removed),
		zap.Int("effects_written", written),
		zap.Bool("dry_run", req.DryRun))

	activated := scan.Activated
	if activated == nil {
		activated = []*worldinfo.PreparedEntry{}
	}
	return &Result{
		PromptOutput:     worldinfo.Assemble(scan.Activated, settings),
		ActivatedEntries: activated,
		Debug:            scan.Debug,
	}, nil
}

func (s *Service) settings(ctx context.Context, req Request) (worldinfo.Settings, error) {
	if req.Settings != nil {
		return worldinfo.NormalizeSettings(req.Settings.ToMap()), nil
	}
	raw, err := s.store.GetSettings(ctx, req.OwnerID)
	if err != nil {
		return worldinfo.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	return worldinfo.NormalizeSettings(raw), nil
}

// prepare loads and prepares every entry of the resolved books in book order.
// A bound book that no longer exists is reported as a warning.
func (s *Service) prepare(ctx context.Context, ownerID string, bookIDs []string, warnings *[]string) ([]*worldinfo.PreparedEntry, error) {
	var out []*worldinfo.PreparedEntry
	for _, id := range bookIDs {
		book, err := s.store.GetBook(ctx, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("loading book %s: %w", id, err)
		}
		if book == nil {
			*warnings = append(*warnings, "bound book not found: "+id)
			s.logger.Warn("skipping missing bound book", zap.String("book", id))
			continue
		}
		records, err := s.store.ListEntries(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading entries for book %s: %w", book.Name, err)
		}
		for _, rec := range records {
			entry := worldinfo.NormalizeEntry(rec.Payload)
			out = append(out, worldinfo.PrepareEntry(book.ID, book.Name, entry))
		}
	}
	return out, nil
}

func warningResult(message string) *Result {
	debug := worldinfo.NewDebug()
	debug.Warn(message)
	return &Result{
		PromptOutput:     worldinfo.EmptyPromptOutput(),
		ActivatedEntries: []*worldinfo.PreparedEntry{},
		Debug:            debug,
	}
}
