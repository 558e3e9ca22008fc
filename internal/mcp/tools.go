package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"lorebind/internal/resolve"
	"lorebind/internal/store"
	"lorebind/internal/worldinfo"
)

type MessageInput struct {
	Role    string `json:"role" jsonschema:"system, user or assistant"`
	Content string `json:"content" jsonschema:"message text"`
}

type CharacterInput struct {
	Name                 string   `json:"name,omitempty" jsonschema:"active character name, used by character filters"`
	Tags                 []string `json:"tags,omitempty" jsonschema:"active character tags, used by character filters"`
	PersonaDescription   string   `json:"persona_description,omitempty"`
	CharacterDescription string   `json:"character_description,omitempty"`
	CharacterPersonality string   `json:"character_personality,omitempty"`
	CharacterDepthPrompt string   `json:"character_depth_prompt,omitempty"`
	Scenario             string   `json:"scenario,omitempty"`
	CreatorNotes         string   `json:"creator_notes,omitempty"`
}

type ResolveWorldInfoInput struct {
	ChatID       string         `json:"chat_id" jsonschema:"chat to resolve for"`
	BranchID     string         `json:"branch_id" jsonschema:"branch of the chat"`
	History      []MessageInput `json:"history" jsonschema:"chat history, oldest first"`
	MessageIndex *int           `json:"message_index,omitempty" jsonschema:"index of the message being generated; defaults to the history length"`
	Trigger      string         `json:"trigger,omitempty" jsonschema:"generation trigger: normal, continue, impersonate, swipe, regenerate or quiet"`
	ScanSeed     string         `json:"scan_seed,omitempty" jsonschema:"seed for probability and group draws"`
	DryRun       *bool          `json:"dry_run,omitempty" jsonschema:"preview without recording sticky or cooldown windows; defaults to true"`
	Character    CharacterInput `json:"character,omitempty"`
}

type ActivatedEntryOutput struct {
	BookID   string `json:"book_id"`
	BookName string `json:"book_name"`
	UID      int    `json:"uid"`
	Hash     string `json:"hash"`
	Comment  string `json:"comment,omitempty"`
	Position int    `json:"position"`
	Order    int    `json:"order"`
}

type ResolveWorldInfoOutput struct {
	Prompt    worldinfo.PromptOutput `json:"prompt"`
	Activated []ActivatedEntryOutput `json:"activated"`
	Debug     worldinfo.Debug        `json:"debug"`
}

type ListBooksInput struct{}

type BookOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	EntryCount  int    `json:"entry_count"`
	UpdatedAt   string `json:"updated_at"`
}

type ListBooksOutput struct {
	Books []BookOutput `json:"books"`
}

type GetBookEntriesInput struct {
	Book string `json:"book" jsonschema:"book id or name"`
}

type EntryOutput struct {
	UID        int      `json:"uid"`
	Hash       string   `json:"hash"`
	SourceFile string   `json:"source_file,omitempty"`
	Comment    string   `json:"comment,omitempty"`
	Keys       []string `json:"keys"`
	Secondary  []string `json:"secondary_keys,omitempty"`
	Constant   bool     `json:"constant,omitempty"`
	Position   int      `json:"position"`
	Order      int      `json:"order"`
	Group      string   `json:"group,omitempty"`
	Content    string   `json:"content"`
}

type GetBookEntriesOutput struct {
	Book    BookOutput    `json:"book"`
	Entries []EntryOutput `json:"entries"`
}

type ListBindingsInput struct {
	Scope   string `json:"scope,omitempty" jsonschema:"global, chat, entity_profile or persona"`
	ScopeID string `json:"scope_id,omitempty" jsonschema:"scope id filter"`
}

type BindingOutput struct {
	ID           string `json:"id"`
	BookID       string `json:"book_id"`
	Scope        string `json:"scope"`
	ScopeID      string `json:"scope_id,omitempty"`
	DisplayOrder int    `json:"display_order"`
	Enabled      bool   `json:"enabled"`
	Role         string `json:"role,omitempty"`
}

type ListBindingsOutput struct {
	Bindings []BindingOutput `json:"bindings"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "resolve_world_info",
		Description: "Resolve which world-info entries activate for a chat turn and return the assembled prompt channels",
	}, s.handleResolveWorldInfo)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_books",
		Description: "List stored world-info books",
	}, s.handleListBooks)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_book_entries",
		Description: "Return the normalized entries of a book",
	}, s.handleGetBookEntries)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_bindings",
		Description: "List book bindings with optional scope filters",
	}, s.handleListBindings)
}

func (s *Server) handleResolveWorldInfo(ctx context.Context, req *sdk.CallToolRequest, input ResolveWorldInfoInput) (*sdk.CallToolResult, ResolveWorldInfoOutput, error) {
	if input.ChatID == "" || input.BranchID == "" {
		return nil, ResolveWorldInfoOutput{}, fmt.Errorf("chat_id and branch_id are required")
	}

	request := resolve.Request{
		OwnerID:      s.owner,
		ChatID:       input.ChatID,
		BranchID:     input.BranchID,
		MessageIndex: -1,
		ScanSeed:     input.ScanSeed,
		DryRun:       input.DryRun == nil || *input.DryRun,
		Character: worldinfo.CharacterContext{
			Name:                 input.Character.Name,
			Tags:                 input.Character.Tags,
			PersonaDescription:   input.Character.PersonaDescription,
			CharacterDescription: input.Character.CharacterDescription,
			CharacterPersonality: input.Character.CharacterPersonality,
			CharacterDepthPrompt: input.Character.CharacterDepthPrompt,
			Scenario:             input.Character.Scenario,
			CreatorNotes:         input.Character.CreatorNotes,
		},
	}
	if input.MessageIndex != nil {
		request.MessageIndex = *input.MessageIndex
	}
	if input.Trigger != "" {
		trigger, ok := worldinfo.NormalizeTrigger(input.Trigger)
		if !ok {
			return nil, ResolveWorldInfoOutput{}, fmt.Errorf("unknown trigger: %s", input.Trigger)
		}
		request.Trigger = trigger
	}
	for _, m := range input.History {
		request.History = append(request.History, worldinfo.Message{Role: m.Role, Content: m.Content})
	}

	result, err := s.resolver.Resolve(ctx, request)
	if err != nil {
		s.logger.Error("resolve failed", zap.String("chat", input.ChatID), zap.Error(err))
		return nil, ResolveWorldInfoOutput{}, err
	}

	activated := make([]ActivatedEntryOutput, 0, len(result.ActivatedEntries))
	for _, e := range result.ActivatedEntries {
		activated = append(activated, ActivatedEntryOutput{
			BookID:   e.BookID,
			BookName: e.BookName,
			UID:      e.UID,
			Hash:     e.Hash,
			Comment:  e.Comment,
			Position: int(e.Position),
			Order:    e.Order,
		})
	}
	return nil, ResolveWorldInfoOutput{
		Prompt:    result.PromptOutput,
		Activated: activated,
		Debug:     result.Debug,
	}, nil
}

func (s *Server) handleListBooks(ctx context.Context, req *sdk.CallToolRequest, input ListBooksInput) (*sdk.CallToolResult, ListBooksOutput, error) {
	books, err := s.catalog.ListBooks(ctx, s.owner)
	if err != nil {
		return nil, ListBooksOutput{}, err
	}
	output := make([]BookOutput, 0, len(books))
	for _, b := range books {
		output = append(output, bookOutputFromStore(b))
	}
	return nil, ListBooksOutput{Books: output}, nil
}

func (s *Server) handleGetBookEntries(ctx context.Context, req *sdk.CallToolRequest, input GetBookEntriesInput) (*sdk.CallToolResult, GetBookEntriesOutput, error) {
	if input.Book == "" {
		return nil, GetBookEntriesOutput{}, fmt.Errorf("book is required")
	}
	book, err := s.findBook(ctx, input.Book)
	if err != nil {
		return nil, GetBookEntriesOutput{}, err
	}
	if book == nil {
		return nil, GetBookEntriesOutput{}, fmt.Errorf("book not found")
	}

	records, err := s.catalog.ListEntries(ctx, book.ID)
	if err != nil {
		return nil, GetBookEntriesOutput{}, err
	}
	entries := make([]EntryOutput, 0, len(records))
	for _, rec := range records {
		entries = append(entries, entryOutputFromStore(rec))
	}
	return nil, GetBookEntriesOutput{Book: bookOutputFromStore(*book), Entries: entries}, nil
}

func (s *Server) handleListBindings(ctx context.Context, req *sdk.CallToolRequest, input ListBindingsInput) (*sdk.CallToolResult, ListBindingsOutput, error) {
	if input.Scope != "" && !store.Scope(input.Scope).Valid() {
		return nil, ListBindingsOutput{}, fmt.Errorf("unknown scope: %s", input.Scope)
	}
	bindings, err := s.catalog.ListAllBindings(ctx, s.owner)
	if err != nil {
		return nil, ListBindingsOutput{}, err
	}
	output := make([]BindingOutput, 0, len(bindings))
	for _, b := range bindings {
		if input.Scope != "" && string(b.Scope) != input.Scope {
			continue
		}
		if input.ScopeID != "" && b.ScopeID != input.ScopeID {
			continue
		}
		output = append(output, BindingOutput{
			ID:           b.ID,
			BookID:       b.BookID,
			Scope:        string(b.Scope),
			ScopeID:      b.ScopeID,
			DisplayOrder: b.DisplayOrder,
			Enabled:      b.Enabled,
			Role:         b.Role,
		})
	}
	return nil, ListBindingsOutput{Bindings: output}, nil
}

// findBook looks a book up by id first, then by case-insensitive name.
func (s *Server) findBook(ctx context.Context, ref string) (*store.Book, error) {
	book, err := s.catalog.GetBook(ctx, s.owner, ref)
	if err != nil || book != nil {
		return book, err
	}
	books, err := s.catalog.ListBooks(ctx, s.owner)
	if err != nil {
		return nil, err
	}
	for i := range books {
		if store.NormalizeName(books[i].Name) == store.NormalizeName(ref) {
			return &books[i], nil
		}
	}
	return nil, nil
}

func bookOutputFromStore(b store.Book) BookOutput {
	return BookOutput{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		EntryCount:  b.EntryCount,
		UpdatedAt:   b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func entryOutputFromStore(rec store.EntryRecord) EntryOutput {
	entry := worldinfo.NormalizeEntry(rec.Payload)
	return EntryOutput{
		UID:        entry.UID,
		Hash:       rec.Hash,
		SourceFile: rec.SourceFile,
		Comment:    entry.Comment,
		Keys:       append([]string{}, entry.Key...),
		Secondary:  entry.KeySecondary,
		Constant:   entry.Constant,
		Position:   int(entry.Position),
		Order:      entry.Order,
		Group:      entry.Group,
		Content:    entry.Content,
	}
}
