package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lorebind/internal/store"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Inspect the store from the CLI",
	}
	cmd.AddCommand(queryBooksCmd())
	cmd.AddCommand(queryEntriesCmd())
	cmd.AddCommand(queryBindingsCmd())
	cmd.AddCommand(queryEffectsCmd())
	cmd.AddCommand(querySQLCmd())
	return cmd
}

func queryBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List stored books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer p.Close(ctx)

			books, err := p.db.ListBooks(ctx, p.cfg.Owner)
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintln(os.Stdout, "No books found.")
				return nil
			}
			for _, b := range books {
				fmt.Fprintf(os.Stdout, "%s  %s (%d entries)\n", b.ID, b.Name, b.EntryCount)
			}
			return nil
		},
	}
}

func queryEntriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entries <book>",
		Short: "List the entries of a book by id or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer p.Close(ctx)

			book, err := findBook(ctx, p.db, p.cfg.Owner, args[0])
			if err != nil {
				return err
			}
			entries, err := p.db.ListEntries(ctx, book.ID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stdout, "No entries found.")
				return nil
			}
			for _, e := range entries {
				comment, _ := e.Payload["comment"].(string)
				fmt.Fprintf(os.Stdout, "#%d  %s  %s\n", e.UID, comment, e.SourceFile)
			}
			return nil
		},
	}
}

func queryBindingsCmd() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "List book bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scope != "" && !store.Scope(scope).Valid() {
				return fmt.Errorf("unknown scope: %s", scope)
			}
			ctx := context.Background()
			p, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer p.Close(ctx)

			bindings, err := p.db.ListAllBindings(ctx, p.cfg.Owner)
			if err != nil {
				return err
			}
			shown := 0
			for _, b := range bindings {
				if scope != "" && string(b.Scope) != scope {
					continue
				}
				state := "enabled"
				if !b.Enabled {
					state = "disabled"
				}
				target := string(b.Scope)
				if b.ScopeID != "" {
					target = fmt.Sprintf("%s:%s", b.Scope, b.ScopeID)
				}
				fmt.Fprintf(os.Stdout, "%s -> %s (order %d, %s)\n", b.BookID, target, b.DisplayOrder, state)
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(os.Stdout, "No bindings found.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Only show bindings of this scope")
	return cmd
}

func queryEffectsCmd() *cobra.Command {
	var chatID, branchID string
	cmd := &cobra.Command{
		Use:   "effects",
		Short: "List recorded sticky and cooldown windows of a chat branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID == "" || branchID == "" {
				return fmt.Errorf("--chat and --branch are required")
			}
			ctx := context.Background()
			p, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer p.Close(ctx)

			effects, err := p.db.ListTimedEffects(ctx, p.cfg.Owner, chatID, branchID)
			if err != nil {
				return err
			}
			if len(effects) == 0 {
				fmt.Fprintln(os.Stdout, "No timed effects.")
				return nil
			}
			for _, e := range effects {
				protected := ""
				if e.Protected {
					protected = " protected"
				}
				fmt.Fprintf(os.Stdout, "%s %s [%d, %d]%s\n", e.EffectType, e.EntryHash, e.StartMessageIndex, e.EndMessageIndex, protected)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "Chat id")
	cmd.Flags().StringVar(&branchID, "branch", "", "Branch id")
	return cmd
}

func findBook(ctx context.Context, db store.Store, owner, ref string) (*store.Book, error) {
	book, err := db.GetBook(ctx, owner, ref)
	if err != nil {
		return nil, err
	}
	if book != nil {
		return book, nil
	}
	books, err := db.ListBooks(ctx, owner)
	if err != nil {
		return nil, err
	}
	want := store.NormalizeName(ref)
	for i := range books {
		if store.NormalizeName(books[i].Name) == want {
			return &books[i], nil
		}
	}
	return nil, fmt.Errorf("book not found: %s", ref)
}
