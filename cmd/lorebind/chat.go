package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lorebind/internal/store"
)

func chatCmd() *cobra.Command {
	var chat store.Chat
	var branchID string
	var branchName string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Register a chat and branch so bindings and timed effects can attach to them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chat.ID == "" || branchID == "" {
				return fmt.Errorf("--id and --branch are required")
			}
			return runChat(cmd, chat, store.Branch{ID: branchID, ChatID: chat.ID, Name: branchName})
		},
	}
	cmd.Flags().StringVar(&chat.ID, "id", "", "Chat id")
	cmd.Flags().StringVar(&chat.PersonaID, "persona", "", "Persona id bound to the chat")
	cmd.Flags().StringVar(&chat.EntityProfileID, "entity", "", "Entity profile id bound to the chat")
	cmd.Flags().StringVar(&branchID, "branch", "", "Branch id")
	cmd.Flags().StringVar(&branchName, "branch-name", "main", "Branch display name")
	return cmd
}

func runChat(cmd *cobra.Command, chat store.Chat, branch store.Branch) error {
	ctx := context.Background()

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	if err := p.db.EnsureSchema(ctx); err != nil {
		return err
	}
	chat.OwnerID = p.cfg.Owner
	if err := p.db.UpsertChat(ctx, chat); err != nil {
		return err
	}
	if err := p.db.UpsertBranch(ctx, branch); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Chat %s / branch %s ready.\n", chat.ID, branch.ID)
	return nil
}
