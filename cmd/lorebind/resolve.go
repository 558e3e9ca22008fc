package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lorebind/internal/resolve"
	"lorebind/internal/worldinfo"
)

type resolveFlags struct {
	chatID      string
	branchID    string
	historyPath string
	index       int
	trigger     string
	seed        string
	dryRun      bool
	asJSON      bool
	character   string
}

func resolveCmd() *cobra.Command {
	var f resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve world info for the next message of a chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.chatID == "" || f.branchID == "" {
				return fmt.Errorf("--chat and --branch are required")
			}
			return runResolve(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.chatID, "chat", "", "Chat id")
	cmd.Flags().StringVar(&f.branchID, "branch", "", "Branch id")
	cmd.Flags().StringVar(&f.historyPath, "history", "", "YAML or JSON file with the chat history, oldest first")
	cmd.Flags().IntVar(&f.index, "index", -1, "Message index being generated (default: history length)")
	cmd.Flags().StringVar(&f.trigger, "trigger", "", "Generation trigger")
	cmd.Flags().StringVar(&f.seed, "seed", "", "Scan seed")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Do not record sticky or cooldown windows")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().StringVar(&f.character, "character", "", "Active character name for character filters")
	return cmd
}

func runResolve(cmd *cobra.Command, f resolveFlags) error {
	ctx := context.Background()

	history, err := loadHistory(f.historyPath)
	if err != nil {
		return err
	}

	request := resolve.Request{
		ChatID:       f.chatID,
		BranchID:     f.branchID,
		History:      history,
		MessageIndex: f.index,
		ScanSeed:     f.seed,
		DryRun:       f.dryRun,
		Character:    worldinfo.CharacterContext{Name: f.character},
	}
	if f.trigger != "" {
		trigger, ok := worldinfo.NormalizeTrigger(f.trigger)
		if !ok {
			return fmt.Errorf("unknown trigger: %s", f.trigger)
		}
		request.Trigger = trigger
	}

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close(ctx)
	request.OwnerID = p.cfg.Owner

	result, err := resolve.NewService(p.db, resolve.WithLogger(p.logger)).Resolve(ctx, request)
	if err != nil {
		return err
	}

	if f.asJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(payload))
		return nil
	}
	printResolveResult(result)
	return nil
}

// loadHistory reads a list of {role, content} messages. YAML is a superset of
// JSON so both formats go through the same decoder. An empty path is an empty
// history.
func loadHistory(path string) ([]worldinfo.Message, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var history []worldinfo.Message
	if err := yaml.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", path, err)
	}
	return history, nil
}

func printResolveResult(result *resolve.Result) {
	for _, warning := range result.Debug.Warnings {
		fmt.Fprintf(os.Stdout, "warning: %s\n", warning)
	}
	if len(result.ActivatedEntries) == 0 {
		fmt.Fprintln(os.Stdout, "No entries activated.")
		return
	}
	fmt.Fprintf(os.Stdout, "Activated (%d):\n", len(result.ActivatedEntries))
	for _, e := range result.ActivatedEntries {
		label := e.Comment
		if label == "" {
			label = fmt.Sprintf("uid %d", e.UID)
		}
		fmt.Fprintf(os.Stdout, "  - %s: %s [position %d, order %d]\n", e.BookName, label, e.Position, e.Order)
	}

	sections := []struct {
		name string
		text string
	}{
		{"Before", result.WorldInfoBefore},
		{"After", result.WorldInfoAfter},
		{"Author's note top", result.ANTop},
		{"Author's note bottom", result.ANBottom},
		{"Examples top", result.EMTop},
		{"Examples bottom", result.EMBottom},
	}
	for _, s := range sections {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		fmt.Fprintf(os.Stdout, "\n[%s]\n%s\n", s.name, s.text)
	}
	for _, d := range result.DepthEntries {
		fmt.Fprintf(os.Stdout, "\n[Depth %d, role %d]\n%s\n", d.Depth, d.Role, d.Content)
	}
	for _, name := range slices.Sorted(maps.Keys(result.OutletEntries)) {
		fmt.Fprintf(os.Stdout, "\n[Outlet %s]\n%s\n", name, strings.Join(result.OutletEntries[name], "\n"))
	}
}
