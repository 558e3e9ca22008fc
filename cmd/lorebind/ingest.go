package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lorebind/internal/ingest"
)

var ingestFull bool

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load markdown books into the store",
		RunE:  runIngest,
	}
	cmd.Flags().BoolVar(&ingestFull, "full", false, "Force full re-ingestion (ignore incremental hashes)")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	result, err := ingest.Run(ctx, p.cfg, p.db, ingest.Options{Full: ingestFull, Logger: p.logger})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "Ingestion complete.")
	fmt.Fprintf(os.Stdout, "  Books upserted:    %d\n", result.BooksUpserted)
	fmt.Fprintf(os.Stdout, "  Books unchanged:   %d\n", result.BooksSkipped)
	fmt.Fprintf(os.Stdout, "  Books removed:     %d\n", result.BooksRemoved)
	fmt.Fprintf(os.Stdout, "  Entries upserted:  %d\n", result.EntriesUpserted)
	fmt.Fprintf(os.Stdout, "  Bindings upserted: %d\n", result.BindingsUpserted)
	fmt.Fprintf(os.Stdout, "  Files skipped:     %d\n", result.FilesSkipped)

	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stdout, "\nErrors (%d):\n", len(result.Errors))
		for _, item := range result.Errors {
			fmt.Fprintf(os.Stdout, "  - %v\n", item)
		}
		return fmt.Errorf("ingestion completed with errors")
	}

	return nil
}
