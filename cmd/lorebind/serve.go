package main

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lorebind/internal/mcp"
	"lorebind/internal/resolve"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	if err := p.db.EnsureSchema(ctx); err != nil {
		return err
	}

	service := resolve.NewService(p.db, resolve.WithLogger(p.logger))
	server := mcp.NewServer(service, p.db, p.cfg.Owner, version, p.logger)
	p.logger.Info("mcp server starting", zap.String("owner", p.cfg.Owner), zap.String("version", version))
	return server.Run(ctx, &sdk.StdioTransport{})
}
