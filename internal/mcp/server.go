package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"lorebind/internal/resolve"
	"lorebind/internal/store"
)

type Resolver interface {
	Resolve(ctx context.Context, req resolve.Request) (*resolve.Result, error)
}

// Catalog is the read-only store surface behind the browsing tools.
type Catalog interface {
	ListBooks(ctx context.Context, ownerID string) ([]store.Book, error)
	GetBook(ctx context.Context, ownerID, bookID string) (*store.Book, error)
	ListEntries(ctx context.Context, bookID string) ([]store.EntryRecord, error)
	ListAllBindings(ctx context.Context, ownerID string) ([]store.Binding, error)
}

type Server struct {
	owner    string
	resolver Resolver
	catalog  Catalog
	logger   *zap.Logger
	mcp      *sdk.Server
}

func NewServer(resolver Resolver, catalog Catalog, owner, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		owner:    owner,
		resolver: resolver,
		catalog:  catalog,
		logger:   logger,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "lorebind",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	s.logger.Info("mcp server starting", zap.String("owner", s.owner))
	return s.mcp.Run(ctx, transport)
}
