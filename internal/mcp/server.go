// Package mcp exposes CardSage over the Model Context Protocol.
//
// The server publishes two tools: askCards answers a pricing question
// through the full retrieval pipeline, searchCards runs a raw catalog
// similarity search. This lets MCP clients (Genkit CLI, Cursor, editor
// agents) consult the price catalog through a standard protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/pipeline"
)

// Asker answers card pricing questions within a session.
type Asker interface {
	Ask(ctx context.Context, sessionID uuid.UUID, question string) (pipeline.Answer, error)
}

// Searcher runs similarity search against the card catalog.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...catalog.SearchOption) ([]catalog.Result, error)
}

// Server wraps the MCP SDK server around the question pipeline and catalog.
type Server struct {
	mcpServer *mcp.Server
	asker     Asker
	searcher  Searcher
	logger    log.Logger

	// defaultSession receives askCards calls that carry no session ID,
	// so consecutive tool calls from one client share conversation state.
	defaultSession uuid.UUID
}

// Config holds MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Logger   log.Logger
	Pipeline Asker
	Catalog  Searcher
}

// NewServer creates an MCP server with the askCards and searchCards tools
// registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer:      mcpServer,
		asker:          cfg.Pipeline,
		searcher:       cfg.Catalog,
		logger:         cfg.Logger,
		defaultSession: uuid.New(),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport. Blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerAskCards(); err != nil {
		return fmt.Errorf("askCards: %w", err)
	}
	if err := s.registerSearchCards(); err != nil {
		return fmt.Errorf("searchCards: %w", err)
	}
	return nil
}
