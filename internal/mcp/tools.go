package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cardsage/cardsage/internal/catalog"
)

// Tool names exposed to MCP clients.
const (
	ToolAskCards    = "askCards"
	ToolSearchCards = "searchCards"
)

// maxSearchLimit caps searchCards result counts.
const maxSearchLimit = 100

// AskCardsInput defines the input schema for the askCards tool.
type AskCardsInput struct {
	Question  string `json:"question" jsonschema:"The card pricing question to answer"`
	SessionID string `json:"sessionId,omitempty" jsonschema:"Optional session UUID; calls sharing an ID share conversation context"`
}

// SearchCardsInput defines the input schema for the searchCards tool.
type SearchCardsInput struct {
	Query     string `json:"query" jsonschema:"Free-text search over the card price catalog"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum results to return (1-100, default 10)"`
	Set       string `json:"set,omitempty" jsonschema:"Restrict results to a card set"`
	Rarity    string `json:"rarity,omitempty" jsonschema:"Restrict results to a rarity"`
	Condition string `json:"condition,omitempty" jsonschema:"Restrict results to a condition grade"`
}

func (s *Server) registerAskCards() error {
	schema, err := jsonschema.For[AskCardsInput](nil)
	if err != nil {
		return fmt.Errorf("input schema: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolAskCards,
		Description: "Answer a Pokemon card pricing question using the indexed price catalog. " +
			"Retrieves matching card records and generates a grounded answer. " +
			"Pass the same sessionId across calls to keep conversation context.",
		InputSchema: schema,
	}, s.AskCards)

	return nil
}

func (s *Server) registerSearchCards() error {
	schema, err := jsonschema.For[SearchCardsInput](nil)
	if err != nil {
		return fmt.Errorf("input schema: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolSearchCards,
		Description: "Search the card price catalog by semantic similarity. " +
			"Returns raw card records with similarity scores, without answer generation.",
		InputSchema: schema,
	}, s.SearchCards)

	return nil
}

// AskCards handles the askCards MCP tool call.
func (s *Server) AskCards(ctx context.Context, _ *mcp.CallToolRequest, input AskCardsInput) (*mcp.CallToolResult, any, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "Error: question must not be empty"}},
			IsError: true,
		}, nil, nil
	}

	sessionID := s.defaultSession
	if input.SessionID != "" {
		parsed, err := uuid.Parse(input.SessionID)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "Error: sessionId must be a valid UUID"}},
				IsError: true,
			}, nil, nil
		}
		sessionID = parsed
	}

	answer, err := s.asker.Ask(ctx, sessionID, question)
	if err != nil {
		s.logger.Error("askCards failed", "error", err, "session_id", sessionID)
		return nil, nil, fmt.Errorf("askCards: %w", err)
	}

	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.ContextPreview) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, src := range answer.ContextPreview {
			b.WriteString("- ")
			b.WriteString(src)
			b.WriteString("\n")
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, nil, nil
}

// SearchCards handles the searchCards MCP tool call.
func (s *Server) SearchCards(ctx context.Context, _ *mcp.CallToolRequest, input SearchCardsInput) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "Error: query must not be empty"}},
			IsError: true,
		}, nil, nil
	}
	if input.Limit < 0 || input.Limit > maxSearchLimit {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: limit must be between 1 and %d", maxSearchLimit)}},
			IsError: true,
		}, nil, nil
	}

	opts := make([]catalog.SearchOption, 0, 4)
	if input.Limit > 0 {
		opts = append(opts, catalog.WithTopK(input.Limit))
	}
	if input.Set != "" {
		opts = append(opts, catalog.WithFilter("set", input.Set))
	}
	if input.Rarity != "" {
		opts = append(opts, catalog.WithFilter("rarity", input.Rarity))
	}
	if input.Condition != "" {
		opts = append(opts, catalog.WithFilter("condition", input.Condition))
	}

	results, err := s.searcher.Search(ctx, query, opts...)
	if err != nil {
		s.logger.Error("searchCards failed", "error", err)
		return nil, nil, fmt.Errorf("searchCards: %w", err)
	}

	if len(results) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "No matching card records found."}},
		}, nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d card records:\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%.3f] %s\n", i+1, r.Similarity, r.Document.Content)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, nil, nil
}
