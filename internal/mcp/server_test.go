package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/pipeline"
)

type mockAsker struct {
	answer    pipeline.Answer
	err       error
	questions []string
	sessions  []uuid.UUID
}

func (m *mockAsker) Ask(_ context.Context, sessionID uuid.UUID, question string) (pipeline.Answer, error) {
	m.questions = append(m.questions, question)
	m.sessions = append(m.sessions, sessionID)
	if m.err != nil {
		return pipeline.Answer{}, m.err
	}
	return m.answer, nil
}

type mockSearcher struct {
	results []catalog.Result
	err     error
	queries []string
	opts    [][]catalog.SearchOption
}

func (m *mockSearcher) Search(_ context.Context, query string, opts ...catalog.SearchOption) ([]catalog.Result, error) {
	m.queries = append(m.queries, query)
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// textContent extracts the text of the first content item.
func textContent(t *testing.T, content []mcpsdk.Content) string {
	t.Helper()
	if len(content) == 0 {
		t.Fatal("Result has no content")
	}
	tc, ok := content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("Content is %T, want *mcp.TextContent", content[0])
	}
	return tc.Text
}

func newTestServer(t *testing.T, asker Asker, searcher Searcher) *Server {
	t.Helper()
	s, err := NewServer(Config{
		Name:     "cardsage-test",
		Version:  "0.0.1",
		Logger:   log.NewNop(),
		Pipeline: asker,
		Catalog:  searcher,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

func TestNewServer_Validation(t *testing.T) {
	asker := &mockAsker{}
	searcher := &mockSearcher{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{Version: "1", Pipeline: asker, Catalog: searcher}},
		{"missing version", Config{Name: "x", Pipeline: asker, Catalog: searcher}},
		{"missing pipeline", Config{Name: "x", Version: "1", Catalog: searcher}},
		{"missing catalog", Config{Name: "x", Version: "1", Pipeline: asker}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(tt.cfg); err == nil {
				t.Error("NewServer() should reject incomplete config")
			}
		})
	}
}

func TestAskCards_AnswersWithSources(t *testing.T) {
	asker := &mockAsker{answer: pipeline.Answer{
		Text:           "A Near Mint Charizard runs about $420.",
		ContextPreview: []string{"Charizard, Base Set 4/102. Near Mint: $420.00"},
	}}
	s := newTestServer(t, asker, &mockSearcher{})

	result, _, err := s.AskCards(context.Background(), nil, AskCardsInput{Question: "charizard price?"})
	if err != nil {
		t.Fatalf("AskCards() error = %v", err)
	}
	if result.IsError {
		t.Fatal("AskCards() returned error result")
	}

	text := textContent(t, result.Content)
	if !strings.Contains(text, "about $420") {
		t.Errorf("Answer text missing, got %q", text)
	}
	if !strings.Contains(text, "Sources:") || !strings.Contains(text, "Base Set 4/102") {
		t.Errorf("Context preview missing, got %q", text)
	}
}

func TestAskCards_EmptyQuestion(t *testing.T) {
	asker := &mockAsker{}
	s := newTestServer(t, asker, &mockSearcher{})

	result, _, err := s.AskCards(context.Background(), nil, AskCardsInput{Question: "   "})
	if err != nil {
		t.Fatalf("AskCards() error = %v", err)
	}
	if !result.IsError {
		t.Error("Blank question should produce an error result")
	}
	if len(asker.questions) != 0 {
		t.Error("Pipeline should not be invoked for a blank question")
	}
}

func TestAskCards_SessionRouting(t *testing.T) {
	asker := &mockAsker{}
	s := newTestServer(t, asker, &mockSearcher{})

	want := uuid.New()
	if _, _, err := s.AskCards(context.Background(), nil, AskCardsInput{Question: "q1", SessionID: want.String()}); err != nil {
		t.Fatalf("AskCards() error = %v", err)
	}
	if asker.sessions[0] != want {
		t.Errorf("Session = %v, want %v", asker.sessions[0], want)
	}

	// Calls without a session ID share the server default session.
	if _, _, err := s.AskCards(context.Background(), nil, AskCardsInput{Question: "q2"}); err != nil {
		t.Fatalf("AskCards() error = %v", err)
	}
	if _, _, err := s.AskCards(context.Background(), nil, AskCardsInput{Question: "q3"}); err != nil {
		t.Fatalf("AskCards() error = %v", err)
	}
	if asker.sessions[1] != asker.sessions[2] {
		t.Error("Calls without sessionId should share one session")
	}
	if asker.sessions[1] == want {
		t.Error("Default session should differ from an explicit one")
	}
}

func TestAskCards_InvalidSessionID(t *testing.T) {
	asker := &mockAsker{}
	s := newTestServer(t, asker, &mockSearcher{})

	result, _, err := s.AskCards(context.Background(), nil, AskCardsInput{Question: "q", SessionID: "not-a-uuid"})
	if err != nil {
		t.Fatalf("AskCards() error = %v", err)
	}
	if !result.IsError {
		t.Error("Malformed session ID should produce an error result")
	}
	if len(asker.questions) != 0 {
		t.Error("Pipeline should not be invoked for a malformed session ID")
	}
}

func TestAskCards_PipelineError(t *testing.T) {
	wantErr := errors.New("model overloaded")
	s := newTestServer(t, &mockAsker{err: wantErr}, &mockSearcher{})

	_, _, err := s.AskCards(context.Background(), nil, AskCardsInput{Question: "q"})
	if err == nil {
		t.Fatal("AskCards() should propagate pipeline errors")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Error = %v, want wrapped %v", err, wantErr)
	}
}

func TestSearchCards_FormatsResults(t *testing.T) {
	searcher := &mockSearcher{results: []catalog.Result{
		{Document: catalog.Document{ID: "c1", Content: "Charizard, Base Set 4/102. Near Mint: $420.00"}, Similarity: 0.91},
		{Document: catalog.Document{ID: "c2", Content: "Charizard, Base Set 2 4/130. Played: $95.00"}, Similarity: 0.82},
	}}
	s := newTestServer(t, &mockAsker{}, searcher)

	result, _, err := s.SearchCards(context.Background(), nil, SearchCardsInput{Query: "charizard"})
	if err != nil {
		t.Fatalf("SearchCards() error = %v", err)
	}

	text := textContent(t, result.Content)
	if !strings.Contains(text, "Found 2 card records") {
		t.Errorf("Missing header, got %q", text)
	}
	if !strings.Contains(text, "[0.910]") || !strings.Contains(text, "Near Mint: $420.00") {
		t.Errorf("Missing first result, got %q", text)
	}
	// Retrieval order is preserved
	if strings.Index(text, "c1") > strings.Index(text, "Played") && strings.Index(text, "$420.00") > strings.Index(text, "$95.00") {
		t.Errorf("Results out of order: %q", text)
	}
}

func TestSearchCards_EmptyCatalog(t *testing.T) {
	s := newTestServer(t, &mockAsker{}, &mockSearcher{})

	result, _, err := s.SearchCards(context.Background(), nil, SearchCardsInput{Query: "unknown card"})
	if err != nil {
		t.Fatalf("SearchCards() error = %v", err)
	}
	if result.IsError {
		t.Error("Empty catalog is not an error")
	}
	if text := textContent(t, result.Content); !strings.Contains(text, "No matching card records") {
		t.Errorf("Got %q", text)
	}
}

func TestSearchCards_Validation(t *testing.T) {
	searcher := &mockSearcher{}
	s := newTestServer(t, &mockAsker{}, searcher)

	tests := []struct {
		name  string
		input SearchCardsInput
	}{
		{"empty query", SearchCardsInput{Query: "  "}},
		{"negative limit", SearchCardsInput{Query: "q", Limit: -1}},
		{"limit too large", SearchCardsInput{Query: "q", Limit: 101}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := s.SearchCards(context.Background(), nil, tt.input)
			if err != nil {
				t.Fatalf("SearchCards() error = %v", err)
			}
			if !result.IsError {
				t.Error("Expected error result")
			}
		})
	}
	if len(searcher.queries) != 0 {
		t.Error("Catalog should not be queried for invalid input")
	}
}

func TestSearchCards_ForwardsFilters(t *testing.T) {
	searcher := &mockSearcher{}
	s := newTestServer(t, &mockAsker{}, searcher)

	_, _, err := s.SearchCards(context.Background(), nil, SearchCardsInput{
		Query: "holo", Limit: 5, Set: "Base Set", Rarity: "Rare Holo", Condition: "NM",
	})
	if err != nil {
		t.Fatalf("SearchCards() error = %v", err)
	}
	if len(searcher.opts) != 1 || len(searcher.opts[0]) != 4 {
		t.Fatalf("Expected topK plus three filters, got %d options", len(searcher.opts[0]))
	}
}
