package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/history"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/prompt"
)

type mockRetriever struct {
	results []catalog.Result
	err     error
	calls   int
	queries []string
}

func (m *mockRetriever) Search(_ context.Context, query string, _ ...catalog.SearchOption) ([]catalog.Result, error) {
	m.calls++
	m.queries = append(m.queries, query)
	return m.results, m.err
}

type mockCompleter struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (m *mockCompleter) Complete(_ context.Context, promptText string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, promptText)
	return m.response, m.err
}

func doc(id, content string) catalog.Result {
	return catalog.Result{
		Document:   catalog.Document{ID: id, Content: content},
		Similarity: 0.9,
	}
}

func newTestPipeline(r *mockRetriever, c *mockCompleter) *Pipeline {
	return New(r, c, history.New(0, log.NewNop()), 10, log.NewNop())
}

func TestAskHappyPath(t *testing.T) {
	r := &mockRetriever{results: []catalog.Result{
		doc("a", "Charizard, Base Set 4/102. Near mint: $420.00"),
		doc("b", "Charizard, Base Set 2 4/130. Near mint: $150.00"),
		doc("c", "Dark Charizard, Team Rocket 4/82. Near mint: $90.00"),
	}}
	c := &mockCompleter{response: "A near mint Base Set Charizard sells for about $420."}
	p := newTestPipeline(r, c)

	ans, err := p.Ask(context.Background(), uuid.New(), "How much is Charizard?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "A near mint Base Set Charizard sells for about $420." {
		t.Errorf("answer = %q", ans.Text)
	}
	if r.calls != 1 || c.calls != 1 {
		t.Errorf("retriever calls = %d, completer calls = %d", r.calls, c.calls)
	}
}

func TestAskEmptyQuestionBeforeUpstream(t *testing.T) {
	r := &mockRetriever{}
	c := &mockCompleter{}
	p := newTestPipeline(r, c)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := p.Ask(context.Background(), uuid.New(), q)
		if !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("question %q: got %v, want ErrEmptyQuestion", q, err)
		}
	}
	if r.calls != 0 || c.calls != 0 {
		t.Errorf("upstream invoked on empty question: retriever=%d completer=%d", r.calls, c.calls)
	}
}

func TestAskApologyOnEmptyRetrieval(t *testing.T) {
	c := &mockCompleter{response: "should never be used"}
	p := newTestPipeline(&mockRetriever{}, c)
	sessionID := uuid.New()

	ans, err := p.Ask(context.Background(), sessionID, "How much is Snorlax?")
	if err != nil {
		t.Fatalf("empty retrieval is not an error: %v", err)
	}
	if ans.Text != prompt.Apology {
		t.Errorf("answer = %q, want fixed apology", ans.Text)
	}
	if len(ans.ContextPreview) != 0 {
		t.Errorf("context preview = %v, want empty", ans.ContextPreview)
	}
	if c.calls != 0 {
		t.Errorf("completer invoked %d times on empty retrieval", c.calls)
	}
	if p.history.Len(sessionID) != 0 {
		t.Error("apology must not be recorded in history")
	}
}

func TestAskContextPreviewOrderAndSize(t *testing.T) {
	tests := []struct {
		name    string
		results []catalog.Result
		want    []string
	}{
		{
			name:    "one result",
			results: []catalog.Result{doc("a", "first")},
			want:    []string{"first"},
		},
		{
			name:    "two results",
			results: []catalog.Result{doc("a", "first"), doc("b", "second")},
			want:    []string{"first", "second"},
		},
		{
			name: "capped at two",
			results: []catalog.Result{
				doc("a", "first"), doc("b", "second"), doc("c", "third"),
			},
			want: []string{"first", "second"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(&mockRetriever{results: tt.results}, &mockCompleter{response: "ok"})

			ans, err := p.Ask(context.Background(), uuid.New(), "q")
			if err != nil {
				t.Fatalf("Ask: %v", err)
			}
			if len(ans.ContextPreview) != len(tt.want) {
				t.Fatalf("preview = %v, want %v", ans.ContextPreview, tt.want)
			}
			for i := range tt.want {
				if ans.ContextPreview[i] != tt.want[i] {
					t.Errorf("preview[%d] = %q, want %q", i, ans.ContextPreview[i], tt.want[i])
				}
			}
		})
	}
}

func TestAskPromptContainsRankedContext(t *testing.T) {
	r := &mockRetriever{results: []catalog.Result{
		doc("a", "most relevant"),
		doc("b", "less relevant"),
	}}
	c := &mockCompleter{response: "ok"}
	p := newTestPipeline(r, c)

	if _, err := p.Ask(context.Background(), uuid.New(), "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	rendered := c.prompts[0]
	if !strings.Contains(rendered, "most relevant\n\nless relevant") {
		t.Errorf("context block missing or reordered:\n%s", rendered)
	}
}

func TestAskHistoryAccumulation(t *testing.T) {
	r := &mockRetriever{results: []catalog.Result{doc("a", "card data")}}
	c := &mockCompleter{}
	p := newTestPipeline(r, c)
	sessionID := uuid.New()

	c.response = "A1"
	if _, err := p.Ask(context.Background(), sessionID, "Q1"); err != nil {
		t.Fatal(err)
	}
	c.response = "A2"
	if _, err := p.Ask(context.Background(), sessionID, "Q2"); err != nil {
		t.Fatal(err)
	}
	c.response = "A3"
	if _, err := p.Ask(context.Background(), sessionID, "Q3"); err != nil {
		t.Fatal(err)
	}

	third := c.prompts[2]
	q1 := strings.Index(third, "User: Q1\nAssistant: A1")
	q2 := strings.Index(third, "User: Q2\nAssistant: A2")
	if q1 < 0 || q2 < 0 {
		t.Fatalf("history section incomplete:\n%s", third)
	}
	if q1 > q2 {
		t.Error("history turns out of chronological order")
	}
}

func TestAskSessionsDoNotShareHistory(t *testing.T) {
	r := &mockRetriever{results: []catalog.Result{doc("a", "card data")}}
	c := &mockCompleter{response: "answer"}
	p := newTestPipeline(r, c)

	a, b := uuid.New(), uuid.New()
	if _, err := p.Ask(context.Background(), a, "secret question"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Ask(context.Background(), b, "other question"); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(c.prompts[1], "secret question") {
		t.Error("session b's prompt leaked session a's history")
	}
}

func TestAskRetrievalErrorPropagates(t *testing.T) {
	r := &mockRetriever{err: catalog.ErrRetrieval}
	c := &mockCompleter{}
	p := newTestPipeline(r, c)

	_, err := p.Ask(context.Background(), uuid.New(), "q")
	if !errors.Is(err, catalog.ErrRetrieval) {
		t.Errorf("got %v, want ErrRetrieval", err)
	}
	if c.calls != 0 {
		t.Error("completer invoked after retrieval failure")
	}
}

func TestAskGenerationErrorSurfacesUpstreamMessage(t *testing.T) {
	r := &mockRetriever{results: []catalog.Result{doc("a", "card data")}}
	c := &mockCompleter{err: errors.New("model overloaded")}
	p := newTestPipeline(r, c)
	sessionID := uuid.New()

	_, err := p.Ask(context.Background(), sessionID, "q")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("got %v, want ErrGeneration", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("upstream message not surfaced: %v", err)
	}
	if p.history.Len(sessionID) != 0 {
		t.Error("failed generation must not be recorded in history")
	}
}

func TestAskDeterministicReplay(t *testing.T) {
	run := func() (string, string) {
		r := &mockRetriever{results: []catalog.Result{
			doc("a", "Charizard: $420"), doc("b", "Blastoise: $180"),
		}}
		c := &mockCompleter{response: "**Charizard** costs [more](https://example.com/prices)"}
		p := newTestPipeline(r, c)
		sessionID := uuid.New()

		ans, err := p.Ask(context.Background(), sessionID, "compare prices")
		if err != nil {
			t.Fatal(err)
		}
		return c.prompts[0], ans.Text
	}

	p1, a1 := run()
	p2, a2 := run()
	if p1 != p2 {
		t.Error("rendered prompts differ across identical runs")
	}
	if a1 != a2 {
		t.Error("answers differ across identical runs")
	}
}
