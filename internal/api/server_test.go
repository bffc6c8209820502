package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/pipeline"
	"github.com/cardsage/cardsage/internal/prompt"
)

type mockAsker struct {
	answer   pipeline.Answer
	err      error
	calls    int
	sessions []uuid.UUID
}

func (m *mockAsker) Ask(_ context.Context, sessionID uuid.UUID, _ string) (pipeline.Answer, error) {
	m.calls++
	m.sessions = append(m.sessions, sessionID)
	return m.answer, m.err
}

type mockSearcher struct {
	results []catalog.Result
	err     error
	calls   int
}

func (m *mockSearcher) Search(_ context.Context, _ string, _ ...catalog.SearchOption) ([]catalog.Result, error) {
	m.calls++
	return m.results, m.err
}

func newTestServer(t *testing.T, asker Asker, searcher Searcher) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Pipeline:  asker,
		Catalog:   searcher,
		RateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func askRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-credential")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not the standard envelope: %v\n%s", err, rec.Body.String())
	}
	return resp
}

func TestAskHappyPath(t *testing.T) {
	asker := &mockAsker{answer: pipeline.Answer{
		Text:           "A near mint Charizard sells for $420.",
		ContextPreview: []string{"Charizard: $420", "Blastoise: $180"},
	}}
	srv := newTestServer(t, asker, &mockSearcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, askRequest(`{"question": "How much is Charizard?"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp AskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "A near mint Charizard sells for $420." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Context) != 2 || resp.Context[0] != "Charizard: $420" {
		t.Errorf("context = %v", resp.Context)
	}
	if _, err := uuid.Parse(resp.SessionID); err != nil {
		t.Errorf("session_id %q is not a UUID", resp.SessionID)
	}
	if got := rec.Header().Get(SessionHeader); got != resp.SessionID {
		t.Errorf("session header %q != body session_id %q", got, resp.SessionID)
	}
}

func TestAskRequiresBearerCredential(t *testing.T) {
	asker := &mockAsker{}
	searcher := &mockSearcher{}
	srv := newTestServer(t, asker, searcher)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"blank token", "Bearer    "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/ask",
				strings.NewReader(`{"question": "q"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Error != "authentication failed" {
				t.Errorf("error = %q", resp.Error)
			}
		})
	}

	if asker.calls != 0 || searcher.calls != 0 {
		t.Errorf("upstream invoked without credential: asker=%d searcher=%d", asker.calls, searcher.calls)
	}
}

func TestAskValidationBeforeUpstream(t *testing.T) {
	asker := &mockAsker{}
	srv := newTestServer(t, asker, &mockSearcher{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "how much is charizard"},
		{"missing question", `{}`},
		{"empty question", `{"question": ""}`},
		{"whitespace question", `{"question": "   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, askRequest(tt.body))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Error != "validation failed" {
				t.Errorf("error = %q", resp.Error)
			}
		})
	}

	if asker.calls != 0 {
		t.Errorf("pipeline invoked %d times on invalid input", asker.calls)
	}
}

func TestAskApologyPassthrough(t *testing.T) {
	asker := &mockAsker{answer: pipeline.Answer{Text: prompt.Apology}}
	srv := newTestServer(t, asker, &mockSearcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, askRequest(`{"question": "unknown card"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("apology is a soft outcome, status = %d", rec.Code)
	}
	var resp AskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != prompt.Apology {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Context) != 0 {
		t.Errorf("context = %v, want empty", resp.Context)
	}
}

func TestAskErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantLabel  string
	}{
		{
			name:       "retrieval failure",
			err:        errors.New("wrapped: " + catalog.ErrRetrieval.Error()),
			wantStatus: http.StatusInternalServerError,
			wantLabel:  "internal error",
		},
		{
			name:       "retrieval sentinel",
			err:        catalog.ErrRetrieval,
			wantStatus: http.StatusInternalServerError,
			wantLabel:  "retrieval failed",
		},
		{
			name:       "generation sentinel with upstream detail",
			err:        errors.Join(pipeline.ErrGeneration, errors.New("model overloaded")),
			wantStatus: http.StatusInternalServerError,
			wantLabel:  "generation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAsker{err: tt.err}, &mockSearcher{})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, askRequest(`{"question": "q"}`))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeError(t, rec)
			if resp.Error != tt.wantLabel {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantLabel)
			}
			if resp.Timestamp.IsZero() {
				t.Error("timestamp missing from error envelope")
			}
		})
	}
}

func TestAskGenerationDetailSurfaced(t *testing.T) {
	asker := &mockAsker{err: errors.Join(pipeline.ErrGeneration, errors.New("quota exceeded for model"))}
	srv := newTestServer(t, asker, &mockSearcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, askRequest(`{"question": "q"}`))

	resp := decodeError(t, rec)
	if !strings.Contains(resp.Details, "quota exceeded for model") {
		t.Errorf("upstream message not in details: %q", resp.Details)
	}
}

func TestSessionHeaderRoundTrip(t *testing.T) {
	asker := &mockAsker{answer: pipeline.Answer{Text: "answer"}}
	srv := newTestServer(t, asker, &mockSearcher{})

	// First request without a session header gets a fresh ID.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, askRequest(`{"question": "Q1"}`))
	first := rec.Header().Get(SessionHeader)
	if first == "" {
		t.Fatal("no session header on first response")
	}

	// Echoing the header continues the same session.
	req := askRequest(`{"question": "Q2"}`)
	req.Header.Set(SessionHeader, first)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get(SessionHeader); got != first {
		t.Errorf("session changed: %q then %q", first, got)
	}
	if len(asker.sessions) != 2 || asker.sessions[0] != asker.sessions[1] {
		t.Errorf("pipeline saw sessions %v, want the same twice", asker.sessions)
	}
}

func TestSessionHeaderInvalidGetsFresh(t *testing.T) {
	asker := &mockAsker{answer: pipeline.Answer{Text: "answer"}}
	srv := newTestServer(t, asker, &mockSearcher{})

	req := askRequest(`{"question": "q"}`)
	req.Header.Set(SessionHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := uuid.Parse(rec.Header().Get(SessionHeader)); err != nil {
		t.Errorf("invalid session header not replaced: %v", err)
	}
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &mockSearcher{results: []catalog.Result{
		{
			Document: catalog.Document{
				ID:       "base1-4",
				Content:  "Charizard, Base Set 4/102",
				Metadata: map[string]string{"set": "base1"},
			},
			Similarity: 0.93,
		},
	}}
	srv := newTestServer(t, &mockAsker{}, searcher)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=charizard&k=5", nil)
	req.Header.Set("Authorization", "Bearer test-credential")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Results[0].ID != "base1-4" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSearchValidation(t *testing.T) {
	searcher := &mockSearcher{}
	srv := newTestServer(t, &mockAsker{}, searcher)

	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=",
		"/api/v1/search?q=charizard&k=0",
		"/api/v1/search?q=charizard&k=101",
		"/api/v1/search?q=charizard&k=abc",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer test-credential")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
	if searcher.calls != 0 {
		t.Errorf("catalog invoked %d times on invalid input", searcher.calls)
	}
}

func TestHealthProbesSkipAuth(t *testing.T) {
	srv := newTestServer(t, &mockAsker{}, &mockSearcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health without credential = %d, want 200", rec.Code)
	}

	// No pool configured, so /ready reports unavailable rather than 401.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready without pool = %d, want 503", rec.Code)
	}
}
