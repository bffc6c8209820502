// Package pipeline orchestrates a single question through retrieval,
// prompt assembly, model generation, and answer cleanup.
//
// The flow is a plain function chain: retrieve ranked card records,
// short-circuit with an apology when nothing matches, otherwise render
// the prompt with session history and call the model. Each stage
// returns an explicit error; there is no retry and no partial answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/history"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/prompt"
)

// ErrEmptyQuestion is returned before any upstream call when the
// question is blank.
var ErrEmptyQuestion = errors.New("question must not be empty")

// ErrGeneration wraps model completion failures. The upstream message
// is preserved for the response body.
var ErrGeneration = errors.New("generation failed")

// contextPreviewSize caps how many retrieved records are echoed back
// to the caller alongside the answer.
const contextPreviewSize = 2

// Retriever finds the catalog records most similar to a question.
// Interface defined by the consumer; satisfied by *catalog.Store.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...catalog.SearchOption) ([]catalog.Result, error)
}

// Completer sends a fully rendered prompt to a language model and
// returns the generated text.
type Completer interface {
	Complete(ctx context.Context, promptText string) (string, error)
}

// Answer is the outcome of one pipeline run.
type Answer struct {
	// Text is the cleaned answer, or the fixed apology when retrieval
	// found nothing.
	Text string
	// ContextPreview holds up to two retrieved record contents in
	// retrieval order, for display alongside the answer.
	ContextPreview []string
}

// Pipeline answers card pricing questions over a vector-indexed catalog.
type Pipeline struct {
	retriever Retriever
	completer Completer
	history   *history.Store
	topK      int
	logger    log.Logger
}

// New creates a Pipeline. topK of zero or less falls back to the
// retriever's default.
func New(retriever Retriever, completer Completer, hist *history.Store, topK int, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		retriever: retriever,
		completer: completer,
		history:   hist,
		topK:      topK,
		logger:    logger,
	}
}

// Ask runs the full pipeline for one question within a session.
//
// When retrieval returns no records the model is never invoked and the
// fixed apology is returned; that outcome is not an error and is not
// recorded in the session history. Successful generations append the
// question and cleaned answer to the session transcript.
func (p *Pipeline) Ask(ctx context.Context, sessionID uuid.UUID, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	var opts []catalog.SearchOption
	if p.topK > 0 {
		opts = append(opts, catalog.WithTopK(p.topK))
	}
	results, err := p.retriever.Search(ctx, question, opts...)
	if err != nil {
		return Answer{}, err
	}

	if len(results) == 0 {
		p.logger.Info("no matching records, skipping generation",
			"session_id", sessionID)
		return Answer{Text: prompt.Apology}, nil
	}

	// Retrieval order carries the relevance ranking, so the context
	// block and the preview both preserve it.
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Document.Content
	}
	contextText := strings.Join(contents, "\n\n")

	historyText := p.history.Render(sessionID)
	rendered := prompt.Render(question, contextText, historyText)

	raw, err := p.completer.Complete(ctx, rendered)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %s", ErrGeneration, err)
	}

	answer := CleanAnswer(raw)
	p.history.Append(sessionID, question, answer)

	p.logger.Debug("answered question",
		"session_id", sessionID,
		"retrieved", len(results),
		"answer_length", len(answer))

	return Answer{
		Text:           answer,
		ContextPreview: contents[:min(len(contents), contextPreviewSize)],
	}, nil
}
