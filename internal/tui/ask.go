package tui

import (
	"context"
	"fmt"
	"log/slog"

	tea "charm.land/bubbletea/v2"

	"github.com/cardsage/cardsage/internal/pipeline"
)

// answerMsg carries a completed answer back into the event loop.
type answerMsg struct {
	answer pipeline.Answer
}

// askErrMsg carries a failed question back into the event loop.
type askErrMsg struct {
	err error
}

// startAsk returns a command that asks the pipeline one question.
//
// The context is created here, on the event loop, so askCancel is set
// before the command runs. Esc and Ctrl+C cancel through it; the
// timeout prevents indefinite hangs.
func (t *TUI) startAsk(query string) tea.Cmd {
	ctx, cancel := context.WithTimeout(t.ctx, askTimeout)
	t.askCancel = cancel

	sessionID := t.sessionID
	asker := t.asker

	return func() (msg tea.Msg) {
		// Panic recovery to prevent TUI lockup
		defer func() {
			if r := recover(); r != nil {
				slog.Error("ask panic recovered", "panic", r)
				msg = askErrMsg{err: fmt.Errorf("ask panic: %v", r)}
			}
		}()

		answer, err := asker.Ask(ctx, sessionID, query)
		if err != nil {
			return askErrMsg{err: err}
		}
		return answerMsg{answer: answer}
	}
}
