package tui

import (
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	Submit     key.Binding
	NewLine    key.Binding
	History    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	EscCancel  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:    key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		History:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		Cancel:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		EscCancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

// forState returns the bindings shown in the help bar for a given state.
func (k keyMap) forState(s State) []key.Binding {
	switch s {
	case StateThinking:
		return []key.Binding{k.EscCancel, k.Cancel, k.ScrollUp, k.ScrollDown}
	default:
		return []key.Binding{k.Submit, k.NewLine, k.History, k.Cancel, k.Quit, k.ScrollUp}
	}
}

func (t *TUI) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return t.handleCtrlC()
		case 'd':
			cmd := t.cleanup()
			return t, cmd
		}
	}

	switch k.Code {
	case tea.KeyEnter:
		if t.state == StateInput {
			// Enter submits, Shift+Enter falls through to the textarea
			// as a newline.
			if k.Mod&tea.ModShift == 0 {
				return t.handleSubmit()
			}
		}

	case tea.KeyUp:
		// Up at the first line navigates history, otherwise passes
		// to the textarea.
		if t.state == StateInput && t.input.Line() == 0 {
			return t.navigateHistory(-1)
		}

	case tea.KeyDown:
		if t.state == StateInput && t.input.Line() == t.input.LineCount()-1 {
			return t.navigateHistory(1)
		}

	case tea.KeyEscape:
		if t.state == StateThinking {
			t.cancelAsk()
			t.state = StateInput
			return t, nil
		}

	case tea.KeyPgUp:
		t.viewport.PageUp()
		return t, nil

	case tea.KeyPgDown:
		t.viewport.PageDown()
		return t, nil
	}

	// Typing is always allowed, even while waiting for an answer.
	var cmd tea.Cmd
	t.input, cmd = t.input.Update(msg)
	return t, cmd
}

func (t *TUI) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within 1 second quits.
	if now.Sub(t.lastCtrlC) < time.Second {
		cmd := t.cleanup()
		return t, cmd
	}
	t.lastCtrlC = now

	switch t.state {
	case StateInput:
		t.input.Reset()
		return t, nil

	case StateThinking:
		t.cancelAsk()
		t.state = StateInput
		t.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		return t, nil
	}

	return t, nil
}

func (t *TUI) navigateHistory(delta int) (tea.Model, tea.Cmd) {
	if len(t.history) == 0 {
		return t, nil
	}

	t.historyIdx += delta

	if t.historyIdx < 0 {
		t.historyIdx = 0
	}
	if t.historyIdx > len(t.history) {
		t.historyIdx = len(t.history)
	}

	if t.historyIdx == len(t.history) {
		t.input.Reset()
	} else {
		t.input.SetValue(t.history[t.historyIdx])
	}
	return t, nil
}

// cancelAsk cancels the in-flight question, if any. Also used after an
// answer arrives to release the timeout timer.
func (t *TUI) cancelAsk() {
	if t.askCancel != nil {
		t.askCancel()
		t.askCancel = nil
	}
}

// cleanup cancels any in-flight question and returns the quit command.
func (t *TUI) cleanup() tea.Cmd {
	if t.ctxCancel != nil {
		t.ctxCancel()
		t.ctxCancel = nil
	}
	t.cancelAsk()
	return tea.Quit
}
