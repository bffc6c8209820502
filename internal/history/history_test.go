package history

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/cardsage/cardsage/internal/log"
)

func TestAppendAccumulatesInOrder(t *testing.T) {
	store := New(0, log.NewNop())
	sessionID := uuid.New()

	store.Append(sessionID, "How much is Charizard?", "$420 near mint.")
	store.Append(sessionID, "And Blastoise?", "$180 near mint.")

	turns := store.Turns(sessionID)
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Question != "How much is Charizard?" || turns[0].Answer != "$420 near mint." {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Question != "And Blastoise?" {
		t.Errorf("second turn = %+v", turns[1])
	}
}

func TestRenderTranscript(t *testing.T) {
	store := New(0, log.NewNop())
	sessionID := uuid.New()

	if got := store.Render(sessionID); got != "" {
		t.Errorf("fresh session transcript = %q, want empty", got)
	}

	store.Append(sessionID, "Q1", "A1")
	store.Append(sessionID, "Q2", "A2")

	got := store.Render(sessionID)
	want := "User: Q1\nAssistant: A1\n\nUser: Q2\nAssistant: A2"
	if got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestSessionIsolation(t *testing.T) {
	store := New(0, log.NewNop())
	a, b := uuid.New(), uuid.New()

	store.Append(a, "question from a", "answer for a")

	if n := store.Len(b); n != 0 {
		t.Errorf("session b saw %d turns from session a", n)
	}
	if got := store.Render(b); got != "" {
		t.Errorf("session b transcript = %q", got)
	}
}

func TestTrimDropsOldestFirst(t *testing.T) {
	// Each turn is 100 runes total, so 50 estimated tokens.
	// A 120 token budget holds two turns.
	store := New(120, log.NewNop())
	sessionID := uuid.New()

	filler := strings.Repeat("x", 50)
	for i := range 5 {
		store.Append(sessionID, fmt.Sprintf("q%d%s", i, filler[:48]), filler)
	}

	turns := store.Turns(sessionID)
	if len(turns) != 2 {
		t.Fatalf("got %d turns after trim, want 2", len(turns))
	}
	if !strings.HasPrefix(turns[0].Question, "q3") {
		t.Errorf("oldest surviving turn = %q, want q3", turns[0].Question)
	}
	if !strings.HasPrefix(turns[1].Question, "q4") {
		t.Errorf("newest turn = %q, want q4", turns[1].Question)
	}
}

func TestTrimKeepsLatestOversizedTurn(t *testing.T) {
	store := New(10, log.NewNop())
	sessionID := uuid.New()

	store.Append(sessionID, strings.Repeat("q", 500), strings.Repeat("a", 500))

	if n := store.Len(sessionID); n != 1 {
		t.Errorf("oversized turn dropped, len = %d", n)
	}
}

func TestDelete(t *testing.T) {
	store := New(0, log.NewNop())
	sessionID := uuid.New()

	store.Append(sessionID, "q", "a")
	store.Delete(sessionID)

	if n := store.Len(sessionID); n != 0 {
		t.Errorf("len after delete = %d", n)
	}
}

func TestConcurrentSessions(t *testing.T) {
	store := New(0, log.NewNop())

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
	}

	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				store.Append(id, "question", "answer")
				store.Render(id)
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		if n := store.Len(id); n != 25 {
			t.Errorf("session %s has %d turns, want 25", id, n)
		}
	}
}
