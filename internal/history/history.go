// Package history keeps per-session conversation transcripts in memory.
//
// Each session is identified by a UUID and owns its own slice of turns,
// so concurrent conversations never observe each other's history. The
// store trims the oldest turns when a session grows past its token
// budget, keeping the most recent exchanges intact.
package history

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cardsage/cardsage/internal/log"
)

// DefaultTokenBudget is a conservative history limit for Gemini models.
const DefaultTokenBudget = 8000

// Turn is one question and answer exchange within a session.
type Turn struct {
	Question  string
	Answer    string
	CreatedAt time.Time
}

// Store manages conversation history for all active sessions.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID][]Turn
	tokenBudget int
	logger      log.Logger
}

// New creates a history store with the given token budget.
// A budget of zero or less falls back to DefaultTokenBudget.
func New(tokenBudget int, logger log.Logger) *Store {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		sessions:    make(map[uuid.UUID][]Turn),
		tokenBudget: tokenBudget,
		logger:      logger,
	}
}

// Append records a completed exchange for the session, trimming the
// oldest turns if the transcript exceeds the token budget.
func (s *Store) Append(sessionID uuid.UUID, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], Turn{
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now(),
	})

	trimmed := trimToBudget(turns, s.tokenBudget)
	if dropped := len(turns) - len(trimmed); dropped > 0 {
		s.logger.Debug("trimmed session history",
			"session_id", sessionID,
			"dropped_turns", dropped,
			"remaining_turns", len(trimmed))
	}
	s.sessions[sessionID] = trimmed
}

// Turns returns a copy of the session's transcript in chronological order.
// An unknown session yields an empty slice, never an error.
func (s *Store) Turns(sessionID uuid.UUID) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return cp
}

// Render formats the session's transcript for prompt assembly.
// Returns the empty string when the session has no history yet.
func (s *Store) Render(sessionID uuid.UUID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n\n", turn.Question, turn.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Delete removes a session's transcript entirely.
func (s *Store) Delete(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports how many turns the session currently holds.
func (s *Store) Len(sessionID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// estimateTokens provides a rough token count.
// Uses rune count divided by 2 as a conservative estimate that works
// for both English (~4 chars/token) and CJK (~1.5 chars/token) text.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

func turnTokens(t Turn) int {
	return estimateTokens(t.Question) + estimateTokens(t.Answer)
}

// trimToBudget drops the oldest turns until the transcript fits.
// The most recent turn is always kept, even if it alone exceeds the
// budget, so the model never loses the exchange it just produced.
func trimToBudget(turns []Turn, budget int) []Turn {
	total := 0
	for _, t := range turns {
		total += turnTokens(t)
	}

	start := 0
	for total > budget && start < len(turns)-1 {
		total -= turnTokens(turns[start])
		start++
	}
	return turns[start:]
}
