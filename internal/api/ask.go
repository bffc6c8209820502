package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/pipeline"
)

// maxAskBodySize caps the request body at 1 MiB.
const maxAskBodySize = 1 << 20

// Asker runs one question through the answer pipeline.
// Interface defined here so tests can substitute the pipeline.
type Asker interface {
	Ask(ctx context.Context, sessionID uuid.UUID, question string) (pipeline.Answer, error)
}

// AskRequest is the body of POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the success body of POST /api/v1/ask.
type AskResponse struct {
	Answer    string    `json:"answer"`
	Context   []string  `json:"context,omitempty"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

type askHandler struct {
	pipeline Asker
	logger   log.Logger
}

// ask answers one question within the request's session.
// Validation failures return 400 before any retrieval or model call.
func (h *askHandler) ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAskBodySize)

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed",
			"request body must be JSON with a question field", h.logger)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "validation failed",
			"question must not be empty", h.logger)
		return
	}

	sessionID, ok := sessionIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error",
			"session not resolved", h.logger)
		return
	}

	answer, err := h.pipeline.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		status, label := statusForError(err)
		h.logger.Error("ask failed",
			"error", err,
			"session_id", sessionID,
			"status", status,
		)
		writeError(w, status, label, err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{
		Answer:    answer.Text,
		Context:   answer.ContextPreview,
		SessionID: sessionID.String(),
		Timestamp: time.Now().UTC(),
	}, h.logger)
}
