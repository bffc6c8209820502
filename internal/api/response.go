package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/pipeline"
)

// ErrorResponse is the JSON body for every error status.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy to ensure headers are only sent after
// successful encoding, so a marshal failure can still return a 500.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, errMsg, details string, logger log.Logger) {
	writeJSON(w, status, ErrorResponse{
		Error:     errMsg,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}, logger)
}

// statusForError maps pipeline and catalog failures onto HTTP statuses.
// Upstream failure details are surfaced verbatim in the response body,
// trading some information leakage for debuggability.
func statusForError(err error) (status int, label string) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, catalog.ErrRetrieval):
		return http.StatusInternalServerError, "retrieval failed"
	case errors.Is(err, pipeline.ErrGeneration):
		return http.StatusInternalServerError, "generation failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
