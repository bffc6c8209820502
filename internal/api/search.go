package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/log"
)

// Searcher exposes raw similarity search over the card catalog.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...catalog.SearchOption) ([]catalog.Result, error)
}

// SearchResult is one entry in the search response.
type SearchResult struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float32           `json:"similarity"`
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

type searchHandler struct {
	catalog Searcher
	logger  log.Logger
}

// search runs a similarity query without prompt assembly or generation.
// Useful for debugging retrieval quality and for non-conversational
// clients that only want ranked records.
//
// Query parameters:
//   - q: the search text (required)
//   - k: result count, 1 to 100 (optional)
//   - set, rarity, condition: metadata equality filters (optional)
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "validation failed",
			"query parameter q is required", h.logger)
		return
	}

	var opts []catalog.SearchOption
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 1 || k > 100 {
			writeError(w, http.StatusBadRequest, "validation failed",
				"k must be an integer between 1 and 100", h.logger)
			return
		}
		opts = append(opts, catalog.WithTopK(k))
	}
	for _, key := range []string{"set", "rarity", "condition"} {
		if v := r.URL.Query().Get(key); v != "" {
			opts = append(opts, catalog.WithFilter(key, v))
		}
	}

	results, err := h.catalog.Search(r.Context(), q, opts...)
	if err != nil {
		status, label := statusForError(err)
		h.logger.Error("search failed", "error", err, "query", q)
		writeError(w, status, label, err.Error(), h.logger)
		return
	}

	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{
			ID:         res.Document.ID,
			Content:    res.Document.Content,
			Metadata:   res.Document.Metadata,
			Similarity: res.Similarity,
		}
	}

	writeJSON(w, http.StatusOK, SearchResponse{Results: out, Count: len(out)}, h.logger)
}
