// Package catalog manages the card price catalog with vector search.
//
// The Store embeds query text via the injected ai.Embedder and runs
// nearest-neighbor queries against PostgreSQL + pgvector. The table name,
// column mapping, and distance metric come from configuration (see
// TableConfig); the Querier interface isolates the SQL layer for testing.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// ErrRetrieval marks a failed vector search or embedding call. The HTTP
// boundary maps it to a 500 retrieval failure.
var ErrRetrieval = errors.New("retrieval failed")

// Store manages catalog documents with vector search capabilities.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a new Store. A nil logger falls back to slog.Default().
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// embed generates the embedding vector for a single text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding returned")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add embeds a document's content and upserts it into the catalog.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	createdAt := pgtype.Timestamptz{
		Time:  doc.CreateAt,
		Valid: !doc.CreateAt.IsZero(),
	}

	if err := s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: &embedding,
		Metadata:  metadataJSON,
		CreatedAt: createdAt,
	}); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search performs semantic search on the catalog. Results come back
// nearest-first under the configured metric; an empty slice (no documents,
// or an empty catalog) is a valid outcome, not an error.
//
// A per-search timeout bounds the embedding call plus the vector query.
//
// Example:
//
//	results, err := store.Search(ctx, "Charizard PSA 10 price",
//	    catalog.WithTopK(10))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryEmbedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding generation timeout: %w", ErrRetrieval, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	topK := cfg.topK
	if topK < 1 || topK > math.MaxInt32 {
		topK = 10
	}

	rows, err := s.queries.SearchDocuments(queryCtx, SearchDocumentsParams{
		QueryEmbedding: &queryEmbedding,
		FilterMetadata: filterJSON,
		ResultLimit:    int32(topK),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: search query timeout: %w", ErrRetrieval, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	return s.rowsToResults(rows), nil
}

// Count returns the number of documents matching the given filter, or the
// total count when filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	count, err := s.queries.CountDocuments(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}

	// Overflow protection for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Delete removes a document from the catalog.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("deleting document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// List returns up to limit documents ordered newest-first, without
// similarity calculation. Used by catalog maintenance commands.
func (s *Store) List(ctx context.Context, limit int32) ([]Document, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.queries.ListDocuments(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	documents := make([]Document, 0, len(rows))
	for _, row := range rows {
		documents = append(documents, Document{
			ID:       row.ID,
			Content:  row.Content,
			Metadata: s.parseMetadata(row.ID, row.Metadata),
			CreateAt: timestampOrZero(row.CreatedAt),
		})
	}
	return documents, nil
}

// rowsToResults converts search rows to business model Results.
func (s *Store) rowsToResults(rows []SearchDocumentsRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			Document: Document{
				ID:       row.ID,
				Content:  row.Content,
				Metadata: s.parseMetadata(row.ID, row.Metadata),
				CreateAt: timestampOrZero(row.CreatedAt),
			},
			Similarity: row.Similarity,
		})
	}
	return results
}

// parseMetadata unmarshals the metadata column, logging and substituting an
// empty map on malformed data rather than failing the whole search.
func (s *Store) parseMetadata(docID string, raw []byte) map[string]string {
	var metadata map[string]string
	if err := json.Unmarshal(raw, &metadata); err != nil {
		s.logger.Warn("failed to parse metadata", "document_id", docID, "error", err)
		return make(map[string]string)
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return metadata
}

func timestampOrZero(ts pgtype.Timestamptz) time.Time {
	if ts.Valid {
		return ts.Time
	}
	return time.Time{}
}
