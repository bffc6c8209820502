package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// TableConfig maps the catalog onto a concrete table. Identifiers come
// from configuration and are quoted with pgx.Identifier before they reach
// SQL, so arbitrary configured names stay out of injection territory.
type TableConfig struct {
	Table           string
	IDColumn        string
	ContentColumn   string
	EmbeddingColumn string
	MetadataColumn  string
	Metric          string // "cosine", "l2", or "ip"
}

// Distance operators per pgvector metric.
const (
	opCosine       = "<=>"
	opL2           = "<->"
	opInnerProduct = "<#>"
)

// operator returns the pgvector distance operator for the configured metric.
// Unknown metrics fall back to cosine; config validation rejects them earlier.
func (tc TableConfig) operator() string {
	switch tc.Metric {
	case "l2":
		return opL2
	case "ip":
		return opInnerProduct
	default:
		return opCosine
	}
}

// similarityExpr returns the SQL expression reporting similarity for the
// configured metric: 1-distance for cosine, negated distance otherwise, so
// that higher is always more similar.
func (tc TableConfig) similarityExpr(emb, param string) string {
	dist := fmt.Sprintf("(%s %s %s)", emb, tc.operator(), param)
	if tc.Metric == "l2" || tc.Metric == "ip" {
		return "-" + dist
	}
	return "1 - " + dist
}

// UpsertDocumentParams are the arguments for UpsertDocument.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

// SearchDocumentsParams are the arguments for SearchDocuments.
type SearchDocumentsParams struct {
	QueryEmbedding *pgvector.Vector
	FilterMetadata []byte // nil = unfiltered
	ResultLimit    int32
}

// SearchDocumentsRow is one vector search hit.
type SearchDocumentsRow struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
	Similarity float32
}

// ListDocumentsRow is one row from ListDocuments.
type ListDocumentsRow struct {
	ID        string
	Content   string
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

// Querier defines the database operations the Store depends on. The
// interface lives with its consumer so tests can substitute a mock.
type Querier interface {
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error)
	CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, limit int32) ([]ListDocumentsRow, error)
}

// Queries is the pgx-backed Querier. SQL is assembled once at construction
// from the quoted table configuration; all values are bound parameters.
type Queries struct {
	pool *pgxpool.Pool

	upsertSQL       string
	searchSQL       string
	searchFilterSQL string
	countSQL        string
	countFilterSQL  string
	deleteSQL       string
	listSQL         string
}

// NewQueries builds the SQL statements for the configured table.
func NewQueries(pool *pgxpool.Pool, tc TableConfig) *Queries {
	table := pgx.Identifier{tc.Table}.Sanitize()
	id := pgx.Identifier{tc.IDColumn}.Sanitize()
	content := pgx.Identifier{tc.ContentColumn}.Sanitize()
	emb := pgx.Identifier{tc.EmbeddingColumn}.Sanitize()
	meta := pgx.Identifier{tc.MetadataColumn}.Sanitize()

	sim := tc.similarityExpr(emb, "$1")
	op := tc.operator()

	return &Queries{
		pool: pool,

		upsertSQL: fmt.Sprintf(
			`INSERT INTO %s (%s, %s, %s, %s, created_at)
			 VALUES ($1, $2, $3, $4, COALESCE($5, now()))
			 ON CONFLICT (%s) DO UPDATE
			 SET %s = EXCLUDED.%s, %s = EXCLUDED.%s, %s = EXCLUDED.%s`,
			table, id, content, emb, meta,
			id,
			content, content, emb, emb, meta, meta),

		searchSQL: fmt.Sprintf(
			`SELECT %s, %s, %s, created_at, %s AS similarity
			 FROM %s ORDER BY %s %s $1 LIMIT $2`,
			id, content, meta, sim,
			table, emb, op),

		searchFilterSQL: fmt.Sprintf(
			`SELECT %s, %s, %s, created_at, %s AS similarity
			 FROM %s WHERE %s @> $2 ORDER BY %s %s $1 LIMIT $3`,
			id, content, meta, sim,
			table, meta, emb, op),

		countSQL: fmt.Sprintf(`SELECT count(*) FROM %s`, table),

		countFilterSQL: fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s @> $1`, table, meta),

		deleteSQL: fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, id),

		listSQL: fmt.Sprintf(
			`SELECT %s, %s, %s, created_at FROM %s ORDER BY created_at DESC LIMIT $1`,
			id, content, meta, table),
	}
}

// UpsertDocument inserts or updates a document.
func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	var createdAt any
	if arg.CreatedAt.Valid {
		createdAt = arg.CreatedAt
	}
	_, err := q.pool.Exec(ctx, q.upsertSQL, arg.ID, arg.Content, arg.Embedding, arg.Metadata, createdAt)
	return err
}

// SearchDocuments runs the vector similarity query, optionally filtered by
// metadata containment.
func (q *Queries) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if arg.FilterMetadata != nil {
		rows, err = q.pool.Query(ctx, q.searchFilterSQL, arg.QueryEmbedding, arg.FilterMetadata, arg.ResultLimit)
	} else {
		rows, err = q.pool.Query(ctx, q.searchSQL, arg.QueryEmbedding, arg.ResultLimit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchDocumentsRow
	for rows.Next() {
		var r SearchDocumentsRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountDocuments counts documents, optionally filtered by metadata.
func (q *Queries) CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	var err error
	if filterMetadata != nil {
		err = q.pool.QueryRow(ctx, q.countFilterSQL, filterMetadata).Scan(&count)
	} else {
		err = q.pool.QueryRow(ctx, q.countSQL).Scan(&count)
	}
	return count, err
}

// DeleteDocument deletes a document by ID.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.pool.Exec(ctx, q.deleteSQL, id)
	return err
}

// ListDocuments lists documents ordered by creation time, newest first.
func (q *Queries) ListDocuments(ctx context.Context, limit int32) ([]ListDocumentsRow, error) {
	rows, err := q.pool.Query(ctx, q.listSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ListDocumentsRow
	for rows.Next() {
		var r ListDocumentsRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
