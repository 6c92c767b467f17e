package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/retrieval"
)

// ChunkRepository handles persistence and search of document chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceDocumentChunks deletes existing chunks for a document and inserts
// the new set. Reprocessing a document is idempotent: chunks are keyed by
// (knowledge base, document, ordinal) and the whole set is overwritten.
func (r *ChunkRepository) ReplaceDocumentChunks(ctx context.Context, kbID, documentID string, chunks []domain.Chunk) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM chunks WHERE knowledge_base_id = $1 AND document_id = $2`,
		kbID, documentID,
	)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		subtype := c.Subtype
		if subtype == "" {
			subtype = domain.ChunkSubtypeText
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks
				(id, knowledge_base_id, document_id, ordinal, content, subtype, context_summary, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID,
			kbID,
			documentID,
			c.Ordinal,
			c.Content,
			subtype,
			nullableString(c.ContextSummary),
			pgvector.NewVector(c.Embedding),
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// DeleteDocumentChunks removes all chunks for a document. A chunk never
// outlives its document.
func (r *ChunkRepository) DeleteDocumentChunks(ctx context.Context, kbID, documentID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM chunks WHERE knowledge_base_id = $1 AND document_id = $2`,
		kbID, documentID,
	)
	return err
}

// scoreExpr returns the SQL score expression for a similarity metric. Every
// expression is ordered descending so higher is always better.
func scoreExpr(metric domain.SimilarityMetric) (string, error) {
	switch metric {
	case domain.MetricCosine:
		return `1 - (embedding <=> $2)`, nil
	case domain.MetricDot:
		return `-(embedding <#> $2)`, nil
	case domain.MetricL2:
		return `1.0 / (1.0 + (embedding <-> $2))`, nil
	default:
		return "", domain.ErrUnknownMetric
	}
}

// SearchVector runs a similarity search over a knowledge base's chunks.
// Subtype narrows the search to one chunk subtype; empty searches all.
func (r *ChunkRepository) SearchVector(ctx context.Context, kbID string, embedding []float32, metric domain.SimilarityMetric, subtype domain.ChunkSubtype, limit int) ([]retrieval.ScoredChunk, error) {
	if limit <= 0 {
		limit = 20
	}
	expr, err := scoreExpr(metric)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, knowledge_base_id, document_id, ordinal, content, subtype, context_summary, created_at,
		       %s AS score
		FROM chunks
		WHERE knowledge_base_id = $1 AND embedding IS NOT NULL`, expr)
	args := []any{kbID, pgvector.NewVector(embedding)}

	if subtype != "" {
		query += ` AND subtype = $3`
		args = append(args, string(subtype))
	}
	query += fmt.Sprintf(` ORDER BY score DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScoredChunks(rows)
}

// SearchLexical runs a full-text search over a knowledge base's chunks,
// scored by ts_rank.
func (r *ChunkRepository) SearchLexical(ctx context.Context, kbID, query string, limit int) ([]retrieval.ScoredChunk, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, knowledge_base_id, document_id, ordinal, content, subtype, context_summary, created_at,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $2)) AS score
		FROM chunks
		WHERE knowledge_base_id = $1
		  AND to_tsvector('english', content) @@ plainto_tsquery('english', $2)
		ORDER BY score DESC
		LIMIT $3`,
		kbID, query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScoredChunks(rows)
}

// CountByDocument returns the number of chunks stored for a document.
func (r *ChunkRepository) CountByDocument(ctx context.Context, kbID, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE knowledge_base_id = $1 AND document_id = $2`,
		kbID, documentID,
	).Scan(&count)
	return count, err
}

func scanScoredChunks(rows pgx.Rows) ([]retrieval.ScoredChunk, error) {
	results := make([]retrieval.ScoredChunk, 0)
	for rows.Next() {
		var (
			sc             retrieval.ScoredChunk
			subtype        string
			contextSummary *string
		)
		if err := rows.Scan(
			&sc.Chunk.ID,
			&sc.Chunk.KnowledgeBaseID,
			&sc.Chunk.DocumentID,
			&sc.Chunk.Ordinal,
			&sc.Chunk.Content,
			&subtype,
			&contextSummary,
			&sc.Chunk.CreatedAt,
			&sc.Score,
		); err != nil {
			return nil, err
		}
		sc.Chunk.Subtype = domain.ChunkSubtype(subtype)
		if contextSummary != nil {
			sc.Chunk.ContextSummary = *contextSummary
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}
