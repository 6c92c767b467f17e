package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/ingest"
)

// DocumentRepository handles persistence of documents. Each row carries a
// snapshot of the owning knowledge base's configuration so the background
// processor can chunk and embed without a separate config lookup.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Create inserts a document together with its knowledge base snapshot.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document, kb domain.KnowledgeBase) error {
	kbConfig, err := json.Marshal(kb)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = r.db.Exec(ctx,
		`INSERT INTO documents
			(id, knowledge_base_id, name, extension, status, storage_key, content, kb_config, error_message, created_at, updated_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID,
		doc.KnowledgeBaseID,
		doc.Name,
		doc.Extension,
		string(doc.Status),
		nullableString(doc.StorageKey),
		nullableString(doc.Content),
		kbConfig,
		nullableString(doc.ErrorMessage),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// GetByID fetches a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, knowledge_base_id, name, extension, status, storage_key, content, error_message, created_at, updated_at
		 FROM documents
		 WHERE id = $1`,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// ListByKnowledgeBase returns a knowledge base's documents, newest first.
func (r *DocumentRepository) ListByKnowledgeBase(ctx context.Context, kbID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, knowledge_base_id, name, extension, status, storage_key, content, error_message, created_at, updated_at
		 FROM documents
		 WHERE knowledge_base_id = $1
		 ORDER BY created_at DESC, id DESC`,
		kbID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus transitions a document from one status to another. The update
// is guarded by the expected current status so concurrent processors cannot
// double-claim; a stale expectation returns ErrInvalidStatusTransition.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus, errorMessage string) error {
	if !from.CanTransitionTo(to) {
		return domain.ErrInvalidStatusTransition
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, error_message = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(to), nullableString(errorMessage), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrDocumentNotFound
		}
		return domain.ErrInvalidStatusTransition
	}
	return nil
}

// ClaimPending atomically moves up to limit pending documents to processing
// and returns them with their knowledge base snapshots. SKIP LOCKED keeps
// concurrent workers from claiming the same rows.
func (r *DocumentRepository) ClaimPending(ctx context.Context, limit int) ([]ingest.PendingDocument, error) {
	if limit <= 0 {
		limit = 1
	}

	rows, err := r.db.Query(ctx,
		`UPDATE documents
		 SET status = $1, updated_at = $2
		 WHERE id IN (
			SELECT id FROM documents
			WHERE status = $3
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, knowledge_base_id, name, extension, status, storage_key, content, error_message, created_at, updated_at, kb_config`,
		string(domain.DocumentStatusProcessing), time.Now().UTC(), string(domain.DocumentStatusPending), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claimed := make([]ingest.PendingDocument, 0, limit)
	for rows.Next() {
		var (
			doc          domain.Document
			extension    *string
			storageKey   *string
			content      *string
			errorMessage *string
			status       string
			kbConfig     []byte
		)
		if err := rows.Scan(
			&doc.ID,
			&doc.KnowledgeBaseID,
			&doc.Name,
			&extension,
			&status,
			&storageKey,
			&content,
			&errorMessage,
			&doc.CreatedAt,
			&doc.UpdatedAt,
			&kbConfig,
		); err != nil {
			return nil, err
		}
		doc.Status = domain.DocumentStatus(status)
		if extension != nil {
			doc.Extension = *extension
		}
		if storageKey != nil {
			doc.StorageKey = *storageKey
		}
		if content != nil {
			doc.Content = *content
		}
		if errorMessage != nil {
			doc.ErrorMessage = *errorMessage
		}

		var kb domain.KnowledgeBase
		if err := json.Unmarshal(kbConfig, &kb); err != nil {
			return nil, err
		}
		claimed = append(claimed, ingest.PendingDocument{Document: doc, KnowledgeBase: kb})
	}
	return claimed, rows.Err()
}

// Delete removes a document. Chunks are removed separately by the chunk
// repository.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		doc          domain.Document
		extension    *string
		storageKey   *string
		content      *string
		errorMessage *string
		status       string
	)
	err := row.Scan(
		&doc.ID,
		&doc.KnowledgeBaseID,
		&doc.Name,
		&extension,
		&status,
		&storageKey,
		&content,
		&errorMessage,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	if extension != nil {
		doc.Extension = *extension
	}
	if storageKey != nil {
		doc.StorageKey = *storageKey
	}
	if content != nil {
		doc.Content = *content
	}
	if errorMessage != nil {
		doc.ErrorMessage = *errorMessage
	}
	return &doc, nil
}
