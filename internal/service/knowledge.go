package service

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/retrieval"
	"github.com/loom-ai/loom/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, doc *domain.Document, kb domain.KnowledgeBase) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByKnowledgeBase(ctx context.Context, kbID string) ([]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus, errorMessage string) error
	Delete(ctx context.Context, id string) error
}

// ChunkStoreInterface defines the chunk operations the service needs
type ChunkStoreInterface interface {
	DeleteDocumentChunks(ctx context.Context, kbID, documentID string) error
}

// BlobStoreInterface defines the blob storage operations for document uploads
type BlobStoreInterface interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// RetrieverInterface runs a knowledge base's retrieval strategy
type RetrieverInterface interface {
	Retrieve(ctx context.Context, kb domain.KnowledgeBase, query string, topK int) ([]retrieval.ScoredChunk, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// IngestRequest carries one document upload together with the knowledge base
// snapshot it belongs to.
type IngestRequest struct {
	KnowledgeBase domain.KnowledgeBase
	Name          string
	Content       []byte
}

// KnowledgeService handles document ingestion and retrieval against
// knowledge base snapshots. Knowledge base configuration is owned by the
// caller and passed by value into every operation.
type KnowledgeService struct {
	documents DocumentRepositoryInterface
	chunks    ChunkStoreInterface
	blobs     BlobStoreInterface
	retriever RetrieverInterface
	uuidGen   UUIDGenerator
}

// NewKnowledgeService creates a new KnowledgeService instance. blobs may be
// nil; document text is then stored inline.
func NewKnowledgeService(
	documents DocumentRepositoryInterface,
	chunks ChunkStoreInterface,
	blobs BlobStoreInterface,
	retriever RetrieverInterface,
) *KnowledgeService {
	return &KnowledgeService{
		documents: documents,
		chunks:    chunks,
		blobs:     blobs,
		retriever: retriever,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

// NewKnowledgeServiceWithUUIDGen creates a KnowledgeService with a custom
// UUID generator (for testing).
func NewKnowledgeServiceWithUUIDGen(
	documents DocumentRepositoryInterface,
	chunks ChunkStoreInterface,
	blobs BlobStoreInterface,
	retriever RetrieverInterface,
	uuidGen UUIDGenerator,
) *KnowledgeService {
	s := NewKnowledgeService(documents, chunks, blobs, retriever)
	s.uuidGen = uuidGen
	return s
}

// Ingest registers a document and queues it for asynchronous processing.
// The document returns in PENDING; the background worker picks it up from
// there.
func (s *KnowledgeService) Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ingest", telemetry.SpanAttributes{
		KnowledgeBaseID: req.KnowledgeBase.ID,
		Operation:       "ingest",
	})
	defer span.End()

	if err := domain.ValidateKnowledgeBase(&req.KnowledgeBase); err != nil {
		span.SetError(err)
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document name is required")
	}
	if len(req.Content) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document content is required")
	}

	doc := &domain.Document{
		ID:              s.uuidGen.NewString(),
		KnowledgeBaseID: req.KnowledgeBase.ID,
		Name:            req.Name,
		Extension:       strings.ToLower(filepath.Ext(req.Name)),
		Status:          domain.DocumentStatusUploaded,
	}

	if s.blobs != nil {
		key := req.KnowledgeBase.ID + "/" + doc.ID + doc.Extension
		if err := s.blobs.Upload(ctx, key, req.Content, contentType(doc.Extension)); err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "uploading document to blob storage", err)
		}
		doc.StorageKey = key
	} else {
		doc.Content = string(req.Content)
	}

	if err := s.documents.Create(ctx, doc, req.KnowledgeBase); err != nil {
		span.SetError(err)
		return nil, err
	}
	if err := s.documents.UpdateStatus(ctx, doc.ID, domain.DocumentStatusUploaded, domain.DocumentStatusPending, ""); err != nil {
		span.SetError(err)
		return nil, err
	}
	doc.Status = domain.DocumentStatusPending
	return doc, nil
}

// Retrieve runs the knowledge base's configured retrieval strategy.
func (s *KnowledgeService) Retrieve(ctx context.Context, kb domain.KnowledgeBase, query string, topK int) ([]retrieval.ScoredChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.retrieve", telemetry.SpanAttributes{
		KnowledgeBaseID: kb.ID,
		Operation:       "retrieve",
	})
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}
	results, err := s.retriever.Retrieve(ctx, kb, query, topK)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return results, nil
}

// GetDocument fetches one document.
func (s *KnowledgeService) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return s.documents.GetByID(ctx, id)
}

// ListDocuments lists a knowledge base's documents, newest first.
func (s *KnowledgeService) ListDocuments(ctx context.Context, kbID string) ([]*domain.Document, error) {
	return s.documents.ListByKnowledgeBase(ctx, kbID)
}

// RetryDocument re-queues a document for processing. FAILED documents are
// the primary case; PROCESSED documents may be re-queued after a knowledge
// base edit, and documents stranded in PROCESSING by a crash need the same
// explicit retry.
func (s *KnowledgeService) RetryDocument(ctx context.Context, id string) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.retry_document", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "retry",
	})
	defer span.End()

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if !doc.Status.CanTransitionTo(domain.DocumentStatusPending) {
		return nil, domain.ErrInvalidStatusTransition
	}
	if err := s.documents.UpdateStatus(ctx, doc.ID, doc.Status, domain.DocumentStatusPending, ""); err != nil {
		span.SetError(err)
		return nil, err
	}
	doc.Status = domain.DocumentStatusPending
	doc.ErrorMessage = ""
	return doc, nil
}

// DeleteDocument removes a document, its chunks, and its stored blob. A
// chunk never outlives its document.
func (s *KnowledgeService) DeleteDocument(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.delete_document", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		span.SetError(err)
		return err
	}
	if err := s.chunks.DeleteDocumentChunks(ctx, doc.KnowledgeBaseID, doc.ID); err != nil {
		span.SetError(err)
		return err
	}
	if s.blobs != nil && doc.StorageKey != "" {
		if err := s.blobs.DeleteObject(ctx, doc.StorageKey); err != nil {
			span.SetError(err)
			return err
		}
	}
	if err := s.documents.Delete(ctx, doc.ID); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

func contentType(extension string) string {
	switch extension {
	case ".html":
		return "text/html"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
