package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/loom-ai/loom/internal/domain"
)

// Embedder generates embedding vectors for chunk text.
type Embedder interface {
	Embed(ctx context.Context, model, text string, dimensions int) ([]float32, error)
}

// ChunkWriter persists the chunk set for a document.
type ChunkWriter interface {
	ReplaceDocumentChunks(ctx context.Context, kbID, documentID string, chunks []domain.Chunk) error
}

// StatusStore advances a document through the ingestion status machine.
type StatusStore interface {
	UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus, errorMessage string) error
}

// BlobStore fetches raw document bytes uploaded to object storage.
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// textExtensions lists the document extensions the pipeline can turn into
// plain text without an external parser.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".json":     true,
	".html":     true,
}

// Pipeline chunks, embeds, and stores a document's text. One Process call
// covers one document; documents never block each other.
type Pipeline struct {
	embedder Embedder
	chunks   ChunkWriter
	statuses StatusStore
	blobs    BlobStore
}

func NewPipeline(embedder Embedder, chunks ChunkWriter, statuses StatusStore, blobs BlobStore) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		chunks:   chunks,
		statuses: statuses,
		blobs:    blobs,
	}
}

// Process runs the ingestion pipeline for a document already claimed into
// PROCESSING. On success the document moves to PROCESSED; any failure moves
// it to FAILED with the error recorded for the retry affordance.
// Reprocessing overwrites the prior chunk set, so retries are idempotent per
// document.
func (p *Pipeline) Process(ctx context.Context, doc domain.Document, kb domain.KnowledgeBase) ([]domain.Chunk, error) {
	chunks, err := p.run(ctx, doc, kb)
	if err != nil {
		if markErr := p.statuses.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing, domain.DocumentStatusFailed, err.Error()); markErr != nil {
			log.Printf("ingest: failed to mark document %s failed: %v", doc.ID, markErr)
		}
		return nil, err
	}

	if err := p.statuses.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing, domain.DocumentStatusProcessed, ""); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (p *Pipeline) run(ctx context.Context, doc domain.Document, kb domain.KnowledgeBase) ([]domain.Chunk, error) {
	if err := domain.ValidateKnowledgeBase(&kb); err != nil {
		return nil, err
	}

	text, err := p.extractText(ctx, doc)
	if err != nil {
		return nil, err
	}

	pieces, err := splitText(text, kb.ChunkSize, kb.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		embedding, err := p.embedder.Embed(ctx, kb.EmbeddingModel, piece, kb.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d of document %s: %w", i, doc.ID, err)
		}

		subtype := domain.ChunkSubtypeText
		if kb.RAGType == domain.RAGTypeUnstructured {
			subtype = classifySubtype(piece)
		}

		chunks = append(chunks, domain.Chunk{
			ID:              uuid.NewString(),
			KnowledgeBaseID: kb.ID,
			DocumentID:      doc.ID,
			Ordinal:         i,
			Content:         piece,
			Subtype:         subtype,
			Embedding:       embedding,
		})
	}

	if err := p.chunks.ReplaceDocumentChunks(ctx, kb.ID, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("storing chunks for document %s: %w", doc.ID, err)
	}
	return chunks, nil
}

// extractText resolves a document's plain text, downloading from blob
// storage when the text was not supplied inline.
func (p *Pipeline) extractText(ctx context.Context, doc domain.Document) (string, error) {
	if doc.Extension != "" && !textExtensions[strings.ToLower(doc.Extension)] {
		return "", domain.ErrUnsupportedExtension
	}

	if doc.Content != "" {
		return doc.Content, nil
	}
	if doc.StorageKey != "" {
		if p.blobs == nil {
			return "", domain.NewDomainError(domain.ErrCodeConfig, "document has a storage key but no blob store is configured")
		}
		raw, err := p.blobs.Download(ctx, doc.StorageKey)
		if err != nil {
			return "", fmt.Errorf("downloading document %s: %w", doc.ID, err)
		}
		return string(raw), nil
	}
	return "", nil
}
