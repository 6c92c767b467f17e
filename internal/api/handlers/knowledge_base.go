package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loom-ai/loom/internal/api"
	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/retrieval"
	"github.com/loom-ai/loom/internal/service"
)

type KnowledgeBaseService interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*domain.Document, error)
	Retrieve(ctx context.Context, kb domain.KnowledgeBase, query string, topK int) ([]retrieval.ScoredChunk, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, kbID string) ([]*domain.Document, error)
	RetryDocument(ctx context.Context, id string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

type KnowledgeBaseHandler struct {
	svc KnowledgeBaseService
}

func NewKnowledgeBaseHandler(svc KnowledgeBaseService) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{svc: svc}
}

// KnowledgeBasePayload is a knowledge base configuration snapshot supplied
// by the caller on every request. The core stores no knowledge base rows;
// the snapshot travels with the operation it configures.
type KnowledgeBasePayload struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	RAGType             string  `json:"rag_type"`
	EmbeddingModel      string  `json:"embedding_model"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	Metric              string  `json:"metric"`
	ChunkSize           int     `json:"chunk_size,omitempty"`
	ChunkOverlap        int     `json:"chunk_overlap,omitempty"`
	VectorWeight        float32 `json:"vector_weight,omitempty"`
	LexicalWeight       float32 `json:"lexical_weight,omitempty"`
	ScoreThreshold      float32 `json:"score_threshold,omitempty"`
}

// ToDomain converts the payload, defaulting chunking parameters when the
// caller omitted them.
func (p KnowledgeBasePayload) ToDomain() domain.KnowledgeBase {
	kb := domain.KnowledgeBase{
		ID:                  p.ID,
		Name:                p.Name,
		RAGType:             domain.RAGType(p.RAGType),
		EmbeddingModel:      p.EmbeddingModel,
		EmbeddingDimensions: p.EmbeddingDimensions,
		Metric:              domain.SimilarityMetric(p.Metric),
		ChunkSize:           p.ChunkSize,
		ChunkOverlap:        p.ChunkOverlap,
		VectorWeight:        p.VectorWeight,
		LexicalWeight:       p.LexicalWeight,
		ScoreThreshold:      p.ScoreThreshold,
	}
	if kb.ChunkSize == 0 {
		kb.ChunkSize = domain.DefaultChunkSize
		if kb.ChunkOverlap == 0 {
			kb.ChunkOverlap = domain.DefaultChunkOverlap
		}
	}
	return kb
}

type IngestDocumentRequest struct {
	KnowledgeBase KnowledgeBasePayload `json:"knowledge_base"`
	Name          string               `json:"name"`
	Content       string               `json:"content"`
}

type RetrieveRequest struct {
	KnowledgeBase KnowledgeBasePayload `json:"knowledge_base"`
	Query         string               `json:"query"`
	TopK          int                  `json:"top_k"`
}

type DocumentResponse struct {
	ID              string `json:"id"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
	Name            string `json:"name"`
	Extension       string `json:"extension,omitempty"`
	Status          string `json:"status"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:              d.ID,
		KnowledgeBaseID: d.KnowledgeBaseID,
		Name:            d.Name,
		Extension:       d.Extension,
		Status:          string(d.Status),
		ErrorMessage:    d.ErrorMessage,
		CreatedAt:       d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:       d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type ScoredChunkResponse struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	Ordinal        int     `json:"ordinal"`
	Content        string  `json:"content"`
	Subtype        string  `json:"subtype"`
	ContextSummary string  `json:"context_summary,omitempty"`
	Score          float32 `json:"score"`
}

func scoredChunkToResponse(sc retrieval.ScoredChunk) *ScoredChunkResponse {
	return &ScoredChunkResponse{
		ChunkID:        sc.Chunk.ID,
		DocumentID:     sc.Chunk.DocumentID,
		Ordinal:        sc.Chunk.Ordinal,
		Content:        sc.Chunk.Content,
		Subtype:        string(sc.Chunk.Subtype),
		ContextSummary: sc.Chunk.ContextSummary,
		Score:          sc.Score,
	}
}

// IngestDocument accepts a document and queues it for processing. The
// response reports PENDING; processing happens asynchronously.
func (h *KnowledgeBaseHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req IngestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	doc, err := h.svc.Ingest(r.Context(), service.IngestRequest{
		KnowledgeBase: req.KnowledgeBase.ToDomain(),
		Name:          req.Name,
		Content:       []byte(req.Content),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, documentToResponse(doc))
}

func (h *KnowledgeBaseHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.svc.Retrieve(r.Context(), req.KnowledgeBase.ToDomain(), req.Query, req.TopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ScoredChunkResponse, len(results))
	for i, sc := range results {
		responses[i] = scoredChunkToResponse(sc)
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *KnowledgeBaseHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *KnowledgeBaseHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	if kbID == "" {
		api.Error(w, http.StatusBadRequest, "knowledge base id is required")
		return
	}

	docs, err := h.svc.ListDocuments(r.Context(), kbID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(docs))
	for i, d := range docs {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, responses)
}

// RetryDocument re-queues a failed, stranded, or already processed document.
func (h *KnowledgeBaseHandler) RetryDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.RetryDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *KnowledgeBaseHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "deleted": "true"})
}
