package domain

import "time"

// RAGType selects the retrieval strategy used for a knowledge base.
type RAGType string

const (
	RAGTypeNaive        RAGType = "naive"
	RAGTypeHybrid       RAGType = "hybrid"
	RAGTypeHyDE         RAGType = "hyde"
	RAGTypeFusion       RAGType = "fusion"
	RAGTypeContextual   RAGType = "contextual"
	RAGTypeUnstructured RAGType = "unstructured"
)

// SimilarityMetric selects the vector distance function used for retrieval.
type SimilarityMetric string

const (
	MetricCosine SimilarityMetric = "cosine"
	MetricDot    SimilarityMetric = "dot"
	MetricL2     SimilarityMetric = "l2"
)

// KnowledgeBase is a configuration snapshot for one retrieval corpus.
// Callers pass it by value into the core; the core never mutates it.
type KnowledgeBase struct {
	ID                  string
	Name                string
	RAGType             RAGType
	EmbeddingModel      string
	EmbeddingDimensions int
	Metric              SimilarityMetric
	ChunkSize           int
	ChunkOverlap        int

	// Hybrid merge weights. Zero values fall back to DefaultVectorWeight
	// and DefaultLexicalWeight at retrieval time.
	VectorWeight  float32
	LexicalWeight float32

	// ScoreThreshold drops candidates below this score. Zero disables it.
	ScoreThreshold float32

	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	DefaultChunkSize     = 512
	DefaultChunkOverlap  = 64
	DefaultVectorWeight  = 0.5
	DefaultLexicalWeight = 0.5
)

// NewKnowledgeBase creates a KnowledgeBase with defaulted chunking parameters.
func NewKnowledgeBase(id, name string, ragType RAGType, embeddingModel string, dimensions int, metric SimilarityMetric) *KnowledgeBase {
	return &KnowledgeBase{
		ID:                  id,
		Name:                name,
		RAGType:             ragType,
		EmbeddingModel:      embeddingModel,
		EmbeddingDimensions: dimensions,
		Metric:              metric,
		ChunkSize:           DefaultChunkSize,
		ChunkOverlap:        DefaultChunkOverlap,
	}
}

// ValidateKnowledgeBase validates a KnowledgeBase configuration snapshot.
// An overlap that is not strictly smaller than the chunk size is a
// configuration error, never a degraded run.
func ValidateKnowledgeBase(kb *KnowledgeBase) error {
	if kb == nil {
		return NewDomainError(ErrCodeValidation, "knowledge base cannot be nil")
	}
	if kb.ID == "" {
		return NewDomainError(ErrCodeValidation, "knowledge base ID is required")
	}
	if !isValidRAGType(kb.RAGType) {
		return ErrUnknownRAGType
	}
	if !isValidMetric(kb.Metric) {
		return ErrUnknownMetric
	}
	if kb.EmbeddingModel == "" {
		return NewDomainError(ErrCodeValidation, "knowledge base embedding model is required")
	}
	if kb.EmbeddingDimensions <= 0 {
		return NewDomainError(ErrCodeValidation, "knowledge base embedding dimensions must be positive")
	}
	if kb.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if kb.ChunkOverlap < 0 || kb.ChunkOverlap >= kb.ChunkSize {
		return ErrInvalidChunkOverlap
	}
	return nil
}

func isValidRAGType(t RAGType) bool {
	switch t {
	case RAGTypeNaive, RAGTypeHybrid, RAGTypeHyDE, RAGTypeFusion, RAGTypeContextual, RAGTypeUnstructured:
		return true
	}
	return false
}

func isValidMetric(m SimilarityMetric) bool {
	switch m {
	case MetricCosine, MetricDot, MetricL2:
		return true
	}
	return false
}
