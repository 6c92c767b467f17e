// Package retrieval implements the pluggable retrieval strategies. Every
// strategy shares one contract: query in, ranked passages out, scores
// non-increasing in the returned order.
package retrieval

import (
	"context"
	"sort"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

// ScoredChunk is one ranked passage. The chunk carries its own subtype tag
// for downstream prompt formatting.
type ScoredChunk struct {
	Chunk domain.Chunk
	Score float32
}

// Searcher is the vector-store access a strategy needs. Subtype narrows the
// search to one chunk subtype; empty searches all subtypes.
type Searcher interface {
	SearchVector(ctx context.Context, kbID string, embedding []float32, metric domain.SimilarityMetric, subtype domain.ChunkSubtype, limit int) ([]ScoredChunk, error)
	SearchLexical(ctx context.Context, kbID, query string, limit int) ([]ScoredChunk, error)
}

// Embedder generates query embeddings.
type Embedder interface {
	Embed(ctx context.Context, model, text string, dimensions int) ([]float32, error)
}

// Generator runs the auxiliary completions that hyde, fusion, and
// contextual depend on. Strategies degrade to their non-generative
// counterpart when it is nil or a call fails.
type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Deps bundles the shared, stateless dependencies injected into every
// strategy.
type Deps struct {
	Searcher  Searcher
	Embedder  Embedder
	Generator Generator
	// Model names the completion model for generative sub-steps.
	Model string
}

// Strategy retrieves ranked passages for a query.
type Strategy interface {
	Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error)
}

// New selects the strategy configured on the knowledge base. The set of
// strategies is closed; adding one means extending this switch.
func New(kb domain.KnowledgeBase, deps Deps) (Strategy, error) {
	if err := domain.ValidateKnowledgeBase(&kb); err != nil {
		return nil, err
	}
	switch kb.RAGType {
	case domain.RAGTypeNaive:
		return &naiveStrategy{kb: kb, deps: deps}, nil
	case domain.RAGTypeHybrid:
		return &hybridStrategy{kb: kb, deps: deps}, nil
	case domain.RAGTypeHyDE:
		return &hydeStrategy{kb: kb, deps: deps}, nil
	case domain.RAGTypeFusion:
		return &fusionStrategy{kb: kb, deps: deps}, nil
	case domain.RAGTypeContextual:
		return &contextualStrategy{kb: kb, deps: deps}, nil
	case domain.RAGTypeUnstructured:
		return &unstructuredStrategy{kb: kb, deps: deps}, nil
	default:
		return nil, domain.ErrUnknownRAGType
	}
}

const (
	candidateMultiplier = 4
	minCandidates       = 20
)

func candidateLimit(topK int) int {
	limit := topK * candidateMultiplier
	if limit < minCandidates {
		limit = minCandidates
	}
	return limit
}

// applyThreshold drops results scoring below the knowledge base floor.
// A zero threshold disables the filter.
func applyThreshold(results []ScoredChunk, threshold float32) []ScoredChunk {
	if threshold <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

func truncate(results []ScoredChunk, topK int) []ScoredChunk {
	if topK > 0 && len(results) > topK {
		return results[:topK]
	}
	return results
}

func sortByScore(results []ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
