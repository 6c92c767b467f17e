package retrieval

import (
	"context"

	"github.com/loom-ai/loom/internal/domain"
)

// naiveStrategy embeds the query and runs a plain vector search with the
// knowledge base's configured metric.
type naiveStrategy struct {
	kb   domain.KnowledgeBase
	deps Deps
}

func (s *naiveStrategy) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	embedding, err := s.deps.Embedder.Embed(ctx, s.kb.EmbeddingModel, query, s.kb.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	return searchWithEmbedding(ctx, s.kb, s.deps, embedding, topK)
}

// searchWithEmbedding is the shared vector-search tail used by naive and by
// the strategies that substitute their own query embedding.
func searchWithEmbedding(ctx context.Context, kb domain.KnowledgeBase, deps Deps, embedding []float32, topK int) ([]ScoredChunk, error) {
	results, err := deps.Searcher.SearchVector(ctx, kb.ID, embedding, kb.Metric, "", topK)
	if err != nil {
		return nil, err
	}
	results = applyThreshold(results, kb.ScoreThreshold)
	return truncate(results, topK), nil
}
