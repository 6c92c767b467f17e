package retrieval

import (
	"context"

	"github.com/loom-ai/loom/internal/domain"
)

// unstructuredStrategy queries every chunk subtype the ingestion side
// produced (text, table, image-derived text) and merges the per-subtype
// rankings by score. Each result keeps its subtype tag so prompt formatting
// downstream can treat tables and image text differently.
type unstructuredStrategy struct {
	kb   domain.KnowledgeBase
	deps Deps
}

var unstructuredSubtypes = []domain.ChunkSubtype{
	domain.ChunkSubtypeText,
	domain.ChunkSubtypeTable,
	domain.ChunkSubtypeImage,
}

func (s *unstructuredStrategy) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	embedding, err := s.deps.Embedder.Embed(ctx, s.kb.EmbeddingModel, query, s.kb.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}

	var merged []ScoredChunk
	for _, subtype := range unstructuredSubtypes {
		results, err := s.deps.Searcher.SearchVector(ctx, s.kb.ID, embedding, s.kb.Metric, subtype, topK)
		if err != nil {
			return nil, err
		}
		merged = append(merged, results...)
	}

	sortByScore(merged)
	merged = applyThreshold(merged, s.kb.ScoreThreshold)
	return truncate(merged, topK), nil
}
