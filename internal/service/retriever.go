package service

import (
	"context"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/retrieval"
)

// StrategyRetriever builds and runs the retrieval strategy a knowledge base
// is configured with. It implements the retriever dependency of both the
// knowledge service and the agent runner, so pre-turn context injection and
// the knowledge_search tool share one retrieval path.
type StrategyRetriever struct {
	deps retrieval.Deps
}

func NewStrategyRetriever(deps retrieval.Deps) *StrategyRetriever {
	return &StrategyRetriever{deps: deps}
}

// Retrieve runs one retrieval call against one knowledge base snapshot.
func (r *StrategyRetriever) Retrieve(ctx context.Context, kb domain.KnowledgeBase, query string, topK int) ([]retrieval.ScoredChunk, error) {
	strategy, err := retrieval.New(kb, r.deps)
	if err != nil {
		return nil, err
	}
	return strategy.Retrieve(ctx, query, topK)
}
