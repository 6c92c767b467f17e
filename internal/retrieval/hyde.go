package retrieval

import (
	"context"
	"log"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

const hydePrompt = `Write a short hypothetical document that could answer the following query. Output only the document text.

Query: %QUERY%

Hypothetical document:`

// hydeStrategy retrieves with the embedding of a generated hypothetical
// answer document instead of the raw query. Generation failure degrades to
// naive search; retrieval availability beats strategy fidelity.
type hydeStrategy struct {
	kb   domain.KnowledgeBase
	deps Deps
}

func (s *hydeStrategy) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	text := s.hypothetical(ctx, query)
	embedding, err := s.deps.Embedder.Embed(ctx, s.kb.EmbeddingModel, text, s.kb.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	return searchWithEmbedding(ctx, s.kb, s.deps, embedding, topK)
}

// hypothetical returns the generated document, or the original query when
// generation is unavailable or fails.
func (s *hydeStrategy) hypothetical(ctx context.Context, query string) string {
	if s.deps.Generator == nil {
		return query
	}
	out, err := s.deps.Generator.Complete(ctx, llm.CompletionRequest{
		Model: s.deps.Model,
		Messages: []llm.Message{{
			Role:    domain.RoleUser,
			Content: strings.ReplaceAll(hydePrompt, "%QUERY%", query),
		}},
	})
	if err != nil {
		log.Printf("retrieval: hyde generation failed, falling back to naive: %v", err)
		return query
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return query
	}
	return out
}
