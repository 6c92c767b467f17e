package retrieval

import (
	"context"
	"log"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

const compressPrompt = `Extract the parts of the following passage that are relevant to the query. Output only the relevant spans, verbatim. If nothing in the passage is relevant, output exactly NO_RELEVANT_CONTENT.

Query: %QUERY%

Passage:
%PASSAGE%`

const noRelevantContent = "NO_RELEVANT_CONTENT"

// contextualStrategy retrieves a larger candidate set, compresses each
// candidate down to its query-relevant spans, and drops candidates whose
// compression comes back empty. Survivors keep their original retrieval
// order. Compression failure degrades to the uncompressed candidates.
type contextualStrategy struct {
	kb   domain.KnowledgeBase
	deps Deps
}

func (s *contextualStrategy) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	embedding, err := s.deps.Embedder.Embed(ctx, s.kb.EmbeddingModel, query, s.kb.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	candidates, err := s.deps.Searcher.SearchVector(ctx, s.kb.ID, embedding, s.kb.Metric, "", candidateLimit(topK))
	if err != nil {
		return nil, err
	}
	candidates = applyThreshold(candidates, s.kb.ScoreThreshold)

	if s.deps.Generator == nil {
		return truncate(candidates, topK), nil
	}

	survivors := make([]ScoredChunk, 0, len(candidates))
	for _, cand := range candidates {
		compressed, err := s.compress(ctx, query, cand.Chunk.Content)
		if err != nil {
			log.Printf("retrieval: contextual compression failed, falling back to uncompressed candidates: %v", err)
			return truncate(candidates, topK), nil
		}
		if compressed == "" {
			continue
		}
		cand.Chunk.Content = compressed
		survivors = append(survivors, cand)
		if topK > 0 && len(survivors) == topK {
			break
		}
	}
	return survivors, nil
}

// compress returns the query-relevant spans of content, or empty when the
// model found nothing relevant.
func (s *contextualStrategy) compress(ctx context.Context, query, content string) (string, error) {
	prompt := strings.ReplaceAll(compressPrompt, "%QUERY%", query)
	prompt = strings.ReplaceAll(prompt, "%PASSAGE%", content)

	out, err := s.deps.Generator.Complete(ctx, llm.CompletionRequest{
		Model:    s.deps.Model,
		Messages: []llm.Message{{Role: domain.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" || strings.Contains(out, noRelevantContent) {
		return "", nil
	}
	return out, nil
}
