package retrieval

import (
	"context"
	"sort"
	"sync"

	"github.com/loom-ai/loom/internal/domain"
)

// hybridStrategy runs vector and lexical search in parallel over the same
// corpus and merges the two rankings with a weighted linear combination of
// normalized scores. Ties break on the vector score.
type hybridStrategy struct {
	kb   domain.KnowledgeBase
	deps Deps
}

type hybridCandidate struct {
	result       ScoredChunk
	combined     float32
	vectorScore  float32
	lexicalScore float32
}

func (s *hybridStrategy) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	vectorWeight, lexicalWeight := s.weights()
	limit := candidateLimit(topK)

	embedding, err := s.deps.Embedder.Embed(ctx, s.kb.EmbeddingModel, query, s.kb.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}

	var (
		wg                        sync.WaitGroup
		vectorResults, lexResults []ScoredChunk
		vectorErr, lexErr         error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = s.deps.Searcher.SearchVector(ctx, s.kb.ID, embedding, s.kb.Metric, "", limit)
	}()

	if lexicalWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexResults, lexErr = s.deps.Searcher.SearchLexical(ctx, s.kb.ID, query, limit)
		}()
	}
	wg.Wait()

	if vectorErr != nil {
		return nil, vectorErr
	}
	if lexErr != nil {
		return nil, lexErr
	}

	merged := mergeWeighted(vectorResults, lexResults, vectorWeight, lexicalWeight)
	merged = applyThreshold(merged, s.kb.ScoreThreshold)
	return truncate(merged, topK), nil
}

func (s *hybridStrategy) weights() (vector, lexical float32) {
	vector = s.kb.VectorWeight
	lexical = s.kb.LexicalWeight
	if vector == 0 && lexical == 0 {
		return domain.DefaultVectorWeight, domain.DefaultLexicalWeight
	}
	return vector, lexical
}

// mergeWeighted combines two rankings by weighted sum of min-max normalized
// scores. A chunk present in only one list contributes zero from the other.
func mergeWeighted(vectorResults, lexResults []ScoredChunk, vectorWeight, lexicalWeight float32) []ScoredChunk {
	normVector := normalizeScores(vectorResults)
	normLex := normalizeScores(lexResults)

	candidates := make(map[string]*hybridCandidate)
	add := func(r ScoredChunk, norm, weight float32, vector bool) {
		cand, ok := candidates[r.Chunk.ID]
		if !ok {
			cand = &hybridCandidate{result: r}
			candidates[r.Chunk.ID] = cand
		}
		cand.combined += weight * norm
		if vector {
			cand.vectorScore = r.Score
		} else {
			cand.lexicalScore = r.Score
		}
	}

	for i, r := range vectorResults {
		add(r, normVector[i], vectorWeight, true)
	}
	for i, r := range lexResults {
		add(r, normLex[i], lexicalWeight, false)
	}

	out := make([]*hybridCandidate, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].combined != out[j].combined {
			return out[i].combined > out[j].combined
		}
		return out[i].vectorScore > out[j].vectorScore
	})

	results := make([]ScoredChunk, 0, len(out))
	for _, cand := range out {
		results = append(results, ScoredChunk{Chunk: cand.result.Chunk, Score: cand.combined})
	}
	return results
}

// normalizeScores maps a ranking's scores into [0, 1] by min-max. A
// single-result or constant-score list normalizes to all ones.
func normalizeScores(results []ScoredChunk) []float32 {
	norms := make([]float32, len(results))
	if len(results) == 0 {
		return norms
	}
	minScore, maxScore := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	span := maxScore - minScore
	for i, r := range results {
		if span == 0 {
			norms[i] = 1
			continue
		}
		norms[i] = (r.Score - minScore) / span
	}
	return norms
}
