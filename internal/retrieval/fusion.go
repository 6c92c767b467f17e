package retrieval

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

const (
	// rrfK dampens the impact of outlier rankings in reciprocal rank
	// fusion; 60 is the standard constant.
	rrfK = 60

	defaultRewrites = 3
)

const rewritePrompt = `You are a helpful assistant that generates multiple search queries based on a single input query. Generate %N% search queries, one on each line, related to the following input query. Output only the queries.

Query: %QUERY%

Queries:`

// fusionStrategy generates query rewrites, runs naive search per rewrite,
// and fuses the rankings with reciprocal rank fusion. The original query is
// always one of the fused lists. Rewrite generation failure degrades to
// naive search on the original query.
type fusionStrategy struct {
	kb   domain.KnowledgeBase
	deps Deps
}

type fusedCandidate struct {
	result  ScoredChunk
	score   float32
	minRank int
}

func (s *fusionStrategy) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	queries := append(s.rewrites(ctx, query), query)
	perListLimit := candidateLimit(topK)

	lists := make([][]ScoredChunk, 0, len(queries))
	for _, q := range queries {
		embedding, err := s.deps.Embedder.Embed(ctx, s.kb.EmbeddingModel, q, s.kb.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		list, err := s.deps.Searcher.SearchVector(ctx, s.kb.ID, embedding, s.kb.Metric, "", perListLimit)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}

	fused := fuseRRF(lists)
	fused = applyThreshold(fused, s.kb.ScoreThreshold)
	return truncate(fused, topK), nil
}

// rewrites asks the generator for query paraphrases. Returns nil when
// generation is unavailable or fails, leaving only the original query.
func (s *fusionStrategy) rewrites(ctx context.Context, query string) []string {
	if s.deps.Generator == nil {
		return nil
	}
	prompt := strings.ReplaceAll(rewritePrompt, "%N%", strconv.Itoa(defaultRewrites))
	prompt = strings.ReplaceAll(prompt, "%QUERY%", query)

	out, err := s.deps.Generator.Complete(ctx, llm.CompletionRequest{
		Model:    s.deps.Model,
		Messages: []llm.Message{{Role: domain.RoleUser, Content: prompt}},
	})
	if err != nil {
		log.Printf("retrieval: fusion rewrite generation failed, falling back to naive: %v", err)
		return nil
	}

	var rewrites []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, query) {
			continue
		}
		rewrites = append(rewrites, line)
		if len(rewrites) == defaultRewrites {
			break
		}
	}
	return rewrites
}

// fuseRRF merges ranked lists with reciprocal rank fusion: each chunk
// scores sum(1/(k+rank)) over the lists it appears in, rank 1-based. The
// fused score only depends on rank within each list, so the order the lists
// arrive in is irrelevant. Ties break on the lowest rank a chunk achieved
// in any list.
func fuseRRF(lists [][]ScoredChunk) []ScoredChunk {
	candidates := make(map[string]*fusedCandidate)
	for _, list := range lists {
		for i, r := range list {
			rank := i + 1
			cand, ok := candidates[r.Chunk.ID]
			if !ok {
				cand = &fusedCandidate{result: r, minRank: rank}
				candidates[r.Chunk.ID] = cand
			}
			cand.score += 1.0 / float32(rrfK+rank)
			if rank < cand.minRank {
				cand.minRank = rank
			}
		}
	}

	out := make([]*fusedCandidate, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].minRank < out[j].minRank
	})

	results := make([]ScoredChunk, 0, len(out))
	for _, cand := range out {
		results = append(results, ScoredChunk{Chunk: cand.result.Chunk, Score: cand.score})
	}
	return results
}
