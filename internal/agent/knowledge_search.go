package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/retrieval"
)

// KnowledgeSearchToolName is the registry name of the built-in retrieval tool.
const KnowledgeSearchToolName = "knowledge_search"

const defaultSearchTopK = 4

// Retriever runs a knowledge base's configured retrieval strategy for a
// query.
type Retriever interface {
	Retrieve(ctx context.Context, kb domain.KnowledgeBase, query string, topK int) ([]retrieval.ScoredChunk, error)
}

// KnowledgeSearchTool searches an agent's attached knowledge bases. It is
// the same retrieval path used for pre-turn context injection, exposed so
// the model can issue follow-up searches mid-loop.
type KnowledgeSearchTool struct {
	retriever Retriever
	kbs       []domain.KnowledgeBase
	topK      int
}

func NewKnowledgeSearchTool(retriever Retriever, kbs []domain.KnowledgeBase, topK int) *KnowledgeSearchTool {
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	return &KnowledgeSearchTool{retriever: retriever, kbs: kbs, topK: topK}
}

func (t *KnowledgeSearchTool) Name() string { return KnowledgeSearchToolName }

func (t *KnowledgeSearchTool) Description() string {
	return `Search the attached knowledge bases for passages relevant to a query. Arguments: {"query": "<search text>"}.`
}

func (t *KnowledgeSearchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "knowledge_search requires a non-empty query argument")
	}
	if len(t.kbs) == 0 {
		return "no knowledge bases are attached", nil
	}

	var b strings.Builder
	found := 0
	for _, kb := range t.kbs {
		results, err := t.retriever.Retrieve(ctx, kb, query, t.topK)
		if err != nil {
			return "", fmt.Errorf("searching knowledge base %s: %w", kb.ID, err)
		}
		for _, r := range results {
			found++
			writePassage(&b, kb.Name, r)
		}
	}
	if found == 0 {
		return "no relevant passages found", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// writePassage renders one retrieved chunk, keeping the subtype tag so
// tables and image-derived text stay distinguishable in the prompt.
func writePassage(b *strings.Builder, kbName string, r retrieval.ScoredChunk) {
	subtype := r.Chunk.Subtype
	if subtype == "" {
		subtype = domain.ChunkSubtypeText
	}
	fmt.Fprintf(b, "[%s/%s score=%.3f] %s\n", kbName, subtype, r.Score, r.Chunk.Content)
}
