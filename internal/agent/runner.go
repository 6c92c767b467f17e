// Package agent implements the per-turn reasoning loop: ReAct tool use and
// reflection, with retrieval from the agent's attached knowledge bases
// injected before the first reasoning step.
package agent

import (
	"context"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

// Generator runs one chat completion.
type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Result is one finished turn. Partial marks an aborted ReAct loop whose
// answer is the best available rather than a model-declared final answer.
type Result struct {
	Answer  string
	Partial bool
	Steps   []Step
}

// Runner executes one agent turn per call. It holds only shared stateless
// dependencies and is safe for concurrent use.
type Runner struct {
	gen       Generator
	registry  *Registry
	retriever Retriever
	topK      int
}

func NewRunner(gen Generator, registry *Registry, retriever Retriever) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Runner{gen: gen, registry: registry, retriever: retriever, topK: defaultSearchTopK}
}

// RunTurn runs one reasoning turn for the agent. When knowledge bases are
// attached, retrieval always runs first and its results are injected as
// context before the first think step.
func (r *Runner) RunTurn(ctx context.Context, a domain.Agent, history []domain.Message, userMessage string) (*Result, error) {
	if err := domain.ValidateAgent(&a); err != nil {
		return nil, err
	}

	contextBlock, err := r.retrieveContext(ctx, a, userMessage)
	if err != nil {
		return nil, err
	}

	runner := r.bindKnowledgeSearch(a)

	switch a.Type {
	case domain.AgentTypeReAct:
		return runner.runReact(ctx, a, history, userMessage, contextBlock)
	case domain.AgentTypeReflection:
		return runner.runReflection(ctx, a, history, userMessage, contextBlock)
	default:
		return nil, domain.ErrUnknownAgentType
	}
}

// bindKnowledgeSearch binds the built-in retrieval tool to this agent's
// knowledge bases for the duration of one turn. Agents that do not list the
// tool run against the shared registry untouched.
func (r *Runner) bindKnowledgeSearch(a domain.Agent) *Runner {
	if r.retriever == nil {
		return r
	}
	listed := false
	for _, name := range a.Tools {
		if name == KnowledgeSearchToolName {
			listed = true
			break
		}
	}
	if !listed {
		return r
	}

	bound := *r
	bound.registry = r.registry.WithTool(NewKnowledgeSearchTool(r.retriever, a.KnowledgeBases, r.topK))
	return &bound
}

// retrieveContext searches every attached knowledge base with the incoming
// message. Retrieval failure fails the turn; an agent configured with
// knowledge bases must not silently answer without them.
func (r *Runner) retrieveContext(ctx context.Context, a domain.Agent, userMessage string) (string, error) {
	if len(a.KnowledgeBases) == 0 || r.retriever == nil {
		return "", nil
	}

	var b strings.Builder
	for _, kb := range a.KnowledgeBases {
		results, err := r.retriever.Retrieve(ctx, kb, userMessage, r.topK)
		if err != nil {
			return "", err
		}
		for _, res := range results {
			writePassage(&b, kb.Name, res)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
