package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
	"github.com/loom-ai/loom/internal/retrieval"
)

type scriptedGenerator struct {
	outputs []string
	errAt   int // 1-based call number to start failing at; 0 disables
	prompts []string
	calls   int
}

func (g *scriptedGenerator) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, req.Messages[len(req.Messages)-1].Content)
	if g.errAt != 0 && g.calls >= g.errAt {
		return "", domain.ErrCompletionUpstream
	}
	idx := g.calls - 1
	if idx >= len(g.outputs) {
		idx = len(g.outputs) - 1
	}
	return g.outputs[idx], nil
}

type echoTool struct {
	calls []map[string]any
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echoes the text argument back." }
func (t *echoTool) Call(_ context.Context, args map[string]any) (string, error) {
	t.calls = append(t.calls, args)
	text, _ := args["text"].(string)
	return text, nil
}

type failingTool struct{}

func (failingTool) Name() string        { return "lookup" }
func (failingTool) Description() string { return "Always fails." }
func (failingTool) Call(context.Context, map[string]any) (string, error) {
	return "", errors.New("backend unreachable")
}

type fakeKBRetriever struct {
	results []retrieval.ScoredChunk
	err     error
	queries []string
}

func (f *fakeKBRetriever) Retrieve(_ context.Context, _ domain.KnowledgeBase, query string, _ int) ([]retrieval.ScoredChunk, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testAgent(agentType domain.AgentType, tools ...string) domain.Agent {
	return domain.Agent{
		ID:   "agent-1",
		Name: "Helper",
		Type: agentType,
		Foundation: domain.Foundation{
			ID:       "foundation-1",
			Provider: domain.ProviderOpenAI,
			ModelID:  "gpt-4o-mini",
		},
		Tools: tools,
	}
}

func newTestRunner(gen Generator, tools ...Tool) *Runner {
	registry := NewRegistry()
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			panic(err)
		}
	}
	return NewRunner(gen, registry, nil)
}

func TestRunTurn_React_ImmediateFinalAnswer(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"Thought: this is simple\nFinal Answer: 42"}}
	runner := newTestRunner(gen)

	result, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReAct), nil, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", result.Answer)
	assert.False(t, result.Partial)
	assert.Equal(t, 1, gen.calls)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepThought, result.Steps[0].Kind)
	assert.Equal(t, "this is simple", result.Steps[0].Content)
	assert.Equal(t, StepAnswer, result.Steps[1].Kind)
}

func TestRunTurn_React_ToolInvocation(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"Thought: I should echo\nAction: echo\nAction Input: {\"text\": \"hello\"}",
		"Thought: done\nFinal Answer: the echo said hello",
	}}
	echo := &echoTool{}
	runner := newTestRunner(gen, echo)

	result, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReAct, "echo"), nil, "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "the echo said hello", result.Answer)
	assert.False(t, result.Partial)

	require.Len(t, echo.calls, 1)
	assert.Equal(t, "hello", echo.calls[0]["text"])

	// The second prompt carries the observation back to the model.
	require.Equal(t, 2, gen.calls)
	assert.Contains(t, gen.prompts[1], "Observation: hello")

	var action *Step
	for i := range result.Steps {
		if result.Steps[i].Kind == StepAction {
			action = &result.Steps[i]
		}
	}
	require.NotNil(t, action)
	assert.Equal(t, "echo", action.Tool)
}

func TestRunTurn_React_LoopExceeded(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"Thought: one more lookup\nAction: echo\nAction Input: {\"text\": \"partial evidence\"}",
	}}
	runner := newTestRunner(gen, &echoTool{})

	a := testAgent(domain.AgentTypeReAct, "echo")
	a.MaxIterations = 3

	result, err := runner.RunTurn(context.Background(), a, nil, "keep looping")
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, 3, gen.calls)
	// Best effort answer comes from the latest observation.
	assert.Equal(t, "partial evidence", result.Answer)
}

func TestRunTurn_React_ToolErrorBecomesObservation(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"Thought: try the lookup\nAction: lookup\nAction Input: {\"id\": \"7\"}",
		"Thought: the tool is down, answer from memory\nFinal Answer: best guess answer",
	}}
	runner := newTestRunner(gen, failingTool{})

	result, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReAct, "lookup"), nil, "look up 7")
	require.NoError(t, err)
	assert.Equal(t, "best guess answer", result.Answer)
	assert.False(t, result.Partial)
	assert.Contains(t, gen.prompts[1], "tool lookup failed")
}

func TestRunTurn_React_UnknownToolObserved(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"Action: imaginary\nAction Input: {}",
		"Final Answer: gave up on the tool",
	}}
	runner := newTestRunner(gen)

	result, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReAct), nil, "use a tool")
	require.NoError(t, err)
	assert.Equal(t, "gave up on the tool", result.Answer)
	assert.Contains(t, gen.prompts[1], "tool not found: imaginary")
}

func TestRunTurn_React_CompletionFailure(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{""}, errAt: 1}
	runner := newTestRunner(gen)

	_, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReAct), nil, "hello")
	assert.ErrorIs(t, err, domain.ErrCompletionUpstream)
}

func TestRunTurn_ContextInjection(t *testing.T) {
	retriever := &fakeKBRetriever{results: []retrieval.ScoredChunk{
		{Chunk: domain.Chunk{ID: "c1", Content: "vacation accrues at two days per month", Subtype: domain.ChunkSubtypeText}, Score: 0.9},
	}}
	gen := &scriptedGenerator{outputs: []string{"Final Answer: two days per month"}}
	runner := NewRunner(gen, NewRegistry(), retriever)

	a := testAgent(domain.AgentTypeReAct)
	kb := domain.NewKnowledgeBase("kb-1", "HR Docs", domain.RAGTypeNaive, "text-embedding-ada-002", 3, domain.MetricCosine)
	a.KnowledgeBases = []domain.KnowledgeBase{*kb}

	result, err := runner.RunTurn(context.Background(), a, nil, "how fast does vacation accrue?")
	require.NoError(t, err)
	assert.Equal(t, "two days per month", result.Answer)

	// Retrieval runs before the first think step, keyed on the user message.
	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "how fast does vacation accrue?", retriever.queries[0])
	assert.Contains(t, gen.prompts[0], "vacation accrues at two days per month")
	assert.Contains(t, gen.prompts[0], "HR Docs")
}

func TestRunTurn_ContextRetrievalFailure(t *testing.T) {
	retriever := &fakeKBRetriever{err: domain.ErrEmbeddingUpstream}
	gen := &scriptedGenerator{outputs: []string{"Final Answer: unused"}}
	runner := NewRunner(gen, NewRegistry(), retriever)

	a := testAgent(domain.AgentTypeReAct)
	kb := domain.NewKnowledgeBase("kb-1", "HR Docs", domain.RAGTypeNaive, "text-embedding-ada-002", 3, domain.MetricCosine)
	a.KnowledgeBases = []domain.KnowledgeBase{*kb}

	_, err := runner.RunTurn(context.Background(), a, nil, "anything")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUpstream)
	assert.Equal(t, 0, gen.calls)
}

func TestRunTurn_Reflection_ApprovedDraft(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"draft answer", "OK"}}
	runner := newTestRunner(gen)

	result, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReflection), nil, "question")
	require.NoError(t, err)
	assert.Equal(t, "draft answer", result.Answer)
	assert.Equal(t, 2, gen.calls)
}

func TestRunTurn_Reflection_OneRevisionCycle(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"draft answer",
		"the draft does not cite the accrual rate",
		"revised answer with the accrual rate",
	}}
	runner := newTestRunner(gen)

	result, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReflection), nil, "question")
	require.NoError(t, err)
	assert.Equal(t, "revised answer with the accrual rate", result.Answer)
	// Exactly one reflection cycle: draft, critique, revision.
	assert.Equal(t, 3, gen.calls)
	assert.Contains(t, gen.prompts[2], "the draft does not cite the accrual rate")
}

func TestRunTurn_Reflection_CritiqueFailureKeepsDraft(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"draft answer"}, errAt: 2}
	runner := newTestRunner(gen)

	result, err := runner.RunTurn(context.Background(), testAgent(domain.AgentTypeReflection), nil, "question")
	require.NoError(t, err)
	assert.Equal(t, "draft answer", result.Answer)
}

func TestRunTurn_InvalidAgent(t *testing.T) {
	runner := newTestRunner(&scriptedGenerator{outputs: []string{""}})

	a := testAgent("planner")
	_, err := runner.RunTurn(context.Background(), a, nil, "hello")
	assert.ErrorIs(t, err, domain.ErrUnknownAgentType)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	echo := &echoTool{}
	require.NoError(t, registry.Register(echo))

	err := registry.Register(&echoTool{})
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeConfig, domainErr.Code)

	_, err = registry.Get("missing")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)

	sigs := registry.Signatures([]string{"echo", "missing"})
	assert.Contains(t, sigs, "echo: Echoes")
	assert.False(t, strings.Contains(sigs, "missing"))
}

func TestRegistry_WithTool(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&echoTool{}))
	require.NoError(t, registry.Register(failingTool{}))

	replacement := &echoTool{}
	bound := registry.WithTool(replacement)

	// The clone sees the replacement, registration order intact.
	got, err := bound.Get("echo")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
	assert.Equal(t, []string{"echo", "lookup"}, bound.Names())

	// The shared registry is untouched.
	original, err := registry.Get("echo")
	require.NoError(t, err)
	assert.NotSame(t, replacement, original)

	// Binding an unknown tool appends it.
	extended := registry.WithTool(&namedTool{name: "search"})
	assert.Equal(t, []string{"echo", "lookup", "search"}, extended.Names())
	assert.Equal(t, []string{"echo", "lookup"}, registry.Names())
}

type namedTool struct{ name string }

func (t *namedTool) Name() string        { return t.name }
func (t *namedTool) Description() string { return "stub" }
func (t *namedTool) Call(context.Context, map[string]any) (string, error) {
	return "", nil
}

func TestRunTurn_BindsKnowledgeSearchPerAgent(t *testing.T) {
	retriever := &fakeKBRetriever{results: []retrieval.ScoredChunk{
		{Chunk: domain.Chunk{ID: "c1", Content: "refunds take five days", Subtype: domain.ChunkSubtypeText}, Score: 0.7},
	}}
	gen := &scriptedGenerator{outputs: []string{
		"Thought: search the docs\nAction: knowledge_search\nAction Input: {\"query\": \"refund policy\"}",
		"Final Answer: refunds take five days",
	}}
	registry := NewRegistry()
	runner := NewRunner(gen, registry, retriever)

	a := testAgent(domain.AgentTypeReAct, KnowledgeSearchToolName)
	kb := domain.NewKnowledgeBase("kb-1", "Support Docs", domain.RAGTypeNaive, "text-embedding-ada-002", 3, domain.MetricCosine)
	a.KnowledgeBases = []domain.KnowledgeBase{*kb}

	result, err := runner.RunTurn(context.Background(), a, nil, "what is the refund policy?")
	require.NoError(t, err)
	assert.Equal(t, "refunds take five days", result.Answer)

	// Pre-turn injection plus the explicit tool call.
	require.Len(t, retriever.queries, 2)
	assert.Equal(t, "refund policy", retriever.queries[1])

	// The binding is turn-scoped; the shared registry stays empty.
	_, err = registry.Get(KnowledgeSearchToolName)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestParseMove(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want modelMove
	}{
		{
			name: "final answer",
			out:  "Thought: done\nFinal Answer: 42",
			want: modelMove{thought: "done", answer: "42", isFinal: true},
		},
		{
			name: "action with input",
			out:  "Thought: look it up\nAction: echo\nAction Input: {\"text\": \"hi\"}",
			want: modelMove{thought: "look it up", action: "echo", input: "{\"text\": \"hi\"}"},
		},
		{
			name: "hallucinated observation is cut",
			out:  "Action: echo\nAction Input: {\"text\": \"hi\"}\nObservation: hi",
			want: modelMove{action: "echo", input: "{\"text\": \"hi\"}"},
		},
		{
			name: "free text treated as final answer",
			out:  "just an answer with no markers",
			want: modelMove{answer: "just an answer with no markers", isFinal: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseMove(tt.out))
		})
	}
}

func TestKnowledgeSearchTool(t *testing.T) {
	retriever := &fakeKBRetriever{results: []retrieval.ScoredChunk{
		{Chunk: domain.Chunk{ID: "c1", Content: "Q3 revenue was 9M", Subtype: domain.ChunkSubtypeTable}, Score: 0.8},
	}}
	kb := domain.NewKnowledgeBase("kb-1", "Finance", domain.RAGTypeNaive, "text-embedding-ada-002", 3, domain.MetricCosine)
	tool := NewKnowledgeSearchTool(retriever, []domain.KnowledgeBase{*kb}, 0)

	out, err := tool.Call(context.Background(), map[string]any{"query": "Q3 revenue"})
	require.NoError(t, err)
	assert.Contains(t, out, "Q3 revenue was 9M")
	assert.Contains(t, out, "Finance/table")

	_, err = tool.Call(context.Background(), map[string]any{})
	require.Error(t, err)

	empty := NewKnowledgeSearchTool(retriever, nil, 0)
	out, err = empty.Call(context.Background(), map[string]any{"query": "anything"})
	require.NoError(t, err)
	assert.Equal(t, "no knowledge bases are attached", out)
}
