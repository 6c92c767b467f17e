package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/internal/agent"
	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

type memoryStore struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      map[string][]*domain.Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]*domain.Message),
	}
}

func (s *memoryStore) addConversation(ownerKind domain.OwnerKind, ownerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.conversations[id] = &domain.Conversation{ID: id, OwnerKind: ownerKind, OwnerID: ownerID}
	return id
}

func (s *memoryStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

func (s *memoryStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return domain.ErrConversationNotFound
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}

func (s *memoryStore) ListMessages(_ context.Context, conversationID string) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Message(nil), s.messages[conversationID]...), nil
}

type fakeRunner struct {
	mu      sync.Mutex
	agents  []string
	answer  string
	partial bool
	err     error
	block   chan struct{} // when set, Run waits for it to close
}

func (f *fakeRunner) RunTurn(ctx context.Context, a domain.Agent, _ []domain.Message, _ string) (*agent.Result, error) {
	f.mu.Lock()
	f.agents = append(f.agents, a.ID)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	answer := f.answer
	if answer == "" {
		answer = "answer from " + a.Name
	}
	return &agent.Result{Answer: answer, Partial: f.partial}, nil
}

func orchestratorAgent(id, name, description string) domain.Agent {
	return domain.Agent{
		ID:          id,
		Name:        name,
		Description: description,
		Type:        domain.AgentTypeReAct,
		Foundation: domain.Foundation{
			ID:       "foundation-1",
			Provider: domain.ProviderOpenAI,
			ModelID:  "gpt-4o-mini",
		},
	}
}

func TestRunAgentTurn(t *testing.T) {
	store := newMemoryStore()
	a := orchestratorAgent("agent-1", "Helper", "answers questions")
	convID := store.addConversation(domain.OwnerAgent, a.ID)

	o := New(&fakeRunner{}, NewClassifier(nil), store, time.Minute)

	result, err := o.RunAgentTurn(context.Background(), a, convID, "hello there")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, result.Message.Role)
	assert.Equal(t, "answer from Helper", result.Message.Content)
	assert.Equal(t, "agent-1", result.ResponderID)
	assert.False(t, result.Partial)

	// Exactly two messages landed: the user's and one assistant reply.
	history, err := store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "hello there", history[0].Content)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Equal(t, "agent-1", history[1].AgentID)
}

func TestRunAgentTurn_OwnerKindMismatch(t *testing.T) {
	store := newMemoryStore()
	a := orchestratorAgent("agent-1", "Helper", "answers questions")
	convID := store.addConversation(domain.OwnerCommunication, "comm-1")

	o := New(&fakeRunner{}, NewClassifier(nil), store, time.Minute)

	_, err := o.RunAgentTurn(context.Background(), a, convID, "hello")
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeInvalidOperation, domainErr.Code)
}

func TestRunAgentTurn_ConversationNotFound(t *testing.T) {
	store := newMemoryStore()
	a := orchestratorAgent("agent-1", "Helper", "answers questions")

	o := New(&fakeRunner{}, NewClassifier(nil), store, time.Minute)

	_, err := o.RunAgentTurn(context.Background(), a, uuid.NewString(), "hello")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestRunAgentTurn_SecondTurnRejectedWhileInFlight(t *testing.T) {
	store := newMemoryStore()
	a := orchestratorAgent("agent-1", "Helper", "answers questions")
	convID := store.addConversation(domain.OwnerAgent, a.ID)

	block := make(chan struct{})
	runner := &fakeRunner{block: block}
	o := New(runner, NewClassifier(nil), store, time.Minute)

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.RunAgentTurn(context.Background(), a, convID, "first")
		firstDone <- err
	}()

	assert.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.agents) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := o.RunAgentTurn(context.Background(), a, convID, "second")
	assert.ErrorIs(t, err, domain.ErrTurnInProgress)

	close(block)
	require.NoError(t, <-firstDone)
}

func TestRunAgentTurn_Timeout(t *testing.T) {
	store := newMemoryStore()
	a := orchestratorAgent("agent-1", "Helper", "answers questions")
	convID := store.addConversation(domain.OwnerAgent, a.ID)

	// The runner blocks until the turn deadline cancels it.
	runner := &fakeRunner{block: make(chan struct{})}
	o := New(runner, NewClassifier(nil), store, 20*time.Millisecond)

	_, err := o.RunAgentTurn(context.Background(), a, convID, "slow question")
	assert.ErrorIs(t, err, domain.ErrTurnTimeout)
}

func TestRunCommunicationTurn_RoutesBySpecialty(t *testing.T) {
	store := newMemoryStore()
	general := orchestratorAgent("agent-general", "Generalist", "broad questions about the company")
	support := orchestratorAgent("agent-support", "Support", "billing refunds password resets account lockouts")
	comm := domain.Communication{ID: "comm-1", Name: "Helpdesk", Agents: []domain.Agent{general, support}}
	convID := store.addConversation(domain.OwnerCommunication, comm.ID)

	runner := &fakeRunner{}
	o := New(runner, NewClassifier(nil), store, time.Minute)

	// Two support-flavored turns both land on the support agent.
	for i := 0; i < 2; i++ {
		result, err := o.RunCommunicationTurn(context.Background(), comm, convID, "I need a billing refund for my account")
		require.NoError(t, err)
		assert.Equal(t, "agent-support", result.ResponderID)
		assert.Equal(t, "agent-support", result.Message.AgentID)
	}

	// One assistant message per turn.
	history, err := store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	assistants := 0
	for _, m := range history {
		if m.Role == domain.RoleAssistant {
			assistants++
		}
	}
	assert.Equal(t, 2, assistants)
	assert.Equal(t, []string{"agent-support", "agent-support"}, runner.agents)
}

func TestRunCommunicationTurn_TieDefaultsToFirstAgent(t *testing.T) {
	store := newMemoryStore()
	first := orchestratorAgent("agent-first", "Alpha", "specialty one")
	second := orchestratorAgent("agent-second", "Beta", "specialty two")
	comm := domain.Communication{ID: "comm-1", Name: "Pair", Agents: []domain.Agent{first, second}}
	convID := store.addConversation(domain.OwnerCommunication, comm.ID)

	o := New(&fakeRunner{}, NewClassifier(nil), store, time.Minute)

	result, err := o.RunCommunicationTurn(context.Background(), comm, convID, "completely unrelated message")
	require.NoError(t, err)
	assert.Equal(t, "agent-first", result.ResponderID)
}

func TestRunCommunicationTurn_EmptyGroup(t *testing.T) {
	store := newMemoryStore()
	comm := domain.Communication{ID: "comm-1", Name: "Empty"}

	o := New(&fakeRunner{}, NewClassifier(nil), store, time.Minute)

	_, err := o.RunCommunicationTurn(context.Background(), comm, uuid.NewString(), "hello")
	assert.ErrorIs(t, err, domain.ErrEmptyCommunication)
}

type fixedGenerator struct {
	out string
	err error
}

func (g fixedGenerator) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return g.out, g.err
}

func TestClassifier_ModelSelection(t *testing.T) {
	general := orchestratorAgent("agent-general", "Generalist", "broad questions")
	support := orchestratorAgent("agent-support", "Support", "billing and accounts")
	comm := domain.Communication{ID: "comm-1", Agents: []domain.Agent{general, support}}

	c := NewClassifier(fixedGenerator{out: "Support"})
	picked := c.Select(context.Background(), comm, nil, "refund please")
	assert.Equal(t, "agent-support", picked.ID)
}

func TestClassifier_ModelFailureFallsBackToKeywords(t *testing.T) {
	general := orchestratorAgent("agent-general", "Generalist", "broad questions")
	support := orchestratorAgent("agent-support", "Support", "billing refunds and password resets")
	comm := domain.Communication{ID: "comm-1", Agents: []domain.Agent{general, support}}

	c := NewClassifier(fixedGenerator{err: domain.ErrCompletionUpstream})
	picked := c.Select(context.Background(), comm, nil, "please reset my password")
	assert.Equal(t, "agent-support", picked.ID)
}

func TestClassifier_UnknownModelAnswerFallsBack(t *testing.T) {
	general := orchestratorAgent("agent-general", "Generalist", "broad questions")
	support := orchestratorAgent("agent-support", "Support", "billing refunds")
	comm := domain.Communication{ID: "comm-1", Agents: []domain.Agent{general, support}}

	c := NewClassifier(fixedGenerator{out: "Nonexistent Agent"})
	picked := c.Select(context.Background(), comm, nil, "refund for billing mistake")
	assert.Equal(t, "agent-support", picked.ID)
}

func TestClassifier_SingleAgentShortCircuit(t *testing.T) {
	only := orchestratorAgent("agent-only", "Solo", "everything")
	comm := domain.Communication{ID: "comm-1", Agents: []domain.Agent{only}}

	// No generator call happens for a single-member group.
	c := NewClassifier(fixedGenerator{err: domain.ErrCompletionUpstream})
	picked := c.Select(context.Background(), comm, nil, "anything")
	assert.Equal(t, "agent-only", picked.ID)
}
