// Package orchestrator routes conversation turns to agents, serializes
// concurrent turns per conversation, and bounds every turn with a timeout.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loom-ai/loom/internal/agent"
	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/telemetry"
)

// DefaultTurnTimeout bounds one turn's total foundation and tool calls.
const DefaultTurnTimeout = 120 * time.Second

// AgentRunner executes one reasoning turn for one agent.
type AgentRunner interface {
	RunTurn(ctx context.Context, a domain.Agent, history []domain.Message, userMessage string) (*agent.Result, error)
}

// ConversationStore persists conversations and their message history.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

// TurnResult is one completed conversation turn: exactly one new assistant
// message. Partial marks a loop-capped answer. ResponderID names the agent
// that answered; for communication turns it is the selected member.
type TurnResult struct {
	Message     domain.Message
	ResponderID string
	Partial     bool
}

// Orchestrator owns per-conversation turn sequencing. All other state is
// shared and stateless.
type Orchestrator struct {
	runner      AgentRunner
	classifier  *Classifier
	store       ConversationStore
	turnTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(runner AgentRunner, classifier *Classifier, store ConversationStore, turnTimeout time.Duration) *Orchestrator {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	return &Orchestrator{
		runner:      runner,
		classifier:  classifier,
		store:       store,
		turnTimeout: turnTimeout,
		locks:       make(map[string]*sync.Mutex),
	}
}

// RunAgentTurn runs one turn of an agent-owned conversation.
func (o *Orchestrator) RunAgentTurn(ctx context.Context, a domain.Agent, conversationID, userMessage string) (*TurnResult, error) {
	if err := domain.ValidateAgent(&a); err != nil {
		return nil, err
	}
	return o.runTurn(ctx, conversationID, domain.OwnerAgent, userMessage,
		func(context.Context, []domain.Message) domain.Agent { return a })
}

// RunCommunicationTurn runs one turn of a group-owned conversation. One
// member agent is selected to respond; the selection is re-evaluated every
// turn and never fans out to all members.
func (o *Orchestrator) RunCommunicationTurn(ctx context.Context, comm domain.Communication, conversationID, userMessage string) (*TurnResult, error) {
	if err := domain.ValidateCommunication(&comm); err != nil {
		return nil, err
	}
	return o.runTurn(ctx, conversationID, domain.OwnerCommunication, userMessage,
		func(ctx context.Context, history []domain.Message) domain.Agent {
			return o.classifier.Select(ctx, comm, history, userMessage)
		})
}

func (o *Orchestrator) runTurn(ctx context.Context, conversationID string, ownerKind domain.OwnerKind, userMessage string, pick func(context.Context, []domain.Message) domain.Agent) (*TurnResult, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerKind != ownerKind {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation,
			"conversation is owned by a "+string(conv.OwnerKind)+", not a "+string(ownerKind))
	}

	// At most one in-flight turn per conversation. A second caller gets an
	// explicit rejection instead of an interleaved reply.
	lock := o.conversationLock(conversationID)
	if !lock.TryLock() {
		return nil, domain.ErrTurnInProgress
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	stored, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]domain.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, *m)
	}

	if err := o.store.AppendMessage(ctx, &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        userMessage,
	}); err != nil {
		return nil, err
	}

	responder := pick(ctx, history)
	telemetry.AddBreadcrumb(ctx, "orchestrator", "responder selected: "+responder.ID)
	result, err := o.runner.RunTurn(ctx, responder, history, userMessage)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrTurnTimeout
		}
		return nil, err
	}

	assistant := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        result.Answer,
		AgentID:        responder.ID,
	}
	if err := o.store.AppendMessage(ctx, &assistant); err != nil {
		return nil, err
	}

	return &TurnResult{
		Message:     assistant,
		ResponderID: responder.ID,
		Partial:     result.Partial,
	}, nil
}

func (o *Orchestrator) conversationLock(conversationID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[conversationID] = lock
	}
	return lock
}
