package service

import (
	"context"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/orchestrator"
	"github.com/loom-ai/loom/internal/pagination"
	"github.com/loom-ai/loom/internal/telemetry"
)

// ConversationRepositoryInterface defines the repository interface for
// conversation persistence
type ConversationRepositoryInterface interface {
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.Conversation], error)
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
	DeleteConversation(ctx context.Context, id string) error
}

// TurnOrchestrator runs conversation turns
type TurnOrchestrator interface {
	RunAgentTurn(ctx context.Context, a domain.Agent, conversationID, userMessage string) (*orchestrator.TurnResult, error)
	RunCommunicationTurn(ctx context.Context, comm domain.Communication, conversationID, userMessage string) (*orchestrator.TurnResult, error)
}

// ChatService handles conversation lifecycle and turn execution. The owner
// binding set at creation decides which turn operation a conversation
// accepts.
type ChatService struct {
	conversations ConversationRepositoryInterface
	turns         TurnOrchestrator
	uuidGen       UUIDGenerator
}

func NewChatService(conversations ConversationRepositoryInterface, turns TurnOrchestrator) *ChatService {
	return &ChatService{
		conversations: conversations,
		turns:         turns,
		uuidGen:       &DefaultUUIDGenerator{},
	}
}

// CreateConversation creates a conversation bound to an agent or a
// communication. The binding is immutable.
func (s *ChatService) CreateConversation(ctx context.Context, title string, ownerKind domain.OwnerKind, ownerID string) (*domain.Conversation, error) {
	conv := &domain.Conversation{
		ID:        s.uuidGen.NewString(),
		Title:     strings.TrimSpace(title),
		OwnerKind: ownerKind,
		OwnerID:   ownerID,
	}
	if conv.Title == "" {
		conv.Title = "New conversation"
	}
	if err := domain.ValidateConversation(conv); err != nil {
		return nil, err
	}
	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation fetches a conversation.
func (s *ChatService) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.conversations.GetConversation(ctx, id)
}

// History returns a conversation's messages in arrival order.
func (s *ChatService) History(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	if _, err := s.conversations.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.conversations.ListMessages(ctx, conversationID)
}

// ListConversations pages through conversations, newest first.
func (s *ChatService) ListConversations(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.Conversation], error) {
	return s.conversations.ListConversations(ctx, cursor, limit)
}

// DeleteConversation removes a conversation and its history.
func (s *ChatService) DeleteConversation(ctx context.Context, id string) error {
	return s.conversations.DeleteConversation(ctx, id)
}

// RunAgentTurn runs one turn of an agent-owned conversation.
func (s *ChatService) RunAgentTurn(ctx context.Context, a domain.Agent, conversationID, userMessage string) (*orchestrator.TurnResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.agent_turn", telemetry.SpanAttributes{
		ConversationID: conversationID,
		AgentID:        a.ID,
		Operation:      "agent_turn",
	})
	defer span.End()

	if strings.TrimSpace(userMessage) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "message is required")
	}
	result, err := s.turns.RunAgentTurn(ctx, a, conversationID, userMessage)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return result, nil
}

// RunCommunicationTurn runs one turn of a communication-owned conversation.
func (s *ChatService) RunCommunicationTurn(ctx context.Context, comm domain.Communication, conversationID, userMessage string) (*orchestrator.TurnResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.communication_turn", telemetry.SpanAttributes{
		ConversationID: conversationID,
		Operation:      "communication_turn",
	})
	defer span.End()

	if strings.TrimSpace(userMessage) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "message is required")
	}
	result, err := s.turns.RunCommunicationTurn(ctx, comm, conversationID, userMessage)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return result, nil
}
