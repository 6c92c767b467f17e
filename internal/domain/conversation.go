package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// OwnerKind identifies what a conversation is bound to. The owner kind is
// fixed at creation and determines routing for every subsequent turn.
type OwnerKind string

const (
	OwnerAgent         OwnerKind = "agent"
	OwnerCommunication OwnerKind = "communication"
)

// Conversation is an append-only sequence of messages bound to exactly one
// agent or one communication.
type Conversation struct {
	ID        string
	Title     string
	OwnerKind OwnerKind
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one immutable turn in a conversation. AgentID records which
// agent produced an assistant message; empty for user messages.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	AgentID        string
	CreatedAt      time.Time
}

// ValidateConversation validates a Conversation instance.
func ValidateConversation(c *Conversation) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "conversation cannot be nil")
	}
	if c.ID == "" {
		return NewDomainError(ErrCodeValidation, "conversation ID is required")
	}
	if c.OwnerID == "" {
		return NewDomainError(ErrCodeValidation, "conversation OwnerID is required")
	}
	if c.OwnerKind != OwnerAgent && c.OwnerKind != OwnerCommunication {
		return NewDomainError(ErrCodeValidation, "conversation OwnerKind is invalid: "+string(c.OwnerKind))
	}
	return nil
}

// ValidateMessage validates a Message instance.
func ValidateMessage(m *Message) error {
	if m == nil {
		return NewDomainError(ErrCodeValidation, "message cannot be nil")
	}
	if m.ConversationID == "" {
		return NewDomainError(ErrCodeValidation, "message ConversationID is required")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant && m.Role != RoleSystem {
		return NewDomainError(ErrCodeValidation, "message Role is invalid: "+string(m.Role))
	}
	if m.Content == "" {
		return NewDomainError(ErrCodeValidation, "message Content is required")
	}
	return nil
}
