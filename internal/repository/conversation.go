package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/pagination"
)

// ConversationRepository handles persistence of conversations and their
// message history.
type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// CreateConversation inserts a new conversation.
func (r *ConversationRepository) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, title, owner_kind, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID,
		conv.Title,
		string(conv.OwnerKind),
		conv.OwnerID,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	return err
}

// GetConversation fetches a conversation by ID.
func (r *ConversationRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var (
		conv      domain.Conversation
		ownerKind string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, title, owner_kind, owner_id, created_at, updated_at
		 FROM conversations
		 WHERE id = $1`,
		id,
	).Scan(&conv.ID, &conv.Title, &ownerKind, &conv.OwnerID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	conv.OwnerKind = domain.OwnerKind(ownerKind)
	return &conv, nil
}

// ListConversations returns conversations newest-first with cursor
// pagination.
func (r *ConversationRepository) ListConversations(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.Conversation], error) {
	if limit <= 0 {
		limit = 20
	}

	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var (
		rows pgx.Rows
	)
	if decoded != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, title, owner_kind, owner_id, created_at, updated_at
			 FROM conversations
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			decoded.Timestamp, decoded.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, title, owner_kind, owner_id, created_at, updated_at
			 FROM conversations
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]*domain.Conversation, 0, limit)
	for rows.Next() {
		var (
			conv      domain.Conversation
			ownerKind string
		)
		if err := rows.Scan(&conv.ID, &conv.Title, &ownerKind, &conv.OwnerID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conv.OwnerKind = domain.OwnerKind(ownerKind)
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(conversations) > limit
	if hasMore {
		conversations = conversations[:limit]
	}

	result := &pagination.PageResult[*domain.Conversation]{
		Items:   conversations,
		HasMore: hasMore,
	}
	if hasMore {
		last := conversations[len(conversations)-1]
		result.Cursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return result, nil
}

// AppendMessage inserts a message and bumps the conversation's updated_at.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		msg.CreatedAt, msg.ConversationID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, agent_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID,
		msg.ConversationID,
		string(msg.Role),
		msg.Content,
		nullableString(msg.AgentID),
		msg.CreatedAt,
	)
	return err
}

// ListMessages returns a conversation's messages in insertion order.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, agent_id, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var (
			msg     domain.Message
			role    string
			agentID *string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &agentID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		if agentID != nil {
			msg.AgentID = *agentID
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (r *ConversationRepository) DeleteConversation(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
