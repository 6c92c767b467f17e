//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/testutil"
)

func testConversation(ownerKind domain.OwnerKind) *domain.Conversation {
	return &domain.Conversation{
		ID:        uuid.NewString(),
		Title:     "Support thread",
		OwnerKind: ownerKind,
		OwnerID:   uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestConversationRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewConversationRepository(pool)

	conv := testConversation(domain.OwnerAgent)
	require.NoError(t, repo.CreateConversation(ctx, conv))

	retrieved, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, retrieved.ID)
	assert.Equal(t, domain.OwnerAgent, retrieved.OwnerKind)
	assert.Equal(t, conv.OwnerID, retrieved.OwnerID)
}

func TestConversationRepository_GetConversation_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewConversationRepository(pool)

	_, err := repo.GetConversation(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestConversationRepository_AppendAndListMessages(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewConversationRepository(pool)

	conv := testConversation(domain.OwnerCommunication)
	require.NoError(t, repo.CreateConversation(ctx, conv))

	base := time.Now().UTC().Truncate(time.Microsecond)
	agentID := uuid.NewString()
	msgs := []*domain.Message{
		{ID: uuid.NewString(), ConversationID: conv.ID, Role: domain.RoleUser, Content: "How do I reset my password?", CreatedAt: base},
		{ID: uuid.NewString(), ConversationID: conv.ID, Role: domain.RoleAssistant, Content: "Use the account settings page.", AgentID: agentID, CreatedAt: base.Add(time.Second)},
	}
	for _, m := range msgs {
		require.NoError(t, repo.AppendMessage(ctx, m))
	}

	history, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Equal(t, agentID, history[1].AgentID)
	assert.Empty(t, history[0].AgentID)

	// Appending bumps the conversation's updated_at.
	retrieved, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.UpdatedAt.After(conv.CreatedAt))
}

func TestConversationRepository_AppendMessage_ConversationNotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewConversationRepository(pool)

	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: uuid.NewString(),
		Role:           domain.RoleUser,
		Content:        "hello?",
	}
	err := repo.AppendMessage(ctx, msg)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestConversationRepository_ListConversations_Pagination(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewConversationRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		conv := testConversation(domain.OwnerAgent)
		conv.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.CreateConversation(ctx, conv))
	}

	page, err := repo.ListConversations(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.Cursor)

	// Newest first, no overlap across pages.
	seen := map[string]bool{}
	for _, c := range page.Items {
		seen[c.ID] = true
	}

	page2, err := repo.ListConversations(ctx, page.Cursor, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 2)
	for _, c := range page2.Items {
		assert.False(t, seen[c.ID])
		seen[c.ID] = true
	}
	assert.True(t, page.Items[0].CreatedAt.After(page2.Items[0].CreatedAt))

	page3, err := repo.ListConversations(ctx, page2.Cursor, 2)
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
	assert.False(t, page3.HasMore)
	assert.Empty(t, page3.Cursor)
}

func TestConversationRepository_Delete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewConversationRepository(pool)

	conv := testConversation(domain.OwnerAgent)
	require.NoError(t, repo.CreateConversation(ctx, conv))
	require.NoError(t, repo.AppendMessage(ctx, &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        "to be deleted",
	}))

	require.NoError(t, repo.DeleteConversation(ctx, conv.ID))

	_, err := repo.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	err = repo.DeleteConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}
