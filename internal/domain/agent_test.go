package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAgent() *Agent {
	return &Agent{
		ID:   "agent-1",
		Name: "support",
		Type: AgentTypeReAct,
		Foundation: Foundation{
			ID:       "fnd-1",
			Provider: ProviderOpenAI,
			ModelID:  "gpt-4o-mini",
		},
		Config: LLMConfig{Name: "default", Temperature: 0.2, MaxTokens: 1024},
	}
}

func TestValidateAgent(t *testing.T) {
	require.NoError(t, ValidateAgent(validAgent()))

	t.Run("bad type", func(t *testing.T) {
		a := validAgent()
		a.Type = "planner"
		assert.ErrorIs(t, ValidateAgent(a), ErrUnknownAgentType)
	})

	t.Run("bad provider", func(t *testing.T) {
		a := validAgent()
		a.Foundation.Provider = "mistral"
		assert.ErrorIs(t, ValidateAgent(a), ErrUnknownProvider)
	})

	t.Run("invalid attached knowledge base", func(t *testing.T) {
		a := validAgent()
		kb := *validKB()
		kb.ChunkOverlap = kb.ChunkSize
		a.KnowledgeBases = []KnowledgeBase{kb}
		assert.ErrorIs(t, ValidateAgent(a), ErrInvalidChunkOverlap)
	})
}

func TestValidateCommunication(t *testing.T) {
	comm := &Communication{
		ID:     "comm-1",
		Name:   "frontline",
		Agents: []Agent{*validAgent()},
	}
	require.NoError(t, ValidateCommunication(comm))

	t.Run("no members", func(t *testing.T) {
		c := &Communication{ID: "comm-2", Name: "empty"}
		assert.ErrorIs(t, ValidateCommunication(c), ErrEmptyCommunication)
	})
}
