package domain

// AgentType selects the reasoning mode an agent runs per turn.
type AgentType string

const (
	AgentTypeReAct      AgentType = "react"
	AgentTypeReflection AgentType = "reflection"
)

// Agent is a reasoning unit: a foundation plus sampling config, a toolset,
// and zero or more knowledge bases used as retrieval sources. Agents own no
// storage of their own.
type Agent struct {
	ID          string
	Name        string
	Description string
	Type        AgentType
	Foundation  Foundation
	Config      LLMConfig
	// Tools names the registry entries this agent may invoke.
	Tools          []string
	KnowledgeBases []KnowledgeBase
	// MaxIterations bounds the ReAct loop. Zero falls back to the runner
	// default.
	MaxIterations int
}

// Communication is a named group of agents that share conversations. One
// member answers each turn; the responder is re-selected every turn.
type Communication struct {
	ID          string
	Name        string
	Description string
	// Agents in registration order. The first agent is the tie-break
	// default when responder selection cannot decide.
	Agents []Agent
}

// ValidateAgent validates an Agent configuration snapshot.
func ValidateAgent(a *Agent) error {
	if a == nil {
		return NewDomainError(ErrCodeValidation, "agent cannot be nil")
	}
	if a.ID == "" {
		return NewDomainError(ErrCodeValidation, "agent ID is required")
	}
	if a.Name == "" {
		return NewDomainError(ErrCodeValidation, "agent Name is required")
	}
	if !isValidAgentType(a.Type) {
		return ErrUnknownAgentType
	}
	if err := ValidateFoundation(&a.Foundation); err != nil {
		return err
	}
	for i := range a.KnowledgeBases {
		if err := ValidateKnowledgeBase(&a.KnowledgeBases[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCommunication validates a Communication configuration snapshot.
func ValidateCommunication(c *Communication) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "communication cannot be nil")
	}
	if c.ID == "" {
		return NewDomainError(ErrCodeValidation, "communication ID is required")
	}
	if len(c.Agents) == 0 {
		return ErrEmptyCommunication
	}
	for i := range c.Agents {
		if err := ValidateAgent(&c.Agents[i]); err != nil {
			return err
		}
	}
	return nil
}

func isValidAgentType(t AgentType) bool {
	switch t {
	case AgentTypeReAct, AgentTypeReflection:
		return true
	}
	return false
}
