package domain

// LLMProvider identifies the backend vendor for a foundation model.
type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderGemini    LLMProvider = "gemini"
	ProviderAnthropic LLMProvider = "anthropic"
)

// Foundation is a descriptor of an LLM backend. Agents reference
// foundations; they never mutate them.
type Foundation struct {
	ID           string
	Provider     LLMProvider
	ModelID      string
	Description  string
	Capabilities []string
}

// LLMConfig is a named sampling and behavior profile bound to a Foundation.
// Many agents may share one config.
type LLMConfig struct {
	ID               string
	Name             string
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	SystemPrompt     string
	StopSequences    []string
}

// ValidateFoundation validates a Foundation descriptor.
func ValidateFoundation(f *Foundation) error {
	if f == nil {
		return NewDomainError(ErrCodeValidation, "foundation cannot be nil")
	}
	if f.ModelID == "" {
		return NewDomainError(ErrCodeValidation, "foundation ModelID is required")
	}
	if !isValidProvider(f.Provider) {
		return ErrUnknownProvider
	}
	return nil
}

func isValidProvider(p LLMProvider) bool {
	switch p {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		return true
	}
	return false
}
