package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeConfig           = "CONFIG_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeTimeout          = "TIMEOUT"
)

// Configuration errors. These are fatal and never retried.
var (
	ErrInvalidChunkSize           = NewDomainError(ErrCodeConfig, "chunk size must be positive")
	ErrInvalidChunkOverlap        = NewDomainError(ErrCodeConfig, "chunk overlap must be smaller than chunk size")
	ErrUnknownRAGType             = NewDomainError(ErrCodeConfig, "unknown rag type")
	ErrUnknownMetric              = NewDomainError(ErrCodeConfig, "unknown similarity metric")
	ErrUnknownProvider            = NewDomainError(ErrCodeConfig, "unknown llm provider")
	ErrUnknownAgentType           = NewDomainError(ErrCodeConfig, "unknown agent type")
	ErrEmbeddingDimensionMismatch = NewDomainError(ErrCodeConfig, "embedding dimensions do not match knowledge base configuration")
	ErrEmptyCommunication         = NewDomainError(ErrCodeConfig, "communication has no member agents")
	ErrUnsupportedExtension       = NewDomainError(ErrCodeValidation, "unsupported document extension")
)

// Not found errors
var (
	ErrKnowledgeBaseNotFound = NewDomainError(ErrCodeNotFound, "knowledge base not found")
	ErrDocumentNotFound      = NewDomainError(ErrCodeNotFound, "document not found")
	ErrConversationNotFound  = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrAgentNotFound         = NewDomainError(ErrCodeNotFound, "agent not found")
	ErrToolNotFound          = NewDomainError(ErrCodeNotFound, "tool not found")
)

// Operation errors
var (
	ErrInvalidStatusTransition = NewDomainError(ErrCodeInvalidOperation, "invalid document status transition")
	ErrTurnInProgress          = NewDomainError(ErrCodeInvalidOperation, "conversation already has a turn in flight")
	ErrTurnTimeout             = NewDomainError(ErrCodeTimeout, "turn exceeded its deadline")
)

// Upstream errors. Retried with bounded backoff at the call site; surfaced
// once retries are exhausted.
var (
	ErrEmbeddingUpstream  = NewDomainError(ErrCodeUpstream, "embedding backend call failed")
	ErrCompletionUpstream = NewDomainError(ErrCodeUpstream, "completion backend call failed")
)
