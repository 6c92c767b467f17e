package domain

import "time"

// DocumentStatus tracks a document through the ingestion state machine.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is a source file owned by one KnowledgeBase.
type Document struct {
	ID              string
	KnowledgeBaseID string
	Name            string
	Extension       string
	Status          DocumentStatus
	// StorageKey locates the raw document text in blob storage. Empty when
	// the text was supplied inline on upload.
	StorageKey string
	// Content holds inline document text when no blob storage is configured.
	Content      string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanTransitionTo reports whether the status machine allows moving from s
// to next. The machine is monotonic except for retries: failed documents,
// and documents stranded in processing by a crash or timeout, may be
// re-queued as pending.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case DocumentStatusUploaded:
		return next == DocumentStatusPending
	case DocumentStatusPending:
		return next == DocumentStatusProcessing
	case DocumentStatusProcessing:
		return next == DocumentStatusProcessed || next == DocumentStatusFailed || next == DocumentStatusPending
	case DocumentStatusFailed:
		return next == DocumentStatusPending
	case DocumentStatusProcessed:
		return next == DocumentStatusPending
	}
	return false
}

// ValidateDocument validates a Document instance.
func ValidateDocument(d *Document) error {
	if d == nil {
		return NewDomainError(ErrCodeValidation, "document cannot be nil")
	}
	if d.ID == "" {
		return NewDomainError(ErrCodeValidation, "document ID is required")
	}
	if d.KnowledgeBaseID == "" {
		return NewDomainError(ErrCodeValidation, "document KnowledgeBaseID is required")
	}
	if d.Name == "" {
		return NewDomainError(ErrCodeValidation, "document Name is required")
	}
	if !isValidDocumentStatus(d.Status) {
		return NewDomainError(ErrCodeValidation, "document Status is invalid: "+string(d.Status))
	}
	return nil
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusPending, DocumentStatusProcessing,
		DocumentStatusProcessed, DocumentStatusFailed:
		return true
	}
	return false
}
