package domain

import "time"

// ChunkSubtype tags the kind of content a chunk was derived from. Plain
// knowledge bases only produce text chunks; unstructured ingestion also
// emits table and image-derived chunks.
type ChunkSubtype string

const (
	ChunkSubtypeText  ChunkSubtype = "text"
	ChunkSubtypeTable ChunkSubtype = "table"
	ChunkSubtypeImage ChunkSubtype = "image"
)

// Chunk is a contiguous slice of a document's text with its embedding.
// Chunks are keyed by (knowledge base, document, ordinal) and overwritten
// as a set whenever their document is reprocessed.
type Chunk struct {
	ID              string
	KnowledgeBaseID string
	DocumentID      string
	Ordinal         int
	Content         string
	Subtype         ChunkSubtype
	// ContextSummary carries the contextual-retrieval summary generated at
	// ingestion time. Empty for all other strategies.
	ContextSummary string
	Embedding      []float32
	CreatedAt      time.Time
}
