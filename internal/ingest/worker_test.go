package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/internal/domain"
)

type fakeDocumentSource struct {
	mu      sync.Mutex
	batches [][]PendingDocument
	claims  int
}

func (f *fakeDocumentSource) ClaimPending(_ context.Context, _ int) ([]PendingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type syncStatusStore struct {
	mu      sync.Mutex
	changes []statusChange
}

func (f *syncStatusStore) UpdateStatus(_ context.Context, _ string, from, to domain.DocumentStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, statusChange{from: from, to: to, errMsg: errorMessage})
	return nil
}

type syncChunkWriter struct {
	mu     sync.Mutex
	writes int
	failOn string
}

func (f *syncChunkWriter) ReplaceDocumentChunks(_ context.Context, _, documentID string, _ []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if documentID == f.failOn {
		return domain.NewDomainError(domain.ErrCodeUpstream, "vector store unavailable")
	}
	f.writes++
	return nil
}

type syncEmbedder struct{}

func (syncEmbedder) Embed(_ context.Context, _ string, _ string, dimensions int) ([]float32, error) {
	return make([]float32, dimensions), nil
}

func pendingJob(kb domain.KnowledgeBase) PendingDocument {
	return PendingDocument{
		Document: domain.Document{
			ID:              uuid.NewString(),
			KnowledgeBaseID: kb.ID,
			Name:            "doc.txt",
			Extension:       ".txt",
			Status:          domain.DocumentStatusProcessing,
			Content:         strings.Repeat("z", 800),
		},
		KnowledgeBase: kb,
	}
}

func TestWorker_ProcessOnce(t *testing.T) {
	kb := pipelineKB()
	jobs := []PendingDocument{pendingJob(kb), pendingJob(kb), pendingJob(kb)}

	writer := &syncChunkWriter{}
	statuses := &syncStatusStore{}
	pipeline := NewPipeline(syncEmbedder{}, writer, statuses, nil)
	source := &fakeDocumentSource{batches: [][]PendingDocument{jobs}}

	w := NewWorker(source, pipeline, time.Second, 4)
	require.NoError(t, w.ProcessOnce(context.Background()))

	assert.Equal(t, 3, writer.writes)
	require.Len(t, statuses.changes, 3)
	for _, change := range statuses.changes {
		assert.Equal(t, domain.DocumentStatusProcessed, change.to)
	}
}

func TestWorker_ProcessOnce_OneFailureDoesNotBlockOthers(t *testing.T) {
	kb := pipelineKB()
	jobs := []PendingDocument{pendingJob(kb), pendingJob(kb)}

	writer := &syncChunkWriter{failOn: jobs[0].Document.ID}
	statuses := &syncStatusStore{}
	pipeline := NewPipeline(syncEmbedder{}, writer, statuses, nil)
	source := &fakeDocumentSource{batches: [][]PendingDocument{jobs}}

	w := NewWorker(source, pipeline, time.Second, 4)
	require.NoError(t, w.ProcessOnce(context.Background()))

	assert.Equal(t, 1, writer.writes)

	outcomes := map[domain.DocumentStatus]int{}
	for _, change := range statuses.changes {
		outcomes[change.to]++
	}
	assert.Equal(t, 1, outcomes[domain.DocumentStatusProcessed])
	assert.Equal(t, 1, outcomes[domain.DocumentStatusFailed])
}

func TestWorker_StartAndStop(t *testing.T) {
	kb := pipelineKB()
	writer := &syncChunkWriter{}
	statuses := &syncStatusStore{}
	pipeline := NewPipeline(syncEmbedder{}, writer, statuses, nil)
	source := &fakeDocumentSource{batches: [][]PendingDocument{{pendingJob(kb)}}}

	w := NewWorker(source, pipeline, 10*time.Millisecond, 2)
	go w.Start(context.Background())

	assert.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.claims > 0
	}, time.Second, 10*time.Millisecond)

	w.Stop()
}
