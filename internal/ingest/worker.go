package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/telemetry"
)

// PendingDocument pairs a claimed document with the knowledge base snapshot
// captured at upload time.
type PendingDocument struct {
	Document      domain.Document
	KnowledgeBase domain.KnowledgeBase
}

// DocumentSource claims pending documents for processing.
type DocumentSource interface {
	ClaimPending(ctx context.Context, limit int) ([]PendingDocument, error)
}

// Worker polls for pending documents and runs the ingestion pipeline over
// them. Claimed documents are processed concurrently; one document failing
// never blocks the rest of the batch.
type Worker struct {
	source       DocumentSource
	pipeline     *Pipeline
	pollInterval time.Duration
	concurrency  int
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(source DocumentSource, pipeline *Pipeline, pollInterval time.Duration, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		source:       source,
		pipeline:     pipeline,
		pollInterval: pollInterval,
		concurrency:  concurrency,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("ingest worker started with poll interval: %v", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("ingest worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("ingest worker stopped: stop signal received")
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				log.Printf("ingest worker: error processing documents: %v", err)
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("ingest worker shutdown complete")
}

// ProcessOnce claims one batch of pending documents and processes it.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	pending, err := w.source.ClaimPending(ctx, w.concurrency)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	log.Printf("ingest worker: processing %d pending documents", len(pending))

	var wg sync.WaitGroup
	for _, job := range pending {
		wg.Add(1)
		go func(job PendingDocument) {
			defer wg.Done()
			if _, err := w.pipeline.Process(ctx, job.Document, job.KnowledgeBase); err != nil {
				telemetry.CaptureError(ctx, err)
				log.Printf("ingest worker: document %s failed: %v", job.Document.ID, err)
			}
		}(job)
	}
	wg.Wait()
	return nil
}
