// Package fetch acquires claim documents and offers them to the intake
// queue. Fetchers are loss-free under backpressure: a document rejected by
// a full queue is re-offered once the queue signals it has drained, and a
// fetcher restart never re-enqueues documents already processed.
package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/intake"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
)

// Fetcher defines the interface for document fetcher implementations.
// Fetchers are long-running background tasks that feed the intake queue.
type Fetcher interface {
	// Start begins the fetcher's main loop
	// This is a blocking call that runs until the context is canceled
	Start(ctx context.Context) error

	// Stop gracefully stops the fetcher
	Stop(ctx context.Context) error

	// Name returns the fetcher's name for logging and identification
	Name() string
}

// fileIDFromPath derives the document's natural id from its file name
func fileIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isDocumentFile reports whether a directory entry looks like a claim
// document
func isDocumentFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}

// offer enqueues a document, pausing on backpressure until the queue
// drains below its low-water mark. Returns once the document is admitted,
// or with an error on cancellation or queue close.
func offer(ctx context.Context, q *intake.Queue, doc intake.Document, stop <-chan struct{}) error {
	for {
		err := q.Enqueue(doc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrQueueFull) {
			return err
		}

		select {
		case <-q.Resumable():
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return domain.ErrQueueClosed
		}
	}
}

// shouldOffer reports whether a discovered file still needs processing
func shouldOffer(ctx context.Context, st store.Store, fileID string) (bool, error) {
	processed, err := st.IsDocumentProcessed(ctx, fileID)
	if err != nil {
		return false, err
	}
	return !processed, nil
}

// readDocument loads a document body from disk
func readDocument(path string) ([]byte, error) {
	return os.ReadFile(path)
}
