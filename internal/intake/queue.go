// Package intake provides the bounded buffer between document fetchers and
// the ingestion pipeline. Admission is all-or-nothing: a document is either
// accepted whole or rejected immediately, and rejection is loss-free
// because fetchers re-offer rejected documents after the queue drains.
package intake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
)

// Document is one fetched file offered to the pipeline
type Document struct {
	// FileID is the document's natural identifier, unique per sender
	FileID string
	// Source names the fetcher that produced the document
	Source string
	// Path is the source location, used for archival after processing
	Path string
	// Payload is the raw document body
	Payload []byte
	// ReceivedAt is when the fetcher picked the document up
	ReceivedAt time.Time
}

// Queue is a bounded FIFO with a low-water resume signal. Enqueue never
// blocks; Dequeue blocks until a document, cancellation, or close.
type Queue struct {
	ch       chan Document
	lowWater int

	mu     sync.RWMutex
	closed bool

	paused   atomic.Bool
	resumeCh chan struct{}
}

// NewQueue creates a queue holding at most capacity documents. The resume
// signal fires once depth drains below lowWater after a rejection.
func NewQueue(capacity, lowWater int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if lowWater < 0 || lowWater >= capacity {
		lowWater = capacity / 2
	}
	return &Queue{
		ch:       make(chan Document, capacity),
		lowWater: lowWater,
		resumeCh: make(chan struct{}, 1),
	}
}

// Enqueue offers a document without blocking. Returns ErrQueueFull when the
// queue is at capacity and ErrQueueClosed after Close; the document is not
// admitted in either case.
func (q *Queue) Enqueue(doc Document) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return domain.ErrQueueClosed
	}

	select {
	case q.ch <- doc:
		metrics.IntakeAccepted.Inc()
		metrics.IntakeDepth.Set(float64(len(q.ch)))
		return nil
	default:
		q.paused.Store(true)
		metrics.IntakeRejected.Inc()
		// Consumers may drain below the low-water mark between the failed
		// send and the pause flag landing; those dequeues saw the queue
		// unpaused and armed nothing. Re-check here so the resume signal
		// cannot be lost.
		q.maybeResume()
		return domain.ErrQueueFull
	}
}

// Dequeue blocks until a document is available, the context is cancelled,
// or the queue is closed and drained
func (q *Queue) Dequeue(ctx context.Context) (Document, error) {
	select {
	case doc, ok := <-q.ch:
		if !ok {
			return Document{}, domain.ErrQueueClosed
		}
		q.afterDequeue()
		return doc, nil
	case <-ctx.Done():
		return Document{}, ctx.Err()
	}
}

func (q *Queue) afterDequeue() {
	metrics.IntakeDepth.Set(float64(len(q.ch)))
	q.maybeResume()
}

// maybeResume signals resumption once, when depth is below the low-water
// mark while a rejection left the queue paused
func (q *Queue) maybeResume() {
	if len(q.ch) < q.lowWater && q.paused.CompareAndSwap(true, false) {
		select {
		case q.resumeCh <- struct{}{}:
		default:
		}
	}
}

// Resumable exposes the resume signal. Fetchers that hit ErrQueueFull wait
// on this channel before offering again.
func (q *Queue) Resumable() <-chan struct{} {
	return q.resumeCh
}

// Depth returns the current number of queued documents
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Close stops admission. Queued documents remain dequeueable; once drained,
// Dequeue returns ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
