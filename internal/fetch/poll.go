package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/intake"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
)

// requeueBatchSize bounds how many operator requeues one poll cycle drains
const requeueBatchSize = 100

// PollFetcherConfig holds configuration for the polling fetcher
type PollFetcherConfig struct {
	InboxDir   string        // root directory holding one subdirectory per facility
	ArchiveDir string        // where processed documents were moved, used for requeues
	Interval   time.Duration // time between poll cycles
	Facilities []string      // facility codes to poll
	FanOut     int           // concurrent facility polls
}

// pollFetcher scans per-facility inbox directories on an interval. A
// modification-time cursor per facility keeps repeated cycles from
// re-reading files that were already offered; the processed-document check
// makes the cursor safe to lose. The fetcher also drains operator requeues
// by re-offering archived documents.
type pollFetcher struct {
	config PollFetcherConfig
	store  store.Store
	queue  *intake.Queue
	pool   pond.Pool

	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewPollFetcher creates a fetcher polling per-facility inbox directories
func NewPollFetcher(config PollFetcherConfig, st store.Store, q *intake.Queue) Fetcher {
	if config.FanOut < 1 {
		config.FanOut = 1
	}
	return &pollFetcher{
		config:    config,
		store:     st,
		queue:     q,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the fetcher's name
func (f *pollFetcher) Name() string {
	return "poll-fetcher"
}

// Start begins the poll loop. Blocks until the context is canceled or Stop
// is called.
func (f *pollFetcher) Start(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return fmt.Errorf("fetcher already running")
	}
	defer func() {
		f.running.Store(false)
		close(f.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting poll fetcher",
		zap.String("inbox", f.config.InboxDir),
		zap.Duration("interval", f.config.Interval),
		zap.Int("facilities", len(f.config.Facilities)),
		zap.Int("fan_out", f.config.FanOut))

	f.pool = pond.NewPool(f.config.FanOut, pond.WithContext(ctx))
	defer f.pool.StopAndWait()

	ticker := time.NewTicker(f.config.Interval)
	defer ticker.Stop()

	// First cycle runs immediately
	f.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Poll fetcher stopping due to context cancellation")
			return nil
		case <-f.stopChan:
			logger.InfoCtx(ctx, "Poll fetcher stop requested")
			return nil
		case <-ticker.C:
			f.runCycle(ctx)
		}
	}
}

// Stop gracefully stops the fetcher
func (f *pollFetcher) Stop(ctx context.Context) error {
	if !f.running.CompareAndSwap(true, false) {
		return nil
	}

	close(f.stopChan)

	select {
	case <-f.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *pollFetcher) runCycle(ctx context.Context) {
	group := f.pool.NewGroup()
	for _, facility := range f.config.Facilities {
		group.Submit(func() {
			if err := f.pollFacility(ctx, facility); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err, zap.String("facility", facility))
				}
			}
		})
	}
	_ = group.Wait()

	if err := f.drainRequeues(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, err)
		}
	}
}

// pollFacility scans one facility's inbox, offering files newer than the
// stored cursor. The directory listing is retried with exponential backoff
// so a transiently unavailable mount does not skip a cycle.
func (f *pollFetcher) pollFacility(ctx context.Context, facility string) error {
	dir := filepath.Join(f.config.InboxDir, facility)

	var entries []os.DirEntry
	operation := func() error {
		var err error
		entries, err = os.ReadDir(dir)
		if os.IsNotExist(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))
	if err != nil {
		if os.IsNotExist(err) {
			logger.DebugCtx(ctx, "Facility inbox missing, skipping",
				zap.String("facility", facility))
			return nil
		}
		return fmt.Errorf("failed to read facility inbox %s: %w", dir, err)
	}

	cursor, err := f.store.GetFetchCursor(ctx, facility)
	if err != nil {
		return err
	}
	var watermark time.Time
	if cursor != "" {
		watermark, _ = time.Parse(time.RFC3339Nano, cursor)
	}

	newest := watermark
	for _, entry := range entries {
		if entry.IsDir() || !isDocumentFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().After(watermark) {
			continue
		}

		if err := f.offerFile(ctx, filepath.Join(dir, entry.Name()), facility); err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}

	if newest.After(watermark) {
		if err := f.store.SetFetchCursor(ctx, facility, newest.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	return nil
}

// drainRequeues re-offers documents an operator flagged for reprocessing,
// reading their bodies back from the archive
func (f *pollFetcher) drainRequeues(ctx context.Context) error {
	if f.config.ArchiveDir == "" {
		return nil
	}

	files, err := f.store.ListRequeuedDocuments(ctx, requeueBatchSize)
	if err != nil {
		return err
	}

	for _, file := range files {
		path := filepath.Join(f.config.ArchiveDir, file.FileID+".xml")
		payload, err := readDocument(path)
		if err != nil {
			logger.WarnCtx(ctx, "Requeued document missing from archive",
				zap.String("file_id", file.FileID),
				zap.Error(err))
			continue
		}

		metrics.DocumentsDiscovered.WithLabelValues("requeue").Inc()

		err = offer(ctx, f.queue, intake.Document{
			FileID:     file.FileID,
			Source:     "requeue",
			Path:       path,
			Payload:    payload,
			ReceivedAt: time.Now(),
		}, f.stopChan)
		if err != nil {
			return err
		}
	}

	return nil
}

func (f *pollFetcher) offerFile(ctx context.Context, path, facility string) error {
	fileID := fileIDFromPath(path)

	ok, err := shouldOffer(ctx, f.store, fileID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	payload, err := readDocument(path)
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", path, err)
	}

	metrics.DocumentsDiscovered.WithLabelValues("poll").Inc()

	return offer(ctx, f.queue, intake.Document{
		FileID:     fileID,
		Source:     "poll:" + facility,
		Path:       path,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}, f.stopChan)
}
