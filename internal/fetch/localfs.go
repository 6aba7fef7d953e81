package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/intake"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
)

// settleDelay gives writers time to finish before a freshly created file
// is read
const settleDelay = 200 * time.Millisecond

// localFSFetcher watches an inbox directory for dropped documents. A sweep
// at startup picks up files that arrived while the process was down; the
// filesystem watcher covers everything after that.
type localFSFetcher struct {
	inboxDir string
	store    store.Store
	queue    *intake.Queue

	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewLocalFSFetcher creates a fetcher that watches inboxDir for documents
func NewLocalFSFetcher(inboxDir string, st store.Store, q *intake.Queue) Fetcher {
	return &localFSFetcher{
		inboxDir:  inboxDir,
		store:     st,
		queue:     q,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the fetcher's name
func (f *localFSFetcher) Name() string {
	return "localfs-fetcher"
}

// Start begins watching the inbox. Blocks until the context is canceled or
// Stop is called.
func (f *localFSFetcher) Start(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return fmt.Errorf("fetcher already running")
	}
	defer func() {
		f.running.Store(false)
		close(f.stoppedCh)
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.inboxDir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", f.inboxDir, err)
	}

	logger.InfoCtx(ctx, "Starting localfs fetcher",
		zap.String("inbox", f.inboxDir))

	// Catch up on files that arrived before the watch was in place
	if err := f.sweepInbox(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		logger.ErrorCtx(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Localfs fetcher stopping due to context cancellation")
			return nil
		case <-f.stopChan:
			logger.InfoCtx(ctx, "Localfs fetcher stop requested")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isDocumentFile(event.Name) {
				continue
			}
			time.Sleep(settleDelay)
			if err := f.offerFile(ctx, event.Name); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.ErrorCtx(ctx, err, zap.String("path", event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.ErrorCtx(ctx, err)
		}
	}
}

// Stop gracefully stops the fetcher
func (f *localFSFetcher) Stop(ctx context.Context) error {
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

// sweepInbox offers every unprocessed document already sitting in the inbox
func (f *localFSFetcher) sweepInbox(ctx context.Context) error {
	entries, err := os.ReadDir(f.inboxDir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isDocumentFile(entry.Name()) {
			continue
		}
		if err := f.offerFile(ctx, filepath.Join(f.inboxDir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

func (f *localFSFetcher) offerFile(ctx context.Context, path string) error {
	fileID := fileIDFromPath(path)

	ok, err := shouldOffer(ctx, f.store, fileID)
	if err != nil {
		return err
	}
	if !ok {
		logger.DebugCtx(ctx, "Skipping already processed document",
			zap.String("file_id", fileID))
		return nil
	}

	payload, err := readDocument(path)
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", path, err)
	}

	metrics.DocumentsDiscovered.WithLabelValues("localfs").Inc()

	return offer(ctx, f.queue, intake.Document{
		FileID:     fileID,
		Source:     "localfs",
		Path:       path,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}, f.stopChan)
}
