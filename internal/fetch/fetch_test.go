package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/intake"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/storetest"
)

func TestFileIDFromPath(t *testing.T) {
	assert.Equal(t, "FAC-001_sub_0001", fileIDFromPath("/inbox/FAC-001_sub_0001.xml"))
	assert.Equal(t, "plain", fileIDFromPath("plain.xml"))
	assert.Equal(t, "noext", fileIDFromPath("/inbox/noext"))
}

func TestIsDocumentFile(t *testing.T) {
	assert.True(t, isDocumentFile("claim.xml"))
	assert.True(t, isDocumentFile("CLAIM.XML"))
	assert.False(t, isDocumentFile("claim.txt"))
	assert.False(t, isDocumentFile(".hidden"))
}

func writeDoc(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func drain(t *testing.T, q *intake.Queue) []intake.Document {
	t.Helper()
	var docs []intake.Document
	for q.Depth() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		doc, err := q.Dequeue(ctx)
		cancel()
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	return docs
}

func TestLocalFSSweepOffersUnprocessedDocuments(t *testing.T) {
	inbox := t.TempDir()
	writeDoc(t, inbox, "doc-a.xml", "<a/>")
	writeDoc(t, inbox, "notes.txt", "ignore me")
	writeDoc(t, inbox, "doc-done.xml", "<done/>")

	fake := storetest.New()
	fake.SeedProcessedFile("doc-done")

	q := intake.NewQueue(8, 2)
	f := NewLocalFSFetcher(inbox, fake, q).(*localFSFetcher)

	require.NoError(t, f.sweepInbox(context.Background()))

	docs := drain(t, q)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-a", docs[0].FileID)
	assert.Equal(t, "localfs", docs[0].Source)
	assert.Equal(t, []byte("<a/>"), docs[0].Payload)
}

func TestLocalFSWatcherPicksUpNewFiles(t *testing.T) {
	inbox := t.TempDir()
	fake := storetest.New()
	q := intake.NewQueue(8, 2)
	f := NewLocalFSFetcher(inbox, fake, q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.Start(ctx) }()

	// Give the watcher a moment to attach before dropping the file
	time.Sleep(100 * time.Millisecond)
	writeDoc(t, inbox, "doc-live.xml", "<live/>")

	deadline, deadlineCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer deadlineCancel()
	doc, err := q.Dequeue(deadline)
	require.NoError(t, err)
	assert.Equal(t, "doc-live", doc.FileID)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, f.Stop(stopCtx))
	require.NoError(t, <-done)
}

func TestPollFacilityAdvancesCursor(t *testing.T) {
	inbox := t.TempDir()
	facilityDir := filepath.Join(inbox, "FAC-001")
	require.NoError(t, os.MkdirAll(facilityDir, 0o755))

	old := time.Now().Add(-2 * time.Hour)
	path := writeDoc(t, facilityDir, "doc-1.xml", "<one/>")
	require.NoError(t, os.Chtimes(path, old, old))

	fake := storetest.New()
	q := intake.NewQueue(8, 2)
	f := NewPollFetcher(PollFetcherConfig{
		InboxDir:   inbox,
		Interval:   time.Minute,
		Facilities: []string{"FAC-001"},
	}, fake, q).(*pollFetcher)

	require.NoError(t, f.pollFacility(context.Background(), "FAC-001"))
	docs := drain(t, q)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].FileID)
	assert.Equal(t, "poll:FAC-001", docs[0].Source)

	cursor, err := fake.GetFetchCursor(context.Background(), "FAC-001")
	require.NoError(t, err)
	parsed, err := time.Parse(time.RFC3339Nano, cursor)
	require.NoError(t, err)
	assert.WithinDuration(t, old, parsed, time.Second)

	// A second cycle sees nothing newer than the cursor
	require.NoError(t, f.pollFacility(context.Background(), "FAC-001"))
	assert.Zero(t, q.Depth())

	// A fresh file lands and only it is offered
	writeDoc(t, facilityDir, "doc-2.xml", "<two/>")
	require.NoError(t, f.pollFacility(context.Background(), "FAC-001"))
	docs = drain(t, q)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-2", docs[0].FileID)
}

func TestPollFacilitySkipsProcessedDocuments(t *testing.T) {
	inbox := t.TempDir()
	facilityDir := filepath.Join(inbox, "FAC-001")
	require.NoError(t, os.MkdirAll(facilityDir, 0o755))
	writeDoc(t, facilityDir, "doc-done.xml", "<done/>")

	fake := storetest.New()
	fake.SeedProcessedFile("doc-done")
	q := intake.NewQueue(8, 2)
	f := NewPollFetcher(PollFetcherConfig{
		InboxDir:   inbox,
		Interval:   time.Minute,
		Facilities: []string{"FAC-001"},
	}, fake, q).(*pollFetcher)

	require.NoError(t, f.pollFacility(context.Background(), "FAC-001"))
	assert.Zero(t, q.Depth())
}

func TestPollFacilityMissingInboxIsNotAnError(t *testing.T) {
	fake := storetest.New()
	q := intake.NewQueue(8, 2)
	f := NewPollFetcher(PollFetcherConfig{
		InboxDir:   filepath.Join(t.TempDir(), "nope"),
		Interval:   time.Minute,
		Facilities: []string{"FAC-001"},
	}, fake, q).(*pollFetcher)

	require.NoError(t, f.pollFacility(context.Background(), "FAC-001"))
	assert.Zero(t, q.Depth())
}

func TestDrainRequeuesReadsFromArchive(t *testing.T) {
	archive := t.TempDir()
	writeDoc(t, archive, "doc-retry.xml", "<retry/>")

	fake := storetest.New()
	seedFailedFile(t, fake, "doc-retry")
	seedFailedFile(t, fake, "doc-gone") // archived body missing
	require.NoError(t, fake.MarkFileRequeued(context.Background(), "doc-retry"))
	require.NoError(t, fake.MarkFileRequeued(context.Background(), "doc-gone"))

	q := intake.NewQueue(8, 2)
	f := NewPollFetcher(PollFetcherConfig{
		InboxDir:   t.TempDir(),
		ArchiveDir: archive,
		Interval:   time.Minute,
	}, fake, q).(*pollFetcher)

	require.NoError(t, f.drainRequeues(context.Background()))

	docs := drain(t, q)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-retry", docs[0].FileID)
	assert.Equal(t, "requeue", docs[0].Source)
	assert.Equal(t, []byte("<retry/>"), docs[0].Payload)
}

func seedFailedFile(t *testing.T, fake *storetest.Fake, fileID string) {
	t.Helper()
	ctx := context.Background()
	file, _, err := fake.CreateIngestionFile(ctx, store.CreateIngestionFileInput{
		FileID:   fileID,
		RootType: schema.RootTypeSubmission,
	})
	require.NoError(t, err)
	require.NoError(t, fake.UpdateFileOutcome(ctx, file.ID, store.FileOutcome{
		Status: schema.FileStatusFailed,
	}))
}
