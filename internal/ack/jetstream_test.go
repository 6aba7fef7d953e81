package ack

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
)

type fakeJetStream struct {
	failures int
	subjects []string
	payloads [][]byte
}

func (f *fakeJetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("stream unavailable")
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return &jetstream.PubAck{}, nil
}

func newTestAcker(js jsPublisher, retries uint64) *jetStreamAcker {
	return &jetStreamAcker{js: js, subjectPrefix: "claims.ack", maxRetries: retries}
}

func TestAckPublishesToSenderSubject(t *testing.T) {
	js := &fakeJetStream{}
	acker := newTestAcker(js, 0)

	doc := &domain.DocumentAck{
		FileID:   "file-1",
		SenderID: "FAC 001.A",
		Verified: true,
		AckedAt:  time.Now().UTC(),
	}
	require.NoError(t, acker.Ack(context.Background(), doc))

	require.Len(t, js.subjects, 1)
	assert.Equal(t, "claims.ack.FAC_001_A", js.subjects[0])

	var decoded domain.DocumentAck
	require.NoError(t, json.Unmarshal(js.payloads[0], &decoded))
	assert.Equal(t, "file-1", decoded.FileID)
	assert.True(t, decoded.Verified)
	assert.NotEmpty(t, decoded.AckID)
}

func TestAckAssignsIDOncePerAck(t *testing.T) {
	js := &fakeJetStream{}
	acker := newTestAcker(js, 0)

	doc := &domain.DocumentAck{FileID: "file-5", SenderID: "FAC-001", AckID: "ack-5"}
	require.NoError(t, acker.Ack(context.Background(), doc))

	// A caller-assigned id survives so a republished ack keeps its identity
	var decoded domain.DocumentAck
	require.NoError(t, json.Unmarshal(js.payloads[0], &decoded))
	assert.Equal(t, "ack-5", decoded.AckID)

	// Two distinct acks never share an id
	other := &domain.DocumentAck{FileID: "file-6", SenderID: "FAC-001"}
	require.NoError(t, acker.Ack(context.Background(), other))
	assert.NotEmpty(t, other.AckID)
	assert.NotEqual(t, doc.AckID, other.AckID)
}

func TestAckRetriesTransientFailures(t *testing.T) {
	js := &fakeJetStream{failures: 2}
	acker := newTestAcker(js, 3)

	err := acker.Ack(context.Background(), &domain.DocumentAck{FileID: "file-2", SenderID: "FAC-001"})
	require.NoError(t, err)
	assert.Len(t, js.subjects, 1)
}

func TestAckGivesUpAfterMaxRetries(t *testing.T) {
	js := &fakeJetStream{failures: 10}
	acker := newTestAcker(js, 2)

	err := acker.Ack(context.Background(), &domain.DocumentAck{FileID: "file-3", SenderID: "FAC-001"})
	assert.Error(t, err)
	assert.Empty(t, js.subjects)
}

func TestAckEmptySenderFallsBack(t *testing.T) {
	js := &fakeJetStream{}
	acker := newTestAcker(js, 0)

	require.NoError(t, acker.Ack(context.Background(), &domain.DocumentAck{FileID: "file-4"}))
	assert.Equal(t, "claims.ack.unknown", js.subjects[0])
}

func TestNoopAcker(t *testing.T) {
	acker := NewNoopAcker()
	assert.NoError(t, acker.Ack(context.Background(), &domain.DocumentAck{FileID: "x"}))
	acker.Close()
}
