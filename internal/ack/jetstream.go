package ack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
)

// Config holds the configuration for the NATS JetStream acknowledger
type Config struct {
	URL            string
	StreamName     string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	MaxRetries     uint64
}

// jsPublisher is the slice of the JetStream API the acknowledger uses
type jsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type jetStreamAcker struct {
	nc            *nats.Conn
	js            jsPublisher
	subjectPrefix string
	maxRetries    uint64
}

// NewJetStreamAcker connects to NATS and ensures the acknowledgment stream
// exists
func NewJetStreamAcker(ctx context.Context, cfg Config) (Acknowledger, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure ack stream: %w", err)
	}

	return &jetStreamAcker{
		nc:            nc,
		js:            js,
		subjectPrefix: cfg.SubjectPrefix,
		maxRetries:    cfg.MaxRetries,
	}, nil
}

// Ack publishes one acknowledgment, retrying transient publish failures
// with exponential backoff
func (a *jetStreamAcker) Ack(ctx context.Context, ack *domain.DocumentAck) error {
	if ack.AckID == "" {
		ack.AckID = uuid.NewString()
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("failed to marshal ack: %w", err)
	}

	subject := a.buildSubject(ack)

	// The ack id doubles as the broker message id: retries of the same ack
	// deduplicate server-side even when a publish failed ambiguously
	operation := func() error {
		_, err := a.js.Publish(ctx, subject, data, jetstream.WithMsgID(ack.AckID))
		return err
	}
	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.maxRetries), ctx))
	if err != nil {
		metrics.AcksPublished.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to publish ack for %s: %w", ack.FileID, err)
	}

	metrics.AcksPublished.WithLabelValues("published").Inc()
	return nil
}

// buildSubject constructs the subject from the receiving sender.
// Format: {prefix}.{sender_id}, e.g. claims.ack.FAC-001
func (a *jetStreamAcker) buildSubject(ack *domain.DocumentAck) string {
	sender := strings.ReplaceAll(ack.SenderID, ".", "_")
	sender = strings.ReplaceAll(sender, " ", "_")
	if sender == "" {
		sender = "unknown"
	}
	return fmt.Sprintf("%s.%s", a.subjectPrefix, sender)
}

// Close closes the NATS connection
func (a *jetStreamAcker) Close() {
	if a.nc == nil {
		return
	}
	a.nc.Close()
}
