// Package ack publishes best-effort document acknowledgments after
// verification. Acknowledgment failure never fails the document: the ledger
// is already consistent by the time an ack is attempted.
package ack

import (
	"context"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
)

// Acknowledger defines the interface for acknowledgment publishers
type Acknowledger interface {
	// Ack publishes one document acknowledgment
	Ack(ctx context.Context, ack *domain.DocumentAck) error
	// Close closes the underlying connection
	Close()
}

// noopAcker is used when acknowledgments are disabled (the default)
type noopAcker struct{}

// NewNoopAcker creates an acknowledger that silently accepts everything
func NewNoopAcker() Acknowledger {
	return noopAcker{}
}

func (noopAcker) Ack(ctx context.Context, ack *domain.DocumentAck) error { return nil }

func (noopAcker) Close() {}
