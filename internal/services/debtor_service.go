package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nasiya/internal/core"
)

// PaymentStore is the storage side of the service.
type PaymentStore interface {
	RecordPayment(ctx context.Context, p core.Payment) (int64, error)
	SetStarred(ctx context.Context, id string, starred bool) error
	Close() error
}

// EventPublisher announces stored changes to the ledger worker.
type EventPublisher interface {
	PublishPaymentRecorded(ctx context.Context, paymentID int64, debtorID string) error
	PublishStarChanged(ctx context.Context, debtorID string, starred bool) error
	Close() error
}

// DebtorService orchestrates debtor writes across SQLite and AMQP.
// The database write is the source of truth; publishing is best effort.
type DebtorService struct {
	storage   PaymentStore
	publisher EventPublisher
}

// NewDebtorService creates the service. publisher may be nil.
func NewDebtorService(storage PaymentStore, publisher EventPublisher) *DebtorService {
	return &DebtorService{
		storage:   storage,
		publisher: publisher,
	}
}

// RecordPayment saves a payment locally and publishes a sync message.
func (s *DebtorService) RecordPayment(ctx context.Context, p core.Payment) (int64, error) {
	id, err := s.storage.RecordPayment(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("save payment: %w", err)
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, payment stays pending", "id", id)
		return id, nil
	}
	if err := s.publisher.PublishPaymentRecorded(ctx, id, p.DebtorID); err != nil {
		// saved locally; the worker's pending sweep picks it up
		slog.ErrorContext(ctx, "Failed to publish payment message", "id", id, "error", err)
	}
	return id, nil
}

// SetStarred saves the starred flag and publishes the change.
func (s *DebtorService) SetStarred(ctx context.Context, id string, starred bool) error {
	if err := s.storage.SetStarred(ctx, id, starred); err != nil {
		return fmt.Errorf("save star: %w", err)
	}
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishStarChanged(ctx, id, starred); err != nil {
		slog.ErrorContext(ctx, "Failed to publish star message", "debtor_id", id, "error", err)
	}
	return nil
}

// Close releases the publisher and the storage.
func (s *DebtorService) Close() error {
	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
