// Package worker copies recorded payments from SQLite into the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nasiya/internal/amqp"
	"nasiya/internal/sheets"
	"nasiya/internal/storage"
)

// PaymentSource is the part of the repository the worker reads and updates.
type PaymentSource interface {
	GetPayment(ctx context.Context, id int64) (storage.Payment, error)
	PendingPayments(ctx context.Context, limit int) ([]storage.Payment, error)
	MarkPaymentSynced(ctx context.Context, id int64) error
	MarkPaymentError(ctx context.Context, id int64, cause error) error
}

// LedgerWorker appends payments to the ledger and tracks their sync status.
type LedgerWorker struct {
	storage   PaymentSource
	ledger    sheets.PaymentLedger
	batchSize int
}

func NewLedgerWorker(storage PaymentSource, ledger sheets.PaymentLedger, batchSize int) *LedgerWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &LedgerWorker{
		storage:   storage,
		ledger:    ledger,
		batchSize: batchSize,
	}
}

// Handlers returns the AMQP handlers served by this worker.
func (w *LedgerWorker) Handlers() amqp.Handlers {
	return amqp.Handlers{
		PaymentRecorded: w.HandlePaymentRecorded,
		StarChanged:     w.HandleStarChanged,
	}
}

// HandlePaymentRecorded processes a single payment_recorded message.
func (w *LedgerWorker) HandlePaymentRecorded(ctx context.Context, msg *amqp.Message) error {
	if msg == nil || msg.PaymentID <= 0 {
		return errors.New("payment message without id")
	}

	slog.InfoContext(ctx, "Processing payment message",
		"payment_id", msg.PaymentID,
		"debtor_id", msg.DebtorID)

	p, err := w.storage.GetPayment(ctx, msg.PaymentID)
	if err != nil {
		return fmt.Errorf("get payment from storage: %w", err)
	}
	if p.SyncStatus == storage.SyncSynced {
		slog.InfoContext(ctx, "Payment already synced", "payment_id", p.ID)
		return nil
	}
	return w.sync(ctx, p)
}

// HandleStarChanged only records the change; the ledger holds payments.
func (w *LedgerWorker) HandleStarChanged(ctx context.Context, msg *amqp.Message) error {
	slog.InfoContext(ctx, "Star changed",
		"debtor_id", msg.DebtorID,
		"starred", msg.Starred)
	return nil
}

// ProcessPending syncs payments whose message may have been lost.
// Individual failures are marked on the payment and do not stop the batch.
func (w *LedgerWorker) ProcessPending(ctx context.Context) (synced int, err error) {
	pending, err := w.storage.PendingPayments(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending payments: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending payments", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.sync(ctx, p); err != nil {
			slog.ErrorContext(ctx, "Failed to sync payment", "payment_id", p.ID, "error", err)
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Pending sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", len(pending)-synced)
	return synced, nil
}

func (w *LedgerWorker) sync(ctx context.Context, p storage.Payment) error {
	ref, err := w.ledger.AppendPayment(ctx, toRow(p))
	if err != nil {
		if markErr := w.storage.MarkPaymentError(ctx, p.ID, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "payment_id", p.ID, "error", markErr)
		}
		return fmt.Errorf("append to ledger: %w", err)
	}

	// The row is written; a failed status update is retried by the sweep
	// and the ledger skips the duplicate id.
	if err := w.storage.MarkPaymentSynced(ctx, p.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "payment_id", p.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced payment",
		"payment_id", p.ID,
		"debtor_id", p.DebtorID,
		"ledger_ref", ref,
		"amount", p.Amount)
	return nil
}

func toRow(p storage.Payment) sheets.LedgerRow {
	return sheets.LedgerRow{
		PaymentID:      p.ID,
		DebtorID:       p.DebtorID,
		DebtorName:     p.DebtorName,
		Date:           p.Date,
		Time:           p.Time,
		DurationMonths: p.DurationMonths,
		Amount:         p.Amount,
		Applied:        p.Applied,
		Note:           p.Note,
		Images:         p.ImageCount,
		RecordedAt:     p.CreatedAt,
	}
}
