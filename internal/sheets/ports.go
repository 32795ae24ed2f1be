package sheets

import (
	"context"
	"time"
)

// LedgerRow is one payment as written to the ledger spreadsheet.
type LedgerRow struct {
	PaymentID      int64
	DebtorID       string
	DebtorName     string
	Date           string // 2006-01-02
	Time           string // 15:04
	DurationMonths int
	Amount         int64
	Applied        int64
	Note           string
	Images         int
	RecordedAt     time.Time
}

// Ports for outbound adapters.
type (
	// PaymentLedger appends payments to an external ledger. Appending a
	// payment that is already present returns the existing reference.
	PaymentLedger interface {
		AppendPayment(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}
)
