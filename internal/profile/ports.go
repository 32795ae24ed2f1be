// Package profile defines the data-access collaborator the screens talk to.
//
// Backends (memory, sqlite, remote HTTP) implement these ports; failures are
// reported as *APIError so consumers can react to the status code.
package profile

import (
	"context"

	"nasiya/internal/core"
)

// Ports for outbound adapters.
type (
	DebtorLister interface {
		ListDebtors(ctx context.Context) ([]core.Debtor, error)
	}

	DebtorReader interface {
		GetDebtor(ctx context.Context, id string) (core.Debtor, error)
	}

	// DetailsReader returns the outstanding balance and transactions of one debtor.
	DetailsReader interface {
		GetDebtorDetails(ctx context.Context, id string) (core.DebtorDetails, error)
	}

	// StarWriter persists the starred flag.
	StarWriter interface {
		SetStarred(ctx context.Context, id string, starred bool) error
	}

	// PaymentSubmitter records a payment and returns a backend reference for it.
	PaymentSubmitter interface {
		SubmitPayment(ctx context.Context, p core.Payment) (ref string, err error)
	}

	// API is the full collaborator surface.
	API interface {
		DebtorLister
		DebtorReader
		DetailsReader
		StarWriter
		PaymentSubmitter
	}
)
