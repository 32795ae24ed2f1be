package adapters

import (
	"context"
	"errors"
	"strconv"

	"nasiya/internal/core"
	"nasiya/internal/profile"
	"nasiya/internal/services"
	"nasiya/internal/storage"
)

// SQLiteAdapter puts SQLiteRepository and DebtorService behind the profile
// ports so the screens work unchanged on the SQLite + AMQP backend.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.DebtorService
}

var _ profile.API = (*SQLiteAdapter)(nil)

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.DebtorService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

func (a *SQLiteAdapter) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	debtors, err := a.storage.ListDebtors(ctx)
	return debtors, translate(err, "")
}

func (a *SQLiteAdapter) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	d, err := a.storage.GetDebtor(ctx, id)
	return d, translate(err, id)
}

func (a *SQLiteAdapter) GetDebtorDetails(ctx context.Context, id string) (core.DebtorDetails, error) {
	d, err := a.storage.GetDebtorDetails(ctx, id)
	return d, translate(err, id)
}

func (a *SQLiteAdapter) SetStarred(ctx context.Context, id string, starred bool) error {
	return translate(a.service.SetStarred(ctx, id, starred), id)
}

func (a *SQLiteAdapter) SubmitPayment(ctx context.Context, p core.Payment) (string, error) {
	if err := p.Validate(); err != nil {
		return "", profile.Invalid(err)
	}
	id, err := a.service.RecordPayment(ctx, p)
	if err != nil {
		return "", translate(err, p.DebtorID)
	}
	return strconv.FormatInt(id, 10), nil
}

// Ping reports database health for readiness checks.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}

// Close closes the service, which owns the storage.
func (a *SQLiteAdapter) Close() error {
	return a.service.Close()
}

func translate(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrNotFound):
		return profile.NotFound(id)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &profile.APIError{Err: err}
}
