package auth

import (
	"context"

	"nasiya/internal/core"
	"nasiya/internal/profile"
)

// Guarded rejects every call made without verified claims in the context.
type Guarded struct {
	next profile.API
}

var _ profile.API = (*Guarded)(nil)

// Guard wraps a local backend so anonymous callers get a 401.
func Guard(next profile.API) *Guarded {
	return &Guarded{next: next}
}

func check(ctx context.Context) error {
	if ClaimsFromContext(ctx) == nil {
		return profile.Unauthenticated("Avtorizatsiyadan o'tilmagan")
	}
	return nil
}

func (g *Guarded) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return g.next.ListDebtors(ctx)
}

func (g *Guarded) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	if err := check(ctx); err != nil {
		return core.Debtor{}, err
	}
	return g.next.GetDebtor(ctx, id)
}

func (g *Guarded) GetDebtorDetails(ctx context.Context, id string) (core.DebtorDetails, error) {
	if err := check(ctx); err != nil {
		return core.DebtorDetails{}, err
	}
	return g.next.GetDebtorDetails(ctx, id)
}

func (g *Guarded) SetStarred(ctx context.Context, id string, starred bool) error {
	if err := check(ctx); err != nil {
		return err
	}
	return g.next.SetStarred(ctx, id, starred)
}

func (g *Guarded) SubmitPayment(ctx context.Context, p core.Payment) (string, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	return g.next.SubmitPayment(ctx, p)
}
