// Package memory is an in-process profile backend seeded from a JSON file.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"nasiya/internal/core"
	"nasiya/internal/profile"
	"nasiya/internal/seed"
)

type Store struct {
	mu       sync.Mutex
	debtors  []core.Debtor
	details  map[string]core.DebtorDetails
	payments []core.Payment
	now      func() time.Time
}

var _ profile.API = (*Store)(nil)

func New(data seed.Data) *Store {
	s := &Store{
		details: make(map[string]core.DebtorDetails, len(data.Details)),
		now:     time.Now,
	}
	for _, d := range data.Debtors {
		s.debtors = append(s.debtors, cloneDebtor(d))
	}
	for _, det := range data.Details {
		s.details[det.ID] = cloneDetails(det)
	}
	return s
}

// NewFromFiles seeds the store from base/seed.json, falling back to the
// built-in data set when the file is missing or unreadable.
func NewFromFiles(base string) *Store {
	data, err := seed.Load(filepath.Join(base, seed.FileName))
	if err != nil {
		data = seed.Default()
	}
	return New(data)
}

// ListDebtors returns a copy of every debtor in seed order.
func (s *Store) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Debtor, len(s.debtors))
	for i, d := range s.debtors {
		out[i] = cloneDebtor(d)
	}
	return out, nil
}

func (s *Store) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	if err := ctx.Err(); err != nil {
		return core.Debtor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := core.FindDebtor(s.debtors, id)
	if !ok {
		return core.Debtor{}, profile.NotFound(id)
	}
	return cloneDebtor(d), nil
}

func (s *Store) GetDebtorDetails(ctx context.Context, id string) (core.DebtorDetails, error) {
	if err := ctx.Err(); err != nil {
		return core.DebtorDetails{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := core.FindDebtor(s.debtors, id); !ok {
		return core.DebtorDetails{}, profile.NotFound(id)
	}
	det, ok := s.details[id]
	if !ok {
		det = core.DebtorDetails{ID: id}
	}
	return cloneDetails(det), nil
}

func (s *Store) SetStarred(ctx context.Context, id string, starred bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.debtors {
		if s.debtors[i].ID == id {
			s.debtors[i].IsStarred = starred
			s.debtors[i].UpdatedAt = s.now()
			return nil
		}
	}
	return profile.NotFound(id)
}

// SubmitPayment validates the payment, applies it to the open transactions
// and returns a synthetic reference.
func (s *Store) SubmitPayment(ctx context.Context, p core.Payment) (string, error) {
	if err := p.Validate(); err != nil {
		return "", profile.Invalid(err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.debtors {
		if s.debtors[i].ID == p.DebtorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", profile.NotFound(p.DebtorID)
	}
	det := s.details[p.DebtorID]
	det.ID = p.DebtorID
	updated, applied := core.ApplyPayment(det, p.Amount)
	s.details[p.DebtorID] = updated
	s.debtors[idx].Amount -= applied
	s.debtors[idx].UpdatedAt = s.now()
	s.payments = append(s.payments, p)
	return fmt.Sprintf("mem:%d", len(s.payments)), nil
}

// Payments returns the payments recorded so far.
func (s *Store) Payments() []core.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Payment(nil), s.payments...)
}

func cloneDebtor(d core.Debtor) core.Debtor {
	d.PhoneNumbers = append([]string(nil), d.PhoneNumbers...)
	d.Images = append([]string(nil), d.Images...)
	return d
}

func cloneDetails(d core.DebtorDetails) core.DebtorDetails {
	d.Transactions = append([]core.Transaction(nil), d.Transactions...)
	return d
}
