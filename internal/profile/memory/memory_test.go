package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nasiya/internal/core"
	"nasiya/internal/profile"
	"nasiya/internal/seed"
)

func TestStoreListAndDetails(t *testing.T) {
	s := New(seed.Default())
	ctx := context.Background()

	debtors, err := s.ListDebtors(ctx)
	if err != nil || len(debtors) != 3 {
		t.Fatalf("unexpected list: %v err=%v", debtors, err)
	}
	// Mutating the returned slice must not leak into the store.
	debtors[0].PhoneNumbers[0] = "changed"
	again, _ := s.ListDebtors(ctx)
	if again[0].PhoneNumbers[0] == "changed" {
		t.Fatalf("store leaked internal slice")
	}

	det, err := s.GetDebtorDetails(ctx, "1")
	if err != nil || det.TotalDebt != 14786000 || len(det.Transactions) != 1 {
		t.Fatalf("unexpected details: %+v err=%v", det, err)
	}

	det, err = s.GetDebtorDetails(ctx, "3")
	if err != nil || det.ID != "3" || len(det.Transactions) != 0 {
		t.Fatalf("expected empty details for debtor without transactions: %+v err=%v", det, err)
	}

	if _, err := s.GetDebtorDetails(ctx, "404"); profile.StatusOf(err) != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestStoreSetStarred(t *testing.T) {
	s := New(seed.Default())
	ctx := context.Background()
	if err := s.SetStarred(ctx, "1", true); err != nil {
		t.Fatalf("set starred: %v", err)
	}
	d, _ := s.GetDebtor(ctx, "1")
	if !d.IsStarred {
		t.Fatalf("expected starred")
	}
	if err := s.SetStarred(ctx, "nope", true); profile.StatusOf(err) != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestStoreSubmitPayment(t *testing.T) {
	s := New(seed.Default())
	ctx := context.Background()

	ref, err := s.SubmitPayment(ctx, core.Payment{DebtorID: "1", Date: "2024-11-07", Time: "10:00", Amount: 345000})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected submit: ref=%q err=%v", ref, err)
	}
	det, _ := s.GetDebtorDetails(ctx, "1")
	if det.Transactions[0].PaidAmount != 845000 {
		t.Fatalf("paid amount = %d", det.Transactions[0].PaidAmount)
	}
	d, _ := s.GetDebtor(ctx, "1")
	if d.Amount != 14786000-345000 {
		t.Fatalf("debtor amount = %d", d.Amount)
	}

	_, err = s.SubmitPayment(ctx, core.Payment{DebtorID: "1", Date: "2024-11-07", Time: "10:00"})
	if !errors.Is(err, core.ErrInvalidAmount) || profile.StatusOf(err) != 422 {
		t.Fatalf("expected invalid amount 422, got %v", err)
	}
	if len(s.Payments()) != 1 {
		t.Fatalf("invalid payment must not be recorded")
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	debtors, _ := s.ListDebtors(context.Background())
	if len(debtors) != len(seed.Default().Debtors) {
		t.Fatalf("expected default seed when file missing")
	}

	content := `{"debtors":[{"id":"x","full_name":"X","phone_numbers":["1"],"amount":5}]}`
	if err := os.WriteFile(filepath.Join(dir, seed.FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s = NewFromFiles(dir)
	debtors, _ = s.ListDebtors(context.Background())
	if len(debtors) != 1 || debtors[0].ID != "x" {
		t.Fatalf("unexpected debtors from file: %+v", debtors)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	s := New(seed.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ListDebtors(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
