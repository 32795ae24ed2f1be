// Package seed loads the initial debtor data used by the local backends.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"nasiya/internal/core"
)

// FileName is the seed file looked up inside the data directory.
const FileName = "seed.json"

// Data is the decoded seed file.
type Data struct {
	Debtors []core.Debtor        `json:"debtors"`
	Details []core.DebtorDetails `json:"details"`
}

// DetailsFor returns the details entry of a debtor, or an empty one.
func (d Data) DetailsFor(id string) core.DebtorDetails {
	for _, det := range d.Details {
		if det.ID == id {
			return det
		}
	}
	return core.DebtorDetails{ID: id}
}

// Load reads a seed file. A missing file is not an error: it yields Default().
func Load(path string) (Data, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Data{}, fmt.Errorf("read seed file: %w", err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return Data{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	if err := d.validate(); err != nil {
		return Data{}, fmt.Errorf("seed file %s: %w", path, err)
	}
	return d, nil
}

func (d Data) validate() error {
	seen := make(map[string]struct{}, len(d.Debtors))
	for _, debtor := range d.Debtors {
		if debtor.ID == "" {
			return errors.New("debtor with empty id")
		}
		if _, dup := seen[debtor.ID]; dup {
			return fmt.Errorf("duplicate debtor id %q", debtor.ID)
		}
		seen[debtor.ID] = struct{}{}
	}
	for _, det := range d.Details {
		if _, ok := seen[det.ID]; !ok {
			return fmt.Errorf("details for unknown debtor %q", det.ID)
		}
	}
	return nil
}

// Default is the built-in data set used when no seed file exists.
func Default() Data {
	created := time.Date(2024, 11, 1, 14, 51, 0, 0, time.UTC)
	return Data{
		Debtors: []core.Debtor{
			{
				ID:           "1",
				CreatedAt:    created,
				UpdatedAt:    created,
				FullName:     "Avazbek Solijonov",
				Address:      "Toshkent, Chilonzor 9",
				Description:  "iPhone 14 Pro, boshlanish to'lov bor",
				Store:        "Texnomart",
				PhoneNumbers: []string{"+998 90 123 45 67"},
				Amount:       14786000,
			},
			{
				ID:           "2",
				CreatedAt:    created,
				UpdatedAt:    created,
				FullName:     "Dilnoza Karimova",
				Address:      "Samarqand, Registon ko'chasi",
				Store:        "Texnomart",
				PhoneNumbers: []string{"+998 91 555 00 11", "+998 93 777 88 99"},
				Amount:       2350000,
				IsStarred:    true,
			},
			{
				ID:        "3",
				CreatedAt: created,
				UpdatedAt: created,
				FullName:  "Jasur Aliyev",
				Address:   "Buxoro",
				Store:     "Texnomart",
				Amount:    -150000,
			},
		},
		Details: []core.DebtorDetails{
			{
				ID:        "1",
				TotalDebt: 14786000,
				Transactions: []core.Transaction{
					{ID: "1", Date: "Nov 1, 2024 14:51", Amount: 5845000, PaidAmount: 500000, NextPaymentDate: "07.11.2024"},
				},
			},
			{
				ID:        "2",
				TotalDebt: 2350000,
				Transactions: []core.Transaction{
					{ID: "2", Date: "Oct 12, 2024 10:05", Amount: 3000000, PaidAmount: 650000, NextPaymentDate: "12.11.2024"},
				},
			},
		},
	}
}
