package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// MaxPaymentImages is the number of attachment slots on the payment form.
	MaxPaymentImages = 2
)

type (
	Debtor struct {
		ID           string    `json:"id"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
		FullName     string    `json:"full_name"`
		Address      string    `json:"address"`
		Description  string    `json:"description"`
		Store        string    `json:"store"`
		PhoneNumbers []string  `json:"phone_numbers"`
		Images       []string  `json:"images"`
		Amount       int64     `json:"amount"` // outstanding balance in so'm, sign is debt direction
		IsStarred    bool      `json:"is_starred"`
	}

	Transaction struct {
		ID              string `json:"id"`
		Date            string `json:"date"`
		Amount          int64  `json:"amount"`
		PaidAmount      int64  `json:"paid_amount"`
		NextPaymentDate string `json:"next_payment_date"`
	}

	DebtorDetails struct {
		ID           string        `json:"id"`
		TotalDebt    int64         `json:"total_debt"`
		Transactions []Transaction `json:"transactions"`
	}

	Image struct {
		Name        string
		ContentType string
		Data        []byte
	}

	// Payment is a submitted payment form.
	Payment struct {
		DebtorID       string  `validate:"required"`
		Date           string  `validate:"required,datetime=2006-01-02"`
		Time           string  `validate:"required,datetime=15:04"`
		DurationMonths int     `validate:"gte=0,lte=120"`
		Amount         int64   `validate:"gt=0"`
		Note           string  `validate:"max=500"`
		Images         []Image `validate:"max=2"`
	}
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidPayment  = errors.New("invalid payment")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// PrimaryPhone returns the first phone number, or "" when none is recorded.
func (d Debtor) PrimaryPhone() string {
	if len(d.PhoneNumbers) == 0 {
		return ""
	}
	return d.PhoneNumbers[0]
}

// Negative reports whether the balance is in the debtor's favour.
func (d Debtor) Negative() bool {
	return d.Amount < 0
}

// Outstanding returns what is still owed on the transaction.
func (t Transaction) Outstanding() int64 {
	return t.Amount - t.PaidAmount
}

// Validate checks the payment fields. The first failing field is reported.
func (p Payment) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Amount":
		return ErrInvalidAmount
	case "DurationMonths":
		return ErrInvalidDuration
	case "Date":
		return ErrInvalidDate
	case "Time":
		return ErrInvalidTime
	}
	return fmt.Errorf("%w: %s failed %s", ErrInvalidPayment, strings.ToLower(fe.Field()), fe.Tag())
}

// ToggleStar returns a copy of debtors with the starred flag of id flipped.
// Every other debtor is copied unchanged.
func ToggleStar(debtors []Debtor, id string) []Debtor {
	out := make([]Debtor, len(debtors))
	copy(out, debtors)
	for i := range out {
		if out[i].ID == id {
			out[i].IsStarred = !out[i].IsStarred
		}
	}
	return out
}

// SetStar returns a copy of debtors where debtor id has IsStarred set to
// starred.
func SetStar(debtors []Debtor, id string, starred bool) []Debtor {
	out := make([]Debtor, len(debtors))
	copy(out, debtors)
	for i := range out {
		if out[i].ID == id {
			out[i].IsStarred = starred
		}
	}
	return out
}

// FindDebtor returns the debtor with the given id.
func FindDebtor(debtors []Debtor, id string) (Debtor, bool) {
	for _, d := range debtors {
		if d.ID == id {
			return d, true
		}
	}
	return Debtor{}, false
}
