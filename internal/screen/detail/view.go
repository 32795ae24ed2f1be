// Package detail holds the Customer Detail / Payment screen.
//
// The screen is always in exactly one View variant. Reduce is the only way
// from one variant to the next; the Controller turns user commands and
// backend results into actions.
package detail

import (
	"time"

	"nasiya/internal/attachments"
	"nasiya/internal/core"
)

const (
	LoadFallbackError   = "Ma'lumotlarni yuklashda xatolik"
	SubmitFallbackError = "To'lovni saqlashda xatolik"
	StarFallbackError   = "Saqlashda xatolik"
	AmountError         = "Summani to'g'ri kiriting"
	DurationError       = "Muddatni to'g'ri kiriting"
	DateError           = "Sanani to'g'ri kiriting"
	TimeError           = "Vaqtni to'g'ri kiriting"
	PaymentError        = "To'lov ma'lumotlarini tekshiring"
	ImagesExpiredError  = "Rasmlar muddati tugadi, qaytadan biriktiring"

	LoginPath = "/login"
)

// View is one of Loading, List, FormOpen, Success or Failed.
type View interface {
	Name() string
	view()
}

type (
	Loading struct{}

	List struct {
		Debtor  core.Debtor
		Details core.DebtorDetails
		Notice  string
	}

	FormOpen struct {
		Debtor     core.Debtor
		Details    core.DebtorDetails
		Draft      Draft
		Submitting bool
		Err        string
	}

	Success struct {
		DebtorID string
		Ref      string
	}

	Failed struct {
		Err      string
		Redirect string
	}
)

func (Loading) Name() string  { return "loading" }
func (List) Name() string     { return "list" }
func (FormOpen) Name() string { return "form" }
func (Success) Name() string  { return "success" }
func (Failed) Name() string   { return "failed" }

func (Loading) view()  {}
func (List) view()     {}
func (FormOpen) view() {}
func (Success) view()  {}
func (Failed) view()   {}

// Draft is the open payment form. It lives only while the form is open.
type Draft struct {
	ID       string
	Date     string
	Time     string
	Duration string
	Amount   string
	Note     string
	Slots    [core.MaxPaymentImages]attachments.Handle
}

// DraftFields are the text inputs of the form.
type DraftFields struct {
	Date     string
	Time     string
	Duration string
	Amount   string
	Note     string
}

// NewDraft returns an empty draft dated now, to the minute.
func NewDraft(id string, now time.Time) Draft {
	return Draft{
		ID:   id,
		Date: now.Format(core.DateLayout),
		Time: now.Format(core.TimeLayout),
	}
}

// Fields returns the text inputs of d.
func (d Draft) Fields() DraftFields {
	return DraftFields{Date: d.Date, Time: d.Time, Duration: d.Duration, Amount: d.Amount, Note: d.Note}
}

// Attached returns the number of filled image slots.
func (d Draft) Attached() int {
	n := 0
	for _, h := range d.Slots {
		if !h.IsZero() {
			n++
		}
	}
	return n
}

// Payment converts the draft into a payment for debtorID.
func (d Draft) Payment(debtorID string, images []core.Image) (core.Payment, error) {
	amount, err := core.ParseAmount(d.Amount)
	if err != nil {
		return core.Payment{}, err
	}
	months, err := core.ParseDuration(d.Duration)
	if err != nil {
		return core.Payment{}, err
	}
	p := core.Payment{
		DebtorID:       debtorID,
		Date:           d.Date,
		Time:           d.Time,
		DurationMonths: months,
		Amount:         amount,
		Note:           d.Note,
		Images:         images,
	}
	return p, p.Validate()
}
