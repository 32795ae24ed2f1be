package detail

import (
	"errors"

	"nasiya/internal/attachments"
	"nasiya/internal/core"
	"nasiya/internal/profile"
)

// Action is one event fed to Reduce.
type Action interface{ action() }

type (
	Loaded struct {
		Debtor  core.Debtor
		Details core.DebtorDetails
	}
	LoadFailed    struct{ Err error }
	FormOpened    struct{ Draft Draft }
	FormCancelled struct{}
	DraftEdited   struct{ Fields DraftFields }
	ImageAttached struct {
		Slot   int
		Handle attachments.Handle
	}
	SubmitStarted   struct{}
	SubmitSucceeded struct{ Ref string }
	SubmitFailed    struct{ Err error }
	StarToggled     struct{}
	StarReverted    struct {
		Starred bool // target of the failed toggle
		Err     error
	}
)

func (Loaded) action()          {}
func (LoadFailed) action()      {}
func (FormOpened) action()      {}
func (FormCancelled) action()   {}
func (DraftEdited) action()     {}
func (ImageAttached) action()   {}
func (SubmitStarted) action()   {}
func (SubmitSucceeded) action() {}
func (SubmitFailed) action()    {}
func (StarToggled) action()     {}
func (StarReverted) action()    {}

// Reduce returns the view that follows v after a. Actions that do not apply
// to the current variant return v unchanged.
func Reduce(v View, a Action) View {
	next, _ := reduce(v, a)
	return next
}

// reduce also reports whether a applied to v.
func reduce(v View, a Action) (View, bool) {
	switch v := v.(type) {
	case Loading:
		switch a := a.(type) {
		case Loaded:
			return List{Debtor: a.Debtor, Details: a.Details}, true
		case LoadFailed:
			return failed(a.Err, LoadFallbackError), true
		}

	case List:
		switch a := a.(type) {
		case FormOpened:
			return FormOpen{Debtor: v.Debtor, Details: v.Details, Draft: a.Draft}, true
		case StarToggled:
			v.Debtor.IsStarred = !v.Debtor.IsStarred
			v.Notice = ""
			return v, true
		case StarReverted:
			if profile.IsUnauthenticated(a.Err) {
				return failed(a.Err, StarFallbackError), true
			}
			if v.Debtor.IsStarred == a.Starred {
				v.Debtor.IsStarred = !a.Starred
			}
			v.Notice = profile.MessageOr(a.Err, StarFallbackError)
			return v, true
		}

	case FormOpen:
		switch a := a.(type) {
		case FormCancelled:
			if v.Submitting {
				return v, false
			}
			return List{Debtor: v.Debtor, Details: v.Details}, true
		case DraftEdited:
			if v.Submitting {
				return v, false
			}
			slots := v.Draft.Slots
			v.Draft = Draft{
				ID:       v.Draft.ID,
				Date:     a.Fields.Date,
				Time:     a.Fields.Time,
				Duration: a.Fields.Duration,
				Amount:   a.Fields.Amount,
				Note:     a.Fields.Note,
				Slots:    slots,
			}
			return v, true
		case ImageAttached:
			if v.Submitting || a.Slot < 0 || a.Slot >= len(v.Draft.Slots) {
				return v, false
			}
			v.Draft.Slots[a.Slot] = a.Handle
			return v, true
		case SubmitStarted:
			if v.Submitting {
				return v, false
			}
			v.Submitting = true
			v.Err = ""
			return v, true
		case SubmitSucceeded:
			if !v.Submitting {
				return v, false
			}
			return Success{DebtorID: v.Debtor.ID, Ref: a.Ref}, true
		case SubmitFailed:
			if profile.IsUnauthenticated(a.Err) {
				return failed(a.Err, SubmitFallbackError), true
			}
			v.Submitting = false
			v.Err = submitMessage(a.Err)
			return v, true
		case StarToggled:
			v.Debtor.IsStarred = !v.Debtor.IsStarred
			return v, true
		case StarReverted:
			if v.Debtor.IsStarred == a.Starred {
				v.Debtor.IsStarred = !a.Starred
			}
			return v, true
		}
	}
	return v, false
}

func failed(err error, fallback string) Failed {
	f := Failed{Err: profile.MessageOr(err, fallback)}
	if profile.IsUnauthenticated(err) {
		f.Redirect = LoginPath
	}
	return f
}

func submitMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return AmountError
	case errors.Is(err, core.ErrInvalidDuration):
		return DurationError
	case errors.Is(err, core.ErrInvalidDate):
		return DateError
	case errors.Is(err, core.ErrInvalidTime):
		return TimeError
	case errors.Is(err, core.ErrInvalidPayment):
		return PaymentError
	case errors.Is(err, ErrImagesExpired):
		return ImagesExpiredError
	}
	return profile.MessageOr(err, SubmitFallbackError)
}
