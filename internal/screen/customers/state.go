// Package customers holds the Customer List screen: an immutable State, the
// pure Reduce function that advances it, and the Controller that feeds
// backend results into the reducer.
package customers

import (
	"nasiya/internal/core"
	"nasiya/internal/profile"
)

const (
	// FallbackError is shown when the backend gives no message of its own.
	FallbackError = "Ma'lumotlarni yuklashda xatolik"
	// StarFallbackError is shown when persisting the starred flag fails.
	StarFallbackError = "Saqlashda xatolik"

	LoginPath = "/login"
)

type Phase int

const (
	Loading Phase = iota
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State is the screen state. Debtors is never mutated in place; every
// change installs a new slice and bumps Version.
type State struct {
	Phase    Phase
	Debtors  []core.Debtor
	Query    string
	Err      string // fetch failure shown instead of the list
	Notice   string // non-fatal failure shown above the list
	Redirect string
	Version  uint64
}

// Action is one event fed to Reduce.
type Action interface{ action() }

type (
	FetchStarted   struct{}
	FetchSucceeded struct{ Debtors []core.Debtor }
	FetchFailed    struct{ Err error }
	QueryChanged   struct{ Query string }
	StarToggled    struct{ ID string }
	// StarReverted undoes a failed StarToggled whose target was Starred.
	StarReverted struct {
		ID      string
		Starred bool
		Err     error
	}
)

func (FetchStarted) action()   {}
func (FetchSucceeded) action() {}
func (FetchFailed) action()    {}
func (QueryChanged) action()   {}
func (StarToggled) action()    {}
func (StarReverted) action()   {}

// Reduce returns the state that follows s after a.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case FetchStarted:
		s.Phase = Loading
		s.Redirect = ""
	case FetchSucceeded:
		s.Phase = Ready
		s.Debtors = append([]core.Debtor(nil), a.Debtors...)
		s.Err = ""
		s.Notice = ""
		s.Version++
	case FetchFailed:
		s.Phase = Failed
		s.Err = profile.MessageOr(a.Err, FallbackError)
		if profile.IsUnauthenticated(a.Err) {
			s.Redirect = LoginPath
		}
	case QueryChanged:
		s.Query = a.Query
	case StarToggled:
		s.Debtors = core.ToggleStar(s.Debtors, a.ID)
		s.Notice = ""
		s.Version++
	case StarReverted:
		// a later toggle owns the flag once it no longer holds the failed target
		if d, ok := core.FindDebtor(s.Debtors, a.ID); ok && d.IsStarred == a.Starred {
			s.Debtors = core.SetStar(s.Debtors, a.ID, !a.Starred)
		}
		s.Notice = profile.MessageOr(a.Err, StarFallbackError)
		if profile.IsUnauthenticated(a.Err) {
			s.Redirect = LoginPath
		}
		s.Version++
	}
	return s
}
