package core

import (
	"math"
	"strings"
)

// MatchesQuery reports whether the query occurs, ignoring case, in the
// debtor's full name, any of its phone numbers, or its address.
func MatchesQuery(d Debtor, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(d.FullName), q) {
		return true
	}
	for _, phone := range d.PhoneNumbers {
		if strings.Contains(strings.ToLower(phone), q) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(d.Address), q)
}

// FilterDebtors returns the matching debtors in their original order.
// The input slice is never modified.
func FilterDebtors(debtors []Debtor, query string) []Debtor {
	out := make([]Debtor, 0, len(debtors))
	for _, d := range debtors {
		if MatchesQuery(d, query) {
			out = append(out, d)
		}
	}
	return out
}

// Progress returns paid as a percentage of amount. The value is not clamped,
// so an overpaid transaction reports more than 100.
func Progress(paid, amount int64) float64 {
	if amount == 0 {
		return 0
	}
	return float64(paid) / float64(amount) * 100
}

// ProgressWidth is Progress limited to [0, 100] for drawing the bar.
func ProgressWidth(paid, amount int64) float64 {
	return math.Max(0, math.Min(100, Progress(paid, amount)))
}
