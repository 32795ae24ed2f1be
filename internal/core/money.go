// Package core provides the debtor domain and its display helpers.
//
// This file contains money formatting and parsing. Amounts are whole so'm;
// there are no fractional units on screen.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencySuffix is appended to every formatted amount as plain text.
const CurrencySuffix = "so'm"

var somPrinter = message.NewPrinter(language.Uzbek)

// FormatNumber groups the integer per the Uzbek locale (e.g. "14 786 000").
func FormatNumber(amount int64) string {
	return somPrinter.Sprintf("%d", amount)
}

// FormatSom formats an amount for display with the currency suffix.
//
// Examples:
//   FormatSom(14786000) -> "14 786 000 so'm"
//   FormatSom(-500)     -> "-500 so'm"
func FormatSom(amount int64) string {
	return FormatNumber(amount) + " " + CurrencySuffix
}

// ParseAmount parses a whole so'm amount typed into the payment form.
//
// Group separators (space, no-break space, comma, dot, apostrophe) are ignored
// so "5,845,000" and "5 845 000" both parse to 5845000. Signs, other
// characters, empty input and zero are rejected.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ',' || r == '.' || r == '\'' || unicode.IsSpace(r) || r == '\u00a0' || r == '\u202f':
			// group separator
		default:
			return 0, ErrInvalidAmount
		}
	}
	if b.Len() == 0 {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// ParseDuration parses the optional duration field (months). Empty is zero.
func ParseDuration(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, ErrInvalidDuration
	}
	return v, nil
}
