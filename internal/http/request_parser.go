// Package http provides HTTP server and handler implementations.
//
// This file holds the helpers that turn form posts into screen commands:
// draft fields, image uploads, slot indexes and the search query.

package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"nasiya/internal/attachments"
	"nasiya/internal/core"
	"nasiya/internal/screen/detail"
)

const (
	maxFieldLength = 500
	maxQueryLength = 100
)

var draftFieldNames = []string{"date", "time", "duration", "amount", "note"}

// sanitizeInput drops control characters other than tab and newlines, then
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		if r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// truncateRunes keeps at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func formValue(form url.Values, key string) string {
	return truncateRunes(sanitizeInput(form.Get(key)), maxFieldLength)
}

// hasDraftFields reports whether the form carries any payment input.
func hasDraftFields(form url.Values) bool {
	for _, k := range draftFieldNames {
		if _, ok := form[k]; ok {
			return true
		}
	}
	return false
}

// ParseDraftFields reads the payment inputs from a parsed form.
func ParseDraftFields(form url.Values) detail.DraftFields {
	return detail.DraftFields{
		Date:     formValue(form, "date"),
		Time:     formValue(form, "time"),
		Duration: formValue(form, "duration"),
		Amount:   formValue(form, "amount"),
		Note:     formValue(form, "note"),
	}
}

// ParseSearchQuery returns the q parameter and whether it was sent.
func ParseSearchQuery(query url.Values) (string, bool) {
	if _, ok := query["q"]; !ok {
		return "", false
	}
	return truncateRunes(sanitizeInput(query.Get("q")), maxQueryLength), true
}

// ParseSlot validates an attachment slot index from the URL.
func ParseSlot(raw string) (int, error) {
	slot, err := strconv.Atoi(raw)
	if err != nil || slot < 0 || slot >= core.MaxPaymentImages {
		return 0, fmt.Errorf("%w: %q", attachments.ErrInvalidSlot, raw)
	}
	return slot, nil
}

// ReadImageUpload reads the file posted under field. The body is capped at
// maxBytes plus room for the other form fields.
func ReadImageUpload(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (core.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemoryBudget)
	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return core.Image{}, attachments.ErrTooLarge
		}
		return core.Image{}, fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return core.Image{}, attachments.ErrEmpty
		}
		return core.Image{}, fmt.Errorf("read upload: %w", err)
	}
	defer file.Close()
	return readImage(file, header, maxBytes)
}

func readImage(file multipart.File, header *multipart.FileHeader, maxBytes int64) (core.Image, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return core.Image{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return core.Image{}, attachments.ErrTooLarge
	}
	return core.Image{
		Name:        sanitizeInput(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// ParseFormOrFail parses a url-encoded or multipart form and returns an
// error response on failure. Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(multipartMemoryBudget)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return BadRequestError("So'rov formati noto'g'ri")
	}
	return nil
}
