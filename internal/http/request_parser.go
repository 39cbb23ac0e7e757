// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"conti/internal/core"
)

const (
	// HeaderUserID is set by the authenticating proxy in front of the API.
	HeaderUserID = "X-User-ID"

	maxBodyBytes = 1 << 20
	maxUserIDLen = 128
	maxListLimit = 1000
)

var errEmptyBody = errors.New("empty request body")

// UserIDFromRequest returns the caller's user id, or false when it is missing or malformed.
func UserIDFromRequest(r *http.Request) (string, bool) {
	id := sanitizeInput(r.Header.Get(HeaderUserID))
	if id == "" || len(id) > maxUserIDLen || strings.ContainsAny(id, " \t\r\n") {
		return "", false
	}
	return id, true
}

// DecodeJSON reads a size-limited JSON body into v, rejecting unknown fields.
// An empty body returns errEmptyBody so callers can treat it as optional.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON body: trailing data")
	}
	return nil
}

// ParseTransactionFilter reads the listing filter from query parameters:
// category_id, status, from, to (YYYY-MM-DD, inclusive), recurring, limit.
func ParseTransactionFilter(q url.Values) (core.TransactionFilter, error) {
	var f core.TransactionFilter

	if v := sanitizeInput(q.Get("category_id")); v != "" {
		f.CategoryID = &v
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		s := core.Status(strings.ToLower(v))
		if !s.IsValid() {
			return f, core.NewValidationError(fmt.Sprintf("invalid status %q", v))
		}
		f.Status = &s
	}

	var err error
	if f.StartDate, err = parseOptionalDate(q.Get("from")); err != nil {
		return f, core.NewValidationError("invalid from date: " + err.Error())
	}
	if f.EndDate, err = parseOptionalDate(q.Get("to")); err != nil {
		return f, core.NewValidationError("invalid to date: " + err.Error())
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, core.NewValidationError("to date is before from date")
	}

	if v := strings.TrimSpace(q.Get("recurring")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, core.NewValidationError(fmt.Sprintf("invalid recurring flag %q", v))
		}
		f.RecurringOnly = b
	}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return f, core.NewValidationError(fmt.Sprintf("invalid limit %q: must be 1-%d", v, maxListLimit))
		}
		f.Limit = n
	}

	return f, nil
}

// parseOptionalDate returns nil for an empty string.
func parseOptionalDate(s string) (*core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
