package core

import (
	"strconv"
	"strings"
)

// TransactionFilter narrows a transaction listing. Nil fields do not filter.
// Date bounds are inclusive.
type TransactionFilter struct {
	CategoryID    *string
	Status        *Status
	StartDate     *Date
	EndDate       *Date
	RecurringOnly bool
	Limit         int
}

// Matches reports whether t passes the filter.
func (f TransactionFilter) Matches(t Transaction) bool {
	if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.StartDate != nil && t.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && t.Date.After(*f.EndDate) {
		return false
	}
	if f.RecurringOnly && !t.IsRecurring {
		return false
	}
	return true
}

// Key is a stable string form of the filter, used for cache keys.
func (f TransactionFilter) Key() string {
	var b strings.Builder
	if f.CategoryID != nil {
		b.WriteString("c=" + *f.CategoryID + ";")
	}
	if f.Status != nil {
		b.WriteString("s=" + string(*f.Status) + ";")
	}
	if f.StartDate != nil {
		b.WriteString("from=" + f.StartDate.String() + ";")
	}
	if f.EndDate != nil {
		b.WriteString("to=" + f.EndDate.String() + ";")
	}
	if f.RecurringOnly {
		b.WriteString("r;")
	}
	if f.Limit > 0 {
		b.WriteString("l=" + strconv.Itoa(f.Limit) + ";")
	}
	return b.String()
}
