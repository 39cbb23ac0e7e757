package core

import (
	"sort"
	"time"
)

// CategoryAmount is a total for one category. CategoryID is nil for
// uncategorized transactions.
type CategoryAmount struct {
	CategoryID *string
	Name       string
	Amount     Money
}

// MonthOverview summarizes the concrete transactions of one calendar month.
type MonthOverview struct {
	Year       int
	Month      int // 1-12
	Count      int
	Total      Money
	Paid       Money
	Unpaid     Money
	ByCategory []CategoryAmount
}

// MonthRange returns the first and last day of the month.
func MonthRange(year, month int) (Date, Date) {
	return NewDate(year, month, 1), NewDate(year, month, DaysIn(year, time.Month(month)))
}

// Summarize totals txs for the given month. Templates and rows outside the
// month are ignored. names maps category id to display name.
func Summarize(year, month int, txs []Transaction, names map[string]string) MonthOverview {
	start, end := MonthRange(year, month)
	ov := MonthOverview{Year: year, Month: month}

	byID := map[string]*CategoryAmount{}
	var uncategorized *CategoryAmount
	for _, t := range txs {
		if t.IsRecurring || t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		ov.Count++
		ov.Total.Cents += t.Amount.Cents
		if t.Status == StatusPaid {
			ov.Paid.Cents += t.Amount.Cents
		} else {
			ov.Unpaid.Cents += t.Amount.Cents
		}

		if t.CategoryID == nil {
			if uncategorized == nil {
				uncategorized = &CategoryAmount{}
			}
			uncategorized.Amount.Cents += t.Amount.Cents
			continue
		}
		ca, ok := byID[*t.CategoryID]
		if !ok {
			id := *t.CategoryID
			ca = &CategoryAmount{CategoryID: &id, Name: names[id]}
			byID[id] = ca
		}
		ca.Amount.Cents += t.Amount.Cents
	}

	for _, ca := range byID {
		ov.ByCategory = append(ov.ByCategory, *ca)
	}
	// Largest first, then by name for a stable order.
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		a, b := ov.ByCategory[i], ov.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Name < b.Name
	})
	if uncategorized != nil {
		ov.ByCategory = append(ov.ByCategory, *uncategorized)
	}
	return ov
}
