// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurring transaction
// occurrences. Each recurrence type has its own calculator that maps an
// anchor date and a target date to the ordered calendar days that are due.

package services

import (
	"fmt"
	"time"

	"conti/internal/core"
)

// OccurrenceCalculator is the strategy interface for computing due dates of a template.
type OccurrenceCalculator interface {
	// Occurrences returns the ascending, distinct days in [anchor, target].
	// recurrenceDay is nil when the template relies on its anchor date.
	Occurrences(anchor, target core.Date, recurrenceDay *int) ([]core.Date, error)
}

// MonthlyCalculator implements OccurrenceCalculator for monthly and monthly_variable templates.
type MonthlyCalculator struct{}

// Occurrences yields one day per calendar month, clamped to the month's last day.
func (MonthlyCalculator) Occurrences(anchor, target core.Date, recurrenceDay *int) ([]core.Date, error) {
	nominal := anchor.Day()
	if recurrenceDay != nil {
		if err := core.ValidateRecurrenceDay(core.Monthly, *recurrenceDay); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidTemplate, err)
		}
		nominal = *recurrenceDay
	}

	months := (target.Year()-anchor.Year())*12 + target.Month() - anchor.Month()
	out := make([]core.Date, 0, months+1)
	for offset := 0; offset <= months; offset++ {
		// Month index from year zero avoids drift across year boundaries.
		idx := anchor.Year()*12 + anchor.Month() - 1 + offset
		year, month := idx/12, time.Month(idx%12+1)

		day := min(nominal, core.DaysIn(year, month))
		occ := core.NewDate(year, int(month), day)
		if occ.Before(anchor) || occ.After(target) {
			continue
		}
		out = append(out, occ)
	}
	return out, nil
}

// WeeklyCalculator implements OccurrenceCalculator for weekly (Step 7) and biweekly (Step 14) templates.
type WeeklyCalculator struct {
	Step int
}

// Occurrences starts at the first matching weekday on or after the anchor.
func (c WeeklyCalculator) Occurrences(anchor, target core.Date, recurrenceDay *int) ([]core.Date, error) {
	if c.Step <= 0 {
		return nil, fmt.Errorf("%w: non-positive step %d", core.ErrInvalidTemplate, c.Step)
	}
	weekday := int(anchor.Weekday())
	if recurrenceDay != nil {
		if err := core.ValidateRecurrenceDay(core.Weekly, *recurrenceDay); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidTemplate, err)
		}
		weekday = *recurrenceDay
	}

	first := anchor.AddDays((weekday - int(anchor.Weekday()) + 7) % 7)
	var out []core.Date
	for occ := first; !occ.After(target); occ = occ.AddDays(c.Step) {
		out = append(out, occ)
	}
	return out, nil
}

// occurrenceStrategies maps recurrence types to their calculators.
var occurrenceStrategies = map[core.RecurrenceType]OccurrenceCalculator{
	core.Monthly:         MonthlyCalculator{},
	core.MonthlyVariable: MonthlyCalculator{},
	core.Weekly:          WeeklyCalculator{Step: 7},
	core.Biweekly:        WeeklyCalculator{Step: 14},
}

// GetOccurrenceCalculator returns the calculator for a recurrence type.
// Returns an error if the recurrence type is not supported.
func GetOccurrenceCalculator(rt core.RecurrenceType) (OccurrenceCalculator, error) {
	calc, ok := occurrenceStrategies[rt]
	if !ok {
		return nil, fmt.Errorf("unknown recurrence type: %s", rt)
	}
	return calc, nil
}

// RegisterOccurrenceCalculator registers a calculator for a new recurrence type.
func RegisterOccurrenceCalculator(rt core.RecurrenceType, calc OccurrenceCalculator) {
	occurrenceStrategies[rt] = calc
}

// Occurrences computes the days on which tmpl is due, from its anchor date up to target inclusive.
// Templates of type none or of an unknown type produce no occurrences.
// A template without an anchor date yields core.ErrInvalidTemplate.
func Occurrences(tmpl core.Transaction, target core.Date) ([]core.Date, error) {
	calc, err := GetOccurrenceCalculator(tmpl.RecurrenceType)
	if err != nil {
		return nil, nil
	}
	if tmpl.Date.IsZero() {
		return nil, fmt.Errorf("%w: missing anchor date", core.ErrInvalidTemplate)
	}

	anchor := core.DateOf(tmpl.Date.Time)
	target = core.DateOf(target.Time)
	if target.Before(anchor) {
		return nil, nil
	}
	return calc.Occurrences(anchor, target, tmpl.RecurrenceDay)
}
