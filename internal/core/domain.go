package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RecurrenceNone  RecurrenceType = "none"
	Monthly         RecurrenceType = "monthly"
	Weekly          RecurrenceType = "weekly"
	Biweekly        RecurrenceType = "biweekly"
	MonthlyVariable RecurrenceType = "monthly_variable"
)

const (
	StatusPaid   Status = "paid"
	StatusUnpaid Status = "unpaid"
)

type (
	RecurrenceType string

	Status string

	// Transaction is either a recurring template (IsRecurring) or a concrete
	// financial event. Materialized instances carry SourceTemplateID.
	Transaction struct {
		ID               string
		UserID           string
		CategoryID       *string
		Title            string
		Amount           Money
		Notes            string
		Date             Date
		Status           Status
		RecurrenceType   RecurrenceType
		RecurrenceDay    *int // day of month (1-31) or weekday (0=Sunday..6)
		IsRecurring      bool
		SourceTemplateID *string
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	Category struct {
		ID        string
		UserID    string
		Name      string
		CreatedAt time.Time
	}
)

var (
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrEmptyUser       = errors.New("empty user id")
	ErrEmptyName       = errors.New("empty category name")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidType     = errors.New("invalid recurrence type")
	ErrInvalidRecurDay = errors.New("invalid recurrence day")
)

// IsValid reports whether rt is one of the known recurrence types.
func (rt RecurrenceType) IsValid() bool {
	switch rt {
	case RecurrenceNone, Monthly, Weekly, Biweekly, MonthlyVariable:
		return true
	}
	return false
}

// IsMonthly reports whether the recurrence day is a day of the month.
func (rt RecurrenceType) IsMonthly() bool {
	return rt == Monthly || rt == MonthlyVariable
}

// IsWeekly reports whether the recurrence day is a day of the week.
func (rt RecurrenceType) IsWeekly() bool {
	return rt == Weekly || rt == Biweekly
}

func (s Status) IsValid() bool {
	return s == StatusPaid || s == StatusUnpaid
}

// Normalize fills defaults and keeps IsRecurring consistent with RecurrenceType.
func (t *Transaction) Normalize() {
	t.Title = strings.TrimSpace(t.Title)
	if t.Status == "" {
		t.Status = StatusUnpaid
	}
	if t.RecurrenceType == "" {
		t.RecurrenceType = RecurrenceNone
	}
	if t.CategoryID != nil && strings.TrimSpace(*t.CategoryID) == "" {
		t.CategoryID = nil
	}
	t.IsRecurring = t.RecurrenceType != RecurrenceNone
	if !t.IsRecurring {
		t.RecurrenceDay = nil
	}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return NewValidationError(ErrEmptyUser.Error())
	}
	if strings.TrimSpace(t.Title) == "" {
		return NewValidationError(ErrEmptyTitle.Error())
	}
	if len(t.Title) > 200 {
		return NewValidationError(ErrTitleTooLong.Error())
	}
	if err := t.Amount.Validate(); err != nil {
		return NewValidationError(err.Error())
	}
	if err := t.Date.Validate(); err != nil {
		return NewValidationError("invalid date: " + err.Error())
	}
	if !t.Status.IsValid() {
		return NewValidationError(fmt.Sprintf("%s: %q", ErrInvalidStatus, t.Status))
	}
	if !t.RecurrenceType.IsValid() {
		return NewValidationError(fmt.Sprintf("%s: %q", ErrInvalidType, t.RecurrenceType))
	}
	if t.IsRecurring != (t.RecurrenceType != RecurrenceNone) {
		return NewValidationError("is_recurring does not match recurrence type")
	}
	if t.RecurrenceDay != nil {
		if err := ValidateRecurrenceDay(t.RecurrenceType, *t.RecurrenceDay); err != nil {
			return NewValidationError(err.Error())
		}
	}
	return nil
}

// ValidateRecurrenceDay checks day against the range implied by rt.
func ValidateRecurrenceDay(rt RecurrenceType, day int) error {
	switch {
	case rt.IsMonthly():
		if day < 1 || day > 31 {
			return fmt.Errorf("%w: day of month %d not in 1-31", ErrInvalidRecurDay, day)
		}
	case rt.IsWeekly():
		if day < 0 || day > 6 {
			return fmt.Errorf("%w: weekday %d not in 0-6", ErrInvalidRecurDay, day)
		}
	}
	return nil
}

// NewInstance returns the concrete transaction a template produces on day.
func (t Transaction) NewInstance(day Date) Transaction {
	templateID := t.ID
	inst := Transaction{
		UserID:           t.UserID,
		Title:            t.Title,
		Amount:           t.Amount,
		Notes:            t.Notes,
		Date:             day,
		Status:           StatusUnpaid,
		RecurrenceType:   RecurrenceNone,
		IsRecurring:      false,
		SourceTemplateID: &templateID,
	}
	if t.CategoryID != nil {
		cat := *t.CategoryID
		inst.CategoryID = &cat
	}
	return inst
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return NewValidationError(ErrEmptyUser.Error())
	}
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError(ErrEmptyName.Error())
	}
	if len(c.Name) > 100 {
		return NewValidationError("category name too long (max 100 characters)")
	}
	return nil
}
