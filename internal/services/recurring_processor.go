package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/core"
)

// RecurringProcessor materializes transactions from recurring templates.
type RecurringProcessor struct {
	store     TemplateStore
	publisher EventPublisher
	now       func() time.Time
	locks     *userLocks
}

// NewRecurringProcessor creates a new recurring transaction processor.
// publisher may be nil.
func NewRecurringProcessor(store TemplateStore, publisher EventPublisher) *RecurringProcessor {
	return &RecurringProcessor{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		locks:     newUserLocks(),
	}
}

// ProcessRecurringTransactions creates the missing instances of every template
// owned by userID, up to target inclusive (today when target is nil), and
// returns how many were created.
//
// A template that cannot produce occurrences is logged and skipped. A storage
// failure stops the run and is returned; instances created before it stay.
func (p *RecurringProcessor) ProcessRecurringTransactions(ctx context.Context, userID string, target *core.Date) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	if userID == "" {
		return 0, core.NewValidationError(core.ErrEmptyUser.Error())
	}

	day := core.DateOf(p.now().UTC())
	if target != nil && !target.IsZero() {
		day = core.DateOf(target.Time)
	}

	release := p.locks.lock(userID)
	defer release()

	templates, err := p.store.ListRecurringTemplates(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list recurring templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"user_id", userID,
		"templates", len(templates),
		"target_date", day.String())

	created := 0
	for _, tmpl := range templates {
		n, err := p.materializeTemplate(ctx, tmpl, day)
		created += n
		if err != nil {
			if errors.Is(err, core.ErrInvalidTemplate) {
				slog.WarnContext(ctx, "Skipping invalid recurring template",
					"user_id", userID,
					"template_id", tmpl.ID,
					"recurrence_type", tmpl.RecurrenceType,
					"error", err)
				continue
			}
			return created, fmt.Errorf("materialize template %s: %w", tmpl.ID, err)
		}
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"user_id", userID,
		"created", created,
		"templates", len(templates))

	return created, nil
}

// materializeTemplate creates the missing occurrences of one template.
func (p *RecurringProcessor) materializeTemplate(ctx context.Context, tmpl core.Transaction, target core.Date) (int, error) {
	dates, err := Occurrences(tmpl, target)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, day := range dates {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		exists, err := p.store.ExistsTransaction(ctx, tmpl.UserID, tmpl.Title, tmpl.CategoryID, day)
		if err != nil {
			return created, fmt.Errorf("check existing transaction on %s: %w", day, err)
		}
		if exists {
			continue
		}

		inst, err := p.store.CreateGeneratedTransaction(ctx, tmpl.NewInstance(day))
		if errors.Is(err, core.ErrConflict) {
			// Lost a race with another writer for the same match key.
			slog.DebugContext(ctx, "Occurrence already materialized",
				"template_id", tmpl.ID,
				"occurrence_date", day.String())
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create transaction on %s: %w", day, err)
		}

		created++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"template_id", tmpl.ID,
			"transaction_id", inst.ID,
			"title", inst.Title,
			"amount_cents", inst.Amount.Cents,
			"occurrence_date", day.String())

		p.publishCreated(ctx, inst)
	}
	return created, nil
}

func (p *RecurringProcessor) publishCreated(ctx context.Context, t core.Transaction) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishTransactionCreated(ctx, t.ID, t.UserID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction created event",
			"transaction_id", t.ID,
			"error", err)
	}
}

// ProcessAllUsers runs ProcessRecurringTransactions for every user owning a
// template. A failing user is logged and the sweep continues.
func (p *RecurringProcessor) ProcessAllUsers(ctx context.Context, target *core.Date) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.store.ListUsersWithTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users with templates: %w", err)
	}

	total, failed := 0, 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := p.ProcessRecurringTransactions(ctx, userID, target)
		total += n
		if err != nil {
			failed++
			slog.ErrorContext(ctx, "Recurring processing failed for user",
				"user_id", userID,
				"created_before_failure", n,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Recurring sweep complete",
		"users", len(users),
		"failed_users", failed,
		"created", total)

	return total, nil
}
