package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"conti/internal/core"
)

// Repository is everything TransactionService needs from storage.
type Repository interface {
	TransactionStore
	CategoryStore
}

// TransactionService validates user writes, saves them and publishes events.
type TransactionService struct {
	repo      Repository
	publisher EventPublisher
}

// NewTransactionService wires the service; publisher may be nil.
func NewTransactionService(repo Repository, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		repo:      repo,
		publisher: publisher,
	}
}

// CreateTransaction saves a transaction (or template) and publishes a created event.
func (s *TransactionService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Normalize()
	// User-created rows never claim to be generated.
	t.SourceTemplateID = nil
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.repo.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	if err := s.publishCreated(ctx, saved); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction created event",
			"transaction_id", saved.ID, "error", err)
		// Don't fail the request - transaction is saved locally
	}

	return saved, nil
}

// UpdateTransaction replaces the user-editable fields of an existing transaction.
func (s *TransactionService) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	current, err := s.repo.GetTransaction(ctx, t.UserID, t.ID)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Normalize()
	t.SourceTemplateID = current.SourceTemplateID
	t.CreatedAt = current.CreatedAt
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.repo.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return updated, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.repo.GetTransaction(ctx, userID, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, f)
}

// DeleteTransaction removes one row. Deleting a template keeps its instances.
func (s *TransactionService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (s *TransactionService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	saved, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	return saved, nil
}

func (s *TransactionService) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	return s.repo.ListCategories(ctx, userID)
}

// DeleteCategory removes a category; its transactions keep existing without one.
func (s *TransactionService) DeleteCategory(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteCategory(ctx, userID, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// MonthSummary totals the user's concrete transactions for one month.
func (s *TransactionService) MonthSummary(ctx context.Context, userID string, year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, core.NewValidationError(fmt.Sprintf("month must be 1-12, got %d", month))
	}
	if year < 1 || year > 9999 {
		return core.MonthOverview{}, core.NewValidationError(fmt.Sprintf("invalid year %d", year))
	}

	start, end := core.MonthRange(year, month)
	txs, err := s.repo.ListTransactions(ctx, userID, core.TransactionFilter{StartDate: &start, EndDate: &end})
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("list transactions: %w", err)
	}
	cats, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("list categories: %w", err)
	}

	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return core.Summarize(year, month, txs, names), nil
}

func (s *TransactionService) checkCategory(ctx context.Context, t core.Transaction) error {
	if t.CategoryID == nil {
		return nil
	}
	_, err := s.repo.GetCategory(ctx, t.UserID, *t.CategoryID)
	if errors.Is(err, core.ErrNotFound) {
		return core.NewValidationError(fmt.Sprintf("unknown category %q", *t.CategoryID))
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	return nil
}

func (s *TransactionService) publishCreated(ctx context.Context, t core.Transaction) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Event publisher not available, skipping created event")
		return nil
	}
	return s.publisher.PublishTransactionCreated(ctx, t.ID, t.UserID)
}
