package services

import (
	"context"

	"conti/internal/core"
)

// Ports consumed by the services.
type (
	// TemplateStore is the persistence the recurring processor needs.
	TemplateStore interface {
		ListRecurringTemplates(ctx context.Context, userID string) ([]core.Transaction, error)
		// ExistsTransaction matches non-template rows by user, title and calendar day;
		// categoryID filters only when set.
		ExistsTransaction(ctx context.Context, userID, title string, categoryID *string, day core.Date) (bool, error)
		// CreateGeneratedTransaction returns core.ErrConflict when an instance with the same match key exists.
		CreateGeneratedTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		ListUsersWithTemplates(ctx context.Context) ([]string, error)
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		GetCategory(ctx context.Context, userID, id string) (core.Category, error)
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
		DeleteCategory(ctx context.Context, userID, id string) error
	}

	// EventPublisher announces newly created transactions to downstream consumers.
	EventPublisher interface {
		PublishTransactionCreated(ctx context.Context, id, userID string) error
	}
)
