package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
)

// Store keeps transactions and categories in process memory.
type Store struct {
	mu           sync.Mutex
	transactions map[string]core.Transaction
	categories   map[string]core.Category
	now          func() time.Time
}

func New() *Store {
	return &Store{
		transactions: make(map[string]core.Transaction),
		categories:   make(map[string]core.Category),
		now:          time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t), nil
}

// CreateGeneratedTransaction enforces at most one generated row per match key.
func (s *Store) CreateGeneratedTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.transactions {
		if existing.SourceTemplateID == nil {
			continue
		}
		if existing.UserID == t.UserID && existing.Title == t.Title &&
			existing.Date.Equal(t.Date) && sameCategory(existing.CategoryID, t.CategoryID) {
			return core.Transaction{}, fmt.Errorf("generated transaction %s on %s: %w", t.Title, t.Date, core.ErrConflict)
		}
	}
	return s.insertLocked(t), nil
}

func (s *Store) insertLocked(t core.Transaction) core.Transaction {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.transactions[t.ID] = clone(t)
	return clone(t)
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return clone(t), nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID && f.Matches(t) {
			out = append(out, clone(t))
		}
	}
	sortByDate(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transactions[t.ID]
	if !ok || current.UserID != t.UserID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = s.now().UTC()
	s.transactions[t.ID] = clone(t)
	return clone(t), nil
}

// DeleteTransaction clears back-references so instances outlive their template.
func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.UserID != userID {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(s.transactions, id)
	for key, other := range s.transactions {
		if other.SourceTemplateID != nil && *other.SourceTemplateID == id {
			other.SourceTemplateID = nil
			s.transactions[key] = other
		}
	}
	return nil
}

func (s *Store) ListRecurringTemplates(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.ListTransactions(ctx, userID, core.TransactionFilter{RecurringOnly: true})
}

func (s *Store) ExistsTransaction(_ context.Context, userID, title string, categoryID *string, day core.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.transactions {
		if t.IsRecurring || t.UserID != userID || t.Title != title || !core.DateOf(t.Date.Time).Equal(day) {
			continue
		}
		if categoryID != nil && !sameCategory(t.CategoryID, categoryID) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *Store) ListUsersWithTemplates(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var users []string
	for _, t := range s.transactions {
		if !t.IsRecurring {
			continue
		}
		if _, ok := seen[t.UserID]; ok {
			continue
		}
		seen[t.UserID] = struct{}{}
		users = append(users, t.UserID)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.UserID == c.UserID && strings.EqualFold(existing.Name, c.Name) {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrConflict)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.now().UTC()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteCategory detaches the category from every transaction that used it.
func (s *Store) DeleteCategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	delete(s.categories, id)
	for key, t := range s.transactions {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
			s.transactions[key] = t
		}
	}
	return nil
}

func sameCategory(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortByDate(ts []core.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date) {
			return ts[i].Date.Before(ts[j].Date)
		}
		return ts[i].ID < ts[j].ID
	})
}

// clone copies pointer fields so callers never share state with the store.
func clone(t core.Transaction) core.Transaction {
	if t.CategoryID != nil {
		v := *t.CategoryID
		t.CategoryID = &v
	}
	if t.RecurrenceDay != nil {
		v := *t.RecurrenceDay
		t.RecurrenceDay = &v
	}
	if t.SourceTemplateID != nil {
		v := *t.SourceTemplateID
		t.SourceTemplateID = &v
	}
	return t
}
