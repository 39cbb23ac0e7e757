// Package storagetest holds the behaviour every transaction store must share.
// Each backend runs Run against a fresh, empty store.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

// Store is the union of the ports the services consume.
type Store interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	CreateGeneratedTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	ListRecurringTemplates(ctx context.Context, userID string) ([]core.Transaction, error)
	ExistsTransaction(ctx context.Context, userID, title string, categoryID *string, day core.Date) (bool, error)
	ListUsersWithTemplates(ctx context.Context) ([]string, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	GetCategory(ctx context.Context, userID, id string) (core.Category, error)
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	DeleteCategory(ctx context.Context, userID, id string) error
	Ping(ctx context.Context) error
}

// Run executes the shared suite; newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"UserIsolation", testUserIsolation},
		{"ListFilters", testListFilters},
		{"Update", testUpdate},
		{"DeleteTemplateKeepsInstances", testDeleteTemplateKeepsInstances},
		{"GeneratedUniqueness", testGeneratedUniqueness},
		{"Exists", testExists},
		{"UsersWithTemplates", testUsersWithTemplates},
		{"Categories", testCategories},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func day(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tx(userID, title, date string) core.Transaction {
	return core.Transaction{
		UserID:         userID,
		Title:          title,
		Amount:         core.Money{Cents: 1999},
		Date:           day(date),
		Status:         core.StatusUnpaid,
		RecurrenceType: core.RecurrenceNone,
	}
}

func template(userID, title, date string, rt core.RecurrenceType) core.Transaction {
	t := tx(userID, title, date)
	t.RecurrenceType = rt
	t.IsRecurring = true
	return t
}

func testCreateAndGet(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	in := tx("u1", "Coffee", "2024-05-02")
	in.Notes = "oat milk"
	in.Amount = core.Money{Cents: -350}
	saved, err := s.CreateTransaction(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := s.GetTransaction(ctx, "u1", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Title)
	assert.Equal(t, int64(-350), got.Amount.Cents)
	assert.Equal(t, "oat milk", got.Notes)
	assert.Equal(t, day("2024-05-02"), got.Date)
	assert.Equal(t, core.StatusUnpaid, got.Status)
	assert.Equal(t, core.RecurrenceNone, got.RecurrenceType)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.RecurrenceDay)
	assert.Nil(t, got.SourceTemplateID)

	tmplIn := template("u1", "Rent", "2024-01-31", core.Monthly)
	d := 31
	tmplIn.RecurrenceDay = &d
	tmpl, err := s.CreateTransaction(ctx, tmplIn)
	require.NoError(t, err)
	got, err = s.GetTransaction(ctx, "u1", tmpl.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRecurring)
	require.NotNil(t, got.RecurrenceDay)
	assert.Equal(t, 31, *got.RecurrenceDay)

	_, err = s.GetTransaction(ctx, "u1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testUserIsolation(t *testing.T, s Store) {
	ctx := context.Background()
	saved, err := s.CreateTransaction(ctx, tx("alice", "Book", "2024-05-02"))
	require.NoError(t, err)

	_, err = s.GetTransaction(ctx, "bob", saved.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := s.ListTransactions(ctx, "bob", core.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, "bob", saved.ID), core.ErrNotFound)
}

func testListFilters(t *testing.T, s Store) {
	ctx := context.Background()
	cat, err := s.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food"})
	require.NoError(t, err)

	paid := tx("u1", "Lunch", "2024-05-03")
	paid.Status = core.StatusPaid
	paid.CategoryID = &cat.ID
	for _, in := range []core.Transaction{
		tx("u1", "Breakfast", "2024-05-01"),
		paid,
		tx("u1", "Dinner", "2024-05-05"),
		template("u1", "Rent", "2024-05-01", core.Monthly),
	} {
		_, err := s.CreateTransaction(ctx, in)
		require.NoError(t, err)
	}

	titles := func(f core.TransactionFilter) []string {
		t.Helper()
		list, err := s.ListTransactions(ctx, "u1", f)
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, item.Title)
		}
		return out
	}

	all := titles(core.TransactionFilter{})
	assert.Len(t, all, 4)
	assert.Equal(t, "Dinner", all[3], "ordered by date")

	status := core.StatusPaid
	assert.Equal(t, []string{"Lunch"}, titles(core.TransactionFilter{Status: &status}))
	assert.Equal(t, []string{"Lunch"}, titles(core.TransactionFilter{CategoryID: &cat.ID}))

	from, to := day("2024-05-02"), day("2024-05-05")
	assert.Equal(t, []string{"Lunch", "Dinner"}, titles(core.TransactionFilter{StartDate: &from, EndDate: &to}))
	assert.Equal(t, []string{"Rent"}, titles(core.TransactionFilter{RecurringOnly: true}))
	assert.Len(t, titles(core.TransactionFilter{Limit: 2}), 2)

	templates, err := s.ListRecurringTemplates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Rent", templates[0].Title)
}

func testUpdate(t *testing.T, s Store) {
	ctx := context.Background()
	saved, err := s.CreateTransaction(ctx, tx("u1", "Taxi", "2024-05-02"))
	require.NoError(t, err)

	saved.Status = core.StatusPaid
	saved.Amount = core.Money{Cents: 2500}
	saved.Title = "Cab"
	updated, err := s.UpdateTransaction(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, updated.Status)
	assert.Equal(t, int64(2500), updated.Amount.Cents)
	assert.Equal(t, "Cab", updated.Title)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	saved.UserID = "other"
	_, err = s.UpdateTransaction(ctx, saved)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testDeleteTemplateKeepsInstances(t *testing.T, s Store) {
	ctx := context.Background()
	tmpl, err := s.CreateTransaction(ctx, template("u1", "Rent", "2024-01-01", core.Monthly))
	require.NoError(t, err)
	inst, err := s.CreateGeneratedTransaction(ctx, tmpl.NewInstance(day("2024-02-01")))
	require.NoError(t, err)

	require.NoError(t, s.DeleteTransaction(ctx, "u1", tmpl.ID))

	got, err := s.GetTransaction(ctx, "u1", inst.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SourceTemplateID)
	assert.Equal(t, "Rent", got.Title)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, "u1", tmpl.ID), core.ErrNotFound)
}

func testGeneratedUniqueness(t *testing.T, s Store) {
	ctx := context.Background()
	tmpl, err := s.CreateTransaction(ctx, template("u1", "Gym", "2024-01-03", core.Weekly))
	require.NoError(t, err)

	first, err := s.CreateGeneratedTransaction(ctx, tmpl.NewInstance(day("2024-01-10")))
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnpaid, first.Status)
	require.NotNil(t, first.SourceTemplateID)
	assert.Equal(t, tmpl.ID, *first.SourceTemplateID)

	_, err = s.CreateGeneratedTransaction(ctx, tmpl.NewInstance(day("2024-01-10")))
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = s.CreateGeneratedTransaction(ctx, tmpl.NewInstance(day("2024-01-17")))
	assert.NoError(t, err)

	list, err := s.ListTransactions(ctx, "u1", core.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func testExists(t *testing.T, s Store) {
	ctx := context.Background()
	cat, err := s.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Bills"})
	require.NoError(t, err)
	other, err := s.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Fun"})
	require.NoError(t, err)

	in := tx("u1", "Phone", "2024-05-10")
	in.CategoryID = &cat.ID
	_, err = s.CreateTransaction(ctx, in)
	require.NoError(t, err)

	_, err = s.CreateTransaction(ctx, template("u1", "Internet", "2024-05-10", core.Monthly))
	require.NoError(t, err)

	tests := []struct {
		name     string
		userID   string
		title    string
		category *string
		date     string
		want     bool
	}{
		{"exact match", "u1", "Phone", &cat.ID, "2024-05-10", true},
		{"category not given", "u1", "Phone", nil, "2024-05-10", true},
		{"other category", "u1", "Phone", &other.ID, "2024-05-10", false},
		{"other day", "u1", "Phone", nil, "2024-05-11", false},
		{"other title", "u1", "Phones", nil, "2024-05-10", false},
		{"other user", "u2", "Phone", nil, "2024-05-10", false},
		{"templates do not count", "u1", "Internet", nil, "2024-05-10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ExistsTransaction(ctx, tt.userID, tt.title, tt.category, day(tt.date))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testUsersWithTemplates(t *testing.T, s Store) {
	ctx := context.Background()
	for _, in := range []core.Transaction{
		template("carol", "Rent", "2024-01-01", core.Monthly),
		template("alice", "Rent", "2024-01-01", core.Monthly),
		template("alice", "Gym", "2024-01-01", core.Weekly),
		tx("bob", "Coffee", "2024-01-01"),
	} {
		_, err := s.CreateTransaction(ctx, in)
		require.NoError(t, err)
	}

	users, err := s.ListUsersWithTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, users)
}

func testCategories(t *testing.T, s Store) {
	ctx := context.Background()
	food, err := s.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food"})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Car"})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, core.Category{UserID: "u2", Name: "Food"})
	require.NoError(t, err, "names are unique per user")

	_, err = s.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food"})
	assert.ErrorIs(t, err, core.ErrConflict)

	cats, err := s.ListCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Car", cats[0].Name)

	got, err := s.GetCategory(ctx, "u1", food.ID)
	require.NoError(t, err)
	assert.Equal(t, "Food", got.Name)
	_, err = s.GetCategory(ctx, "u2", food.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	in := tx("u1", "Pizza", "2024-05-01")
	in.CategoryID = &food.ID
	saved, err := s.CreateTransaction(ctx, in)
	require.NoError(t, err)

	require.NoError(t, s.DeleteCategory(ctx, "u1", food.ID))
	after, err := s.GetTransaction(ctx, "u1", saved.ID)
	require.NoError(t, err)
	assert.Nil(t, after.CategoryID)

	assert.ErrorIs(t, s.DeleteCategory(ctx, "u1", food.ID), core.ErrNotFound)
}
