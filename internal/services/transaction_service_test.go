package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/storage/memory"
)

func validTransaction() core.Transaction {
	return core.Transaction{
		UserID: "u1",
		Title:  "  Groceries ",
		Amount: core.Money{Cents: 4250},
		Date:   mustDate("2024-05-10"),
	}
}

func TestTransactionService_CreateTransaction(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewTransactionService(memory.New(), pub)

	saved, err := svc.CreateTransaction(ctx, validTransaction())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Groceries", saved.Title)
	assert.Equal(t, core.StatusUnpaid, saved.Status)
	assert.Equal(t, core.RecurrenceNone, saved.RecurrenceType)
	assert.False(t, saved.IsRecurring)
	assert.Equal(t, []string{saved.ID}, pub.ids)
}

func TestTransactionService_CreateTemplate(t *testing.T) {
	svc := NewTransactionService(memory.New(), nil)

	in := validTransaction()
	in.RecurrenceType = core.Monthly
	in.RecurrenceDay = intPtr(10)
	templateID := "forged"
	in.SourceTemplateID = &templateID

	saved, err := svc.CreateTransaction(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, saved.IsRecurring)
	assert.Nil(t, saved.SourceTemplateID)
}

func TestTransactionService_CreateTransaction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Transaction)
	}{
		{"empty title", func(tx *core.Transaction) { tx.Title = " " }},
		{"zero amount", func(tx *core.Transaction) { tx.Amount = core.Money{} }},
		{"missing user", func(tx *core.Transaction) { tx.UserID = "" }},
		{"bad status", func(tx *core.Transaction) { tx.Status = "pending" }},
		{"bad recurrence type", func(tx *core.Transaction) { tx.RecurrenceType = "yearly" }},
		{"bad recurrence day", func(tx *core.Transaction) { tx.RecurrenceType = core.Weekly; tx.RecurrenceDay = intPtr(8) }},
		{"unknown category", func(tx *core.Transaction) { c := "nope"; tx.CategoryID = &c }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewTransactionService(memory.New(), nil)
			in := validTransaction()
			tt.mutate(&in)

			_, err := svc.CreateTransaction(context.Background(), in)
			require.Error(t, err)
			assert.True(t, core.IsValidationError(err), "got %v", err)
		})
	}
}

func TestTransactionService_UpdateKeepsProvenance(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tmpl := addTemplate(t, store, core.Transaction{UserID: "u1", Title: "Rent", Date: mustDate("2024-03-01"), RecurrenceType: core.Monthly})
	_, err := newTestProcessor(t, store, nil).ProcessRecurringTransactions(ctx, "u1", nil)
	require.NoError(t, err)
	inst := listInstances(t, store, "u1")[0]

	svc := NewTransactionService(store, nil)
	inst.Status = core.StatusPaid
	inst.Amount = core.Money{Cents: 99900}
	inst.SourceTemplateID = nil

	updated, err := svc.UpdateTransaction(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, updated.Status)
	assert.Equal(t, int64(99900), updated.Amount.Cents)
	require.NotNil(t, updated.SourceTemplateID)
	assert.Equal(t, tmpl.ID, *updated.SourceTemplateID)
}

func TestTransactionService_UpdateOtherUser(t *testing.T) {
	ctx := context.Background()
	svc := NewTransactionService(memory.New(), nil)
	saved, err := svc.CreateTransaction(ctx, validTransaction())
	require.NoError(t, err)

	saved.UserID = "intruder"
	_, err = svc.UpdateTransaction(ctx, saved)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTransactionService_DeleteTemplateKeepsInstances(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tmpl := addTemplate(t, store, core.Transaction{UserID: "u1", Title: "Rent", Date: mustDate("2024-02-01"), RecurrenceType: core.Monthly})
	created, err := newTestProcessor(t, store, nil).ProcessRecurringTransactions(ctx, "u1", nil)
	require.NoError(t, err)
	require.Equal(t, 2, created)

	svc := NewTransactionService(store, nil)
	require.NoError(t, svc.DeleteTransaction(ctx, "u1", tmpl.ID))

	insts := listInstances(t, store, "u1")
	require.Len(t, insts, 2)
	for _, inst := range insts {
		assert.Nil(t, inst.SourceTemplateID)
	}

	err = svc.DeleteTransaction(ctx, "u1", tmpl.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTransactionService_Categories(t *testing.T) {
	ctx := context.Background()
	svc := NewTransactionService(memory.New(), nil)

	food, err := svc.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food"})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, core.Category{UserID: "u1", Name: "food"})
	assert.ErrorIs(t, err, core.ErrConflict)
	_, err = svc.CreateCategory(ctx, core.Category{UserID: "u1", Name: ""})
	assert.True(t, core.IsValidationError(err))

	in := validTransaction()
	in.CategoryID = &food.ID
	tx, err := svc.CreateTransaction(ctx, in)
	require.NoError(t, err)

	cats, err := svc.ListCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cats, 1)

	require.NoError(t, svc.DeleteCategory(ctx, "u1", food.ID))
	got, err := svc.GetTransaction(ctx, "u1", tx.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
}

func TestTransactionService_MonthSummary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewTransactionService(store, nil)

	food, err := svc.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food"})
	require.NoError(t, err)
	addTemplate(t, store, core.Transaction{UserID: "u1", Title: "Rent", Date: mustDate("2024-02-01"), RecurrenceType: core.Monthly})
	_, err = newTestProcessor(t, store, nil).ProcessRecurringTransactions(ctx, "u1", nil)
	require.NoError(t, err)

	in := validTransaction()
	in.CategoryID = &food.ID
	in.Date = mustDate("2024-03-10")
	_, err = svc.CreateTransaction(ctx, in)
	require.NoError(t, err)

	ov, err := svc.MonthSummary(ctx, "u1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, ov.Count)
	require.Len(t, ov.ByCategory, 2)
	assert.Equal(t, "Food", ov.ByCategory[0].Name)
	assert.Nil(t, ov.ByCategory[1].CategoryID)

	_, err = svc.MonthSummary(ctx, "u1", 2024, 13)
	assert.True(t, core.IsValidationError(err))
}
