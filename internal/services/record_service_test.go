package services

import (
	"context"
	"testing"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
	"kharcha/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordService(f *fixture) (*RecordService, *recordingPublisher, *countingInvalidator) {
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	return NewRecordService(f.store, pub, inv, nil), pub, inv
}

func TestRecordService_CreateIncome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, pub, inv := newRecordService(f)

	r, err := svc.CreateIncome(ctx, f.userID, IncomeInput{
		Amount:      money(150000),
		Date:        core.NewDate(2025, 3, 1),
		SourceID:    f.salary.ID,
		AccountType: "bank",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Bank", r.AccountType, "account type stored with its canonical spelling")
	assert.Equal(t, 1, inv.Count(f.userID))

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, amqp.EventCreated, events[0].Type)
	assert.Equal(t, amqp.KindIncome, events[0].Kind)
	assert.Equal(t, r.ID, events[0].RecordID)

	listed, err := svc.ListIncome(ctx, f.userID, core.MonthPeriod(2025, 3))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, r.ID, listed[0].ID)
}

func TestRecordService_IncomeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, pub, _ := newRecordService(f)
	carry, err := NewTaxonomyService(f.store, nil).EnsureCarryoverSource(ctx, f.userID)
	require.NoError(t, err)

	valid := IncomeInput{Amount: money(100), Date: core.NewDate(2025, 3, 2), SourceID: f.salary.ID, AccountType: "Cash"}
	tests := []struct {
		name   string
		mutate func(*IncomeInput)
		want   error
	}{
		{"zero amount", func(in *IncomeInput) { in.Amount = money(0) }, core.ErrInvalidAmount},
		{"amount above ceiling", func(in *IncomeInput) { in.Amount = money(core.MaxAmountCents + 1) }, core.ErrInvalidAmount},
		{"missing date", func(in *IncomeInput) { in.Date = core.Date{} }, core.ErrInvalidDate},
		{"missing source", func(in *IncomeInput) { in.SourceID = "" }, core.ErrEmptySource},
		{"foreign source", func(in *IncomeInput) { in.SourceID = "nope" }, core.ErrUnknownSource},
		{"reserved source", func(in *IncomeInput) { in.SourceID = carry.ID }, core.ErrReservedName},
		{"missing account", func(in *IncomeInput) { in.AccountType = " " }, core.ErrEmptyAccountType},
		{"unknown account", func(in *IncomeInput) { in.AccountType = "Wallet" }, core.ErrUnknownAccountType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.CreateIncome(ctx, f.userID, in)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.EqualValues(t, 0, f.store.incomeWrites.Load())
	assert.Empty(t, pub.Events())
}

func TestRecordService_UpdateAndDeleteIncome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, pub, _ := newRecordService(f)
	r := f.income(t, "Cash", 1000, core.NewDate(2025, 3, 5))

	amount := money(2500)
	desc := "bonus"
	updated, err := svc.UpdateIncome(ctx, f.userID, r.ID, IncomePatch{Amount: &amount, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, amount, updated.Amount)
	assert.Equal(t, "bonus", updated.Description)
	assert.Equal(t, r.Date, updated.Date, "untouched fields keep their value")

	bad := money(-5)
	_, err = svc.UpdateIncome(ctx, f.userID, r.ID, IncomePatch{Amount: &bad})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = svc.UpdateIncome(ctx, "someone-else", r.ID, IncomePatch{Amount: &amount})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, svc.DeleteIncome(ctx, f.userID, r.ID))
	assert.ErrorIs(t, svc.DeleteIncome(ctx, f.userID, r.ID), storage.ErrNotFound)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, amqp.EventUpdated, events[0].Type)
	assert.Equal(t, amqp.EventDeleted, events[1].Type)
	assert.Nil(t, events[1].Income)
}

func TestRecordService_Expenses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, pub, _ := newRecordService(f)

	e, err := svc.CreateExpense(ctx, f.userID, ExpenseInput{
		Amount: money(1250), Date: core.NewDate(2025, 3, 3), CategoryID: f.food.ID, AccountType: "Cash", Item: "Groceries",
	})
	require.NoError(t, err)
	assert.Equal(t, f.food.ID, e.CategoryID)

	_, err = svc.CreateExpense(ctx, f.userID, ExpenseInput{
		Amount: money(300), Date: core.NewDate(2025, 3, 3), AccountType: "Cash", Item: "Coffee",
	})
	require.NoError(t, err, "category is optional")

	_, err = svc.CreateExpense(ctx, f.userID, ExpenseInput{
		Amount: money(300), Date: core.NewDate(2025, 3, 3), CategoryID: "missing", AccountType: "Cash", Item: "Coffee",
	})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)

	_, err = svc.CreateExpense(ctx, f.userID, ExpenseInput{
		Amount: money(300), Date: core.NewDate(2025, 3, 3), AccountType: "Cash", Item: "  ",
	})
	assert.ErrorIs(t, err, core.ErrEmptyItem)

	item := "Supermarket"
	updated, err := svc.UpdateExpense(ctx, f.userID, e.ID, ExpensePatch{Item: &item})
	require.NoError(t, err)
	assert.Equal(t, "Supermarket", updated.Item)
	assert.Equal(t, money(1250), updated.Amount)

	list, err := svc.ListExpenses(ctx, f.userID, core.MonthPeriod(2025, 3))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.DeleteExpense(ctx, f.userID, e.ID))
	assert.Len(t, pub.Events(), 4)
}

func TestRecordService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pub := &recordingPublisher{err: errBoom}
	svc := NewRecordService(f.store, pub, nil, nil)

	_, err := svc.CreateExpense(ctx, f.userID, ExpenseInput{
		Amount: money(300), Date: core.NewDate(2025, 3, 3), AccountType: "Cash", Item: "Coffee",
	})
	assert.NoError(t, err)
	assert.Len(t, pub.Events(), 1)
}

func TestRecordService_NilPublisher(t *testing.T) {
	f := newFixture(t)
	svc := NewRecordService(f.store, nil, nil, nil)
	_, err := svc.CreateExpense(context.Background(), f.userID, ExpenseInput{
		Amount: money(300), Date: core.NewDate(2025, 3, 3), AccountType: "Cash", Item: "Coffee",
	})
	assert.NoError(t, err)
}

func TestRecordService_CarryoverRowKeepsReservedSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.income(t, "Cash", 500, core.NewDate(2025, 3, 10))
	carry := NewCarryoverService(f.store, NewTaxonomyService(f.store, nil), nil, nil, nil)
	res, err := carry.Evaluate(ctx, f.userID, core.MonthPeriod(2025, 4))
	require.NoError(t, err)
	require.Len(t, res.Income, 1)
	row := res.Income[0]

	svc, _, _ := newRecordService(f)
	amount := money(450)
	updated, err := svc.UpdateIncome(ctx, f.userID, row.ID, IncomePatch{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "2025-04", updated.CarryoverPeriod)

	_, err = svc.UpdateIncome(ctx, f.userID, row.ID, IncomePatch{SourceID: &f.salary.ID})
	assert.ErrorIs(t, err, core.ErrReservedName)
}

func TestRecordService_EditsSurviveTaxonomyChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, _, _ := newRecordService(f)
	taxonomy := NewTaxonomyService(f.store, nil)

	r := f.income(t, "Cash", 1000, core.NewDate(2025, 3, 5))
	e, err := svc.CreateExpense(ctx, f.userID, ExpenseInput{
		Amount: money(200), Date: core.NewDate(2025, 3, 6), CategoryID: f.food.ID, AccountType: "Cash", Item: "Lunch",
	})
	require.NoError(t, err)

	_, err = taxonomy.Rename(ctx, f.userID, core.KindAccountType, f.accounts[0].ID, "Wallet")
	require.NoError(t, err)
	require.NoError(t, taxonomy.Delete(ctx, f.userID, core.KindCategory, f.food.ID))

	desc := "March salary"
	updated, err := svc.UpdateIncome(ctx, f.userID, r.ID, IncomePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Cash", updated.AccountType, "history keeps its label")

	item := "Team lunch"
	edited, err := svc.UpdateExpense(ctx, f.userID, e.ID, ExpensePatch{Item: &item})
	require.NoError(t, err)
	assert.Equal(t, "Cash", edited.AccountType)
	assert.Equal(t, f.food.ID, edited.CategoryID)

	// Fields the patch sets are still resolved.
	cash := "cash"
	_, err = svc.UpdateIncome(ctx, f.userID, r.ID, IncomePatch{AccountType: &cash})
	assert.ErrorIs(t, err, core.ErrUnknownAccountType)
	wallet := "wallet"
	moved, err := svc.UpdateExpense(ctx, f.userID, e.ID, ExpensePatch{AccountType: &wallet})
	require.NoError(t, err)
	assert.Equal(t, "Wallet", moved.AccountType)
}
