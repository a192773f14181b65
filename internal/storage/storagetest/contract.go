// Package storagetest holds the gateway contract shared by every storage
// backend's tests.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"kharcha/internal/core"
	"kharcha/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the storage contract. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("UserIsolation", func(t *testing.T) { testUserIsolation(t, newStore(t)) })
	t.Run("DateRangeAndOrder", func(t *testing.T) { testDateRange(t, newStore(t)) })
	t.Run("CarryoverUniqueness", func(t *testing.T) { testCarryoverUnique(t, newStore(t)) })
	t.Run("TaxonomyNames", func(t *testing.T) { testTaxonomy(t, newStore(t)) })
	t.Run("UpdateAndDelete", func(t *testing.T) { testUpdateDelete(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

// User creates a user with the given email.
func User(t *testing.T, s storage.UserStore, email string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{Email: email, PasswordHash: "x"})
	require.NoError(t, err)
	return u
}

func income(userID string, d core.Date, cents int64, account string) core.IncomeRecord {
	return core.IncomeRecord{UserID: userID, Date: d, Amount: core.Money{Cents: cents}, SourceID: "src", AccountType: account}
}

func testRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := User(t, s, "a@example.com")

	inserted, err := s.InsertIncome(ctx, income(u.ID, core.NewDate(2025, 3, 10), 1500, "Cash"))
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	require.NotEmpty(t, inserted[0].ID)

	got, err := s.ListIncome(ctx, storage.ForPeriod(u.ID, core.MonthPeriod(2025, 3)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inserted[0].ID, got[0].ID)
	assert.Equal(t, core.Money{Cents: 1500}, got[0].Amount)
	assert.Equal(t, core.NewDate(2025, 3, 10), got[0].Date)

	exp, err := s.InsertExpenses(ctx, core.ExpenseRecord{
		UserID: u.ID, Date: core.NewDate(2025, 3, 11), Amount: core.Money{Cents: 250},
		AccountType: "Cash", Item: "Tea",
	})
	require.NoError(t, err)
	gotExp, err := s.ListExpenses(ctx, storage.ForPeriod(u.ID, core.MonthPeriod(2025, 3)))
	require.NoError(t, err)
	require.Len(t, gotExp, 1)
	assert.Equal(t, exp[0].ID, gotExp[0].ID)
	assert.Equal(t, "Tea", gotExp[0].Item)
	assert.Empty(t, gotExp[0].CategoryID)
}

func testUserIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := User(t, s, "a@example.com")
	b := User(t, s, "b@example.com")

	rows, err := s.InsertIncome(ctx, income(a.ID, core.NewDate(2025, 1, 1), 100, "Cash"))
	require.NoError(t, err)

	got, err := s.ListIncome(ctx, storage.Filter{UserID: b.ID})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetIncome(ctx, b.ID, rows[0].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteIncome(ctx, b.ID, rows[0].ID), storage.ErrNotFound)

	none, err := s.ListIncome(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDateRange(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := User(t, s, "a@example.com")

	_, err := s.InsertIncome(ctx,
		income(u.ID, core.NewDate(2025, 2, 28), 1, "Cash"),
		income(u.ID, core.NewDate(2025, 3, 1), 2, "Cash"),
		income(u.ID, core.NewDate(2025, 3, 31), 3, "Cash"),
		income(u.ID, core.NewDate(2025, 4, 1), 4, "Cash"),
	)
	require.NoError(t, err)

	f := storage.ForPeriod(u.ID, core.MonthPeriod(2025, 3))
	got, err := s.ListIncome(ctx, f)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Amount.Cents)
	assert.Equal(t, int64(2), got[1].Amount.Cents)

	f.Order = storage.OrderDateAsc
	got, err = s.ListIncome(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got[0].Amount.Cents)

	all, err := s.ListIncome(ctx, storage.Filter{UserID: u.ID})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func testCarryoverUnique(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := User(t, s, "a@example.com")

	carry := func(account string) core.IncomeRecord {
		r := income(u.ID, core.NewDate(2025, 4, 1), 600, account)
		r.CarryoverPeriod = "2025-04"
		return r
	}

	_, err := s.InsertIncome(ctx, carry("UNION"))
	require.NoError(t, err)

	// The batch must fail as a whole: CASH is new but UNION repeats.
	_, err = s.InsertIncome(ctx, carry("CASH"), carry("UNION"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)

	got, err := s.ListIncome(ctx, storage.ForPeriod(u.ID, core.MonthPeriod(2025, 4)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-04", got[0].CarryoverPeriod)

	// Plain income on the same account is unaffected.
	_, err = s.InsertIncome(ctx, income(u.ID, core.NewDate(2025, 4, 1), 10, "UNION"), income(u.ID, core.NewDate(2025, 4, 1), 10, "UNION"))
	require.NoError(t, err)
}

func testTaxonomy(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := User(t, s, "a@example.com")

	food, err := s.InsertTaxon(ctx, core.Taxon{UserID: u.ID, Kind: core.KindCategory, Name: "  Food "})
	require.NoError(t, err)
	assert.Equal(t, "Food", food.Name)

	_, err = s.InsertTaxon(ctx, core.Taxon{UserID: u.ID, Kind: core.KindCategory, Name: "food"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Same name in another collection is fine.
	_, err = s.InsertTaxon(ctx, core.Taxon{UserID: u.ID, Kind: core.KindIncomeSource, Name: "Food"})
	require.NoError(t, err)

	bills, err := s.InsertTaxon(ctx, core.Taxon{UserID: u.ID, Kind: core.KindCategory, Name: "Bills"})
	require.NoError(t, err)
	bills.Name = "FOOD"
	_, err = s.UpdateTaxon(ctx, bills)
	assert.ErrorIs(t, err, storage.ErrConflict)

	bills.Name = "Utilities"
	renamed, err := s.UpdateTaxon(ctx, bills)
	require.NoError(t, err)
	assert.Equal(t, "Utilities", renamed.Name)

	cats, err := s.ListTaxa(ctx, u.ID, core.KindCategory)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	require.NoError(t, s.DeleteTaxon(ctx, u.ID, core.KindCategory, food.ID))
	_, err = s.GetTaxon(ctx, u.ID, core.KindCategory, food.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdateDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := User(t, s, "a@example.com")

	rows, err := s.InsertExpenses(ctx, core.ExpenseRecord{
		UserID: u.ID, Date: core.NewDate(2025, 5, 5), Amount: core.Money{Cents: 100},
		AccountType: "Cash", Item: "Bus", CategoryID: "cat",
	})
	require.NoError(t, err)

	e := rows[0]
	e.Amount = core.Money{Cents: 120}
	e.CategoryID = ""
	updated, err := s.UpdateExpense(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(120), updated.Amount.Cents)
	assert.Empty(t, updated.CategoryID)

	e.UserID = "someone-else"
	_, err = s.UpdateExpense(ctx, e)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.DeleteExpense(ctx, u.ID, rows[0].ID))
	assert.ErrorIs(t, s.DeleteExpense(ctx, u.ID, rows[0].ID), storage.ErrNotFound)
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := User(t, s, "Ada@Example.com")

	_, err := s.CreateUser(ctx, core.User{Email: "ada@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	byEmail, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{u.ID}, ids)
}
