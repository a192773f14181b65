package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyService_DuplicateRejectedBeforeWrite(t *testing.T) {
	ctx := context.Background()
	spy := newSpy()
	inv := &countingInvalidator{}
	svc := NewTaxonomyService(spy, inv)

	_, err := svc.Create(ctx, "u1", core.KindCategory, "  Food ")
	require.NoError(t, err)
	require.EqualValues(t, 1, spy.taxonWrites.Load())

	_, err = svc.Create(ctx, "u1", core.KindCategory, "food")
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrDuplicateName)
	assert.EqualValues(t, 1, spy.taxonWrites.Load(), "no gateway write for a duplicate")

	// Other users and other kinds are independent.
	_, err = svc.Create(ctx, "u2", core.KindCategory, "food")
	assert.NoError(t, err)
	_, err = svc.Create(ctx, "u1", core.KindIncomeSource, "Food")
	assert.NoError(t, err)
	assert.Equal(t, 3, inv.Count("u1")+inv.Count("u2"))
}

func TestTaxonomyService_NameRules(t *testing.T) {
	ctx := context.Background()
	svc := NewTaxonomyService(newSpy(), nil)

	tests := []struct {
		name string
		kind core.TaxonKind
		want error
	}{
		{"   ", core.KindCategory, core.ErrEmptyName},
		{"Balance Carryover", core.KindIncomeSource, core.ErrReservedName},
		{"Food", core.TaxonKind("tag"), core.ErrInvalidKind},
	}
	for _, tt := range tests {
		_, err := svc.Create(ctx, "u1", tt.kind, tt.name)
		assert.ErrorIs(t, err, tt.want, "name %q", tt.name)
	}

	_, err := svc.Create(ctx, "u1", core.KindCategory, "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijX")
	assert.ErrorIs(t, err, core.ErrNameTooLong)
}

func TestTaxonomyService_RenameAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewTaxonomyService(newSpy(), nil)

	food, err := svc.Create(ctx, "u1", core.KindCategory, "Food")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u1", core.KindCategory, "Bills")
	require.NoError(t, err)

	_, err = svc.Rename(ctx, "u1", core.KindCategory, food.ID, "BILLS")
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	renamed, err := svc.Rename(ctx, "u1", core.KindCategory, food.ID, "food ")
	require.NoError(t, err, "renaming to a different case of itself is allowed")
	assert.Equal(t, "food", renamed.Name)

	_, err = svc.Rename(ctx, "u2", core.KindCategory, food.ID, "Groceries")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "u1", core.KindCategory, food.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "u1", core.KindCategory, food.ID), storage.ErrNotFound)
}

func TestTaxonomyService_CarryoverSourceIsProtected(t *testing.T) {
	ctx := context.Background()
	svc := NewTaxonomyService(newSpy(), nil)

	src, err := svc.EnsureCarryoverSource(ctx, "u1")
	require.NoError(t, err)
	again, err := svc.EnsureCarryoverSource(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, src.ID, again.ID)

	_, err = svc.Rename(ctx, "u1", core.KindIncomeSource, src.ID, "Bonus")
	assert.ErrorIs(t, err, core.ErrReservedName)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", core.KindIncomeSource, src.ID), core.ErrReservedName)

	other, err := svc.Create(ctx, "u1", core.KindIncomeSource, "Salary")
	require.NoError(t, err)
	_, err = svc.Rename(ctx, "u1", core.KindIncomeSource, other.ID, "balance carryover")
	assert.ErrorIs(t, err, core.ErrReservedName)
}

func TestTaxonomyService_ListWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("rows appear on the third poll", func(t *testing.T) {
		spy := newSpy()
		_, err := spy.Store.InsertTaxon(ctx, core.Taxon{UserID: "u1", Kind: core.KindAccountType, Name: "Cash"})
		require.NoError(t, err)
		spy.listTaxa = func(n int) bool { return n >= 3 }
		svc := NewTaxonomyService(spy, nil)
		svc.retryDelay = time.Millisecond

		got, err := svc.ListWithRetry(ctx, "u1", core.KindAccountType)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.EqualValues(t, 3, spy.listCalls.Load())
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		spy := newSpy()
		svc := NewTaxonomyService(spy, nil)
		svc.retryDelay = time.Millisecond

		got, err := svc.ListWithRetry(ctx, "u1", core.KindCategory)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.EqualValues(t, 3, spy.listCalls.Load())
	})

	t.Run("cancelled context stops polling", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		svc := NewTaxonomyService(newSpy(), nil)
		_, err := svc.ListWithRetry(cctx, "u1", core.KindCategory)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
