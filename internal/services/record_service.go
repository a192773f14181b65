package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/storage"
)

type (
	IncomeInput struct {
		Amount      core.Money
		Date        core.Date
		SourceID    string
		AccountType string
		Description string
	}

	// IncomePatch carries the fields of a partial update; nil leaves a
	// field unchanged.
	IncomePatch struct {
		Amount      *core.Money
		Date        *core.Date
		SourceID    *string
		AccountType *string
		Description *string
	}

	ExpenseInput struct {
		Amount      core.Money
		Date        core.Date
		CategoryID  string
		AccountType string
		Item        string
		Description string
	}

	ExpensePatch struct {
		Amount      *core.Money
		Date        *core.Date
		CategoryID  *string
		AccountType *string
		Item        *string
		Description *string
	}
)

// RecordService validates and stores income and expense rows, then
// announces each change.
type RecordService struct {
	income   storage.IncomeStore
	expenses storage.ExpenseStore
	taxa     storage.TaxonomyStore
	notify   notifier
}

func NewRecordService(store storage.Store, publisher EventPublisher, cache Invalidator, m *metrics.Metrics) *RecordService {
	return &RecordService{
		income:   store,
		expenses: store,
		taxa:     store,
		notify:   notifier{publisher: publisher, cache: cache, metrics: m},
	}
}

// --- income ---

func (s *RecordService) ListIncome(ctx context.Context, userID string, p core.Period) ([]core.IncomeRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, core.Invalid("period", err)
	}
	rows, err := s.income.ListIncome(ctx, storage.ForPeriod(userID, p))
	if err != nil {
		return nil, fmt.Errorf("list income %s: %w", p.Key(), err)
	}
	return rows, nil
}

func (s *RecordService) CreateIncome(ctx context.Context, userID string, in IncomeInput) (core.IncomeRecord, error) {
	r := core.IncomeRecord{
		UserID:      userID,
		Amount:      in.Amount,
		Date:        in.Date,
		SourceID:    in.SourceID,
		AccountType: in.AccountType,
		Description: in.Description,
	}
	if err := s.checkIncome(ctx, &r, refAccount|refSource); err != nil {
		return core.IncomeRecord{}, err
	}

	rows, err := s.income.InsertIncome(ctx, r)
	if err != nil {
		return core.IncomeRecord{}, fmt.Errorf("save income: %w", err)
	}
	created := rows[0]
	slog.InfoContext(ctx, "Income created", log.NewFields().
		WithUser(userID).
		WithRecord("income", created.ID, created.Amount.Cents, created.AccountType).
		ToSlice()...)
	s.notify.changed(ctx, userID, amqp.NewIncomeEvent(amqp.EventCreated, created))
	return created, nil
}

func (s *RecordService) UpdateIncome(ctx context.Context, userID, id string, patch IncomePatch) (core.IncomeRecord, error) {
	r, err := s.income.GetIncome(ctx, userID, id)
	if err != nil {
		return core.IncomeRecord{}, fmt.Errorf("get income %s: %w", id, err)
	}
	sourceChanged := patch.SourceID != nil && *patch.SourceID != r.SourceID
	if patch.Amount != nil {
		r.Amount = *patch.Amount
	}
	if patch.Date != nil {
		r.Date = *patch.Date
	}
	if patch.SourceID != nil {
		r.SourceID = *patch.SourceID
	}
	if patch.AccountType != nil {
		r.AccountType = *patch.AccountType
	}
	if patch.Description != nil {
		r.Description = *patch.Description
	}
	// Carryover rows keep their reserved source.
	if r.IsCarryover() && sourceChanged {
		return core.IncomeRecord{}, core.Invalid("source_id", core.ErrReservedName)
	}
	if err := s.checkIncome(ctx, &r, patch.refs()); err != nil {
		return core.IncomeRecord{}, err
	}

	updated, err := s.income.UpdateIncome(ctx, r)
	if err != nil {
		return core.IncomeRecord{}, fmt.Errorf("update income %s: %w", id, err)
	}
	s.notify.changed(ctx, userID, amqp.NewIncomeEvent(amqp.EventUpdated, updated))
	return updated, nil
}

func (s *RecordService) DeleteIncome(ctx context.Context, userID, id string) error {
	r, err := s.income.GetIncome(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get income %s: %w", id, err)
	}
	if err := s.income.DeleteIncome(ctx, userID, id); err != nil {
		return fmt.Errorf("delete income %s: %w", id, err)
	}
	s.notify.changed(ctx, userID, amqp.NewIncomeEvent(amqp.EventDeleted, r))
	return nil
}

// refs selects which taxonomy references a write resolves. Updates only
// resolve the fields they change, so renamed or deleted entries never
// block edits to older rows.
type refs uint8

const (
	refAccount refs = 1 << iota
	refSource
	refCategory
)

func (p IncomePatch) refs() refs {
	var r refs
	if p.AccountType != nil {
		r |= refAccount
	}
	if p.SourceID != nil {
		r |= refSource
	}
	return r
}

func (p ExpensePatch) refs() refs {
	var r refs
	if p.AccountType != nil {
		r |= refAccount
	}
	if p.CategoryID != nil {
		r |= refCategory
	}
	return r
}

// checkIncome validates r and resolves the selected references to the
// user's taxonomy before any write.
func (s *RecordService) checkIncome(ctx context.Context, r *core.IncomeRecord, check refs) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if check&refAccount != 0 {
		name, err := s.resolveAccountType(ctx, r.UserID, r.AccountType)
		if err != nil {
			return err
		}
		r.AccountType = name
	}
	if check&refSource == 0 || r.IsCarryover() {
		return nil
	}
	src, err := s.taxa.GetTaxon(ctx, r.UserID, core.KindIncomeSource, r.SourceID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Invalid("source_id", core.ErrUnknownSource)
	}
	if err != nil {
		return fmt.Errorf("get income source: %w", err)
	}
	if src.IsCarryoverSource() {
		return core.Invalid("source_id", core.ErrReservedName)
	}
	return nil
}

// --- expenses ---

func (s *RecordService) ListExpenses(ctx context.Context, userID string, p core.Period) ([]core.ExpenseRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, core.Invalid("period", err)
	}
	rows, err := s.expenses.ListExpenses(ctx, storage.ForPeriod(userID, p))
	if err != nil {
		return nil, fmt.Errorf("list expenses %s: %w", p.Key(), err)
	}
	return rows, nil
}

func (s *RecordService) CreateExpense(ctx context.Context, userID string, in ExpenseInput) (core.ExpenseRecord, error) {
	e := core.ExpenseRecord{
		UserID:      userID,
		Amount:      in.Amount,
		Date:        in.Date,
		CategoryID:  in.CategoryID,
		AccountType: in.AccountType,
		Item:        in.Item,
		Description: in.Description,
	}
	if err := s.checkExpense(ctx, &e, refAccount|refCategory); err != nil {
		return core.ExpenseRecord{}, err
	}

	rows, err := s.expenses.InsertExpenses(ctx, e)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("save expense: %w", err)
	}
	created := rows[0]
	slog.InfoContext(ctx, "Expense created", log.NewFields().
		WithUser(userID).
		WithRecord("expense", created.ID, created.Amount.Cents, created.AccountType).
		ToSlice()...)
	s.notify.changed(ctx, userID, amqp.NewExpenseEvent(amqp.EventCreated, created))
	return created, nil
}

func (s *RecordService) UpdateExpense(ctx context.Context, userID, id string, patch ExpensePatch) (core.ExpenseRecord, error) {
	e, err := s.expenses.GetExpense(ctx, userID, id)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	if patch.Amount != nil {
		e.Amount = *patch.Amount
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.CategoryID != nil {
		e.CategoryID = *patch.CategoryID
	}
	if patch.AccountType != nil {
		e.AccountType = *patch.AccountType
	}
	if patch.Item != nil {
		e.Item = *patch.Item
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if err := s.checkExpense(ctx, &e, patch.refs()); err != nil {
		return core.ExpenseRecord{}, err
	}

	updated, err := s.expenses.UpdateExpense(ctx, e)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	s.notify.changed(ctx, userID, amqp.NewExpenseEvent(amqp.EventUpdated, updated))
	return updated, nil
}

func (s *RecordService) DeleteExpense(ctx context.Context, userID, id string) error {
	e, err := s.expenses.GetExpense(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get expense %s: %w", id, err)
	}
	if err := s.expenses.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	s.notify.changed(ctx, userID, amqp.NewExpenseEvent(amqp.EventDeleted, e))
	return nil
}

func (s *RecordService) checkExpense(ctx context.Context, e *core.ExpenseRecord, check refs) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if check&refAccount != 0 {
		name, err := s.resolveAccountType(ctx, e.UserID, e.AccountType)
		if err != nil {
			return err
		}
		e.AccountType = name
	}
	if check&refCategory == 0 || e.CategoryID == "" {
		return nil
	}
	_, err := s.taxa.GetTaxon(ctx, e.UserID, core.KindCategory, e.CategoryID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Invalid("category_id", core.ErrUnknownCategory)
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	return nil
}

// resolveAccountType matches name against the user's account types and
// returns the stored spelling, so the balance report's exact match holds.
func (s *RecordService) resolveAccountType(ctx context.Context, userID, name string) (string, error) {
	accounts, err := s.taxa.ListTaxa(ctx, userID, core.KindAccountType)
	if err != nil {
		return "", fmt.Errorf("list account types: %w", err)
	}
	for _, a := range accounts {
		if core.SameName(a.Name, name) {
			return a.Name, nil
		}
	}
	return "", core.Invalid("account_type", core.ErrUnknownAccountType)
}
