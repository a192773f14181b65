package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/amqp"
	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/metrics"
	"kharcha/internal/storage"

	"golang.org/x/sync/singleflight"
)

// ErrCarryoverInsert reports that synthesized carryover rows could not be
// stored. It is not retried.
var ErrCarryoverInsert = errors.New("carryover insert failed")

const evaluateTimeout = 30 * time.Second

// CarryoverResult describes one evaluation. Skipped means the period
// already held carryover; Inserted counts rows written by this call.
// Income is the period's income after the evaluation.
type CarryoverResult struct {
	Skipped  bool
	Inserted int
	Income   []core.IncomeRecord
}

// CarryoverService moves every account's positive balance from the
// preceding month into the current one, at most once per period.
type CarryoverService struct {
	income   storage.IncomeStore
	expenses storage.ExpenseStore
	taxa     storage.TaxonomyStore
	sources  *TaxonomyService
	notify   notifier
	group    singleflight.Group
}

func NewCarryoverService(store storage.Store, sources *TaxonomyService, publisher EventPublisher, cache Invalidator, m *metrics.Metrics) *CarryoverService {
	return &CarryoverService{
		income:   store,
		expenses: store,
		taxa:     store,
		sources:  sources,
		notify:   notifier{publisher: publisher, cache: cache, metrics: m},
	}
}

// Evaluate applies carryover for p. Concurrent calls for the same user and
// period share one evaluation.
func (s *CarryoverService) Evaluate(ctx context.Context, userID string, p core.Period) (CarryoverResult, error) {
	if userID == "" {
		return CarryoverResult{}, auth.ErrNotAuthenticated
	}
	if err := p.Validate(); err != nil {
		return CarryoverResult{}, core.Invalid("period", err)
	}
	if p.IsYear() {
		return CarryoverResult{Skipped: true}, nil
	}

	// The shared evaluation outlives any one caller's cancellation; each
	// caller still stops waiting when its own context ends.
	ch := s.group.DoChan(userID+":"+p.Key(), func() (any, error) {
		evalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evaluateTimeout)
		defer cancel()
		return s.evaluate(evalCtx, userID, p)
	})
	select {
	case <-ctx.Done():
		return CarryoverResult{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			slog.DebugContext(ctx, "Carryover evaluation shared", "user_id", userID, "period", p.Key())
		}
		res, _ := r.Val.(CarryoverResult)
		s.notify.metrics.ObserveCarryover(outcome(res, r.Err), res.Inserted)
		return res, r.Err
	}
}

func (s *CarryoverService) evaluate(ctx context.Context, userID string, p core.Period) (CarryoverResult, error) {
	current, err := s.income.ListIncome(ctx, storage.ForPeriod(userID, p))
	if err != nil {
		return CarryoverResult{}, fmt.Errorf("read income %s: %w", p.Key(), err)
	}
	reserved, _, err := s.sources.FindCarryoverSource(ctx, userID)
	if err != nil {
		return CarryoverResult{}, err
	}
	if core.HasCarryover(current, p, reserved.ID) {
		return CarryoverResult{Skipped: true, Income: current}, nil
	}

	prev := p.Prev()
	rows, err := s.plan(ctx, userID, p, prev)
	if err != nil {
		return CarryoverResult{}, err
	}
	if len(rows) == 0 {
		return CarryoverResult{Income: current}, nil
	}

	if reserved.ID == "" {
		reserved, err = s.sources.EnsureCarryoverSource(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "Carryover source creation failed",
				"user_id", userID, "period", p.Key(), "error", err)
			return CarryoverResult{}, fmt.Errorf("%w: %w", ErrCarryoverInsert, err)
		}
	}
	for i := range rows {
		rows[i].SourceID = reserved.ID
	}

	inserted, err := s.income.InsertIncome(ctx, rows...)
	switch {
	case errors.Is(err, storage.ErrConflict):
		slog.InfoContext(ctx, "Carryover already applied", "user_id", userID, "period", p.Key())
		current, err = s.income.ListIncome(ctx, storage.ForPeriod(userID, p))
		if err != nil {
			return CarryoverResult{}, fmt.Errorf("read income %s: %w", p.Key(), err)
		}
		return CarryoverResult{Skipped: true, Income: current}, nil
	case err != nil:
		slog.ErrorContext(ctx, "Carryover insert failed",
			"user_id", userID, "period", p.Key(), "rows", len(rows), "error", err)
		return CarryoverResult{}, fmt.Errorf("%w: %w", ErrCarryoverInsert, err)
	}

	slog.InfoContext(ctx, "Carryover applied",
		"user_id", userID,
		"period", p.Key(),
		"from", prev.Key(),
		"rows", len(inserted))
	for _, r := range inserted {
		s.notify.changed(ctx, userID, amqp.NewIncomeEvent(amqp.EventCreated, r))
	}

	current, err = s.income.ListIncome(ctx, storage.ForPeriod(userID, p))
	if err != nil {
		return CarryoverResult{}, fmt.Errorf("read income %s: %w", p.Key(), err)
	}
	return CarryoverResult{Inserted: len(inserted), Income: current}, nil
}

// plan computes the rows to synthesize from prev's balances. Only the
// immediately preceding month is considered.
func (s *CarryoverService) plan(ctx context.Context, userID string, p, prev core.Period) ([]core.IncomeRecord, error) {
	f := storage.ForPeriod(userID, prev)
	income, err := s.income.ListIncome(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read income %s: %w", prev.Key(), err)
	}
	expenses, err := s.expenses.ListExpenses(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read expenses %s: %w", prev.Key(), err)
	}
	accounts, err := s.taxa.ListTaxa(ctx, userID, core.KindAccountType)
	if err != nil {
		return nil, fmt.Errorf("list account types: %w", err)
	}
	balances := core.ComputeAccountBalances(income, expenses, core.AccountNames(accounts))
	return core.PlanCarryover(p, balances, userID, ""), nil
}

func outcome(res CarryoverResult, err error) string {
	switch {
	case err != nil:
		return "failed"
	case res.Skipped:
		return "skipped"
	case res.Inserted > 0:
		return "inserted"
	default:
		return "empty"
	}
}
