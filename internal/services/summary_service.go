package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/cache"
	"kharcha/internal/core"
	"kharcha/internal/metrics"
	"kharcha/internal/storage"

	"golang.org/x/sync/errgroup"
)

// livePeriodTTL caps how long a view of the current month or year is
// cached. Other processes such as the carryover worker write into it
// without reaching this cache.
const livePeriodTTL = time.Minute

// SummaryService builds the month and year dashboards, caching each per
// user and period.
type SummaryService struct {
	income    storage.IncomeStore
	expenses  storage.ExpenseStore
	taxa      storage.TaxonomyStore
	carryover *CarryoverService
	months    *cache.LRUCache[core.MonthSummary]
	years     *cache.LRUCache[core.YearSummary]
	ttl       time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
}

func NewSummaryService(store storage.Store, cacheSize int, ttl time.Duration, m *metrics.Metrics) *SummaryService {
	return &SummaryService{
		income:   store,
		expenses: store,
		taxa:     store,
		months:   cache.NewLRUCache[core.MonthSummary](cacheSize, ttl),
		years:    cache.NewLRUCache[core.YearSummary](cacheSize, ttl),
		ttl:      ttl,
		now:      time.Now,
		metrics:  m,
	}
}

// ttlFor returns the cache lifetime of a view of p.
func (s *SummaryService) ttlFor(p core.Period) time.Duration {
	cur := core.PeriodOf(s.now())
	live := p.Year == cur.Year && (p.IsYear() || p.Month == cur.Month)
	if live && livePeriodTTL < s.ttl {
		return livePeriodTTL
	}
	return s.ttl
}

// UseCarryover makes Month evaluate carryover before summarizing.
func (s *SummaryService) UseCarryover(c *CarryoverService) *SummaryService {
	s.carryover = c
	return s
}

// Register adds the summary caches to a cleanup manager.
func (s *SummaryService) Register(m *cache.Manager) {
	m.Register("summary_month", s.months)
	m.Register("summary_year", s.years)
}

// Invalidate drops every cached view of userID.
func (s *SummaryService) Invalidate(userID string) {
	prefix := userID + ":"
	if n := s.months.DeletePrefix(prefix) + s.years.DeletePrefix(prefix); n > 0 {
		slog.Debug("Summary cache invalidated", "user_id", userID, "entries", n)
	}
}

// Month returns the monthly dashboard. A failed carryover is logged and the
// month is served without it and left uncached, so the next view retries.
func (s *SummaryService) Month(ctx context.Context, userID string, p core.Period) (core.MonthSummary, error) {
	if err := p.Validate(); err != nil {
		return core.MonthSummary{}, core.Invalid("period", err)
	}
	if p.IsYear() {
		return core.MonthSummary{}, core.Invalid("month", core.ErrInvalidPeriod)
	}
	key := userID + ":" + p.Key()
	if v, ok := s.months.Get(key); ok {
		s.metrics.ObserveCacheLookup("month", true)
		return v, nil
	}
	s.metrics.ObserveCacheLookup("month", false)

	applied, settled := false, true
	if s.carryover != nil {
		res, err := s.carryover.Evaluate(ctx, userID, p)
		if err != nil {
			settled = false
			if errors.Is(err, context.Canceled) {
				return core.MonthSummary{}, err
			}
			slog.WarnContext(ctx, "Serving month without carryover",
				"user_id", userID, "period", p.Key(), "error", err)
		}
		applied = res.Skipped || res.Inserted > 0
	}

	snap, err := s.snapshot(ctx, userID, p)
	if err != nil {
		return core.MonthSummary{}, err
	}
	sum := core.SummarizeMonth(snap)
	sum.CarryoverApplied = applied
	if settled {
		s.months.SetWithTTL(key, sum, s.ttlFor(p))
	}
	return sum, nil
}

func (s *SummaryService) Year(ctx context.Context, userID string, year int) (core.YearSummary, error) {
	p := core.YearPeriod(year)
	if err := p.Validate(); err != nil {
		return core.YearSummary{}, core.Invalid("year", err)
	}
	key := userID + ":" + p.Key()
	if v, ok := s.years.Get(key); ok {
		s.metrics.ObserveCacheLookup("year", true)
		return v, nil
	}
	s.metrics.ObserveCacheLookup("year", false)

	snap, err := s.snapshot(ctx, userID, p)
	if err != nil {
		return core.YearSummary{}, err
	}
	sum := core.SummarizeYear(snap)
	s.years.SetWithTTL(key, sum, s.ttlFor(p))
	return sum, nil
}

// Snapshot reads everything a view of p needs.
func (s *SummaryService) Snapshot(ctx context.Context, userID string, p core.Period) (core.Snapshot, error) {
	return s.snapshot(ctx, userID, p)
}

// snapshot fetches the period's records and the user's taxonomy. The reads
// are independent and run concurrently.
func (s *SummaryService) snapshot(ctx context.Context, userID string, p core.Period) (core.Snapshot, error) {
	snap := core.Snapshot{Period: p}
	f := storage.ForPeriod(userID, p)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Income, err = s.income.ListIncome(gctx, f)
		return wrap("read income", err)
	})
	g.Go(func() (err error) {
		snap.Expenses, err = s.expenses.ListExpenses(gctx, f)
		return wrap("read expenses", err)
	})
	g.Go(func() (err error) {
		snap.Categories, err = s.taxa.ListTaxa(gctx, userID, core.KindCategory)
		return wrap("list categories", err)
	})
	g.Go(func() (err error) {
		snap.Sources, err = s.taxa.ListTaxa(gctx, userID, core.KindIncomeSource)
		return wrap("list income sources", err)
	})
	g.Go(func() (err error) {
		snap.AccountTypes, err = s.taxa.ListTaxa(gctx, userID, core.KindAccountType)
		return wrap("list account types", err)
	})
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot %s: %w", p.Key(), err)
	}
	return snap, nil
}

func wrap(action string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}
